// Package message defines the tagged-union message model that flows through
// the agent loop, the middleware pipeline, and every subscriber. Every
// observable message carries the correlation identifiers described in the
// data model: threadId, runId, optional parentRunId, generationId, a
// per-generation messageOrderIdx, and — for tool traffic — a toolCallId.
package message

import (
	"time"

	"github.com/agentcore/core/internal/jsonfrag"
)

// Role identifies the speaker of a finalized utterance.
type Role string

// Recognized roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Visibility classifies how much of a reasoning trace is exposed downstream.
type Visibility string

// Recognized reasoning visibilities.
const (
	VisibilityPlain     Visibility = "plain"
	VisibilitySummary   Visibility = "summary"
	VisibilityEncrypted Visibility = "encrypted"
)

// ExecutionTarget records where a tool call will be (or was) executed.
// It propagates unchanged from update through full message through result.
type ExecutionTarget string

// Recognized execution targets.
const (
	ExecutionLocalFunction  ExecutionTarget = "localFunction"
	ExecutionProviderServer ExecutionTarget = "providerServer"
)

// Ident carries the correlation identifiers shared by every message variant.
type Ident struct {
	ThreadID        string
	RunID           string
	ParentRunID     string
	GenerationID    string
	MessageOrderIdx int
}

// Message is the tagged-union marker interface. Kind returns the wire
// discriminator used by Encode/Decode (see json.go).
type Message interface {
	Kind() string
	Identity() Ident
}

type (
	// TextMessage is a finalized utterance.
	TextMessage struct {
		Ident
		Role Role
		Text string
	}

	// TextUpdateMessage is a streaming delta of a TextMessage.
	TextUpdateMessage struct {
		Ident
		Text string
	}

	// ReasoningMessage is a final chain-of-thought/summary/opaque blob.
	ReasoningMessage struct {
		Ident
		Reasoning  string
		Visibility Visibility
	}

	// ReasoningUpdateMessage is a streaming delta of a ReasoningMessage.
	ReasoningUpdateMessage struct {
		Ident
		Reasoning  string
		Visibility Visibility
	}

	// ToolCallMessage requests execution of one tool.
	ToolCallMessage struct {
		Ident
		ToolCallID      string
		FunctionName    string
		FunctionArgs    string // JSON-encoded arguments, possibly incomplete upstream
		ExecutionTarget ExecutionTarget
		Index           int
	}

	// ToolCallUpdateMessage is a streaming delta of a ToolCallMessage.
	// FunctionArgs accumulates across updates sharing ToolCallID;
	// JSONFragmentUpdates carry the keyed structural updates derived from
	// the latest FunctionArgs delta.
	ToolCallUpdateMessage struct {
		Ident
		ToolCallID          string
		FunctionName        string
		FunctionArgs        string
		ExecutionTarget     ExecutionTarget
		Index               int
		JSONFragmentUpdates []jsonfrag.Update
	}

	// ToolCallResultMessage is the response to one tool call.
	ToolCallResultMessage struct {
		Ident
		ToolCallID      string
		ToolName        string
		Result          string
		IsError         bool
		ExecutionTarget ExecutionTarget
	}

	// ToolsCallAggregateMessage is an upstream-only message bundling one
	// turn's complete tool-call/response block, cross-linked by ToolCallID.
	ToolsCallAggregateMessage struct {
		Ident
		ToolCalls []ToolCallMessage
		Results   []ToolCallResultMessage
	}

	// UsageMessage is the terminal per-generation token/cost accounting.
	UsageMessage struct {
		Ident
		PromptTokens     int
		CompletionTokens int
		TotalTokens      int
		ReasoningTokens  *int
		CachedTokens     *int
		Cost             *float64
	}

	// RunAssignment announces that inputs have been assigned to a run,
	// either as the initial batch or as a mid-run injection.
	RunAssignment struct {
		Ident
		InputIDs    []string
		WasInjected bool
	}

	// RunCompleted is emitted exactly once per run.
	RunCompleted struct {
		Ident
		CompletedRunID      string
		WasForked           bool
		ForkedToRunID       string
		HasPendingMessages  bool
		PendingMessageCount int
		IsError             bool
		ErrorMessage        string
	}

	// SessionStarted is emitted once when a bidirectional socket session begins.
	SessionStarted struct {
		SessionID string
		StartedAt time.Time
	}

	// ErrorMessage is a user-visible terminal or advisory error.
	ErrorMessage struct {
		Ident
		Code        string
		Message     string
		Recoverable bool
	}
)

// Kind discriminators. These are the wire values of the Kind field.
const (
	KindText             = "text"
	KindTextUpdate       = "text_update"
	KindReasoning        = "reasoning"
	KindReasoningUpdate  = "reasoning_update"
	KindToolCall         = "tool_call"
	KindToolCallUpdate   = "tool_call_update"
	KindToolCallResult   = "tool_call_result"
	KindToolsCallAggr    = "tools_call_aggregate"
	KindUsage            = "usage"
	KindRunAssignment    = "run_assignment"
	KindRunCompleted     = "run_completed"
	KindSessionStarted   = "session_started"
	KindError            = "error"
)

func (m TextMessage) Kind() string               { return KindText }
func (m TextUpdateMessage) Kind() string          { return KindTextUpdate }
func (m ReasoningMessage) Kind() string           { return KindReasoning }
func (m ReasoningUpdateMessage) Kind() string     { return KindReasoningUpdate }
func (m ToolCallMessage) Kind() string            { return KindToolCall }
func (m ToolCallUpdateMessage) Kind() string      { return KindToolCallUpdate }
func (m ToolCallResultMessage) Kind() string      { return KindToolCallResult }
func (m ToolsCallAggregateMessage) Kind() string  { return KindToolsCallAggr }
func (m UsageMessage) Kind() string               { return KindUsage }
func (m RunAssignment) Kind() string              { return KindRunAssignment }
func (m RunCompleted) Kind() string               { return KindRunCompleted }
func (m SessionStarted) Kind() string             { return KindSessionStarted }
func (m ErrorMessage) Kind() string               { return KindError }

func (m TextMessage) Identity() Ident               { return m.Ident }
func (m TextUpdateMessage) Identity() Ident         { return m.Ident }
func (m ReasoningMessage) Identity() Ident          { return m.Ident }
func (m ReasoningUpdateMessage) Identity() Ident    { return m.Ident }
func (m ToolCallMessage) Identity() Ident           { return m.Ident }
func (m ToolCallUpdateMessage) Identity() Ident     { return m.Ident }
func (m ToolCallResultMessage) Identity() Ident     { return m.Ident }
func (m ToolsCallAggregateMessage) Identity() Ident { return m.Ident }
func (m UsageMessage) Identity() Ident              { return m.Ident }
func (m RunAssignment) Identity() Ident             { return m.Ident }
func (m RunCompleted) Identity() Ident              { return m.Ident }
func (m SessionStarted) Identity() Ident            { return Ident{} }
func (m ErrorMessage) Identity() Ident              { return m.Ident }

// IsUpdate reports whether a message is a streaming delta rather than a
// finalized variant. The pipeline's update joiner groups contiguous updates
// sharing (generationId, toolCallId) and uses this to recognize candidates.
func IsUpdate(m Message) bool {
	switch m.(type) {
	case TextUpdateMessage, ReasoningUpdateMessage, ToolCallUpdateMessage:
		return true
	default:
		return false
	}
}

// ToolCallIDOf returns the toolCallId carried by m, and ok=false for
// variants that do not carry one (e.g. TextMessage).
func ToolCallIDOf(m Message) (string, bool) {
	switch v := m.(type) {
	case ToolCallMessage:
		return v.ToolCallID, true
	case ToolCallUpdateMessage:
		return v.ToolCallID, true
	case ToolCallResultMessage:
		return v.ToolCallID, true
	default:
		return "", false
	}
}
