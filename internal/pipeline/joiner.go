package pipeline

import (
	"strings"

	"github.com/agentcore/core/internal/message"
)

// joiner implements MessageUpdateJoiner: it groups contiguous update
// messages sharing (generationId, toolCallId-or-empty) and, once that run
// ends (a different key appears, or the stream closes), emits the joined
// full message in place of the update sequence for history purposes. The
// constituent updates are still returned to the caller immediately, ahead of
// the joined message, matching "update messages are still forwarded to
// callers before the joined message."
type joiner struct {
	active *run
}

// run accumulates one contiguous block's updates.
type run struct {
	key   string
	kind  string // "text", "reasoning", or "tool_call"
	ident message.Ident

	textBuf strings.Builder
	visibility message.Visibility

	toolCallID      string
	functionName    string
	argsBuf         strings.Builder
	executionTarget message.ExecutionTarget
	index           int

	maxIdx int
}

func newJoiner() *joiner { return &joiner{} }

// push feeds one pipeline message and returns the messages to emit
// immediately: m itself (always), plus a joined full message if m closed out
// a prior run. A provider that ships its own terminal ToolCallMessage for
// the active update run takes precedence: the synthesized join is dropped
// so the call is never emitted twice.
func (j *joiner) push(m message.Message) []message.Message {
	key, kind := groupKey(m)

	var out []message.Message
	if j.active != nil && (kind == "" || key != j.active.key) {
		if tc, ok := m.(message.ToolCallMessage); ok && j.active.kind == "tool_call" && j.active.toolCallID == tc.ToolCallID {
			j.active = nil
		} else {
			out = append(out, j.finalize())
		}
	}

	if kind == "" {
		return append(out, m)
	}

	if j.active == nil {
		j.active = &run{key: key, kind: kind, ident: m.Identity()}
	}
	j.active.maxIdx = orderIdxOf(m)

	switch v := m.(type) {
	case message.TextUpdateMessage:
		j.active.textBuf.WriteString(v.Text)
	case message.ReasoningUpdateMessage:
		j.active.textBuf.WriteString(v.Reasoning)
		j.active.visibility = v.Visibility
	case message.ToolCallUpdateMessage:
		// FunctionArgs on each update is a delta chunk; concatenating them
		// across updates sharing ToolCallID yields the full message's
		// FunctionArgs.
		j.active.argsBuf.WriteString(v.FunctionArgs)
		if v.ToolCallID != "" {
			j.active.toolCallID = v.ToolCallID
		}
		if v.FunctionName != "" {
			j.active.functionName = v.FunctionName
		}
		j.active.executionTarget = v.ExecutionTarget
		j.active.index = v.Index
	}

	return append(out, m)
}

// flush closes out any in-progress run at stream end.
func (j *joiner) flush() []message.Message {
	if j.active == nil {
		return nil
	}
	return []message.Message{j.finalize()}
}

func (j *joiner) finalize() message.Message {
	r := j.active
	j.active = nil
	ident := r.ident
	ident.MessageOrderIdx = r.maxIdx
	switch r.kind {
	case "text":
		return message.TextMessage{Ident: ident, Role: message.RoleAssistant, Text: r.textBuf.String()}
	case "reasoning":
		return message.ReasoningMessage{Ident: ident, Reasoning: r.textBuf.String(), Visibility: r.visibility}
	case "tool_call":
		return message.ToolCallMessage{
			Ident:           ident,
			ToolCallID:      r.toolCallID,
			FunctionName:    r.functionName,
			FunctionArgs:    r.argsBuf.String(),
			ExecutionTarget: r.executionTarget,
			Index:           r.index,
		}
	default:
		return message.TextMessage{Ident: ident}
	}
}

// groupKey returns the (generationId, toolCallId|"") join key for update
// messages, and ("", "") for anything else (which closes any active run).
func groupKey(m message.Message) (key, kind string) {
	id := m.Identity()
	switch v := m.(type) {
	case message.TextUpdateMessage:
		return id.GenerationID + "|text", "text"
	case message.ReasoningUpdateMessage:
		return id.GenerationID + "|reasoning", "reasoning"
	case message.ToolCallUpdateMessage:
		return id.GenerationID + "|tool|" + v.ToolCallID, "tool_call"
	default:
		return "", ""
	}
}
