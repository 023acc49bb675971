package message

import (
	"encoding/json"
	"fmt"
)

// envelope is the wire shape every message marshals to: the Kind
// discriminator under "kind" and the concrete variant's own fields nested
// under "data".
type envelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Encode marshals a Message to its Kind-discriminated wire form.
func Encode(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Kind(), err)
	}
	return json.Marshal(envelope{Kind: m.Kind(), Data: data})
}

// Decode unmarshals a Kind-discriminated wire form back into a concrete
// Message value. Unknown kinds produce an error rather than silently
// dropping the message, since history replay depends on every message
// decoding to the same variant it was encoded from. Payloads predating the
// envelope (no kind field) fall back to key-shape detection.
func Decode(raw []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Kind == "" {
		return decodeByShape(raw)
	}
	switch env.Kind {
	case KindText:
		var v TextMessage
		return v, unmarshalInto(env.Data, &v)
	case KindTextUpdate:
		var v TextUpdateMessage
		return v, unmarshalInto(env.Data, &v)
	case KindReasoning:
		var v ReasoningMessage
		return v, unmarshalInto(env.Data, &v)
	case KindReasoningUpdate:
		var v ReasoningUpdateMessage
		return v, unmarshalInto(env.Data, &v)
	case KindToolCall:
		var v ToolCallMessage
		return v, unmarshalInto(env.Data, &v)
	case KindToolCallUpdate:
		var v ToolCallUpdateMessage
		return v, unmarshalInto(env.Data, &v)
	case KindToolCallResult:
		var v ToolCallResultMessage
		return v, unmarshalInto(env.Data, &v)
	case KindToolsCallAggr:
		var v ToolsCallAggregateMessage
		return v, unmarshalInto(env.Data, &v)
	case KindUsage:
		var v UsageMessage
		return v, unmarshalInto(env.Data, &v)
	case KindRunAssignment:
		var v RunAssignment
		return v, unmarshalInto(env.Data, &v)
	case KindRunCompleted:
		var v RunCompleted
		return v, unmarshalInto(env.Data, &v)
	case KindSessionStarted:
		var v SessionStarted
		return v, unmarshalInto(env.Data, &v)
	case KindError:
		var v ErrorMessage
		return v, unmarshalInto(env.Data, &v)
	default:
		return nil, fmt.Errorf("decode: unknown message kind %q", env.Kind)
	}
}

// decodeByShape recovers older persisted payloads that were written as bare
// variant JSON, before the kind envelope existed, by inspecting which
// discriminating keys are present.
func decodeByShape(raw []byte) (Message, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, fmt.Errorf("decode legacy payload: %w", err)
	}
	has := func(k string) bool { _, ok := keys[k]; return ok }
	switch {
	case has("CompletedRunID"):
		var v RunCompleted
		return v, unmarshalInto(raw, &v)
	case has("InputIDs") || has("WasInjected"):
		var v RunAssignment
		return v, unmarshalInto(raw, &v)
	case has("ToolCalls"):
		var v ToolsCallAggregateMessage
		return v, unmarshalInto(raw, &v)
	case has("Result") && has("ToolCallID"):
		var v ToolCallResultMessage
		return v, unmarshalInto(raw, &v)
	case has("ToolCallID"):
		var v ToolCallMessage
		return v, unmarshalInto(raw, &v)
	case has("TotalTokens"):
		var v UsageMessage
		return v, unmarshalInto(raw, &v)
	case has("Reasoning"):
		var v ReasoningMessage
		return v, unmarshalInto(raw, &v)
	case has("SessionID") && has("StartedAt"):
		var v SessionStarted
		return v, unmarshalInto(raw, &v)
	case has("Code") && has("Message"):
		var v ErrorMessage
		return v, unmarshalInto(raw, &v)
	case has("Text"):
		var v TextMessage
		return v, unmarshalInto(raw, &v)
	default:
		return nil, fmt.Errorf("decode: payload has no kind and no recognizable shape")
	}
}

func unmarshalInto[T any](raw json.RawMessage, dst *T) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

// legacyRunCompletedAlias tolerates the historical shape of RunCompleted
// that predates hasPendingMessages/pendingMessageCount: fields absent from
// the wire payload decode to their zero values, which are already the
// desired defaults (false / 0).
type legacyRunCompletedAlias RunCompleted

// UnmarshalJSON accepts both the current RunCompleted shape and the older
// one that omitted hasPendingMessages/pendingMessageCount.
func (r *RunCompleted) UnmarshalJSON(data []byte) error {
	var alias legacyRunCompletedAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*r = RunCompleted(alias)
	return nil
}
