package pipeline

import "github.com/agentcore/core/internal/message"

// orderAssigner implements the downstream half of MessageTransformation:
// messageOrderIdx is dense, starting at 0, per generationId. Joined full
// messages later overwrite their stamped index with the maximum index of
// their constituent updates; see joiner.go.
type orderAssigner struct {
	next map[string]int
}

func newOrderAssigner() *orderAssigner {
	return &orderAssigner{next: make(map[string]int)}
}

func (o *orderAssigner) stamp(m message.Message, generationID string) message.Message {
	idx := o.next[generationID]
	o.next[generationID] = idx + 1
	return withOrderIdx(m, idx)
}

// withOrderIdx returns m with its Ident.MessageOrderIdx replaced by idx.
func withOrderIdx(m message.Message, idx int) message.Message {
	switch v := m.(type) {
	case message.TextMessage:
		v.MessageOrderIdx = idx
		return v
	case message.TextUpdateMessage:
		v.MessageOrderIdx = idx
		return v
	case message.ReasoningMessage:
		v.MessageOrderIdx = idx
		return v
	case message.ReasoningUpdateMessage:
		v.MessageOrderIdx = idx
		return v
	case message.ToolCallMessage:
		v.MessageOrderIdx = idx
		return v
	case message.ToolCallUpdateMessage:
		v.MessageOrderIdx = idx
		return v
	case message.ToolCallResultMessage:
		v.MessageOrderIdx = idx
		return v
	case message.UsageMessage:
		v.MessageOrderIdx = idx
		return v
	case message.RunAssignment:
		v.MessageOrderIdx = idx
		return v
	case message.RunCompleted:
		v.MessageOrderIdx = idx
		return v
	case message.ErrorMessage:
		v.MessageOrderIdx = idx
		return v
	default:
		return m
	}
}

func orderIdxOf(m message.Message) int {
	return m.Identity().MessageOrderIdx
}

// stampIdentity overwrites m's correlation identifiers with the loop's
// authoritative values for this generation. Provider adapters stamp what
// they know, but the pipeline owns the final say so every downstream
// message carries the thread/run/generation it was produced under.
func stampIdentity(m message.Message, threadID, runID, generationID string) message.Message {
	apply := func(id *message.Ident) {
		if threadID != "" {
			id.ThreadID = threadID
		}
		if runID != "" {
			id.RunID = runID
		}
		if generationID != "" {
			id.GenerationID = generationID
		}
	}
	switch v := m.(type) {
	case message.TextMessage:
		apply(&v.Ident)
		return v
	case message.TextUpdateMessage:
		apply(&v.Ident)
		return v
	case message.ReasoningMessage:
		apply(&v.Ident)
		return v
	case message.ReasoningUpdateMessage:
		apply(&v.Ident)
		return v
	case message.ToolCallMessage:
		apply(&v.Ident)
		return v
	case message.ToolCallUpdateMessage:
		apply(&v.Ident)
		return v
	case message.ToolCallResultMessage:
		apply(&v.Ident)
		return v
	case message.UsageMessage:
		apply(&v.Ident)
		return v
	case message.ErrorMessage:
		apply(&v.Ident)
		return v
	default:
		return m
	}
}
