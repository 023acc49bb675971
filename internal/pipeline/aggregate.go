package pipeline

import "github.com/agentcore/core/internal/message"

// AggregateForProvider implements the upstream half of MessageTransformation:
// consecutive ToolCallMessage + ToolCallResultMessage pairs sharing a
// ToolCallID collapse into a single ToolsCallAggregateMessage before the
// history is sent to the provider as the next request's inbound messages.
// Non-tool-call messages pass through unchanged.
func AggregateForProvider(history []message.Message) []message.Message {
	out := make([]message.Message, 0, len(history))
	pending := map[string]*message.ToolCallMessage{}
	order := []string{}
	results := map[string]message.ToolCallResultMessage{}

	flush := func() {
		if len(order) == 0 {
			return
		}
		agg := message.ToolsCallAggregateMessage{}
		for _, id := range order {
			if call, ok := pending[id]; ok {
				agg.ToolCalls = append(agg.ToolCalls, *call)
				agg.Ident = call.Ident
			}
			if res, ok := results[id]; ok {
				agg.Results = append(agg.Results, res)
			}
		}
		out = append(out, agg)
		pending = map[string]*message.ToolCallMessage{}
		results = map[string]message.ToolCallResultMessage{}
		order = nil
	}

	for _, m := range history {
		switch v := m.(type) {
		case message.ToolCallMessage:
			c := v
			pending[v.ToolCallID] = &c
			order = append(order, v.ToolCallID)
		case message.ToolCallResultMessage:
			results[v.ToolCallID] = v
		default:
			flush()
			out = append(out, m)
		}
	}
	flush()
	return out
}

// DecomposeAggregate implements the inverse of AggregateForProvider: it
// expands a ToolsCallAggregateMessage back into its constituent
// ToolCallMessage and ToolCallResultMessage sequence, preserving
// ToolCallID-based binding between each call and its result.
func DecomposeAggregate(agg message.ToolsCallAggregateMessage) []message.Message {
	resultByID := make(map[string]message.ToolCallResultMessage, len(agg.Results))
	for _, r := range agg.Results {
		resultByID[r.ToolCallID] = r
	}
	out := make([]message.Message, 0, len(agg.ToolCalls)*2)
	for _, c := range agg.ToolCalls {
		out = append(out, c)
		if r, ok := resultByID[c.ToolCallID]; ok {
			out = append(out, r)
		}
	}
	return out
}
