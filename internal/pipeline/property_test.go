package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/agentcore/core/internal/message"
)

// burstShape models one contiguous streaming block a provider could emit:
// either a run of text deltas or a run of tool-call argument deltas.
type burstShape struct {
	isTool bool
	deltas []string
}

// genBurst produces a burst with 1..4 non-empty deltas.
func genBurst() gopter.Gen {
	return gopter.CombineGens(
		gen.Bool(),
		gen.SliceOfN(4, gen.Identifier()),
		gen.IntRange(1, 4),
	).Map(func(vals []any) burstShape {
		deltas := vals[1].([]string)[:vals[2].(int)]
		return burstShape{isTool: vals[0].(bool), deltas: deltas}
	})
}

func genRunShape() gopter.Gen {
	return gopter.CombineGens(
		gen.SliceOfN(6, genBurst()),
		gen.IntRange(1, 6),
	).Map(func(vals []any) []burstShape {
		return vals[0].([]burstShape)[:vals[1].(int)]
	})
}

// buildStream renders a run shape as the update sequence a provider parser
// would emit, assigning each tool burst its own toolCallID. Tool bursts
// carry JSON args split across their deltas so the concatenation invariant
// is observable.
func buildStream(generationID string, bursts []burstShape) (msgs []message.Message, toolArgs map[string]string) {
	ident := message.Ident{ThreadID: "t1", RunID: "r1", GenerationID: generationID}
	toolArgs = make(map[string]string)
	for bi, b := range bursts {
		if !b.isTool {
			for _, d := range b.deltas {
				msgs = append(msgs, message.TextUpdateMessage{Ident: ident, Text: d})
			}
			continue
		}
		id := fmt.Sprintf("tc-%d", bi)
		full := fmt.Sprintf(`{"q":%q}`, strings.Join(b.deltas, ""))
		toolArgs[id] = full
		chunks := splitN(full, len(b.deltas))
		for _, c := range chunks {
			msgs = append(msgs, message.ToolCallUpdateMessage{
				Ident:           ident,
				ToolCallID:      id,
				FunctionName:    "search",
				FunctionArgs:    c,
				ExecutionTarget: message.ExecutionLocalFunction,
				Index:           bi,
			})
		}
	}
	return msgs, toolArgs
}

func splitN(s string, n int) []string {
	if n <= 1 || len(s) <= n {
		return []string{s}
	}
	size := len(s) / n
	var out []string
	for i := 0; i < n-1; i++ {
		out = append(out, s[i*size:(i+1)*size])
	}
	out = append(out, s[(n-1)*size:])
	return out
}

// TestPipelineOrderingInvariantsProperty checks, across randomized run
// shapes, that update messageOrderIdx values are dense from 0, that every
// tool call's update args concatenate to the joined full args, and that each
// joined full message carries the maximum index of its constituent updates.
func TestPipelineOrderingInvariantsProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("dense ordering, args concatenation, joined max index", prop.ForAll(
		func(bursts []burstShape) bool {
			stream, wantArgs := buildStream("g1", bursts)
			src := &sliceRecv{msgs: stream}
			p := New(&recordingPublisher{})
			out := p.Process(context.Background(), src, Options{GenerationID: "g1"}, nil)

			var updates []message.Message
			joinedArgs := make(map[string]string)
			joinedIdx := make(map[string]int)
			updateMaxIdx := make(map[string]int)
			for m := range out {
				if message.IsUpdate(m) {
					updates = append(updates, m)
					if u, ok := m.(message.ToolCallUpdateMessage); ok {
						if u.MessageOrderIdx > updateMaxIdx[u.ToolCallID] {
							updateMaxIdx[u.ToolCallID] = u.MessageOrderIdx
						}
					}
					continue
				}
				if tc, ok := m.(message.ToolCallMessage); ok {
					joinedArgs[tc.ToolCallID] = tc.FunctionArgs
					joinedIdx[tc.ToolCallID] = tc.MessageOrderIdx
				}
			}

			// Invariant: update indices are exactly {0..N-1}.
			seen := make(map[int]bool, len(updates))
			for _, u := range updates {
				seen[u.Identity().MessageOrderIdx] = true
			}
			for i := 0; i < len(updates); i++ {
				if !seen[i] {
					return false
				}
			}

			// Invariant: joined args equal the delta concatenation, and the
			// joined message carries its updates' maximum index.
			for id, want := range wantArgs {
				if joinedArgs[id] != want {
					return false
				}
				if joinedIdx[id] != updateMaxIdx[id] {
					return false
				}
			}
			return len(joinedArgs) == len(wantArgs)
		},
		genRunShape(),
	))

	properties.TestingRun(t)
}

// TestAggregateRoundTripProperty checks the aggregate duality: composing a
// history of tool-call/result pairs and decomposing it again preserves every
// identifier and payload.
func TestAggregateRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("aggregate/decompose preserves ids and payloads", prop.ForAll(
		func(n int, payload string) bool {
			ident := message.Ident{ThreadID: "t1", RunID: "r1", GenerationID: "g1"}
			var history []message.Message
			for i := 0; i < n; i++ {
				id := fmt.Sprintf("tc-%d", i)
				history = append(history,
					message.ToolCallMessage{Ident: ident, ToolCallID: id, FunctionName: "f", FunctionArgs: `{}`},
					message.ToolCallResultMessage{Ident: ident, ToolCallID: id, ToolName: "f", Result: payload},
				)
			}
			aggregated := AggregateForProvider(history)
			if len(aggregated) != 1 {
				return false
			}
			agg, ok := aggregated[0].(message.ToolsCallAggregateMessage)
			if !ok || len(agg.ToolCalls) != n || len(agg.Results) != n {
				return false
			}
			decomposed := DecomposeAggregate(agg)
			if len(decomposed) != len(history) {
				return false
			}
			for i := range history {
				hid, _ := message.ToolCallIDOf(history[i])
				did, _ := message.ToolCallIDOf(decomposed[i])
				if hid != did {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 8),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
