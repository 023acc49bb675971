package toolwire

import (
	"regexp"
	"strings"

	"github.com/agentcore/core/internal/ids"
	"github.com/agentcore/core/internal/message"
)

var (
	callPattern     = regexp.MustCompile(`(?s)<tool_call name="([^"]*)">\n(.*?)\n</tool_call>`)
	responsePattern = regexp.MustCompile(`(?s)<tool_response name="([^"]*)">\n(.*?)\n</tool_response>`)
)

// Decode parses the NL/XML-style transcript produced by Encode back into a
// ToolsCallAggregateMessage. Each block's ToolCallID is freshly generated
// since the wire format does not round-trip it; callers that need identity
// continuity should prefer the structured JSON codec instead.
func Decode(ident message.Ident, text string) message.ToolsCallAggregateMessage {
	agg := message.ToolsCallAggregateMessage{Ident: ident}
	for _, block := range strings.Split(text, "\n"+separator+"\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		callMatch := callPattern.FindStringSubmatch(block)
		if callMatch == nil {
			continue
		}
		toolCallID := ids.New()
		name, args := callMatch[1], callMatch[2]
		agg.ToolCalls = append(agg.ToolCalls, message.ToolCallMessage{
			Ident:           ident,
			ToolCallID:      toolCallID,
			FunctionName:    name,
			FunctionArgs:    args,
			ExecutionTarget: message.ExecutionLocalFunction,
		})
		if respMatch := responsePattern.FindStringSubmatch(block); respMatch != nil {
			agg.Results = append(agg.Results, message.ToolCallResultMessage{
				Ident:      ident,
				ToolCallID: toolCallID,
				ToolName:   respMatch[1],
				Result:     respMatch[2],
			})
		}
	}
	return agg
}
