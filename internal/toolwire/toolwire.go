// Package toolwire implements the natural-language/XML-style transcript
// wire format for ToolsCallAggregateMessage, the format some providers
// expect tool traffic rendered as plain text in history rather than as
// structured function-call blocks.
package toolwire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentcore/core/internal/message"
)

const separator = "---"

// Encode renders agg as the NL/XML-style transcript: one
// <tool_call>/<tool_response> pair per ToolCallID, pretty-printing JSON
// arguments and results where parseable, separated by a line containing
// exactly "---".
func Encode(agg message.ToolsCallAggregateMessage) string {
	resultByID := make(map[string]message.ToolCallResultMessage, len(agg.Results))
	for _, r := range agg.Results {
		resultByID[r.ToolCallID] = r
	}

	var blocks []string
	for _, call := range agg.ToolCalls {
		var b strings.Builder
		fmt.Fprintf(&b, "<tool_call name=%q>\n", call.FunctionName)
		b.WriteString(prettyOrRaw(call.FunctionArgs))
		b.WriteString("\n</tool_call>")
		if res, ok := resultByID[call.ToolCallID]; ok {
			fmt.Fprintf(&b, "\n<tool_response name=%q>\n", call.FunctionName)
			b.WriteString(prettyOrRaw(res.Result))
			b.WriteString("\n</tool_response>")
		}
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n"+separator+"\n")
}

func prettyOrRaw(raw string) string {
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return raw
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return raw
	}
	return strings.TrimRight(buf.String(), "\n")
}
