package toolwire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/core/internal/message"
)

func TestEncodeDecodeRoundTripsShape(t *testing.T) {
	ident := message.Ident{ThreadID: "t1", RunID: "r1"}
	agg := message.ToolsCallAggregateMessage{
		Ident: ident,
		ToolCalls: []message.ToolCallMessage{
			{Ident: ident, ToolCallID: "a", FunctionName: "get_weather", FunctionArgs: `{"city":"SF"}`},
			{Ident: ident, ToolCallID: "b", FunctionName: "get_time", FunctionArgs: `{"tz":"PST"}`},
		},
		Results: []message.ToolCallResultMessage{
			{Ident: ident, ToolCallID: "a", ToolName: "get_weather", Result: `{"tempF":72}`},
			{Ident: ident, ToolCallID: "b", ToolName: "get_time", Result: "3:04pm"},
		},
	}

	encoded := Encode(agg)
	assert.Contains(t, encoded, `<tool_call name="get_weather">`)
	assert.Contains(t, encoded, "---")
	assert.Contains(t, encoded, `<tool_response name="get_time">`)

	decoded := Decode(ident, encoded)
	require.Len(t, decoded.ToolCalls, 2)
	require.Len(t, decoded.Results, 2)
	assert.Equal(t, "get_weather", decoded.ToolCalls[0].FunctionName)
	assert.Equal(t, "get_time", decoded.ToolCalls[1].FunctionName)
	assert.Equal(t, decoded.ToolCalls[0].ToolCallID, decoded.Results[0].ToolCallID)
}
