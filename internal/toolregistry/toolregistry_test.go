package toolregistry

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/core/internal/functioncontract"
	"github.com/agentcore/core/internal/message"
)

type recordingPublisher struct {
	mu       sync.Mutex
	received []message.Message
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, m message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.received = append(p.received, m)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.received)
}

func weatherContract() *functioncontract.FunctionContract {
	return &functioncontract.FunctionContract{
		Name: "get_weather",
		Parameters: []functioncontract.Parameter{
			{Name: "city", Type: "string", Required: true},
		},
	}
}

func TestFilterEvaluationOrder(t *testing.T) {
	f := Filter{
		DisabledProviders: []string{"bedrock"},
		ProviderBlock:     map[string][]string{"anthropic": {"danger_*"}},
		ProviderAllow:     map[string][]string{"anthropic": {"get_*"}},
		GlobalBlock:       []string{"shutdown"},
	}

	d := f.Evaluate("bedrock", "get_weather")
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Rule, "provider-disabled")

	d = f.Evaluate("anthropic", "danger_delete")
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Rule, "provider-blocked")

	d = f.Evaluate("anthropic", "get_weather")
	assert.True(t, d.Allowed)

	d = f.Evaluate("anthropic", "other_fn")
	assert.False(t, d.Allowed, "provider-allow list present means non-matching functions are rejected")

	d = f.Evaluate("openai", "shutdown")
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Rule, "global-blocked")

	d = f.Evaluate("openai", "anything_else")
	assert.True(t, d.Allowed)
}

func TestFilterWildcardBoundaries(t *testing.T) {
	assert.True(t, matches("*", ""), "bare * matches the empty string")
	assert.True(t, matches("*", "anything"))
	assert.True(t, matches("get_*", "GET_WEATHER"), "prefix patterns match case-insensitively")
	assert.True(t, matches("*_lookup", "DNS_Lookup"))
	assert.True(t, matches("*weather*", "get_Weather_now"))
	assert.False(t, matches("get_*", "fetch_weather"))
	assert.True(t, matches("exact", "EXACT"))
}

func TestExecutorDispatchesAndPublishesImmediately(t *testing.T) {
	reg := New()
	reg.Register(weatherContract(), func(_ context.Context, args string) (string, error) {
		var p struct{ City string }
		_ = json.Unmarshal([]byte(args), &p)
		return `{"tempF":72}`, nil
	})
	pub := &recordingPublisher{}
	exec := NewExecutor(reg, pub, 2)

	ident := message.Ident{ThreadID: "t1", RunID: "r1"}
	calls := []message.ToolCallMessage{
		{Ident: ident, ToolCallID: "tc1", FunctionName: "get_weather", FunctionArgs: `{"city":"SF"}`, ExecutionTarget: message.ExecutionLocalFunction},
	}

	results := exec.Execute(context.Background(), "sess1", "anthropic", Filter{}, calls)
	require.Len(t, results, 1)
	assert.False(t, results[0].IsError)
	assert.Equal(t, `{"tempF":72}`, results[0].Result)
	assert.Equal(t, 1, pub.count())
}

func TestExecutorUnknownFunctionSelfCorrects(t *testing.T) {
	reg := New()
	reg.Register(weatherContract(), func(context.Context, string) (string, error) { return "ok", nil })
	pub := &recordingPublisher{}
	exec := NewExecutor(reg, pub, 2)

	ident := message.Ident{ThreadID: "t1", RunID: "r1"}
	calls := []message.ToolCallMessage{
		{Ident: ident, ToolCallID: "tc1", FunctionName: "nonexistent", ExecutionTarget: message.ExecutionLocalFunction},
	}
	results := exec.Execute(context.Background(), "sess1", "anthropic", Filter{}, calls)
	require.Len(t, results, 1)
	assert.True(t, results[0].IsError)
	assert.Contains(t, results[0].Result, "available_functions")
	assert.Contains(t, results[0].Result, "get_weather")
}

func TestExecutorHandlerPanicBecomesToolError(t *testing.T) {
	reg := New()
	reg.Register(weatherContract(), func(context.Context, string) (string, error) { panic("boom") })
	pub := &recordingPublisher{}
	exec := NewExecutor(reg, pub, 2)

	ident := message.Ident{ThreadID: "t1", RunID: "r1"}
	calls := []message.ToolCallMessage{
		{Ident: ident, ToolCallID: "tc1", FunctionName: "get_weather", FunctionArgs: `{"city":"SF"}`, ExecutionTarget: message.ExecutionLocalFunction},
	}
	results := exec.Execute(context.Background(), "sess1", "anthropic", Filter{}, calls)
	require.Len(t, results, 1)
	assert.True(t, results[0].IsError)
}

func TestExecutorSkipsProviderServerTargets(t *testing.T) {
	reg := New()
	pub := &recordingPublisher{}
	exec := NewExecutor(reg, pub, 2)

	ident := message.Ident{ThreadID: "t1", RunID: "r1"}
	calls := []message.ToolCallMessage{
		{Ident: ident, ToolCallID: "tc1", FunctionName: "remote_search", ExecutionTarget: message.ExecutionProviderServer},
	}
	results := exec.Execute(context.Background(), "sess1", "anthropic", Filter{}, calls)
	assert.Empty(t, results)
	assert.Equal(t, 0, pub.count())
}

func TestExecutorValidationRejectsMalformedArgs(t *testing.T) {
	reg := New()
	reg.Register(weatherContract(), func(context.Context, string) (string, error) { return "ok", nil })
	pub := &recordingPublisher{}
	exec := NewExecutor(reg, pub, 2)

	ident := message.Ident{ThreadID: "t1", RunID: "r1"}
	calls := []message.ToolCallMessage{
		{Ident: ident, ToolCallID: "tc1", FunctionName: "get_weather", FunctionArgs: `{}`, ExecutionTarget: message.ExecutionLocalFunction},
	}
	results := exec.Execute(context.Background(), "sess1", "anthropic", Filter{}, calls)
	require.Len(t, results, 1)
	assert.True(t, results[0].IsError, "missing required 'city' argument should fail schema validation")
}
