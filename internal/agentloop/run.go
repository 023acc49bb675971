package agentloop

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/agentcore/core/internal/errs"
	"github.com/agentcore/core/internal/ids"
	"github.com/agentcore/core/internal/message"
	"github.com/agentcore/core/internal/pipeline"
	"github.com/agentcore/core/internal/provider"
)

// runOnce drives one run to completion from an initial batch of queued
// input: it assigns runId/generationId, appends the batch to history, and
// executes turns until a terminal condition, polling for mid-run injection
// between turns, then emits exactly one RunCompleted.
func (l *Loop) runOnce(ctx context.Context, batch []queuedInput) {
	l.setState(StateAssigning)

	runID := ids.New()
	generationID := ids.New()
	parentRunID := forkParentID(batch)
	ident := func() message.Ident {
		return message.Ident{ThreadID: l.cfg.ThreadID, RunID: runID, ParentRunID: parentRunID, GenerationID: generationID}
	}

	tel := l.cfg.Telemetry
	started := time.Now()
	ctx, span := tel.Tracer.Start(ctx, "agent.run")
	defer span.End()

	if parentRunID != "" {
		l.setState(StateForking)
		l.applyFork(parentRunID, runID)
	}

	inputIDs := inputIDsOf(batch)
	tel.Logger.Info(ctx, "run assigned", "threadId", l.cfg.ThreadID, "runId", runID, "inputs", len(batch))
	l.publish(ctx, message.RunAssignment{Ident: ident(), InputIDs: inputIDs, WasInjected: false})
	l.appendHistory(stampInputs(flattenMessages(batch), l.cfg.ThreadID, runID))

	turnCount := 0
	var lastErr error
	for {
		l.setState(StateTurning)
		hadToolCalls, turnErr := l.runTurn(ctx, runID, generationID)
		turnCount++
		if turnErr != nil {
			lastErr = turnErr
			break
		}
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
		if !hadToolCalls {
			break
		}
		if l.cfg.MaxTurnsPerRun > 0 && turnCount >= l.cfg.MaxTurnsPerRun {
			if l.cfg.Telemetry.Logger != nil {
				l.cfg.Telemetry.Logger.Warn(ctx, "max turns per run reached", "threadId", l.cfg.ThreadID, "runId", runID, "turns", turnCount)
			}
			break
		}

		// Each provider call is its own generation.
		generationID = ids.New()

		// Poll for mid-run injection between turns.
		injected := l.drainNonBlocking()
		if len(injected) > 0 {
			l.setState(StateAssigning)
			l.publish(ctx, message.RunAssignment{Ident: ident(), InputIDs: inputIDsOf(injected), WasInjected: true})
			l.appendHistory(stampInputs(flattenMessages(injected), l.cfg.ThreadID, runID))
		}
	}

	if lastErr != nil {
		l.setState(StateFailed)
	} else {
		l.setState(StateCompleting)
	}
	completed := message.RunCompleted{
		Ident:          ident(),
		CompletedRunID: runID,
		IsError:        lastErr != nil,
	}
	if lastErr != nil {
		completed.ErrorMessage = lastErr.Error()
	}
	pending := l.drainNonBlocking()
	if len(pending) > 0 {
		completed.HasPendingMessages = true
		completed.PendingMessageCount = len(pending)
		// Requeue pending input for the next run's initial batch.
		for _, qi := range pending {
			select {
			case l.in <- qi:
			default:
			}
		}
	}
	l.mu.Lock()
	l.completions[runID] = completed
	l.mu.Unlock()
	l.publish(ctx, completed)

	if lastErr != nil {
		span.RecordError(lastErr)
		span.SetStatus(codes.Error, lastErr.Error())
		tel.Logger.Error(ctx, "run failed", "threadId", l.cfg.ThreadID, "runId", runID, "error", lastErr.Error())
	} else {
		tel.Logger.Info(ctx, "run completed", "threadId", l.cfg.ThreadID, "runId", runID, "turns", turnCount)
	}
	tel.Metrics.IncCounter("agent_runs_total", 1, "thread", l.cfg.ThreadID)
	tel.Metrics.RecordTimer("agent_run_duration", time.Since(started), "thread", l.cfg.ThreadID)
}

// runTurn constructs the effective provider call for the thread's current
// history, drains the pipeline, appends joined messages to history, and
// executes any local tool calls before returning. It reports whether the
// turn produced tool calls (meaning another turn should follow).
func (l *Loop) runTurn(ctx context.Context, runID, generationID string) (hadToolCalls bool, err error) {
	tel := l.cfg.Telemetry
	ctx, span := tel.Tracer.Start(ctx, "agent.turn")
	defer span.End()
	tel.Metrics.IncCounter("agent_turns_total", 1, "thread", l.cfg.ThreadID)

	pctx := provider.Context{ThreadID: l.cfg.ThreadID, RunID: runID, GenerationID: generationID}
	requestHistory := l.providerRequestHistory()

	stream, callErr := l.cfg.Call(ctx, pctx, requestHistory)
	if callErr != nil {
		return false, callErr
	}
	defer stream.Close()

	opts := pipeline.Options{
		ThreadID:     l.cfg.ThreadID,
		RunID:        runID,
		GenerationID: generationID,
		SessionID:    l.cfg.ThreadID,
		Functions:    l.cfg.Functions,
	}

	var localCalls []message.ToolCallMessage
	onToolCall := func(tc message.ToolCallMessage) {
		if tc.ExecutionTarget == message.ExecutionLocalFunction {
			localCalls = append(localCalls, tc)
		}
	}

	out := l.cfg.Pipeline.Process(ctx, stream, opts, onToolCall)
	var joined []message.Message
	var streamErr error
	for m := range out {
		if e, ok := m.(message.ErrorMessage); ok {
			// The pipeline surfaces a mid-generation provider failure as a
			// terminal ErrorMessage after flushing buffered updates.
			if !e.Recoverable {
				streamErr = errs.NewProviderError(l.cfg.ProviderName, errors.New(e.Message))
			}
			continue
		}
		if !message.IsUpdate(m) && isConversational(m) {
			joined = append(joined, m)
		}
	}
	l.appendHistory(joined)
	if streamErr != nil {
		return false, streamErr
	}

	if len(localCalls) == 0 {
		return false, nil
	}

	l.setState(StateExecuting)
	tel.Logger.Debug(ctx, "dispatching tool calls", "threadId", l.cfg.ThreadID, "runId", runID, "count", len(localCalls))
	tel.Metrics.IncCounter("agent_tool_dispatch_total", float64(len(localCalls)), "thread", l.cfg.ThreadID)
	results := l.cfg.Executor.Execute(ctx, l.cfg.ThreadID, l.cfg.ProviderName, l.cfg.Filter, localCalls)
	resultMsgs := make([]message.Message, 0, len(results))
	for _, r := range results {
		resultMsgs = append(resultMsgs, r)
	}
	l.appendHistory(resultMsgs)

	return true, nil
}

// providerRequestHistory snapshots history, aggregating tool-call/response
// pairs for the outbound request per MessageTransformation, and prepends
// the configured system prompt.
func (l *Loop) providerRequestHistory() []message.Message {
	history := pipeline.AggregateForProvider(l.History())
	if l.cfg.SystemPrompt == "" {
		return history
	}
	out := make([]message.Message, 0, len(history)+1)
	out = append(out, message.TextMessage{
		Ident: message.Ident{ThreadID: l.cfg.ThreadID},
		Role:  message.RoleSystem,
		Text:  l.cfg.SystemPrompt,
	})
	return append(out, history...)
}

func (l *Loop) appendHistory(msgs []message.Message) {
	if len(msgs) == 0 {
		return
	}
	l.mu.Lock()
	l.history = append(l.history, msgs...)
	l.mu.Unlock()
}

func (l *Loop) publish(ctx context.Context, m message.Message) {
	if l.cfg.Publisher == nil {
		return
	}
	_ = l.cfg.Publisher.Publish(ctx, l.cfg.ThreadID, m)
}

// isConversational reports whether m belongs in the thread's history.
// Usage accounting and lifecycle/event-only variants flow to subscribers but
// never into history, which holds only the turns a provider should see on
// the next request.
func isConversational(m message.Message) bool {
	switch m.(type) {
	case message.TextMessage, message.ReasoningMessage, message.ToolCallMessage,
		message.ToolCallResultMessage, message.ToolsCallAggregateMessage:
		return true
	default:
		return false
	}
}

// stampInputs marks inbound user messages with the thread and run they were
// assigned to, so fork truncation can locate run boundaries in history.
func stampInputs(msgs []message.Message, threadID, runID string) []message.Message {
	out := make([]message.Message, len(msgs))
	for i, m := range msgs {
		switch v := m.(type) {
		case message.TextMessage:
			v.ThreadID, v.RunID = threadID, runID
			out[i] = v
		case message.ToolCallResultMessage:
			v.ThreadID, v.RunID = threadID, runID
			out[i] = v
		case message.ToolsCallAggregateMessage:
			v.ThreadID, v.RunID = threadID, runID
			out[i] = v
		default:
			out[i] = m
		}
	}
	return out
}

func flattenMessages(batch []queuedInput) []message.Message {
	var out []message.Message
	for _, qi := range batch {
		out = append(out, qi.input.Messages...)
	}
	return out
}

func inputIDsOf(batch []queuedInput) []string {
	ids := make([]string, 0, len(batch))
	for _, qi := range batch {
		ids = append(ids, qi.input.InputID)
	}
	return ids
}

func forkParentID(batch []queuedInput) string {
	for _, qi := range batch {
		if qi.input.ParentRunID != "" {
			return qi.input.ParentRunID
		}
	}
	return ""
}
