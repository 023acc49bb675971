package toolregistry

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/agentcore/core/internal/errs"
	"github.com/agentcore/core/internal/message"
)

// Publisher is the subset of internal/pubsub.Publisher the Executor needs:
// deliver one result message to every subscriber of a session as soon as
// that one handler finishes, rather than batching.
type Publisher interface {
	Publish(ctx context.Context, sessionID string, m message.Message) error
}

// Executor dispatches one turn's local ToolCallMessages concurrently,
// bounded by a weighted semaphore (default weight = CPU count), publishing
// each ToolCallResultMessage immediately upon completion.
type Executor struct {
	registry *Registry
	pub      Publisher
	sem      *semaphore.Weighted
}

// NewExecutor builds an Executor. concurrency <= 0 defaults to
// runtime.NumCPU().
func NewExecutor(registry *Registry, pub Publisher, concurrency int) *Executor {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	return &Executor{registry: registry, pub: pub, sem: semaphore.NewWeighted(int64(concurrency))}
}

// Execute runs every locally-targeted call in calls concurrently, publishing
// each ToolCallResultMessage to sessionID as soon as it completes, and
// returns every result in completion order (never call order) once all have
// finished. Calls targeting message.ExecutionProviderServer are observed but
// never locally invoked and produce no result from this Executor.
func (e *Executor) Execute(
	ctx context.Context, sessionID string, provider string, filter Filter, calls []message.ToolCallMessage,
) []message.ToolCallResultMessage {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results []message.ToolCallResultMessage
	)

	for _, call := range calls {
		if call.ExecutionTarget == message.ExecutionProviderServer {
			continue
		}
		call := call
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := e.dispatch(ctx, provider, filter, call)
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
			// Best effort: a publish failure (session closed, cancellation)
			// does not abort other in-flight handlers.
			_ = e.pub.Publish(ctx, sessionID, result)
		}()
	}
	wg.Wait()
	return results
}

func (e *Executor) dispatch(
	ctx context.Context, provider string, filter Filter, call message.ToolCallMessage,
) message.ToolCallResultMessage {
	base := message.ToolCallResultMessage{
		Ident:           call.Ident,
		ToolCallID:      call.ToolCallID,
		ToolName:        call.FunctionName,
		ExecutionTarget: call.ExecutionTarget,
	}

	decision := filter.Evaluate(provider, call.FunctionName)
	if !decision.Allowed {
		rej := errs.NewFilterRejection(call.FunctionName, decision.Rule)
		base.IsError = true
		base.Result = filterRejectionResult(rej)
		return base
	}

	contract, handler, ok := e.registry.Lookup(call.FunctionName)
	if !ok {
		base.IsError = true
		base.Result = availableFunctionsError(e.registry, call.FunctionName)
		return base
	}

	if err := contract.Validate(call.FunctionArgs); err != nil {
		base.IsError = true
		base.Result = errorResult(errs.NewValidationError(call.FunctionName, err))
		return base
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		base.IsError = true
		base.Result = errorResult(errs.NewCancellationRequested(err))
		return base
	}
	defer e.sem.Release(1)

	result, err := e.safeInvoke(ctx, handler, call.FunctionArgs)
	if err != nil {
		toolErr := errs.NewToolError(call.FunctionName, "handler failed", err)
		base.IsError = true
		base.Result = errorResult(toolErr)
		return base
	}
	base.Result = result
	return base
}

// safeInvoke recovers a handler panic and converts it into an error so one
// misbehaving tool never brings down the turn's other concurrent handlers.
func (e *Executor) safeInvoke(ctx context.Context, handler Handler, argsJSON string) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return handler(ctx, argsJSON)
}
