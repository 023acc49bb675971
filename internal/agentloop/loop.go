// Package agentloop implements the Agent Loop: one goroutine per thread
// that drains queued user input, drives a provider through however many
// turns a run needs, dispatches local tool calls between turns, and emits
// the RunAssignment/RunCompleted lifecycle events every subscriber observes.
// The loop is deliberately non-durable: state lives in process memory and a
// run that outlives the process is not resumed.
package agentloop

import (
	"context"
	"sync"
	"time"

	"github.com/agentcore/core/internal/errs"
	"github.com/agentcore/core/internal/functioncontract"
	"github.com/agentcore/core/internal/ids"
	"github.com/agentcore/core/internal/message"
	"github.com/agentcore/core/internal/pipeline"
	"github.com/agentcore/core/internal/provider"
	"github.com/agentcore/core/internal/telemetry"
	"github.com/agentcore/core/internal/toolregistry"
)

// State enumerates the per-thread lifecycle state machine.
type State int

// Recognized states.
const (
	StateIdle State = iota
	StateDraining
	StateAssigning
	StateTurning
	StateExecuting
	StateCompleting
	StateForking
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDraining:
		return "draining"
	case StateAssigning:
		return "assigning"
	case StateTurning:
		return "turning"
	case StateExecuting:
		return "executing"
	case StateCompleting:
		return "completing"
	case StateForking:
		return "forking"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// UserInput is one batch of inbound messages submitted to a thread.
type UserInput struct {
	Messages    []message.Message
	InputID     string
	ParentRunID string
}

// SendReceipt acknowledges a Submit call; it does not guarantee the input
// has been assigned to a run yet.
type SendReceipt struct {
	ReceiptID string
	InputID   string
	QueuedAt  time.Time
}

// ErrQueueClosed is returned by Submit once the loop has stopped.
var ErrQueueClosed = errs.NewFatal("input queue closed", nil)

// ModelCaller issues one provider streaming call for history under pctx and
// returns a provider.Streamer the pipeline can drain. Concrete adapters
// (internal/provider/anthropic, internal/provider/openai) are wrapped by the
// caller into this shape together with any configured middleware (rate
// limiting, tool-call injection).
type ModelCaller func(ctx context.Context, pctx provider.Context, history []message.Message) (provider.Streamer, error)

// Config parameterizes one thread's Loop.
type Config struct {
	ThreadID        string
	SystemPrompt    string
	MaxTurnsPerRun  int // 0 means unbounded
	InputBufferSize int // default 100

	// SubmitBlocksWhenFull selects the queue-full policy: block the
	// submitter until the loop drains (true) or fail fast (false).
	SubmitBlocksWhenFull bool

	Call ModelCaller

	Pipeline  *pipeline.Pipeline
	Publisher pipeline.Publisher

	Registry     *toolregistry.Registry
	Executor     *toolregistry.Executor
	Filter       toolregistry.Filter
	ProviderName string

	Functions []*functioncontract.FunctionContract

	Telemetry telemetry.Set
}

// queuedInput pairs a UserInput with the receipt already handed back to the
// caller, so the drive loop can echo InputIDs into RunAssignment.
type queuedInput struct {
	input   UserInput
	receipt SendReceipt
}

// Loop drives a single thread's run lifecycle. One Loop exists per thread;
// Start launches its single consumer goroutine.
type Loop struct {
	cfg Config

	mu          sync.Mutex
	state       State
	history     []message.Message
	closed      bool
	completions map[string]message.RunCompleted

	in   chan queuedInput
	quit chan struct{}
}

// New constructs a Loop for cfg.ThreadID. Call Start to begin draining
// input.
func New(cfg Config) *Loop {
	if cfg.InputBufferSize <= 0 {
		cfg.InputBufferSize = 100
	}
	if cfg.Telemetry.Logger == nil {
		cfg.Telemetry = telemetry.Noop()
	}
	return &Loop{
		cfg:         cfg,
		state:       StateIdle,
		completions: make(map[string]message.RunCompleted),
		in:          make(chan queuedInput, cfg.InputBufferSize),
		quit:        make(chan struct{}),
	}
}

// Submit enqueues userInput for assignment to a run and returns immediately.
// Submissions are thread-safe and do not block on run completion. When the
// queue is full, Submit blocks or fails per Config.SubmitBlocksWhenFull.
func (l *Loop) Submit(input UserInput) (SendReceipt, error) {
	select {
	case <-l.quit:
		return SendReceipt{}, ErrQueueClosed
	default:
	}
	if input.InputID == "" {
		input.InputID = ids.New()
	}
	receipt := SendReceipt{ReceiptID: ids.New(), InputID: input.InputID, QueuedAt: time.Now()}
	qi := queuedInput{input: input, receipt: receipt}
	if l.cfg.SubmitBlocksWhenFull {
		select {
		case l.in <- qi:
			return receipt, nil
		case <-l.quit:
			return SendReceipt{}, ErrQueueClosed
		}
	}
	select {
	case l.in <- qi:
		return receipt, nil
	case <-l.quit:
		return SendReceipt{}, ErrQueueClosed
	default:
		return SendReceipt{}, errs.NewFatal("input queue full", nil)
	}
}

// State returns the loop's current lifecycle state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// History returns a snapshot of the thread's joined-message history.
func (l *Loop) History() []message.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]message.Message, len(l.history))
	copy(out, l.history)
	return out
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// Start runs the loop's drive body until ctx is canceled or Stop closes the
// input queue. It runs in its own goroutine, one per thread, per the
// concurrency model.
func (l *Loop) Start(ctx context.Context) {
	for {
		l.setState(StateDraining)
		batch, ok := l.awaitBatch(ctx)
		if !ok {
			l.setState(StateIdle)
			return
		}
		l.runOnce(ctx, batch)
		l.setState(StateIdle)
	}
}

// Stop closes the input queue; Submit calls after Stop return
// ErrQueueClosed. In-flight runs complete normally. The input channel itself
// is never closed, so no concurrent Submit can panic on a closed channel.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()
	close(l.quit)
}

// awaitBatch blocks for at least one queued input, then drains every input
// immediately available without further blocking (the "initial batch").
func (l *Loop) awaitBatch(ctx context.Context) ([]queuedInput, bool) {
	select {
	case qi := <-l.in:
		batch := []queuedInput{qi}
		for {
			select {
			case next := <-l.in:
				batch = append(batch, next)
			default:
				return batch, true
			}
		}
	case <-l.quit:
		// Drain anything raced in before the queue closed, then exit.
		if batch := l.drainNonBlocking(); len(batch) > 0 {
			return batch, true
		}
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

// drainNonBlocking returns every input currently queued without blocking,
// used for mid-run injection polling between turns.
func (l *Loop) drainNonBlocking() []queuedInput {
	var batch []queuedInput
	for {
		select {
		case qi := <-l.in:
			batch = append(batch, qi)
		default:
			return batch
		}
	}
}
