// Package pipeline implements the streaming middleware chain that sits
// between the Agent Loop and a provider.Streamer: it assigns dense
// per-generation ordering, decodes tool-call argument fragments, joins
// streaming update sequences into finalized messages, publishes every
// message to session subscribers, and aggregates tool traffic for the next
// provider call. Each concern is its own small composable stage rather than
// one monolith.
package pipeline

import (
	"context"
	"errors"
	"io"

	"github.com/agentcore/core/internal/functioncontract"
	"github.com/agentcore/core/internal/message"
)

// Publisher is the subset of the Event Publisher contract the pipeline
// depends on; internal/pubsub.Publisher satisfies it.
type Publisher interface {
	Publish(ctx context.Context, sessionID string, m message.Message) error
}

// Options carries the per-generation knobs a pipeline run is parameterized
// by: the identifiers to stamp, and the configured function contracts.
// Process does not read Functions and does not call ToolCallInjection, so
// the contracts are not passed on to the provider call.
type Options struct {
	ThreadID     string
	RunID        string
	GenerationID string
	SessionID    string
	Functions    []*functioncontract.FunctionContract
}

// ToolCallInjection implements the upstream half of the first standard
// middleware: it copies configured function contracts into outbound
// request functions, unless the caller already specified some explicitly,
// in which case the caller's choice is left untouched.
func ToolCallInjection(existing []*functioncontract.FunctionContract, configured []*functioncontract.FunctionContract) []*functioncontract.FunctionContract {
	if len(existing) > 0 {
		return existing
	}
	return configured
}

// Pipeline drives one generation's downstream message stream: every message
// a provider.Streamer yields passes through order assignment, fragment
// decoding, update joining, and publishing, in that order. Process returns a
// channel the Agent Loop drains; the loop owns history and filters the
// combined update+joined stream down to joined-only messages before
// appending.
type Pipeline struct {
	pub Publisher
}

// New builds a Pipeline that publishes every observed message through pub.
func New(pub Publisher) *Pipeline {
	return &Pipeline{pub: pub}
}

// Recv is the minimal streaming source the pipeline consumes: a provider
// parser's Recv/Close pair. Defined locally (rather than importing
// internal/provider) so this package has no dependency on concrete provider
// adapters; internal/provider.Streamer satisfies it structurally.
type Recv interface {
	Recv() (message.Message, error)
}

// Process drains src, applies order assignment + fragment decoding + update
// joining, publishes every resulting message (update and joined alike) to
// opts.SessionID, and invokes onToolCall once per ToolCallMessage it emits,
// whatever its ExecutionTarget; the callback decides which calls to
// dispatch. It returns the full combined stream for the caller to
// additionally route into history (joined messages only).
//
// Process returns at once; its goroutine stops when src is exhausted
// (Recv returns io.EOF or an error) or ctx is canceled, and the returned
// channel is closed in either case.
func (p *Pipeline) Process(ctx context.Context, src Recv, opts Options, onToolCall func(message.ToolCallMessage)) <-chan message.Message {
	out := make(chan message.Message, 64)
	go func() {
		defer close(out)
		orders := newOrderAssigner()
		frags := newFragmentAttacher()
		joiner := newJoiner()

		emit := func(m message.Message) bool {
			// Subscribers see the message before the caller does, per the
			// MessagePublishing positioning on the downstream path.
			if p.pub != nil {
				if err := p.pub.Publish(ctx, opts.SessionID, m); err != nil {
					return false
				}
			}
			select {
			case out <- m:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var streamErr error
		for {
			m, err := src.Recv()
			if err != nil {
				if !errors.Is(err, io.EOF) && ctx.Err() == nil {
					streamErr = err
				}
				break
			}
			m = stampIdentity(m, opts.ThreadID, opts.RunID, opts.GenerationID)
			m = orders.stamp(m, opts.GenerationID)
			if u, ok := m.(message.ToolCallUpdateMessage); ok {
				m = frags.attach(u)
			}
			for _, out := range joiner.push(m) {
				if tc, ok := out.(message.ToolCallMessage); ok && onToolCall != nil {
					onToolCall(tc)
				}
				if !emit(out) {
					return
				}
			}
		}
		for _, out := range joiner.flush() {
			if tc, ok := out.(message.ToolCallMessage); ok && onToolCall != nil {
				onToolCall(tc)
			}
			if !emit(out) {
				return
			}
		}
		if streamErr != nil {
			// Buffered updates were flushed best-effort above; the failure
			// itself surfaces as a terminal, non-recoverable ErrorMessage the
			// loop converts into RunCompleted{isError:true}.
			errMsg := orders.stamp(message.ErrorMessage{
				Ident:   message.Ident{ThreadID: opts.ThreadID, RunID: opts.RunID, GenerationID: opts.GenerationID},
				Code:    "PROVIDER_ERROR",
				Message: streamErr.Error(),
			}, opts.GenerationID)
			emit(errMsg)
		}
	}()
	return out
}
