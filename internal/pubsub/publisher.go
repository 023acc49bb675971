// Package pubsub implements the Event Publisher: a typed, per-session
// broker that fans out every message produced by a run to however many
// subscribers are attached (server-sent events, socket sessions, test
// harnesses), preserving publish order per subscriber and honoring
// backpressure.
package pubsub

import (
	"context"
	"sync"

	"github.com/agentcore/core/internal/errs"
	"github.com/agentcore/core/internal/message"
)

// BackpressurePolicy controls what a Publisher does when a subscriber's
// buffer is full.
type BackpressurePolicy int

const (
	// PolicyBlock blocks the publishing producer until the slow subscriber
	// drains or is unsubscribed. This is the default.
	PolicyBlock BackpressurePolicy = iota
	// PolicyDrop drops the message for that subscriber and surfaces a
	// visible errs.BackpressureDrop through Options.OnDrop, if set.
	PolicyDrop
)

// DefaultBufferSize is the default per-subscriber bounded buffer capacity.
const DefaultBufferSize = 1000

// Options configures a Publisher.
type Options struct {
	BufferSize int
	Policy     BackpressurePolicy
	// OnDrop is invoked (if non-nil) whenever PolicyDrop discards a message.
	OnDrop func(sessionID string, err error)
}

// Publisher multiplexes messages to per-session subscriber sets. No
// cross-session leakage: sessionId strictly partitions streams.
type Publisher struct {
	opts Options

	mu   sync.Mutex
	subs map[string]map[*subscription]struct{}
}

// New constructs a Publisher. A zero-value Options uses DefaultBufferSize
// and PolicyBlock.
func New(opts Options) *Publisher {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	return &Publisher{opts: opts, subs: make(map[string]map[*subscription]struct{})}
}

// subscription separates the internal bounded buffer (buf, which Publish
// writes and is never closed, so a racing unsubscribe can never make a
// producer panic) from the channel handed to the subscriber (out, closed by
// the forwarder goroutine once done closes).
type subscription struct {
	buf  chan message.Message
	out  chan message.Message
	done chan struct{}
	stop sync.Once
}

func (s *subscription) forward() {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case m := <-s.buf:
			select {
			case s.out <- m:
			case <-s.done:
				return
			}
		}
	}
}

func (s *subscription) release() {
	s.stop.Do(func() { close(s.done) })
}

// Subscribe registers a new subscriber for sessionID and returns a receive
// channel delivering every subsequent Publish call for that session, in
// publish order, plus an Unsubscribe func releasing it.
func (p *Publisher) Subscribe(sessionID string) (<-chan message.Message, func()) {
	sub := &subscription{
		buf:  make(chan message.Message, p.opts.BufferSize),
		out:  make(chan message.Message),
		done: make(chan struct{}),
	}
	p.mu.Lock()
	set, ok := p.subs[sessionID]
	if !ok {
		set = make(map[*subscription]struct{})
		p.subs[sessionID] = set
	}
	set[sub] = struct{}{}
	p.mu.Unlock()

	go sub.forward()

	unsubscribe := func() { p.unsubscribe(sessionID, sub) }
	return sub.out, unsubscribe
}

func (p *Publisher) unsubscribe(sessionID string, sub *subscription) {
	p.mu.Lock()
	if set, ok := p.subs[sessionID]; ok {
		if _, present := set[sub]; present {
			delete(set, sub)
			if len(set) == 0 {
				delete(p.subs, sessionID)
			}
		}
	}
	p.mu.Unlock()
	sub.release()
}

// CloseSession releases every subscriber attached to sessionID. Subsequent
// Publish calls for that session are no-ops.
func (p *Publisher) CloseSession(sessionID string) {
	p.mu.Lock()
	set := p.subs[sessionID]
	delete(p.subs, sessionID)
	p.mu.Unlock()
	for sub := range set {
		sub.release()
	}
}

// Publish delivers m to every subscriber of sessionID. Under PolicyBlock it
// blocks the caller (the loop) until every subscriber's buffer has room or
// ctx is canceled. Under PolicyDrop a full buffer is skipped for that
// subscriber and OnDrop is invoked with an errs.BackpressureDrop.
func (p *Publisher) Publish(ctx context.Context, sessionID string, m message.Message) error {
	p.mu.Lock()
	set := p.subs[sessionID]
	subs := make([]*subscription, 0, len(set))
	for sub := range set {
		subs = append(subs, sub)
	}
	p.mu.Unlock()

	for _, sub := range subs {
		if err := p.deliver(ctx, sessionID, sub, m); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) deliver(ctx context.Context, sessionID string, sub *subscription, m message.Message) error {
	switch p.opts.Policy {
	case PolicyDrop:
		select {
		case sub.buf <- m:
		case <-sub.done:
		default:
			err := errs.NewBackpressureDrop(sessionID)
			if p.opts.OnDrop != nil {
				p.opts.OnDrop(sessionID, err)
			}
		}
		return nil
	default: // PolicyBlock
		select {
		case sub.buf <- m:
			return nil
		case <-sub.done:
			return nil
		case <-ctx.Done():
			return errs.NewCancellationRequested(ctx.Err())
		}
	}
}
