// Package provider defines the contract every provider stream parser
// satisfies: translate a provider's streaming wire events into the
// normalized message.Message stream. Concrete adapters live in the
// anthropic and openai subpackages; the agent loop and middleware pipeline
// depend only on this package's Streamer interface, never on a concrete SDK.
package provider

import (
	"io"

	"github.com/agentcore/core/internal/message"
)

// Context carries the correlation identifiers a streamer stamps onto every
// message it emits. MessageOrderIdx is intentionally left zero: per the data
// model, dense ordering is assigned downstream by the transformation
// middleware, not by the provider parser.
type Context struct {
	ThreadID     string
	RunID        string
	GenerationID string
}

func (c Context) ident() message.Ident {
	return message.Ident{ThreadID: c.ThreadID, RunID: c.RunID, GenerationID: c.GenerationID}
}

// Streamer yields normalized messages from one provider streaming call.
// Recv returns io.EOF once the stream has delivered its terminal chunk.
type Streamer interface {
	Recv() (message.Message, error)
	Close() error
}

// ErrStreamClosed is io.EOF, the error Recv returns once the stream has
// ended normally. After Close, the adapters' Recv returns the context's
// cancellation error instead.
var ErrStreamClosed = io.EOF
