// Package persistence defines the Store facade the Agent Loop and
// transports depend on for durable history: appending messages/events,
// loading a session, listing its messages, and generating monotonic memory
// ids. Two backends satisfy Store: internal/persistence/sqlite (the default,
// pure-Go, no-cgo embedded store) and internal/persistence/mongo (for
// deployments that already run MongoDB as their document store).
package persistence

import (
	"context"
	"time"

	"github.com/agentcore/core/internal/message"
)

// SessionStatus enumerates the lifecycle of a persisted session row.
type SessionStatus string

// Recognized statuses.
const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
)

// Session is the persisted row shape backing the sessions table/collection.
type Session struct {
	ID             string
	ConversationID string
	StartTime      time.Time
	EndTime        *time.Time
	Status         SessionStatus
	Metadata       map[string]any
}

// EventRecord is the persisted row shape backing the events
// table/collection. Events are optional metadata: the full history can be
// reconstructed from messages alone.
type EventRecord struct {
	ID        int64
	SessionID string
	EventType string
	Timestamp time.Time
}

// MessageRecord is the persisted row shape backing the messages
// table/collection: the message is stored as opaque JSON for accurate
// replay.
type MessageRecord struct {
	ID        int64
	SessionID string
	Message   message.Message
	Timestamp time.Time
	Type      string
}

// Store is the persistence facade every backend implements.
type Store interface {
	// CreateSession inserts a new session row, or returns the existing one
	// unchanged if sessionID is already present, whatever its status.
	CreateSession(ctx context.Context, sessionID, conversationID string, startTime time.Time) (Session, error)
	// LoadSession returns the session row for sessionID.
	LoadSession(ctx context.Context, sessionID string) (Session, error)
	// EndSession marks a session ended at endTime.
	EndSession(ctx context.Context, sessionID string, endTime time.Time) (Session, error)
	// AppendMessage persists m under sessionID, stamped with timestamp.
	AppendMessage(ctx context.Context, sessionID string, m message.Message, timestamp time.Time) error
	// AppendEvent persists an event row under sessionID.
	AppendEvent(ctx context.Context, sessionID, eventType string, timestamp time.Time) error
	// ListMessages returns every MessageRecord for sessionID in timestamp order.
	ListMessages(ctx context.Context, sessionID string) ([]MessageRecord, error)
	// NextMemoryID advances and returns the monotonic memory id sequence.
	NextMemoryID(ctx context.Context) (int64, error)
	// Close releases the backend's underlying connection/client.
	Close() error
}

// ErrSessionNotFound is returned by LoadSession when sessionID is unknown.
var ErrSessionNotFound = errSessionNotFound{}

type errSessionNotFound struct{}

func (errSessionNotFound) Error() string { return "persistence: session not found" }
