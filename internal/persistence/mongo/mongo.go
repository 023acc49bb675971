// Package mongo implements internal/persistence.Store on top of
// go.mongodb.org/mongo-driver/v2, with collections mirroring the four
// logical tables of the sqlite backend: sessions, messages, events, and a
// single-document memory_id_sequence counter advanced with
// FindOneAndUpdate/$inc.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/agentcore/core/internal/message"
	"github.com/agentcore/core/internal/persistence"
)

const (
	defaultSessionsCollection = "sessions"
	defaultMessagesCollection = "messages"
	defaultEventsCollection   = "events"
	defaultCountersCollection = "memory_id_sequence"
	counterDocID              = "memory_id"
	defaultOpTimeout          = 5 * time.Second
)

// Options configures Open.
type Options struct {
	Client             *mongodriver.Client
	Database           string
	SessionsCollection string
	MessagesCollection string
	EventsCollection   string
	CountersCollection string
	Timeout            time.Duration
}

// Store is the mongo-driver/v2-backed persistence.Store implementation.
type Store struct {
	client   *mongodriver.Client
	sessions *mongodriver.Collection
	messages *mongodriver.Collection
	events   *mongodriver.Collection
	counters *mongodriver.Collection
	timeout  time.Duration
}

type sessionDoc struct {
	ID             string         `bson:"_id"`
	ConversationID string         `bson:"conversation_id,omitempty"`
	StartTime      time.Time      `bson:"start_time"`
	EndTime        *time.Time     `bson:"end_time,omitempty"`
	Status         string         `bson:"status"`
	Metadata       map[string]any `bson:"metadata,omitempty"`
}

type messageDoc struct {
	SessionID string    `bson:"session_id"`
	Payload   string    `bson:"payload"`
	Timestamp time.Time `bson:"timestamp"`
	Type      string    `bson:"message_type"`
}

type eventDoc struct {
	SessionID string    `bson:"session_id"`
	EventType string    `bson:"event_type"`
	Timestamp time.Time `bson:"timestamp"`
}

type counterDoc struct {
	ID    string `bson:"_id"`
	Value int64  `bson:"value"`
}

// Open builds a Store over an already-connected *mongodriver.Client,
// ensuring the (session_id, timestamp) message index exists.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("mongo: database name is required")
	}
	sessionsName := orDefault(opts.SessionsCollection, defaultSessionsCollection)
	messagesName := orDefault(opts.MessagesCollection, defaultMessagesCollection)
	eventsName := orDefault(opts.EventsCollection, defaultEventsCollection)
	countersName := orDefault(opts.CountersCollection, defaultCountersCollection)
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}

	db := opts.Client.Database(opts.Database)
	s := &Store{
		client:   opts.Client,
		sessions: db.Collection(sessionsName),
		messages: db.Collection(messagesName),
		events:   db.Collection(eventsName),
		counters: db.Collection(countersName),
		timeout:  timeout,
	}

	idxCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := s.messages.Indexes().CreateOne(idxCtx, mongodriver.IndexModel{
		Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "timestamp", Value: 1}},
	})
	if err != nil {
		return nil, fmt.Errorf("mongo: create message index: %w", err)
	}
	return s, nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// Close disconnects the underlying mongo client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// CreateSession inserts a new session document, returning the existing one
// unchanged if sessionID is already present.
func (s *Store) CreateSession(ctx context.Context, sessionID, conversationID string, startTime time.Time) (persistence.Session, error) {
	existing, err := s.LoadSession(ctx, sessionID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, persistence.ErrSessionNotFound) {
		return persistence.Session{}, err
	}
	cctx, cancel := s.withTimeout(ctx)
	defer cancel()
	doc := sessionDoc{ID: sessionID, ConversationID: conversationID, StartTime: startTime.UTC(), Status: string(persistence.SessionActive)}
	if _, err := s.sessions.InsertOne(cctx, doc); err != nil {
		return persistence.Session{}, fmt.Errorf("mongo: create session: %w", err)
	}
	return s.LoadSession(ctx, sessionID)
}

// LoadSession returns the session document for sessionID.
func (s *Store) LoadSession(ctx context.Context, sessionID string) (persistence.Session, error) {
	cctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var doc sessionDoc
	err := s.sessions.FindOne(cctx, bson.M{"_id": sessionID}).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return persistence.Session{}, persistence.ErrSessionNotFound
	}
	if err != nil {
		return persistence.Session{}, fmt.Errorf("mongo: load session: %w", err)
	}
	return persistence.Session{
		ID:             doc.ID,
		ConversationID: doc.ConversationID,
		StartTime:      doc.StartTime,
		EndTime:        doc.EndTime,
		Status:         persistence.SessionStatus(doc.Status),
		Metadata:       doc.Metadata,
	}, nil
}

// EndSession marks sessionID ended at endTime.
func (s *Store) EndSession(ctx context.Context, sessionID string, endTime time.Time) (persistence.Session, error) {
	cctx, cancel := s.withTimeout(ctx)
	defer cancel()
	end := endTime.UTC()
	_, err := s.sessions.UpdateOne(cctx,
		bson.M{"_id": sessionID},
		bson.M{"$set": bson.M{"end_time": end, "status": string(persistence.SessionEnded)}},
	)
	if err != nil {
		return persistence.Session{}, fmt.Errorf("mongo: end session: %w", err)
	}
	return s.LoadSession(ctx, sessionID)
}

// AppendMessage persists m under sessionID as opaque JSON.
func (s *Store) AppendMessage(ctx context.Context, sessionID string, m message.Message, timestamp time.Time) error {
	raw, err := message.Encode(m)
	if err != nil {
		return fmt.Errorf("mongo: encode message: %w", err)
	}
	cctx, cancel := s.withTimeout(ctx)
	defer cancel()
	doc := messageDoc{SessionID: sessionID, Payload: string(raw), Timestamp: timestamp.UTC(), Type: m.Kind()}
	if _, err := s.messages.InsertOne(cctx, doc); err != nil {
		return fmt.Errorf("mongo: append message: %w", err)
	}
	return nil
}

// AppendEvent persists an event document under sessionID.
func (s *Store) AppendEvent(ctx context.Context, sessionID, eventType string, timestamp time.Time) error {
	cctx, cancel := s.withTimeout(ctx)
	defer cancel()
	doc := eventDoc{SessionID: sessionID, EventType: eventType, Timestamp: timestamp.UTC()}
	if _, err := s.events.InsertOne(cctx, doc); err != nil {
		return fmt.Errorf("mongo: append event: %w", err)
	}
	return nil
}

// ListMessages returns every MessageRecord for sessionID in timestamp order.
func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]persistence.MessageRecord, error) {
	cctx, cancel := s.withTimeout(ctx)
	defer cancel()
	cur, err := s.messages.Find(cctx,
		bson.M{"session_id": sessionID},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("mongo: list messages: %w", err)
	}
	defer cur.Close(cctx)

	var out []persistence.MessageRecord
	for cur.Next(cctx) {
		var doc messageDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongo: decode message: %w", err)
		}
		decoded, err := message.Decode([]byte(doc.Payload))
		if err != nil {
			return nil, fmt.Errorf("mongo: decode message payload: %w", err)
		}
		out = append(out, persistence.MessageRecord{
			SessionID: sessionID,
			Message:   decoded,
			Timestamp: doc.Timestamp,
			Type:      doc.Type,
		})
	}
	return out, cur.Err()
}

// NextMemoryID advances and returns the monotonic memory id sequence using a
// single-document counter incremented atomically with $inc.
func (s *Store) NextMemoryID(ctx context.Context) (int64, error) {
	cctx, cancel := s.withTimeout(ctx)
	defer cancel()
	after := options.After
	var doc counterDoc
	err := s.counters.FindOneAndUpdate(
		cctx,
		bson.M{"_id": counterDocID},
		bson.M{"$inc": bson.M{"value": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(after),
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("mongo: advance memory id sequence: %w", err)
	}
	return doc.Value, nil
}
