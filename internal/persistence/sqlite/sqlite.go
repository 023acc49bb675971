// Package sqlite implements internal/persistence.Store on top of
// modernc.org/sqlite, a pure-Go, no-cgo driver. It owns one *sql.DB opened
// with WAL journaling and foreign keys enabled, bounded by SetMaxOpenConns
// per the concurrency & resource model's "per-connection semaphore limits
// concurrent DB work".
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/agentcore/core/internal/message"
	"github.com/agentcore/core/internal/persistence"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	conversation_id TEXT,
	start_time INTEGER NOT NULL,
	end_time INTEGER,
	status TEXT NOT NULL,
	metadata_json TEXT
);
CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	message_json TEXT NOT NULL,
	timestamp INTEGER NOT NULL,
	message_type TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session_time ON messages(session_id, timestamp);
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	timestamp INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS memory_id_sequence (
	id INTEGER PRIMARY KEY AUTOINCREMENT
);
`

// Store is the modernc.org/sqlite-backed persistence.Store implementation.
type Store struct {
	db *sql.DB
}

// Options configures Open.
type Options struct {
	// Path is the sqlite database file path, or ":memory:" / "file::memory:?cache=shared".
	Path string
	// MaxOpenConns bounds concurrent DB work; defaults to 4.
	MaxOpenConns int
}

// Open opens (creating if necessary) a sqlite-backed Store at opts.Path,
// enabling WAL journaling and foreign keys, and creating the schema if
// absent.
func Open(opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, errors.New("sqlite: path is required")
	}
	maxConns := opts.MaxOpenConns
	if maxConns <= 0 {
		maxConns = 4
	}
	db, err := sql.Open("sqlite", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(maxConns)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying *sql.DB.
func (s *Store) Close() error { return s.db.Close() }

// CreateSession inserts a new session row, returning the existing row
// unchanged if sessionID is already present.
func (s *Store) CreateSession(ctx context.Context, sessionID, conversationID string, startTime time.Time) (persistence.Session, error) {
	existing, err := s.LoadSession(ctx, sessionID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, persistence.ErrSessionNotFound) {
		return persistence.Session{}, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, conversation_id, start_time, status) VALUES (?, ?, ?, ?)`,
		sessionID, conversationID, startTime.UTC().Unix(), string(persistence.SessionActive),
	)
	if err != nil {
		return persistence.Session{}, fmt.Errorf("sqlite: create session: %w", err)
	}
	return s.LoadSession(ctx, sessionID)
}

// LoadSession returns the session row for sessionID.
func (s *Store) LoadSession(ctx context.Context, sessionID string) (persistence.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, conversation_id, start_time, end_time, status, metadata_json FROM sessions WHERE id = ?`,
		sessionID,
	)
	var (
		sess         persistence.Session
		conversation sql.NullString
		start        int64
		end          sql.NullInt64
		status       string
		metaJSON     sql.NullString
	)
	if err := row.Scan(&sess.ID, &conversation, &start, &end, &status, &metaJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Session{}, persistence.ErrSessionNotFound
		}
		return persistence.Session{}, fmt.Errorf("sqlite: load session: %w", err)
	}
	sess.ConversationID = conversation.String
	sess.StartTime = time.Unix(start, 0).UTC()
	sess.Status = persistence.SessionStatus(status)
	if end.Valid {
		t := time.Unix(end.Int64, 0).UTC()
		sess.EndTime = &t
	}
	if metaJSON.Valid && metaJSON.String != "" {
		_ = json.Unmarshal([]byte(metaJSON.String), &sess.Metadata)
	}
	return sess, nil
}

// EndSession marks sessionID ended at endTime.
func (s *Store) EndSession(ctx context.Context, sessionID string, endTime time.Time) (persistence.Session, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET end_time = ?, status = ? WHERE id = ?`,
		endTime.UTC().Unix(), string(persistence.SessionEnded), sessionID,
	)
	if err != nil {
		return persistence.Session{}, fmt.Errorf("sqlite: end session: %w", err)
	}
	return s.LoadSession(ctx, sessionID)
}

// AppendMessage persists m under sessionID as opaque JSON.
func (s *Store) AppendMessage(ctx context.Context, sessionID string, m message.Message, timestamp time.Time) error {
	raw, err := message.Encode(m)
	if err != nil {
		return fmt.Errorf("sqlite: encode message: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages (session_id, message_json, timestamp, message_type) VALUES (?, ?, ?, ?)`,
		sessionID, string(raw), timestamp.UTC().Unix(), m.Kind(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: append message: %w", err)
	}
	return nil
}

// AppendEvent persists an event row under sessionID.
func (s *Store) AppendEvent(ctx context.Context, sessionID, eventType string, timestamp time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (session_id, event_type, timestamp) VALUES (?, ?, ?)`,
		sessionID, eventType, timestamp.UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: append event: %w", err)
	}
	return nil
}

// ListMessages returns every MessageRecord for sessionID in timestamp order.
func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]persistence.MessageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, message_json, timestamp, message_type FROM messages WHERE session_id = ? ORDER BY timestamp ASC, id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list messages: %w", err)
	}
	defer rows.Close()

	var out []persistence.MessageRecord
	for rows.Next() {
		var (
			id       int64
			raw      string
			ts       int64
			msgType  string
		)
		if err := rows.Scan(&id, &raw, &ts, &msgType); err != nil {
			return nil, fmt.Errorf("sqlite: scan message: %w", err)
		}
		decoded, err := message.Decode([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("sqlite: decode message %d: %w", id, err)
		}
		out = append(out, persistence.MessageRecord{
			ID:        id,
			SessionID: sessionID,
			Message:   decoded,
			Timestamp: time.Unix(ts, 0).UTC(),
			Type:      msgType,
		})
	}
	return out, rows.Err()
}

// NextMemoryID advances and returns the monotonic memory id sequence.
func (s *Store) NextMemoryID(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO memory_id_sequence DEFAULT VALUES`)
	if err != nil {
		return 0, fmt.Errorf("sqlite: advance memory id sequence: %w", err)
	}
	return res.LastInsertId()
}
