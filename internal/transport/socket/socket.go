// Package socket implements the bidirectional socket transport adapter:
// github.com/gorilla/websocket upgrades the HTTP connection, one goroutine
// pumps outbound Publisher events to the client, another reads inbound text
// frames and submits them to the session's loop, matching the per-connection
// task model of the concurrency & resource model.
package socket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentcore/core/internal/agentloop"
	"github.com/agentcore/core/internal/ids"
	"github.com/agentcore/core/internal/message"
)

// Subscriber is the subset of internal/pubsub.Publisher the handler needs.
type Subscriber interface {
	Subscribe(sessionID string) (<-chan message.Message, func())
}

// Submitter is the subset of agentloop.Loop the handler needs.
type Submitter interface {
	Submit(input agentloop.UserInput) (agentloop.SendReceipt, error)
}

// inboundFrame is the decoded shape of one inbound text frame.
type inboundFrame struct {
	Content string `json:"content"`
	Role    string `json:"role,omitempty"`
}

// Handler upgrades one HTTP connection into a socket session.
type Handler struct {
	Sub      Subscriber
	Submit   Submitter
	Upgrader websocket.Upgrader
}

// ServeHTTP accepts the upgrade, emits SessionStarted, then runs the
// outbound pump and inbound reader concurrently until the connection
// closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		sessionID = ids.New()
	}

	ch, unsubscribe := h.Sub.Subscribe(sessionID)
	defer unsubscribe()

	started := message.SessionStarted{SessionID: sessionID, StartedAt: time.Now()}
	if err := writeMessage(conn, started); err != nil {
		return
	}

	done := make(chan struct{})
	go h.readLoop(conn, sessionID, done)
	h.writeLoop(conn, ch, done)
}

func (h *Handler) readLoop(conn *websocket.Conn, sessionID string, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return
			}
			return
		}
		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			_ = writeJSON(conn, map[string]any{"type": "RUN_ERROR", "code": "INVALID_JSON", "recoverable": true})
			continue
		}
		role := message.RoleUser
		if frame.Role == "assistant" {
			role = message.RoleAssistant
		}
		_, _ = h.Submit.Submit(agentloop.UserInput{
			Messages: []message.Message{message.TextMessage{Role: role, Text: frame.Content}},
		})
	}
}

func (h *Handler) writeLoop(conn *websocket.Conn, ch <-chan message.Message, done <-chan struct{}) {
	for {
		select {
		case m, ok := <-ch:
			if !ok {
				return
			}
			if err := writeMessage(conn, m); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, raw)
}

func writeMessage(conn *websocket.Conn, m message.Message) error {
	raw, err := message.Encode(m)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, raw)
}
