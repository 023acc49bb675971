// Package sse implements the server-sent-events transport adapter: one HTTP
// POST per conversation turn stream, mounted with github.com/go-chi/chi/v5,
// flushing "data: <json>\n\n" lines for every message the Event Publisher
// delivers until the run's terminal RunCompleted.
package sse

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agentcore/core/internal/agentloop"
	"github.com/agentcore/core/internal/message"
	"github.com/agentcore/core/internal/telemetry"
)

// Subscriber is the subset of internal/pubsub.Publisher the handler needs to
// attach a subscriber channel for a thread/session.
type Subscriber interface {
	Subscribe(sessionID string) (<-chan message.Message, func())
}

// Submitter is the subset of agentloop.Loop the handler needs to enqueue a
// turn's inbound messages. Handlers are keyed by threadId, so a real server
// wires one Loop (and therefore one Submitter) per thread.
type Submitter interface {
	Submit(input agentloop.UserInput) (agentloop.SendReceipt, error)
}

// TurnRequest is the decoded POST body. RunID identifies the run the client
// is following and is informational: a submission always continues the
// thread. Rewinding to an earlier run is opt-in via ParentRunID, which
// truncates history at that run's boundary and marks it forked.
type TurnRequest struct {
	ThreadID    string `json:"threadId,omitempty"`
	RunID       string `json:"runId,omitempty"`
	ParentRunID string `json:"parentRunId,omitempty"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
		Name    string `json:"name,omitempty"`
	} `json:"messages"`
	Agent string `json:"agent,omitempty"`
}

// Handler serves one chi route: decode the turn request, submit it to the
// thread's loop, subscribe to its session, and stream every subsequent
// message as an SSE event until RunCompleted.
type Handler struct {
	Sub       Subscriber
	Submit    Submitter
	Telemetry telemetry.Set
}

// Mount registers the handler's POST route onto r.
func Mount(r chi.Router, path string, h *Handler) {
	r.Post(path, h.ServeHTTP)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ThreadID == "" {
		http.Error(w, "threadId is required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	ch, unsubscribe := h.Sub.Subscribe(req.ThreadID)
	defer unsubscribe()

	msgs := make([]message.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := message.RoleUser
		switch m.Role {
		case "assistant":
			role = message.RoleAssistant
		case "system":
			role = message.RoleSystem
		}
		msgs = append(msgs, message.TextMessage{Role: role, Text: m.Content})
	}

	if _, err := h.Submit.Submit(agentloop.UserInput{Messages: msgs, ParentRunID: req.ParentRunID}); err != nil {
		writeRaw(w, flusher, map[string]any{"type": "RUN_ERROR", "error": err.Error()})
		return
	}

	ctx := r.Context()
	for {
		select {
		case m, ok := <-ch:
			if !ok {
				return
			}
			writeMessage(w, flusher, m)
			if _, done := m.(message.RunCompleted); done {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func writeMessage(w http.ResponseWriter, flusher http.Flusher, m message.Message) {
	raw, err := message.Encode(m)
	if err != nil {
		return
	}
	writeLine(w, flusher, raw)
}

func writeRaw(w http.ResponseWriter, flusher http.Flusher, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	writeLine(w, flusher, raw)
}

func writeLine(w http.ResponseWriter, flusher http.Flusher, raw []byte) {
	_, _ = w.Write([]byte("data: "))
	_, _ = w.Write(raw)
	_, _ = w.Write([]byte("\n\n"))
	flusher.Flush()
}
