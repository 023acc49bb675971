package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/core/internal/agentloop"
	"github.com/agentcore/core/internal/message"
	"github.com/agentcore/core/internal/pubsub"
)

// scriptedSubmitter publishes a canned event stream for the thread as soon
// as a turn is submitted, standing in for a full agent loop.
type scriptedSubmitter struct {
	pub      *pubsub.Publisher
	threadID string
	script   []message.Message
}

func (s *scriptedSubmitter) Submit(agentloop.UserInput) (agentloop.SendReceipt, error) {
	go func() {
		ctx := context.Background()
		for _, m := range s.script {
			_ = s.pub.Publish(ctx, s.threadID, m)
		}
	}()
	return agentloop.SendReceipt{ReceiptID: "rcpt", QueuedAt: time.Now()}, nil
}

func TestHandlerStreamsEventsUntilRunCompleted(t *testing.T) {
	pub := pubsub.New(pubsub.Options{})
	ident := message.Ident{ThreadID: "t1", RunID: "r1", GenerationID: "g1"}
	sub := &scriptedSubmitter{
		pub:      pub,
		threadID: "t1",
		script: []message.Message{
			message.RunAssignment{Ident: ident, InputIDs: []string{"in1"}},
			message.TextUpdateMessage{Ident: ident, Text: "hi "},
			message.TextMessage{Ident: ident, Role: message.RoleAssistant, Text: "hi back"},
			message.RunCompleted{Ident: ident, CompletedRunID: "r1"},
		},
	}

	r := chi.NewRouter()
	Mount(r, "/threads/stream", &Handler{Sub: pub, Submit: sub})
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/threads/stream", "application/json",
		strings.NewReader(`{"threadId":"t1","messages":[{"role":"user","content":"hi"}]}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	assert.Equal(t, "no", resp.Header.Get("X-Accel-Buffering"))

	body := make([]byte, 16*1024)
	var data strings.Builder
	for {
		n, err := resp.Body.Read(body)
		data.Write(body[:n])
		if err != nil {
			break
		}
	}

	lines := data.String()
	assert.Contains(t, lines, "data: ")
	assert.Contains(t, lines, message.KindRunAssignment)
	assert.Contains(t, lines, "hi back")
	assert.Contains(t, lines, message.KindRunCompleted)

	// The stream must terminate after RunCompleted: RunCompleted is the
	// final data line.
	trimmed := strings.TrimRight(lines, "\n")
	events := strings.Split(trimmed, "\n\n")
	assert.Contains(t, events[len(events)-1], message.KindRunCompleted)
}

func TestHandlerRejectsMissingThreadID(t *testing.T) {
	pub := pubsub.New(pubsub.Options{})
	r := chi.NewRouter()
	Mount(r, "/threads/stream", &Handler{Sub: pub, Submit: &scriptedSubmitter{pub: pub}})
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/threads/stream", "application/json",
		strings.NewReader(`{"messages":[{"role":"user","content":"hi"}]}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandlerRejectsInvalidBody(t *testing.T) {
	pub := pubsub.New(pubsub.Options{})
	r := chi.NewRouter()
	Mount(r, "/threads/stream", &Handler{Sub: pub, Submit: &scriptedSubmitter{pub: pub}})
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/threads/stream", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
