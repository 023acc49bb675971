package socket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/core/internal/agentloop"
	"github.com/agentcore/core/internal/message"
	"github.com/agentcore/core/internal/pubsub"
)

type recordingSubmitter struct {
	mu     sync.Mutex
	inputs []agentloop.UserInput
}

func (r *recordingSubmitter) Submit(input agentloop.UserInput) (agentloop.SendReceipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inputs = append(r.inputs, input)
	return agentloop.SendReceipt{ReceiptID: "rcpt", QueuedAt: time.Now()}, nil
}

func (r *recordingSubmitter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inputs)
}

func dialTestSession(t *testing.T, pub *pubsub.Publisher, sub *recordingSubmitter) *websocket.Conn {
	t.Helper()
	h := &Handler{Sub: pub, Submit: sub}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?sessionId=sess1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestSocketEmitsSessionStartedThenStreamsEvents(t *testing.T) {
	pub := pubsub.New(pubsub.Options{})
	sub := &recordingSubmitter{}
	conn := dialTestSession(t, pub, sub)

	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	first, err := message.Decode(raw)
	require.NoError(t, err)
	started, ok := first.(message.SessionStarted)
	require.True(t, ok, "first frame must be SessionStarted")
	assert.Equal(t, "sess1", started.SessionID)

	ident := message.Ident{ThreadID: "sess1", RunID: "r1"}
	require.NoError(t, pub.Publish(context.Background(), "sess1", message.TextMessage{Ident: ident, Role: message.RoleAssistant, Text: "hello"}))

	_, raw, err = conn.ReadMessage()
	require.NoError(t, err)
	next, err := message.Decode(raw)
	require.NoError(t, err)
	tm, ok := next.(message.TextMessage)
	require.True(t, ok)
	assert.Equal(t, "hello", tm.Text)
}

func TestSocketSubmitsInboundFrames(t *testing.T) {
	pub := pubsub.New(pubsub.Options{})
	sub := &recordingSubmitter{}
	conn := dialTestSession(t, pub, sub)

	_, _, err := conn.ReadMessage() // SessionStarted
	require.NoError(t, err)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"content":"hi there"}`)))
	require.Eventually(t, func() bool { return sub.count() == 1 }, time.Second, 5*time.Millisecond)

	sub.mu.Lock()
	defer sub.mu.Unlock()
	require.Len(t, sub.inputs[0].Messages, 1)
	tm, ok := sub.inputs[0].Messages[0].(message.TextMessage)
	require.True(t, ok)
	assert.Equal(t, "hi there", tm.Text)
	assert.Equal(t, message.RoleUser, tm.Role)
}

func TestSocketInvalidJSONYieldsRecoverableError(t *testing.T) {
	pub := pubsub.New(pubsub.Options{})
	sub := &recordingSubmitter{}
	conn := dialTestSession(t, pub, sub)

	_, _, err := conn.ReadMessage() // SessionStarted
	require.NoError(t, err)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{nope")))

	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame struct {
		Type        string `json:"type"`
		Code        string `json:"code"`
		Recoverable bool   `json:"recoverable"`
	}
	require.NoError(t, json.Unmarshal(raw, &frame))
	assert.Equal(t, "RUN_ERROR", frame.Type)
	assert.Equal(t, "INVALID_JSON", frame.Code)
	assert.True(t, frame.Recoverable)
	assert.Equal(t, 0, sub.count())
}
