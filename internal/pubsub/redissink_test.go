package pubsub

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/core/internal/message"
)

// fakeStreamClient records XADDs per stream key and serves them back on the
// first XRead; later reads block until the consumer's context ends, the way
// a blocking XREAD with no new entries would.
type fakeStreamClient struct {
	mu      sync.Mutex
	streams map[string][]redis.XMessage
	served  bool
}

func newFakeStreamClient() *fakeStreamClient {
	return &fakeStreamClient{streams: make(map[string][]redis.XMessage)}
}

func (f *fakeStreamClient) XAdd(_ context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	values, _ := a.Values.(map[string]any)
	payload := ""
	if raw, ok := values["payload"].([]byte); ok {
		payload = string(raw)
	}
	id := fmt.Sprintf("%d-0", len(f.streams[a.Stream])+1)
	f.streams[a.Stream] = append(f.streams[a.Stream], redis.XMessage{
		ID:     id,
		Values: map[string]any{"payload": payload},
	})
	return redis.NewStringResult(id, nil)
}

func (f *fakeStreamClient) XRead(ctx context.Context, a *redis.XReadArgs) *redis.XStreamSliceCmd {
	key := a.Streams[0]
	f.mu.Lock()
	first := !f.served
	f.served = true
	msgs := append([]redis.XMessage(nil), f.streams[key]...)
	f.mu.Unlock()

	if first && len(msgs) > 0 {
		return redis.NewXStreamSliceCmdResult([]redis.XStream{{Stream: key, Messages: msgs}}, nil)
	}
	<-ctx.Done()
	return redis.NewXStreamSliceCmdResult(nil, ctx.Err())
}

func (f *fakeStreamClient) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streams[key])
}

func TestRedisSinkPublishAppendsToSessionStream(t *testing.T) {
	fake := newFakeStreamClient()
	sink := NewRedisSink(fake)

	ctx := context.Background()
	ident := message.Ident{ThreadID: "t1", RunID: "r1"}
	require.NoError(t, sink.Publish(ctx, "sess1", message.TextMessage{Ident: ident, Role: message.RoleAssistant, Text: "hello"}))
	require.NoError(t, sink.Publish(ctx, "sess1", message.RunCompleted{Ident: ident, CompletedRunID: "r1"}))

	assert.Equal(t, 2, fake.count("session:sess1:events"))
	assert.Equal(t, 0, fake.count("session:other:events"), "sessionId partitions streams")
}

func TestRedisSinkSubscribeDecodesInStreamOrder(t *testing.T) {
	fake := newFakeStreamClient()
	sink := NewRedisSink(fake)

	ctx := context.Background()
	ident := message.Ident{ThreadID: "t1", RunID: "r1"}
	require.NoError(t, sink.Publish(ctx, "sess1", message.TextMessage{Ident: ident, Role: message.RoleAssistant, Text: "first"}))
	require.NoError(t, sink.Publish(ctx, "sess1", message.TextMessage{Ident: ident, Role: message.RoleAssistant, Text: "second"}))

	ch, stop := sink.Subscribe(ctx, "sess1", 8)
	defer stop()

	var got []string
	for i := 0; i < 2; i++ {
		select {
		case m := <-ch:
			tm, ok := m.(message.TextMessage)
			require.True(t, ok)
			got = append(got, tm.Text)
		case <-time.After(time.Second):
			t.Fatal("expected a decoded message from the stream")
		}
	}
	assert.Equal(t, []string{"first", "second"}, got)

	// Releasing the subscription closes the delivery channel.
	stop()
	select {
	case _, open := <-ch:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("channel must close after unsubscribe")
	}
}
