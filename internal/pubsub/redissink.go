package pubsub

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agentcore/core/internal/message"
)

// StreamClient is the subset of the go-redis client the sink drives.
// *redis.Client satisfies it; tests supply a fake.
type StreamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XRead(ctx context.Context, a *redis.XReadArgs) *redis.XStreamSliceCmd
}

// RedisSink publishes each message onto a Redis Stream named
// "session:{sessionId}:events" via XADD, letting a transport adapter running
// in a separate process attach to a session's event stream — the
// process-local constraint of the core loop does not have to extend to the
// transport layer. Its Publish has the same signature as the in-process
// Publisher's, so a component that only publishes can use either; its
// Subscribe takes a context and a buffer size and returns a stop func, and
// there is no separate Unsubscribe.
type RedisSink struct {
	client StreamClient
}

// NewRedisSink wraps an already-constructed redis client.
func NewRedisSink(client StreamClient) *RedisSink {
	return &RedisSink{client: client}
}

func streamKey(sessionID string) string {
	return fmt.Sprintf("session:%s:events", sessionID)
}

// Publish XADDs the encoded message onto the session's Redis Stream.
func (r *RedisSink) Publish(ctx context.Context, sessionID string, m message.Message) error {
	raw, err := message.Encode(m)
	if err != nil {
		return fmt.Errorf("redissink: encode message: %w", err)
	}
	_, err = r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(sessionID),
		Values: map[string]any{"payload": raw},
	}).Result()
	if err != nil {
		return fmt.Errorf("redissink: xadd %s: %w", sessionID, err)
	}
	return nil
}

// Subscribe starts a consumer goroutine that XREADs the session's stream
// with a blocking read loop, decoding each entry back into a message.Message
// and delivering it on the returned channel in stream order. The returned
// func stops the consumer goroutine and closes the channel.
//
// The in-memory delivery channel is bounded by bufferSize (DefaultBufferSize
// when <= 0). A slow reader always stalls the XREAD loop rather than growing
// memory unbounded; there is no drop policy.
func (r *RedisSink) Subscribe(ctx context.Context, sessionID string, bufferSize int) (<-chan message.Message, func()) {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	ch := make(chan message.Message, bufferSize)
	cctx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(ch)
		key := streamKey(sessionID)
		lastID := "$" // only new entries from subscribe time forward
		for {
			res, err := r.client.XRead(cctx, &redis.XReadArgs{
				Streams: []string{key, lastID},
				Block:   5 * time.Second,
				Count:   64,
			}).Result()
			if err != nil {
				if cctx.Err() != nil || err == redis.Nil {
					if cctx.Err() != nil {
						return
					}
					continue
				}
				return
			}
			for _, stream := range res {
				for _, entry := range stream.Messages {
					lastID = entry.ID
					raw, ok := entry.Values["payload"].(string)
					if !ok {
						continue
					}
					m, err := message.Decode([]byte(raw))
					if err != nil {
						continue
					}
					select {
					case ch <- m:
					case <-cctx.Done():
						return
					}
				}
			}
		}
	}()

	return ch, cancel
}
