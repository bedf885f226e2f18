package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"playerhooks/internal/events"
)

// fakeReader serves queued messages, then blocks until the context is cancelled.
type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	drained   chan struct{}
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	return &fakeReader{msgs: msgs, drained: make(chan struct{})}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	select {
	case <-r.drained:
	default:
		close(r.drained)
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

type recordingPublisher struct {
	mu    sync.Mutex
	hooks []events.Hook
	err   error
}

func (p *recordingPublisher) Publish(ctx context.Context, hook events.Hook) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hooks = append(p.hooks, hook)
	return p.err
}

func TestConsumer_Run(t *testing.T) {
	reader := newFakeReader(
		kafka.Message{Offset: 1, Value: []byte(`{"hook":"user_approved","user_id":42,"admin_id":1}`)},
		kafka.Message{Offset: 2, Value: []byte(`{"order_id":9}`), Headers: []kafka.Header{{Key: HookHeader, Value: []byte("order_completed")}}},
		kafka.Message{Offset: 3, Value: []byte(`not json`)},
		kafka.Message{Offset: 4, Value: []byte(`{"hook":"user_deleted"}`)},
	)
	pub := &recordingPublisher{}
	var logs bytes.Buffer
	c := NewConsumer(reader, pub, zerolog.New(&logs))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	<-reader.drained
	cancel()
	require.NoError(t, <-done)

	require.Len(t, pub.hooks, 2)
	assert.Equal(t, events.HookUserApproved, pub.hooks[0].Name)
	assert.Equal(t, int64(42), pub.hooks[0].UserID)
	assert.Equal(t, events.HookOrderCompleted, pub.hooks[1].Name)
	assert.Equal(t, int64(9), pub.hooks[1].OrderID)
	assert.Equal(t, []int64{1, 2, 3, 4}, reader.committed)

	var warned, failed []int64
	dec := json.NewDecoder(&logs)
	for dec.More() {
		var line struct {
			Level   string `json:"level"`
			Offset  int64  `json:"offset"`
			Message string `json:"message"`
		}
		require.NoError(t, dec.Decode(&line))
		switch line.Message {
		case "unknown hook skipped":
			assert.Equal(t, "warn", line.Level)
			warned = append(warned, line.Offset)
		case "hook message failed":
			assert.Equal(t, "error", line.Level)
			failed = append(failed, line.Offset)
		}
	}
	assert.Equal(t, []int64{4}, warned)
	assert.Equal(t, []int64{3}, failed)
}

func TestConsumer_HandleErrors(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("db locked")}
	c := NewConsumer(newFakeReader(), pub, zerolog.Nop())
	ctx := context.Background()

	err := c.handle(ctx, kafka.Message{Value: []byte(`{"hook":"user_declined","user_id":1}`)})
	assert.Error(t, err)
	assert.False(t, isUnknownHook(err))

	err = c.handle(ctx, kafka.Message{Value: []byte(`{"hook":"nope"}`)})
	assert.True(t, isUnknownHook(err))
}
