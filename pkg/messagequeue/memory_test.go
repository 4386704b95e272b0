package messagequeue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueueDeliversInOrder(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, q.Publish(ctx, "jobs", []byte("a")))
	require.NoError(t, q.Publish(ctx, "jobs", []byte("b")))
	assert.Equal(t, 2, q.Len("jobs"))

	got := make(chan string, 2)
	done := make(chan error, 1)
	go func() {
		done <- q.Consume(ctx, "jobs", func(_ context.Context, body []byte) error {
			got <- string(body)
			return nil
		})
	}()

	assert.Equal(t, "a", <-got)
	assert.Equal(t, "b", <-got)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop after cancel")
	}
}

func TestMemoryQueueFull(t *testing.T) {
	q := NewMemoryQueue(1)
	require.NoError(t, q.Publish(context.Background(), "jobs", []byte("a")))
	assert.ErrorIs(t, q.Publish(context.Background(), "jobs", []byte("b")), ErrQueueFull)
}

func TestMemoryQueueRequeuesFailedMessage(t *testing.T) {
	q := NewMemoryQueue(2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, q.Publish(ctx, "jobs", []byte("a")))

	var calls int32
	delivered := make(chan struct{})
	go q.Consume(ctx, "jobs", func(_ context.Context, _ []byte) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			return errors.New("transient")
		}
		close(delivered)
		return nil
	})

	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("message was not redelivered")
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
