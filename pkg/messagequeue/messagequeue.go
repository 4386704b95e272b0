// Package messagequeue carries verified webhook events from the HTTP handler to the apply worker.
package messagequeue

import (
	"context"
	"errors"
)

// ErrQueueFull is returned by in-process queues that cannot accept more messages.
var ErrQueueFull = errors.New("queue is full")

// Handler processes one message. Returning an error asks the broker to redeliver it.
type Handler func(ctx context.Context, body []byte) error

// MessageQueue defines the interface for message queue services.
type MessageQueue interface {
	Publish(ctx context.Context, queueName string, body []byte) error
	// Consume blocks, delivering messages to handler until ctx is cancelled.
	Consume(ctx context.Context, queueName string, handler Handler) error
	Close() error
}
