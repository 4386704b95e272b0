package messagequeue

import (
	"context"
	"log"
	"sync"
)

// MemoryQueue is an in-process MessageQueue. Messages do not survive a restart.
type MemoryQueue struct {
	mu       sync.Mutex
	queues   map[string]chan []byte
	capacity int
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryQueue{queues: make(map[string]chan []byte), capacity: capacity}
}

func (m *MemoryQueue) queue(name string) chan []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[name]
	if !ok {
		q = make(chan []byte, m.capacity)
		m.queues[name] = q
	}
	return q
}

func (m *MemoryQueue) Publish(_ context.Context, queueName string, body []byte) error {
	msg := append([]byte(nil), body...)
	select {
	case m.queue(queueName) <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Consume processes messages one at a time. A failed message is put back at the tail once.
func (m *MemoryQueue) Consume(ctx context.Context, queueName string, handler Handler) error {
	q := m.queue(queueName)
	for {
		select {
		case <-ctx.Done():
			return nil
		case body := <-q:
			if err := handler(ctx, body); err != nil {
				log.Printf("Handler failed for message on queue %s, requeueing: %v", queueName, err)
				select {
				case q <- body:
				default:
					log.Printf("Queue %s is full, dropping failed message", queueName)
				}
			}
		}
	}
}

// Len reports how many messages are waiting on queueName.
func (m *MemoryQueue) Len(queueName string) int {
	return len(m.queue(queueName))
}

func (m *MemoryQueue) Close() error { return nil }
