package export

import (
	"context"
	"errors"
	"time"
)

// DefaultQueueDepth is the number of messages the export queue holds.
const DefaultQueueDepth = 10

// ErrQueueFull is returned when a message could not be enqueued before the timeout.
var ErrQueueFull = errors.New("export queue full")

// Queue is a bounded FIFO between the coordinator and the single storage worker.
type Queue struct {
	ch chan Message
}

// NewQueue creates a queue holding up to depth messages.
func NewQueue(depth int) *Queue {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	return &Queue{ch: make(chan Message, depth)}
}

// Send enqueues msg, waiting up to timeout for space.
func (q *Queue) Send(msg Message, timeout time.Duration) error {
	select {
	case q.ch <- msg:
		return nil
	default:
	}

	if timeout <= 0 {
		return ErrQueueFull
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case q.ch <- msg:
		return nil
	case <-timer.C:
		return ErrQueueFull
	}
}

// Receive blocks until a message is available or ctx is done.
func (q *Queue) Receive(ctx context.Context) (Message, error) {
	select {
	case msg := <-q.ch:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Cap returns the queue depth.
func (q *Queue) Cap() int {
	return cap(q.ch)
}
