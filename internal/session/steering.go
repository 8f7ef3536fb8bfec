package session

import (
	"sync"
	"time"

	"github.com/meridianlabs/agentgateway/pkg/models"
)

// SteeringQueue is a FIFO queue of steering messages a running turn
// drains at its next turn boundary. It satisfies the narrow
// engine.SteeringQueue interface structurally, without this package
// importing internal/engine.
type SteeringQueue struct {
	mu    sync.Mutex
	items []models.SteeringMessage
}

// NewSteeringQueue returns an empty queue.
func NewSteeringQueue() *SteeringQueue {
	return &SteeringQueue{}
}

// Enqueue appends msg, stamping Timestamp if the caller left it zero.
func (q *SteeringQueue) Enqueue(msg models.SteeringMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, msg)
}

// Drain returns every queued message in FIFO order and empties the
// queue. A run applies all of them at once at a turn boundary — there
// is no one-at-a-time delivery mode, since nothing in this gateway's
// steering contract asks a turn to pace itself across several.
func (q *SteeringQueue) Drain() []models.SteeringMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	drained := q.items
	q.items = nil
	return drained
}

// Clear empties the queue without returning its contents, used by
// terminal session transitions and Dispose.
func (q *SteeringQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
}

// Len reports the number of currently queued messages.
func (q *SteeringQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
