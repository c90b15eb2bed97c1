package scan

import (
	"errors"
	"sync"

	"github.com/roach88/interlock/internal/keycode"
)

// Queue errors.
var (
	ErrQueueFull = errors.New("scan: transition queue full")
	ErrClosed    = errors.New("scan: loop closed")
)

// Transition is one debounced key event from the matrix.
type Transition struct {
	Key     keycode.Keycode `json:"key"`
	Pressed bool            `json:"pressed"`
	Row     uint8           `json:"row,omitempty"`
	Col     uint8           `json:"col,omitempty"`
}

// Press builds a press transition with no matrix position.
func Press(k keycode.Keycode) Transition { return Transition{Key: k, Pressed: true} }

// Release builds a release transition with no matrix position.
func Release(k keycode.Keycode) Transition { return Transition{Key: k} }

// String renders the transition as "+KC_A" or "-KC_A".
func (t Transition) String() string {
	if t.Pressed {
		return "+" + t.Key.String()
	}
	return "-" + t.Key.String()
}

// batchQueue is a bounded, thread-safe FIFO of pending transitions.
//
// Producers (a stdin reader, a test) Enqueue from any goroutine; the loop
// drains the whole batch once per tick.
type batchQueue struct {
	mu     sync.Mutex
	items  []Transition
	max    int
	closed bool
}

func newBatchQueue(max int) *batchQueue {
	return &batchQueue{items: make([]Transition, 0, max), max: max}
}

// Enqueue appends tr. Returns ErrQueueFull when the batch is at capacity and
// ErrClosed after Close.
func (q *batchQueue) Enqueue(tr Transition) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	if len(q.items) >= q.max {
		return ErrQueueFull
	}
	q.items = append(q.items, tr)
	return nil
}

// Drain appends every pending transition to dst, in arrival order, and
// empties the queue.
func (q *batchQueue) Drain(dst []Transition) []Transition {
	q.mu.Lock()
	defer q.mu.Unlock()

	dst = append(dst, q.items...)
	q.items = q.items[:0]
	return dst
}

// Len returns the number of pending transitions.
func (q *batchQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close rejects further Enqueue calls. Pending items can still be drained.
func (q *batchQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}
