package scan

import "sync/atomic"

// SeqClock hands out transition sequence numbers.
type SeqClock interface {
	Next() int64
}

// Clock is a monotonic logical clock for transition ordering.
//
// Every processed transition is stamped with a strictly increasing seq.
// Replay depends on seq order only, never on wall time.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations),
// though only the loop goroutine normally calls Next.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0. The first Next returns 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock that resumes after start.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}
