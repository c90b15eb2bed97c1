package report

import (
	"fmt"

	"github.com/roach88/interlock/internal/keycode"
)

// Op is a report mutation kind.
type Op string

const (
	OpAssert   Op = "assert"
	OpWithdraw Op = "withdraw"
)

// Effect is one report mutation issued by the engine.
type Effect struct {
	Op  Op              `json:"op"`
	Key keycode.Keycode `json:"key"`
}

// String renders the effect as "withdraw KC_A".
func (e Effect) String() string {
	return fmt.Sprintf("%s %s", e.Op, e.Key)
}

// Sink receives report mutations. *Report implements Sink.
type Sink interface {
	Assert(k keycode.Keycode)
	Withdraw(k keycode.Keycode)
}

// Recorder forwards mutations to a Sink and remembers them in call order.
// Used by the scan loop and the harness to log engine effects.
type Recorder struct {
	sink    Sink
	effects []Effect
}

// NewRecorder wraps sink. A nil sink records without forwarding.
func NewRecorder(sink Sink) *Recorder {
	return &Recorder{sink: sink, effects: make([]Effect, 0, 16)}
}

// Assert implements Sink.
func (r *Recorder) Assert(k keycode.Keycode) {
	r.effects = append(r.effects, Effect{Op: OpAssert, Key: k})
	if r.sink != nil {
		r.sink.Assert(k)
	}
}

// Withdraw implements Sink.
func (r *Recorder) Withdraw(k keycode.Keycode) {
	r.effects = append(r.effects, Effect{Op: OpWithdraw, Key: k})
	if r.sink != nil {
		r.sink.Withdraw(k)
	}
}

// Drain returns the effects recorded since the last Drain and resets the
// buffer. The returned slice is a copy.
func (r *Recorder) Drain() []Effect {
	out := make([]Effect, len(r.effects))
	copy(out, r.effects)
	r.effects = r.effects[:0]
	return out
}
