package engine

import (
	"context"
	"io"
	"log/slog"

	"github.com/roach88/interlock/internal/feature"
	"github.com/roach88/interlock/internal/keycode"
	"github.com/roach88/interlock/internal/rules"
)

// Reporter mutates the pending outgoing host report. Both calls must be
// idempotent.
type Reporter interface {
	Assert(k keycode.Keycode)
	Withdraw(k keycode.Keycode)
}

// Event is one physical key transition delivered by the scanning layer.
type Event struct {
	Pressed bool
	Row     uint8
	Col     uint8
}

// Press returns a press event with no matrix position.
func Press() Event { return Event{Pressed: true} }

// Release returns a release event with no matrix position.
func Release() Event { return Event{} }

// VetoFunc decides per event whether arbitration may act. Returning false
// passes the event through untouched.
type VetoFunc func(k keycode.Keycode, ev Event) bool

// AllowAll is the default veto hook.
func AllowAll(keycode.Keycode, Event) bool { return true }

// Engine arbitrates mutually exclusive key activations.
//
// Engine owns the held-key ledger and the feature state; nothing else may
// mutate them. It is not safe for concurrent use: the scan loop calls
// ProcessEvent synchronously, once per transition, and each call runs to
// completion.
//
// INVARIANTS:
//   - the ledger is empty whenever recovery is not in effect
//   - ProcessEvent does at most O(C*C*N) work; only debug tracing allocates
type Engine struct {
	table  *rules.Table
	report Reporter
	state  *feature.State
	ledger Ledger
	allow  VetoFunc
	logger *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithCapacity sets the ledger capacity (clamped to 1..MaxCapacity).
//
// Default: DefaultCapacity (10)
func WithCapacity(n int) EngineOption {
	return func(e *Engine) {
		e.ledger = NewLedger(n)
	}
}

// WithVeto installs a per-event veto hook.
func WithVeto(fn VetoFunc) EngineOption {
	return func(e *Engine) {
		if fn != nil {
			e.allow = fn
		}
	}
}

// WithLogger sets the diagnostic logger. Capacity drops, vetoes and command
// keys are traced at debug level.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Engine over a rule table, a report sink and the feature
// state loaded at startup.
func New(table *rules.Table, report Reporter, state *feature.State, opts ...EngineOption) *Engine {
	if table == nil {
		table = rules.NewTable()
	}
	if state == nil {
		state = feature.NewState(feature.Flags{}, nil, nil)
	}

	e := &Engine{
		table:  table,
		report: report,
		state:  state,
		ledger: NewLedger(DefaultCapacity),
		allow:  AllowAll,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// ProcessEvent handles one key transition and reports whether the event
// should still be forwarded to normal keycode processing. It returns false
// only for feature command presses, which are consumed.
//
// Order of evaluation:
//  1. command keycodes (press only)
//  2. gates: feature disabled, non-basic keycode, veto, release in basic mode
//  3. basic mode: withdraw every key suppressed by the pressed key
//  4. recovery mode: update the ledger, then suppress (press) or
//     recompute (release) while the ledger is non-empty
func (e *Engine) ProcessEvent(k keycode.Keycode, ev Event) bool {
	if ev.Pressed && keycode.IsCommand(k) {
		return !e.handleCommand(k)
	}

	if !e.state.IsEnabled() {
		return true
	}
	if !keycode.IsBasic(k) {
		return true
	}
	if !e.allow(k, ev) {
		if e.tracing() {
			e.logger.Debug("arbitration vetoed", "key", k.String(), "pressed", ev.Pressed)
		}
		return true
	}

	if !e.state.RecoveryIsEnabled() {
		if ev.Pressed {
			e.suppress(k)
		}
		return true
	}

	if e.table.IsTrigger(k) {
		if ev.Pressed {
			if _, held := e.ledger.IndexOf(k); !held && !e.ledger.Insert(k) && e.tracing() {
				e.logger.Debug("ledger full, key not tracked for recovery",
					"key", k.String(), "capacity", e.ledger.Cap())
			}
		} else {
			e.ledger.Remove(k)
		}
	}

	if e.ledger.Len() == 0 {
		return true
	}

	if ev.Pressed {
		e.suppress(k)
	} else {
		e.recompute()
	}
	return true
}

// handleCommand applies a feature command. Returns false for codes in the
// command block that have no meaning, which are then forwarded.
func (e *Engine) handleCommand(k keycode.Keycode) bool {
	switch k {
	case keycode.ArbiterOn:
		e.Enable()
	case keycode.ArbiterOff:
		e.Disable()
	case keycode.ArbiterToggle:
		e.Toggle()
	case keycode.RecoveryOn:
		e.RecoveryEnable()
	case keycode.RecoveryOff:
		e.RecoveryDisable()
	case keycode.RecoveryToggle:
		e.RecoveryToggle()
	default:
		return false
	}
	if e.tracing() {
		e.logger.Debug("feature command", "key", k.String(), "flags", e.state.Flags().String())
	}
	return true
}

// suppress withdraws every key that pressed key k suppresses, in rule order.
// Tracked victims are marked withdrawn so a later release can restore them.
func (e *Engine) suppress(k keycode.Keycode) {
	for i := 0; i < e.table.Count(); i++ {
		r := e.table.At(i)
		if r.Trigger != k {
			continue
		}
		e.report.Withdraw(r.Suppressed)
		e.ledger.markWithdrawn(r.Suppressed)
	}
}

// recompute re-derives which ledger entries are blocked after a release and
// emits the difference against the previous withdrawn mask.
//
// An entry is blocked when a newer ledger entry is the trigger of a rule
// suppressing it. The newer entry blocks whether or not it is itself
// blocked, so a chain unwinds one hop per release. Entries are visited
// newest to oldest: the most recently pressed key wins.
func (e *Engine) recompute() {
	n := e.ledger.Len()

	var blocked uint16
	for i := n - 1; i >= 0; i-- {
		trigger := e.ledger.At(i)
		for r := 0; r < e.table.Count(); r++ {
			rule := e.table.At(r)
			if rule.Trigger != trigger {
				continue
			}
			if p, ok := e.ledger.IndexOf(rule.Suppressed); ok && p < i {
				blocked |= 1 << uint(p)
			}
		}
	}

	prev := e.ledger.withdrawn
	for j := n - 1; j >= 0; j-- {
		bit := uint16(1) << uint(j)
		switch {
		case blocked&bit == 0:
			// Re-asserting an unchanged entry is idempotent.
			e.report.Assert(e.ledger.At(j))
		case prev&bit == 0:
			e.report.Withdraw(e.ledger.At(j))
		}
	}
	e.ledger.withdrawn = blocked
}

// IsEnabled reports whether arbitration is enabled.
func (e *Engine) IsEnabled() bool { return e.state.IsEnabled() }

// Enable turns arbitration on.
func (e *Engine) Enable() { e.state.Enable(); e.syncLedger() }

// Disable turns arbitration off.
func (e *Engine) Disable() { e.state.Disable(); e.syncLedger() }

// Toggle flips arbitration.
func (e *Engine) Toggle() { e.state.Toggle(); e.syncLedger() }

// RecoveryIsEnabled reports whether recovery is in effect.
func (e *Engine) RecoveryIsEnabled() bool { return e.state.RecoveryIsEnabled() }

// RecoveryEnable turns recovery on.
func (e *Engine) RecoveryEnable() { e.state.RecoveryEnable(); e.syncLedger() }

// RecoveryDisable turns recovery off.
func (e *Engine) RecoveryDisable() { e.state.RecoveryDisable(); e.syncLedger() }

// RecoveryToggle flips recovery.
func (e *Engine) RecoveryToggle() { e.state.RecoveryToggle(); e.syncLedger() }

// Flags returns the current feature flags.
func (e *Engine) Flags() feature.Flags { return e.state.Flags() }

// Table returns the rule table the engine was built with.
func (e *Engine) Table() *rules.Table { return e.table }

// Ledger returns a diagnostic copy of the ledger, oldest first.
func (e *Engine) Ledger() []LedgerEntry { return e.ledger.Entries() }

// LedgerCap returns the configured ledger capacity.
func (e *Engine) LedgerCap() int { return e.ledger.Cap() }

// syncLedger drops tracked keys once recovery stops being in effect.
func (e *Engine) syncLedger() {
	if !e.state.RecoveryIsEnabled() && e.ledger.Len() > 0 {
		if e.tracing() {
			e.logger.Debug("recovery inactive, clearing ledger", "tracked", e.ledger.Len())
		}
		e.ledger.Reset()
	}
}

// tracing reports whether debug records would be emitted. Callers check it
// before building attributes so the scan path stays allocation-free.
func (e *Engine) tracing() bool {
	return e.logger.Enabled(context.Background(), slog.LevelDebug)
}
