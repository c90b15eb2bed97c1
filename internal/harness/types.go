package harness

import (
	"github.com/roach88/interlock/internal/feature"
	"github.com/roach88/interlock/internal/scan"
)

// TraceEvent is one processed transition as it appears in the trace and in
// golden files. Keys are rendered by name so golden files stay readable.
type TraceEvent struct {
	Seq       int64    `json:"seq"`
	Tick      int64    `json:"tick"`
	Event     string   `json:"event"` // "+KC_A" or "-KC_A"
	Forwarded bool     `json:"forwarded"`
	Effects   []string `json:"effects"`
	Report    []string `json:"report"`
}

// traceEventFrom converts a scan result to its trace form.
func traceEventFrom(r scan.Result) TraceEvent {
	effects := make([]string, len(r.Effects))
	for i, e := range r.Effects {
		effects[i] = e.String()
	}
	report := make([]string, len(r.Report))
	for i, k := range r.Report {
		report[i] = k.String()
	}
	return TraceEvent{
		Seq:       r.Seq,
		Tick:      r.Tick,
		Event:     r.Transition.String(),
		Forwarded: r.Forwarded,
		Effects:   effects,
		Report:    report,
	}
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every step expectation and assertion held.
	Pass bool `json:"pass"`

	// SessionID is the id the run was logged under.
	SessionID string `json:"session_id"`

	// Trace contains every processed transition in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Report is the final host report.
	Report []string `json:"report"`

	// Ledger is the final ledger, oldest first. Withdrawn entries carry a
	// "!" prefix.
	Ledger []string `json:"ledger"`

	// Flags are the engine's final flags.
	Flags feature.Flags `json:"flags"`

	// PersistedFlags are the flags read back from the store after the run.
	PersistedFlags feature.Flags `json:"persisted_flags"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Report: []string{},
		Ledger: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends processed transitions to the trace.
func (r *Result) AddTrace(results []scan.Result) {
	for _, res := range results {
		r.Trace = append(r.Trace, traceEventFrom(res))
	}
}
