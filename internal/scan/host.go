package scan

import (
	"github.com/roach88/interlock/internal/engine"
	"github.com/roach88/interlock/internal/keycode"
	"github.com/roach88/interlock/internal/report"
)

// Host is the simulated host-report layer.
//
// Engine effects go through a recorder so the loop can log them; the
// forwarding step (register on press, unregister on release) writes the
// report directly and is not an engine effect.
type Host struct {
	report *report.Report
	rec    *report.Recorder
}

// NewHost creates a host with an empty report.
func NewHost() *Host {
	r := report.New()
	return &Host{report: r, rec: report.NewRecorder(r)}
}

// Reporter is the sink to hand to engine.New.
func (h *Host) Reporter() engine.Reporter { return h.rec }

// Report returns the live host report.
func (h *Host) Report() *report.Report { return h.report }

// drain returns the engine effects since the last call.
func (h *Host) drain() []report.Effect { return h.rec.Drain() }

// forward performs normal keycode processing for an event the engine let
// through.
func (h *Host) forward(k keycode.Keycode, pressed bool) {
	if pressed {
		h.report.Assert(k)
	} else {
		h.report.Withdraw(k)
	}
}
