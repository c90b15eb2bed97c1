package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/interlock/internal/compiler"
	"github.com/roach88/interlock/internal/engine"
	"github.com/roach88/interlock/internal/feature"
	"github.com/roach88/interlock/internal/keycode"
	"github.com/roach88/interlock/internal/rules"
	"github.com/roach88/interlock/internal/scan"
	"github.com/roach88/interlock/internal/store"
	"github.com/roach88/interlock/internal/testutil"
)

// Harness is the test execution engine.
// It runs scenarios with a deterministic seq clock and session id.
type Harness struct {
	store  *store.Store
	loop   *scan.Loop
	logger *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
// 1. Create fresh in-memory database seeded with the scenario's flags
// 2. Load the rule table (inline, CUE keymap or default)
// 3. Start a logged session and build engine, host and scan loop
// 4. Execute steps, one tick each, validating per-step expectations
// 5. Replay the logged session and report any divergence
// 6. Evaluate assertions and return the result
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	table, flags, capacity, err := loadEngineConfig(scenario)
	if err != nil {
		return nil, err
	}

	word := flags.Pack(0)
	if err := st.WriteWord(ctx, word); err != nil {
		return nil, fmt.Errorf("failed to seed config word: %w", err)
	}

	sessionID, err := scan.StartSession(ctx, st, testutil.NewFixedSessionGenerator(scenario.SessionID), scan.SessionConfig{
		Rules:       table,
		Capacity:    capacity,
		InitialWord: word,
		StartedAt:   time.Unix(0, 0),
	})
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	state := feature.NewState(flags, st.Persister(ctx), logger)
	host := scan.NewHost()
	eng := engine.New(table, host.Reporter(), state,
		engine.WithCapacity(capacity),
		engine.WithLogger(logger),
	)
	loop := scan.NewLoop(eng, host, scan.Config{},
		scan.WithSink(scan.StoreSink{Store: st, SessionID: sessionID}),
		scan.WithSeqClock(scan.NewClock()),
		scan.WithLogger(logger),
	)

	h := &Harness{store: st, loop: loop, logger: logger}

	result := NewResult()
	result.SessionID = sessionID

	if err := h.executeSteps(ctx, scenario.Steps, result); err != nil {
		return nil, fmt.Errorf("failed to execute steps: %w", err)
	}

	if err := h.collectFinalState(ctx, result); err != nil {
		return nil, err
	}

	if err := h.checkReplay(ctx, sessionID, result); err != nil {
		return nil, err
	}

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}

	return result, nil
}

// executeSteps sends each step and runs exactly one tick for it.
func (h *Harness) executeSteps(ctx context.Context, steps []Step, result *Result) error {
	for i, step := range steps {
		name, pressed := step.Key()
		k, err := keycode.Parse(name)
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}

		tr := scan.Release(k)
		if pressed {
			tr = scan.Press(k)
		}
		if err := h.loop.Send(tr); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}

		tick, err := h.loop.Step(ctx)
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		result.AddTrace(tick.Results)

		if len(tick.Results) != 1 {
			return fmt.Errorf("step %d: expected 1 processed transition, got %d", i, len(tick.Results))
		}
		ev := result.Trace[len(result.Trace)-1]

		if step.Forwarded != nil && *step.Forwarded != ev.Forwarded {
			result.AddError(fmt.Sprintf("step %d (%s): forwarded = %t, want %t",
				i, ev.Event, ev.Forwarded, *step.Forwarded))
		}
		if step.Report != nil {
			want, err := canonicalKeys(*step.Report)
			if err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}
			if !slices.Equal(want, ev.Report) {
				result.AddError(fmt.Sprintf("step %d (%s): report = %v, want %v",
					i, ev.Event, ev.Report, want))
			}
		}

		h.logger.Info("step completed",
			"step", i,
			"event", ev.Event,
			"forwarded", ev.Forwarded,
			"effects", len(ev.Effects),
		)
	}
	return nil
}

// collectFinalState copies the final report, ledger and flags into result.
func (h *Harness) collectFinalState(ctx context.Context, result *Result) error {
	eng := h.loop.Engine()

	result.Report = h.loop.Host().Report().Names()
	for _, e := range eng.Ledger() {
		result.Ledger = append(result.Ledger, ledgerKeyString(e))
	}
	result.Flags = eng.Flags()

	persisted, err := h.store.LoadFlags(ctx)
	if err != nil {
		return fmt.Errorf("failed to read persisted flags: %w", err)
	}
	result.PersistedFlags = persisted
	return nil
}

// checkReplay re-executes the logged session and fails the result on any
// divergence from the live run.
func (h *Harness) checkReplay(ctx context.Context, sessionID string, result *Result) error {
	log, err := h.store.GetSessionLog(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to read session log: %w", err)
	}
	if len(log.Transitions) != len(result.Trace) {
		result.AddError(fmt.Sprintf("session log has %d transitions, trace has %d",
			len(log.Transitions), len(result.Trace)))
	}

	rep, err := scan.Replay(ctx, log, h.logger)
	if err != nil {
		return fmt.Errorf("failed to replay session: %w", err)
	}
	for _, d := range rep.Divergences {
		result.AddError(fmt.Sprintf("replay diverged at seq %d: %s = %s, want %s",
			d.Seq, d.Field, d.Got, d.Want))
	}
	return nil
}

// loadEngineConfig resolves the rule table, initial flags and capacity.
func loadEngineConfig(s *Scenario) (*rules.Table, feature.Flags, int, error) {
	flags := feature.Flags{Enabled: true, Recovery: true}
	capacity := compiler.DefaultCapacity
	var table *rules.Table

	switch {
	case s.Keymap != "":
		km, err := loadKeymap(s.Keymap)
		if err != nil {
			return nil, flags, 0, err
		}
		table = km.Rules
		flags = km.Features
		capacity = km.Capacity
	case len(s.Rules) > 0:
		rs := make([]rules.Rule, len(s.Rules))
		for i, r := range s.Rules {
			trig, err := keycode.Parse(r.Trigger)
			if err != nil {
				return nil, flags, 0, fmt.Errorf("rules[%d].trigger: %w", i, err)
			}
			supp, err := keycode.Parse(r.Suppressed)
			if err != nil {
				return nil, flags, 0, fmt.Errorf("rules[%d].suppressed: %w", i, err)
			}
			rs[i] = rules.Rule{Trigger: trig, Suppressed: supp}
		}
		table = rules.NewTable(rs...)
	default:
		table = rules.DefaultTable()
	}

	if s.Features != nil {
		if s.Features.Enabled != nil {
			flags.Enabled = *s.Features.Enabled
		}
		if s.Features.Recovery != nil {
			flags.Recovery = *s.Features.Recovery
		}
	}
	if s.Capacity > 0 {
		capacity = s.Capacity
	}
	return table, flags, capacity, nil
}

// loadKeymap compiles and validates a single CUE keymap file.
func loadKeymap(path string) (*compiler.Keymap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keymap: %w", err)
	}

	v := cuecontext.New().CompileBytes(data, cue.Filename(path))
	km, err := compiler.CompileKeymap(v)
	if err != nil {
		return nil, fmt.Errorf("failed to compile keymap: %w", err)
	}
	if errs := compiler.Validate(km); len(errs) > 0 {
		return nil, fmt.Errorf("invalid keymap: %w", errs[0])
	}
	return km, nil
}

// canonicalKeys parses key names and returns them in report order.
func canonicalKeys(names []string) ([]string, error) {
	keys := make([]keycode.Keycode, 0, len(names))
	for _, n := range names {
		k, err := keycode.Parse(n)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)
	keys = slices.Compact(keys)

	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out, nil
}

func ledgerKeyString(e engine.LedgerEntry) string {
	if e.Withdrawn {
		return "!" + e.Key.String()
	}
	return e.Key.String()
}
