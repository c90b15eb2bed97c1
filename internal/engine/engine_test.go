package engine

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/interlock/internal/feature"
	"github.com/roach88/interlock/internal/keycode"
	"github.com/roach88/interlock/internal/report"
	"github.com/roach88/interlock/internal/rules"
)

// testHost mimics the keycode pipeline: the engine runs first, then a
// forwarded press registers the key and a forwarded release unregisters it.
type testHost struct {
	eng    *Engine
	report *report.Report
	rec    *report.Recorder
}

func newTestHost(t *testing.T, table *rules.Table, flags feature.Flags, opts ...EngineOption) *testHost {
	t.Helper()
	r := report.New()
	rec := report.NewRecorder(r)
	state := feature.NewState(flags, nil, nil)
	return &testHost{
		eng:    New(table, rec, state, opts...),
		report: r,
		rec:    rec,
	}
}

func (h *testHost) press(k keycode.Keycode) bool {
	forward := h.eng.ProcessEvent(k, Press())
	if forward {
		h.report.Assert(k)
	}
	return forward
}

func (h *testHost) release(k keycode.Keycode) bool {
	forward := h.eng.ProcessEvent(k, Release())
	if forward {
		h.report.Withdraw(k)
	}
	return forward
}

func (h *testHost) keys() []keycode.Keycode {
	return h.report.Keys()
}

func keys(ks ...keycode.Keycode) []keycode.Keycode { return ks }

var (
	basic    = feature.Flags{Enabled: true}
	recovery = feature.Flags{Enabled: true, Recovery: true}
)

func TestEngine_New(t *testing.T) {
	eng := New(nil, report.New(), nil)

	require.NotNil(t, eng)
	assert.Equal(t, 0, eng.Table().Count())
	assert.Equal(t, DefaultCapacity, eng.LedgerCap())
	assert.False(t, eng.IsEnabled())
}

func TestEngine_WithCapacity(t *testing.T) {
	eng := New(rules.DefaultTable(), report.New(), nil, WithCapacity(3))
	assert.Equal(t, 3, eng.LedgerCap())
}

func TestBasic_LastPressedWins(t *testing.T) {
	h := newTestHost(t, rules.DefaultTable(), basic)
	h.press(keycode.A)
	h.press(keycode.D)
	assert.Equal(t, keys(keycode.D), h.keys())

	h = newTestHost(t, rules.DefaultTable(), basic)
	h.press(keycode.D)
	h.press(keycode.A)
	assert.Equal(t, keys(keycode.A), h.keys())
}

func TestBasic_ReleaseDoesNotRestore(t *testing.T) {
	h := newTestHost(t, rules.DefaultTable(), basic)
	h.press(keycode.A)
	h.press(keycode.D)
	h.rec.Drain()

	assert.True(t, h.release(keycode.D))

	assert.Empty(t, h.keys())
	assert.Empty(t, h.rec.Drain(), "basic mode never acts on release")
}

func TestBasic_NonInteractingKeyUntouched(t *testing.T) {
	for _, flags := range []feature.Flags{basic, recovery} {
		h := newTestHost(t, rules.DefaultTable(), flags)
		h.press(keycode.W)
		h.press(keycode.A)
		h.press(keycode.D)

		assert.Equal(t, keys(keycode.D, keycode.W), h.keys(), flags.String())
		for _, eff := range h.rec.Drain() {
			assert.NotEqual(t, keycode.W, eff.Key, "W must never be touched")
		}
	}
}

func TestBasic_SuppressesEveryRuleForTrigger(t *testing.T) {
	h := newTestHost(t, rules.DefaultTable(), basic)
	h.press(keycode.F)
	h.press(keycode.D)
	h.rec.Drain()

	h.press(keycode.A)

	assert.Equal(t, []report.Effect{
		{Op: report.OpWithdraw, Key: keycode.D},
		{Op: report.OpWithdraw, Key: keycode.F},
	}, h.rec.Drain())
	assert.Equal(t, keys(keycode.A), h.keys())
}

func TestRecovery_RoundTrip(t *testing.T) {
	h := newTestHost(t, rules.DefaultTable(), recovery)

	h.press(keycode.A)
	assert.Equal(t, keys(keycode.A), h.keys())

	h.press(keycode.D)
	assert.Equal(t, keys(keycode.D), h.keys())

	h.release(keycode.D)
	assert.Equal(t, keys(keycode.A), h.keys())

	assert.Equal(t, []LedgerEntry{{Key: keycode.A, Withdrawn: true}}, h.eng.Ledger(), "KC_D is untracked but still withdraws KC_A")
}

func TestRecovery_RepeatedCycles(t *testing.T) {
	h := newTestHost(t, rules.DefaultTable(), recovery)

	h.press(keycode.W)
	h.press(keycode.A)
	assert.Equal(t, keys(keycode.A, keycode.W), h.keys())

	for i := 0; i < 3; i++ {
		h.press(keycode.D)
		assert.Equal(t, keys(keycode.D, keycode.W), h.keys(), "cycle %d press", i)

		h.release(keycode.D)
		assert.Equal(t, keys(keycode.A, keycode.W), h.keys(), "cycle %d release", i)
	}

	h.release(keycode.A)
	h.release(keycode.W)
	assert.Empty(t, h.keys())
	assert.Empty(t, h.eng.Ledger())
}

func TestRecovery_ReleaseOlderKeyKeepsNewer(t *testing.T) {
	h := newTestHost(t, rules.DefaultTable(), recovery)
	h.press(keycode.A)
	h.press(keycode.D)

	h.release(keycode.A)

	assert.Equal(t, keys(keycode.D), h.keys())
	assert.Equal(t, []LedgerEntry{{Key: keycode.D}}, h.eng.Ledger())
}

func TestRecovery_ReleaseEmitsOnlyDefensiveAssert(t *testing.T) {
	h := newTestHost(t, rules.DefaultTable(), recovery)
	h.press(keycode.A)
	h.press(keycode.D)
	h.press(keycode.W)
	h.rec.Drain()

	h.release(keycode.W)

	// A stays blocked by D: no withdraw is re-issued. D is re-asserted.
	assert.Equal(t, []report.Effect{{Op: report.OpAssert, Key: keycode.D}}, h.rec.Drain())
	assert.Equal(t, keys(keycode.D), h.keys())
}

func TestRecovery_WithdrawsNewlyBlockedEntry(t *testing.T) {
	h := newTestHost(t, rules.DefaultTable(), recovery)
	h.eng.ledger.Insert(keycode.A)
	h.eng.ledger.Insert(keycode.D)

	h.release(keycode.W)

	assert.Equal(t, []report.Effect{
		{Op: report.OpAssert, Key: keycode.D},
		{Op: report.OpWithdraw, Key: keycode.A},
	}, h.rec.Drain())
	assert.True(t, h.eng.ledger.Withdrawn(0))
}

// chainTable is C suppresses B suppresses A. A is a trigger too so that it
// is tracked by the ledger.
func chainTable() *rules.Table {
	return rules.NewTable(
		rules.Rule{Trigger: keycode.C, Suppressed: keycode.B},
		rules.Rule{Trigger: keycode.B, Suppressed: keycode.A},
		rules.Rule{Trigger: keycode.A, Suppressed: keycode.Z},
	)
}

func TestRecovery_ChainUnwindsOneHopPerRelease(t *testing.T) {
	table := chainTable()
	h := newTestHost(t, table, recovery)

	h.press(keycode.A)
	h.press(keycode.B)
	h.press(keycode.C)
	assert.Equal(t, keys(keycode.C), h.keys())
	h.rec.Drain()

	h.release(keycode.C)
	assert.Equal(t, keys(keycode.B), h.keys(), "A is still blocked by the held B")
	assert.Equal(t, []report.Effect{{Op: report.OpAssert, Key: keycode.B}}, h.rec.Drain())

	h.release(keycode.B)
	assert.Equal(t, keys(keycode.A), h.keys())
}

func TestRecovery_BlockedEntryStillBlocks(t *testing.T) {
	table := chainTable()
	h := newTestHost(t, table, recovery)
	h.press(keycode.A)
	h.press(keycode.B)
	h.press(keycode.C)
	h.press(keycode.W)

	h.release(keycode.W)

	assert.Equal(t, keys(keycode.C), h.keys())
	assert.Equal(t, []LedgerEntry{
		{Key: keycode.A, Withdrawn: true},
		{Key: keycode.B, Withdrawn: true},
		{Key: keycode.C},
	}, h.eng.Ledger())
}

func TestRecovery_CapacityBoundary(t *testing.T) {
	var rs []rules.Rule
	for i := 0; i < DefaultCapacity+1; i++ {
		rs = append(rs, rules.Rule{Trigger: keycode.A + keycode.Keycode(i), Suppressed: keycode.Z})
	}
	h := newTestHost(t, rules.NewTable(rs...), recovery)

	for i := 0; i < DefaultCapacity+1; i++ {
		h.press(keycode.A + keycode.Keycode(i))
	}
	require.Len(t, h.eng.Ledger(), DefaultCapacity)

	extra := keycode.A + keycode.Keycode(DefaultCapacity)
	h.release(extra)
	assert.Len(t, h.eng.Ledger(), DefaultCapacity)
	assert.False(t, h.report.Has(extra))
}

func TestRecovery_NonTriggerDoesNotEnterLedger(t *testing.T) {
	h := newTestHost(t, rules.DefaultTable(), recovery)

	h.press(keycode.F)
	h.press(keycode.W)

	assert.Empty(t, h.eng.Ledger())
	assert.Equal(t, keys(keycode.F, keycode.W), h.keys())
}

func TestRecovery_UntrackedVictimIsNotRestored(t *testing.T) {
	h := newTestHost(t, rules.DefaultTable(), recovery)
	h.press(keycode.F)
	h.press(keycode.A)
	assert.Equal(t, keys(keycode.A), h.keys())

	h.release(keycode.A)

	assert.Empty(t, h.keys(), "F is not a trigger so it is never tracked")
}

func TestGate_Disabled(t *testing.T) {
	h := newTestHost(t, rules.DefaultTable(), feature.Flags{Recovery: true})

	assert.True(t, h.press(keycode.A))
	assert.True(t, h.press(keycode.D))

	assert.Equal(t, keys(keycode.A, keycode.D), h.keys())
	assert.Empty(t, h.rec.Drain())
	assert.Empty(t, h.eng.Ledger())
}

func TestGate_NonBasicKeycode(t *testing.T) {
	h := newTestHost(t, rules.DefaultTable(), recovery)
	h.press(keycode.A)
	h.rec.Drain()

	shiftD := keycode.Modified(keycode.ModShift, keycode.D)
	assert.True(t, h.eng.ProcessEvent(shiftD, Press()))

	assert.Empty(t, h.rec.Drain())
	assert.Equal(t, keys(keycode.A), h.keys())
}

func TestGate_ModifierKeycode(t *testing.T) {
	table := rules.NewTable(rules.Rule{Trigger: keycode.LeftShift, Suppressed: keycode.A})

	for _, flags := range []feature.Flags{basic, recovery} {
		h := newTestHost(t, table, flags)
		h.press(keycode.A)
		h.rec.Drain()

		assert.True(t, h.press(keycode.LeftShift))
		assert.Empty(t, h.rec.Drain(), "modifiers are never arbitrated")
		assert.Equal(t, keys(keycode.A, keycode.LeftShift), h.keys())
		assert.Empty(t, h.eng.Ledger())
	}
}

func TestGate_Veto(t *testing.T) {
	var seen []Event
	veto := func(k keycode.Keycode, ev Event) bool {
		seen = append(seen, ev)
		return k != keycode.D
	}
	h := newTestHost(t, rules.DefaultTable(), basic, WithVeto(veto))

	h.press(keycode.A)
	h.eng.ProcessEvent(keycode.D, Event{Pressed: true, Row: 2, Col: 3})
	h.report.Assert(keycode.D)

	assert.Equal(t, keys(keycode.A, keycode.D), h.keys())
	require.Len(t, seen, 2)
	assert.Equal(t, Event{Pressed: true, Row: 2, Col: 3}, seen[1])
}

func TestWithVeto_NilKeepsDefault(t *testing.T) {
	h := newTestHost(t, rules.DefaultTable(), basic, WithVeto(nil), WithLogger(nil))
	h.press(keycode.A)
	h.press(keycode.D)
	assert.Equal(t, keys(keycode.D), h.keys())
}

func TestCommands(t *testing.T) {
	h := newTestHost(t, rules.DefaultTable(), feature.Flags{})

	tests := []struct {
		key  keycode.Keycode
		want feature.Flags
	}{
		{keycode.ArbiterOn, feature.Flags{Enabled: true}},
		{keycode.RecoveryOn, feature.Flags{Enabled: true, Recovery: true}},
		{keycode.ArbiterToggle, feature.Flags{Recovery: true}},
		{keycode.ArbiterToggle, feature.Flags{Enabled: true, Recovery: true}},
		{keycode.RecoveryToggle, feature.Flags{Enabled: true}},
		{keycode.RecoveryToggle, feature.Flags{Enabled: true, Recovery: true}},
		{keycode.RecoveryOff, feature.Flags{Enabled: true}},
		{keycode.ArbiterOff, feature.Flags{}},
	}

	for _, tt := range tests {
		assert.False(t, h.press(tt.key), "%s press is consumed", tt.key)
		assert.Equal(t, tt.want, h.eng.Flags(), tt.key.String())
		assert.True(t, h.release(tt.key), "%s release is forwarded", tt.key)
	}
	assert.Empty(t, h.keys())
}

func TestCommands_ReservedCodeForwarded(t *testing.T) {
	h := newTestHost(t, rules.DefaultTable(), basic)

	assert.True(t, h.eng.ProcessEvent(keycode.CommandFirst+9, Press()))
	assert.Equal(t, basic, h.eng.Flags())
}

func TestCommands_EnableWhileDisabled(t *testing.T) {
	h := newTestHost(t, rules.DefaultTable(), feature.Flags{})

	h.press(keycode.ArbiterOn)
	h.press(keycode.A)
	h.press(keycode.D)

	assert.Equal(t, keys(keycode.D), h.keys())
}

func TestRecoveryOffClearsLedger(t *testing.T) {
	for name, turnOff := range map[string]func(*Engine){
		"recovery disable": (*Engine).RecoveryDisable,
		"recovery toggle":  (*Engine).RecoveryToggle,
		"disable":          (*Engine).Disable,
		"toggle":           (*Engine).Toggle,
	} {
		t.Run(name, func(t *testing.T) {
			h := newTestHost(t, rules.DefaultTable(), recovery)
			h.press(keycode.A)
			h.press(keycode.D)
			require.Len(t, h.eng.Ledger(), 2)

			turnOff(h.eng)

			assert.Empty(t, h.eng.Ledger())
			assert.False(t, h.eng.RecoveryIsEnabled())
		})
	}
}

func TestRecoveryOn_DoesNotTrackKeysAlreadyHeld(t *testing.T) {
	h := newTestHost(t, rules.DefaultTable(), basic)
	h.press(keycode.A)

	h.eng.RecoveryEnable()
	h.press(keycode.D)
	assert.Equal(t, []LedgerEntry{{Key: keycode.D}}, h.eng.Ledger(), "A was held before recovery started")

	h.release(keycode.D)
	assert.Empty(t, h.keys(), "untracked A cannot be restored")

	h.eng.Enable()
	assert.True(t, h.eng.IsEnabled())
}

func TestEnginePersistsThroughState(t *testing.T) {
	var writes []feature.Flags
	p := persistFunc(func(f feature.Flags) error {
		writes = append(writes, f)
		return nil
	})
	eng := New(rules.DefaultTable(), report.New(), feature.NewState(feature.Flags{}, p, nil))

	eng.ProcessEvent(keycode.ArbiterToggle, Press())
	eng.ProcessEvent(keycode.RecoveryToggle, Press())

	assert.Equal(t, []feature.Flags{{Enabled: true}, {Enabled: true, Recovery: true}}, writes)
}

type persistFunc func(feature.Flags) error

func (f persistFunc) Persist(flags feature.Flags) error { return f(flags) }

func debugLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestLedgerFull_TracesOnlyUntrackedKeys(t *testing.T) {
	var buf bytes.Buffer
	h := newTestHost(t, rules.DefaultTable(), recovery, WithCapacity(1), WithLogger(debugLogger(&buf)))

	h.press(keycode.A)
	h.press(keycode.A)
	assert.NotContains(t, buf.String(), "ledger full", "a repeated press of a tracked key is not a drop")

	h.press(keycode.D)
	assert.Contains(t, buf.String(), "ledger full")
	assert.Contains(t, buf.String(), "key=KC_D")
	assert.Equal(t, []LedgerEntry{{Key: keycode.A, Withdrawn: true}}, h.eng.Ledger(), "KC_D is untracked but still withdraws KC_A")
}

func TestVetoedEvent_NoAllocsWithoutDebug(t *testing.T) {
	unnamed := keycode.Keycode(0x68)
	veto := func(keycode.Keycode, Event) bool { return false }
	eng := New(rules.DefaultTable(), report.New(), feature.NewState(recovery, nil, nil), WithVeto(veto))

	allocs := testing.AllocsPerRun(100, func() {
		eng.ProcessEvent(unnamed, Press())
	})
	assert.Equal(t, float64(0), allocs)
}
