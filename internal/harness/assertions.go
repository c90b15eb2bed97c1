package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/interlock/internal/keycode"
	"github.com/roach88/interlock/internal/report"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)

	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s -> %v report=%v\n",
				event.Seq, event.Event, event.Effects, event.Report)
		}
	}

	return buf.String()
}

// canonicalEffect normalizes an effect string such as "withdraw a" to the
// form used in the trace ("withdraw KC_A").
func canonicalEffect(s string) (string, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return "", fmt.Errorf("effect %q: want \"<assert|withdraw> <key>\"", s)
	}
	op := report.Op(strings.ToLower(fields[0]))
	if op != report.OpAssert && op != report.OpWithdraw {
		return "", fmt.Errorf("effect %q: unknown op %q", s, fields[0])
	}
	k, err := keycode.Parse(fields[1])
	if err != nil {
		return "", fmt.Errorf("effect %q: %w", s, err)
	}
	return report.Effect{Op: op, Key: k}.String(), nil
}

// parseLedgerKey reads a final_ledger entry; a "!" prefix marks it withdrawn.
func parseLedgerKey(s string) (keycode.Keycode, bool, error) {
	withdrawn := strings.HasPrefix(s, "!")
	k, err := keycode.Parse(strings.TrimPrefix(s, "!"))
	return k, withdrawn, err
}

// flatEffects lists every effect in the trace, in emission order.
func flatEffects(trace []TraceEvent) []string {
	var out []string
	for _, event := range trace {
		out = append(out, event.Effects...)
	}
	return out
}

// assertTraceContains checks that the effect was emitted at least once.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	want, err := canonicalEffect(assertion.Effect)
	if err != nil {
		return err
	}
	if slices.Contains(flatEffects(trace), want) {
		return nil
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("effect %s", want),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the effects appear as a subsequence of the
// emitted effects. Effects don't need to be consecutive.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	want := make([]string, len(assertion.Effects))
	for i, e := range assertion.Effects {
		c, err := canonicalEffect(e)
		if err != nil {
			return err
		}
		want[i] = c
	}

	got := flatEffects(trace)
	pos := 0
	for _, w := range want {
		idx := slices.Index(got[pos:], w)
		if idx < 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("effects in order: %v", want),
				Actual:   fmt.Sprintf("%s not found after position %d in %v", w, pos, got),
				Trace:    trace,
			}
		}
		pos += idx + 1
	}

	return nil
}

// assertTraceCount checks if the effect appears exactly the specified number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	want, err := canonicalEffect(assertion.Effect)
	if err != nil {
		return err
	}

	count := 0
	for _, e := range flatEffects(trace) {
		if e == want {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, want),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}

	return nil
}

// assertFinalReport compares the final host report as a set.
func assertFinalReport(result *Result, assertion Assertion) error {
	want, err := canonicalKeys(assertion.Keys)
	if err != nil {
		return err
	}
	if slices.Equal(want, result.Report) {
		return nil
	}
	return &AssertionError{
		Type:     AssertFinalReport,
		Expected: fmt.Sprintf("report %v", want),
		Actual:   fmt.Sprintf("report %v", result.Report),
		Trace:    result.Trace,
	}
}

// assertFinalLedger compares the final ledger, order and withdrawn marks
// included.
func assertFinalLedger(result *Result, assertion Assertion) error {
	want := make([]string, len(assertion.Keys))
	for i, s := range assertion.Keys {
		k, withdrawn, err := parseLedgerKey(s)
		if err != nil {
			return err
		}
		want[i] = k.String()
		if withdrawn {
			want[i] = "!" + want[i]
		}
	}
	if slices.Equal(want, result.Ledger) {
		return nil
	}
	return &AssertionError{
		Type:     AssertFinalLedger,
		Expected: fmt.Sprintf("ledger %v", want),
		Actual:   fmt.Sprintf("ledger %v", result.Ledger),
		Trace:    result.Trace,
	}
}

// assertFinalFlags checks the engine flags and the flags persisted in the
// store. Both must match every field the assertion names.
func assertFinalFlags(result *Result, assertion Assertion) error {
	check := func(where string, enabled, recovery bool) error {
		if assertion.Enabled != nil && *assertion.Enabled != enabled {
			return &AssertionError{
				Type:     AssertFinalFlags,
				Expected: fmt.Sprintf("%s enabled=%t", where, *assertion.Enabled),
				Actual:   fmt.Sprintf("%s enabled=%t", where, enabled),
			}
		}
		if assertion.Recovery != nil && *assertion.Recovery != recovery {
			return &AssertionError{
				Type:     AssertFinalFlags,
				Expected: fmt.Sprintf("%s recovery=%t", where, *assertion.Recovery),
				Actual:   fmt.Sprintf("%s recovery=%t", where, recovery),
			}
		}
		return nil
	}

	if err := check("engine", result.Flags.Enabled, result.Flags.Recovery); err != nil {
		return err
	}
	return check("store", result.PersistedFlags.Enabled, result.PersistedFlags.Recovery)
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalReport:
			err = assertFinalReport(result, assertion)
		case AssertFinalLedger:
			err = assertFinalLedger(result, assertion)
		case AssertFinalFlags:
			err = assertFinalFlags(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
