package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/interlock/internal/feature"
	"github.com/roach88/interlock/internal/keycode"
	"github.com/roach88/interlock/internal/rules"
)

// DefaultCapacity is the ledger capacity used when a keymap omits
// ledger.capacity.
const DefaultCapacity = 10

// Keymap is a compiled arbitration keymap.
type Keymap struct {
	Rules    *rules.Table
	Features feature.Flags // defaults for a store that has never been written
	Capacity int

	// Pos records where each rule was declared, by rule index.
	Pos []token.Pos
}

// CompileKeymap parses a CUE value into a Keymap.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The value is the keymap root, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`
//		rules: [{trigger: "KC_D", suppressed: "KC_A"}]
//		features: {enabled: true, recovery: true}
//		ledger: capacity: 10
//	`)
//	km, err := CompileKeymap(v)
//
// Keycodes may be names ("KC_A", "a") or integers. Structural problems are
// returned as *CompileError; semantic checks live in Validate.
func CompileKeymap(v cue.Value) (*Keymap, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	km := &Keymap{Capacity: DefaultCapacity}

	rulesVal := v.LookupPath(cue.ParsePath("rules"))
	if !rulesVal.Exists() {
		return nil, &CompileError{
			Field:   "rules",
			Message: "rules is required",
			Pos:     v.Pos(),
		}
	}
	rs, pos, err := parseRules(rulesVal)
	if err != nil {
		return nil, err
	}
	km.Rules = rules.NewTable(rs...)
	km.Pos = pos

	if featVal := v.LookupPath(cue.ParsePath("features")); featVal.Exists() {
		km.Features, err = parseFeatures(featVal)
		if err != nil {
			return nil, err
		}
	}

	capVal := v.LookupPath(cue.ParsePath("ledger.capacity"))
	if capVal.Exists() {
		n, err := capVal.Int64()
		if err != nil {
			return nil, &CompileError{
				Field:   "ledger.capacity",
				Message: "capacity must be an integer",
				Pos:     capVal.Pos(),
			}
		}
		km.Capacity = int(n)
	}

	return km, nil
}

// parseRules reads the rules list in declaration order.
func parseRules(v cue.Value) ([]rules.Rule, []token.Pos, error) {
	iter, err := v.List()
	if err != nil {
		return nil, nil, &CompileError{
			Field:   "rules",
			Message: "rules must be a list",
			Pos:     v.Pos(),
		}
	}

	var (
		out []rules.Rule
		pos []token.Pos
	)
	for i := 0; iter.Next(); i++ {
		rv := iter.Value()
		trigger, err := parseKeycodeField(rv, "trigger", i)
		if err != nil {
			return nil, nil, err
		}
		suppressed, err := parseKeycodeField(rv, "suppressed", i)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, rules.Rule{Trigger: trigger, Suppressed: suppressed})
		pos = append(pos, rv.Pos())
	}
	return out, pos, nil
}

// parseKeycodeField reads rules[i].<name> as a keycode name or integer.
func parseKeycodeField(rv cue.Value, name string, i int) (keycode.Keycode, error) {
	field := fmt.Sprintf("rules[%d].%s", i, name)
	fv := rv.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return 0, &CompileError{
			Field:   field,
			Message: name + " is required",
			Pos:     rv.Pos(),
		}
	}

	switch fv.IncompleteKind() {
	case cue.StringKind:
		s, err := fv.String()
		if err != nil {
			return 0, formatCUEError(err)
		}
		k, err := keycode.Parse(s)
		if err != nil {
			return 0, &CompileError{
				Field:   field,
				Message: fmt.Sprintf("unknown keycode %q", s),
				Pos:     fv.Pos(),
				Code:    ErrUnknownKeycode,
			}
		}
		return k, nil
	case cue.IntKind:
		n, err := fv.Int64()
		if err != nil {
			return 0, formatCUEError(err)
		}
		if n < 0 || n > 0xFFFF {
			return 0, &CompileError{
				Field:   field,
				Message: fmt.Sprintf("keycode %d out of 16-bit range", n),
				Pos:     fv.Pos(),
				Code:    ErrUnknownKeycode,
			}
		}
		return keycode.Keycode(n), nil
	default:
		return 0, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("keycode must be a name or integer, got %v", fv.IncompleteKind()),
			Pos:     fv.Pos(),
		}
	}
}

// parseFeatures reads the optional features struct. Missing fields are false.
func parseFeatures(v cue.Value) (feature.Flags, error) {
	var f feature.Flags
	for _, fld := range []struct {
		name string
		dst  *bool
	}{
		{"enabled", &f.Enabled},
		{"recovery", &f.Recovery},
	} {
		fv := v.LookupPath(cue.ParsePath(fld.name))
		if !fv.Exists() {
			continue
		}
		b, err := fv.Bool()
		if err != nil {
			return f, &CompileError{
				Field:   "features." + fld.name,
				Message: "must be a bool",
				Pos:     fv.Pos(),
			}
		}
		*fld.dst = b
	}
	return f, nil
}

// CompileError represents a compilation error with source position.
// Code is set when the error maps onto a validation code.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
	Code    string
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
