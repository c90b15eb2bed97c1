package compiler

import (
	"fmt"

	"github.com/roach88/interlock/internal/keycode"
)

// Validation error codes (E200-E299)
const (
	ErrUnsupportedType = "E200" // unsupported value passed to Validate

	ErrNonBasicKeycode = "E201" // rule keycode is not a plain basic keycode
	ErrSelfSuppression = "E202" // trigger equals suppressed
	ErrDuplicateRule   = "E203" // identical rule declared twice
	ErrCapacityRange   = "E204" // ledger capacity outside 1..16
	ErrUnknownKeycode  = "E205" // keycode name not recognised
)

// MaxCapacity mirrors the ledger's hard ceiling.
const MaxCapacity = 16

// ValidationError represents a keymap validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled keymap.
// Returns all errors found (does not fail-fast), in rule order.
func Validate(v any) []ValidationError {
	switch km := v.(type) {
	case *Keymap:
		return validateKeymap(km)
	case Keymap:
		return validateKeymap(&km)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type: %T", v),
			Code:    ErrUnsupportedType,
		}}
	}
}

func validateKeymap(km *Keymap) []ValidationError {
	var errs []ValidationError

	seen := make(map[[2]keycode.Keycode]int)
	for i, r := range km.Rules.Rules() {
		line := km.line(i)

		for _, fk := range []struct {
			name string
			k    keycode.Keycode
		}{
			{"trigger", r.Trigger},
			{"suppressed", r.Suppressed},
		} {
			// E201: only plain keycodes can be arbitrated
			if !keycode.IsBasic(fk.k) {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("rules[%d].%s", i, fk.name),
					Message: fmt.Sprintf("%s is not a plain basic keycode", fk.k),
					Code:    ErrNonBasicKeycode,
					Line:    line,
				})
			}
		}

		// E202: a key cannot suppress itself
		if r.Trigger == r.Suppressed {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("rules[%d]", i),
				Message: fmt.Sprintf("%s suppresses itself", r.Trigger),
				Code:    ErrSelfSuppression,
				Line:    line,
			})
		}

		// E203: duplicate rule
		pair := [2]keycode.Keycode{r.Trigger, r.Suppressed}
		if first, dup := seen[pair]; dup {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("rules[%d]", i),
				Message: fmt.Sprintf("duplicate of rules[%d] (%s)", first, r),
				Code:    ErrDuplicateRule,
				Line:    line,
			})
		} else {
			seen[pair] = i
		}
	}

	// E204: capacity must fit the 16-bit withdrawn mask
	if km.Capacity < 1 || km.Capacity > MaxCapacity {
		errs = append(errs, ValidationError{
			Field:   "ledger.capacity",
			Message: fmt.Sprintf("capacity %d out of range 1..%d", km.Capacity, MaxCapacity),
			Code:    ErrCapacityRange,
		})
	}

	return errs
}

// line returns the source line of rule i, or 0 when unknown.
func (km *Keymap) line(i int) int {
	if i >= len(km.Pos) || !km.Pos[i].IsValid() {
		return 0
	}
	return km.Pos[i].Line()
}
