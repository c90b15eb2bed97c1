package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/interlock/internal/keycode"
	"github.com/roach88/interlock/internal/rules"
)

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidate_DefaultKeymap(t *testing.T) {
	km := &Keymap{Rules: rules.DefaultTable(), Capacity: 10}
	assert.Empty(t, Validate(km))
	assert.Empty(t, Validate(*km))
}

func TestValidate_CollectsAll(t *testing.T) {
	km := &Keymap{
		Rules: rules.NewTable(
			rules.Rule{Trigger: keycode.Modified(keycode.ModShift, keycode.D), Suppressed: keycode.A},
			rules.Rule{Trigger: keycode.A, Suppressed: keycode.A},
			rules.Rule{Trigger: keycode.D, Suppressed: keycode.A},
			rules.Rule{Trigger: keycode.D, Suppressed: keycode.A},
			rules.Rule{Trigger: keycode.ArbiterOn, Suppressed: keycode.None},
		),
		Capacity: 17,
	}

	errs := Validate(km)

	assert.Equal(t, []string{
		ErrNonBasicKeycode,
		ErrSelfSuppression,
		ErrDuplicateRule,
		ErrNonBasicKeycode,
		ErrNonBasicKeycode,
		ErrCapacityRange,
	}, codes(errs))
	assert.Equal(t, "rules[3]", errs[2].Field)
	assert.Contains(t, errs[2].Message, "rules[2]")
	assert.Equal(t, "rules[4].suppressed", errs[4].Field)
}

func TestValidate_ModifierKeycode(t *testing.T) {
	km := &Keymap{
		Rules: rules.NewTable(
			rules.Rule{Trigger: keycode.LeftShift, Suppressed: keycode.A},
			rules.Rule{Trigger: keycode.D, Suppressed: keycode.RightGUI},
			rules.Rule{Trigger: keycode.Transparent, Suppressed: keycode.D},
		),
		Capacity: 10,
	}

	errs := Validate(km)

	assert.Equal(t, []string{ErrNonBasicKeycode, ErrNonBasicKeycode, ErrNonBasicKeycode}, codes(errs))
	assert.Equal(t, "rules[0].trigger", errs[0].Field)
	assert.Contains(t, errs[0].Message, "KC_LEFT_SHIFT")
	assert.Equal(t, "rules[1].suppressed", errs[1].Field)
	assert.Equal(t, "rules[2].trigger", errs[2].Field)
}

func TestValidate_CapacityBounds(t *testing.T) {
	for _, c := range []int{1, 10, 16} {
		assert.Empty(t, Validate(&Keymap{Rules: rules.NewTable(), Capacity: c}), "capacity %d", c)
	}
	for _, c := range []int{0, -1, 17} {
		assert.Equal(t, []string{ErrCapacityRange}, codes(Validate(&Keymap{Rules: rules.NewTable(), Capacity: c})), "capacity %d", c)
	}
}

func TestValidate_UnsupportedType(t *testing.T) {
	errs := Validate("nope")
	assert.Equal(t, []string{ErrUnsupportedType}, codes(errs))
}

func TestValidationError_Format(t *testing.T) {
	e := ValidationError{Field: "rules[0]", Message: "KC_A suppresses itself", Code: ErrSelfSuppression, Line: 3}
	assert.Equal(t, "[E202] line 3: rules[0]: KC_A suppresses itself", e.Error())

	e.Line = 0
	assert.Equal(t, "[E202] rules[0]: KC_A suppresses itself", e.Error())
}
