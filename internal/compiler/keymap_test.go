package compiler

import (
	"errors"
	"testing"

	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/interlock/internal/feature"
	"github.com/roach88/interlock/internal/keycode"
	"github.com/roach88/interlock/internal/rules"
)

func TestCompileKeymapBasic(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		rules: [
			{trigger: "KC_D", suppressed: "KC_A"},
			{trigger: "a", suppressed: "d"},
			{trigger: "KC_A", suppressed: 9},
		]
		features: {enabled: true, recovery: true}
		ledger: capacity: 12
	`)
	require.NoError(t, v.Err())

	km, err := CompileKeymap(v)
	require.NoError(t, err)

	assert.Equal(t, rules.DefaultTable().Rules(), km.Rules.Rules())
	assert.Equal(t, feature.Flags{Enabled: true, Recovery: true}, km.Features)
	assert.Equal(t, 12, km.Capacity)
	require.Len(t, km.Pos, 3)
	assert.True(t, km.Pos[1].IsValid())
}

func TestCompileKeymapDefaults(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`rules: []`)

	km, err := CompileKeymap(v)
	require.NoError(t, err)

	assert.Equal(t, 0, km.Rules.Count())
	assert.Equal(t, feature.Flags{}, km.Features)
	assert.Equal(t, DefaultCapacity, km.Capacity)
}

func TestCompileKeymapPartialFeatures(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		rules: []
		features: enabled: true
	`)

	km, err := CompileKeymap(v)
	require.NoError(t, err)
	assert.Equal(t, feature.Flags{Enabled: true}, km.Features)
}

func TestCompileKeymapMissingRules(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`features: enabled: true`)

	_, err := CompileKeymap(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rules is required")
}

func TestCompileKeymapErrors(t *testing.T) {
	tests := []struct {
		name      string
		src       string
		wantField string
		wantCode  string
	}{
		{
			name:      "rules not a list",
			src:       `rules: {a: 1}`,
			wantField: "rules",
		},
		{
			name:      "missing suppressed",
			src:       `rules: [{trigger: "KC_A"}]`,
			wantField: "rules[0].suppressed",
		},
		{
			name:      "unknown name",
			src:       `rules: [{trigger: "KC_A", suppressed: "KC_NOPE"}]`,
			wantField: "rules[0].suppressed",
			wantCode:  ErrUnknownKeycode,
		},
		{
			name:      "integer out of range",
			src:       `rules: [{trigger: 70000, suppressed: "KC_A"}]`,
			wantField: "rules[0].trigger",
			wantCode:  ErrUnknownKeycode,
		},
		{
			name:      "wrong kind",
			src:       `rules: [{trigger: true, suppressed: "KC_A"}]`,
			wantField: "rules[0].trigger",
		},
		{
			name:      "feature not bool",
			src:       `rules: [], features: enabled: "yes"`,
			wantField: "features.enabled",
		},
		{
			name:      "capacity not int",
			src:       `rules: [], ledger: capacity: "ten"`,
			wantField: "ledger.capacity",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := cuecontext.New().CompileString(tt.src)
			require.NoError(t, v.Err())

			_, err := CompileKeymap(v)
			require.Error(t, err)

			var ce *CompileError
			require.True(t, errors.As(err, &ce), "got %T: %v", err, err)
			assert.Equal(t, tt.wantField, ce.Field)
			assert.Equal(t, tt.wantCode, ce.Code)
		})
	}
}

func TestCompileKeymapCUEError(t *testing.T) {
	v := cuecontext.New().CompileString(`{rules: []} & 3`)

	_, err := CompileKeymap(v)
	require.Error(t, err)
}

func TestCompileError_Format(t *testing.T) {
	err := &CompileError{Field: "rules", Message: "rules is required"}
	assert.Equal(t, "rules: rules is required", err.Error())
}

func TestFormatCUEError_Nil(t *testing.T) {
	assert.NoError(t, formatCUEError(nil))
}

func TestCompileKeymapNumericKeycodes(t *testing.T) {
	v := cuecontext.New().CompileString(`rules: [{trigger: 0x07, suppressed: "0x04"}]`)

	km, err := CompileKeymap(v)
	require.NoError(t, err)
	assert.Equal(t, rules.Rule{Trigger: keycode.D, Suppressed: keycode.A}, km.Rules.At(0))
}
