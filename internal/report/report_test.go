package report

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/interlock/internal/keycode"
)

func TestAssertWithdraw_Idempotent(t *testing.T) {
	r := New()

	r.Assert(keycode.A)
	r.Assert(keycode.A)
	assert.Equal(t, []keycode.Keycode{keycode.A}, r.Keys())

	r.Withdraw(keycode.A)
	r.Withdraw(keycode.A)
	assert.Empty(t, r.Keys())
}

func TestIgnoresNonBasic(t *testing.T) {
	r := New()

	r.Assert(keycode.ArbiterToggle)
	r.Assert(keycode.Modified(keycode.ModShift, keycode.A))
	r.Assert(keycode.None)
	r.Withdraw(keycode.ArbiterToggle)

	assert.Empty(t, r.Keys())
	assert.False(t, r.Has(keycode.ArbiterToggle))
}

func TestKeysAscending(t *testing.T) {
	r := New()
	r.Assert(keycode.W)
	r.Assert(keycode.D)
	r.Assert(keycode.A)

	assert.Equal(t, []string{"KC_A", "KC_D", "KC_W"}, r.Names())
	assert.Equal(t, "{KC_A KC_D KC_W}", r.String())

	r.Clear()
	assert.Equal(t, "{}", r.String())
}

func TestBoot(t *testing.T) {
	r := New()
	r.Assert(keycode.LeftShift)
	r.Assert(keycode.RightGUI)
	r.Assert(keycode.W)
	r.Assert(keycode.A)

	got := r.Boot()
	assert.Equal(t, [8]byte{0x82, 0x00, 0x04, 0x1A, 0, 0, 0, 0}, got)
	assert.True(t, r.Has(keycode.LeftShift))
	assert.Equal(t, []string{"KC_A", "KC_W", "KC_LEFT_SHIFT", "KC_RIGHT_GUI"}, r.Names())
}

func TestBoot_RollOver(t *testing.T) {
	r := New()
	for k := keycode.A; k < keycode.A+7; k++ {
		r.Assert(k)
	}
	r.Assert(keycode.LeftCtrl)

	got := r.Boot()
	assert.Equal(t, byte(0x01), got[0])
	for i := 2; i < BootReportLen; i++ {
		assert.Equal(t, ErrorRollOver, got[i])
	}
}

func TestRecorder(t *testing.T) {
	r := New()
	rec := NewRecorder(r)

	rec.Assert(keycode.A)
	rec.Withdraw(keycode.A)
	rec.Assert(keycode.D)

	effects := rec.Drain()
	assert.Equal(t, []Effect{
		{Op: OpAssert, Key: keycode.A},
		{Op: OpWithdraw, Key: keycode.A},
		{Op: OpAssert, Key: keycode.D},
	}, effects)
	assert.Equal(t, "withdraw KC_A", effects[1].String())
	assert.Equal(t, []keycode.Keycode{keycode.D}, r.Keys())

	assert.Empty(t, rec.Drain())
}

func TestRecorder_NilSink(t *testing.T) {
	rec := NewRecorder(nil)
	rec.Withdraw(keycode.F)
	assert.Len(t, rec.Drain(), 1)
}
