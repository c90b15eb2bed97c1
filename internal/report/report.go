// Package report models the pending outgoing host key report.
//
// Report stands in for the USB/BLE HID layer: Assert and Withdraw add and
// remove keycodes, and Boot encodes the current state as an 8-byte boot
// protocol keyboard report.
package report

import (
	"strings"

	"github.com/roach88/interlock/internal/keycode"
)

// Boot protocol layout.
const (
	BootReportLen = 8
	BootKeySlots  = 6

	// ErrorRollOver fills every key slot when more keys are held than fit.
	ErrorRollOver byte = 0x01
)

// Report is the set of HID usages currently asserted to the host. It holds
// modifiers as well as basic keys so Boot can fill the modifier byte.
// The zero value is an empty report. Report never allocates on Assert or
// Withdraw.
type Report struct {
	bits [32]byte // one bit per usage ID 0x00..0xFF
}

// New returns an empty report.
func New() *Report { return &Report{} }

// inRange reports whether k is a single HID usage the report can hold.
func inRange(k keycode.Keycode) bool {
	return k <= keycode.UsageMax
}

// Assert adds k to the report. KC_NO and composite keycodes are ignored.
// Idempotent.
func (r *Report) Assert(k keycode.Keycode) {
	if !inRange(k) || k == keycode.None {
		return
	}
	r.bits[k>>3] |= 1 << (k & 7)
}

// Withdraw removes k from the report. Idempotent.
func (r *Report) Withdraw(k keycode.Keycode) {
	if !inRange(k) {
		return
	}
	r.bits[k>>3] &^= 1 << (k & 7)
}

// Has reports whether k is asserted.
func (r *Report) Has(k keycode.Keycode) bool {
	if !inRange(k) {
		return false
	}
	return r.bits[k>>3]&(1<<(k&7)) != 0
}

// Clear empties the report.
func (r *Report) Clear() { r.bits = [32]byte{} }

// Keys returns the asserted keycodes in ascending order. An empty report
// yields an empty, non-nil slice.
func (r *Report) Keys() []keycode.Keycode {
	out := make([]keycode.Keycode, 0, BootKeySlots)
	for k := keycode.None; k <= keycode.UsageMax; k++ {
		if r.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

// Names returns the asserted keycodes as keymap names, ascending.
func (r *Report) Names() []string {
	keys := r.Keys()
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out
}

// String renders the report as "{KC_A KC_W}".
func (r *Report) String() string {
	return "{" + strings.Join(r.Names(), " ") + "}"
}

// Boot encodes the report in the 8-byte boot keyboard format:
// modifier bitmap, reserved byte, six key slots.
func (r *Report) Boot() [BootReportLen]byte {
	var out [BootReportLen]byte
	slot := 0
	for k := keycode.None; k <= keycode.UsageMax; k++ {
		if !r.Has(k) {
			continue
		}
		if keycode.IsModifier(k) {
			out[0] |= 1 << (k - keycode.LeftCtrl)
			continue
		}
		if slot == BootKeySlots {
			for i := 2; i < BootReportLen; i++ {
				out[i] = ErrorRollOver
			}
			continue
		}
		out[2+slot] = byte(k)
		slot++
	}
	return out
}
