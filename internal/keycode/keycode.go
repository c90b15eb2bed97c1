// Package keycode defines the 16-bit keycode space the arbitration engine
// operates on.
//
// The low byte range (0x0000-0x00FF) holds USB HID keyboard/keypad usage
// IDs. Only KC_A..KC_EXSEL are basic keycodes and take part in arbitration;
// KC_NO, KC_TRNS, the system/consumer block and the eight modifiers are not.
// Anything above the low byte is a composite keycode (modifier-wrapped keys,
// layer keys, feature commands) and is never arbitrated either.
package keycode

import "fmt"

// Keycode is a 16-bit keymap keycode.
type Keycode uint16

// Basic keycode range boundaries.
const (
	BasicMin Keycode = 0x0004 // KC_A
	BasicMax Keycode = 0x00A4 // KC_EXSEL

	// UsageMax is the last HID usage ID a keycode's low byte can carry.
	UsageMax Keycode = 0x00FF
)

// Modifier bits for modified keycodes (bits 8-12 of the keycode).
const (
	ModCtrl  uint8 = 0x01
	ModShift uint8 = 0x02
	ModAlt   uint8 = 0x04
	ModGUI   uint8 = 0x08
	ModRight uint8 = 0x10
)

// HID usage codes for the keys used by default keymaps and tests.
const (
	None        Keycode = 0x00
	Transparent Keycode = 0x01

	A Keycode = 0x04
	B Keycode = 0x05
	C Keycode = 0x06
	D Keycode = 0x07
	E Keycode = 0x08
	F Keycode = 0x09
	G Keycode = 0x0A
	H Keycode = 0x0B
	I Keycode = 0x0C
	J Keycode = 0x0D
	K Keycode = 0x0E
	L Keycode = 0x0F
	M Keycode = 0x10
	N Keycode = 0x11
	O Keycode = 0x12
	P Keycode = 0x13
	Q Keycode = 0x14
	R Keycode = 0x15
	S Keycode = 0x16
	T Keycode = 0x17
	U Keycode = 0x18
	V Keycode = 0x19
	W Keycode = 0x1A
	X Keycode = 0x1B
	Y Keycode = 0x1C
	Z Keycode = 0x1D

	Num1 Keycode = 0x1E
	Num0 Keycode = 0x27

	Enter     Keycode = 0x28
	Escape    Keycode = 0x29
	Backspace Keycode = 0x2A
	Tab       Keycode = 0x2B
	Space     Keycode = 0x2C

	F1  Keycode = 0x3A
	F12 Keycode = 0x45

	Right Keycode = 0x4F
	Left  Keycode = 0x50
	Down  Keycode = 0x51
	Up    Keycode = 0x52

	ExSel Keycode = 0xA4

	LeftCtrl   Keycode = 0xE0
	LeftShift  Keycode = 0xE1
	LeftAlt    Keycode = 0xE2
	LeftGUI    Keycode = 0xE3
	RightCtrl  Keycode = 0xE4
	RightShift Keycode = 0xE5
	RightAlt   Keycode = 0xE6
	RightGUI   Keycode = 0xE7
)

// Command keycodes control the arbitration feature itself. The block
// CommandFirst..CommandLast is reserved; codes in it that are not listed
// below are passed through untouched.
const (
	CommandFirst Keycode = 0x7C70

	ArbiterOn      Keycode = CommandFirst + 0
	ArbiterOff     Keycode = CommandFirst + 1
	ArbiterToggle  Keycode = CommandFirst + 2
	RecoveryOn     Keycode = CommandFirst + 3
	RecoveryOff    Keycode = CommandFirst + 4
	RecoveryToggle Keycode = CommandFirst + 5

	CommandLast Keycode = 0x7C7F
)

// IsBasic reports whether k is a plain key in KC_A..KC_EXSEL. Modifier keys
// and modifier-wrapped keycodes are not basic.
func IsBasic(k Keycode) bool {
	return k >= BasicMin && k <= BasicMax
}

// IsModifier reports whether k is one of the eight HID modifier keys.
func IsModifier(k Keycode) bool {
	return k >= LeftCtrl && k <= RightGUI
}

// IsCommand reports whether k falls in the reserved command block.
func IsCommand(k Keycode) bool {
	return k >= CommandFirst && k <= CommandLast
}

// Modified wraps a basic keycode with modifier bits, e.g. Modified(ModShift, A).
func Modified(mods uint8, k Keycode) Keycode {
	return Keycode(mods&0x1F)<<8 | (k & UsageMax)
}

// Mods returns the modifier bits of a modified keycode.
func (k Keycode) Mods() uint8 {
	if k > 0x1FFF {
		return 0
	}
	return uint8(k>>8) & 0x1F
}

// String returns the keymap name of k (KC_A, ARB_TOGG) or its hex form.
func (k Keycode) String() string {
	if name, ok := names[k]; ok {
		return name
	}
	return fmt.Sprintf("0x%04X", uint16(k))
}
