package keycode

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	names  = map[Keycode]string{}
	byName = map[string]Keycode{}
)

func init() {
	for i := Keycode(0); i < 26; i++ {
		register(A+i, "KC_"+string(rune('A'+i)))
	}
	for i := Keycode(0); i < 9; i++ {
		register(Num1+i, "KC_"+strconv.Itoa(int(i)+1))
	}
	register(Num0, "KC_0")
	for i := Keycode(0); i < 12; i++ {
		register(F1+i, "KC_F"+strconv.Itoa(int(i)+1))
	}

	register(None, "KC_NO")
	register(Transparent, "KC_TRNS")
	register(Enter, "KC_ENTER")
	register(Escape, "KC_ESCAPE")
	register(Backspace, "KC_BACKSPACE")
	register(Tab, "KC_TAB")
	register(Space, "KC_SPACE")
	register(Right, "KC_RIGHT")
	register(Left, "KC_LEFT")
	register(Down, "KC_DOWN")
	register(Up, "KC_UP")
	register(ExSel, "KC_EXSEL")
	register(LeftCtrl, "KC_LEFT_CTRL")
	register(LeftShift, "KC_LEFT_SHIFT")
	register(LeftAlt, "KC_LEFT_ALT")
	register(LeftGUI, "KC_LEFT_GUI")
	register(RightCtrl, "KC_RIGHT_CTRL")
	register(RightShift, "KC_RIGHT_SHIFT")
	register(RightAlt, "KC_RIGHT_ALT")
	register(RightGUI, "KC_RIGHT_GUI")

	register(ArbiterOn, "ARB_ON")
	register(ArbiterOff, "ARB_OFF")
	register(ArbiterToggle, "ARB_TOGG")
	register(RecoveryOn, "ARB_REC_ON")
	register(RecoveryOff, "ARB_REC_OFF")
	register(RecoveryToggle, "ARB_REC_TOGG")
}

func register(k Keycode, name string) {
	names[k] = name
	byName[name] = k
}

// Parse resolves a keycode from its keymap name or numeric form.
//
// Accepted spellings (case-insensitive): "KC_A", "a", "7", "ARB_TOGG", "0x04".
// Bare digits name the number-row keys, not raw codes.
func Parse(s string) (Keycode, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("empty keycode")
	}

	upper := cases.Upper(language.Und).String(trimmed)

	if k, ok := byName[upper]; ok {
		return k, nil
	}
	if k, ok := byName["KC_"+upper]; ok {
		return k, nil
	}

	if strings.HasPrefix(upper, "0X") {
		v, err := strconv.ParseUint(upper[2:], 16, 16)
		if err != nil {
			return 0, fmt.Errorf("invalid keycode %q: %w", s, err)
		}
		return Keycode(v), nil
	}
	return 0, fmt.Errorf("unknown keycode %q", s)
}

// MustParse is Parse for static tables; it panics on error.
func MustParse(s string) Keycode {
	k, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return k
}
