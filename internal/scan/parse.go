package scan

import (
	"fmt"
	"strings"

	"github.com/roach88/interlock/internal/keycode"
)

// ParseTransition reads one line of the run command's input language:
//
//	+A            press KC_A
//	-KC_A         release KC_A
//	press d       press KC_D
//	release 0x07  release KC_D
//	down A / up A aliases of press / release
//
// Blank lines and lines starting with '#' yield ok == false and no error.
// Several events may share a line separated by whitespace or commas, e.g.
// "+A +D"; they are returned in order.
func ParseTransition(line string) (trs []Transition, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil, false, nil
	}

	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})

	for i := 0; i < len(fields); i++ {
		f := fields[i]
		var (
			pressed bool
			name    string
		)
		switch strings.ToLower(f) {
		case "press", "down", "release", "up":
			if i+1 >= len(fields) {
				return nil, false, fmt.Errorf("%q: missing keycode after %q", line, f)
			}
			pressed = strings.EqualFold(f, "press") || strings.EqualFold(f, "down")
			name = fields[i+1]
			i++
		default:
			switch f[0] {
			case '+':
				pressed = true
			case '-':
				pressed = false
			default:
				return nil, false, fmt.Errorf("%q: expected +KEY, -KEY, press KEY or release KEY", line)
			}
			name = f[1:]
		}

		k, err := keycode.Parse(name)
		if err != nil {
			return nil, false, fmt.Errorf("%q: %w", line, err)
		}
		trs = append(trs, Transition{Key: k, Pressed: pressed})
	}
	return trs, true, nil
}
