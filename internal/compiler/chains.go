package compiler

import (
	"fmt"

	"github.com/roach88/interlock/internal/keycode"
	"github.com/roach88/interlock/internal/rules"
)

// ChainWarning flags a suppression chain longer than one hop.
//
// Release-time recovery resolves one level of blocking per release, so a
// chain X -> Y -> Z restores Z only after both X and Y have been released.
// Chains are warnings, not errors: they are often intentional.
type ChainWarning struct {
	Path    []keycode.Keycode `json:"path"`
	Message string            `json:"message"`
	Level   string            `json:"level"`
}

// AnalyzeChains reports every two-hop chain X -> Y -> Z in the table where
// Z is itself tracked for recovery (a trigger) and Z != X. Mutual pairs
// such as D <-> A are not chains.
//
// Warnings are returned in rule declaration order. A table without chains
// returns an empty list.
func AnalyzeChains(t *rules.Table) []ChainWarning {
	warnings := []ChainWarning{}
	for i := 0; i < t.Count(); i++ {
		first := t.At(i)
		for j := 0; j < t.Count(); j++ {
			second := t.At(j)
			if second.Trigger != first.Suppressed {
				continue
			}
			if second.Suppressed == first.Trigger || !t.IsTrigger(second.Suppressed) {
				continue
			}
			path := []keycode.Keycode{first.Trigger, first.Suppressed, second.Suppressed}
			warnings = append(warnings, ChainWarning{
				Path: path,
				Message: fmt.Sprintf("%s -> %s -> %s: %s is restored only after both %s and %s are released",
					path[0], path[1], path[2], path[2], path[0], path[1]),
				Level: "warning",
			})
		}
	}
	return warnings
}
