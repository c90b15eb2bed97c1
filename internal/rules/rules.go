// Package rules holds the immutable rule table consulted by the arbitration
// engine.
//
// A Rule says: while Trigger is the most recently pressed of the two, the
// Suppressed keycode must not appear in the host report. Rules are directed;
// mutual exclusion of two keys needs two rules.
//
// Tables are built once (from a CUE keymap or a scenario file) and never
// mutated afterwards. Evaluation order is declaration order.
package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/roach88/interlock/internal/keycode"
)

// DomainTable is the domain-separation prefix used when hashing a table.
const DomainTable = "interlock/rules/v1"

// Rule pairs a trigger keycode with the keycode it suppresses.
type Rule struct {
	Trigger    keycode.Keycode `json:"trigger"`
	Suppressed keycode.Keycode `json:"suppressed"`
}

// String renders the rule as "KC_D->KC_A".
func (r Rule) String() string {
	return fmt.Sprintf("%s->%s", r.Trigger, r.Suppressed)
}

// Table is an ordered, immutable list of rules.
//
// INVARIANTS:
//   - rule order NEVER changes after construction
//   - the backing slice is never shared with callers
type Table struct {
	rules []Rule
}

// NewTable creates a table from rules in declaration order.
// The input slice is copied so later mutation by the caller has no effect.
func NewTable(rs ...Rule) *Table {
	cp := make([]Rule, len(rs))
	copy(cp, rs)
	return &Table{rules: cp}
}

// DefaultTable returns the stock directional table: D suppresses A, A
// suppresses D and A suppresses F.
func DefaultTable() *Table {
	return NewTable(
		Rule{Trigger: keycode.D, Suppressed: keycode.A},
		Rule{Trigger: keycode.A, Suppressed: keycode.D},
		Rule{Trigger: keycode.A, Suppressed: keycode.F},
	)
}

// Count returns the number of rules.
func (t *Table) Count() int {
	if t == nil {
		return 0
	}
	return len(t.rules)
}

// At returns rule i. It panics if i is out of range, like a slice index.
func (t *Table) At(i int) Rule {
	return t.rules[i]
}

// IsTrigger reports whether k is the trigger of at least one rule.
func (t *Table) IsTrigger(k keycode.Keycode) bool {
	for i := 0; i < t.Count(); i++ {
		if t.rules[i].Trigger == k {
			return true
		}
	}
	return false
}

// Rules returns a copy of the rules in declaration order.
func (t *Table) Rules() []Rule {
	cp := make([]Rule, t.Count())
	if t != nil {
		copy(cp, t.rules)
	}
	return cp
}

// MarshalJSON encodes the table as its rule list.
func (t *Table) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Rules())
}

// UnmarshalJSON decodes a rule list produced by MarshalJSON.
func (t *Table) UnmarshalJSON(data []byte) error {
	var rs []Rule
	if err := json.Unmarshal(data, &rs); err != nil {
		return fmt.Errorf("decode rule table: %w", err)
	}
	t.rules = rs
	return nil
}

// Hash returns a content-addressed identifier for the table.
// Format: hex(SHA256(DomainTable + 0x00 + json(rules))).
// Two tables hash equal iff they hold the same rules in the same order.
func (t *Table) Hash() string {
	data, err := json.Marshal(t.Rules())
	if err != nil {
		// []Rule of integers always encodes.
		panic(fmt.Sprintf("rules: hash: %v", err))
	}
	h := sha256.New()
	h.Write([]byte(DomainTable))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
