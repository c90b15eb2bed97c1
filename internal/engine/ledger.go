package engine

import "github.com/roach88/interlock/internal/keycode"

// Ledger bounds.
//
// MaxCapacity is a hard ceiling: withdrawn state is kept in a 16-bit mask
// indexed by ledger position.
const (
	MaxCapacity     = 16
	DefaultCapacity = 10
)

// Ledger is the bounded, insertion-ordered record of held trigger keys.
//
// INVARIANTS:
//   - no keycode appears twice
//   - index 0 is the oldest entry; order is physical press order
//   - bit i of withdrawn is meaningful only for i < n
//
// The zero value is unusable; construct with NewLedger. Ledger never
// allocates.
type Ledger struct {
	keys      [MaxCapacity]keycode.Keycode
	n         int
	capacity  int
	withdrawn uint16 // positions currently withdrawn from the report
}

// NewLedger creates an empty ledger. capacity is clamped to 1..MaxCapacity.
func NewLedger(capacity int) Ledger {
	if capacity < 1 {
		capacity = 1
	}
	if capacity > MaxCapacity {
		capacity = MaxCapacity
	}
	return Ledger{capacity: capacity}
}

// Len returns the number of tracked keys.
func (l *Ledger) Len() int { return l.n }

// Cap returns the configured capacity.
func (l *Ledger) Cap() int { return l.capacity }

// At returns the keycode at position i (0 = oldest).
func (l *Ledger) At(i int) keycode.Keycode { return l.keys[i] }

// Withdrawn reports whether the entry at position i is currently withdrawn.
func (l *Ledger) Withdrawn(i int) bool { return l.withdrawn&(1<<uint(i)) != 0 }

// IndexOf returns the position of k, scanning from the oldest entry.
func (l *Ledger) IndexOf(k keycode.Keycode) (int, bool) {
	for i := 0; i < l.n; i++ {
		if l.keys[i] == k {
			return i, true
		}
	}
	return -1, false
}

// Insert appends k as the newest entry. It is a no-op returning false when k
// is already tracked or the ledger is full.
func (l *Ledger) Insert(k keycode.Keycode) bool {
	if _, ok := l.IndexOf(k); ok {
		return false
	}
	if l.n >= l.capacity {
		return false
	}
	l.keys[l.n] = k
	l.withdrawn &^= 1 << uint(l.n)
	l.n++
	return true
}

// Remove deletes k and closes the gap by shifting newer entries (and their
// withdrawn bits) down one position. Returns false if k was not tracked.
func (l *Ledger) Remove(k keycode.Keycode) bool {
	p, ok := l.IndexOf(k)
	if !ok {
		return false
	}
	copy(l.keys[p:l.n-1], l.keys[p+1:l.n])
	l.n--
	l.keys[l.n] = keycode.None

	low := l.withdrawn & (1<<uint(p) - 1)
	high := (l.withdrawn >> uint(p+1)) << uint(p)
	l.withdrawn = (low | high) & (1<<uint(l.n) - 1)
	return true
}

// Reset empties the ledger, keeping its capacity.
func (l *Ledger) Reset() {
	*l = Ledger{capacity: l.capacity}
}

// markWithdrawn flags the entry holding k, if any, as withdrawn.
func (l *Ledger) markWithdrawn(k keycode.Keycode) {
	if p, ok := l.IndexOf(k); ok {
		l.withdrawn |= 1 << uint(p)
	}
}

// LedgerEntry is a diagnostic copy of one ledger slot.
type LedgerEntry struct {
	Key       keycode.Keycode `json:"key"`
	Withdrawn bool            `json:"withdrawn"`
}

// Entries copies the ledger contents, oldest first. It allocates and is
// meant for diagnostics and tests, not the scan path.
func (l *Ledger) Entries() []LedgerEntry {
	out := make([]LedgerEntry, l.n)
	for i := 0; i < l.n; i++ {
		out[i] = LedgerEntry{Key: l.keys[i], Withdrawn: l.Withdrawn(i)}
	}
	return out
}

// Keys copies the tracked keycodes, oldest first.
func (l *Ledger) Keys() []keycode.Keycode {
	out := make([]keycode.Keycode, l.n)
	copy(out, l.keys[:l.n])
	return out
}
