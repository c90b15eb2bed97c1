// Package feature holds the two arbitration feature flags and their durable
// persistence.
//
// Flags live in a shared 16-bit keymap configuration word. Only the two bits
// owned by this package are ever changed; every other bit of the word is
// preserved across writes.
package feature

import (
	"fmt"
	"io"
	"log/slog"
)

// Bits owned by the arbitration feature inside the keymap config word.
const (
	BitEnabled  uint16 = 1 << 12
	BitRecovery uint16 = 1 << 13
)

// Flags is the persisted feature state.
type Flags struct {
	Enabled  bool `json:"enabled" yaml:"enabled"`
	Recovery bool `json:"recovery" yaml:"recovery"`
}

// RecoveryActive reports whether recovery is in effect. Recovery without the
// feature itself enabled is inert.
func (f Flags) RecoveryActive() bool {
	return f.Enabled && f.Recovery
}

// Pack writes f into word, leaving every unrelated bit untouched.
func (f Flags) Pack(word uint16) uint16 {
	word &^= BitEnabled | BitRecovery
	if f.Enabled {
		word |= BitEnabled
	}
	if f.Recovery {
		word |= BitRecovery
	}
	return word
}

// Unpack reads the feature flags out of a config word.
func Unpack(word uint16) Flags {
	return Flags{
		Enabled:  word&BitEnabled != 0,
		Recovery: word&BitRecovery != 0,
	}
}

// String renders flags for logs and CLI output.
func (f Flags) String() string {
	return fmt.Sprintf("enabled=%t recovery=%t", f.Enabled, f.Recovery)
}

// Persister durably stores flags. Persist is called synchronously after every
// mutation and must not return before the write is durable.
type Persister interface {
	Persist(Flags) error
}

// NopPersister discards writes. Useful when no storage is attached.
type NopPersister struct{}

// Persist implements Persister.
func (NopPersister) Persist(Flags) error { return nil }

// WordStore reads and writes the shared keymap config word.
type WordStore interface {
	ReadWord() (uint16, error)
	WriteWord(uint16) error
}

// WordPersister persists flags by read-modify-write of a shared config word.
type WordPersister struct {
	Store WordStore
}

// Persist implements Persister.
func (p WordPersister) Persist(f Flags) error {
	word, err := p.Store.ReadWord()
	if err != nil {
		return fmt.Errorf("persist flags: read config word: %w", err)
	}
	if err := p.Store.WriteWord(f.Pack(word)); err != nil {
		return fmt.Errorf("persist flags: write config word: %w", err)
	}
	return nil
}

// State is the in-memory feature state plus its persister.
//
// State is not safe for concurrent use; it is owned by a single engine and
// touched only from the scan loop.
type State struct {
	flags     Flags
	persister Persister
	logger    *slog.Logger
}

// NewState creates a State seeded with flags loaded from storage.
// A nil persister is replaced with NopPersister, a nil logger with a discard
// logger.
func NewState(initial Flags, p Persister, logger *slog.Logger) *State {
	if p == nil {
		p = NopPersister{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &State{flags: initial, persister: p, logger: logger}
}

// Flags returns the current flags.
func (s *State) Flags() Flags { return s.flags }

// IsEnabled reports whether arbitration is enabled.
func (s *State) IsEnabled() bool { return s.flags.Enabled }

// Enable turns arbitration on and persists.
func (s *State) Enable() { s.set(func(f *Flags) { f.Enabled = true }) }

// Disable turns arbitration off and persists.
func (s *State) Disable() { s.set(func(f *Flags) { f.Enabled = false }) }

// Toggle flips arbitration and persists.
func (s *State) Toggle() { s.set(func(f *Flags) { f.Enabled = !f.Enabled }) }

// RecoveryIsEnabled reports whether recovery is in effect (requires the
// feature to be enabled too).
func (s *State) RecoveryIsEnabled() bool { return s.flags.RecoveryActive() }

// RecoveryEnable turns recovery on and persists.
func (s *State) RecoveryEnable() { s.set(func(f *Flags) { f.Recovery = true }) }

// RecoveryDisable turns recovery off and persists.
func (s *State) RecoveryDisable() { s.set(func(f *Flags) { f.Recovery = false }) }

// RecoveryToggle flips recovery and persists.
func (s *State) RecoveryToggle() { s.set(func(f *Flags) { f.Recovery = !f.Recovery }) }

// set applies a mutation and persists the result. A failed write is logged;
// the in-memory state keeps the new value so the caller's intent stands.
func (s *State) set(mutate func(*Flags)) {
	mutate(&s.flags)
	if err := s.persister.Persist(s.flags); err != nil {
		s.logger.Error("feature flags not persisted", "flags", s.flags.String(), "error", err)
		return
	}
	s.logger.Debug("feature flags persisted", "enabled", s.flags.Enabled, "recovery", s.flags.Recovery)
}
