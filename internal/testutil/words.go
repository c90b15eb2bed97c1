package testutil

import "sync"

// MemoryWordStore is an in-memory keymap config word.
// It satisfies feature.WordStore and records every write.
type MemoryWordStore struct {
	mu       sync.Mutex
	word     uint16
	writes   []uint16
	ReadErr  error
	WriteErr error
}

// NewMemoryWordStore creates a store holding word.
func NewMemoryWordStore(word uint16) *MemoryWordStore {
	return &MemoryWordStore{word: word}
}

// ReadWord returns the current word, or ReadErr if set.
func (m *MemoryWordStore) ReadWord() (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return 0, m.ReadErr
	}
	return m.word, nil
}

// WriteWord stores word, or fails with WriteErr if set.
func (m *MemoryWordStore) WriteWord(word uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.word = word
	m.writes = append(m.writes, word)
	return nil
}

// Writes returns a copy of every successful write, oldest first.
func (m *MemoryWordStore) Writes() []uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]uint16, len(m.writes))
	copy(out, m.writes)
	return out
}
