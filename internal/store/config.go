package store

import (
	"context"
	"fmt"

	"github.com/roach88/interlock/internal/feature"
)

// ReadWord returns the shared keymap configuration word.
func (s *Store) ReadWord(ctx context.Context) (uint16, error) {
	var word int64
	if err := s.db.QueryRowContext(ctx, `SELECT word FROM keymap_config WHERE id = 1`).Scan(&word); err != nil {
		return 0, fmt.Errorf("read config word: %w", err)
	}
	return uint16(word), nil
}

// WriteWord replaces the shared keymap configuration word.
func (s *Store) WriteWord(ctx context.Context, word uint16) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO keymap_config (id, word, initialized) VALUES (1, ?, 1)
		ON CONFLICT(id) DO UPDATE SET word = excluded.word, initialized = 1
	`, int64(word))
	if err != nil {
		return fmt.Errorf("write config word: %w", err)
	}
	return nil
}

// LoadFlags reads the feature flags out of the config word.
func (s *Store) LoadFlags(ctx context.Context) (feature.Flags, error) {
	word, err := s.ReadWord(ctx)
	if err != nil {
		return feature.Flags{}, fmt.Errorf("load flags: %w", err)
	}
	return feature.Unpack(word), nil
}

// IsInitialized reports whether the config word has ever been written.
func (s *Store) IsInitialized(ctx context.Context) (bool, error) {
	var initialized int64
	if err := s.db.QueryRowContext(ctx, `SELECT initialized FROM keymap_config WHERE id = 1`).Scan(&initialized); err != nil {
		return false, fmt.Errorf("read config state: %w", err)
	}
	return initialized == 1, nil
}

// InitFlags returns the flags in effect for a new session. A store that has
// never been written is seeded with defaults first; afterwards the persisted
// flags win.
func (s *Store) InitFlags(ctx context.Context, defaults feature.Flags) (feature.Flags, error) {
	ok, err := s.IsInitialized(ctx)
	if err != nil {
		return feature.Flags{}, err
	}
	if ok {
		return s.LoadFlags(ctx)
	}

	word, err := s.ReadWord(ctx)
	if err != nil {
		return feature.Flags{}, err
	}
	if err := s.WriteWord(ctx, defaults.Pack(word)); err != nil {
		return feature.Flags{}, fmt.Errorf("seed flags: %w", err)
	}
	return defaults, nil
}

// Words adapts the store to feature.WordStore, binding ctx to every call.
func (s *Store) Words(ctx context.Context) feature.WordStore {
	return wordStore{s: s, ctx: ctx}
}

// Persister returns a feature.Persister that writes through to this store.
func (s *Store) Persister(ctx context.Context) feature.Persister {
	return feature.WordPersister{Store: s.Words(ctx)}
}

type wordStore struct {
	s   *Store
	ctx context.Context
}

func (w wordStore) ReadWord() (uint16, error)   { return w.s.ReadWord(w.ctx) }
func (w wordStore) WriteWord(word uint16) error { return w.s.WriteWord(w.ctx, word) }
