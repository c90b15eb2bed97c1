package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/interlock/internal/keycode"
)

// ReadSession retrieves a single session by ID.
// Returns an error wrapping sql.ErrNoRows if not found.
func (s *Store) ReadSession(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, rules, rules_hash, capacity, initial_word, started_at
		FROM sessions
		WHERE id = ?
	`, id)

	sess, err := scanSession(row)
	if err != nil {
		return Session{}, fmt.Errorf("read session %s: %w", id, err)
	}
	return sess, nil
}

// ListSessions returns every session, oldest first.
// Ties on started_at are broken by id COLLATE BINARY for determinism.
//
// Returns an empty slice (not nil) if the store has no sessions.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, rules, rules_hash, capacity, initial_word, started_at
		FROM sessions
		ORDER BY started_at ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// LatestSession returns the most recently started session.
// Returns an error wrapping sql.ErrNoRows if the store has none.
func (s *Store) LatestSession(ctx context.Context) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, rules, rules_hash, capacity, initial_word, started_at
		FROM sessions
		ORDER BY started_at DESC, id COLLATE BINARY DESC
		LIMIT 1
	`)
	sess, err := scanSession(row)
	if err != nil {
		return Session{}, fmt.Errorf("latest session: %w", err)
	}
	return sess, nil
}

// ReadTransitions returns a session's transitions in seq order.
//
// Returns an empty slice (not nil) if the session has no transitions.
func (s *Store) ReadTransitions(ctx context.Context, sessionID string) ([]Transition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, seq, tick, keycode, pressed, forwarded, effects, report
		FROM transitions
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	transitions := []Transition{}
	for rows.Next() {
		tr, err := scanTransition(rows)
		if err != nil {
			return nil, err
		}
		transitions = append(transitions, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transitions: %w", err)
	}
	return transitions, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

var (
	_ scanner = (*sql.Row)(nil)
	_ scanner = (*sql.Rows)(nil)
)

func scanSession(row scanner) (Session, error) {
	var (
		sess      Session
		rulesJSON string
		word      int64
	)
	if err := row.Scan(&sess.ID, &rulesJSON, &sess.RulesHash, &sess.Capacity, &word, &sess.StartedAt); err != nil {
		return Session{}, fmt.Errorf("scan session: %w", err)
	}
	t, err := unmarshalRules(rulesJSON)
	if err != nil {
		return Session{}, fmt.Errorf("scan session: %w", err)
	}
	sess.Rules = t
	sess.InitialWord = uint16(word)
	return sess, nil
}

func scanTransition(row scanner) (Transition, error) {
	var (
		tr                    Transition
		key, pressed, fwd     int64
		effectsJSON, keysJSON string
	)
	if err := row.Scan(&tr.SessionID, &tr.Seq, &tr.Tick, &key, &pressed, &fwd, &effectsJSON, &keysJSON); err != nil {
		return Transition{}, fmt.Errorf("scan transition: %w", err)
	}

	effects, err := unmarshalEffects(effectsJSON)
	if err != nil {
		return Transition{}, fmt.Errorf("scan transition: %w", err)
	}
	keys, err := unmarshalKeys(keysJSON)
	if err != nil {
		return Transition{}, fmt.Errorf("scan transition: %w", err)
	}

	tr.Key = keycode.Keycode(key)
	tr.Pressed = pressed != 0
	tr.Forwarded = fwd != 0
	tr.Effects = effects
	tr.Report = keys
	return tr, nil
}
