package store

import (
	"context"
	"fmt"

	"github.com/roach88/interlock/internal/keycode"
	"github.com/roach88/interlock/internal/report"
	"github.com/roach88/interlock/internal/rules"
)

// Session describes one simulator run: the keymap it ran with and the
// config word at startup.
type Session struct {
	ID          string
	Rules       *rules.Table
	RulesHash   string
	Capacity    int
	InitialWord uint16
	StartedAt   int64 // unix milliseconds, informational only
}

// Transition is one logged key event and what the engine did with it.
type Transition struct {
	SessionID string
	Seq       int64
	Tick      int64
	Key       keycode.Keycode
	Pressed   bool
	Forwarded bool
	Effects   []report.Effect
	Report    []keycode.Keycode // host report after the event, ascending
}

// WriteSession inserts a session record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are silently ignored.
// RulesHash is computed from Rules when empty; nil Rules store as an empty table.
func (s *Store) WriteSession(ctx context.Context, sess Session) error {
	if sess.Rules == nil {
		sess.Rules = rules.NewTable()
	}
	rulesJSON, err := marshalRules(sess.Rules)
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	hash := sess.RulesHash
	if hash == "" {
		hash = sess.Rules.Hash()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions
		(id, rules, rules_hash, capacity, initial_word, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		sess.ID,
		rulesJSON,
		hash,
		sess.Capacity,
		int64(sess.InitialWord),
		sess.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// WriteTransition appends a transition to a session log.
// Uses ON CONFLICT DO NOTHING for idempotency - rewriting the same
// (session_id, seq) is silently ignored.
//
// Note: The session referenced by SessionID must exist (foreign key constraint).
func (s *Store) WriteTransition(ctx context.Context, tr Transition) error {
	effectsJSON, err := marshalEffects(tr.Effects)
	if err != nil {
		return fmt.Errorf("write transition: %w", err)
	}
	reportJSON, err := marshalKeys(tr.Report)
	if err != nil {
		return fmt.Errorf("write transition: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transitions
		(session_id, seq, tick, keycode, pressed, forwarded, effects, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		tr.SessionID,
		tr.Seq,
		tr.Tick,
		int64(tr.Key),
		boolInt(tr.Pressed),
		boolInt(tr.Forwarded),
		effectsJSON,
		reportJSON,
	)
	if err != nil {
		return fmt.Errorf("write transition: %w", err)
	}
	return nil
}

// WriteTransitions appends a batch in one transaction. Either every
// transition is written or none is.
func (s *Store) WriteTransitions(ctx context.Context, batch []Transition) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write transitions: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transitions
		(session_id, seq, tick, keycode, pressed, forwarded, effects, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write transitions: prepare: %w", err)
	}
	defer stmt.Close()

	for _, tr := range batch {
		effectsJSON, err := marshalEffects(tr.Effects)
		if err != nil {
			return fmt.Errorf("write transitions: seq %d: %w", tr.Seq, err)
		}
		reportJSON, err := marshalKeys(tr.Report)
		if err != nil {
			return fmt.Errorf("write transitions: seq %d: %w", tr.Seq, err)
		}
		if _, err := stmt.ExecContext(ctx,
			tr.SessionID, tr.Seq, tr.Tick, int64(tr.Key),
			boolInt(tr.Pressed), boolInt(tr.Forwarded),
			effectsJSON, reportJSON,
		); err != nil {
			return fmt.Errorf("write transitions: seq %d: %w", tr.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write transitions: commit: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
