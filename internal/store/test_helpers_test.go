package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/interlock/internal/keycode"
	"github.com/roach88/interlock/internal/report"
	"github.com/roach88/interlock/internal/rules"
)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSession writes a session using the default rule table.
func createTestSession(t *testing.T, s *Store, id string, startedAt int64) Session {
	t.Helper()
	sess := Session{
		ID:        id,
		Rules:     rules.DefaultTable(),
		Capacity:  10,
		StartedAt: startedAt,
	}
	if err := s.WriteSession(context.Background(), sess); err != nil {
		t.Fatalf("WriteSession() failed: %v", err)
	}
	return sess
}

// createTestTransition builds a forwarded transition with no effects.
func createTestTransition(sessionID string, seq int64, k keycode.Keycode, pressed bool) Transition {
	return Transition{
		SessionID: sessionID,
		Seq:       seq,
		Tick:      seq,
		Key:       k,
		Pressed:   pressed,
		Forwarded: true,
		Effects:   []report.Effect{},
		Report:    []keycode.Keycode{},
	}
}

func getTableColumns(t *testing.T, s *Store, table string) []string {
	t.Helper()
	rows, err := s.db.Query("SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		t.Fatalf("table_info(%s) failed: %v", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan column: %v", err)
		}
		cols = append(cols, name)
	}
	return cols
}
