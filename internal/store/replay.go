package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/interlock/internal/keycode"
)

// SessionLog is a session together with its full transition log.
type SessionLog struct {
	Session     Session
	Transitions []Transition
	LastSeq     int64
	LastTick    int64

	// Held lists keys whose last logged transition was a press, ascending.
	// A non-empty Held means the session ended with keys still down.
	Held []keycode.Keycode
}

// GetSessionLog loads a session and its transitions for replay or tracing.
func (s *Store) GetSessionLog(ctx context.Context, sessionID string) (SessionLog, error) {
	sess, err := s.ReadSession(ctx, sessionID)
	if err != nil {
		return SessionLog{}, fmt.Errorf("get session log: %w", err)
	}

	transitions, err := s.ReadTransitions(ctx, sessionID)
	if err != nil {
		return SessionLog{}, fmt.Errorf("get session log: %w", err)
	}

	log := SessionLog{Session: sess, Transitions: transitions}

	down := make(map[keycode.Keycode]bool)
	for _, tr := range transitions {
		if tr.Seq > log.LastSeq {
			log.LastSeq = tr.Seq
		}
		if tr.Tick > log.LastTick {
			log.LastTick = tr.Tick
		}
		down[tr.Key] = tr.Pressed
	}

	log.Held = []keycode.Keycode{}
	for k, held := range down {
		if held {
			log.Held = append(log.Held, k)
		}
	}
	sort.Slice(log.Held, func(i, j int) bool { return log.Held[i] < log.Held[j] })

	return log, nil
}
