package scan

import (
	"context"

	"github.com/roach88/interlock/internal/store"
)

// StoreSink appends every tick to a session log in one transaction.
type StoreSink struct {
	Store     *store.Store
	SessionID string
}

// RecordTick implements Sink.
func (s StoreSink) RecordTick(ctx context.Context, results []Result) error {
	batch := make([]store.Transition, len(results))
	for i, r := range results {
		batch[i] = store.Transition{
			SessionID: s.SessionID,
			Seq:       r.Seq,
			Tick:      r.Tick,
			Key:       r.Key,
			Pressed:   r.Pressed,
			Forwarded: r.Forwarded,
			Effects:   r.Effects,
			Report:    r.Report,
		}
	}
	return s.Store.WriteTransitions(ctx, batch)
}

// MemorySink keeps results in memory.
type MemorySink struct {
	Results []Result
}

// RecordTick implements Sink.
func (m *MemorySink) RecordTick(_ context.Context, results []Result) error {
	m.Results = append(m.Results, results...)
	return nil
}
