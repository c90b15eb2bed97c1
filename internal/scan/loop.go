package scan

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/interlock/internal/engine"
	"github.com/roach88/interlock/internal/keycode"
	"github.com/roach88/interlock/internal/report"
)

// Config configures the loop.
type Config struct {
	TickRate         time.Duration // scan interval (default: 1ms)
	MaxEventsPerTick int           // batch capacity (default: 64)
}

// Result is one processed transition.
type Result struct {
	Seq  int64 `json:"seq"`
	Tick int64 `json:"tick"`
	Transition
	Forwarded bool              `json:"forwarded"`
	Effects   []report.Effect   `json:"effects"`
	Report    []keycode.Keycode `json:"report"` // host report after the event
}

// TickResult is everything one tick processed.
type TickResult struct {
	Tick    int64
	Results []Result
}

// Sink receives each non-empty tick's results, in order.
type Sink interface {
	RecordTick(ctx context.Context, results []Result) error
}

// Loop owns an engine and feeds it batched transitions once per tick.
//
// Send is safe from any goroutine. Step and Run must be called from a single
// goroutine; that goroutine is the only one that touches the engine.
type Loop struct {
	eng      *engine.Engine
	host     *Host
	queue    *batchQueue
	tickRate time.Duration
	seq      SeqClock
	tick     int64
	sink     Sink
	observer func(TickResult)
	logger   *slog.Logger
	batch    []Transition
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithSink logs every processed tick.
func WithSink(s Sink) LoopOption {
	return func(l *Loop) { l.sink = s }
}

// WithSeqClock replaces the seq clock. Useful for deterministic tests.
func WithSeqClock(c SeqClock) LoopOption {
	return func(l *Loop) {
		if c != nil {
			l.seq = c
		}
	}
}

// WithObserver is called after every non-empty tick, after the sink.
func WithObserver(fn func(TickResult)) LoopOption {
	return func(l *Loop) { l.observer = fn }
}

// WithLogger sets the loop logger.
func WithLogger(logger *slog.Logger) LoopOption {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoop creates a loop driving eng. host must be the Host whose Reporter
// eng was built with.
func NewLoop(eng *engine.Engine, host *Host, cfg Config, opts ...LoopOption) *Loop {
	if cfg.TickRate <= 0 {
		cfg.TickRate = time.Millisecond
	}
	if cfg.MaxEventsPerTick <= 0 {
		cfg.MaxEventsPerTick = 64
	}

	l := &Loop{
		eng:      eng,
		host:     host,
		queue:    newBatchQueue(cfg.MaxEventsPerTick),
		tickRate: cfg.TickRate,
		seq:      NewClock(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		batch:    make([]Transition, 0, cfg.MaxEventsPerTick),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Send queues a transition for the next tick.
func (l *Loop) Send(tr Transition) error {
	return l.queue.Enqueue(tr)
}

// Close stops accepting transitions. Already queued transitions are still
// processed by the next Step.
func (l *Loop) Close() { l.queue.Close() }

// Pending returns the number of queued transitions.
func (l *Loop) Pending() int { return l.queue.Len() }

// Tick returns the number of ticks run so far.
func (l *Loop) Tick() int64 { return l.tick }

// Engine returns the engine the loop drives.
func (l *Loop) Engine() *engine.Engine { return l.eng }

// Host returns the simulated host layer.
func (l *Loop) Host() *Host { return l.host }

// Step runs one tick: drains the batch and processes each transition in
// arrival order. The sink error, if any, is returned after every transition
// of the tick has been applied.
func (l *Loop) Step(ctx context.Context) (TickResult, error) {
	l.tick++
	l.batch = l.queue.Drain(l.batch[:0])

	tr := TickResult{Tick: l.tick}
	if len(l.batch) == 0 {
		return tr, nil
	}

	tr.Results = make([]Result, 0, len(l.batch))
	for _, t := range l.batch {
		tr.Results = append(tr.Results, l.process(t))
	}

	if l.sink != nil {
		if err := l.sink.RecordTick(ctx, tr.Results); err != nil {
			return tr, fmt.Errorf("tick %d: record: %w", l.tick, err)
		}
	}
	if l.observer != nil {
		l.observer(tr)
	}
	return tr, nil
}

// Run steps once per tick until ctx is cancelled, then drains whatever is
// still queued. A sink error stops the loop.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.tickRate)
	defer ticker.Stop()

	l.logger.Debug("scan loop started", "tick_rate", l.tickRate)
	for {
		select {
		case <-ctx.Done():
			if l.queue.Len() > 0 {
				if _, err := l.Step(context.WithoutCancel(ctx)); err != nil {
					return err
				}
			}
			l.logger.Debug("scan loop stopped", "ticks", l.tick)
			return nil
		case <-ticker.C:
			if _, err := l.Step(ctx); err != nil {
				return err
			}
		}
	}
}

// process delivers one transition to the engine and then, if forwarded, to
// normal keycode processing.
func (l *Loop) process(t Transition) Result {
	ev := engine.Event{Pressed: t.Pressed, Row: t.Row, Col: t.Col}
	forward := l.eng.ProcessEvent(t.Key, ev)
	effects := l.host.drain()
	if forward {
		l.host.forward(t.Key, t.Pressed)
	}

	res := Result{
		Seq:        l.seq.Next(),
		Tick:       l.tick,
		Transition: t,
		Forwarded:  forward,
		Effects:    effects,
		Report:     l.host.report.Keys(),
	}
	l.logger.Debug("transition",
		"seq", res.Seq,
		"event", t.String(),
		"forwarded", forward,
		"effects", len(effects),
	)
	return res
}
