package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/interlock/internal/engine"
	"github.com/roach88/interlock/internal/feature"
	"github.com/roach88/interlock/internal/keycode"
	"github.com/roach88/interlock/internal/store"
)

// ErrRulesChanged is returned when a logged session's rule table no longer
// matches the hash recorded when the session started.
var ErrRulesChanged = errors.New("scan: session rules hash mismatch")

// Divergence is one difference between a logged transition and its replay.
type Divergence struct {
	Seq   int64  `json:"seq"`
	Field string `json:"field"`
	Want  string `json:"want"`
	Got   string `json:"got"`
}

// ReplayResult summarizes a replayed session.
type ReplayResult struct {
	SessionID   string            `json:"session_id"`
	Transitions int               `json:"transitions"`
	Divergences []Divergence      `json:"divergences"`
	FinalReport []keycode.Keycode `json:"final_report"`
	FinalFlags  feature.Flags     `json:"final_flags"`
}

// OK reports whether the replay matched the log exactly.
func (r ReplayResult) OK() bool { return len(r.Divergences) == 0 }

// Replay re-executes a logged session through a fresh engine built from the
// session's own rules, capacity and initial config word, and compares every
// transition's forwarding decision, effects and resulting report.
//
// Replay never persists: feature commands in the log mutate only the
// replay's in-memory state.
func Replay(ctx context.Context, log store.SessionLog, logger *slog.Logger) (ReplayResult, error) {
	sess := log.Session
	if sess.RulesHash != "" && sess.Rules.Hash() != sess.RulesHash {
		return ReplayResult{}, fmt.Errorf("replay %s: %w", sess.ID, ErrRulesChanged)
	}

	state := feature.NewState(feature.Unpack(sess.InitialWord), feature.NopPersister{}, logger)
	host := NewHost()
	eng := engine.New(sess.Rules, host.Reporter(), state,
		engine.WithCapacity(sess.Capacity),
		engine.WithLogger(logger),
	)
	loop := NewLoop(eng, host, Config{}, WithLogger(logger))

	res := ReplayResult{SessionID: sess.ID, Divergences: []Divergence{}}
	for _, logged := range log.Transitions {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("replay %s: %w", sess.ID, err)
		}

		loop.tick = logged.Tick
		got := loop.process(Transition{Key: logged.Key, Pressed: logged.Pressed})
		res.Transitions++

		if got.Forwarded != logged.Forwarded {
			res.Divergences = append(res.Divergences, Divergence{
				Seq:   logged.Seq,
				Field: "forwarded",
				Want:  fmt.Sprint(logged.Forwarded),
				Got:   fmt.Sprint(got.Forwarded),
			})
		}
		if !slices.Equal(got.Effects, logged.Effects) {
			res.Divergences = append(res.Divergences, Divergence{
				Seq:   logged.Seq,
				Field: "effects",
				Want:  fmt.Sprint(logged.Effects),
				Got:   fmt.Sprint(got.Effects),
			})
		}
		if !slices.Equal(got.Report, logged.Report) {
			res.Divergences = append(res.Divergences, Divergence{
				Seq:   logged.Seq,
				Field: "report",
				Want:  fmt.Sprint(logged.Report),
				Got:   fmt.Sprint(got.Report),
			})
		}
	}

	res.FinalReport = host.Report().Keys()
	res.FinalFlags = eng.Flags()
	return res, nil
}
