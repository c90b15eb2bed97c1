package cli

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/interlock/internal/compiler"
	"github.com/roach88/interlock/internal/engine"
	"github.com/roach88/interlock/internal/feature"
	"github.com/roach88/interlock/internal/report"
	"github.com/roach88/interlock/internal/rules"
	"github.com/roach88/interlock/internal/scan"
	"github.com/roach88/interlock/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	TickRate time.Duration
	Capacity int

	// SessionGenerator allows overriding the session id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	SessionGenerator scan.IDGenerator
}

// TickOutput is one line of run output in JSON mode.
type TickOutput struct {
	Tick   int64         `json:"tick"`
	Events []EventView   `json:"events"`
	Report []string      `json:"report"`
	Boot   string        `json:"boot"`
	Flags  feature.Flags `json:"flags"`
}

// EventView is a processed transition with keycode names.
type EventView struct {
	Seq       int64    `json:"seq"`
	Event     string   `json:"event"`
	Forwarded bool     `json:"forwarded"`
	Effects   []string `json:"effects"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [keymap]",
		Short: "Run the arbitration engine on key events from stdin",
		Long: `Run the arbitration engine against a simulated host.

Key transitions are read from stdin, one or more per line:

  +A -A            press / release KC_A
  press d          press KC_D
  release KC_D     release KC_D
  +ARB_REC_TOGG    toggle recovery

Each scan tick processes every transition queued since the previous tick
and prints the resulting host report. Every transition is logged to the
database as part of a session, so it can be traced and replayed later.

Without a keymap the default table is used (D/A mutual exclusion, A
suppresses F). Feature flags are read from the database; a fresh database
is seeded from the keymap's features.

Example:
  printf '+A\n+D\n-D\n' | interlock run --db ./interlock.db keymap.cue
  interlock run --db /tmp/test.db --tick 10ms --verbose`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			keymapPath := ""
			if len(args) == 1 {
				keymapPath = args[0]
			}
			return runEngine(opts, keymapPath, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().DurationVar(&opts.TickRate, "tick", time.Millisecond, "scan tick interval")
	cmd.Flags().IntVar(&opts.Capacity, "capacity", 0, "ledger capacity override (1..16)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

// newLogger builds the text logger used by long-running commands.
func newLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	}))
}

func runEngine(opts *RunOptions, keymapPath string, cmd *cobra.Command) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	km, err := resolveKeymap(keymapPath)
	if err != nil {
		return err
	}
	if opts.Capacity != 0 {
		if opts.Capacity < 1 || opts.Capacity > compiler.MaxCapacity {
			return NewExitError(ExitCommandError,
				fmt.Sprintf("capacity %d out of range 1..%d", opts.Capacity, compiler.MaxCapacity))
		}
		km.Capacity = opts.Capacity
	}
	logger.Info("keymap loaded", "rules", km.Rules.Count(), "capacity", km.Capacity, "hash", km.Rules.Hash())

	logger.Info("opening database", "path", opts.Database)
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	flags, err := st.InitFlags(ctx, km.Features)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load feature flags", err)
	}
	word, err := st.ReadWord(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read config word", err)
	}
	logger.Info("database ready", "flags", flags.String())

	gen := opts.SessionGenerator
	if gen == nil {
		gen = scan.UUIDv7Generator{}
	}
	sessionID, err := scan.StartSession(ctx, st, gen, scan.SessionConfig{
		Rules:       km.Rules,
		Capacity:    km.Capacity,
		InitialWord: word,
		StartedAt:   time.Now(),
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start session", err)
	}

	// Transitions still queued at shutdown are drained after ctx is
	// cancelled; their flag writes must still land.
	state := feature.NewState(flags, st.Persister(context.WithoutCancel(ctx)), logger)
	host := scan.NewHost()
	eng := engine.New(km.Rules, host.Reporter(), state,
		engine.WithCapacity(km.Capacity),
		engine.WithLogger(logger),
	)

	out := cmd.OutOrStdout()
	printer := &tickPrinter{w: out, json: opts.Format == "json", host: host, eng: eng}
	loop := scan.NewLoop(eng, host, scan.Config{TickRate: opts.TickRate},
		scan.WithSink(scan.StoreSink{Store: st, SessionID: sessionID}),
		scan.WithObserver(printer.print),
		scan.WithLogger(logger),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	go func() {
		readTransitions(ctx, cmd.InOrStdin(), loop, opts.TickRate, logger)
		cancel()
	}()

	logger.Info("scan loop starting", "session", sessionID, "tick", opts.TickRate)
	if !printer.json {
		fmt.Fprintf(out, "Session %s started. Reading key events from stdin...\n", sessionID)
	}

	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "scan loop error", err)
	}

	if !printer.json {
		fmt.Fprintf(out, "Session %s: %d transition(s) in %d tick(s)\n", sessionID, printer.transitions, loop.Tick())
	}
	logger.Info("scan loop stopped", "session", sessionID, "ticks", loop.Tick())
	return nil
}

// resolveKeymap loads the keymap at path, or the default keymap when path
// is empty.
func resolveKeymap(path string) (*compiler.Keymap, error) {
	if path == "" {
		return &compiler.Keymap{
			Rules:    rules.DefaultTable(),
			Features: feature.Flags{Enabled: true, Recovery: true},
			Capacity: compiler.DefaultCapacity,
		}, nil
	}
	return loadValidKeymap(path)
}

// readTransitions feeds lines from r into the loop until EOF or ctx is done.
// Lines that don't parse are logged and skipped.
func readTransitions(ctx context.Context, r io.Reader, loop *scan.Loop, tick time.Duration, logger *slog.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		trs, ok, err := scan.ParseTransition(scanner.Text())
		if err != nil {
			logger.Warn("skipping input line", "error", err)
			continue
		}
		if !ok {
			continue
		}
		for _, tr := range trs {
			if err := sendWait(ctx, loop, tr, tick); err != nil {
				return
			}
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Error("reading input", "error", err)
	}
}

// sendWait retries a full queue once per tick.
func sendWait(ctx context.Context, loop *scan.Loop, tr scan.Transition, tick time.Duration) error {
	for {
		err := loop.Send(tr)
		if !errors.Is(err, scan.ErrQueueFull) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(tick):
		}
	}
}

// tickPrinter writes one line per non-empty tick. It runs on the loop
// goroutine.
type tickPrinter struct {
	w           io.Writer
	json        bool
	host        *scan.Host
	eng         *engine.Engine
	transitions int
}

func (p *tickPrinter) print(tr scan.TickResult) {
	p.transitions += len(tr.Results)
	rep := p.host.Report()
	boot := rep.Boot()

	if p.json {
		line := TickOutput{
			Tick:   tr.Tick,
			Events: make([]EventView, len(tr.Results)),
			Report: rep.Names(),
			Boot:   hex.EncodeToString(boot[:]),
			Flags:  p.eng.Flags(),
		}
		for i, r := range tr.Results {
			line.Events[i] = newEventView(r)
		}
		_ = json.NewEncoder(p.w).Encode(line)
		return
	}

	events := make([]string, len(tr.Results))
	for i, r := range tr.Results {
		events[i] = formatEvent(r.Transition.String(), r.Forwarded, r.Effects)
	}
	fmt.Fprintf(p.w, "[tick %d] %s => %s  % x\n", tr.Tick, strings.Join(events, "; "), rep, boot[:])
}

func newEventView(r scan.Result) EventView {
	return EventView{
		Seq:       r.Seq,
		Event:     r.Transition.String(),
		Forwarded: r.Forwarded,
		Effects:   effectStrings(r.Effects),
	}
}

func effectStrings(effects []report.Effect) []string {
	out := make([]string, len(effects))
	for i, e := range effects {
		out[i] = e.String()
	}
	return out
}

// formatEvent renders "+KC_A (withdraw KC_D)" or "+ARB_TOGG (consumed)".
func formatEvent(event string, forwarded bool, effects []report.Effect) string {
	var notes []string
	if !forwarded {
		notes = append(notes, "consumed")
	}
	notes = append(notes, effectStrings(effects)...)
	if len(notes) == 0 {
		return event
	}
	return fmt.Sprintf("%s (%s)", event, strings.Join(notes, ", "))
}
