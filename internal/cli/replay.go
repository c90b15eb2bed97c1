package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/interlock/internal/scan"
	"github.com/roach88/interlock/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database  string
	SessionID string // optional - specific session only
}

// ReplaySessionResult holds the replay result for a single session.
type ReplaySessionResult struct {
	SessionID     string            `json:"session_id"`
	Transitions   int               `json:"transitions"`
	Held          []string          `json:"held,omitempty"`
	FinalReport   []string          `json:"final_report"`
	Deterministic bool              `json:"deterministic"`
	Divergences   []scan.Divergence `json:"divergences,omitempty"`
	Error         string            `json:"error,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Sessions         []ReplaySessionResult `json:"sessions"`
	TotalSessions    int                   `json:"total_sessions"`
	AllDeterministic bool                  `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay logged sessions and verify determinism",
		Long: `Replay logged sessions through a fresh engine and verify determinism.

Each session is re-executed with the rule table, ledger capacity and config
word it was recorded with. Every transition's forwarding decision, report
effects and resulting host report must match the log exactly.

Exit codes:
  0 - All sessions replay identically
  1 - A session diverged from its log
  2 - Command error (database not found, etc.)

Examples:
  interlock replay --db ./interlock.db
  interlock replay --db ./interlock.db --session 0190...
  interlock replay --db ./interlock.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.SessionID, "session", "", "replay specific session only")

	return cmd
}

// openExistingStore opens a database that must already exist.
// Read-side commands use it so a typo doesn't silently create an empty file.
func openExistingStore(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("%s: database not found: %s", ErrCodeNotFound, path), err)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := openExistingStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	var sessionIDs []string
	if opts.SessionID != "" {
		sessionIDs = []string{opts.SessionID}
	} else {
		sessions, err := st.ListSessions(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list sessions", err)
		}
		for _, s := range sessions {
			sessionIDs = append(sessionIDs, s.ID)
		}
	}

	result := ReplayResult{
		Sessions:         make([]ReplaySessionResult, 0, len(sessionIDs)),
		TotalSessions:    len(sessionIDs),
		AllDeterministic: true,
	}

	if len(sessionIDs) == 0 {
		if opts.Format == "json" {
			return outputReplayJSON(cmd, result)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No sessions found in database.")
		return nil
	}

	logger := newLogger(opts.RootOptions, io.Discard)
	if opts.Verbose {
		logger = newLogger(opts.RootOptions, cmd.ErrOrStderr())
	}

	for _, id := range sessionIDs {
		sessionResult, err := replaySession(ctx, st, id, logger)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay session %s", id), err)
		}

		result.Sessions = append(result.Sessions, sessionResult)
		if !sessionResult.Deterministic {
			result.AllDeterministic = false
		}
	}

	if opts.Format == "json" {
		return outputReplayJSON(cmd, result)
	}

	return outputReplayText(cmd, result, opts.Verbose)
}

// replaySession replays one session against its log. A tampered rule table
// counts as a failed replay, not a command error.
func replaySession(ctx context.Context, st *store.Store, id string, logger *slog.Logger) (ReplaySessionResult, error) {
	log, err := st.GetSessionLog(ctx, id)
	if err != nil {
		return ReplaySessionResult{}, err
	}

	out := ReplaySessionResult{
		SessionID:   id,
		Transitions: len(log.Transitions),
		Held:        keyNames(log.Held),
		FinalReport: []string{},
	}

	rep, err := scan.Replay(ctx, log, logger)
	if errors.Is(err, scan.ErrRulesChanged) {
		out.Error = err.Error()
		return out, nil
	}
	if err != nil {
		return ReplaySessionResult{}, err
	}

	out.FinalReport = keyNames(rep.FinalReport)
	out.Divergences = rep.Divergences
	out.Deterministic = rep.OK()
	return out, nil
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(cmd *cobra.Command, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	if !result.AllDeterministic {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_DETERMINISM",
			Message: "determinism verification failed",
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if !result.AllDeterministic {
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, result ReplayResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Replay Summary: %d session(s)\n", result.TotalSessions)
	fmt.Fprintln(w)

	for _, s := range result.Sessions {
		status := "✓"
		if !s.Deterministic {
			status = "✗"
		}

		fmt.Fprintf(w, "%s Session: %s\n", status, s.SessionID)
		fmt.Fprintf(w, "  Transitions: %d\n", s.Transitions)
		if verbose {
			fmt.Fprintf(w, "  Final report: %v\n", s.FinalReport)
		}
		if len(s.Held) > 0 {
			fmt.Fprintf(w, "  Still held at end of log: %v\n", s.Held)
		}

		if s.Error != "" {
			fmt.Fprintf(w, "  Error: %s\n", s.Error)
		}
		for _, d := range s.Divergences {
			fmt.Fprintf(w, "  seq %d: %s = %s, logged %s\n", d.Seq, d.Field, d.Got, d.Want)
		}
		fmt.Fprintln(w)
	}

	if result.AllDeterministic {
		fmt.Fprintln(w, "✓ All sessions verified deterministic")
		return nil
	}

	fmt.Fprintln(w, "✗ Determinism verification failed")
	return NewExitError(ExitFailure, "determinism verification failed")
}
