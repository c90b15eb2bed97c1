package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/interlock/internal/keycode"
	"github.com/roach88/interlock/internal/report"
	"github.com/roach88/interlock/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database  string
	SessionID string // optional - defaults to the latest session
	Key       string // optional - filter to one keycode
}

// TraceEvent represents a single logged transition in the timeline.
type TraceEvent struct {
	Seq       int64    `json:"seq"`
	Tick      int64    `json:"tick"`
	Event     string   `json:"event"`
	Forwarded bool     `json:"forwarded"`
	Effects   []string `json:"effects"`
	Report    []string `json:"report"`
}

// SuppressionEdge records which transition withdrew or restored which key.
type SuppressionEdge struct {
	Seq    int64  `json:"seq"`
	Cause  string `json:"cause"`
	Op     string `json:"op"`
	Target string `json:"target"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	SessionID string            `json:"session_id"`
	RulesHash string            `json:"rules_hash"`
	Timeline  []TraceEvent      `json:"timeline"`
	Edges     []SuppressionEdge `json:"edges"`
	Held      []string          `json:"held"`
	Stats     TraceStats        `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents int   `json:"total_events"`
	Presses     int   `json:"presses"`
	Releases    int   `json:"releases"`
	Consumed    int   `json:"consumed"`
	Withdrawals int   `json:"withdrawals"`
	Restores    int   `json:"restores"`
	Ticks       int64 `json:"ticks"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the transition log of a session",
		Long: `Show the logged transitions of a session.

The output includes:
- Timeline: every transition with its forwarding decision, report effects
  and the host report afterwards
- Edges: which transition withdrew or restored which key
- Stats: summary counts for the session

Without --session the most recent session is shown.

Examples:
  interlock trace --db ./interlock.db
  interlock trace --db ./interlock.db --session 0190... --key KC_A
  interlock trace --db ./interlock.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.SessionID, "session", "", "session to trace (default: latest)")
	cmd.Flags().StringVar(&opts.Key, "key", "", "filter to transitions and effects involving a keycode")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		filter    keycode.Keycode
		hasFilter bool
	)
	if opts.Key != "" {
		k, err := keycode.Parse(opts.Key)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --key", err)
		}
		filter, hasFilter = k, true
	}

	st, err := openExistingStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	sessionID, err := resolveSessionID(ctx, st, opts.SessionID)
	if err != nil {
		return err
	}
	if sessionID == "" {
		if opts.Format == "json" {
			return outputTraceJSON(cmd, TraceResult{
				Timeline: []TraceEvent{},
				Edges:    []SuppressionEdge{},
				Held:     []string{},
			})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No sessions found in database.")
		return nil
	}

	log, err := st.GetSessionLog(ctx, sessionID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read session log", err)
	}

	result := buildTrace(log, filter, hasFilter)

	if opts.Format == "json" {
		return outputTraceJSON(cmd, result)
	}
	return outputTraceText(cmd, result, opts.Verbose)
}

// resolveSessionID returns id, or the latest session when id is empty.
// An empty store yields "" and no error.
func resolveSessionID(ctx context.Context, st *store.Store, id string) (string, error) {
	if id != "" {
		return id, nil
	}
	latest, err := st.LatestSession(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", WrapExitError(ExitCommandError, "failed to find latest session", err)
	}
	return latest.ID, nil
}

// buildTrace converts a session log to a timeline. When hasFilter is set,
// only transitions of the key or with an effect on it are included; stats
// always cover the whole session.
func buildTrace(log store.SessionLog, filter keycode.Keycode, hasFilter bool) TraceResult {
	result := TraceResult{
		SessionID: log.Session.ID,
		RulesHash: log.Session.RulesHash,
		Timeline:  []TraceEvent{},
		Edges:     []SuppressionEdge{},
		Held:      keyNames(log.Held),
		Stats: TraceStats{
			TotalEvents: len(log.Transitions),
			Ticks:       log.LastTick,
		},
	}

	for _, tr := range log.Transitions {
		event := transitionString(tr)

		if tr.Pressed {
			result.Stats.Presses++
		} else {
			result.Stats.Releases++
		}
		if !tr.Forwarded {
			result.Stats.Consumed++
		}

		touches := !hasFilter || tr.Key == filter
		for _, e := range tr.Effects {
			switch e.Op {
			case report.OpWithdraw:
				result.Stats.Withdrawals++
			case report.OpAssert:
				result.Stats.Restores++
			}
			if hasFilter && e.Key != filter && tr.Key != filter {
				continue
			}
			touches = true
			result.Edges = append(result.Edges, SuppressionEdge{
				Seq:    tr.Seq,
				Cause:  event,
				Op:     string(e.Op),
				Target: e.Key.String(),
			})
		}
		if !touches {
			continue
		}

		result.Timeline = append(result.Timeline, TraceEvent{
			Seq:       tr.Seq,
			Tick:      tr.Tick,
			Event:     event,
			Forwarded: tr.Forwarded,
			Effects:   effectStrings(tr.Effects),
			Report:    keyNames(tr.Report),
		})
	}

	return result
}

func transitionString(tr store.Transition) string {
	if tr.Pressed {
		return "+" + tr.Key.String()
	}
	return "-" + tr.Key.String()
}

// outputTraceJSON outputs the trace result as JSON.
func outputTraceJSON(cmd *cobra.Command, result TraceResult) error {
	response := CLIResponse{
		Status:    "ok",
		Data:      result,
		SessionID: result.SessionID,
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// outputTraceText outputs the trace result as text.
func outputTraceText(cmd *cobra.Command, result TraceResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Trace for Session: %s\n", result.SessionID)
	if verbose {
		fmt.Fprintf(w, "Rules: %s\n", truncateID(result.RulesHash))
	}
	fmt.Fprintf(w, "Status: %s\n", heldStatus(result.Held))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	} else {
		for _, event := range result.Timeline {
			formatTimelineEvent(w, event, verbose)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Edges ===")
	if len(result.Edges) == 0 {
		fmt.Fprintln(w, "  (no suppressions)")
	} else {
		for _, edge := range result.Edges {
			fmt.Fprintf(w, "  [%d] %s -[%s]-> %s\n", edge.Seq, edge.Cause, edge.Op, edge.Target)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events: %d\n", result.Stats.TotalEvents)
	fmt.Fprintf(w, "  Presses:      %d\n", result.Stats.Presses)
	fmt.Fprintf(w, "  Releases:     %d\n", result.Stats.Releases)
	fmt.Fprintf(w, "  Consumed:     %d\n", result.Stats.Consumed)
	fmt.Fprintf(w, "  Withdrawals:  %d\n", result.Stats.Withdrawals)
	fmt.Fprintf(w, "  Restores:     %d\n", result.Stats.Restores)
	fmt.Fprintf(w, "  Ticks:        %d\n", result.Stats.Ticks)

	return nil
}

// formatTimelineEvent formats a single timeline event for text output.
func formatTimelineEvent(w io.Writer, event TraceEvent, verbose bool) {
	marker := ""
	if !event.Forwarded {
		marker = " (consumed)"
	}
	fmt.Fprintf(w, "  [%d] %s%s => {%s}\n", event.Seq, event.Event, marker, strings.Join(event.Report, " "))
	if len(event.Effects) > 0 {
		fmt.Fprintf(w, "       Effects: %s\n", strings.Join(event.Effects, ", "))
	}
	if verbose {
		fmt.Fprintf(w, "       Tick: %d\n", event.Tick)
	}
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}

// heldStatus returns a human-readable end-of-log status.
func heldStatus(held []string) string {
	if len(held) == 0 {
		return "All keys released"
	}
	return fmt.Sprintf("Keys still held: %s", strings.Join(held, " "))
}
