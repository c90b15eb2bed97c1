// Package harness provides conformance testing for arbitration keymaps.
//
// The harness loads a rule table, drives a key sequence through a real
// engine and scan loop, and validates the resulting trace and final state.
// Every run is logged to an in-memory store and then replayed; any replay
// divergence fails the scenario.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	keymap: ../keymaps/wasd.cue      # or inline rules, or neither for the default table
//	rules:
//	  - {trigger: KC_D, suppressed: KC_A}
//	features: {enabled: true, recovery: true}
//	capacity: 10
//	steps:
//	  - press: KC_A
//	    report: [KC_A]
//	  - release: KC_A
//	    forwarded: true
//	assertions:
//	  - type: trace_contains
//	    effect: "withdraw KC_D"
//	  - type: final_ledger
//	    keys: ["!KC_A", KC_D]
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - trace_contains: Verifies an effect was emitted
//   - trace_order: Verifies effects were emitted in the given order
//   - trace_count: Verifies an effect was emitted exactly N times
//   - final_report: Compares the final host report as a set
//   - final_ledger: Compares the final ledger, "!" marking withdrawn entries
//   - final_flags: Compares engine and persisted feature flags
//
// # Deterministic Testing
//
// All scenarios execute with a deterministic seq clock and session id
// to ensure reproducible test results and golden snapshot comparison.
//
// The harness uses:
//   - Fixed session id (from scenario.session_id or "test-session-default")
//   - A fresh seq clock per run, so the first transition is seq 1
//   - In-memory SQLite database (isolated per test)
//   - One scan tick per step
package harness
