// Package engine implements the key arbitration engine.
//
// The engine decides, for every key transition, which keycodes must be
// withdrawn from or asserted to the pending host report when mutually
// exclusive keys (see package rules) are held at the same time.
//
// ARCHITECTURE:
//
// Single Call Path:
// The scan loop calls Engine.ProcessEvent synchronously once per physical
// transition. There are no goroutines, locks or suspension points in the
// engine. This ensures:
// - Rules are evaluated in declaration order
// - Identical transition sequences produce identical report effects
// - Bounded, allocation-free work per scan iteration
//
// Modes:
// Basic mode (recovery off) acts only on presses: the pressed key withdraws
// every key it suppresses. Recovery mode additionally tracks held trigger
// keys in a bounded Ledger so that releasing the most recent key restores
// the keys it had been blocking.
//
// Event Processing Flow:
// 1. Feature command keys are consumed (press) or passed through (release)
// 2. Gates: disabled feature, non-basic keycode, veto hook, basic-mode release
// 3. Recovery mode: ledger insert on press, remove on release
// 4. Press: suppress; release: recompute blocked entries and emit deltas
//
// Recompute:
// For each ledger position (newest to oldest) the engine marks older
// positions that a rule triggered by that entry suppresses. Only
// unblocked-to-blocked transitions produce a withdraw; every unblocked entry
// is re-asserted, which the host report treats as a no-op when the key is
// already present.
//
// Limitations:
//   - More than Ledger capacity held triggers: the newest excess keys are not
//     tracked and cannot be restored later.
//   - A blocked entry still blocks older ones; long chains unwind one hop per
//     release.
package engine
