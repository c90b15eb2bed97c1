// Package store provides SQLite-backed durable storage for interlock.
//
// The store holds two things:
//   - the shared keymap configuration word, where the arbitration feature
//     flags persist across power cycles
//   - an append-only session log of key transitions and the report effects
//     they produced, used by the replay and trace commands
//
// # Ordering
//
// Transitions are ordered by seq, a per-session logical clock assigned by
// the scan loop. Queries always ORDER BY seq ASC; wall time is recorded for
// humans only and never used for ordering.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
