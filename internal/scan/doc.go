// Package scan drives the arbitration engine the way a keyboard's matrix
// scan loop does.
//
// # Tick Model
//
// Transitions arrive asynchronously through Send and are batched. Once per
// tick the loop drains the batch and delivers each transition to the engine
// synchronously, in arrival order, before the next one. The engine never
// sees two events at once and never runs on more than one goroutine.
//
//	Send(+A) Send(+D) ──► [batch] ──tick──► ProcessEvent(A) ──► host report
//	                                        ProcessEvent(D) ──► host report
//	                                        Sink.RecordTick(results)
//
// Each processed transition gets a seq from a logical clock. seq, never wall
// time, orders the session log, so a logged session replays identically.
//
// # Host Layer
//
// Host plays the role of normal keycode processing: engine effects are
// applied to the report first, then a forwarded press registers its key and a
// forwarded release unregisters it.
package scan
