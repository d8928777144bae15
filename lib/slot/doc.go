// Package slot provides a single-slot, overwrite-on-full handoff between a producer
// and a consumer goroutine.
//
// Features and Guarantees:
//
//   - Bounded: the slot holds at most one value, regardless of the put rate
//   - Non-blocking writes: Put() always returns immediately and replaces any unread value
//   - Freshness: Take() never returns a value older than the most recently completed Put()
//   - Cancellable reads: Take() returns when the context is done or the slot is closed
//   - Drop accounting: every replaced unread value is counted (see Stats)
//
// Values between two Take() calls may be silently dropped. This is the intended
// backpressure policy: freshness over completeness.
package slot
