// Package queue provides a lock-free Multi-Producer Single-Consumer (MPSC) queue.
//
// Features and Guarantees:
//
//   - Lock-Free writes: producers only use atomic operations on the hot path
//   - Unbounded Size: the queue grows as needed, limited only by available memory
//   - Ordered delivery: items of a single producer are delivered in push order
//   - Channel based consumption: items are received via Recv(), usable in select statements
//   - Drain on close: items pushed before Close() are still delivered
//
// The stream pipeline uses it to hand status events from its workers to the host's
// status reporter without ever blocking a network goroutine on a slow reporter.
package queue
