// Package pipeline implements the lossy latest-frame stream pipeline.
//
// A Pipeline listens for a single producer. After accepting a connection it sends
// the handshake byte, then every frame read from the connection is put into a
// single-value slot. A consumer goroutine takes the newest frame from the slot and
// hands it to the sink. When the producer is faster than the sink, intermediate
// frames are dropped: the sink sees fresh data and the network reader never waits.
//
// Lifecycle:
//
//	Idle --Start--> Listening --accept--> Connected
//	                    ^                     |
//	                    +-- lost / peer stop -+
//	Listening|Connected --Stop or sink error--> Stopping --> Stopped
//
// A lost connection or a stop request of the producer returns the pipeline to
// Listening without restarting the consumer. Stopped is terminal.
//
// Key Components:
//
//   - Pipeline: owns the listener, the active connection and its workers. Several
//     pipelines can run side by side, nothing is shared between them.
//
//   - IStatusReporter: receives every transition as a common.Status, in order, on a
//     separate goroutine (see lib/queue).
//
//   - BindError, SinkError: the fatal errors. Connection errors are never fatal.
//
// Every pipeline keeps frame statistics (lib/stats) and a prometheus metrics set,
// written by WritePrometheus.
package pipeline
