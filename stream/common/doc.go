// Package common provides the data structures shared across the stream packages.
//
// The package focuses on:
//   - Configuration structures for the pipeline (server side) and the producer client
//   - Wire protocol defaults (terminator, stop byte, handshake, read buffer size)
//   - Pipeline states and the status events reported to the host
//   - Custom logging implementation integrated with Dragonboat's logger facade
//
// Key Components:
//
//   - PipelineConfig: everything a pipeline needs to listen and frame a stream,
//     including socket options applied to accepted connections.
//
//   - ClientConfig: configuration of a producer connection.
//
//   - State / Event / Status: the lifecycle of a pipeline as seen by the host.
//
//   - Logger: InitLoggers installs a logger factory with a consistent line format for
//     all package loggers (pipeline, framing, transport, sink, client, monitor).
package common
