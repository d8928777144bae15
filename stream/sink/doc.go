// Package sink contains the consumers a stream pipeline can deliver payloads to.
//
// Key Components:
//
//   - ISink: the interface the pipeline calls with the latest payload.
//
//   - ParameterStore: keeps the latest payload per parameter name in an xsync.MapOf.
//     Store.Sink(name) binds a pipeline to one parameter, other goroutines read the
//     current value with Get.
//
//   - RecordSink / RecordReader: binary recordings of a stream, optionally zstd or
//     lz4 compressed depending on the file extension. Recordings can be replayed
//     with the send command.
//
//   - MultiSink, FuncSink, LogSink: composition and debugging helpers.
package sink
