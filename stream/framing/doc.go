// Package framing turns the producer's byte stream into frames.
//
// The producer appends a terminator byte to every payload, but neither the payload
// nor the chunking of the stream is constrained. The Reader therefore decides
// frame boundaries only by the last byte of each chunk read from the connection:
//
//   - Terminator ('a' by default): the accumulated bytes, terminator included, form one frame
//   - Stop byte ('z' by default): the producer stopped, pending bytes are discarded
//   - Anything else: keep accumulating
//
// A terminator or stop byte inside a chunk has no meaning. This mirrors the capture
// app, which writes one frame per send call.
//
// Key Components:
//
//   - Reader: pull-based frame source with Next() and the All() iterator.
//
//   - ErrPeerStop, ErrConnectionLost, ErrFrameTooLarge: terminal conditions. Every
//     error of a Reader is sticky.
package framing
