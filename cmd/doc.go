// Package cmd implements the command-line interface of dStream.
//
// The package is organized into several subpackages:
//
//   - serve: runs a stream pipeline, optionally with a recorder and a monitor endpoint
//   - send: a producer that streams synthetic frames or replays a recording
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set as environment variable DSTREAM_<FLAG> (e.g.
// DSTREAM_STOP_BYTE=e), in a .env file or in the file given by --config.
//
// See dstream -help for a list of all commands.
package cmd
