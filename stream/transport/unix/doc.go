// Package unix implements the transport connectors for unix domain sockets.
//
// Useful when producer and pipeline run on the same host, e.g. a local capture
// bridge or tests. The endpoint is the path of the socket file, a stale file of a
// previous run is removed before listening.
package unix
