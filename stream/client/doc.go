// Package client implements the producer side of the stream protocol.
//
// A Producer connects through a transport.IDialConnector, waits for the handshake
// byte of the pipeline and then sends frames. Closing a Producer sends the stop
// byte, which returns the pipeline to standby without logging a lost connection.
//
// The package is used by the send command and by tests of the pipeline.
package client
