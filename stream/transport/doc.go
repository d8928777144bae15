// Package transport defines how a stream pipeline obtains its connections. The
// pipeline itself only deals with net.Listener and net.Conn, everything protocol
// specific lives behind the connector interfaces.
//
// Key Components:
//
//   - IListenConnector: creates the listener of a pipeline and tunes accepted
//     connections (see the tcp and unix sub packages).
//
//   - IDialConnector: the producer side counterpart used by the client package.
//
//   - IsExpectedCloseError: classifies errors caused by a regular disconnect.
//
//   - UpgradeTCP: shared socket tuning of both tcp connectors.
package transport
