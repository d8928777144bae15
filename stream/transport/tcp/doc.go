// Package tcp implements the transport connectors for tcp sockets. This is the
// transport the capture app speaks.
//
// Accepted and dialed connections are tuned from the SocketConf and TCPConf of the
// respective config. TCPNoDelay is enabled by default so small frames are not held
// back by Nagle's algorithm.
package tcp
