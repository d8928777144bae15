package common

import (
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Wire protocol defaults
// --------------------------------------------------------------------------

const (
	// DefaultTerminator marks the end of a frame when it is the last byte of a received chunk
	DefaultTerminator byte = 'a'
	// DefaultStopByte signals that the producer stopped capturing
	DefaultStopByte byte = 'z'
	// DefaultHandshake is sent to the producer right after accept
	DefaultHandshake byte = 's'
	// DefaultReadBufferSize is the maximum size of a single read from the connection
	DefaultReadBufferSize = 64 * 1024
	// DefaultEndpoint matches the port the capture app connects to by default
	DefaultEndpoint = "0.0.0.0:19977"
)

// --------------------------------------------------------------------------
// Socket configuration
// --------------------------------------------------------------------------

// SocketConf contains socket level options applied to accepted or dialed connections
type SocketConf struct {
	// ReadBufferSize is the kernel receive buffer size in bytes (0 = system default)
	ReadBufferSize int
	// WriteBufferSize is the kernel send buffer size in bytes (0 = system default)
	WriteBufferSize int
}

// TCPConf contains tcp specific options, ignored by other transports
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int
}

// --------------------------------------------------------------------------
// Pipeline configuration
// --------------------------------------------------------------------------

// PipelineConfig holds all configuration parameters of a stream pipeline
type PipelineConfig struct {
	// Name identifies the pipeline in logs, metrics and status reports
	Name string

	// Endpoint is the address to listen on (host:port for tcp, a path for unix)
	Endpoint string

	// Framing
	ReadBufferSize int
	MaxFrameSize   int
	Terminator     byte
	StopByte       byte
	Handshake      byte

	// ReadTimeoutSecond closes a connection that sent nothing for this long (0 = never)
	ReadTimeoutSecond int

	// StatsIntervalSecond is the interval of the frames per second log line (0 = off)
	StatsIntervalSecond int

	SocketConf SocketConf
	TCPConf    TCPConf
}

// DefaultPipelineConfig returns a config with the protocol defaults
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Name:           "stream",
		Endpoint:       DefaultEndpoint,
		ReadBufferSize: DefaultReadBufferSize,
		Terminator:     DefaultTerminator,
		StopByte:       DefaultStopByte,
		Handshake:      DefaultHandshake,
		TCPConf: TCPConf{
			TCPNoDelay:   true,
			TCPLingerSec: -1,
		},
	}
}

// Validate checks the config for values the pipeline cannot work with
func (c *PipelineConfig) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("no endpoint provided")
	}
	if c.ReadBufferSize <= 0 {
		return fmt.Errorf("read buffer size must be positive, got %d", c.ReadBufferSize)
	}
	if c.Terminator == c.StopByte {
		return fmt.Errorf("terminator and stop byte must differ (both %q)", c.Terminator)
	}
	if c.MaxFrameSize < 0 {
		return fmt.Errorf("max frame size must not be negative, got %d", c.MaxFrameSize)
	}
	return nil
}

// String returns a formatted string representation of the configuration
func (c *PipelineConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Stream Pipeline")
	addField("Name", c.Name)
	addField("Endpoint", c.Endpoint)
	addField("Read Timeout", fmt.Sprintf("%d sec", c.ReadTimeoutSecond))
	addField("Stats Interval", fmt.Sprintf("%d sec", c.StatsIntervalSecond))

	addSection("Framing")
	addField("Read Buffer", fmt.Sprintf("%d bytes", c.ReadBufferSize))
	if c.MaxFrameSize > 0 {
		addField("Max Frame Size", fmt.Sprintf("%d bytes", c.MaxFrameSize))
	} else {
		addField("Max Frame Size", "unlimited")
	}
	addField("Terminator", fmt.Sprintf("%q", c.Terminator))
	addField("Stop Byte", fmt.Sprintf("%q", c.StopByte))
	addField("Handshake", fmt.Sprintf("%q", c.Handshake))

	addSection("Socket")
	addField("TCP No Delay", fmt.Sprintf("%t", c.TCPConf.TCPNoDelay))
	addField("TCP Keep Alive", fmt.Sprintf("%d sec", c.TCPConf.TCPKeepAliveSec))
	addField("Socket Read Buffer", fmt.Sprintf("%d bytes", c.SocketConf.ReadBufferSize))

	return sb.String()
}

// --------------------------------------------------------------------------
// Producer client configuration
// --------------------------------------------------------------------------

// ClientConfig holds the configuration of a producer connection
type ClientConfig struct {
	Endpoint string

	// TimeoutSecond bounds dialing, the handshake and each write (0 = no timeout)
	TimeoutSecond int

	Terminator byte
	StopByte   byte
	Handshake  byte

	SocketConf SocketConf
	TCPConf    TCPConf
}

// DefaultClientConfig returns a client config with the protocol defaults
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Endpoint:      "localhost:19977",
		TimeoutSecond: 5,
		Terminator:    DefaultTerminator,
		StopByte:      DefaultStopByte,
		Handshake:     DefaultHandshake,
		TCPConf: TCPConf{
			TCPNoDelay:   true,
			TCPLingerSec: -1,
		},
	}
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	sb.WriteString("\nPRODUCER\n")
	addField("Endpoint", c.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Terminator", fmt.Sprintf("%q", c.Terminator))
	addField("Stop Byte", fmt.Sprintf("%q", c.StopByte))

	return sb.String()
}
