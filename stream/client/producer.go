package client

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/ValentinKolb/dStream/stream/common"
	"github.com/ValentinKolb/dStream/stream/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("client")

var (
	// ErrHandshake is returned by Dial when the server did not send the expected handshake
	ErrHandshake = errors.New("handshake failed")

	// ErrClosed is returned when sending on a closed producer
	ErrClosed = errors.New("producer closed")
)

// Producer streams frames to a pipeline, the way the capture app does: every
// payload is sent with a single write that ends with the terminator byte.
//
// Payloads ending in the stop byte may end the stream when the network splits the
// write right after it. All methods are safe for concurrent use.
type Producer struct {
	config common.ClientConfig
	conn   net.Conn

	mu     sync.Mutex
	buf    []byte
	sent   uint64
	bytes  uint64
	closed bool
}

// Dial connects to the pipeline at config.Endpoint and waits for the handshake
func Dial(config common.ClientConfig, connector transport.IDialConnector) (*Producer, error) {
	timeout := time.Duration(config.TimeoutSecond) * time.Second

	conn, err := connector.Connect(config.Endpoint, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", config.Endpoint, err)
	}

	if err := connector.UpgradeConnection(conn, config); err != nil {
		Logger.Warningf("failed to upgrade %s connection: %v", connector.GetName(), err)
	}

	if err := awaitHandshake(conn, config.Handshake, timeout); err != nil {
		conn.Close()
		return nil, err
	}

	Logger.Infof("connected to %s via %s", conn.RemoteAddr(), connector.GetName())
	return &Producer{config: config, conn: conn}, nil
}

// awaitHandshake reads the single handshake byte
func awaitHandshake(conn net.Conn, expected byte, timeout time.Duration) error {
	if timeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return fmt.Errorf("%w: %w", ErrHandshake, err)
		}
		defer conn.SetReadDeadline(time.Time{})
	}

	buf := make([]byte, 1)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	if buf[0] != expected {
		return fmt.Errorf("%w: expected %q, got %q", ErrHandshake, expected, buf[0])
	}
	return nil
}

// Send writes payload followed by the terminator
func (p *Producer) Send(payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	// payload and terminator go out in one write
	p.buf = append(append(p.buf[:0], payload...), p.config.Terminator)
	if err := p.write(p.buf); err != nil {
		return err
	}

	p.sent++
	p.bytes += uint64(len(p.buf))
	return nil
}

// Close sends the stop byte and closes the connection.
// The stop byte is best effort, the connection is closed either way.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	stopErr := p.write([]byte{p.config.StopByte})
	closeErr := p.conn.Close()

	Logger.Infof("stream to %s stopped after %d frames", p.conn.RemoteAddr(), p.sent)
	if stopErr != nil {
		return fmt.Errorf("failed to send stop byte: %w", stopErr)
	}
	return closeErr
}

// Abort closes the connection without sending the stop byte
func (p *Producer) Abort() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return p.conn.Close()
}

// Sent returns the number of frames and bytes written so far
func (p *Producer) Sent() (frames, bytes uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent, p.bytes
}

// RemoteAddr returns the address of the pipeline
func (p *Producer) RemoteAddr() net.Addr {
	return p.conn.RemoteAddr()
}

// write sends data with the configured timeout, callers hold mu
func (p *Producer) write(data []byte) error {
	if p.config.TimeoutSecond > 0 {
		if err := p.conn.SetWriteDeadline(time.Now().Add(time.Duration(p.config.TimeoutSecond) * time.Second)); err != nil {
			return err
		}
	}
	_, err := p.conn.Write(data)
	return err
}
