package framing

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"time"

	"github.com/ValentinKolb/dStream/stream/common"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("framing")

var (
	// ErrPeerStop is returned when a chunk ends with the stop byte
	ErrPeerStop = errors.New("stream ended by peer request")

	// ErrConnectionLost is returned (wrapped) on EOF, a zero-length read or any read error
	ErrConnectionLost = errors.New("connection lost")

	// ErrFrameTooLarge is returned (wrapped) when a frame grows beyond the configured maximum
	ErrFrameTooLarge = errors.New("frame too large")
)

// Config controls how a Reader splits a byte stream into frames
type Config struct {
	// BufferSize is the maximum number of bytes read per call
	BufferSize int
	// MaxFrameSize bounds the accumulated frame (0 = unlimited)
	MaxFrameSize int
	// ReadTimeout is applied as read deadline before every read, if the source supports deadlines (0 = none)
	ReadTimeout time.Duration

	Terminator byte
	StopByte   byte
}

// ConfigFromPipeline extracts the framing config from a pipeline config
func ConfigFromPipeline(c common.PipelineConfig) Config {
	return Config{
		BufferSize:   c.ReadBufferSize,
		MaxFrameSize: c.MaxFrameSize,
		ReadTimeout:  time.Duration(c.ReadTimeoutSecond) * time.Second,
		Terminator:   c.Terminator,
		StopByte:     c.StopByte,
	}
}

// deadliner is implemented by net.Conn
type deadliner interface {
	SetReadDeadline(t time.Time) error
}

// Reader reassembles frames from a stream read in arbitrary chunks.
//
// Only the last byte of each chunk is inspected: the terminator completes the
// accumulated frame, the stop byte ends the stream and discards it. Frames keep
// their terminator byte and are never reused by the Reader.
//
// A Reader is not safe for concurrent use. To cancel a blocked Next, close the
// underlying connection from another goroutine.
type Reader struct {
	src    io.Reader
	config Config
	buf    []byte
	acc    []byte

	// err is sticky, once set every call to Next returns it
	err error
}

// NewReader creates a Reader on top of src (typically a net.Conn)
func NewReader(src io.Reader, config Config) *Reader {
	if config.BufferSize <= 0 {
		config.BufferSize = common.DefaultReadBufferSize
	}
	return &Reader{
		src:    src,
		config: config,
		buf:    make([]byte, config.BufferSize),
	}
}

// Next blocks until the next complete frame has been read.
//
// The returned error is ErrPeerStop, or wraps ErrConnectionLost or ErrFrameTooLarge.
// After an error the Reader is done: partial data is discarded and every further
// call returns the same error.
func (r *Reader) Next() ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}

	for {
		if r.config.ReadTimeout > 0 {
			if d, ok := r.src.(deadliner); ok {
				if err := d.SetReadDeadline(time.Now().Add(r.config.ReadTimeout)); err != nil {
					return nil, r.fail(fmt.Errorf("%w: failed to set read deadline: %w", ErrConnectionLost, err))
				}
			}
		}

		n, readErr := r.src.Read(r.buf)

		if n > 0 {
			chunk := r.buf[:n]

			switch chunk[n-1] {
			case r.config.StopByte:
				Logger.Debugf("stop byte received, discarding %d buffered bytes", len(r.acc)+n-1)
				return nil, r.fail(ErrPeerStop)

			case r.config.Terminator:
				frame := append(r.acc, chunk...)
				r.acc = nil

				// deliver the frame first, the error ends the next call
				if readErr != nil {
					r.err = lost(readErr)
				}
				return frame, nil
			}

			r.acc = append(r.acc, chunk...)

			if r.config.MaxFrameSize > 0 && len(r.acc) > r.config.MaxFrameSize {
				return nil, r.fail(fmt.Errorf("%w: %d bytes without terminator (limit %d)",
					ErrFrameTooLarge, len(r.acc), r.config.MaxFrameSize))
			}
		}

		if readErr != nil {
			return nil, r.fail(lost(readErr))
		}

		if n == 0 {
			return nil, r.fail(fmt.Errorf("%w: zero-length read", ErrConnectionLost))
		}
	}
}

// All returns the remaining frames as an iterator.
// Iteration ends after the first error, which is yielded together with a nil frame.
func (r *Reader) All() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for {
			frame, err := r.Next()
			if !yield(frame, err) || err != nil {
				return
			}
		}
	}
}

// Buffered returns the number of bytes of the incomplete frame read so far
func (r *Reader) Buffered() int {
	return len(r.acc)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// fail discards the partial frame and makes err sticky
func (r *Reader) fail(err error) error {
	r.acc = nil
	r.err = err
	return err
}

// lost wraps a read error as ErrConnectionLost
func lost(err error) error {
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: closed by peer (%w)", ErrConnectionLost, err)
	}
	return fmt.Errorf("%w: %w", ErrConnectionLost, err)
}
