package sink

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

const (
	// recordMagic starts every recording file (after decompression)
	recordMagic = "DSTREAM1"
	// recordHeaderSize is seq (8) + unix nanos (8) + payload length (4)
	recordHeaderSize = 20
)

// maxRecordSize bounds the payload length of a record, for writing and reading
var maxRecordSize = 256 * 1024 * 1024

var (
	// ErrInvalidRecording is returned when a file is not a recording
	ErrInvalidRecording = errors.New("not a stream recording")

	// ErrRecordTooLarge is returned by RecordSink.Write for payloads a reader would reject
	ErrRecordTooLarge = errors.New("record too large")
)

// Compression selects how a recording is compressed
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZstd
	CompressionLZ4
)

// CompressionFor derives the compression from the file extension (.zst, .lz4)
func CompressionFor(path string) Compression {
	switch filepath.Ext(path) {
	case ".zst", ".zstd":
		return CompressionZstd
	case ".lz4":
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

// String returns the string representation of a Compression
func (c Compression) String() string {
	switch c {
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return "none"
	}
}

// Record is a single payload of a recording
type Record struct {
	Seq     uint64
	Time    time.Time
	Payload []byte
}

// --------------------------------------------------------------------------
// Writing
// --------------------------------------------------------------------------

// RecordSink appends every payload to a recording file.
//
// Each record is written as:
//   - 8 bytes: sequence number (uint64, big endian)
//   - 8 bytes: receive time in unix nanoseconds (int64, big endian)
//   - 4 bytes: payload length (uint32, big endian)
//   - N bytes: payload
type RecordSink struct {
	mu         sync.Mutex
	file       *os.File
	compressor io.WriteCloser // nil without compression
	w          *bufio.Writer
	header     []byte
	seq        uint64
	closed     bool
}

// NewRecordSink creates (or truncates) the recording at path.
// The compression is chosen by the file extension, see CompressionFor.
func NewRecordSink(path string) (*RecordSink, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording: %w", err)
	}

	r := &RecordSink{
		file:   file,
		header: make([]byte, recordHeaderSize),
	}

	var dst io.Writer = file
	switch CompressionFor(path) {
	case CompressionZstd:
		enc, err := zstd.NewWriter(file, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		r.compressor = enc
		dst = enc
	case CompressionLZ4:
		enc := lz4.NewWriter(file)
		r.compressor = enc
		dst = enc
	}
	r.w = bufio.NewWriterSize(dst, 64*1024)

	if _, err := r.w.WriteString(recordMagic); err != nil {
		r.Close()
		return nil, fmt.Errorf("failed to write recording header: %w", err)
	}

	Logger.Infof("recording to %s (compression: %s)", path, CompressionFor(path))
	return r, nil
}

// SetLatestPayload appends payload as the next record
func (r *RecordSink) SetLatestPayload(payload []byte) error {
	return r.Write(time.Now(), payload)
}

// Write appends payload with the given receive time
func (r *RecordSink) Write(t time.Time, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return os.ErrClosed
	}
	if len(payload) > maxRecordSize {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrRecordTooLarge, len(payload), maxRecordSize)
	}

	r.seq++
	binary.BigEndian.PutUint64(r.header[:8], r.seq)
	binary.BigEndian.PutUint64(r.header[8:16], uint64(t.UnixNano()))
	binary.BigEndian.PutUint32(r.header[16:20], uint32(len(payload)))

	if _, err := r.w.Write(r.header); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if _, err := r.w.Write(payload); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

// Count returns the number of records written
func (r *RecordSink) Count() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}

// Flush writes buffered records to the file
func (r *RecordSink) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return os.ErrClosed
	}
	if err := r.w.Flush(); err != nil {
		return err
	}
	if f, ok := r.compressor.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// Close flushes all records and closes the file. Calling Close twice is safe.
func (r *RecordSink) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	errs = append(errs, r.w.Flush())
	if r.compressor != nil {
		errs = append(errs, r.compressor.Close())
	}
	errs = append(errs, r.file.Close())

	Logger.Infof("recording %s closed after %d records", r.file.Name(), r.seq)
	return errors.Join(errs...)
}

// --------------------------------------------------------------------------
// Reading
// --------------------------------------------------------------------------

// RecordReader reads a recording written by RecordSink
type RecordReader struct {
	file   *os.File
	closer func() // releases the decompressor
	r      *bufio.Reader
	header []byte
}

// OpenRecording opens the recording at path for reading
func OpenRecording(path string) (*RecordReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recording: %w", err)
	}

	rr := &RecordReader{
		file:   file,
		closer: func() {},
		header: make([]byte, recordHeaderSize),
	}

	var src io.Reader = file
	switch CompressionFor(path) {
	case CompressionZstd:
		dec, err := zstd.NewReader(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		rr.closer = dec.Close
		src = dec
	case CompressionLZ4:
		src = lz4.NewReader(file)
	}
	rr.r = bufio.NewReaderSize(src, 64*1024)

	magic := make([]byte, len(recordMagic))
	if _, err := io.ReadFull(rr.r, magic); err != nil || string(magic) != recordMagic {
		rr.Close()
		return nil, fmt.Errorf("%w: %s", ErrInvalidRecording, path)
	}

	return rr, nil
}

// Next returns the next record, or io.EOF after the last one
func (rr *RecordReader) Next() (Record, error) {
	if _, err := io.ReadFull(rr.r, rr.header); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Record{}, fmt.Errorf("truncated record header: %w", err)
		}
		return Record{}, err
	}

	seq := binary.BigEndian.Uint64(rr.header[:8])
	nanos := int64(binary.BigEndian.Uint64(rr.header[8:16]))
	length := binary.BigEndian.Uint32(rr.header[16:20])

	if int64(length) > int64(maxRecordSize) {
		return Record{}, fmt.Errorf("%w: record %d claims %d bytes", ErrInvalidRecording, seq, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(rr.r, payload); err != nil {
		return Record{}, fmt.Errorf("truncated record %d: %w", seq, err)
	}

	return Record{Seq: seq, Time: time.Unix(0, nanos), Payload: payload}, nil
}

// Close closes the recording
func (rr *RecordReader) Close() error {
	rr.closer()
	return rr.file.Close()
}

// ReadRecords reads all records of the recording at path
func ReadRecords(path string) ([]Record, error) {
	rr, err := OpenRecording(path)
	if err != nil {
		return nil, err
	}
	defer rr.Close()

	var records []Record
	for {
		rec, err := rr.Next()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
}
