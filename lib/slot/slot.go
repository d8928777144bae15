package slot

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// ErrClosed is returned by Take once the slot has been closed
var ErrClosed = errors.New("slot closed")

// LatestSlot is a single-slot handoff between one writer and one reader.
// It holds at most one value; a Put replaces any value that has not been taken yet.
type LatestSlot[T any] struct {
	value atomic.Pointer[T]

	// ready holds at most one pending wakeup for the reader
	ready chan struct{}

	closeOnce sync.Once
	closed    chan struct{}

	puts  *xsync.Counter
	takes *xsync.Counter
	drops *xsync.Counter
}

// Stats is a point-in-time snapshot of the slot counters
type Stats struct {
	Puts  int64 `json:"puts"`
	Takes int64 `json:"takes"`
	Drops int64 `json:"drops"`
}

// New creates an empty slot
func New[T any]() *LatestSlot[T] {
	return &LatestSlot[T]{
		ready:  make(chan struct{}, 1),
		closed: make(chan struct{}),
		puts:   xsync.NewCounter(),
		takes:  xsync.NewCounter(),
		drops:  xsync.NewCounter(),
	}
}

// Put stores v, replacing any unread value. It never blocks.
// Puts after Close are ignored.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *LatestSlot[T]) Put(v T) {
	if s.IsClosed() {
		return
	}

	// swap is the whole handoff: the reader either sees the old value or the new one, never both
	if old := s.value.Swap(&v); old != nil {
		s.drops.Inc()
	}
	s.puts.Inc()

	// wake the reader, one pending signal is enough
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// Take removes and returns the current value, blocking until one is available.
// It returns ctx.Err() when the context is done and ErrClosed when the slot is closed.
//
// Thread-safety: intended for a single reader goroutine.
func (s *LatestSlot[T]) Take(ctx context.Context) (T, error) {
	for {
		if v := s.value.Swap(nil); v != nil {
			s.takes.Inc()
			return *v, nil
		}

		var zero T
		select {
		case <-s.ready:
			// value may have been taken by a previous loop already, check again
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-s.closed:
			return zero, ErrClosed
		}
	}
}

// TryTake returns the current value without blocking
func (s *LatestSlot[T]) TryTake() (T, bool) {
	if v := s.value.Swap(nil); v != nil {
		s.takes.Inc()
		return *v, true
	}
	var zero T
	return zero, false
}

// Close wakes all blocked readers. Unread values are discarded.
// Idempotent: safe to call multiple times.
func (s *LatestSlot[T]) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.value.Store(nil)
	})
}

// IsClosed returns true if the slot is closed
func (s *LatestSlot[T]) IsClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// Stats returns a snapshot of the put, take and drop counters
func (s *LatestSlot[T]) Stats() Stats {
	return Stats{
		Puts:  s.puts.Value(),
		Takes: s.takes.Value(),
		Drops: s.drops.Value(),
	}
}
