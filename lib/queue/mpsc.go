package queue

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// node represents a single element in the queue
type node[T any] struct {
	value *T
	next  atomic.Pointer[node[T]]
}

// MPSC is a lock-free multi-producer single-consumer queue.
// Producers append to a linked list with CAS; a single internal goroutine
// moves the items in order to the channel returned by Recv.
type MPSC[T any] struct {
	head     atomic.Pointer[node[T]]
	tail     atomic.Pointer[node[T]]
	out      chan *T
	consumer sync.WaitGroup
	closed   atomic.Bool
	// pushes that passed the closed check but have not linked their node yet
	pending atomic.Int64

	// Condition variable for efficient waiting of the consumer goroutine
	mu   sync.Mutex
	cond *sync.Cond
}

// NewMPSC creates a new queue and starts its consumer goroutine
func NewMPSC[T any]() *MPSC[T] {
	// sentinel node, head always points to an already consumed node
	sentinel := &node[T]{}

	q := &MPSC[T]{
		out: make(chan *T),
	}
	q.cond = sync.NewCond(&q.mu)
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	q.consumer.Add(1)
	go q.consume()

	return q
}

// Push adds an item to the queue.
// Returns true if the item was added, or false if the value is nil or the queue is closed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *MPSC[T]) Push(value *T) bool {
	if value == nil {
		return false
	}
	q.pending.Add(1)
	if q.closed.Load() {
		q.pending.Add(-1)
		return false
	}

	newNode := &node[T]{value: value}
	var backoff uint8

	for {
		tailNode := q.tail.Load()
		next := tailNode.next.Load()

		if next == nil {
			if tailNode.next.CompareAndSwap(nil, newNode) {
				// may fail if another producer already helped, tail is updated either way
				q.tail.CompareAndSwap(tailNode, newNode)
				q.pending.Add(-1)
				q.wake()
				return true
			}
		} else {
			// another producer appended but has not moved the tail yet, help it
			q.tail.CompareAndSwap(tailNode, next)
		}

		// spin a little at low contention, then yield
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// wake signals the consumer. The lock makes sure the signal cannot fall between the
// consumer's emptiness check and its Wait.
func (q *MPSC[T]) wake() {
	q.mu.Lock()
	q.cond.Signal()
	q.mu.Unlock()
}

// consume moves items from the linked list to the output channel
func (q *MPSC[T]) consume() {
	defer q.consumer.Done()
	defer close(q.out)

	for {
		if q.drain() {
			continue
		}

		// once closed with no push in flight nothing can be linked anymore,
		// a last drain picks up pushes that finished after the one above
		if q.closed.Load() && q.pending.Load() == 0 {
			if !q.drain() {
				return
			}
			continue
		}

		q.mu.Lock()
		if q.head.Load().next.Load() == nil && (!q.closed.Load() || q.pending.Load() > 0) {
			q.cond.Wait()
		}
		q.mu.Unlock()
	}
}

// drain delivers all linked items, returns false if there were none
func (q *MPSC[T]) drain() bool {
	hasItems := false
	for {
		head := q.head.Load()
		next := head.next.Load()
		if next == nil {
			return hasItems
		}
		hasItems = true

		value := next.value
		q.head.Store(next)
		q.out <- value

		// help the gc, the node stays around as the new sentinel
		next.value = nil
	}
}

// Recv returns the channel items are delivered on.
// The channel is closed after Close once all queued items were delivered.
func (q *MPSC[T]) Recv() <-chan *T {
	return q.out
}

// Close prevents further pushes. Items already queued, including those of pushes
// racing with Close that returned true, are still delivered.
func (q *MPSC[T]) Close() {
	q.closed.Store(true)
	q.wake()
}

// IsClosed returns true if the queue is closed
func (q *MPSC[T]) IsClosed() bool {
	return q.closed.Load()
}
