// Package queue provides a lock-free multi-producer single-consumer FIFO.
//
// The queue is the hand-off point between the socket workers and their
// owners: any number of goroutines may Push concurrently, one goroutine pops
// with the non-blocking TryPop. Items pushed by a single producer are popped
// in the order they were pushed. Under concurrent producers the order between
// producers is decided by which append completes first.
//
// Closing a queue rejects further pushes but keeps every item that was
// already accepted, so a consumer can flush it completely:
//
//	q := queue.New[int]()
//	q.Push(1)
//	q.Close()
//	for {
//	    settled := q.Settled()
//	    v, ok := q.TryPop()
//	    if !ok && settled {
//	        break
//	    }
//	    ...
//	}
package queue

import (
	"runtime"
	"sync/atomic"
)

// node is a single element of the linked list.
type node[T any] struct {
	value T
	next  atomic.Pointer[node[T]]
}

// FIFO is an unbounded lock-free multi-producer single-consumer queue.
// The zero value is not usable; create queues with New.
type FIFO[T any] struct {
	head atomic.Pointer[node[T]] // sentinel, owned by the consumer
	tail atomic.Pointer[node[T]]

	size    atomic.Int64
	writers atomic.Int64
	closed  atomic.Bool
}

// New creates an empty queue.
func New[T any]() *FIFO[T] {
	sentinel := &node[T]{}

	q := &FIFO[T]{}
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	return q
}

// Push appends value to the queue.
// Returns false if the queue is closed and the value was not accepted.
//
// Thread-safety: safe for concurrent use by any number of producers.
func (q *FIFO[T]) Push(value T) bool {
	q.writers.Add(1)
	defer q.writers.Add(-1)

	if q.closed.Load() {
		return false
	}

	newNode := &node[T]{value: value}

	var backoff uint8
	for {
		tailNode := q.tail.Load()
		next := tailNode.next.Load()

		if next == nil {
			if tailNode.next.CompareAndSwap(nil, newNode) {
				// another producer may already have advanced the tail for us
				q.tail.CompareAndSwap(tailNode, newNode)
				q.size.Add(1)
				return true
			}
		} else {
			// help a producer that appended but has not moved the tail yet
			q.tail.CompareAndSwap(tailNode, next)
		}

		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// TryPop removes and returns the oldest value without blocking.
// The second return value is false if the queue is currently empty.
//
// Thread-safety: only one goroutine may pop at a time.
func (q *FIFO[T]) TryPop() (T, bool) {
	var zero T

	head := q.head.Load()
	next := head.next.Load()
	if next == nil {
		return zero, false
	}

	value := next.value
	next.value = zero
	q.head.Store(next)
	q.size.Add(-1)

	return value, true
}

// PopAll pops every value that is ready right now and passes it to fn in
// FIFO order. It returns the number of values handed to fn.
func (q *FIFO[T]) PopAll(fn func(T)) int {
	n := 0
	for {
		value, ok := q.TryPop()
		if !ok {
			return n
		}
		fn(value)
		n++
	}
}

// Close rejects all further pushes. Values already accepted stay poppable.
func (q *FIFO[T]) Close() {
	q.closed.Store(true)
}

// IsClosed reports whether Close has been called.
func (q *FIFO[T]) IsClosed() bool {
	return q.closed.Load()
}

// Settled reports whether the queue is closed and no push is still in
// flight. Once Settled returns true no new value can appear, so an empty
// TryPop afterwards means the queue is drained for good.
func (q *FIFO[T]) Settled() bool {
	return q.closed.Load() && q.writers.Load() == 0
}

// Len returns the number of values currently queued.
func (q *FIFO[T]) Len() int {
	return int(q.size.Load())
}
