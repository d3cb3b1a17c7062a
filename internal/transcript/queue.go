// Package transcript implements the bounded queue of flashed symbols shared
// between the keyer and transcript readers.
//
// The whole queue is guarded by a single weighted semaphore used as a mutex so
// that waiting for access can be abandoned through a context, which a
// sync.Mutex cannot do. Put and DrainTo never interleave.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/atomic"
	"golang.org/x/sync/semaphore"
)

// DefaultCapacity matches the 32 KiB FIFO of the LED driver.
const DefaultCapacity = 1 << 15

type Symbol byte

const (
	Dot       Symbol = '.'
	Dash      Symbol = '-'
	Separator Symbol = ' '
	Newline   Symbol = '\n'
)

var (
	ErrInterrupted   = errors.New("transcript access interrupted")
	ErrQueueOverflow = errors.New("transcript queue full, symbol dropped")
)

// OverflowPolicy selects what Put does when the queue is full.
type OverflowPolicy int

const (
	// DropNewest discards the incoming symbol and keeps what is queued.
	DropNewest OverflowPolicy = iota
	// DropOldest evicts the oldest queued symbol to make room.
	DropOldest
	// Block waits until a reader frees space or the context is done.
	Block
)

func (p OverflowPolicy) String() string {
	switch p {
	case DropNewest:
		return "drop-newest"
	case DropOldest:
		return "drop-oldest"
	case Block:
		return "block"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "drop-newest", "drop_newest":
		return DropNewest, nil
	case "drop-oldest", "drop_oldest":
		return DropOldest, nil
	case "block":
		return Block, nil
	}
	return DropNewest, fmt.Errorf("unknown overflow policy %q", s)
}

// Queue is a fixed-capacity FIFO ring of symbols.
type Queue struct {
	lock   *semaphore.Weighted
	policy OverflowPolicy

	// guarded by lock
	buf   []byte
	head  int
	size  int
	space chan struct{} // closed when a drain frees room

	dropped atomic.Uint64
	written atomic.Uint64
}

func NewQueue(capacity int, policy OverflowPolicy) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		lock:   semaphore.NewWeighted(1),
		policy: policy,
		buf:    make([]byte, capacity),
		space:  make(chan struct{}),
	}
}

func (q *Queue) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInterrupted, err)
	}
	if err := q.lock.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: %w", ErrInterrupted, err)
	}
	return nil
}

func (q *Queue) release() {
	q.lock.Release(1)
}

// Put appends one symbol. It returns ErrInterrupted if ctx is done before
// access is granted, and ErrQueueOverflow when the policy discarded a symbol
// (the incoming one under DropNewest, the oldest under DropOldest). An
// overflow never leaves the queue partially updated.
func (q *Queue) Put(ctx context.Context, sym Symbol) error {
	for {
		if err := q.acquire(ctx); err != nil {
			return err
		}
		if q.size < len(q.buf) {
			q.push(byte(sym))
			q.release()
			q.written.Inc()
			return nil
		}

		switch q.policy {
		case DropOldest:
			q.pop()
			q.push(byte(sym))
			q.release()
			q.written.Inc()
			q.dropped.Inc()
			return ErrQueueOverflow
		case Block:
			wait := q.space
			q.release()
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
			case <-wait:
			}
		default:
			q.release()
			q.dropped.Inc()
			return ErrQueueOverflow
		}
	}
}

// DrainTo moves up to max symbols to w in FIFO order. When the queue holds
// anything, a newline is queued first as the record terminator. Only the
// bytes w accepted are removed. An empty queue yields 0 and no newline. It
// never waits for symbols to arrive.
func (q *Queue) DrainTo(ctx context.Context, w io.Writer, max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}
	if err := q.acquire(ctx); err != nil {
		return 0, err
	}
	defer q.release()

	if q.size == 0 {
		return 0, nil
	}
	q.terminate()

	n := q.size
	if max < n {
		n = max
	}

	copied := 0
	for copied < n {
		chunk := n - copied
		if q.head+chunk > len(q.buf) {
			chunk = len(q.buf) - q.head
		}
		k, err := w.Write(q.buf[q.head : q.head+chunk])
		q.advance(k)
		copied += k
		if err != nil {
			q.signalSpace(copied)
			return copied, err
		}
		if k < chunk {
			q.signalSpace(copied)
			return copied, io.ErrShortWrite
		}
	}
	q.signalSpace(copied)
	return copied, nil
}

// Drain is DrainTo into a fresh slice.
func (q *Queue) Drain(ctx context.Context, max int) ([]byte, error) {
	var sb strings.Builder
	_, err := q.DrainTo(ctx, &sb, max)
	return []byte(sb.String()), err
}

// Len returns the number of queued symbols.
func (q *Queue) Len() int {
	if err := q.acquire(context.Background()); err != nil {
		return 0
	}
	defer q.release()
	return q.size
}

func (q *Queue) Cap() int {
	return len(q.buf)
}

func (q *Queue) Policy() OverflowPolicy {
	return q.policy
}

// Dropped counts symbols lost to overflow since the queue was created.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Written counts symbols accepted by Put.
func (q *Queue) Written() uint64 {
	return q.written.Load()
}

// terminate queues the record terminator, subject to capacity like any other
// symbol. Under DropOldest it evicts a queued symbol, which counts as a drop.
// Otherwise a terminator that does not fit is skipped; it was never Put, so
// it is not counted. Under Block a reader never waits on itself.
func (q *Queue) terminate() {
	if q.size < len(q.buf) {
		q.push(byte(Newline))
		return
	}
	if q.policy == DropOldest {
		q.pop()
		q.push(byte(Newline))
		q.dropped.Inc()
	}
}

func (q *Queue) push(b byte) {
	q.buf[(q.head+q.size)%len(q.buf)] = b
	q.size++
}

func (q *Queue) pop() {
	q.advance(1)
}

func (q *Queue) advance(n int) {
	q.head = (q.head + n) % len(q.buf)
	q.size -= n
	if q.size == 0 {
		q.head = 0
	}
}

func (q *Queue) signalSpace(freed int) {
	if freed == 0 {
		return
	}
	close(q.space)
	q.space = make(chan struct{})
}
