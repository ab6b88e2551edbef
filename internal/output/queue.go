/*
PURPOSE:
  In-memory FIFO between Ingest and the writer worker.

REQUIREMENTS:
  User-specified:
  - Unbounded; a push never waits on the consumer.
  - Strict FIFO.

  Implementation-discovered:
  - The worker must sleep while empty and wake on the next push, without
    polling.

ARCHITECTURE INTEGRATION:
  - Used by: internal/output/buffered.go

ERROR HANDLING:
  - None.

IMPLEMENTATION RULES:
  - ready has capacity 1; a pending signal is enough to wake the worker.
  - Compact the consumed prefix so memory follows the live backlog.

USAGE:
  q := newQueue()
  q.push(batch...)
  up, ok := q.pop()

SELF-HEALING INSTRUCTIONS:
  - If the worker hangs with a non-empty queue, check that push signals
    after appending, not before.

RELATED FILES:
  - internal/output/buffered.go

MAINTENANCE:
  - None.
*/

package output

import (
	"sync"

	"github.com/daryltucker/iulog/internal/model"
)

// queue is an unbounded FIFO shared by one producer and one consumer.
// Push never blocks; ready is signalled (without blocking) after every push so
// the consumer can sleep while the queue is empty.
type queue struct {
	mu    sync.Mutex
	items []model.Update
	head  int
	ready chan struct{}
}

func newQueue() *queue {
	return &queue{ready: make(chan struct{}, 1)}
}

func (q *queue) push(batch ...model.Update) {
	if len(batch) == 0 {
		return
	}
	q.mu.Lock()
	q.items = append(q.items, batch...)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// pop removes the head entry. ok is false when the queue is empty.
func (q *queue) pop() (up model.Update, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head == len(q.items) {
		return model.Update{}, false
	}
	up = q.items[q.head]
	q.items[q.head] = model.Update{}
	q.head++

	// Reclaim the consumed prefix once it dominates the backing array.
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > 1024 && q.head*2 > len(q.items) {
		n := copy(q.items, q.items[q.head:])
		q.items = q.items[:n]
		q.head = 0
	}
	return up, true
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}
