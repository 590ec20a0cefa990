package catalog

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// WorkQueue hands work from the background scan to the primary context.
// Producers Post from any goroutine; the primary context runs items with
// Drain in FIFO order.
type WorkQueue struct {
	mu    sync.Mutex
	items []func()
}

// NewWorkQueue returns an empty queue.
func NewWorkQueue() *WorkQueue {
	return &WorkQueue{}
}

// Post appends fn to the queue.
func (q *WorkQueue) Post(fn func()) {
	if fn == nil {
		return
	}
	q.mu.Lock()
	q.items = append(q.items, fn)
	q.mu.Unlock()
}

// Drain runs up to limit queued items, or everything queued at call time when
// limit <= 0. A panicking item is logged and the drain continues. Items posted
// while draining wait for the next call. It returns the number of items run.
func (q *WorkQueue) Drain(limit int) int {
	q.mu.Lock()
	budget := len(q.items)
	q.mu.Unlock()
	if limit > 0 && limit < budget {
		budget = limit
	}

	ran := 0
	for ran < budget {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.mu.Unlock()
			break
		}
		fn := q.items[0]
		q.items[0] = nil
		q.items = q.items[1:]
		q.mu.Unlock()

		runSafely(fn)
		ran++
	}
	return ran
}

// Clear drops every queued item and returns how many were dropped.
func (q *WorkQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	return n
}

// Len returns the number of queued items.
func (q *WorkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func runSafely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Queued work item panicked")
		}
	}()
	fn()
}
