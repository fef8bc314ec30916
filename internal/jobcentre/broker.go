package jobcentre

import (
	"container/heap"
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/protohackd/internal/logger"
)

// waiter is a long-polling get() blocked on any of queues becoming
// non-empty.
type waiter struct {
	queues map[string]bool
	notify chan struct{}
}

// Broker holds every piece of process-wide Job Centre state behind one
// mutex: the job registry (by id, doubling as the tombstone set via
// jobDeleted), per-queue priority heaps, and pending long-poll waiters —
// all three move together under a single critical section, the same
// discipline internal/speed.Store uses.
type Broker struct {
	mu      sync.Mutex
	nextID  int64
	jobs    map[int64]*job
	queues  map[string]*jobHeap
	waiters []*waiter

	log *zap.SugaredLogger
}

func NewBroker() *Broker {
	return &Broker{
		jobs:   make(map[int64]*job),
		queues: make(map[string]*jobHeap),
		log:    logger.Named("jobcentre"),
	}
}

func (b *Broker) queueHeapLocked(name string) *jobHeap {
	h, ok := b.queues[name]
	if !ok {
		h = &jobHeap{}
		heap.Init(h)
		b.queues[name] = h
	}
	return h
}

// Put creates a new READY job and wakes any waiter whose queue set
// includes it.
func (b *Broker) Put(queue string, pri int64, payload json.RawMessage) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	j := &job{id: b.nextID, queue: queue, pri: pri, payload: payload, state: jobReady}
	b.jobs[j.id] = j
	heap.Push(b.queueHeapLocked(queue), j)
	b.wakeLocked(queue)
	return j.id
}

// wakeLocked notifies and removes every waiter covering queue. Caller
// holds b.mu.
func (b *Broker) wakeLocked(queue string) {
	remaining := b.waiters[:0]
	for _, w := range b.waiters {
		if w.queues[queue] {
			close(w.notify)
		} else {
			remaining = append(remaining, w)
		}
	}
	b.waiters = remaining
}

func bestOf(a, b *job) *job {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if a.pri != b.pri {
		if a.pri > b.pri {
			return a
		}
		return b
	}
	if a.id < b.id {
		return a
	}
	return b
}

// popBestLocked scans the given queues' heap tops and removes+returns the
// single highest-priority job across all of them. Caller holds b.mu.
func (b *Broker) popBestLocked(queues []string) *job {
	var best *job
	for _, q := range queues {
		h, ok := b.queues[q]
		if !ok || h.Len() == 0 {
			continue
		}
		best = bestOf(best, (*h)[0])
	}
	if best == nil {
		return nil
	}
	heap.Remove(b.queues[best.queue], best.index)
	return best
}

// Get returns the highest-priority ready job across queues, or waits for
// one (suspend-until-ready/ctx-cancel) when wait is true and nothing is
// READY yet.
func (b *Broker) Get(ctx context.Context, queues []string, wait bool, holder string) (*job, bool) {
	b.mu.Lock()
	for {
		if j := b.popBestLocked(queues); j != nil {
			j.state = jobHeld
			j.holder = holder
			b.mu.Unlock()
			return j, true
		}
		if !wait {
			b.mu.Unlock()
			return nil, false
		}

		qset := make(map[string]bool, len(queues))
		for _, q := range queues {
			qset[q] = true
		}
		w := &waiter{queues: qset, notify: make(chan struct{})}
		b.waiters = append(b.waiters, w)
		b.mu.Unlock()

		select {
		case <-w.notify:
		case <-ctx.Done():
			b.removeWaiter(w)
			return nil, false
		}
		b.mu.Lock()
	}
}

func (b *Broker) removeWaiter(target *waiter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, w := range b.waiters {
		if w == target {
			b.waiters = append(b.waiters[:i], b.waiters[i+1:]...)
			return
		}
	}
}

// Delete tombstones a job regardless of state, releasing its hold if it
// was currently held and evicting it from its queue heap if it was still
// READY — otherwise popBestLocked could hand a deleted job to a later Get.
func (b *Broker) Delete(id int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	j, ok := b.jobs[id]
	if !ok || j.state == jobDeleted {
		return false
	}
	if j.state == jobReady {
		heap.Remove(b.queueHeapLocked(j.queue), j.index)
	}
	j.state = jobDeleted
	j.holder = ""
	return true
}

// abortResult distinguishes abort's three outcomes.
type abortResult int

const (
	abortOK abortResult = iota
	abortNoJob
	abortForbidden
)

// Abort returns a held job to its queue at its original priority, but
// only for the worker currently holding it.
func (b *Broker) Abort(id int64, holder string) abortResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	j, ok := b.jobs[id]
	if !ok || j.state != jobHeld {
		return abortNoJob
	}
	if j.holder != holder {
		return abortForbidden
	}
	j.state = jobReady
	j.holder = ""
	heap.Push(b.queueHeapLocked(j.queue), j)
	b.wakeLocked(j.queue)
	return abortOK
}

// ReleaseWorker auto-aborts every job held by holder, called when that
// worker's connection closes.
func (b *Broker) ReleaseWorker(holder string) {
	b.mu.Lock()
	var reopened []string
	for _, j := range b.jobs {
		if j.state == jobHeld && j.holder == holder {
			j.state = jobReady
			j.holder = ""
			heap.Push(b.queueHeapLocked(j.queue), j)
			reopened = append(reopened, j.queue)
		}
	}
	for _, q := range reopened {
		b.wakeLocked(q)
	}
	b.mu.Unlock()
}

