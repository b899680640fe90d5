package app

import (
	"sync"

	"github.com/gammazero/deque"
	"github.com/rs/zerolog/log"
)

// OpsQueue runs enqueued operations one at a time, in enqueue order, on a
// single goroutine. Enqueue never blocks.
type OpsQueue struct {
	name string

	mu      sync.Mutex
	ops     *deque.Deque[func()]
	wake    chan struct{}
	started bool
	stopped bool
}

func NewOpsQueue(name string) *OpsQueue {
	return &OpsQueue{name: name, ops: deque.New[func()](), wake: make(chan struct{}, 1)}
}

func (q *OpsQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.stopped {
		return
	}
	q.started = true
	go q.process()
}

// Stop drops pending operations. The running one, if any, completes.
func (q *OpsQueue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	if n := q.ops.Len(); n > 0 {
		log.Debug().Str("module", "app.opsqueue").Str("name", q.name).Int("dropped", n).Msg("stopped with pending ops")
	}
	q.ops.Clear()
	q.mu.Unlock()
	q.signal()
}

// Enqueue reports false once the queue is stopped.
func (q *OpsQueue) Enqueue(op func()) bool {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return false
	}
	q.ops.PushBack(op)
	q.mu.Unlock()
	q.signal()
	return true
}

func (q *OpsQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *OpsQueue) process() {
	for {
		q.mu.Lock()
		if q.stopped {
			q.mu.Unlock()
			return
		}
		if q.ops.Len() == 0 {
			q.mu.Unlock()
			<-q.wake
			continue
		}
		op := q.ops.PopFront()
		q.mu.Unlock()
		op()
	}
}
