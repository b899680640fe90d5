// Package stream provides hot multicast event sequences and observable values.
package stream

import (
	"context"
	"sync"

	"github.com/gammazero/deque"
)

// Bus is a hot multicast sequence of events. Events published while nobody
// is subscribed are dropped. Every subscription receives every event
// published after it was created, in publish order. Publish never blocks:
// each subscription owns an unbounded mailbox drained by its own goroutine.
type Bus[T any] struct {
	mu   sync.RWMutex
	subs map[*Subscription[T]]struct{}
}

func NewBus[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[*Subscription[T]]struct{})}
}

func (b *Bus[T]) Publish(v T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		s.push(v)
	}
}

func (b *Bus[T]) Subscribe() *Subscription[T] {
	s := &Subscription[T]{
		bus:   b,
		queue: deque.New[T](),
		wake:  make(chan struct{}, 1),
		out:   make(chan T),
		done:  make(chan struct{}),
	}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	go s.pump()
	return s
}

// Subscribers returns the number of open subscriptions.
func (b *Bus[T]) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus[T]) remove(s *Subscription[T]) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
}

type Subscription[T any] struct {
	bus *Bus[T]

	mu    sync.Mutex
	queue *deque.Deque[T]
	wake  chan struct{}

	out       chan T
	done      chan struct{}
	closeOnce sync.Once
}

// C delivers the events. It is closed after Close.
func (s *Subscription[T]) C() <-chan T { return s.out }

// Close detaches the subscription. Undelivered events are dropped.
func (s *Subscription[T]) Close() {
	s.closeOnce.Do(func() {
		s.bus.remove(s)
		close(s.done)
	})
}

func (s *Subscription[T]) push(v T) {
	s.mu.Lock()
	s.queue.PushBack(v)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription[T]) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if s.queue.Len() == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		v := s.queue.PopFront()
		s.mu.Unlock()

		select {
		case s.out <- v:
		case <-s.done:
			return
		}
	}
}

// Each calls fn for every event of sub until ctx is done, then closes sub.
// fn runs on the calling goroutine, one event at a time.
func Each[T any](ctx context.Context, sub *Subscription[T], fn func(T)) {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-sub.C():
			if !ok {
				return
			}
			fn(v)
		}
	}
}
