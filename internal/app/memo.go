package app

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Memo runs an operation at most once. Concurrent callers share the running
// attempt; later callers get the settled result, error included.
type Memo[T any] struct {
	group singleflight.Group

	mu   sync.Mutex
	done bool
	val  T
	err  error
}

// Do runs fn unless it already ran. fn receives the context of the caller
// that started it. A waiter whose ctx ends gives up without affecting fn.
func (m *Memo[T]) Do(ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	if v, err, ok := m.Peek(); ok {
		return v, err
	}
	ch := m.group.DoChan("", func() (any, error) {
		if v, err, ok := m.Peek(); ok {
			return v, err
		}
		v, err := fn(ctx)
		m.mu.Lock()
		m.val, m.err, m.done = v, err, true
		m.mu.Unlock()
		return v, err
	})
	select {
	case r := <-ch:
		v, _ := r.Val.(T)
		return v, r.Err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Peek returns the settled result, if any.
func (m *Memo[T]) Peek() (T, error, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.val, m.err, m.done
}
