package stream

import "sync"

// Value holds a current value and announces every change to subscribers.
type Value[T any] struct {
	mu      sync.RWMutex
	cur     T
	changes *Bus[T]
}

func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{cur: initial, changes: NewBus[T]()}
}

func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cur
}

func (v *Value[T]) Set(x T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cur = x
	v.changes.Publish(x)
}

// Update replaces the value with fn(current) and returns the result.
// fn must not mutate its argument in place.
func (v *Value[T]) Update(fn func(T) T) T {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cur = fn(v.cur)
	v.changes.Publish(v.cur)
	return v.cur
}

// Subscribe returns the current value together with a subscription to every
// later change, so nothing set in between is missed.
func (v *Value[T]) Subscribe() (T, *Subscription[T]) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cur, v.changes.Subscribe()
}
