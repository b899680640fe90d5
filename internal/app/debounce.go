package app

import (
	"sync"
	"time"

	"github.com/bep/debounce"
)

// KeyedDebouncer debounces actions per key. A re-trigger within the window
// replaces the pending action of that key; other keys are independent.
type KeyedDebouncer[K comparable] struct {
	after time.Duration

	mu      sync.Mutex
	pending map[K]*debounced
}

type debounced struct {
	call func(func())
}

func NewKeyedDebouncer[K comparable](after time.Duration) *KeyedDebouncer[K] {
	return &KeyedDebouncer[K]{after: after, pending: make(map[K]*debounced)}
}

func (k *KeyedDebouncer[K]) Trigger(key K, fn func()) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.pending[key]
	if !ok {
		e = &debounced{call: debounce.New(k.after)}
		k.pending[key] = e
	}
	e.call(func() {
		if k.forget(key, e) {
			fn()
		}
	})
}

// Cancel drops the pending action of key and reports whether there was one.
func (k *KeyedDebouncer[K]) Cancel(key K) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.pending[key]
	if !ok {
		return false
	}
	delete(k.pending, key)
	e.call(func() {})
	return true
}

// Stop drops every pending action.
func (k *KeyedDebouncer[K]) Stop() {
	k.mu.Lock()
	defer k.mu.Unlock()
	for key, e := range k.pending {
		delete(k.pending, key)
		e.call(func() {})
	}
}

func (k *KeyedDebouncer[K]) Pending(key K) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	_, ok := k.pending[key]
	return ok
}

func (k *KeyedDebouncer[K]) forget(key K, e *debounced) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.pending[key] != e {
		return false
	}
	delete(k.pending, key)
	return true
}
