package app

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedDebouncerFires(t *testing.T) {
	d := NewKeyedDebouncer[string](30 * time.Millisecond)
	var calls atomic.Int32
	d.Trigger("p1", func() { calls.Add(1) })
	assert.True(t, d.Pending("p1"))

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, d.Pending("p1"))
}

func TestKeyedDebouncerRetriggerReplaces(t *testing.T) {
	d := NewKeyedDebouncer[string](50 * time.Millisecond)
	var first, second atomic.Int32
	d.Trigger("p1", func() { first.Add(1) })
	time.Sleep(20 * time.Millisecond)
	d.Trigger("p1", func() { second.Add(1) })

	require.Eventually(t, func() bool { return second.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(80 * time.Millisecond)
	assert.EqualValues(t, 0, first.Load())
	assert.EqualValues(t, 1, second.Load())
}

func TestKeyedDebouncerCancel(t *testing.T) {
	d := NewKeyedDebouncer[string](30 * time.Millisecond)
	var calls atomic.Int32
	d.Trigger("p1", func() { calls.Add(1) })
	assert.True(t, d.Cancel("p1"))
	assert.False(t, d.Cancel("p1"))

	time.Sleep(80 * time.Millisecond)
	assert.EqualValues(t, 0, calls.Load())

	d.Trigger("p1", func() { calls.Add(1) })
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestKeyedDebouncerKeysIndependent(t *testing.T) {
	d := NewKeyedDebouncer[string](40 * time.Millisecond)
	fired := make(chan string, 2)
	d.Trigger("p1", func() { fired <- "p1" })
	time.Sleep(25 * time.Millisecond)
	d.Trigger("p2", func() { fired <- "p2" })

	select {
	case k := <-fired:
		assert.Equal(t, "p1", k)
	case <-time.After(time.Second):
		t.Fatal("p1 never fired")
	}
	select {
	case k := <-fired:
		assert.Equal(t, "p2", k)
	case <-time.After(time.Second):
		t.Fatal("p2 never fired")
	}
}

func TestKeyedDebouncerStop(t *testing.T) {
	d := NewKeyedDebouncer[int](20 * time.Millisecond)
	var calls atomic.Int32
	d.Trigger(1, func() { calls.Add(1) })
	d.Trigger(2, func() { calls.Add(1) })
	d.Stop()

	time.Sleep(60 * time.Millisecond)
	assert.EqualValues(t, 0, calls.Load())
}
