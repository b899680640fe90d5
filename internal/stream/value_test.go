package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValue(t *testing.T) {
	v := NewValue([]string{"a"})
	cur, sub := v.Subscribe()
	defer sub.Close()
	assert.Equal(t, []string{"a"}, cur)

	got := v.Update(func(s []string) []string { return append(append([]string(nil), s...), "b") })
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, []string{"a", "b"}, recv(t, sub))

	v.Set(nil)
	assert.Nil(t, recv(t, sub))
	assert.Nil(t, v.Get())
}
