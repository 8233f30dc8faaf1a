package limitswitch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEdgeEvents(t *testing.T) {
	sw := New("j1", WithDebounce(0))

	var presses, releases int
	sw.OnPress(func() { presses++ })
	sw.OnRelease(func() { releases++ })

	sw.Set(true)
	sw.Set(true) // repeated state, no edge
	sw.Set(false)
	sw.Set(true)

	assert.Equal(t, 2, presses)
	assert.Equal(t, 1, releases)
	assert.True(t, sw.Active())
}

func TestDebounceSuppressesChatter(t *testing.T) {
	sw := New("j2", WithDebounce(50*time.Millisecond))

	var presses int
	sw.OnPress(func() { presses++ })

	sw.Set(true)
	sw.Set(false) // inside the window, ignored
	sw.Set(true)  // still pressed as far as the switch knows

	assert.Equal(t, 1, presses)
	assert.True(t, sw.Active())

	time.Sleep(60 * time.Millisecond)
	sw.Set(false)
	assert.False(t, sw.Active())
}

func TestActiveLowLevel(t *testing.T) {
	sw := New("j3", WithDebounce(0))

	var presses int
	sw.OnPress(func() { presses++ })

	sw.SetLevel(true) // idle high: released
	assert.False(t, sw.Active())

	sw.SetLevel(false) // pulled low: pressed
	assert.True(t, sw.Active())
	assert.Equal(t, 1, presses)
}
