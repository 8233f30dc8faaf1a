// Package limitswitch turns raw digital levels from a home switch into
// debounced press/release edge events. Switches are wired active-low: the
// input idles high through a pull-up and switch closure pulls it low.
package limitswitch

import (
	"sync"
	"time"
)

// Handler is an edge callback. Handlers must not block; they are invoked
// synchronously on the event source's goroutine.
type Handler func()

// Switch tracks the debounced state of one limit switch and fans edge
// events out to registered handlers.
type Switch struct {
	mu        sync.Mutex
	name      string
	active    bool
	lastEdge  time.Time
	debounce  time.Duration
	onPress   []Handler
	onRelease []Handler
}

// Option configures a Switch.
type Option func(*Switch)

// WithDebounce sets the minimum interval between accepted edges. The
// default is 10ms.
func WithDebounce(d time.Duration) Option {
	return func(s *Switch) { s.debounce = d }
}

// New creates a named switch in the released state.
func New(name string, opts ...Option) *Switch {
	s := &Switch{
		name:     name,
		debounce: 10 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the switch name.
func (s *Switch) Name() string {
	return s.name
}

// OnPress registers a handler for the press edge.
func (s *Switch) OnPress(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPress = append(s.onPress, h)
}

// OnRelease registers a handler for the release edge.
func (s *Switch) OnRelease(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRelease = append(s.onRelease, h)
}

// Active reports whether the switch is currently pressed.
func (s *Switch) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Set feeds the switch a new debounced state. Repeated states are ignored;
// a change inside the debounce window is ignored.
func (s *Switch) Set(active bool) {
	s.mu.Lock()
	if active == s.active {
		s.mu.Unlock()
		return
	}
	now := time.Now()
	if !s.lastEdge.IsZero() && now.Sub(s.lastEdge) < s.debounce {
		s.mu.Unlock()
		return
	}
	s.lastEdge = now
	s.active = active
	var handlers []Handler
	if active {
		handlers = append(handlers, s.onPress...)
	} else {
		handlers = append(handlers, s.onRelease...)
	}
	s.mu.Unlock()

	for _, h := range handlers {
		h()
	}
}

// SetLevel feeds a raw pin level. Low means pressed (active-low wiring).
func (s *Switch) SetLevel(level bool) {
	s.Set(!level)
}
