package server

import (
	"sync"
	"time"

	"github.com/coder/quartz"
)

// Activity tracks when each view was last polled.
type Activity struct {
	clock  quartz.Clock
	window time.Duration

	mu   sync.Mutex
	last map[string]time.Time
}

// NewActivity creates a tracker; a view is active for window after a touch.
func NewActivity(clock quartz.Clock, window time.Duration) *Activity {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Activity{
		clock:  clock,
		window: window,
		last:   make(map[string]time.Time),
	}
}

// Touch records a poll of view. It reports whether the view was inactive
// before this call.
func (a *Activity) Touch(view string) bool {
	now := a.clock.Now("activity", "touch")

	a.mu.Lock()
	defer a.mu.Unlock()

	prev, ok := a.last[view]
	a.last[view] = now
	return !ok || now.Sub(prev) > a.window
}

// Active reports whether view was polled within the window.
func (a *Activity) Active(view string) bool {
	now := a.clock.Now("activity", "check")

	a.mu.Lock()
	defer a.mu.Unlock()

	prev, ok := a.last[view]
	return ok && now.Sub(prev) <= a.window
}

// Predicate returns a visibility predicate for view.
func (a *Activity) Predicate(view string) func() bool {
	return func() bool { return a.Active(view) }
}
