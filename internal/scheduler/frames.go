package scheduler

import (
	"time"

	"github.com/coder/quartz"
)

// DefaultFrameInterval approximates a 60Hz display refresh.
const DefaultFrameInterval = 16 * time.Millisecond

// FrameSource delivers frame callbacks. RequestFrame must not call fn
// synchronously.
type FrameSource interface {
	RequestFrame(fn func()) (cancel func())
}

// ClockFrames produces frames on a fixed cadence from a clock.
type ClockFrames struct {
	Clock    quartz.Clock
	Interval time.Duration
}

// RequestFrame schedules fn for the next frame.
func (f ClockFrames) RequestFrame(fn func()) func() {
	interval := f.Interval
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	t := f.Clock.AfterFunc(interval, fn, "scheduler", "frame")
	return func() { t.Stop("scheduler", "frame") }
}
