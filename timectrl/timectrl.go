// Package timectrl drives the simulated feed clock and notifies listeners
// on every tick.
package timectrl

import (
	"context"
	"slices"
	"sync"
	"time"
)

// Mode describes how the TimeController advances simulated time.
type Mode int

const (
	// RealTime advances simulated time by Tick every Tick of wall time.
	RealTime Mode = iota
	// Accelerated advances simulated time by Tick every Interval of wall
	// time, so a short Interval fast-forwards the simulation.
	Accelerated
)

func (m Mode) String() string {
	if m == Accelerated {
		return "accelerated"
	}
	return "realtime"
}

// TimeController drives simulated time and notifies registered listeners.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode
	// Interval is the wall-clock period between ticks in Accelerated mode.
	// Zero means Tick.
	Interval time.Duration

	currentTime time.Time
	listeners   []func(time.Time)
}

// NewTimeController constructs a controller.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
	}
}

// Now returns the current simulated time.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// SetTime jumps the simulated clock without notifying listeners.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.currentTime = t
}

// AddListener registers a callback invoked on every tick.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}

func (tc *TimeController) wallPeriod() time.Duration {
	if tc.Mode == Accelerated && tc.Interval > 0 {
		return tc.Interval
	}
	return tc.Tick
}

// Start runs the controller for the given amount of simulated time in a
// separate goroutine; a non-positive duration runs forever. The returned
// channel is closed when the controller finishes.
func (tc *TimeController) Start(duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		tc.loop(context.Background(), duration)
	}()
	return done
}

// Run ticks until ctx is cancelled and returns ctx.Err().
func (tc *TimeController) Run(ctx context.Context) error {
	tc.loop(ctx, 0)
	return ctx.Err()
}

func (tc *TimeController) loop(ctx context.Context, duration time.Duration) {
	tc.mu.Lock()
	tc.currentTime = tc.StartTime
	simTime := tc.currentTime
	tc.mu.Unlock()

	ticker := time.NewTicker(tc.wallPeriod())
	defer ticker.Stop()

	var elapsed time.Duration
	for {
		if duration > 0 && elapsed >= duration {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		simTime = simTime.Add(tc.Tick)
		elapsed += tc.Tick

		tc.mu.Lock()
		tc.currentTime = simTime
		listeners := slices.Clone(tc.listeners)
		tc.mu.Unlock()

		for _, fn := range listeners {
			fn(simTime)
		}
	}
}
