package timectrl

import (
	"context"
	"sync"
	"time"
)

// SimClock gives components read access to simulation time without
// depending on the concrete controller.
type SimClock interface {
	Now() time.Time
}

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime advances one tick per wall-clock tick.
	RealTime Mode = iota
	// Accelerated advances as quickly as the loop can run while still stepping by Tick.
	Accelerated
)

// ParseMode maps a config string onto a Mode. Unknown strings yield RealTime.
func ParseMode(s string) Mode {
	if s == "accelerated" {
		return Accelerated
	}
	return RealTime
}

// Listener is invoked after every tick with the new simulation time and
// the tick length.
type Listener func(now time.Time, dt time.Duration)

// TimeController drives simulation time in fixed ticks and notifies
// registered listeners. It implements SimClock.
type TimeController struct {
	mu        sync.RWMutex
	startTime time.Time
	tick      time.Duration
	mode      Mode

	currentTime time.Time
	steps       uint64

	listeners []Listener
}

// NewTimeController constructs a controller. A non-positive tick defaults
// to one second.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	if tick <= 0 {
		tick = time.Second
	}
	return &TimeController{
		startTime:   start,
		tick:        tick,
		mode:        mode,
		currentTime: start,
	}
}

// Now returns the current simulation time.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// Tick returns the fixed tick length.
func (tc *TimeController) Tick() time.Duration { return tc.tick }

// Elapsed returns the simulated time since the start.
func (tc *TimeController) Elapsed() time.Duration {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime.Sub(tc.startTime)
}

// Steps returns how many ticks have been taken.
func (tc *TimeController) Steps() uint64 {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.steps
}

// SetTime jumps simulation time without notifying listeners.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	tc.currentTime = t
	tc.mu.Unlock()
}

// AddListener registers a callback invoked on every tick.
func (tc *TimeController) AddListener(fn Listener) {
	if fn == nil {
		return
	}
	tc.mu.Lock()
	tc.listeners = append(tc.listeners, fn)
	tc.mu.Unlock()
}

// Step advances simulation time by one tick and runs the listeners in
// registration order. It returns the new simulation time.
func (tc *TimeController) Step() time.Time {
	tc.mu.Lock()
	tc.currentTime = tc.currentTime.Add(tc.tick)
	tc.steps++
	now := tc.currentTime
	listeners := append([]Listener(nil), tc.listeners...)
	tc.mu.Unlock()

	for _, fn := range listeners {
		fn(now, tc.tick)
	}
	return now
}

// Run steps the controller until duration of simulated time has elapsed
// or ctx is done. A zero duration runs until ctx is done. In RealTime mode
// each step waits for a wall-clock tick.
func (tc *TimeController) Run(ctx context.Context, duration time.Duration) error {
	var ticker *time.Ticker
	if tc.mode == RealTime {
		ticker = time.NewTicker(tc.tick)
		defer ticker.Stop()
	}

	var elapsed time.Duration
	for duration <= 0 || elapsed < duration {
		if ticker != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		tc.Step()
		elapsed += tc.tick
	}
	return nil
}

// Start runs the controller for the specified duration in a separate goroutine.
// It returns a channel that is closed when the controller finishes.
func (tc *TimeController) Start(ctx context.Context, duration time.Duration) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- tc.Run(ctx, duration)
		close(done)
	}()
	return done
}
