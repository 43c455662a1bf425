package state

import (
	"sync"
	"time"
)

// DeployAnimation models one deployment mechanism moving between stowed
// (0) and extended (1) at a fixed speed.
type DeployAnimation struct {
	mu     sync.Mutex
	name   string
	scalar float64
	target float64
	speed  float64 // fraction per second; 0 snaps to target
}

// NewDeployAnimation returns a mechanism at position start.
func NewDeployAnimation(name string, start, speed float64) *DeployAnimation {
	start = clamp01(start)
	return &DeployAnimation{name: name, scalar: start, target: start, speed: speed}
}

// Name returns the mechanism name.
func (a *DeployAnimation) Name() string { return a.name }

// DeployScalar returns the current position.
func (a *DeployAnimation) DeployScalar() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.scalar
}

// SetTarget sets the position the mechanism moves towards.
func (a *DeployAnimation) SetTarget(target float64) {
	a.mu.Lock()
	a.target = clamp01(target)
	if a.speed <= 0 {
		a.scalar = a.target
	}
	a.mu.Unlock()
}

// Deploy extends the mechanism fully.
func (a *DeployAnimation) Deploy() { a.SetTarget(1) }

// Retract stows the mechanism.
func (a *DeployAnimation) Retract() { a.SetTarget(0) }

// Advance moves the mechanism towards its target for dt.
func (a *DeployAnimation) Advance(dt time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.scalar == a.target {
		return
	}
	step := a.speed * dt.Seconds()
	if a.speed <= 0 {
		step = 1
	}
	if a.scalar < a.target {
		a.scalar = min(a.scalar+step, a.target)
	} else {
		a.scalar = max(a.scalar-step, a.target)
	}
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}
