package state

import (
	"fmt"
	"sync"
	"time"
)

// ResourcePool is a stored resource such as electric charge, with an
// optional capacity and a steady generation rate.
type ResourcePool struct {
	mu         sync.Mutex
	name       string
	amount     float64
	capacity   float64
	generation float64
	drawn      float64
}

// NewResourcePool returns a pool holding amount of name. A capacity of 0
// means unbounded.
func NewResourcePool(name string, amount, capacity float64) *ResourcePool {
	if capacity > 0 && amount > capacity {
		amount = capacity
	}
	return &ResourcePool{name: name, amount: amount, capacity: capacity}
}

// Name returns the resource name.
func (p *ResourcePool) Name() string { return p.name }

// Amount returns the stored amount.
func (p *ResourcePool) Amount() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.amount
}

// Drawn returns the total amount consumed so far.
func (p *ResourcePool) Drawn() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.drawn
}

// SetGeneration sets the per-second production rate.
func (p *ResourcePool) SetGeneration(rate float64) {
	p.mu.Lock()
	p.generation = rate
	p.mu.Unlock()
}

// Generation returns the per-second production rate.
func (p *ResourcePool) Generation() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generation
}

// Generate adds generation × dt, clamped to capacity.
func (p *ResourcePool) Generate(dt time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.amount += p.generation * dt.Seconds()
	if p.capacity > 0 && p.amount > p.capacity {
		p.amount = p.capacity
	}
	if p.amount < 0 {
		p.amount = 0
	}
}

// TryConsume takes up to amount from the pool and returns the fraction
// supplied. Whatever is stored is drawn even when it falls short. The
// reason is set when the fraction is below threshold.
func (p *ResourcePool) TryConsume(amount, threshold float64) (float64, string) {
	if amount <= 0 {
		return 1, ""
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	took := amount
	if took > p.amount {
		took = p.amount
	}
	p.amount -= took
	p.drawn += took

	fraction := took / amount
	if fraction < threshold {
		return fraction, fmt.Sprintf("not enough %s", p.name)
	}
	return fraction, ""
}
