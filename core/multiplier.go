package core

import (
	"sort"
	"sync"

	"github.com/signalsfoundry/transmitter-sim/model"
)

// MultiplierRegistry keeps named multiplicative modifiers per rate category.
//
// The combined multiplier of a category is always the product of its current
// entries; it is rebuilt from the entries on every mutation rather than
// patched, so repeated updates cannot accumulate rounding drift. An empty
// category combines to 1.
//
// The registry is safe for concurrent use: contributors may call Set and
// Remove from any goroutine while the engine reads Combined on the tick.
type MultiplierRegistry struct {
	mu       sync.RWMutex
	entries  map[model.Category]map[string]float64
	combined map[model.Category]float64

	onChange func(model.Category, float64)
}

// NewMultiplierRegistry returns an empty registry.
func NewMultiplierRegistry() *MultiplierRegistry {
	r := &MultiplierRegistry{
		entries:  make(map[model.Category]map[string]float64, len(model.Categories)),
		combined: make(map[model.Category]float64, len(model.Categories)),
	}
	for _, c := range model.Categories {
		r.entries[c] = make(map[string]float64)
		r.combined[c] = 1
	}
	return r
}

// OnChange installs a hook called after every mutation with the category's
// new combined value. The hook runs outside the registry lock.
func (r *MultiplierRegistry) OnChange(fn func(model.Category, float64)) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// Set inserts or replaces the multiplier called name in cat.
// A value of 0 is valid and zeroes the effective rate.
func (r *MultiplierRegistry) Set(cat model.Category, name string, value float64) {
	r.mu.Lock()
	m, ok := r.entries[cat]
	if !ok {
		m = make(map[string]float64)
		r.entries[cat] = m
	}
	m[name] = value
	combined := r.recomputeLocked(cat)
	hook := r.onChange
	r.mu.Unlock()

	if hook != nil {
		hook(cat, combined)
	}
}

// Remove deletes the multiplier called name from cat. It reports whether an
// entry was present; removing an unknown name changes nothing.
func (r *MultiplierRegistry) Remove(cat model.Category, name string) bool {
	r.mu.Lock()
	m := r.entries[cat]
	if _, ok := m[name]; !ok {
		r.mu.Unlock()
		return false
	}
	delete(m, name)
	combined := r.recomputeLocked(cat)
	hook := r.onChange
	r.mu.Unlock()

	if hook != nil {
		hook(cat, combined)
	}
	return true
}

// Combined returns the product of all multipliers currently set in cat.
func (r *MultiplierRegistry) Combined(cat model.Category) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.combined[cat]; ok {
		return v
	}
	return 1
}

// Get returns the value of a single multiplier.
func (r *MultiplierRegistry) Get(cat model.Category, name string) (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.entries[cat][name]
	return v, ok
}

// Entries returns the multipliers of cat sorted by name.
func (r *MultiplierRegistry) Entries(cat model.Category) []model.Multiplier {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m := r.entries[cat]
	out := make([]model.Multiplier, 0, len(m))
	for _, name := range sortedNames(m) {
		out = append(out, model.Multiplier{Name: name, Value: m[name]})
	}
	return out
}

// recomputeLocked rebuilds the combined value of cat in name order so the
// result does not depend on map iteration. Caller must hold r.mu.
func (r *MultiplierRegistry) recomputeLocked(cat model.Category) float64 {
	m := r.entries[cat]
	product := 1.0
	for _, name := range sortedNames(m) {
		product *= m[name]
	}
	r.combined[cat] = product
	return product
}

func sortedNames(m map[string]float64) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
