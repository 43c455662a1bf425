package state

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/transmitter-sim/core"
)

// ErrTelemetryInvalid indicates a snapshot without an antenna ID.
var ErrTelemetryInvalid = errors.New("invalid antenna telemetry")

// AntennaTelemetry is the last published snapshot of one antenna.
type AntennaTelemetry struct {
	core.Snapshot

	// UpdatedAt is the simulation time of the snapshot.
	UpdatedAt time.Time
	// Cycles counts completed transmission cycles.
	Cycles int
}

// TelemetryState is a concurrency-safe store of antenna snapshots. The tick
// goroutine writes to it; exporters and the health service read from it.
type TelemetryState struct {
	mu        sync.RWMutex
	byAntenna map[string]*AntennaTelemetry
}

// NewTelemetryState creates an empty store.
func NewTelemetryState() *TelemetryState {
	return &TelemetryState{byAntenna: make(map[string]*AntennaTelemetry)}
}

// Update stores snap as the latest view of its antenna. A busy-to-idle
// transition counts as one finished cycle.
func (t *TelemetryState) Update(snap core.Snapshot, at time.Time) error {
	if snap.AntennaID == "" {
		return ErrTelemetryInvalid
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok := t.byAntenna[snap.AntennaID]
	next := &AntennaTelemetry{Snapshot: snap, UpdatedAt: at}
	if ok {
		next.Cycles = prev.Cycles
		if prev.Busy && !snap.Busy {
			next.Cycles++
		}
	}
	t.byAntenna[snap.AntennaID] = next
	return nil
}

// Get returns a copy of the antenna's telemetry, or nil when unknown.
func (t *TelemetryState) Get(antennaID string) *AntennaTelemetry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	m, ok := t.byAntenna[antennaID]
	if !ok {
		return nil
	}
	cp := *m
	return &cp
}

// ListAll returns copies of every stored entry sorted by antenna ID.
func (t *TelemetryState) ListAll() []*AntennaTelemetry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*AntennaTelemetry, 0, len(t.byAntenna))
	for _, v := range t.byAntenna {
		cp := *v
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AntennaID < out[j].AntennaID })
	return out
}
