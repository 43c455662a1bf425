package state

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/transmitter-sim/core"
	"github.com/signalsfoundry/transmitter-sim/internal/logging"
)

var (
	// ErrAntennaExists indicates an antenna with the same ID is attached.
	ErrAntennaExists = errors.New("antenna already exists")
	// ErrAntennaNotFound indicates a requested antenna is not attached.
	ErrAntennaNotFound = errors.New("antenna not found")
	// ErrMechanismNotFound indicates a requested deployment mechanism is unknown.
	ErrMechanismNotFound = errors.New("deployment mechanism not found")
)

// Vessel gathers the collaborators antennas share aboard one craft: the
// power pool, the data container, the link window and the deployment
// mechanisms.
type Vessel struct {
	// mu guards the antenna and mechanism maps. The collaborators carry
	// their own locks.
	mu sync.RWMutex

	id        string
	pool      *ResourcePool
	container *Container
	link      *LinkWindow
	telemetry *TelemetryState

	mechanisms map[string]*DeployAnimation
	antennas   map[string]*core.Transmitter

	log logging.Logger
}

// VesselOption customises Vessel construction.
type VesselOption func(*Vessel)

// WithTelemetry attaches a shared telemetry store.
func WithTelemetry(t *TelemetryState) VesselOption {
	return func(v *Vessel) {
		if t != nil {
			v.telemetry = t
		}
	}
}

// WithLinkWindow replaces the default, open link window.
func WithLinkWindow(w *LinkWindow) VesselOption {
	return func(v *Vessel) {
		if w != nil {
			v.link = w
		}
	}
}

// NewVessel wires a vessel around pool.
func NewVessel(id string, pool *ResourcePool, log logging.Logger, opts ...VesselOption) *Vessel {
	if log == nil {
		log = logging.Noop()
	}
	v := &Vessel{
		id:         id,
		pool:       pool,
		container:  NewContainer(id),
		link:       NewLinkWindow(true),
		telemetry:  NewTelemetryState(),
		mechanisms: make(map[string]*DeployAnimation),
		antennas:   make(map[string]*core.Transmitter),
		log:        log.With(logging.String("vessel", id)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

func (v *Vessel) ID() string                 { return v.id }
func (v *Vessel) Pool() *ResourcePool        { return v.pool }
func (v *Vessel) Container() *Container      { return v.container }
func (v *Vessel) Link() *LinkWindow          { return v.link }
func (v *Vessel) Telemetry() *TelemetryState { return v.telemetry }

// AddMechanism registers a deployment mechanism under its name.
func (v *Vessel) AddMechanism(a *DeployAnimation) {
	v.mu.Lock()
	v.mechanisms[a.Name()] = a
	v.mu.Unlock()
}

// Mechanism returns the named deployment mechanism.
func (v *Vessel) Mechanism(name string) (*DeployAnimation, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	a, ok := v.mechanisms[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMechanismNotFound, name)
	}
	return a, nil
}

// Reporters resolves mechanism names into deployment reporters.
func (v *Vessel) Reporters(names ...string) ([]core.DeploymentReporter, error) {
	out := make([]core.DeploymentReporter, 0, len(names))
	for _, n := range names {
		a, err := v.Mechanism(n)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// Dependencies returns the collaborators a transmitter aboard this vessel
// needs, apart from the resolver and sink which live outside the vessel.
func (v *Vessel) Dependencies(resolver core.SubjectResolver, sink core.CompletionSink, notifier core.Notifier, mechanisms ...string) (core.Dependencies, error) {
	reporters, err := v.Reporters(mechanisms...)
	if err != nil {
		return core.Dependencies{}, err
	}
	deps := core.Dependencies{
		Link:      v.link,
		Resolver:  resolver,
		Sink:      sink,
		Container: v.container,
		Notifier:  notifier,
		Reporters: reporters,
	}
	if v.pool != nil {
		deps.Pool = v.pool
	}
	return deps, nil
}

// AttachAntenna registers a transmitter with the vessel.
func (v *Vessel) AttachAntenna(t *core.Transmitter) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, exists := v.antennas[t.ID()]; exists {
		return fmt.Errorf("%w: %q", ErrAntennaExists, t.ID())
	}
	v.antennas[t.ID()] = t
	return nil
}

// Antenna returns the attached transmitter with the given ID.
func (v *Vessel) Antenna(id string) (*core.Transmitter, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	t, ok := v.antennas[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrAntennaNotFound, id)
	}
	return t, nil
}

// Antennas returns the attached transmitters sorted by ID.
func (v *Vessel) Antennas() []*core.Transmitter {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]*core.Transmitter, 0, len(v.antennas))
	for _, t := range v.antennas {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Tick advances the vessel by dt: power generation, mechanisms, then every
// antenna in ID order, publishing each snapshot to telemetry.
func (v *Vessel) Tick(ctx context.Context, now time.Time, dt time.Duration) {
	if v.pool != nil {
		v.pool.Generate(dt)
	}

	v.mu.RLock()
	mechanisms := make([]*DeployAnimation, 0, len(v.mechanisms))
	for _, a := range v.mechanisms {
		mechanisms = append(mechanisms, a)
	}
	v.mu.RUnlock()
	for _, a := range mechanisms {
		a.Advance(dt)
	}

	for _, t := range v.Antennas() {
		t.Tick(ctx, dt)
		if err := v.telemetry.Update(t.Snapshot(), now); err != nil {
			v.log.Warn(ctx, "telemetry update failed", logging.String("antenna", t.ID()), logging.Err(err))
		}
	}
}
