package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/transmitter-sim/internal/logging"
	"github.com/signalsfoundry/transmitter-sim/model"
)

var (
	// ErrToggleLocked is returned when the operator tries to switch an
	// antenna whose activation is coupled to its deployment.
	ErrToggleLocked = errors.New("antenna activation follows deployment")
	// ErrMissingCollaborator is returned when a required collaborator is nil.
	ErrMissingCollaborator = errors.New("missing collaborator")
	// ErrInvalidConfig is returned for configuration the engine cannot run.
	ErrInvalidConfig = errors.New("invalid transmitter config")
)

// StartMode says in which context the transmitter was attached.
type StartMode int

const (
	// StartEditor is a design-time attachment: nothing is ever consumed.
	StartEditor StartMode = iota
	// StartFlight is a live attachment: power is accounted every tick.
	StartFlight
)

// Config holds the static, per-antenna settings.
type Config struct {
	ID       string
	Title    string
	VesselID string
	Type     model.AntennaType

	// AntennaPower is the range rating; only multipliers act on it here.
	AntennaPower float64
	// TransmitDataRate is the base bandwidth in Mits per second.
	TransmitDataRate float64
	// TransmitConsumptionRate is the per-second draw while streaming.
	TransmitConsumptionRate float64
	// TelemetryConsumptionRate is the per-second keep-alive draw.
	TelemetryConsumptionRate float64
	// TelemetryFactor scales telemetry draw only. Nil means 1.
	TelemetryFactor *float64

	ResourceName string

	// XmitIncomplete grants partial credit to every item on this antenna.
	XmitIncomplete   bool
	AllowToggle      bool
	InvertDeployment bool

	// Enabled is the initial activation state.
	Enabled bool

	NotifyInterval        time.Duration
	SatisfactionThreshold float64
}

// Validate checks that the config can drive an engine.
func (c Config) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: empty antenna ID", ErrInvalidConfig)
	}
	for name, v := range map[string]float64{
		"antenna power":              c.AntennaPower,
		"transmit data rate":         c.TransmitDataRate,
		"transmit consumption rate":  c.TransmitConsumptionRate,
		"telemetry consumption rate": c.TelemetryConsumptionRate,
	} {
		if v < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidConfig, name)
		}
	}
	if c.TelemetryFactor != nil && *c.TelemetryFactor < 0 {
		return fmt.Errorf("%w: telemetry factor must not be negative", ErrInvalidConfig)
	}
	if c.SatisfactionThreshold < 0 || c.SatisfactionThreshold > 1 {
		return fmt.Errorf("%w: satisfaction threshold must be within [0,1]", ErrInvalidConfig)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Title == "" {
		c.Title = c.ID
	}
	if c.TelemetryFactor == nil {
		one := 1.0
		c.TelemetryFactor = &one
	}
	if c.ResourceName == "" {
		c.ResourceName = "ElectricCharge"
	}
	if c.NotifyInterval <= 0 {
		c.NotifyInterval = DefaultNotifyInterval
	}
	if c.SatisfactionThreshold == 0 {
		c.SatisfactionThreshold = DefaultSatisfactionThreshold
	}
	return c
}

// Dependencies are the external collaborators of one transmitter. Sink and
// Container are required so no item can ever be dropped.
type Dependencies struct {
	Pool      ResourcePool
	Link      LinkChecker
	Resolver  SubjectResolver
	Sink      CompletionSink
	Container SourceContainer
	Notifier  Notifier
	Reporters []DeploymentReporter
}

// Snapshot is a point-in-time view of a transmitter for exporters.
type Snapshot struct {
	AntennaID string
	Status    string
	Phase     Phase

	Enabled  bool
	Deployed bool
	Usable   bool
	Busy     bool

	Progress    float64
	DataThrough float64
	QueueLength int
	AbortReason string

	EffectivePower       float64
	EffectiveBandwidth   float64
	EffectiveConsumption float64
}

// Option customises Transmitter construction.
type Option func(*Transmitter)

// WithMetrics attaches a metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(t *Transmitter) {
		if m != nil {
			t.metrics = m
		}
	}
}

// WithTracer overrides the tracer used for cycle spans.
func WithTracer(tr trace.Tracer) Option {
	return func(t *Transmitter) {
		if tr != nil {
			t.tracer = tr
		}
	}
}

// WithObserver registers a callback that receives a snapshot after every tick.
func WithObserver(fn func(Snapshot)) Option {
	return func(t *Transmitter) {
		if fn != nil {
			t.observers = append(t.observers, fn)
		}
	}
}

// WithStatusListener registers a callback invoked whenever the projected
// status changes.
func WithStatusListener(fn func(Status)) Option {
	return func(t *Transmitter) {
		t.projector.listener = fn
	}
}

// WithRegistry shares an existing multiplier registry with the transmitter.
func WithRegistry(r *MultiplierRegistry) Option {
	return func(t *Transmitter) {
		if r != nil {
			t.registry = r
		}
	}
}

// Transmitter is one resource-gated data transmitter attached to a vessel.
//
// A Transmitter is driven by a single goroutine: Tick and the operator
// methods must not be called concurrently. Its MultiplierRegistry is the
// exception and may be mutated from anywhere.
type Transmitter struct {
	cfg Config
	st  antennaState

	queue      *Queue
	registry   *MultiplierRegistry
	tracker    *DeploymentTracker
	accountant *ResourceAccountant
	scheduler  *Scheduler
	projector  StatusProjector

	inFlight bool

	notifier  Notifier
	metrics   MetricsRecorder
	tracer    trace.Tracer
	observers []func(Snapshot)
	log       logging.Logger
}

// NewTransmitter wires a transmitter from its config and collaborators.
func NewTransmitter(cfg Config, deps Dependencies, log logging.Logger, opts ...Option) (*Transmitter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Sink == nil {
		return nil, fmt.Errorf("%w: completion sink", ErrMissingCollaborator)
	}
	if deps.Container == nil {
		return nil, fmt.Errorf("%w: source container", ErrMissingCollaborator)
	}
	if log == nil {
		log = logging.Noop()
	}
	cfg = cfg.withDefaults()

	t := &Transmitter{
		cfg:      cfg,
		queue:    NewQueue(),
		registry: NewMultiplierRegistry(),
		notifier: deps.Notifier,
		metrics:  nopMetrics{},
		tracer:   otel.Tracer("github.com/signalsfoundry/transmitter-sim/core"),
		log:      log.With(logging.String("antenna", cfg.ID)),
	}
	if t.notifier == nil {
		t.notifier = nopNotifier{}
	}
	t.st.enabled = cfg.Enabled
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}

	t.tracker = newDeploymentTracker(&t.st, deps.Reporters, deps.Link, cfg.Type, cfg.InvertDeployment, cfg.AllowToggle)
	t.scheduler = &Scheduler{
		st:              &t.st,
		queue:           t.queue,
		antennaID:       cfg.ID,
		title:           cfg.Title,
		destination:     cfg.VesselID,
		canTransmit:     t.tracker.CanTransmit,
		bandwidth:       t.EffectiveBandwidth,
		allowIncomplete: t.allowIncomplete,
		resolver:        deps.Resolver,
		sink:            deps.Sink,
		container:       deps.Container,
		notifier:        t.notifier,
		metrics:         t.metrics,
		log:             t.log,
		tracer:          t.tracer,
		notifyEvery:     cfg.NotifyInterval,
		statusText:      statusIdle,
	}
	t.accountant = &ResourceAccountant{
		st:        &t.st,
		tracker:   t.tracker,
		scheduler: t.scheduler,
		pool:      deps.Pool,
		rates:     t,
		threshold: cfg.SatisfactionThreshold,
		antennaID: cfg.ID,
		title:     cfg.Title,
		notifier:  t.notifier,
		metrics:   t.metrics,
		log:       t.log,
	}

	t.registry.OnChange(func(cat model.Category, combined float64) {
		t.log.Debug(context.Background(), "multiplier changed",
			logging.String("category", cat.String()),
			logging.Float64("combined", combined),
		)
	})

	t.project()
	return t, nil
}

// Start attaches the transmitter in the given mode. Only flight mode
// consumes resources.
func (t *Transmitter) Start(mode StartMode) {
	t.inFlight = mode == StartFlight
	t.project()
}

// Tick advances the transmitter by one fixed simulation step. The order is
// deployment, power, streaming, status, so an abort raised by the power
// accounting is seen by the scheduler before it moves another chunk.
func (t *Transmitter) Tick(ctx context.Context, dt time.Duration) {
	if t.tracker.Refresh() {
		t.log.Info(ctx, "deployment changed",
			logging.Bool("deployed", t.st.deployed),
			logging.Bool("enabled", t.st.enabled),
		)
	}
	if t.inFlight {
		t.accountant.ProcessPower(ctx, dt)
	}
	t.scheduler.Step(dt)
	t.project()

	snap := t.Snapshot()
	t.metrics.ObserveSnapshot(snap)
	for _, fn := range t.observers {
		fn(snap)
	}
}

// Enqueue appends items to the transmission queue.
func (t *Transmitter) Enqueue(items ...*model.DataItem) {
	t.queue.Push(items...)
}

// StartTransmission begins a cycle over the queued items.
func (t *Transmitter) StartTransmission(ctx context.Context, callback func()) error {
	err := t.scheduler.Begin(ctx, callback)
	t.project()
	return err
}

// TransmitData queues items and starts a cycle if none is running. When a
// cycle is already running the items join it and callback runs when it ends.
func (t *Transmitter) TransmitData(ctx context.Context, items []*model.DataItem, callback func()) error {
	t.queue.Push(items...)
	if t.st.busy {
		t.scheduler.AddCallback(callback)
		return nil
	}
	return t.StartTransmission(ctx, callback)
}

// StopTransmission aborts the running cycle on operator request.
func (t *Transmitter) StopTransmission(ctx context.Context) bool {
	return t.scheduler.Abort(ctx, "transmission stopped")
}

// SetEnabled switches the antenna on or off. Turning a busy antenna off
// aborts its transfer on the next tick.
func (t *Transmitter) SetEnabled(ctx context.Context, enabled bool) {
	if t.st.enabled == enabled {
		return
	}
	t.st.enabled = enabled
	t.log.Info(ctx, "antenna activation changed", logging.Bool("enabled", enabled))
	t.project()
}

// ToggleEnabled flips the activation flag when the operator is allowed to.
func (t *Transmitter) ToggleEnabled(ctx context.Context) error {
	if t.tracker.Deployable() && !t.tracker.AllowToggle() {
		return ErrToggleLocked
	}
	t.SetEnabled(ctx, !t.st.enabled)
	return nil
}

// ToggleIncomplete flips the antenna-wide partial transmission setting.
func (t *Transmitter) ToggleIncomplete() bool {
	t.cfg.XmitIncomplete = !t.cfg.XmitIncomplete
	return t.cfg.XmitIncomplete
}

// Registry returns the multiplier registry of this transmitter.
func (t *Transmitter) Registry() *MultiplierRegistry { return t.registry }

// ID returns the antenna identifier.
func (t *Transmitter) ID() string { return t.cfg.ID }

// Config returns the effective configuration.
func (t *Transmitter) Config() Config { return t.cfg }

func (t *Transmitter) Enabled() bool     { return t.st.enabled }
func (t *Transmitter) Deployed() bool    { return t.st.deployed }
func (t *Transmitter) Busy() bool        { return t.st.busy }
func (t *Transmitter) Usable() bool      { return t.tracker.Usable() }
func (t *Transmitter) CanTransmit() bool { return t.tracker.CanTransmit() }
func (t *Transmitter) CanComm() bool     { return t.tracker.CanComm() }
func (t *Transmitter) Progress() float64 { return t.scheduler.Progress() }
func (t *Transmitter) QueueLen() int     { return t.queue.Len() }
func (t *Transmitter) Status() Status    { return t.projector.Current() }

// Deployable reports whether the antenna has deployment mechanisms.
func (t *Transmitter) Deployable() bool { return t.tracker.Deployable() }

// Scheduler exposes the transmission state machine for inspection.
func (t *Transmitter) Scheduler() *Scheduler { return t.scheduler }

// EffectivePower returns the range rating after power multipliers.
func (t *Transmitter) EffectivePower() float64 {
	return t.cfg.AntennaPower * t.registry.Combined(model.CategoryPower)
}

// EffectiveBandwidth returns the data rate after bandwidth multipliers.
func (t *Transmitter) EffectiveBandwidth() float64 {
	return t.cfg.TransmitDataRate * t.registry.Combined(model.CategoryBandwidth)
}

// EffectiveConsumption returns the transmit draw rate after consumption
// multipliers.
func (t *Transmitter) EffectiveConsumption() float64 {
	return t.cfg.TransmitConsumptionRate * t.registry.Combined(model.CategoryConsumption)
}

func (t *Transmitter) transmitDraw() float64 {
	return t.EffectiveConsumption()
}

func (t *Transmitter) telemetryDraw() float64 {
	return t.cfg.TelemetryConsumptionRate * t.registry.Combined(model.CategoryConsumption) * *t.cfg.TelemetryFactor
}

func (t *Transmitter) allowIncomplete(item *model.DataItem) bool {
	return t.cfg.XmitIncomplete || (item != nil && item.AllowIncomplete)
}

// Snapshot captures the current state.
func (t *Transmitter) Snapshot() Snapshot {
	return Snapshot{
		AntennaID:            t.cfg.ID,
		Status:               t.projector.Current().Label,
		Phase:                t.scheduler.Phase(),
		Enabled:              t.st.enabled,
		Deployed:             t.st.deployed,
		Usable:               t.tracker.Usable(),
		Busy:                 t.st.busy,
		Progress:             t.scheduler.Progress(),
		DataThrough:          t.scheduler.DataThrough(),
		QueueLength:          t.queue.Len(),
		AbortReason:          t.scheduler.AbortReason(),
		EffectivePower:       t.EffectivePower(),
		EffectiveBandwidth:   t.EffectiveBandwidth(),
		EffectiveConsumption: t.EffectiveConsumption(),
	}
}

// Persisted returns the state that survives a save/load.
func (t *Transmitter) Persisted() model.PersistedState {
	enabled := t.st.enabled
	return model.PersistedState{
		Enabled:                  &enabled,
		Deployed:                 t.st.deployed,
		AntennaPower:             t.cfg.AntennaPower,
		TransmitDataRate:         t.cfg.TransmitDataRate,
		TransmitConsumptionRate:  t.cfg.TransmitConsumptionRate,
		TelemetryConsumptionRate: t.cfg.TelemetryConsumptionRate,
		XmitIncomplete:           t.cfg.XmitIncomplete,
	}
}

// Restore applies a persisted state. It must be called while idle. Fixed
// antennas stay deployed whatever the snapshot says.
func (t *Transmitter) Restore(ps model.PersistedState) error {
	if t.st.busy {
		return ErrBusy
	}
	if ps.AntennaPower < 0 || ps.TransmitDataRate < 0 || ps.TransmitConsumptionRate < 0 || ps.TelemetryConsumptionRate < 0 {
		return fmt.Errorf("%w: persisted rates must not be negative", ErrInvalidConfig)
	}
	t.st.enabled = ps.EnabledOr(t.st.enabled)
	if t.tracker.Deployable() {
		t.st.deployed = ps.Deployed
	}
	t.cfg.AntennaPower = ps.AntennaPower
	t.cfg.TransmitDataRate = ps.TransmitDataRate
	t.cfg.TransmitConsumptionRate = ps.TransmitConsumptionRate
	t.cfg.TelemetryConsumptionRate = ps.TelemetryConsumptionRate
	t.cfg.XmitIncomplete = ps.XmitIncomplete
	t.project()
	return nil
}

func (t *Transmitter) project() {
	t.projector.Update(StatusInputs{
		Enabled:     t.st.enabled,
		Deployed:    t.st.deployed,
		Deployable:  t.tracker.Deployable(),
		Busy:        t.st.busy,
		AllowToggle: t.tracker.AllowToggle(),
		BusyLabel:   t.scheduler.StatusText(),
	})
}
