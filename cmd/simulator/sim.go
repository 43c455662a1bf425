package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/transmitter-sim/core"
	"github.com/signalsfoundry/transmitter-sim/internal/config"
	"github.com/signalsfoundry/transmitter-sim/internal/healthsvc"
	"github.com/signalsfoundry/transmitter-sim/internal/logging"
	"github.com/signalsfoundry/transmitter-sim/internal/notify"
	"github.com/signalsfoundry/transmitter-sim/internal/observability"
	"github.com/signalsfoundry/transmitter-sim/internal/persist"
	"github.com/signalsfoundry/transmitter-sim/internal/reload"
	"github.com/signalsfoundry/transmitter-sim/internal/sim/orbit"
	sim "github.com/signalsfoundry/transmitter-sim/internal/sim/state"
	"github.com/signalsfoundry/transmitter-sim/kb"
	"github.com/signalsfoundry/transmitter-sim/model"
	"github.com/signalsfoundry/transmitter-sim/timectrl"
)

// simulation is one configured vessel with its antennas and the services
// around it.
type simulation struct {
	cfg *config.Config
	log logging.Logger
	out io.Writer

	clock   *timectrl.TimeController
	events  *timectrl.EventScheduler
	archive *kb.Archive
	vessel  *sim.Vessel

	metrics  *observability.TransmitterCollector
	rpc      *observability.RPCCollector
	health   *healthsvc.Service
	store    *persist.FileStore
	watcher  *reload.Watcher
	throttle *notify.Throttled

	// linkUp is the operator-controlled link state. With a tracker the
	// link is also closed while no ground station is in view.
	linkUp    bool
	tracker   *orbit.Tracker
	inContact bool
}

type simOptions struct {
	Start        time.Time
	Registerer   prometheus.Registerer
	SnapshotFile string
	Out          io.Writer
}

// newSimulation wires every component described by cfg. It does not start
// any goroutine.
func newSimulation(ctx context.Context, cfg *config.Config, log logging.Logger, opts simOptions) (*simulation, error) {
	if log == nil {
		log = logging.Noop()
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.Start.IsZero() {
		opts.Start = time.Now().UTC()
	}

	metrics, err := observability.NewTransmitterCollector(opts.Registerer)
	if err != nil {
		return nil, fmt.Errorf("init transmitter metrics: %w", err)
	}
	rpc, err := observability.NewRPCCollector(opts.Registerer)
	if err != nil {
		return nil, fmt.Errorf("init rpc metrics: %w", err)
	}

	clock := timectrl.NewTimeController(opts.Start, cfg.Simulation.Tick.Duration, timectrl.ParseMode(cfg.Simulation.Mode))
	s := &simulation{
		cfg:     cfg,
		log:     log,
		out:     opts.Out,
		clock:   clock,
		events:  timectrl.NewEventScheduler(clock),
		archive: kb.NewArchive(),
		metrics: metrics,
		rpc:     rpc,
	}

	for _, sc := range cfg.Subjects {
		if err := s.archive.AddSubject(&kb.Subject{
			ID:         sc.ID,
			Title:      sc.Title,
			ScienceCap: sc.ScienceCap,
			DataScale:  sc.DataScale,
		}); err != nil {
			return nil, fmt.Errorf("add subject %q: %w", sc.ID, err)
		}
	}
	s.archive.Subscribe(func(ev kb.Event) {
		if ev.Type == kb.EventScienceCredited {
			log.Debug(ctx, "science credited",
				logging.String("subject", ev.Subject.ID),
				logging.Float64("amount", ev.Amount),
				logging.Float64("science", ev.Science),
			)
		}
	})

	vc := cfg.Vessel
	pool := sim.NewResourcePool(vc.Resource, vc.Amount, vc.Capacity)
	pool.SetGeneration(vc.Generation)
	s.linkUp = vc.LinkInitiallyUp()
	s.vessel = sim.NewVessel(vc.ID, pool, log, sim.WithLinkWindow(sim.NewLinkWindow(s.linkUp)))
	if vc.Orbit != nil {
		if s.tracker, err = vc.Orbit.Tracker(); err != nil {
			return nil, fmt.Errorf("vessel orbit: %w", err)
		}
	}
	for _, m := range vc.Mechanisms {
		s.vessel.AddMechanism(sim.NewDeployAnimation(m.Name, m.Start, m.Speed))
	}
	for _, ic := range cfg.Items {
		s.vessel.Container().Add(ic.DataItem())
	}

	s.throttle = notify.NewThrottled(
		notify.NewWriterSink(opts.Out, clock),
		clock,
		cfg.Notifications.MinInterval.Duration,
		cfg.Notifications.Burst,
	)
	notifier := notify.Fanout{notify.NewLogSink(log), s.throttle}

	var saved *persist.Snapshot
	if opts.SnapshotFile != "" {
		s.store = persist.NewFileStore(opts.SnapshotFile)
		saved, err = s.store.Load()
		switch {
		case errors.Is(err, persist.ErrNoSnapshot):
			saved = nil
		case err != nil:
			return nil, err
		default:
			log.Info(ctx, "snapshot loaded",
				logging.String("path", opts.SnapshotFile),
				logging.Int("antennas", len(saved.Antennas)),
			)
		}
	}

	for _, ac := range cfg.Antennas {
		tcfg, err := cfg.TransmitterConfig(ac)
		if err != nil {
			return nil, err
		}
		deps, err := s.vessel.Dependencies(s.archive, s.archive, notifier, ac.Mechanisms...)
		if err != nil {
			return nil, fmt.Errorf("antenna %q: %w", ac.ID, err)
		}
		tx, err := core.NewTransmitter(tcfg, deps, log, core.WithMetrics(metrics))
		if err != nil {
			return nil, fmt.Errorf("antenna %q: %w", ac.ID, err)
		}
		if ps := saved.Lookup(ac.ID); ps != nil {
			if err := tx.Restore(*ps); err != nil {
				log.Warn(ctx, "ignoring saved antenna state", logging.String("antenna", ac.ID), logging.Err(err))
			}
		}
		if err := s.vessel.AttachAntenna(tx); err != nil {
			return nil, err
		}
		tx.Start(core.StartFlight)
	}

	s.health = healthsvc.New(s.vessel.Telemetry(), rpc, log)

	if cfg.Multipliers.File != "" {
		s.watcher = reload.NewWatcher(cfg.Multipliers.File, cfg.Multipliers.Debounce.Duration, s.registry, log)
	}

	for _, ev := range cfg.Events {
		s.events.Schedule(opts.Start.Add(ev.At.Duration), func() { s.apply(ctx, ev) })
	}

	clock.AddListener(func(now time.Time, dt time.Duration) {
		s.updateLink(ctx, now)
		s.vessel.Tick(ctx, now, dt)
		s.events.RunDue()
		s.health.Sync(ctx)
	})
	return s, nil
}

// updateLink recomputes the vessel link from the operator flag and, when
// the vessel is in orbit, ground station visibility.
func (s *simulation) updateLink(ctx context.Context, now time.Time) {
	up := s.linkUp
	if s.tracker != nil {
		contact, ok := s.tracker.Visible(now)
		if ok != s.inContact {
			if ok {
				s.log.Info(ctx, "ground contact acquired",
					logging.String("station", contact.StationID),
					logging.Float64("elevation_deg", contact.ElevationDeg),
					logging.Float64("range_km", contact.RangeKm),
				)
			} else {
				s.log.Info(ctx, "ground contact lost")
			}
			s.inContact = ok
		}
		up = up && ok
	}
	s.vessel.Link().Set(up)
}

func (s *simulation) registry(antennaID string) (*core.MultiplierRegistry, bool) {
	tx, err := s.vessel.Antenna(antennaID)
	if err != nil {
		return nil, false
	}
	return tx.Registry(), true
}

// run executes events scheduled at the start time, then steps the clock for
// the configured duration or until ctx is done.
func (s *simulation) run(ctx context.Context) error {
	s.updateLink(ctx, s.clock.Now())
	s.events.RunDue()
	s.health.Sync(ctx)
	err := s.clock.Run(ctx, s.cfg.Simulation.Duration.Duration)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// apply performs one scenario action. It runs on the tick goroutine.
func (s *simulation) apply(ctx context.Context, ev config.EventConfig) {
	log := s.log.With(logging.String("action", string(ev.Action)))
	var tx *core.Transmitter
	if ev.Antenna != "" {
		var err error
		tx, err = s.vessel.Antenna(ev.Antenna)
		if err != nil {
			log.Warn(ctx, "scenario event skipped", logging.Err(err))
			return
		}
	}

	switch ev.Action {
	case config.ActionEnqueue:
		tx.Enqueue(s.take(ev.Items)...)
	case config.ActionTransmit:
		items := s.take(ev.Items)
		err := tx.TransmitData(ctx, items, func() {
			log.Info(ctx, "transmission finished", logging.String("antenna", tx.ID()))
		})
		if err != nil {
			log.Warn(ctx, "transmit request refused", logging.String("antenna", tx.ID()), logging.Err(err))
		}
	case config.ActionStart:
		if err := tx.StartTransmission(ctx, nil); err != nil {
			log.Warn(ctx, "transmission not started", logging.String("antenna", tx.ID()), logging.Err(err))
		}
	case config.ActionStop:
		tx.StopTransmission(ctx)
	case config.ActionEnable:
		tx.SetEnabled(ctx, true)
	case config.ActionDisable:
		tx.SetEnabled(ctx, false)
	case config.ActionToggle:
		if err := tx.ToggleEnabled(ctx); err != nil {
			log.Warn(ctx, "toggle refused", logging.String("antenna", tx.ID()), logging.Err(err))
		}
	case config.ActionDeploy, config.ActionRetract:
		m, err := s.vessel.Mechanism(ev.Mechanism)
		if err != nil {
			log.Warn(ctx, "scenario event skipped", logging.Err(err))
			return
		}
		if ev.Action == config.ActionDeploy {
			m.Deploy()
		} else {
			m.Retract()
		}
	case config.ActionLinkUp, config.ActionLinkDown:
		s.linkUp = ev.Action == config.ActionLinkUp
		s.updateLink(ctx, s.clock.Now())
	case config.ActionMultiplier:
		cat, err := model.ParseCategory(ev.Category)
		if err != nil {
			log.Warn(ctx, "scenario event skipped", logging.Err(err))
			return
		}
		if ev.Value == nil {
			tx.Registry().Remove(cat, ev.Name)
		} else {
			tx.Registry().Set(cat, ev.Name, *ev.Value)
		}
	case config.ActionGeneration:
		s.vessel.Pool().SetGeneration(ev.Generation)
	}
	log.Debug(ctx, "scenario event applied", logging.String("antenna", ev.Antenna))
}

// take removes items from the vessel container; an empty list takes all.
func (s *simulation) take(ids []string) []*model.DataItem {
	if len(ids) == 0 {
		return s.vessel.Container().TakeAll()
	}
	return s.vessel.Container().Take(ids...)
}

// snapshot captures the persisted state of every antenna.
func (s *simulation) snapshot() *persist.Snapshot {
	snap := &persist.Snapshot{
		VesselID: s.vessel.ID(),
		SavedAt:  s.clock.Now(),
		Antennas: make(map[string]model.PersistedState),
	}
	for _, tx := range s.vessel.Antennas() {
		snap.Antennas[tx.ID()] = tx.Persisted()
	}
	return snap
}

// save writes the snapshot when a store is configured.
func (s *simulation) save(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.Save(s.snapshot()); err != nil {
		return err
	}
	s.log.Info(ctx, "snapshot saved", logging.String("path", s.store.Path()))
	return nil
}

// report prints the final state of the antennas and the science archive.
func (s *simulation) report() {
	fmt.Fprintf(s.out, "Simulation complete at %s (%d ticks)\n", s.clock.Now().UTC().Format(time.RFC3339), s.clock.Steps())
	for _, tx := range s.vessel.Antennas() {
		st := tx.Status()
		fmt.Fprintf(s.out, "  %-12s %-24s queue=%d bandwidth=%.2f\n", tx.ID(), st.Label, tx.QueueLen(), tx.EffectiveBandwidth())
		if reason := tx.Snapshot().AbortReason; reason != "" {
			fmt.Fprintf(s.out, "  %-12s last cycle aborted: %s\n", "", reason)
		}
	}
	for _, sub := range s.archive.ListSubjects() {
		fmt.Fprintf(s.out, "  subject %-16s data=%.2f science=%.2f/%.2f\n", sub.ID, sub.DataReceived, sub.Science, sub.ScienceCap)
	}
	pool := s.vessel.Pool()
	fmt.Fprintf(s.out, "  %s remaining=%.2f drawn=%.2f\n", pool.Name(), pool.Amount(), pool.Drawn())
	if n := s.throttle.Dropped(); n > 0 {
		fmt.Fprintf(s.out, "  %d notifications suppressed\n", n)
	}
}
