package core

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/transmitter-sim/internal/logging"
	"github.com/signalsfoundry/transmitter-sim/model"
)

const tick = time.Second

type fakePool struct {
	supply   func(amount float64) (float64, string)
	requests []float64
}

func (p *fakePool) TryConsume(amount, threshold float64) (float64, string) {
	p.requests = append(p.requests, amount)
	if p.supply == nil {
		return 1, ""
	}
	return p.supply(amount)
}

type fakeReporter struct{ scalar float64 }

func (r *fakeReporter) DeployScalar() float64 { return r.scalar }

type fakeLink struct{ ok bool }

func (l *fakeLink) LinkOK() bool { return l.ok }

type fakeStream struct {
	streamed    float64
	destination string
}

func (s *fakeStream) StreamData(amount float64, destination string) {
	s.streamed += amount
	s.destination = destination
}

type fakeResolver struct {
	unknown map[string]bool
	streams map[string]*fakeStream
}

func (r *fakeResolver) Resolve(item *model.DataItem) (TransferContext, bool) {
	if r.unknown[item.SubjectID] {
		return nil, false
	}
	if r.streams == nil {
		r.streams = make(map[string]*fakeStream)
	}
	s, ok := r.streams[item.ID]
	if !ok {
		s = &fakeStream{}
		r.streams[item.ID] = s
	}
	return s, true
}

type delivery struct {
	item    *model.DataItem
	partial bool
}

type recordingSink struct{ delivered []delivery }

func (s *recordingSink) Deliver(item *model.DataItem, partial bool) {
	s.delivered = append(s.delivered, delivery{item: item, partial: partial})
}

type recordingContainer struct{ returned []*model.DataItem }

func (c *recordingContainer) ReturnItem(item *model.DataItem) {
	c.returned = append(c.returned, item)
}

type recordingNotifier struct{ msgs []string }

func (n *recordingNotifier) Notify(msg string) { n.msgs = append(n.msgs, msg) }

func (n *recordingNotifier) count(substr string) int {
	c := 0
	for _, m := range n.msgs {
		if strings.Contains(m, substr) {
			c++
		}
	}
	return c
}

type fixture struct {
	tx        *Transmitter
	pool      *fakePool
	link      *fakeLink
	resolver  *fakeResolver
	sink      *recordingSink
	container *recordingContainer
	notifier  *recordingNotifier
	reporters []*fakeReporter
}

func baseConfig() Config {
	return Config{
		ID:                       "hg-5",
		Title:                    "HG-5 High Gain Antenna",
		VesselID:                 "vessel-1",
		AntennaPower:             5e9,
		TransmitDataRate:         10,
		TransmitConsumptionRate:  5,
		TelemetryConsumptionRate: 0.1,
		Enabled:                  true,
	}
}

// newFixture builds a flight-mode transmitter wired to recording fakes.
// reporters > 0 makes the antenna deployable, starting fully stowed.
func newFixture(t *testing.T, cfg Config, reporters int, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		pool:      &fakePool{},
		link:      &fakeLink{ok: true},
		resolver:  &fakeResolver{},
		sink:      &recordingSink{},
		container: &recordingContainer{},
		notifier:  &recordingNotifier{},
	}
	deps := Dependencies{
		Pool:      f.pool,
		Link:      f.link,
		Resolver:  f.resolver,
		Sink:      f.sink,
		Container: f.container,
		Notifier:  f.notifier,
	}
	for i := 0; i < reporters; i++ {
		r := &fakeReporter{}
		f.reporters = append(f.reporters, r)
		deps.Reporters = append(deps.Reporters, r)
	}
	tx, err := NewTransmitter(cfg, deps, logging.Noop(), opts...)
	if err != nil {
		t.Fatalf("NewTransmitter: %v", err)
	}
	tx.Start(StartFlight)
	f.tx = tx
	return f
}

func (f *fixture) ticks(n int) {
	for i := 0; i < n; i++ {
		f.tx.Tick(context.Background(), tick)
	}
}

func item(id string, size float64) *model.DataItem {
	return &model.DataItem{ID: id, Title: "Data " + id, SubjectID: "subject-" + id, Size: size}
}
