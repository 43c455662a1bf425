package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/signalsfoundry/transmitter-sim/core"
	"github.com/signalsfoundry/transmitter-sim/internal/logging"
	"github.com/signalsfoundry/transmitter-sim/model"
)

type testSink struct{ delivered []*model.DataItem }

func (s *testSink) Deliver(item *model.DataItem, partial bool) {
	s.delivered = append(s.delivered, item)
}

type testResolver struct{}

type discardStream struct{}

func (discardStream) StreamData(float64, string) {}

func (testResolver) Resolve(*model.DataItem) (core.TransferContext, bool) {
	return discardStream{}, true
}

func newTestVessel(t *testing.T, charge float64) (*Vessel, *testSink) {
	t.Helper()
	v := NewVessel("v1", NewResourcePool("ElectricCharge", charge, 0), logging.Noop())
	v.AddMechanism(NewDeployAnimation("dish", 0, 0.5))
	return v, &testSink{}
}

func addAntenna(t *testing.T, v *Vessel, sink *testSink, id string, mechanisms ...string) *core.Transmitter {
	t.Helper()
	deps, err := v.Dependencies(testResolver{}, sink, nil, mechanisms...)
	if err != nil {
		t.Fatalf("Dependencies: %v", err)
	}
	tx, err := core.NewTransmitter(core.Config{
		ID:                       id,
		VesselID:                 v.ID(),
		TransmitDataRate:         10,
		TransmitConsumptionRate:  1,
		TelemetryConsumptionRate: 0.1,
		Enabled:                  true,
	}, deps, logging.Noop())
	if err != nil {
		t.Fatalf("NewTransmitter: %v", err)
	}
	tx.Start(core.StartFlight)
	if err := v.AttachAntenna(tx); err != nil {
		t.Fatalf("AttachAntenna: %v", err)
	}
	return tx
}

func TestVesselLookups(t *testing.T) {
	v, sink := newTestVessel(t, 100)
	addAntenna(t, v, sink, "b")
	tx := addAntenna(t, v, sink, "a")

	if _, err := v.Mechanism("missing"); !errors.Is(err, ErrMechanismNotFound) {
		t.Fatalf("err = %v, want ErrMechanismNotFound", err)
	}
	if _, err := v.Dependencies(nil, sink, nil, "missing"); !errors.Is(err, ErrMechanismNotFound) {
		t.Fatalf("err = %v, want ErrMechanismNotFound", err)
	}
	if err := v.AttachAntenna(tx); !errors.Is(err, ErrAntennaExists) {
		t.Fatalf("err = %v, want ErrAntennaExists", err)
	}
	if _, err := v.Antenna("zzz"); !errors.Is(err, ErrAntennaNotFound) {
		t.Fatalf("err = %v, want ErrAntennaNotFound", err)
	}
	ants := v.Antennas()
	if len(ants) != 2 || ants[0].ID() != "a" {
		t.Fatalf("Antennas not sorted: %v", ants)
	}
}

func TestVesselTickDrivesDeploymentAndTransfer(t *testing.T) {
	v, sink := newTestVessel(t, 100)
	tx := addAntenna(t, v, sink, "hg", "dish")
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	if tx.Deployed() {
		t.Fatalf("antenna should start stowed")
	}
	dish, _ := v.Mechanism("dish")
	dish.Deploy()

	// 0.5 after one tick sits in the dead zone, 1.0 after two deploys.
	v.Tick(ctx, now, time.Second)
	if tx.Deployed() {
		t.Fatalf("antenna must not deploy inside the dead zone")
	}
	v.Tick(ctx, now, time.Second)
	if !tx.Deployed() || !tx.Enabled() {
		t.Fatalf("antenna should be deployed and enabled after two ticks")
	}

	v.Container().Add(&model.DataItem{ID: "x", SubjectID: "s", Size: 20})
	if err := tx.TransmitData(ctx, v.Container().TakeAll(), nil); err != nil {
		t.Fatalf("TransmitData: %v", err)
	}
	v.Tick(ctx, now, time.Second)
	v.Tick(ctx, now, time.Second)
	if len(sink.delivered) != 1 {
		t.Fatalf("delivered = %d, want 1", len(sink.delivered))
	}
	got := v.Telemetry().Get("hg")
	if got == nil || got.Cycles != 1 || got.Busy {
		t.Fatalf("telemetry = %+v", got)
	}
	if v.Pool().Drawn() <= 0 {
		t.Fatalf("antenna should have drawn power")
	}
}

func TestVesselLinkLossReturnsItemsToContainer(t *testing.T) {
	v, sink := newTestVessel(t, 100)
	tx := addAntenna(t, v, sink, "omni")
	ctx := context.Background()

	if err := tx.TransmitData(ctx, []*model.DataItem{{ID: "x", SubjectID: "s", Size: 100}}, nil); err != nil {
		t.Fatalf("TransmitData: %v", err)
	}
	v.Tick(ctx, time.Time{}, time.Second)
	v.Link().Set(false)
	v.Tick(ctx, time.Time{}, time.Second)

	if v.Container().Len() != 1 || v.Container().Returned() != 1 {
		t.Fatalf("item should be back in the container")
	}
	if len(sink.delivered) != 0 {
		t.Fatalf("nothing should be delivered")
	}
}
