package state

import (
	"errors"
	"testing"
	"time"

	"github.com/signalsfoundry/transmitter-sim/core"
)

func TestTelemetryUpdateAndGet(t *testing.T) {
	ts := NewTelemetryState()
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := ts.Update(core.Snapshot{}, at); !errors.Is(err, ErrTelemetryInvalid) {
		t.Fatalf("empty ID err = %v, want ErrTelemetryInvalid", err)
	}
	if err := ts.Update(core.Snapshot{AntennaID: "b", Busy: true}, at); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := ts.Update(core.Snapshot{AntennaID: "a"}, at); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := ts.Update(core.Snapshot{AntennaID: "b"}, at.Add(time.Second)); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got := ts.Get("b")
	if got == nil || got.Busy || got.Cycles != 1 || !got.UpdatedAt.Equal(at.Add(time.Second)) {
		t.Fatalf("Get(b) = %+v", got)
	}
	got.Cycles = 99
	if ts.Get("b").Cycles != 1 {
		t.Fatalf("Get must return a copy")
	}
	if ts.Get("missing") != nil {
		t.Fatalf("unknown antenna should yield nil")
	}

	all := ts.ListAll()
	if len(all) != 2 || all[0].AntennaID != "a" || all[1].AntennaID != "b" {
		t.Fatalf("ListAll = %+v", all)
	}
}
