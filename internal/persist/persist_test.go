package persist

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalsfoundry/transmitter-sim/model"
)

func TestSaveAndLoad(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "state", "snapshot.yaml"))

	off := false
	snap := &Snapshot{
		VesselID: "probe-1",
		SavedAt:  time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Antennas: map[string]model.PersistedState{
			"hg-5": {Enabled: &off, Deployed: true, TransmitDataRate: 10, XmitIncomplete: true},
			"omni": {TransmitDataRate: 2},
		},
	}
	if err := store.Save(snap); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.VesselID != "probe-1" || !got.SavedAt.Equal(snap.SavedAt) {
		t.Fatalf("header = %+v", got)
	}
	hg := got.Lookup("hg-5")
	if hg == nil || hg.Enabled == nil || *hg.Enabled || !hg.Deployed || !hg.XmitIncomplete {
		t.Fatalf("hg-5 = %+v", hg)
	}
	omni := got.Lookup("omni")
	if omni == nil || omni.Enabled != nil {
		t.Fatalf("omni must keep a missing enabled flag missing: %+v", omni)
	}
	if ids := got.AntennaIDs(); len(ids) != 2 || ids[0] != "hg-5" {
		t.Fatalf("AntennaIDs = %v", ids)
	}
	if got.Lookup("nope") != nil {
		t.Fatalf("unknown antenna should yield nil")
	}
}

func TestLoadMissing(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "none.yaml"))
	if _, err := store.Load(); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("err = %v, want ErrNoSnapshot", err)
	}
}

func TestLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("antennas: [not, a, map"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewFileStore(path).Load(); err == nil || errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("err = %v, want a decode error", err)
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "s.yaml"))
	for i := 0; i < 3; i++ {
		if err := store.Save(&Snapshot{VesselID: "v"}); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("dir has %d entries, want only the snapshot", len(entries))
	}
}
