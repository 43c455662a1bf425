package reload

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalsfoundry/transmitter-sim/core"
	"github.com/signalsfoundry/transmitter-sim/model"
)

type registries map[string]*core.MultiplierRegistry

func (r registries) lookup(id string) (*core.MultiplierRegistry, bool) {
	reg, ok := r[id]
	return reg, ok
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestReloadAppliesDiff(t *testing.T) {
	regs := registries{"HG-5": core.NewMultiplierRegistry()}
	regs["HG-5"].Set(model.CategoryPower, "manual", 2)

	path := filepath.Join(t.TempDir(), "multipliers.yaml")
	writeFile(t, path, `
HG-5:
  bandwidth:
    relay_upgrade: 1.5
    booster: 2
  consumption:
    efficient: 0.5
`)
	w := NewWatcher(path, 0, regs.lookup, nil)
	res, err := w.Reload(context.Background())
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if res.Set != 3 || res.Removed != 0 {
		t.Fatalf("result = %+v, want 3 set", res)
	}
	reg := regs["HG-5"]
	if got := reg.Combined(model.CategoryBandwidth); got != 3 {
		t.Fatalf("bandwidth = %v, want 3", got)
	}

	writeFile(t, path, `
HG-5:
  bandwidth:
    relay_upgrade: 1.25
`)
	res, err = w.Reload(context.Background())
	if err != nil {
		t.Fatalf("second Reload: %v", err)
	}
	if res.Set != 1 || res.Removed != 2 {
		t.Fatalf("result = %+v, want 1 set 2 removed", res)
	}
	if got := reg.Combined(model.CategoryBandwidth); got != 1.25 {
		t.Fatalf("bandwidth = %v, want 1.25", got)
	}
	if got := reg.Combined(model.CategoryConsumption); got != 1 {
		t.Fatalf("consumption = %v, want 1 after removal", got)
	}
	if v, ok := reg.Get(model.CategoryPower, "manual"); !ok || v != 2 {
		t.Fatalf("foreign entry touched: %v %v", v, ok)
	}

	res, err = w.Reload(context.Background())
	if err != nil || res.Set != 0 || res.Removed != 0 {
		t.Fatalf("unchanged reload = %+v, %v", res, err)
	}
}

func TestReloadRejectsBadFileAndKeepsState(t *testing.T) {
	regs := registries{"HG-5": core.NewMultiplierRegistry()}
	path := filepath.Join(t.TempDir(), "multipliers.yaml")
	writeFile(t, path, "HG-5:\n  power:\n    boost: 2\n")
	w := NewWatcher(path, 0, regs.lookup, nil)
	if _, err := w.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	bad := []string{
		"HG-5:\n  warp:\n    x: 2\n",
		"HG-5:\n  power:\n    boost: -1\n",
		"HG-5: [not, a, map]\n",
	}
	for _, body := range bad {
		writeFile(t, path, body)
		if _, err := w.Reload(context.Background()); !errors.Is(err, ErrInvalidFile) {
			t.Fatalf("body %q: err = %v, want ErrInvalidFile", body, err)
		}
		if got := regs["HG-5"].Combined(model.CategoryPower); got != 2 {
			t.Fatalf("power = %v after rejected file, want 2", got)
		}
	}
}

func TestReloadMissingFileClearsEntries(t *testing.T) {
	regs := registries{"HG-5": core.NewMultiplierRegistry()}
	path := filepath.Join(t.TempDir(), "multipliers.yaml")
	writeFile(t, path, "HG-5:\n  power:\n    boost: 2\n")
	w := NewWatcher(path, 0, regs.lookup, nil)
	if _, err := w.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	res, err := w.Reload(context.Background())
	if err != nil {
		t.Fatalf("Reload after remove: %v", err)
	}
	if res.Removed != 1 || regs["HG-5"].Combined(model.CategoryPower) != 1 {
		t.Fatalf("result = %+v, power = %v", res, regs["HG-5"].Combined(model.CategoryPower))
	}
}

func TestReloadSkipsUnknownAntenna(t *testing.T) {
	regs := registries{"HG-5": core.NewMultiplierRegistry()}
	path := filepath.Join(t.TempDir(), "multipliers.yaml")
	writeFile(t, path, "ghost:\n  power:\n    boost: 2\nHG-5:\n  power:\n    boost: 3\n")
	w := NewWatcher(path, 0, regs.lookup, nil)
	res, err := w.Reload(context.Background())
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if res.Set != 1 || len(res.Skipped) != 1 || res.Skipped[0] != "ghost" {
		t.Fatalf("result = %+v", res)
	}
}

func TestRunPicksUpFileChanges(t *testing.T) {
	regs := registries{"HG-5": core.NewMultiplierRegistry()}
	path := filepath.Join(t.TempDir(), "multipliers.yaml")
	writeFile(t, path, "HG-5:\n  bandwidth:\n    boost: 2\n")

	w := NewWatcher(path, 20*time.Millisecond, regs.lookup, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	reg := regs["HG-5"]
	waitFor(t, func() bool { return reg.Combined(model.CategoryBandwidth) == 2 })

	writeFile(t, path, "HG-5:\n  bandwidth:\n    boost: 4\n")
	waitFor(t, func() bool { return reg.Combined(model.CategoryBandwidth) == 4 })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
