// Package reload applies an externally edited multiplier contributions file
// to the antennas' multiplier registries and keeps them in sync with it.
//
// The file maps antenna IDs to categories to named factors:
//
//	HG-5:
//	  bandwidth:
//	    relay_upgrade: 1.5
//	  consumption:
//	    efficient_electronics: 0.8
//
// Every reload computes the difference against what the previous reload set:
// new or changed entries are Set, vanished entries are Removed. Entries that
// other contributors placed in the registries are never touched.
package reload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/transmitter-sim/core"
	"github.com/signalsfoundry/transmitter-sim/internal/logging"
	"github.com/signalsfoundry/transmitter-sim/model"
)

// ErrInvalidFile wraps every parse or validation failure of the contributions file.
var ErrInvalidFile = errors.New("invalid multiplier file")

// DefaultDebounce is used when the watcher is built with a non-positive debounce.
const DefaultDebounce = 250 * time.Millisecond

// RegistryLookup resolves an antenna ID to its multiplier registry.
type RegistryLookup func(antennaID string) (*core.MultiplierRegistry, bool)

// Contributions is the decoded file: antenna -> category -> name -> value.
type Contributions map[string]map[string]map[string]float64

type entryKey struct {
	antenna string
	cat     model.Category
	name    string
}

// Result summarises one reload.
type Result struct {
	Set     int
	Removed int
	Skipped []string
}

// Watcher keeps the registries in sync with one contributions file.
type Watcher struct {
	path     string
	debounce time.Duration
	lookup   RegistryLookup
	log      logging.Logger

	mu      sync.Mutex
	applied map[entryKey]float64

	timerMu sync.Mutex
	timer   *time.Timer
}

// NewWatcher returns a watcher for path.
func NewWatcher(path string, debounce time.Duration, lookup RegistryLookup, log logging.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if log == nil {
		log = logging.Noop()
	}
	return &Watcher{
		path:     path,
		debounce: debounce,
		lookup:   lookup,
		log:      log.With(logging.String("path", path)),
		applied:  make(map[entryKey]float64),
	}
}

// parse decodes and validates a contributions document.
func parse(data []byte) (map[entryKey]float64, error) {
	var doc Contributions
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	out := make(map[entryKey]float64)
	for antenna, cats := range doc {
		for catName, names := range cats {
			cat, err := model.ParseCategory(catName)
			if err != nil {
				return nil, fmt.Errorf("%w: antenna %q: %v", ErrInvalidFile, antenna, err)
			}
			for name, v := range names {
				if name == "" {
					return nil, fmt.Errorf("%w: antenna %q %s: empty multiplier name", ErrInvalidFile, antenna, cat)
				}
				if v < 0 {
					return nil, fmt.Errorf("%w: antenna %q %s/%s: negative value %g", ErrInvalidFile, antenna, cat, name, v)
				}
				out[entryKey{antenna: antenna, cat: cat, name: name}] = v
			}
		}
	}
	return out, nil
}

// Reload reads the file and applies the difference to the registries. A
// missing file is treated as empty. On a parse failure nothing changes.
func (w *Watcher) Reload(ctx context.Context) (Result, error) {
	data, err := os.ReadFile(w.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Result{}, fmt.Errorf("read multiplier file: %w", err)
	}
	want, err := parse(data)
	if err != nil {
		w.log.Warn(ctx, "multiplier file rejected", logging.Err(err))
		return Result{}, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var res Result
	for _, k := range sortedKeys(w.applied) {
		if _, keep := want[k]; keep {
			continue
		}
		if reg, ok := w.lookup(k.antenna); ok {
			reg.Remove(k.cat, k.name)
			res.Removed++
		}
		delete(w.applied, k)
	}

	skipped := make(map[string]bool)
	for _, k := range sortedKeys(want) {
		v := want[k]
		if prev, ok := w.applied[k]; ok && prev == v {
			continue
		}
		reg, ok := w.lookup(k.antenna)
		if !ok {
			if !skipped[k.antenna] {
				skipped[k.antenna] = true
				res.Skipped = append(res.Skipped, k.antenna)
			}
			continue
		}
		reg.Set(k.cat, k.name, v)
		w.applied[k] = v
		res.Set++
	}

	w.log.Info(ctx, "multipliers reloaded",
		logging.Int("set", res.Set),
		logging.Int("removed", res.Removed),
		logging.String("unknown_antennas", strings.Join(res.Skipped, ",")),
	)
	return res, nil
}

// Run watches the file's directory and reloads after every burst of changes
// to the file. It reloads once after the watch is in place and returns when
// ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	file := filepath.Base(w.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.log.Debug(ctx, "multiplier watcher started", logging.String("dir", dir))

	if _, err := w.Reload(ctx); err != nil && !errors.Is(err, ErrInvalidFile) {
		return err
	}

	defer w.stopTimer()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != file {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				w.schedule(ctx)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.log.Warn(ctx, "multiplier watch overflow; forcing reload", logging.Err(err))
				w.schedule(ctx)
				continue
			}
			w.log.Warn(ctx, "multiplier watch error", logging.Err(err))
		}
	}
}

// schedule coalesces bursts of events into one reload after the debounce.
func (w *Watcher) schedule(ctx context.Context) {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if ctx.Err() != nil {
			return
		}
		_, _ = w.Reload(ctx)
	})
}

func (w *Watcher) stopTimer() {
	w.timerMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timerMu.Unlock()
}

func sortedKeys(m map[entryKey]float64) []entryKey {
	keys := make([]entryKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.antenna != b.antenna {
			return a.antenna < b.antenna
		}
		if a.cat != b.cat {
			return a.cat < b.cat
		}
		return a.name < b.name
	})
	return keys
}
