package notify

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/signalsfoundry/transmitter-sim/core"
	"github.com/signalsfoundry/transmitter-sim/internal/logging"
	"github.com/signalsfoundry/transmitter-sim/timectrl"
)

// LogSink writes every notification to a structured logger.
type LogSink struct {
	log logging.Logger
}

// NewLogSink returns a sink logging at info level.
func NewLogSink(log logging.Logger) *LogSink {
	if log == nil {
		log = logging.Noop()
	}
	return &LogSink{log: log}
}

func (s *LogSink) Notify(msg string) {
	s.log.Info(context.Background(), "notification", logging.String("message", msg))
}

// WriterSink prints notifications as lines stamped with simulation time.
type WriterSink struct {
	mu    sync.Mutex
	w     io.Writer
	clock timectrl.SimClock
}

// NewWriterSink returns a sink printing to w. clock may be nil.
func NewWriterSink(w io.Writer, clock timectrl.SimClock) *WriterSink {
	return &WriterSink{w: w, clock: clock}
}

func (s *WriterSink) Notify(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clock != nil {
		fmt.Fprintf(s.w, "%s %s\n", s.clock.Now().UTC().Format(time.TimeOnly), msg)
		return
	}
	fmt.Fprintln(s.w, msg)
}

// Throttled forwards notifications at most at the configured rate, measured
// in simulation time. Excess messages are dropped and counted.
type Throttled struct {
	mu      sync.Mutex
	next    core.Notifier
	clock   timectrl.SimClock
	limiter *rate.Limiter
	dropped int
}

// NewThrottled allows one message per minInterval of simulation time with
// the given burst. A non-positive interval disables throttling.
func NewThrottled(next core.Notifier, clock timectrl.SimClock, minInterval time.Duration, burst int) *Throttled {
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	if burst <= 0 {
		burst = 1
	}
	return &Throttled{
		next:    next,
		clock:   clock,
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (t *Throttled) Notify(msg string) {
	t.mu.Lock()
	allowed := t.limiter.AllowN(t.clock.Now(), 1)
	if !allowed {
		t.dropped++
	}
	t.mu.Unlock()
	if allowed {
		t.next.Notify(msg)
	}
}

// Dropped returns how many messages were suppressed.
func (t *Throttled) Dropped() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}

// Fanout delivers every notification to each sink in order.
type Fanout []core.Notifier

func (f Fanout) Notify(msg string) {
	for _, n := range f {
		if n != nil {
			n.Notify(msg)
		}
	}
}
