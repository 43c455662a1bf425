package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/transmitter-sim/internal/logging"
	"github.com/signalsfoundry/transmitter-sim/model"
)

var (
	// ErrBusy is returned when a transmission is requested while one runs.
	ErrBusy = errors.New("transmission already in progress")
	// ErrQueueEmpty is returned when a transmission is requested with nothing queued.
	ErrQueueEmpty = errors.New("transmission queue is empty")
)

// DefaultNotifyInterval is the simulated time between progress messages.
const DefaultNotifyInterval = 2 * time.Second

// sizeTolerance is the relative shortfall below an item's size that still
// counts as fully streamed.
const sizeTolerance = 1e-9

// Phase is the position of the scheduler in its cycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseStarting
	PhaseStreaming
	PhaseCompleting
	PhasePartialCompleting
	PhaseAborting
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStarting:
		return "starting"
	case PhaseStreaming:
		return "streaming"
	case PhaseCompleting:
		return "completing"
	case PhasePartialCompleting:
		return "partial-completing"
	case PhaseAborting:
		return "aborting"
	default:
		return "unknown"
	}
}

const (
	outcomeCompleted = "completed"
	outcomeAborted   = "aborted"

	statusIdle = "Idle"
)

// cycleStats counts what happened to items during one cycle.
type cycleStats struct {
	delivered int
	partial   int
	returned  int
	streamed  float64
}

// Scheduler drains the transmission queue over simulated time.
//
// It is a state machine advanced by Step once per fixed tick; streaming never
// blocks. Aborts are cooperative: Abort only raises a flag, and the next Step
// observes it before moving any more data. Every cycle ends with the queue
// drained into the completion sink or the source container.
type Scheduler struct {
	st    *antennaState
	queue *Queue

	antennaID   string
	title       string
	destination string

	canTransmit     func() bool
	bandwidth       func() float64
	allowIncomplete func(*model.DataItem) bool

	resolver  SubjectResolver
	sink      CompletionSink
	container SourceContainer
	notifier  Notifier
	metrics   MetricsRecorder
	log       logging.Logger
	tracer    trace.Tracer

	notifyEvery time.Duration

	phase       Phase
	current     *model.DataItem
	stream      TransferContext
	dataThrough float64
	progress    float64
	elapsed     time.Duration
	abortReason string
	statusText  string
	callbacks   []func()

	cycleCtx context.Context
	span     trace.Span
	stats    cycleStats
}

// Phase returns the current cycle phase.
func (s *Scheduler) Phase() Phase { return s.phase }

// Progress returns the fraction of the current (or last) item streamed.
func (s *Scheduler) Progress() float64 { return s.progress }

// DataThrough returns the data streamed for the current (or last) item.
func (s *Scheduler) DataThrough() float64 { return s.dataThrough }

// Current returns the item being streamed, or nil when idle.
func (s *Scheduler) Current() *model.DataItem { return s.current }

// StatusText returns the label the scheduler drives while busy.
func (s *Scheduler) StatusText() string { return s.statusText }

// AbortReason returns why the running or most recent cycle was aborted.
// It is empty when that cycle completed.
func (s *Scheduler) AbortReason() string { return s.abortReason }

// Begin starts a cycle on the queue head. callback, if non-nil, runs exactly
// once when the cycle returns to idle.
func (s *Scheduler) Begin(ctx context.Context, callback func()) error {
	if s.st.busy {
		return ErrBusy
	}
	if s.queue.Len() == 0 {
		return ErrQueueEmpty
	}

	s.st.busy = true
	s.st.aborted = false
	s.abortReason = ""
	s.elapsed = 0
	s.stats = cycleStats{}
	s.callbacks = s.callbacks[:0]
	if callback != nil {
		s.callbacks = append(s.callbacks, callback)
	}

	cycleID := logging.NewCycleID()
	cctx := logging.ContextWithCycleID(ctx, cycleID)
	cctx, s.span = s.tracer.Start(cctx, "transmission.cycle", trace.WithAttributes(
		attribute.String("antenna.id", s.antennaID),
		attribute.String("cycle.id", cycleID),
		attribute.Int("queue.length", s.queue.Len()),
	))
	s.cycleCtx = cctx

	s.metrics.CycleStarted(s.antennaID)
	s.log.Info(cctx, "transmission cycle started", logging.Int("queued", s.queue.Len()))

	if !s.startHead() {
		s.finish()
		return nil
	}
	if s.current.Size <= 0 {
		s.completeAndAdvance()
	}
	return nil
}

// AddCallback registers another end-of-cycle callback on the running cycle.
// It reports false when idle.
func (s *Scheduler) AddCallback(callback func()) bool {
	if !s.st.busy || callback == nil {
		return false
	}
	s.callbacks = append(s.callbacks, callback)
	return true
}

// Abort requests the running cycle to stop. The first reason wins. It
// reports false when there is nothing to abort.
func (s *Scheduler) Abort(ctx context.Context, reason string) bool {
	if !s.st.busy {
		return false
	}
	if s.st.aborted {
		return true
	}
	s.st.aborted = true
	s.abortReason = reason

	if s.cycleCtx != nil {
		ctx = s.cycleCtx
	}
	s.log.Warn(ctx, "transmission abort requested", logging.String("reason", reason))
	if s.span != nil {
		s.span.AddEvent("abort", trace.WithAttributes(attribute.String("reason", reason)))
	}
	if reason != "" {
		s.notifier.Notify(fmt.Sprintf("[%s]: Transmission aborted, %s", s.title, reason))
	}
	return true
}

// Step advances a running cycle by one tick of length dt. It is a no-op
// while idle.
func (s *Scheduler) Step(dt time.Duration) {
	if !s.st.busy {
		return
	}
	s.elapsed += dt

	if s.st.aborted {
		s.finish()
		return
	}
	if !s.canTransmit() {
		s.Abort(s.cycleCtx, "connection lost")
		s.finish()
		return
	}

	item := s.current
	chunk := dt.Seconds() * s.bandwidth()
	last := false
	if remaining := item.Size - s.dataThrough; chunk >= remaining-sizeTolerance*item.Size {
		chunk, last = remaining, true
	}
	s.stream.StreamData(chunk, s.destination)
	s.dataThrough += chunk
	if last {
		s.dataThrough = item.Size
	}
	s.stats.streamed += chunk
	s.metrics.DataStreamed(s.antennaID, chunk)

	s.progress = s.dataThrough / item.Size
	s.statusText = transmittingLabel(s.progress)

	if s.notifyEvery > 0 && s.elapsed >= s.notifyEvery {
		s.notifier.Notify(fmt.Sprintf("[%s]: Transmission progress: %s", s.title, percent(s.progress)))
		s.elapsed -= s.notifyEvery
	}

	if last {
		s.completeAndAdvance()
	}
}

// startHead prepares the queue head for streaming. It returns false when the
// head's subject cannot be resolved; the cycle is then aborted.
func (s *Scheduler) startHead() bool {
	s.phase = PhaseStarting
	item := s.queue.Head()
	item.Triggered = true
	s.current = item
	s.stream = nil
	s.dataThrough = 0
	s.progress = 0
	s.statusText = transmittingLabel(0)

	s.notifier.Notify(fmt.Sprintf("[%s]: Starting Transmission of %s", s.title, item.Title))

	var (
		stream TransferContext
		ok     bool
	)
	if s.resolver != nil {
		stream, ok = s.resolver.Resolve(item)
	}
	if !ok || stream == nil {
		s.Abort(s.cycleCtx, fmt.Sprintf("subject unresolved: %s", item.SubjectID))
		return false
	}

	s.stream = stream
	s.phase = PhaseStreaming
	return true
}

// completeAndAdvance delivers the finished head and moves on to the next
// item in the same tick. Zero-sized items complete without streaming.
func (s *Scheduler) completeAndAdvance() {
	for {
		s.phase = PhaseCompleting
		item := s.queue.PopHead()
		item.Transmitted = item.Size
		s.notifier.Notify(fmt.Sprintf("[%s]: Transmission of %s completed", s.title, item.Title))
		s.sink.Deliver(item, false)
		s.stats.delivered++
		s.metrics.ItemDelivered(s.antennaID, false)
		s.log.Info(s.cycleCtx, "item delivered", logging.String("item", item.ID), logging.Float64("size", item.Size))
		s.current = nil

		if s.queue.Len() == 0 || s.st.aborted {
			s.finish()
			return
		}
		if !s.startHead() {
			s.finish()
			return
		}
		if s.current.Size > 0 {
			return
		}
	}
}

// finish closes the cycle: partial credit for the head when allowed, every
// remaining item back to the source container when aborted, then idle.
func (s *Scheduler) finish() {
	ctx := s.cycleCtx
	aborted := s.st.aborted

	if aborted {
		s.phase = PhaseAborting
		if item := s.current; item != nil && s.queue.Head() == item &&
			s.dataThrough > 0 && s.dataThrough < item.Size && s.allowIncomplete(item) {
			s.phase = PhasePartialCompleting
			s.queue.PopHead()
			item.Transmitted = s.dataThrough
			s.notifier.Notify(fmt.Sprintf("[%s]: Partial transmission of %s completed", s.title, item.Title))
			s.sink.Deliver(item, true)
			s.stats.partial++
			s.metrics.ItemDelivered(s.antennaID, true)
			s.log.Info(ctx, "item partially delivered",
				logging.String("item", item.ID),
				logging.Float64("transmitted", item.Transmitted),
				logging.Float64("size", item.Size),
			)
		}

		if s.queue.Len() > 0 {
			s.phase = PhaseAborting
			s.notifier.Notify(fmt.Sprintf("[%s]: Returning unsent data.", s.title))
			for _, item := range s.queue.Drain() {
				s.container.ReturnItem(item)
				s.stats.returned++
				s.metrics.ItemReturned(s.antennaID)
			}
		}
	}

	outcome := outcomeCompleted
	if aborted {
		outcome = outcomeAborted
	}
	s.log.Info(ctx, "transmission cycle finished",
		logging.String("outcome", outcome),
		logging.String("reason", s.abortReason),
		logging.Int("delivered", s.stats.delivered),
		logging.Int("partial", s.stats.partial),
		logging.Int("returned", s.stats.returned),
		logging.Float64("streamed", s.stats.streamed),
	)
	s.metrics.CycleFinished(s.antennaID, outcome)
	if s.span != nil {
		s.span.SetAttributes(
			attribute.String("outcome", outcome),
			attribute.Int("items.delivered", s.stats.delivered),
			attribute.Int("items.partial", s.stats.partial),
			attribute.Int("items.returned", s.stats.returned),
			attribute.Float64("data.streamed", s.stats.streamed),
		)
		if aborted {
			s.span.SetStatus(codes.Error, s.abortReason)
		}
		s.span.End()
		s.span = nil
	}

	s.current = nil
	s.stream = nil
	s.elapsed = 0
	s.st.aborted = false
	s.st.busy = false
	s.statusText = statusIdle
	s.phase = PhaseIdle
	s.cycleCtx = nil

	callbacks := s.callbacks
	s.callbacks = nil
	for _, cb := range callbacks {
		cb()
	}
}

func transmittingLabel(progress float64) string {
	return fmt.Sprintf("Transmitting (%s)", percent(progress))
}

func percent(fraction float64) string {
	p := math.Floor(fraction*100 + 0.5)
	if p > 100 {
		p = 100
	}
	if p < 0 {
		p = 0
	}
	return fmt.Sprintf("%.0f%%", p)
}
