package core

import (
	"github.com/signalsfoundry/transmitter-sim/model"
)

// ResourcePool is the vessel-wide store the antenna draws from.
//
// TryConsume requests amount and reports the fraction of it that the pool
// supplied, in [0,1]. Below threshold, reason explains the shortfall; the
// pool may still have drawn what it held.
type ResourcePool interface {
	TryConsume(amount, threshold float64) (fraction float64, reason string)
}

// DeploymentReporter exposes the extension of one linked deployment
// mechanism: 0 is fully stowed, 1 is fully extended.
type DeploymentReporter interface {
	DeployScalar() float64
}

// LinkChecker reports whether the link budget currently allows contact.
type LinkChecker interface {
	LinkOK() bool
}

// LinkFunc adapts a plain function to LinkChecker.
type LinkFunc func() bool

// LinkOK implements LinkChecker.
func (f LinkFunc) LinkOK() bool { return f() }

// TransferContext receives streamed data for one item. Streaming is fire and
// forget; nothing it does feeds back into the engine.
type TransferContext interface {
	StreamData(amount float64, destination string)
}

// SubjectResolver looks up the transfer context for an item's subject.
type SubjectResolver interface {
	Resolve(item *model.DataItem) (TransferContext, bool)
}

// CompletionSink takes ownership of delivered items.
type CompletionSink interface {
	Deliver(item *model.DataItem, partial bool)
}

// SourceContainer takes back items whose transfer was aborted.
type SourceContainer interface {
	ReturnItem(item *model.DataItem)
}

// Notifier surfaces user-visible messages. Delivery is best effort.
type Notifier interface {
	Notify(msg string)
}

// NotifierFunc adapts a plain function to Notifier.
type NotifierFunc func(msg string)

// Notify implements Notifier.
func (f NotifierFunc) Notify(msg string) { f(msg) }

type nopNotifier struct{}

func (nopNotifier) Notify(string) {}

// MetricsRecorder receives engine events for export. All methods must be
// cheap; they run inside the tick.
type MetricsRecorder interface {
	CycleStarted(antenna string)
	CycleFinished(antenna, outcome string)
	ItemDelivered(antenna string, partial bool)
	ItemReturned(antenna string)
	DataStreamed(antenna string, amount float64)
	ResourceShortfall(antenna, kind string)
	ObserveSnapshot(s Snapshot)
}

type nopMetrics struct{}

func (nopMetrics) CycleStarted(string)              {}
func (nopMetrics) CycleFinished(string, string)     {}
func (nopMetrics) ItemDelivered(string, bool)       {}
func (nopMetrics) ItemReturned(string)              {}
func (nopMetrics) DataStreamed(string, float64)     {}
func (nopMetrics) ResourceShortfall(string, string) {}
func (nopMetrics) ObserveSnapshot(Snapshot)         {}
