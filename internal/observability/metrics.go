package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalsfoundry/transmitter-sim/core"
)

// TransmitterCollector bundles Prometheus metrics for transmission cycles
// and implements core.MetricsRecorder.
type TransmitterCollector struct {
	gatherer prometheus.Gatherer

	CyclesStarted  *prometheus.CounterVec
	Cycles         *prometheus.CounterVec
	ItemsDelivered *prometheus.CounterVec
	ItemsReturned  *prometheus.CounterVec
	Streamed       *prometheus.CounterVec
	Shortfalls     *prometheus.CounterVec

	Busy      *prometheus.GaugeVec
	Usable    *prometheus.GaugeVec
	Progress  *prometheus.GaugeVec
	QueueLen  *prometheus.GaugeVec
	Bandwidth *prometheus.GaugeVec
}

var _ core.MetricsRecorder = (*TransmitterCollector)(nil)

// NewTransmitterCollector registers transmitter metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewTransmitterCollector(reg prometheus.Registerer) (*TransmitterCollector, error) {
	reg, gatherer := gathererFor(reg)
	c := &TransmitterCollector{gatherer: gatherer}

	counters := []struct {
		dst    **prometheus.CounterVec
		name   string
		help   string
		labels []string
	}{
		{&c.CyclesStarted, "transmitter_cycles_started_total", "Transmission cycles started.", []string{"antenna"}},
		{&c.Cycles, "transmitter_cycles_total", "Transmission cycles finished, labeled by outcome.", []string{"antenna", "outcome"}},
		{&c.ItemsDelivered, "transmitter_items_delivered_total", "Data items handed to the completion sink, labeled full or partial.", []string{"antenna", "kind"}},
		{&c.ItemsReturned, "transmitter_items_returned_total", "Data items returned to the source container.", []string{"antenna"}},
		{&c.Streamed, "transmitter_data_streamed_mits_total", "Data streamed, in Mits.", []string{"antenna"}},
		{&c.Shortfalls, "transmitter_resource_shortfalls_total", "Power draws the pool could not satisfy, labeled by draw kind.", []string{"antenna", "kind"}},
	}
	for _, m := range counters {
		vec, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: m.name,
			Help: m.help,
		}, m.labels), m.name)
		if err != nil {
			return nil, err
		}
		*m.dst = vec
	}

	gauges := []struct {
		dst  **prometheus.GaugeVec
		name string
		help string
	}{
		{&c.Busy, "transmitter_busy", "1 while a transmission cycle runs."},
		{&c.Usable, "transmitter_usable", "1 while the antenna is enabled and deployed."},
		{&c.Progress, "transmitter_progress_ratio", "Fraction of the current item streamed."},
		{&c.QueueLen, "transmitter_queue_length", "Items waiting in the transmission queue."},
		{&c.Bandwidth, "transmitter_effective_bandwidth", "Data rate after multipliers, in Mits per second."},
	}
	for _, m := range gauges {
		vec, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: m.name,
			Help: m.help,
		}, []string{"antenna"}), m.name)
		if err != nil {
			return nil, err
		}
		*m.dst = vec
	}

	return c, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *TransmitterCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *TransmitterCollector) Handler() http.Handler {
	gatherer := c.Gatherer()
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func (c *TransmitterCollector) CycleStarted(antenna string) {
	if c == nil {
		return
	}
	c.CyclesStarted.WithLabelValues(antenna).Inc()
}

func (c *TransmitterCollector) CycleFinished(antenna, outcome string) {
	if c == nil {
		return
	}
	c.Cycles.WithLabelValues(antenna, outcome).Inc()
}

func (c *TransmitterCollector) ItemDelivered(antenna string, partial bool) {
	if c == nil {
		return
	}
	kind := "full"
	if partial {
		kind = "partial"
	}
	c.ItemsDelivered.WithLabelValues(antenna, kind).Inc()
}

func (c *TransmitterCollector) ItemReturned(antenna string) {
	if c == nil {
		return
	}
	c.ItemsReturned.WithLabelValues(antenna).Inc()
}

func (c *TransmitterCollector) DataStreamed(antenna string, amount float64) {
	if c == nil || amount <= 0 {
		return
	}
	c.Streamed.WithLabelValues(antenna).Add(amount)
}

func (c *TransmitterCollector) ResourceShortfall(antenna, kind string) {
	if c == nil {
		return
	}
	c.Shortfalls.WithLabelValues(antenna, kind).Inc()
}

// ObserveSnapshot refreshes the per-antenna gauges.
func (c *TransmitterCollector) ObserveSnapshot(s core.Snapshot) {
	if c == nil {
		return
	}
	c.Busy.WithLabelValues(s.AntennaID).Set(boolToFloat(s.Busy))
	c.Usable.WithLabelValues(s.AntennaID).Set(boolToFloat(s.Usable))
	c.Progress.WithLabelValues(s.AntennaID).Set(s.Progress)
	c.QueueLen.WithLabelValues(s.AntennaID).Set(float64(s.QueueLength))
	c.Bandwidth.WithLabelValues(s.AntennaID).Set(s.EffectiveBandwidth)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
