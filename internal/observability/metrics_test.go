package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/transmitter-sim/core"
)

func TestTransmitterCollectorRecordsEngineEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewTransmitterCollector(reg)
	if err != nil {
		t.Fatalf("NewTransmitterCollector: %v", err)
	}

	c.CycleStarted("hg")
	c.CycleFinished("hg", "aborted")
	c.ItemDelivered("hg", false)
	c.ItemDelivered("hg", true)
	c.ItemDelivered("hg", true)
	c.ItemReturned("hg")
	c.DataStreamed("hg", 12.5)
	c.DataStreamed("hg", -1)
	c.ResourceShortfall("hg", "transmit")

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"cycles started", testutil.ToFloat64(c.CyclesStarted.WithLabelValues("hg")), 1},
		{"cycles aborted", testutil.ToFloat64(c.Cycles.WithLabelValues("hg", "aborted")), 1},
		{"items full", testutil.ToFloat64(c.ItemsDelivered.WithLabelValues("hg", "full")), 1},
		{"items partial", testutil.ToFloat64(c.ItemsDelivered.WithLabelValues("hg", "partial")), 2},
		{"items returned", testutil.ToFloat64(c.ItemsReturned.WithLabelValues("hg")), 1},
		{"data streamed", testutil.ToFloat64(c.Streamed.WithLabelValues("hg")), 12.5},
		{"shortfalls", testutil.ToFloat64(c.Shortfalls.WithLabelValues("hg", "transmit")), 1},
	}
	for _, ch := range checks {
		if ch.got != ch.want {
			t.Errorf("%s = %v, want %v", ch.name, ch.got, ch.want)
		}
	}
}

func TestTransmitterCollectorSnapshotGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewTransmitterCollector(reg)
	if err != nil {
		t.Fatalf("NewTransmitterCollector: %v", err)
	}
	c.ObserveSnapshot(core.Snapshot{
		AntennaID:          "omni",
		Busy:               true,
		Usable:             true,
		Progress:           0.4,
		QueueLength:        3,
		EffectiveBandwidth: 20,
	})

	if got := testutil.ToFloat64(c.Busy.WithLabelValues("omni")); got != 1 {
		t.Fatalf("busy = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.Progress.WithLabelValues("omni")); got != 0.4 {
		t.Fatalf("progress = %v, want 0.4", got)
	}
	if got := testutil.ToFloat64(c.QueueLen.WithLabelValues("omni")); got != 3 {
		t.Fatalf("queue = %v, want 3", got)
	}
	if got := testutil.ToFloat64(c.Bandwidth.WithLabelValues("omni")); got != 20 {
		t.Fatalf("bandwidth = %v, want 20", got)
	}
}

func TestCollectorsShareRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewTransmitterCollector(reg)
	if err != nil {
		t.Fatalf("first collector: %v", err)
	}
	b, err := NewTransmitterCollector(reg)
	if err != nil {
		t.Fatalf("second collector: %v", err)
	}
	a.CycleStarted("x")
	b.CycleStarted("x")
	if got := testutil.ToFloat64(a.CyclesStarted.WithLabelValues("x")); got != 2 {
		t.Fatalf("shared counter = %v, want 2", got)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *TransmitterCollector
	c.CycleStarted("x")
	c.ObserveSnapshot(core.Snapshot{AntennaID: "x"})
	if c.Gatherer() != nil {
		t.Fatalf("nil collector should have no gatherer")
	}
}

func TestMetricsHandlerExposesTransmitterMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewTransmitterCollector(reg)
	if err != nil {
		t.Fatalf("NewTransmitterCollector: %v", err)
	}
	c.CycleStarted("hg")
	c.CycleFinished("hg", "completed")
	c.ObserveSnapshot(core.Snapshot{AntennaID: "hg", QueueLength: 7})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"transmitter_cycles_started_total",
		`transmitter_cycles_total{antenna="hg",outcome="completed"} 1`,
		`transmitter_queue_length{antenna="hg"} 7`,
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output:\n%s", metric, body)
		}
	}
}

func TestUnaryInterceptorRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewRPCCollector(reg)
	if err != nil {
		t.Fatalf("NewRPCCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	_, err = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req any) (any, error) {
		time.Sleep(time.Millisecond)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("interceptor handler returned error: %v", err)
	}

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("Health", "Check", "OK")); got != 1 {
		t.Fatalf("grpc_server_requests_total = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "grpc_server_request_duration_seconds", map[string]string{
		"service": "Health",
		"method":  "Check",
	}); count != 1 {
		t.Fatalf("grpc_server_request_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestUnaryInterceptorRecordsErrorCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewRPCCollector(reg)
	if err != nil {
		t.Fatalf("NewRPCCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	_, _ = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req any) (any, error) {
		return nil, status.Error(codes.NotFound, "unknown service")
	})

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("Health", "Check", "NotFound")); got != 1 {
		t.Fatalf("error label = %v, want 1", got)
	}
}

func TestSplitMethod(t *testing.T) {
	tests := []struct {
		in, service, method string
	}{
		{"/grpc.health.v1.Health/Check", "Health", "Check"},
		{"", "unknown", "unknown"},
		{"nomethod", "unknown", "unknown"},
		{"/Svc/", "Svc", "unknown"},
	}
	for _, tt := range tests {
		s, m := SplitMethod(tt.in)
		if s != tt.service || m != tt.method {
			t.Errorf("SplitMethod(%q) = %q/%q, want %q/%q", tt.in, s, m, tt.service, tt.method)
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
