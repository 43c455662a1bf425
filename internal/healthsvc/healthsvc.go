// Package healthsvc exposes antenna usability over the standard gRPC health
// checking protocol. Each antenna is a service named "transmitter.<id>";
// the empty service name reports the simulator process itself.
package healthsvc

import (
	"context"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/signalsfoundry/transmitter-sim/internal/logging"
	"github.com/signalsfoundry/transmitter-sim/internal/observability"
	sim "github.com/signalsfoundry/transmitter-sim/internal/sim/state"
)

// ServiceName returns the health service name of an antenna.
func ServiceName(antennaID string) string {
	return "transmitter." + antennaID
}

// Service publishes telemetry-derived health statuses.
type Service struct {
	health    *health.Server
	server    *grpc.Server
	telemetry *sim.TelemetryState
	log       logging.Logger

	last map[string]healthpb.HealthCheckResponse_ServingStatus
}

// New builds the gRPC server with tracing and RPC metrics. collector may be nil.
func New(telemetry *sim.TelemetryState, collector *observability.RPCCollector, log logging.Logger) *Service {
	if log == nil {
		log = logging.Noop()
	}
	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			RequestIDUnaryServerInterceptor(log),
			collector.UnaryServerInterceptor(),
		),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(server, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	return &Service{
		health:    hs,
		server:    server,
		telemetry: telemetry,
		log:       log,
		last:      make(map[string]healthpb.HealthCheckResponse_ServingStatus),
	}
}

// Sync copies the usability of every known antenna into the health server.
// It is called from the tick loop after telemetry has been updated.
func (s *Service) Sync(ctx context.Context) {
	for _, at := range s.telemetry.ListAll() {
		status := healthpb.HealthCheckResponse_NOT_SERVING
		if at.Usable {
			status = healthpb.HealthCheckResponse_SERVING
		}
		name := ServiceName(at.AntennaID)
		if prev, ok := s.last[name]; ok && prev == status {
			continue
		}
		s.last[name] = status
		s.health.SetServingStatus(name, status)
		s.log.Debug(ctx, "antenna health changed",
			logging.String("antenna", at.AntennaID),
			logging.String("status", status.String()),
		)
	}
}

// Serve accepts connections on lis until Stop is called.
func (s *Service) Serve(lis net.Listener) error {
	return s.server.Serve(lis)
}

// Stop marks every service NOT_SERVING and drains the server.
func (s *Service) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
