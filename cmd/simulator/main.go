package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/transmitter-sim/internal/config"
	"github.com/signalsfoundry/transmitter-sim/internal/logging"
	"github.com/signalsfoundry/transmitter-sim/internal/observability"
)

func main() {
	configPath := flag.String("config", "configs/transmitter.yaml", "Path to the simulation config")
	snapshotPath := flag.String("snapshot", "", "Snapshot file to restore from and save to (overrides persistence.snapshot_file)")
	flag.Parse()

	if err := run(*configPath, *snapshotPath); err != nil {
		fmt.Fprintf(os.Stderr, "simulator: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, snapshotPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg.Logging = logging.ConfigFromEnv(cfg.Logging)
	cfg.Tracing = observability.TracingConfigFromEnv(cfg.Tracing)
	if snapshotPath == "" {
		snapshotPath = cfg.Persistence.SnapshotFile
	}

	log := logging.New(cfg.Logging)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log, attribute.String("vessel.id", cfg.Vessel.ID))
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	s, err := newSimulation(ctx, cfg, log, simOptions{
		SnapshotFile: snapshotPath,
		Out:          os.Stdout,
	})
	if err != nil {
		return err
	}

	metricsSrv := serveMetrics(ctx, cfg.MetricsAddr, s, log)
	if cfg.HealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.HealthAddr)
		if err != nil {
			return fmt.Errorf("listen for health checks: %w", err)
		}
		log.Info(ctx, "serving gRPC health", logging.String("addr", cfg.HealthAddr))
		go func() {
			if err := s.health.Serve(lis); err != nil {
				log.Error(ctx, "health server exited", logging.Err(err))
			}
		}()
		defer s.health.Stop()
	}

	if s.watcher != nil {
		go func() {
			if err := s.watcher.Run(ctx); err != nil {
				log.Error(ctx, "multiplier watcher exited", logging.Err(err))
			}
		}()
	}

	log.Info(ctx, "starting simulation",
		logging.String("vessel", cfg.Vessel.ID),
		logging.Int("antennas", len(cfg.Antennas)),
		logging.Duration("tick", cfg.Simulation.Tick.Duration),
		logging.Duration("duration", cfg.Simulation.Duration.Duration),
		logging.String("mode", cfg.Simulation.Mode),
	)
	runErr := s.run(ctx)
	s.report()

	if err := s.save(context.Background()); err != nil {
		log.Error(ctx, "failed to save snapshot", logging.Err(err))
		if runErr == nil {
			runErr = err
		}
	}

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return runErr
}

func serveMetrics(ctx context.Context, addr string, s *simulation, log logging.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(ctx, "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(ctx, "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
