package core

import (
	"context"
	"fmt"
	"time"

	"github.com/signalsfoundry/transmitter-sim/internal/logging"
)

// DefaultSatisfactionThreshold is the fraction of a draw the pool must
// supply for the draw to count as satisfied.
const DefaultSatisfactionThreshold = 0.99

const (
	shortfallTelemetry = "telemetry"
	shortfallTransmit  = "transmit"
)

// drawRates supplies the per-second draws after multipliers are applied.
type drawRates interface {
	transmitDraw() float64
	telemetryDraw() float64
}

// ResourceAccountant negotiates the antenna's per-tick power draw with the
// vessel's resource pool.
//
// Telemetry draw keeps the antenna alive and its shortfall shuts the antenna
// down. Transmit draw is layered on top while streaming and its shortfall
// only aborts the transfer.
type ResourceAccountant struct {
	st        *antennaState
	tracker   *DeploymentTracker
	scheduler *Scheduler
	pool      ResourcePool
	rates     drawRates
	threshold float64

	antennaID string
	title     string
	notifier  Notifier
	metrics   MetricsRecorder
	log       logging.Logger
}

// ProcessPower runs one tick of accounting over dt.
func (a *ResourceAccountant) ProcessPower(ctx context.Context, dt time.Duration) {
	if !a.tracker.Usable() {
		if a.st.busy {
			a.scheduler.Abort(ctx, "antenna disabled")
		}
		return
	}

	seconds := dt.Seconds()
	aborting := false
	if a.st.busy {
		if ok, reason := a.draw(a.rates.transmitDraw() * seconds); !ok {
			a.metrics.ResourceShortfall(a.antennaID, shortfallTransmit)
			a.log.Warn(ctx, "transmit draw not satisfied", logging.String("reason", reason))
			a.scheduler.Abort(ctx, reason)
			aborting = true
		}
	}
	if !a.st.busy || aborting {
		if ok, reason := a.draw(a.rates.telemetryDraw() * seconds); !ok {
			a.metrics.ResourceShortfall(a.antennaID, shortfallTelemetry)
			a.st.enabled = false
			a.log.Warn(ctx, "telemetry draw not satisfied; antenna shut down", logging.String("reason", reason))
			a.notifier.Notify(fmt.Sprintf("[%s]: Antenna shutting down, %s", a.title, reason))
		}
	}
}

// draw requests amount from the pool. A draw fails only when the supplied
// fraction is strictly below the threshold.
func (a *ResourceAccountant) draw(amount float64) (bool, string) {
	if a.pool == nil {
		return true, ""
	}
	fraction, reason := a.pool.TryConsume(amount, a.threshold)
	if fraction < a.threshold {
		if reason == "" {
			reason = "insufficient resources"
		}
		return false, reason
	}
	return true, ""
}
