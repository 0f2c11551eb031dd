package ports

import (
	"context"

	"github.com/curve-control/thermagent/internal/thermal"
)

// RateProvider is the read surface of the learning engine used by
// controllers and the schedule coordinator. Estimates are owned by the
// learner; consumers only ever see copies.
type RateProvider interface {
	Rates() thermal.RateSnapshot
	RatesWithFallback() (heating, cooling, natural float64)
	HasSufficientData() bool
	Summary() thermal.Summary
}

// TemperatureSource reports the latest known temperature of the
// monitored device, when one has been observed.
type TemperatureSource interface {
	CurrentTemperature() (float64, bool)
}

// ObservationSink receives raw device samples. Enqueue must not block;
// it reports whether the sample was accepted.
type ObservationSink interface {
	Enqueue(obs thermal.Observation) bool
}

// Actuator applies a recommended setpoint to the physical device with
// idempotent set-temperature semantics.
type Actuator interface {
	SetTemperature(ctx context.Context, setpoint float64) error
}

// SetpointProvider exposes the current recommended setpoint derived
// from the last optimization result.
type SetpointProvider interface {
	CurrentSetpoint() (float64, bool)
}
