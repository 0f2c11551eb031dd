package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Learning pipeline metrics
var (
	// ObservationsTotal tracks processed observations by outcome
	// (recorded, bootstrapped, invalid_sample, out_of_bounds, contradictory).
	ObservationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thermagent_observations_total",
			Help: "Total number of processed thermostat observations by outcome",
		},
		[]string{"device", "outcome"},
	)

	// EventsDroppedTotal tracks observations dropped on a full device queue
	EventsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thermagent_events_dropped_total",
			Help: "Total number of observations dropped because the device queue was full",
		},
		[]string{"device"},
	)

	// RecalculationsTotal tracks rate recomputations
	RecalculationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thermagent_recalculations_total",
			Help: "Total number of thermal rate recomputations",
		},
		[]string{"device"},
	)

	// RegimeSamples tracks trailing-window sample counts per regime
	RegimeSamples = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "thermagent_regime_samples",
			Help: "Number of samples per regime within the trailing window",
		},
		[]string{"device", "regime"},
	)

	// RateEstimate tracks the current learned rate per regime
	RateEstimate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "thermagent_rate_per_30min",
			Help: "Current learned thermal rate per regime in degrees F per 30 minutes",
		},
		[]string{"device", "regime"},
	)
)

// Persistence metrics
var (
	// StoreSavesTotal tracks rate-store snapshot writes
	StoreSavesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thermagent_store_saves_total",
			Help: "Total number of rate store save attempts",
		},
		[]string{"device", "status"},
	)
)

// Optimizer metrics
var (
	// OptimizerRequestsTotal tracks schedule requests by result
	OptimizerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thermagent_optimizer_requests_total",
			Help: "Total number of schedule optimization requests",
		},
		[]string{"status"},
	)

	// OptimizerRequestDuration tracks request latency
	OptimizerRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "thermagent_optimizer_request_duration_seconds",
			Help:    "Duration of schedule optimization requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// SetpointWritesTotal tracks actuator setpoint writes
	SetpointWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thermagent_setpoint_writes_total",
			Help: "Total number of setpoint writes by result (written, skipped, error)",
		},
		[]string{"status"},
	)
)

// ObserveSummary publishes per-regime gauges from a learning summary.
func ObserveSummary(device string, heatingSamples, coolingSamples, naturalSamples int, heating, cooling, natural *float64) {
	RegimeSamples.WithLabelValues(device, "heating").Set(float64(heatingSamples))
	RegimeSamples.WithLabelValues(device, "cooling").Set(float64(coolingSamples))
	RegimeSamples.WithLabelValues(device, "natural").Set(float64(naturalSamples))
	if heating != nil {
		RateEstimate.WithLabelValues(device, "heating").Set(*heating)
	}
	if cooling != nil {
		RateEstimate.WithLabelValues(device, "cooling").Set(*cooling)
	}
	if natural != nil {
		RateEstimate.WithLabelValues(device, "natural").Set(*natural)
	}
}
