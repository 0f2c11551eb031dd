// Package device ties one monitored thermostat to its learner and its
// snapshot store. Each device runs a single worker goroutine that
// drains a buffered observation queue, so samples for a device are
// always processed in arrival order and recomputation never races a
// snapshot write.
package device

import (
	"context"

	"github.com/curve-control/thermagent/internal/logger"
	"github.com/curve-control/thermagent/internal/metrics"
	"github.com/curve-control/thermagent/internal/store"
	"github.com/curve-control/thermagent/internal/thermal"
)

// DefaultQueueSize bounds the per-device observation queue. Samples
// arrive every few minutes, so a small buffer absorbs startup bursts.
const DefaultQueueSize = 64

// Device owns the learning state of a single thermostat.
type Device struct {
	ID string

	learner *thermal.Learner
	store   *store.Store
	queue   chan thermal.Observation
}

// New builds a device around an existing learner and store.
func New(id string, l *thermal.Learner, s *store.Store) *Device {
	return &Device{
		ID:      id,
		learner: l,
		store:   s,
		queue:   make(chan thermal.Observation, DefaultQueueSize),
	}
}

// Setup restores persisted state and recomputes rates from the restored
// history. A corrupt or missing snapshot degrades to an empty learner.
func (d *Device) Setup() error {
	snap, err := d.store.Load()
	if err != nil {
		logger.Warn("device %s: starting with empty state: %v", d.ID, err)
	}
	d.learner.Restore(snap.History, snap.Rates)
	d.learner.Recalculate()
	if len(snap.History) > 0 {
		logger.Info("device %s: restored %d data points from %s", d.ID, len(snap.History), d.store.Path())
	}
	return d.save()
}

// Enqueue hands a raw observation to the worker without blocking. It
// reports false when the queue is full and the sample was dropped.
func (d *Device) Enqueue(obs thermal.Observation) bool {
	select {
	case d.queue <- obs:
		return true
	default:
		metrics.EventsDroppedTotal.WithLabelValues(d.ID).Inc()
		logger.Warn("device %s: observation queue full, dropping sample", d.ID)
		return false
	}
}

// Run drains the observation queue until ctx is cancelled, then writes
// a final snapshot.
func (d *Device) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			if err := d.save(); err != nil {
				logger.Error("device %s: final snapshot failed: %v", d.ID, err)
			}
			return ctx.Err()
		case obs := <-d.queue:
			d.process(obs)
		}
	}
}

func (d *Device) process(obs thermal.Observation) {
	res := d.learner.Observe(obs)
	metrics.ObservationsTotal.WithLabelValues(d.ID, res.Outcome.String()).Inc()
	logger.Debug("device %s: observation %.1fF action=%s outcome=%s", d.ID, obs.Temperature, obs.HVACAction, res.Outcome)
	if res.Recalculated {
		metrics.RecalculationsTotal.WithLabelValues(d.ID).Inc()
		if err := d.save(); err != nil {
			logger.Error("device %s: snapshot after recalculation failed: %v", d.ID, err)
		}
	}
}

func (d *Device) save() error {
	history, rates := d.learner.Export()
	err := d.store.Save(store.Snapshot{History: history, Rates: rates})
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.StoreSavesTotal.WithLabelValues(d.ID, status).Inc()
	d.publishSummary()
	return err
}

func (d *Device) publishSummary() {
	sum := d.learner.Summary()
	metrics.ObserveSummary(d.ID, sum.HeatingSamples, sum.CoolingSamples, sum.NaturalSamples,
		sum.HeatingRate, sum.CoolingRate, sum.NaturalRate)
}

// Rates reports the current learned estimates.
func (d *Device) Rates() thermal.RateSnapshot { return d.learner.Rates() }

// RatesWithFallback reports estimates with defaults substituted for
// regimes that have not been learned yet.
func (d *Device) RatesWithFallback() (heating, cooling, natural float64) {
	return d.learner.RatesWithFallback()
}

// HasSufficientData reports whether enough regimes have reached the
// sample gate to trust the learned rates.
func (d *Device) HasSufficientData() bool { return d.learner.HasSufficientData() }

// Summary reports the learning state for diagnostics.
func (d *Device) Summary() thermal.Summary { return d.learner.Summary() }

// CurrentTemperature reports the temperature of the most recent valid
// sample, when one exists.
func (d *Device) CurrentTemperature() (float64, bool) { return d.learner.CurrentTemperature() }

