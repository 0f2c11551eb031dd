package testutil

import (
	"context"
	"sync"

	"github.com/curve-control/thermagent/internal/thermal"
)

// FakeRateProvider is a reusable fake implementing ports.RateProvider
// and ports.TemperatureSource. Put ONLY what multiple test packages
// need here.
type FakeRateProvider struct {
	Heating *float64
	Cooling *float64
	Natural *float64

	FallbackHeating float64
	FallbackCooling float64
	FallbackNatural float64

	Sufficient  bool
	SummaryData thermal.Summary

	Temp    float64
	TempSet bool
}

func NewFakeRateProvider() *FakeRateProvider {
	return &FakeRateProvider{
		FallbackHeating: thermal.DefaultNaturalRate30Min * thermal.DefaultHeatingFallbackMultiplier,
		FallbackCooling: thermal.DefaultCoolingRate30Min,
		FallbackNatural: thermal.DefaultNaturalRate30Min,
		Temp:            72,
		TempSet:         true,
	}
}

func (f *FakeRateProvider) Rates() thermal.RateSnapshot {
	return thermal.RateSnapshot{Heating: f.Heating, Cooling: f.Cooling, Natural: f.Natural}
}

func (f *FakeRateProvider) RatesWithFallback() (float64, float64, float64) {
	heating, cooling, natural := f.FallbackHeating, f.FallbackCooling, f.FallbackNatural
	if f.Heating != nil {
		heating = *f.Heating
	}
	if f.Cooling != nil {
		cooling = *f.Cooling
	}
	if f.Natural != nil {
		natural = *f.Natural
	}
	return heating, cooling, natural
}

func (f *FakeRateProvider) HasSufficientData() bool { return f.Sufficient }

func (f *FakeRateProvider) Summary() thermal.Summary { return f.SummaryData }

func (f *FakeRateProvider) CurrentTemperature() (float64, bool) { return f.Temp, f.TempSet }

// FakeActuator records setpoint writes.
type FakeActuator struct {
	mu    sync.Mutex
	Calls []float64
	Err   error
}

func (f *FakeActuator) SetTemperature(_ context.Context, setpoint float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Calls = append(f.Calls, setpoint)
	return nil
}

func (f *FakeActuator) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}

func (f *FakeActuator) LastCall() (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Calls) == 0 {
		return 0, false
	}
	return f.Calls[len(f.Calls)-1], true
}

// FakeObservationSink records enqueued observations.
type FakeObservationSink struct {
	mu       sync.Mutex
	Observed []thermal.Observation
	Full     bool
}

func (f *FakeObservationSink) Enqueue(obs thermal.Observation) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Full {
		return false
	}
	f.Observed = append(f.Observed, obs)
	return true
}

func (f *FakeObservationSink) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Observed)
}

func (f *FakeObservationSink) Last() (thermal.Observation, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Observed) == 0 {
		return thermal.Observation{}, false
	}
	return f.Observed[len(f.Observed)-1], true
}

// FakeSetpointProvider implements ports.SetpointProvider.
type FakeSetpointProvider struct {
	Setpoint float64
	Known    bool
}

func (f *FakeSetpointProvider) CurrentSetpoint() (float64, bool) {
	return f.Setpoint, f.Known
}
