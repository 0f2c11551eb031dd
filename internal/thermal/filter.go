package thermal

import (
	"math"
	"time"
)

// Filter gate defaults. Intervals shorter than 20 minutes are dominated
// by sensor noise and quantization; longer than 60 minutes risk spanning
// several mode changes. Tiny deltas are noise, implausibly large ones are
// sensor glitches or missed transitions.
const (
	DefaultMinIntervalMinutes = 20.0
	DefaultMaxIntervalMinutes = 60.0
	DefaultMinTempChange      = 0.5
	DefaultMaxTempChange      = 10.0
)

// FilterParams are the acceptance bounds for a measurement interval.
type FilterParams struct {
	MinIntervalMinutes float64
	MaxIntervalMinutes float64
	MinTempChange      float64
	MaxTempChange      float64
}

func DefaultFilterParams() FilterParams {
	return FilterParams{
		MinIntervalMinutes: DefaultMinIntervalMinutes,
		MaxIntervalMinutes: DefaultMaxIntervalMinutes,
		MinTempChange:      DefaultMinTempChange,
		MaxTempChange:      DefaultMaxTempChange,
	}
}

func (p *FilterParams) Validate() error {
	if p.MinIntervalMinutes <= 0 || p.MinIntervalMinutes > p.MaxIntervalMinutes {
		return ErrInvalidIntervalBounds
	}
	if p.MinTempChange <= 0 || p.MinTempChange > p.MaxTempChange {
		return ErrInvalidChangeBounds
	}
	return nil
}

// reference is the most recent accepted observation, the start of the
// next candidate interval. Exactly one per monitored device.
type reference struct {
	timestamp   time.Time
	temperature float64
	action      HVACAction
}

// observationFilter pairs each observation with the previous one and
// decides whether the pair forms a usable measurement interval. Calls
// must be serialized per device: the reference slide is sequentially
// dependent.
type observationFilter struct {
	params FilterParams
	ref    *reference
}

// validSample reports whether the observation carries a usable action
// and temperature. Malformed samples are non-fatal: they are discarded
// without replacing the reference.
func validSample(obs Observation) bool {
	return obs.HVACAction.Valid() && !math.IsNaN(obs.Temperature) && !math.IsInf(obs.Temperature, 0)
}

// observe evaluates one observation. The returned point carries the
// reference's action: that is the action in effect while the interval
// elapsed, not the one reported at its end.
//
// Regardless of acceptance the observation becomes the new reference,
// except for malformed samples, which leave the reference untouched.
func (f *observationFilter) observe(obs Observation) (DataPoint, bool) {
	if !validSample(obs) {
		return DataPoint{}, false
	}

	prev := f.ref
	f.ref = &reference{
		timestamp:   obs.Timestamp,
		temperature: obs.Temperature,
		action:      obs.HVACAction,
	}
	if prev == nil {
		// First sample bootstraps state only.
		return DataPoint{}, false
	}

	interval := obs.Timestamp.Sub(prev.timestamp).Minutes()
	if interval < f.params.MinIntervalMinutes || interval > f.params.MaxIntervalMinutes {
		return DataPoint{}, false
	}
	change := obs.Temperature - prev.temperature
	if math.Abs(change) < f.params.MinTempChange || math.Abs(change) > f.params.MaxTempChange {
		return DataPoint{}, false
	}

	return DataPoint{
		Timestamp:       obs.Timestamp,
		TempStart:       prev.temperature,
		TempEnd:         obs.Temperature,
		HVACAction:      prev.action,
		IntervalMinutes: interval,
	}, true
}

// current returns the reference temperature, if one has been recorded.
func (f *observationFilter) current() (float64, bool) {
	if f.ref == nil {
		return 0, false
	}
	return f.ref.temperature, true
}
