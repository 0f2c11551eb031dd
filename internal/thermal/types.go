package thermal

import (
	"fmt"
	"time"
)

// HVACAction is an integer enum for the action a thermostat reports
// it is currently performing.
type HVACAction int

const (
	ActionUnknown HVACAction = iota
	ActionHeating
	ActionCooling
	ActionIdle
	ActionOff
)

func (a HVACAction) Valid() bool {
	return a == ActionHeating || a == ActionCooling || a == ActionIdle || a == ActionOff
}

func (a HVACAction) String() string {
	switch a {
	case ActionHeating:
		return "heating"
	case ActionCooling:
		return "cooling"
	case ActionIdle:
		return "idle"
	case ActionOff:
		return "off"
	default:
		return "unknown"
	}
}

// ParseHVACAction maps the wire form ("heating", "cooling", ...) to the enum.
func ParseHVACAction(s string) (HVACAction, error) {
	switch s {
	case "heating":
		return ActionHeating, nil
	case "cooling":
		return ActionCooling, nil
	case "idle":
		return ActionIdle, nil
	case "off":
		return ActionOff, nil
	default:
		return ActionUnknown, fmt.Errorf("invalid hvac action: %q", s)
	}
}

// Regime classifies the thermal behaviour measured over an interval.
type Regime int

const (
	RegimeUnknown Regime = iota
	RegimeHeating
	RegimeCooling
	RegimeNatural
)

func (r Regime) String() string {
	switch r {
	case RegimeHeating:
		return "heating"
	case RegimeCooling:
		return "cooling"
	case RegimeNatural:
		return "natural"
	default:
		return "unknown"
	}
}

// Observation is a single raw sample from the monitored thermostat.
// Observations are consumed immediately and never stored.
type Observation struct {
	Timestamp   time.Time
	Temperature float64 // °F
	HVACAction  HVACAction
}

// DataPoint is one valid measurement interval. Points are immutable after
// creation; they leave the system only through ring-buffer eviction.
type DataPoint struct {
	Timestamp       time.Time
	TempStart       float64
	TempEnd         float64
	HVACAction      HVACAction
	IntervalMinutes float64
}

// TempChange is the signed temperature delta over the interval.
func (p DataPoint) TempChange() float64 {
	return p.TempEnd - p.TempStart
}

// RatePer30Min normalizes the temperature change to a 30-minute period,
// the common unit for comparing heating, cooling and natural drift.
func (p DataPoint) RatePer30Min() float64 {
	if p.IntervalMinutes <= 0 {
		return 0
	}
	return p.TempChange() / p.IntervalMinutes * 30
}

// RateSnapshot is a read-only copy of the learner's current estimates.
// A nil rate means "not yet confidently known", which is distinct from zero.
type RateSnapshot struct {
	Heating         *float64
	Cooling         *float64
	Natural         *float64
	LastCalculation time.Time
}

// Summary describes the state of the collected data, suitable for
// telemetry surfaces.
type Summary struct {
	TotalDataPoints   int        `json:"total_data_points"`
	RecentDataPoints  int        `json:"recent_data_points"`
	HeatingSamples    int        `json:"heating_samples"`
	CoolingSamples    int        `json:"cooling_samples"`
	NaturalSamples    int        `json:"natural_samples"`
	HeatingRate       *float64   `json:"heating_rate"`
	CoolingRate       *float64   `json:"cooling_rate"`
	NaturalRate       *float64   `json:"natural_rate"`
	LastCalculation   *time.Time `json:"last_calculation"`
	HasSufficientData bool       `json:"has_sufficient_data"`
}
