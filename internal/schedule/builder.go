// Package schedule builds optimizer requests from user preferences and
// learned rates, and maps optimization results back to a current
// recommended setpoint.
package schedule

import (
	"fmt"
	"time"

	"github.com/curve-control/thermagent/internal/optimizer"
)

const (
	SlotsPerDay = 48 // fixed 30-minute scheduling resolution
	SlotMinutes = 30

	// DeadbandOffset is the comfort half-width applied in both the home
	// and away windows.
	DeadbandOffset = 1.4

	// defaultAwaySlot is 08:00, used when a clock time fails to parse.
	defaultAwaySlot = 16
)

// savings tier → temperature offset. Unrecognized tiers get the medium
// offset.
const (
	offsetLow    = 2
	offsetMedium = 6
	offsetHigh   = 12
)

// SavingsOffset maps a three-level savings tier to its away-window
// temperature offset in °F.
func SavingsOffset(level int) float64 {
	switch level {
	case 1:
		return offsetLow
	case 2:
		return offsetMedium
	case 3:
		return offsetHigh
	default:
		return offsetMedium
	}
}

// ClockToSlot converts "HH:MM" to a 30-minute slot index (0-47).
// Unparseable input falls back to 08:00.
func ClockToSlot(clock string) int {
	var hour, minute int
	if _, err := fmt.Sscanf(clock, "%d:%d", &hour, &minute); err != nil {
		return defaultAwaySlot
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return defaultAwaySlot
	}
	return (hour*60 + minute) / SlotMinutes
}

// SlotIndex returns the slot covering the given wall-clock time.
func SlotIndex(t time.Time) int {
	return t.Hour()*2 + t.Minute()/SlotMinutes
}

// Preferences are the user's comfort settings sent to the optimizer.
type Preferences struct {
	HomeSize        int
	BaseTemperature float64
	Location        int
	TimeAway        string
	TimeHome        string
	SavingsLevel    int
}

// Build constructs the 48-slot comfort band for the preferences. Slots
// within the away window (inclusive on both ends) widen the band by the
// savings offset plus the deadband; home slots use the deadband only.
func Build(p Preferences) optimizer.TemperatureSchedule {
	awaySlot := ClockToSlot(p.TimeAway)
	homeSlot := ClockToSlot(p.TimeHome)
	offset := SavingsOffset(p.SavingsLevel)

	high := make([]float64, SlotsPerDay)
	low := make([]float64, SlotsPerDay)
	for slot := 0; slot < SlotsPerDay; slot++ {
		if awaySlot <= slot && slot <= homeSlot {
			high[slot] = p.BaseTemperature + offset + DeadbandOffset
			low[slot] = p.BaseTemperature - offset - DeadbandOffset
		} else {
			high[slot] = p.BaseTemperature + DeadbandOffset
			low[slot] = p.BaseTemperature - DeadbandOffset
		}
	}

	return optimizer.TemperatureSchedule{
		HighTemperatures: high,
		LowTemperatures:  low,
		IntervalMinutes:  SlotMinutes,
		TotalIntervals:   SlotsPerDay,
	}
}

// BuildRequest assembles the full optimizer request from preferences,
// the current home temperature and the learned (or fallback) rates.
func BuildRequest(p Preferences, homeTemperature, heatUpRate, coolDownRate float64) optimizer.Request {
	return optimizer.Request{
		HomeSize:            p.HomeSize,
		HomeTemperature:     homeTemperature,
		Location:            p.Location,
		TimeAway:            p.TimeAway,
		TimeHome:            p.TimeHome,
		SavingsLevel:        p.SavingsLevel,
		TemperatureSchedule: Build(p),
		HeatUpRate:          heatUpRate,
		CoolDownRate:        coolDownRate,
	}
}
