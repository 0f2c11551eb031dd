package schedule

import "time"

// SetpointAt indexes the optimizer's per-slot setpoint series with the
// slot covering t. It reports false when the series is absent or too
// short, which guards against stale or truncated responses.
func SetpointAt(setpoints []float64, t time.Time) (float64, bool) {
	idx := SlotIndex(t)
	if idx < 0 || idx >= len(setpoints) {
		return 0, false
	}
	return setpoints[idx], true
}
