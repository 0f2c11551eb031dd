package thermal

import (
	"testing"
	"time"
)

func newTestLearner(t *testing.T, now time.Time, opts ...func(*Params)) *Learner {
	t.Helper()

	params := DefaultParams()
	for _, opt := range opts {
		opt(&params)
	}
	l, err := NewLearner(params)
	if err != nil {
		t.Fatalf("NewLearner: %v", err)
	}
	l.now = func() time.Time { return now }
	return l
}

func TestNewLearnerValidation(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Params)
		want error
	}{
		{"bad capacity", func(p *Params) { p.HistoryCapacity = 0 }, ErrInvalidCapacity},
		{"bad min samples", func(p *Params) { p.MinSamples = 0 }, ErrInvalidMinSamples},
		{"bad window", func(p *Params) { p.RollingWindow = 0 }, ErrInvalidWindow},
		{"bad recalc interval", func(p *Params) { p.RecalcInterval = 0 }, ErrInvalidWindow},
		{"bad filter", func(p *Params) { p.Filter.MinTempChange = 0 }, ErrInvalidChangeBounds},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := DefaultParams()
			tc.mut(&params)
			if _, err := NewLearner(params); err != tc.want {
				t.Fatalf("NewLearner err=%v want %v", err, tc.want)
			}
		})
	}
}

func TestLearnerHeatingScenario(t *testing.T) {
	// Three heating intervals of +1°F over 30 min, then two more: after
	// the fifth the heating rate is exactly 1.0 and the other regimes
	// stay unset.
	start := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	now := start.Add(6 * time.Hour)
	l := newTestLearner(t, now)

	ts := start
	temp := 65.0
	l.Observe(Observation{Timestamp: ts, Temperature: temp, HVACAction: ActionHeating})
	for i := 0; i < 5; i++ {
		ts = ts.Add(30 * time.Minute)
		temp += 1.0
		res := l.Observe(Observation{Timestamp: ts, Temperature: temp, HVACAction: ActionHeating})
		if res.Outcome != OutcomeRecorded {
			t.Fatalf("interval %d outcome=%v want recorded", i, res.Outcome)
		}
		if res.Regime != RegimeHeating {
			t.Fatalf("interval %d regime=%v want heating", i, res.Regime)
		}
	}
	l.Recalculate()

	rates := l.Rates()
	if rates.Heating == nil || *rates.Heating != 1.0 {
		t.Fatalf("heating rate=%v want 1.0", rates.Heating)
	}
	if rates.Cooling != nil || rates.Natural != nil {
		t.Fatalf("cooling/natural should stay unset, got %v/%v", rates.Cooling, rates.Natural)
	}
}

func TestLearnerCoolingRateIsPositive(t *testing.T) {
	start := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	now := start.Add(12 * time.Hour)
	l := newTestLearner(t, now)

	ts := start
	temp := 78.0
	l.Observe(Observation{Timestamp: ts, Temperature: temp, HVACAction: ActionCooling})
	for i := 0; i < 5; i++ {
		ts = ts.Add(30 * time.Minute)
		temp -= 2.0
		l.Observe(Observation{Timestamp: ts, Temperature: temp, HVACAction: ActionCooling})
	}
	l.Recalculate()

	rates := l.Rates()
	if rates.Cooling == nil {
		t.Fatal("cooling rate unset after 5 samples")
	}
	if *rates.Cooling != 2.0 {
		t.Fatalf("cooling rate=%v want 2.0 (positive)", *rates.Cooling)
	}
}

func TestLearnerBelowGateKeepsPreviousValue(t *testing.T) {
	start := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	l := newTestLearner(t, start.Add(6*time.Hour))

	ts := start
	temp := 65.0
	l.Observe(Observation{Timestamp: ts, Temperature: temp, HVACAction: ActionHeating})
	for i := 0; i < 5; i++ {
		ts = ts.Add(30 * time.Minute)
		temp += 1.0
		l.Observe(Observation{Timestamp: ts, Temperature: temp, HVACAction: ActionHeating})
	}
	l.Recalculate()
	if got := l.Rates(); got.Heating == nil || *got.Heating != 1.0 {
		t.Fatalf("heating rate=%v want 1.0", got.Heating)
	}

	// Move far past the window: zero recent samples. The estimate must
	// not regress to unknown.
	l.now = func() time.Time { return start.Add(30 * 24 * time.Hour) }
	l.Recalculate()
	if got := l.Rates(); got.Heating == nil || *got.Heating != 1.0 {
		t.Fatalf("heating rate after empty window=%v want 1.0 retained", got.Heating)
	}
}

func TestLearnerWindowExcludesOldPoints(t *testing.T) {
	start := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	l := newTestLearner(t, start.Add(6*time.Hour))

	// 5 old heating intervals at +1°F/30min.
	ts := start
	temp := 65.0
	l.Observe(Observation{Timestamp: ts, Temperature: temp, HVACAction: ActionHeating})
	for i := 0; i < 5; i++ {
		ts = ts.Add(30 * time.Minute)
		temp += 1.0
		l.Observe(Observation{Timestamp: ts, Temperature: temp, HVACAction: ActionHeating})
	}

	// 5 fresh heating intervals at +2°F/30min, ten days later.
	ts = start.Add(10 * 24 * time.Hour)
	temp = 65.0
	l.Observe(Observation{Timestamp: ts, Temperature: temp, HVACAction: ActionHeating})
	for i := 0; i < 5; i++ {
		ts = ts.Add(30 * time.Minute)
		temp += 2.0
		l.Observe(Observation{Timestamp: ts, Temperature: temp, HVACAction: ActionHeating})
	}

	l.now = func() time.Time { return ts }
	l.Recalculate()
	if got := l.Rates(); got.Heating == nil || *got.Heating != 2.0 {
		t.Fatalf("heating rate=%v want 2.0 from fresh window only", got.Heating)
	}
}

func TestLearnerSufficientData(t *testing.T) {
	start := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	l := newTestLearner(t, start.Add(24*time.Hour))

	if l.HasSufficientData() {
		t.Fatal("empty learner reports sufficient data")
	}

	// One regime at the gate is not enough.
	ts := start
	temp := 65.0
	l.Observe(Observation{Timestamp: ts, Temperature: temp, HVACAction: ActionHeating})
	for i := 0; i < 5; i++ {
		ts = ts.Add(30 * time.Minute)
		temp += 1.0
		l.Observe(Observation{Timestamp: ts, Temperature: temp, HVACAction: ActionHeating})
	}
	if l.HasSufficientData() {
		t.Fatal("one regime at the gate reported as sufficient")
	}

	// Second regime: natural drift. Two of three clears the gate.
	ts = ts.Add(30 * time.Minute)
	l.Observe(Observation{Timestamp: ts, Temperature: 70, HVACAction: ActionIdle})
	for i := 0; i < 5; i++ {
		ts = ts.Add(30 * time.Minute)
		delta := 0.6
		if i%2 == 0 {
			delta = -0.6
		}
		l.Observe(Observation{Timestamp: ts, Temperature: 70 + delta, HVACAction: ActionIdle})
	}
	if !l.HasSufficientData() {
		t.Fatal("two regimes at the gate reported as insufficient")
	}
}

func TestLearnerFallbackRates(t *testing.T) {
	start := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	l := newTestLearner(t, start)

	// Computed from the params at runtime; folding the constants at
	// compile time yields a different last bit.
	p := DefaultParams()
	wantHeating := p.NaturalFallback * p.HeatingFallbackMultiplier

	heating, cooling, natural := l.RatesWithFallback()
	if heating != wantHeating {
		t.Fatalf("heating fallback=%v want %v", heating, wantHeating)
	}
	if cooling != DefaultCoolingRate30Min {
		t.Fatalf("cooling fallback=%v want %v", cooling, DefaultCoolingRate30Min)
	}
	if natural != DefaultNaturalRate30Min {
		t.Fatalf("natural fallback=%v want %v", natural, DefaultNaturalRate30Min)
	}

	// A learned regime overrides only its own slot.
	ts := start
	temp := 65.0
	l.now = func() time.Time { return start.Add(6 * time.Hour) }
	l.Observe(Observation{Timestamp: ts, Temperature: temp, HVACAction: ActionHeating})
	for i := 0; i < 5; i++ {
		ts = ts.Add(30 * time.Minute)
		temp += 1.0
		l.Observe(Observation{Timestamp: ts, Temperature: temp, HVACAction: ActionHeating})
	}
	l.Recalculate()

	heating, cooling, natural = l.RatesWithFallback()
	if heating != 1.0 {
		t.Fatalf("learned heating=%v want 1.0", heating)
	}
	if cooling != DefaultCoolingRate30Min || natural != DefaultNaturalRate30Min {
		t.Fatalf("cooling/natural fallbacks changed: %v/%v", cooling, natural)
	}
}

func TestLearnerContradictoryIntervalNotRecorded(t *testing.T) {
	start := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	l := newTestLearner(t, start.Add(time.Hour))

	l.Observe(Observation{Timestamp: start, Temperature: 70, HVACAction: ActionHeating})
	// Heating mode with a falling temperature is contradictory.
	res := l.Observe(Observation{Timestamp: start.Add(30 * time.Minute), Temperature: 69, HVACAction: ActionHeating})
	if res.Outcome != OutcomeContradictory {
		t.Fatalf("outcome=%v want contradictory", res.Outcome)
	}
	if s := l.Summary(); s.TotalDataPoints != 0 {
		t.Fatalf("history has %d points, want 0", s.TotalDataPoints)
	}
}

func TestLearnerLazyRecalcTrigger(t *testing.T) {
	start := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	l := newTestLearner(t, start.Add(48*time.Hour))

	ts := start
	temp := 65.0
	l.Observe(Observation{Timestamp: ts, Temperature: temp, HVACAction: ActionHeating})

	// First recorded point triggers the initial recomputation.
	ts = ts.Add(30 * time.Minute)
	temp += 1.0
	res := l.Observe(Observation{Timestamp: ts, Temperature: temp, HVACAction: ActionHeating})
	if !res.Recalculated {
		t.Fatal("first recorded point must trigger recomputation")
	}

	// A point recorded shortly after must not.
	ts = ts.Add(30 * time.Minute)
	temp += 1.0
	res = l.Observe(Observation{Timestamp: ts, Temperature: temp, HVACAction: ActionHeating})
	if res.Recalculated {
		t.Fatal("recomputed before the recalc interval elapsed")
	}

	// Once more than the interval has passed, the next point triggers it.
	l.mu.Lock()
	l.lastCalc = ts.Add(-2 * time.Hour)
	l.mu.Unlock()
	ts = ts.Add(30 * time.Minute)
	temp += 1.0
	res = l.Observe(Observation{Timestamp: ts, Temperature: temp, HVACAction: ActionHeating})
	if !res.Recalculated {
		t.Fatal("expected recomputation after recalc interval elapsed")
	}
}

func TestLearnerSummaryCounts(t *testing.T) {
	start := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	l := newTestLearner(t, start.Add(24*time.Hour))

	ts := start
	temp := 65.0
	l.Observe(Observation{Timestamp: ts, Temperature: temp, HVACAction: ActionHeating})
	for i := 0; i < 3; i++ {
		ts = ts.Add(30 * time.Minute)
		temp += 1.0
		l.Observe(Observation{Timestamp: ts, Temperature: temp, HVACAction: ActionHeating})
	}
	// The transition interval carries the reference's action, so the
	// first idle sample still records a heating point.
	ts = ts.Add(30 * time.Minute)
	l.Observe(Observation{Timestamp: ts, Temperature: 70, HVACAction: ActionIdle})
	ts = ts.Add(30 * time.Minute)
	l.Observe(Observation{Timestamp: ts, Temperature: 69.3, HVACAction: ActionIdle})

	s := l.Summary()
	if s.HeatingSamples != 4 {
		t.Fatalf("heating samples=%d want 4", s.HeatingSamples)
	}
	if s.NaturalSamples != 1 {
		t.Fatalf("natural samples=%d want 1", s.NaturalSamples)
	}
	if s.CoolingSamples != 0 {
		t.Fatalf("cooling samples=%d want 0", s.CoolingSamples)
	}
	if s.HasSufficientData {
		t.Fatal("summary reports sufficient data")
	}
}

func TestLearnerRestoreAndExportRoundTrip(t *testing.T) {
	start := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	l := newTestLearner(t, start.Add(6*time.Hour))

	points := []DataPoint{
		pointAt(start, 65),
		pointAt(start.Add(30*time.Minute), 66),
	}
	rate := 1.25
	l.Restore(points, RateSnapshot{Heating: &rate})

	gotPoints, gotRates := l.Export()
	if len(gotPoints) != 2 {
		t.Fatalf("exported %d points, want 2", len(gotPoints))
	}
	if gotRates.Heating == nil || *gotRates.Heating != 1.25 {
		t.Fatalf("exported heating=%v want 1.25", gotRates.Heating)
	}
	if gotRates.Cooling != nil {
		t.Fatalf("exported cooling=%v want nil", gotRates.Cooling)
	}
}
