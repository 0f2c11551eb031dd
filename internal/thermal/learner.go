package thermal

import (
	"sync"
	"time"
)

// Learning defaults. The fallback constants are fixed physical defaults,
// expressed in °F per 30 minutes. Active heating is assumed faster than
// passive drift; the multiplier is a tunable, not a derived law.
const (
	DefaultMinSamplesForCalculation = 5
	DefaultRollingWindow            = 7 * 24 * time.Hour
	DefaultRecalcInterval           = time.Hour

	DefaultCoolingRate30Min          = 1.9335
	DefaultNaturalRate30Min          = 0.5535
	DefaultHeatingFallbackMultiplier = 3
)

// Params configures a Learner.
type Params struct {
	Filter          FilterParams
	HistoryCapacity int
	MinSamples      int
	RollingWindow   time.Duration
	RecalcInterval  time.Duration

	CoolingFallback           float64
	NaturalFallback           float64
	HeatingFallbackMultiplier float64
}

func DefaultParams() Params {
	return Params{
		Filter:                    DefaultFilterParams(),
		HistoryCapacity:           DefaultHistoryCapacity,
		MinSamples:                DefaultMinSamplesForCalculation,
		RollingWindow:             DefaultRollingWindow,
		RecalcInterval:            DefaultRecalcInterval,
		CoolingFallback:           DefaultCoolingRate30Min,
		NaturalFallback:           DefaultNaturalRate30Min,
		HeatingFallbackMultiplier: DefaultHeatingFallbackMultiplier,
	}
}

func (p *Params) Validate() error {
	if err := p.Filter.Validate(); err != nil {
		return err
	}
	if p.HistoryCapacity < 1 {
		return ErrInvalidCapacity
	}
	if p.MinSamples < 1 {
		return ErrInvalidMinSamples
	}
	if p.RollingWindow <= 0 || p.RecalcInterval <= 0 {
		return ErrInvalidWindow
	}
	return nil
}

// Outcome reports what happened to one processed observation.
type Outcome int

const (
	OutcomeRecorded Outcome = iota
	OutcomeBootstrapped
	OutcomeInvalidSample
	OutcomeOutOfBounds
	OutcomeContradictory
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRecorded:
		return "recorded"
	case OutcomeBootstrapped:
		return "bootstrapped"
	case OutcomeInvalidSample:
		return "invalid_sample"
	case OutcomeOutOfBounds:
		return "out_of_bounds"
	case OutcomeContradictory:
		return "contradictory"
	default:
		return "unknown"
	}
}

// Result is returned by Observe so the caller knows whether a point was
// recorded and whether a recomputation (and therefore a save) happened.
type Result struct {
	Outcome      Outcome
	Point        DataPoint // set when Outcome == OutcomeRecorded
	Regime       Regime    // set when Outcome == OutcomeRecorded
	Recalculated bool
}

// Learner is the rolling rate estimator for one monitored device. It
// owns the observation filter's reference state, the bounded history and
// the three regime estimates. It never fails; it only withholds
// confidence until enough data has accumulated.
type Learner struct {
	mu      sync.Mutex
	params  Params
	filter  observationFilter
	history *History

	heating  *float64
	cooling  *float64
	natural  *float64
	lastCalc time.Time

	now func() time.Time
}

func NewLearner(params Params) (*Learner, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	hist, err := NewHistory(params.HistoryCapacity)
	if err != nil {
		return nil, err
	}
	return &Learner{
		params:  params,
		filter:  observationFilter{params: params.Filter},
		history: hist,
		now:     time.Now,
	}, nil
}

// Observe runs one sample through the filter and classifier, appends the
// resulting point, and lazily recomputes the estimates once the recalc
// interval has elapsed. Calls must be serialized per device.
func (l *Learner) Observe(obs Observation) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	hadRef := l.filter.ref != nil
	point, ok := l.filter.observe(obs)
	if !ok {
		switch {
		case !validSample(obs):
			return Result{Outcome: OutcomeInvalidSample}
		case !hadRef:
			return Result{Outcome: OutcomeBootstrapped}
		default:
			return Result{Outcome: OutcomeOutOfBounds}
		}
	}

	regime, ok := Classify(point.HVACAction, point.TempChange())
	if !ok {
		return Result{Outcome: OutcomeContradictory}
	}

	l.history.Append(point)

	res := Result{Outcome: OutcomeRecorded, Point: point, Regime: regime}
	if l.lastCalc.IsZero() || obs.Timestamp.Sub(l.lastCalc) > l.params.RecalcInterval {
		l.recalculate()
		res.Recalculated = true
	}
	return res
}

// Recalculate forces a recomputation over the trailing window. Used at
// startup after the stored history has been restored.
func (l *Learner) Recalculate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recalculate()
}

// recalculate partitions the trailing window by regime and replaces each
// estimate that clears the sample gate with the partition mean. A regime
// below the gate keeps its previous value: estimates never regress to
// unknown just because the recent window is short.
func (l *Learner) recalculate() {
	now := l.now()
	heating, cooling, natural := l.partition(now)

	if len(heating) >= l.params.MinSamples {
		l.heating = ptr(mean(heating))
	}
	if len(cooling) >= l.params.MinSamples {
		l.cooling = ptr(mean(cooling))
	}
	if len(natural) >= l.params.MinSamples {
		l.natural = ptr(mean(natural))
	}
	l.lastCalc = now
}

// partition returns per-regime rate samples from the trailing window.
// Cooling rates are normalized to positive values: a cooling rate is
// degrees lost per 30 minutes.
func (l *Learner) partition(now time.Time) (heating, cooling, natural []float64) {
	cutoff := now.Add(-l.params.RollingWindow)
	for _, p := range l.history.Since(cutoff) {
		regime, ok := Classify(p.HVACAction, p.TempChange())
		if !ok {
			continue
		}
		switch regime {
		case RegimeHeating:
			heating = append(heating, p.RatePer30Min())
		case RegimeCooling:
			cooling = append(cooling, -p.RatePer30Min())
		case RegimeNatural:
			natural = append(natural, p.RatePer30Min())
		}
	}
	return heating, cooling, natural
}

// Rates returns the current estimates. Nil means not yet known.
func (l *Learner) Rates() RateSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return RateSnapshot{
		Heating:         copyPtr(l.heating),
		Cooling:         copyPtr(l.cooling),
		Natural:         copyPtr(l.natural),
		LastCalculation: l.lastCalc,
	}
}

// RatesWithFallback never returns an unset value: regimes without a
// confident estimate get the documented physical defaults.
func (l *Learner) RatesWithFallback() (heating, cooling, natural float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	heating = l.params.NaturalFallback * l.params.HeatingFallbackMultiplier
	if l.heating != nil {
		heating = *l.heating
	}
	cooling = l.params.CoolingFallback
	if l.cooling != nil {
		cooling = *l.cooling
	}
	natural = l.params.NaturalFallback
	if l.natural != nil {
		natural = *l.natural
	}
	return heating, cooling, natural
}

// HasSufficientData is a coarse readiness signal: at least two of the
// three regimes clear the sample gate within the trailing window. It is
// distinct from per-regime validity.
func (l *Learner) HasSufficientData() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hasSufficientData()
}

func (l *Learner) hasSufficientData() bool {
	heating, cooling, natural := l.partition(l.now())
	sufficient := 0
	for _, n := range []int{len(heating), len(cooling), len(natural)} {
		if n >= l.params.MinSamples {
			sufficient++
		}
	}
	return sufficient >= 2
}

// Summary reports the state of the collected data.
func (l *Learner) Summary() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()

	heating, cooling, natural := l.partition(l.now())
	s := Summary{
		TotalDataPoints:   l.history.Len(),
		RecentDataPoints:  len(heating) + len(cooling) + len(natural),
		HeatingSamples:    len(heating),
		CoolingSamples:    len(cooling),
		NaturalSamples:    len(natural),
		HeatingRate:       copyPtr(l.heating),
		CoolingRate:       copyPtr(l.cooling),
		NaturalRate:       copyPtr(l.natural),
		HasSufficientData: l.hasSufficientData(),
	}
	if !l.lastCalc.IsZero() {
		t := l.lastCalc
		s.LastCalculation = &t
	}
	return s
}

// CurrentTemperature is the temperature of the pending reference, i.e.
// the last accepted sample from the device.
func (l *Learner) CurrentTemperature() (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.filter.current()
}

// Restore replaces the learner's state with a persisted snapshot. Points
// beyond capacity are absorbed by normal ring-buffer eviction.
func (l *Learner) Restore(points []DataPoint, rates RateSnapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, p := range points {
		l.history.Append(p)
	}
	l.heating = copyPtr(rates.Heating)
	l.cooling = copyPtr(rates.Cooling)
	l.natural = copyPtr(rates.Natural)
	// lastCalc stays zero so the startup recalculation always runs.
}

// Export returns the state to persist: full history plus current rates.
func (l *Learner) Export() ([]DataPoint, RateSnapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.history.Points(), RateSnapshot{
		Heating:         copyPtr(l.heating),
		Cooling:         copyPtr(l.cooling),
		Natural:         copyPtr(l.natural),
		LastCalculation: l.lastCalc,
	}
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func ptr(v float64) *float64 { return &v }

func copyPtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
