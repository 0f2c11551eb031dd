package schedule

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/curve-control/thermagent/internal/logger"
	"github.com/curve-control/thermagent/internal/metrics"
	"github.com/curve-control/thermagent/internal/optimizer"
	"github.com/curve-control/thermagent/internal/ports"
)

const (
	DefaultUpdateInterval = 30 * time.Minute

	// SetpointTolerance suppresses redundant actuator writes.
	SetpointTolerance = 0.1
)

// Coordinator periodically requests an optimized schedule and exposes
// the current recommended setpoint. It shares only read-only rate
// snapshots with the ingestion pipeline: a slow or failing optimizer
// never blocks observation processing.
type Coordinator struct {
	client   *optimizer.Client
	rates    ports.RateProvider
	temps    ports.TemperatureSource
	actuator ports.Actuator // optional
	interval time.Duration

	mu         sync.RWMutex
	prefs      Preferences
	last       *optimizer.Response
	lastUpdate time.Time
	lastErr    error
	lastPushed *float64

	now func() time.Time
}

func NewCoordinator(client *optimizer.Client, prefs Preferences, rates ports.RateProvider, temps ports.TemperatureSource, actuator ports.Actuator, interval time.Duration) *Coordinator {
	if interval <= 0 {
		interval = DefaultUpdateInterval
	}
	return &Coordinator{
		client:   client,
		rates:    rates,
		temps:    temps,
		actuator: actuator,
		interval: interval,
		prefs:    prefs,
		now:      time.Now,
	}
}

// Run refreshes immediately, then on every interval tick until ctx is
// canceled.
func (c *Coordinator) Run(ctx context.Context) error {
	if err := c.Refresh(ctx); err != nil {
		logger.Warn("schedule: initial optimization failed: %v", err)
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				logger.Warn("schedule: optimization failed: %v", err)
			}
		}
	}
}

// Refresh performs one optimization round trip. On failure the previous
// result stays in place and the error is recorded and returned.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.mu.RLock()
	prefs := c.prefs
	c.mu.RUnlock()

	homeTemp := prefs.BaseTemperature
	if t, ok := c.temps.CurrentTemperature(); ok {
		homeTemp = t
	}
	heatUp, coolDown, _ := c.rates.RatesWithFallback()
	req := BuildRequest(prefs, homeTemp, heatUp, coolDown)

	start := time.Now()
	resp, err := c.client.GenerateSchedule(ctx, req)
	metrics.OptimizerRequestDuration.Observe(time.Since(start).Seconds())

	c.mu.Lock()
	if err != nil {
		c.lastErr = err
		c.mu.Unlock()
		metrics.OptimizerRequestsTotal.WithLabelValues("error").Inc()
		return err
	}
	c.last = resp
	c.lastErr = nil
	c.lastUpdate = c.now()
	c.mu.Unlock()
	metrics.OptimizerRequestsTotal.WithLabelValues("success").Inc()

	logger.Info("schedule: optimized, savings $%.2f (%.1f%%)", resp.CostSavings, resp.PercentSavings)
	c.pushSetpoint(ctx)
	return nil
}

// pushSetpoint forwards the current recommended setpoint to the
// actuator when it moved beyond the tolerance.
func (c *Coordinator) pushSetpoint(ctx context.Context) {
	if c.actuator == nil {
		return
	}
	sp, ok := c.CurrentSetpoint()
	if !ok {
		return
	}

	c.mu.Lock()
	if c.lastPushed != nil && math.Abs(*c.lastPushed-sp) <= SetpointTolerance {
		c.mu.Unlock()
		metrics.SetpointWritesTotal.WithLabelValues("skipped").Inc()
		return
	}
	c.mu.Unlock()

	if err := c.actuator.SetTemperature(ctx, sp); err != nil {
		logger.Warn("schedule: setpoint write failed: %v", err)
		metrics.SetpointWritesTotal.WithLabelValues("error").Inc()
		return
	}
	c.mu.Lock()
	v := sp
	c.lastPushed = &v
	c.mu.Unlock()
	metrics.SetpointWritesTotal.WithLabelValues("written").Inc()
}

// CurrentSetpoint maps the last result to the setpoint for the current
// wall-clock slot.
func (c *Coordinator) CurrentSetpoint() (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return 0, false
	}
	return SetpointAt(c.last.BestTempActual, c.now())
}

// Result returns a copy of the last successful optimization result.
func (c *Coordinator) Result() (optimizer.Response, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return optimizer.Response{}, false
	}
	return *c.last, true
}

// Preferences returns the current preferences.
func (c *Coordinator) Preferences() Preferences {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.prefs
}

// PreferencesPatch is a partial preferences update; nil fields keep
// their current value.
type PreferencesPatch struct {
	HomeSize        *int     `json:"homeSize"`
	BaseTemperature *float64 `json:"homeTemperature"`
	TimeAway        *string  `json:"timeAway"`
	TimeHome        *string  `json:"timeHome"`
	SavingsLevel    *int     `json:"savingsLevel"`
}

// UpdatePreferences applies a patch. The caller decides whether to
// trigger a refresh afterwards.
func (c *Coordinator) UpdatePreferences(patch PreferencesPatch) Preferences {
	c.mu.Lock()
	defer c.mu.Unlock()
	if patch.HomeSize != nil {
		c.prefs.HomeSize = *patch.HomeSize
	}
	if patch.BaseTemperature != nil {
		c.prefs.BaseTemperature = *patch.BaseTemperature
	}
	if patch.TimeAway != nil {
		c.prefs.TimeAway = *patch.TimeAway
	}
	if patch.TimeHome != nil {
		c.prefs.TimeHome = *patch.TimeHome
	}
	if patch.SavingsLevel != nil {
		c.prefs.SavingsLevel = *patch.SavingsLevel
	}
	return c.prefs
}

// Status summarizes the coordinator for telemetry surfaces.
type Status struct {
	LastUpdate     *time.Time `json:"last_update"`
	LastError      string     `json:"last_error,omitempty"`
	CostSavings    float64    `json:"cost_savings"`
	PercentSavings float64    `json:"percent_savings"`
	CO2Avoided     float64    `json:"co2_avoided"`
	CarsEquivalent float64    `json:"cars_equivalent"`
	Optimized      bool       `json:"optimized"`
}

func (c *Coordinator) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var st Status
	if !c.lastUpdate.IsZero() {
		t := c.lastUpdate
		st.LastUpdate = &t
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	if c.last != nil {
		st.Optimized = true
		st.CostSavings = c.last.CostSavings
		st.PercentSavings = c.last.PercentSavings
		st.CO2Avoided = c.last.CO2Avoided
		st.CarsEquivalent = c.last.CarsEquivalent
	}
	return st
}
