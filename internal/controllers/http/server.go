// Package httpctrl exposes the learning and scheduling state over a
// small JSON API, plus the Prometheus scrape endpoint.
package httpctrl

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/curve-control/thermagent/internal/ports"
	"github.com/curve-control/thermagent/internal/schedule"
)

type Server struct {
	rates    ports.RateProvider
	coord    *schedule.Coordinator
	srv      *http.Server
	deviceID string
}

// New returns a runnable server. coord may be nil when no optimizer is
// configured; the schedule endpoints then answer 503.
func New(rates ports.RateProvider, coord *schedule.Coordinator, addr string, deviceID string) *Server {
	mux := http.NewServeMux()
	s := &Server{rates: rates, coord: coord, deviceID: deviceID}

	mux.HandleFunc("GET /v1/rates", s.handleRates)
	mux.HandleFunc("GET /v1/summary", s.handleSummary)
	mux.HandleFunc("GET /v1/schedule", s.handleSchedule)
	mux.HandleFunc("GET /v1/setpoint", s.handleSetpoint)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("POST /v1/preferences", s.handlePostPreferences)
	mux.HandleFunc("POST /v1/optimize", s.handlePostOptimize)

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// ---- DTOs ----

type ratesDTO struct {
	DeviceID          string     `json:"device_id"`
	HeatingRate       *float64   `json:"heating_rate"`
	CoolingRate       *float64   `json:"cooling_rate"`
	NaturalRate       *float64   `json:"natural_rate"`
	EffectiveHeating  float64    `json:"effective_heating_rate"`
	EffectiveCooling  float64    `json:"effective_cooling_rate"`
	EffectiveNatural  float64    `json:"effective_natural_rate"`
	LastCalculation   *time.Time `json:"last_calculation"`
	HasSufficientData bool       `json:"has_sufficient_data"`
}

type setpointDTO struct {
	DeviceID string   `json:"device_id"`
	Setpoint *float64 `json:"setpoint"`
	Slot     int      `json:"slot"`
}

type scheduleDTO struct {
	DeviceID    string     `json:"device_id"`
	Setpoints   []float64  `json:"setpoints"`
	UpperBounds []float64  `json:"upper_bounds,omitempty"`
	LowerBounds []float64  `json:"lower_bounds,omitempty"`
	Preferences prefsDTO   `json:"preferences"`
	LastUpdate  *time.Time `json:"last_update"`
}

type prefsDTO struct {
	HomeSize        int     `json:"homeSize"`
	BaseTemperature float64 `json:"homeTemperature"`
	Location        int     `json:"location"`
	TimeAway        string  `json:"timeAway"`
	TimeHome        string  `json:"timeHome"`
	SavingsLevel    int     `json:"savingsLevel"`
}

func toPrefsDTO(p schedule.Preferences) prefsDTO {
	return prefsDTO{
		HomeSize:        p.HomeSize,
		BaseTemperature: p.BaseTemperature,
		Location:        p.Location,
		TimeAway:        p.TimeAway,
		TimeHome:        p.TimeHome,
		SavingsLevel:    p.SavingsLevel,
	}
}

// ---- Handlers ----

func (s *Server) handleRates(w http.ResponseWriter, _ *http.Request) {
	snap := s.rates.Rates()
	heating, cooling, natural := s.rates.RatesWithFallback()
	dto := ratesDTO{
		DeviceID:          s.deviceID,
		HeatingRate:       snap.Heating,
		CoolingRate:       snap.Cooling,
		NaturalRate:       snap.Natural,
		EffectiveHeating:  heating,
		EffectiveCooling:  cooling,
		EffectiveNatural:  natural,
		HasSufficientData: s.rates.HasSufficientData(),
	}
	if !snap.LastCalculation.IsZero() {
		t := snap.LastCalculation
		dto.LastCalculation = &t
	}
	writeJSON(w, http.StatusOK, dto)
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.rates.Summary())
}

func (s *Server) handleSchedule(w http.ResponseWriter, _ *http.Request) {
	if s.coord == nil {
		writeErr(w, http.StatusServiceUnavailable, "no optimizer configured")
		return
	}
	dto := scheduleDTO{
		DeviceID:    s.deviceID,
		Preferences: toPrefsDTO(s.coord.Preferences()),
	}
	if res, ok := s.coord.Result(); ok {
		dto.Setpoints = res.BestTempActual
		if hi, lo, ok := res.ScheduleBounds(); ok {
			dto.UpperBounds, dto.LowerBounds = hi, lo
		}
	}
	if st := s.coord.Status(); st.LastUpdate != nil {
		dto.LastUpdate = st.LastUpdate
	}
	writeJSON(w, http.StatusOK, dto)
}

func (s *Server) handleSetpoint(w http.ResponseWriter, _ *http.Request) {
	if s.coord == nil {
		writeErr(w, http.StatusServiceUnavailable, "no optimizer configured")
		return
	}
	dto := setpointDTO{DeviceID: s.deviceID, Slot: schedule.SlotIndex(time.Now())}
	if v, ok := s.coord.CurrentSetpoint(); ok {
		dto.Setpoint = &v
	}
	writeJSON(w, http.StatusOK, dto)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	if s.coord == nil {
		writeErr(w, http.StatusServiceUnavailable, "no optimizer configured")
		return
	}
	writeJSON(w, http.StatusOK, s.coord.Status())
}

func (s *Server) handlePostPreferences(w http.ResponseWriter, r *http.Request) {
	if s.coord == nil {
		writeErr(w, http.StatusServiceUnavailable, "no optimizer configured")
		return
	}
	var patch schedule.PreferencesPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	prefs := s.coord.UpdatePreferences(patch)

	// Re-optimize in the background so the new preferences take effect
	// before the next scheduled refresh.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		_ = s.coord.Refresh(ctx)
	}()

	writeJSON(w, http.StatusOK, toPrefsDTO(prefs))
}

func (s *Server) handlePostOptimize(w http.ResponseWriter, r *http.Request) {
	if s.coord == nil {
		writeErr(w, http.StatusServiceUnavailable, "no optimizer configured")
		return
	}
	if err := s.coord.Refresh(r.Context()); err != nil {
		writeErr(w, http.StatusBadGateway, err.Error())
		return
	}
	s.handleSchedule(w, r)
}

// ---- generic helpers ----

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
