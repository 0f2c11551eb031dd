package schedule

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/curve-control/thermagent/internal/optimizer"
	"github.com/curve-control/thermagent/internal/testutil"
)

func testPrefs() Preferences {
	return Preferences{
		HomeSize:        2000,
		BaseTemperature: 72,
		Location:        1,
		TimeAway:        "08:00",
		TimeHome:        "17:00",
		SavingsLevel:    2,
	}
}

// optimizerStub serves a fixed bestTempActual series and can be toggled
// to fail.
func optimizerStub(t *testing.T, setpoint float64, fail *atomic.Bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail != nil && fail.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		var req optimizer.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		best := make([]float64, 48)
		for i := range best {
			best[i] = setpoint
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"bestTempActual": best,
			"costSavings":    10.0,
			"percentSavings": 15.0,
		})
	}))
}

func TestCoordinatorRefreshStoresResultAndPushes(t *testing.T) {
	srv := optimizerStub(t, 71.5, nil)
	defer srv.Close()

	rates := testutil.NewFakeRateProvider()
	act := &testutil.FakeActuator{}
	c := NewCoordinator(optimizer.NewClient(srv.URL, time.Second), testPrefs(), rates, rates, act, time.Hour)

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	sp, ok := c.CurrentSetpoint()
	if !ok || sp != 71.5 {
		t.Fatalf("CurrentSetpoint()=(%v,%v) want (71.5,true)", sp, ok)
	}
	if got, ok := act.LastCall(); !ok || got != 71.5 {
		t.Fatalf("actuator last call=(%v,%v) want (71.5,true)", got, ok)
	}
	st := c.Status()
	if !st.Optimized || st.CostSavings != 10.0 || st.LastUpdate == nil {
		t.Fatalf("status=%+v want optimized with savings", st)
	}
}

func TestCoordinatorFailureKeepsPreviousResult(t *testing.T) {
	var fail atomic.Bool
	srv := optimizerStub(t, 70.0, &fail)
	defer srv.Close()

	rates := testutil.NewFakeRateProvider()
	c := NewCoordinator(optimizer.NewClient(srv.URL, time.Second), testPrefs(), rates, rates, nil, time.Hour)

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("first Refresh: %v", err)
	}

	fail.Store(true)
	if err := c.Refresh(context.Background()); err == nil {
		t.Fatal("expected second Refresh to fail")
	}

	// Stale-but-valid beats absent.
	if sp, ok := c.CurrentSetpoint(); !ok || sp != 70.0 {
		t.Fatalf("CurrentSetpoint()=(%v,%v) want previous (70,true)", sp, ok)
	}
	st := c.Status()
	if st.LastError == "" || !st.Optimized {
		t.Fatalf("status=%+v want recorded error with previous result", st)
	}
}

func TestCoordinatorSkipsRedundantWrites(t *testing.T) {
	srv := optimizerStub(t, 71.5, nil)
	defer srv.Close()

	rates := testutil.NewFakeRateProvider()
	act := &testutil.FakeActuator{}
	c := NewCoordinator(optimizer.NewClient(srv.URL, time.Second), testPrefs(), rates, rates, act, time.Hour)

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	// Same setpoint twice: one write.
	if act.CallCount() != 1 {
		t.Fatalf("actuator called %d times, want 1", act.CallCount())
	}
}

func TestCoordinatorUsesCurrentTemperature(t *testing.T) {
	var gotTemp atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req optimizer.Request
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotTemp.Store(req.HomeTemperature)
		best := make([]float64, 48)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"bestTempActual": best})
	}))
	defer srv.Close()

	rates := testutil.NewFakeRateProvider()
	rates.Temp = 69.3
	c := NewCoordinator(optimizer.NewClient(srv.URL, time.Second), testPrefs(), rates, rates, nil, time.Hour)

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got := gotTemp.Load().(float64); got != 69.3 {
		t.Fatalf("homeTemperature=%v want observed 69.3", got)
	}

	// Without an observed temperature, the base preference is used.
	rates.TempSet = false
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got := gotTemp.Load().(float64); got != 72 {
		t.Fatalf("homeTemperature=%v want base 72", got)
	}
}

func TestCoordinatorUpdatePreferences(t *testing.T) {
	rates := testutil.NewFakeRateProvider()
	c := NewCoordinator(optimizer.NewClient("http://127.0.0.1:0", time.Second), testPrefs(), rates, rates, nil, time.Hour)

	level := 3
	away := "09:30"
	got := c.UpdatePreferences(PreferencesPatch{SavingsLevel: &level, TimeAway: &away})

	if got.SavingsLevel != 3 || got.TimeAway != "09:30" {
		t.Fatalf("patched prefs=%+v", got)
	}
	if got.TimeHome != "17:00" || got.HomeSize != 2000 {
		t.Fatalf("unpatched fields changed: %+v", got)
	}
}
