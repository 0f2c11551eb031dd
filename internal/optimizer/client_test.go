package optimizer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testRequest() Request {
	high := make([]float64, 48)
	low := make([]float64, 48)
	for i := range high {
		high[i] = 73.4
		low[i] = 70.6
	}
	return Request{
		HomeSize:        2000,
		HomeTemperature: 72,
		Location:        1,
		TimeAway:        "08:00",
		TimeHome:        "17:00",
		SavingsLevel:    2,
		TemperatureSchedule: TemperatureSchedule{
			HighTemperatures: high,
			LowTemperatures:  low,
			IntervalMinutes:  30,
			TotalIntervals:   48,
		},
		HeatUpRate:   1.6605,
		CoolDownRate: 1.9335,
	}
}

func TestGenerateScheduleSuccess(t *testing.T) {
	var gotPath string
	var gotReq Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		best := make([]float64, 48)
		for i := range best {
			best[i] = 71.5
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"bestTempActual": best,
			"costSavings":    12.5,
			"percentSavings": 18.0,
			"co2Avoided":     0.04,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	resp, err := c.GenerateSchedule(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("GenerateSchedule: %v", err)
	}

	if gotPath != "/generate_schedule" {
		t.Fatalf("posted to %q want /generate_schedule", gotPath)
	}
	if gotReq.SavingsLevel != 2 || gotReq.TemperatureSchedule.TotalIntervals != 48 {
		t.Fatalf("request did not round-trip: %+v", gotReq)
	}
	if len(resp.BestTempActual) != 48 {
		t.Fatalf("got %d setpoints, want 48", len(resp.BestTempActual))
	}
	if resp.CostSavings != 12.5 {
		t.Fatalf("costSavings=%v want 12.5", resp.CostSavings)
	}
}

func TestGenerateScheduleNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.GenerateSchedule(context.Background(), testRequest())
	if !errors.Is(err, ErrCannotConnect) {
		t.Fatalf("err=%v want ErrCannotConnect", err)
	}
}

func TestGenerateScheduleConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // refuse all connections

	c := NewClient(srv.URL, time.Second)
	_, err := c.GenerateSchedule(context.Background(), testRequest())
	if !errors.Is(err, ErrCannotConnect) {
		t.Fatalf("err=%v want ErrCannotConnect", err)
	}
}

func TestGenerateScheduleMissingRequiredFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"costSavings": 1.0})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.GenerateSchedule(context.Background(), testRequest())
	if !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("err=%v want ErrInvalidResponse", err)
	}
}

func TestGenerateScheduleGarbageBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.GenerateSchedule(context.Background(), testRequest())
	if !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("err=%v want ErrInvalidResponse", err)
	}
}

func TestScheduleBounds(t *testing.T) {
	r := &Response{}
	if _, _, ok := r.ScheduleBounds(); ok {
		t.Fatal("bounds present on empty response")
	}

	r.HourlyTemperature = [][]float64{{0, 1}, {75, 75}, {68, 68}}
	high, low, ok := r.ScheduleBounds()
	if !ok || high[0] != 75 || low[0] != 68 {
		t.Fatalf("bounds=(%v,%v,%v) want rows 1 and 2", high, low, ok)
	}
}

func TestValidatePropagatesTypedErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	if err := c.Validate(context.Background(), testRequest()); !errors.Is(err, ErrCannotConnect) {
		t.Fatalf("Validate err=%v want ErrCannotConnect", err)
	}
}
