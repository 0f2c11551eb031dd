// Package optimizer is the client for the external schedule-optimization
// backend. The optimization algorithm itself is a remote black box; this
// package only speaks its HTTP contract.
package optimizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const DefaultTimeout = 30 * time.Second

var (
	// ErrCannotConnect covers transport failures and non-200 statuses.
	ErrCannotConnect = errors.New("optimizer: cannot connect")
	// ErrInvalidResponse covers undecodable bodies and responses missing
	// required fields.
	ErrInvalidResponse = errors.New("optimizer: invalid response")
)

// TemperatureSchedule is the 48-slot comfort band sent with a request.
type TemperatureSchedule struct {
	HighTemperatures []float64 `json:"highTemperatures"`
	LowTemperatures  []float64 `json:"lowTemperatures"`
	IntervalMinutes  int       `json:"intervalMinutes"`
	TotalIntervals   int       `json:"totalIntervals"`
}

// Request is the payload for POST /generate_schedule.
type Request struct {
	HomeSize            int                 `json:"homeSize"`
	HomeTemperature     float64             `json:"homeTemperature"`
	Location            int                 `json:"location"`
	TimeAway            string              `json:"timeAway"`
	TimeHome            string              `json:"timeHome"`
	SavingsLevel        int                 `json:"savingsLevel"`
	TemperatureSchedule TemperatureSchedule `json:"temperatureSchedule"`
	HeatUpRate          float64             `json:"heatUpRate"`
	CoolDownRate        float64             `json:"coolDownRate"`
}

// Response is the optimizer's result. BestTempActual is the per-slot
// setpoint series; HourlyTemperature carries the schedule bound rows.
type Response struct {
	HourlyTemperature [][]float64 `json:"HourlyTemperature"`
	BestTempActual    []float64   `json:"bestTempActual"`
	CostSavings       float64     `json:"costSavings"`
	PercentSavings    float64     `json:"percentSavings"`
	CO2Avoided        float64     `json:"co2Avoided"`
	CarsEquivalent    float64     `json:"carsEquivalent"`
}

// ScheduleBounds returns the high and low comfort bound rows of the
// returned schedule, when present.
func (r *Response) ScheduleBounds() (high, low []float64, ok bool) {
	if len(r.HourlyTemperature) < 3 {
		return nil, nil, false
	}
	return r.HourlyTemperature[1], r.HourlyTemperature[2], true
}

// Client calls the optimization backend.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// GenerateSchedule posts the request and decodes the result. Failures
// are not retried here; the caller decides whether the next cycle tries
// again.
func (c *Client) GenerateSchedule(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate_schedule", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCannotConnect, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrCannotConnect, resp.StatusCode, string(snippet))
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if len(out.BestTempActual) == 0 {
		return nil, fmt.Errorf("%w: missing bestTempActual", ErrInvalidResponse)
	}
	return &out, nil
}

// Validate probes the backend with the given request. It is the setup
// check run before activation: a CannotConnect or InvalidResponse error
// should block activation until the configuration is corrected.
func (c *Client) Validate(ctx context.Context, req Request) error {
	_, err := c.GenerateSchedule(ctx, req)
	return err
}
