package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"github.com/curve-control/thermagent/internal/thermal"
)

// phase describes one stretch of a simulated day.
type phase struct {
	action     thermal.HVACAction
	ratePerMin float64
	minutes    int
}

// SimulateLearning drives a learner through a synthetic two-day cycle
// of heating, natural drift and cooling, sampling every 30 minutes, and
// writes the rate evolution to a CSV for plotting.
func SimulateLearning(filename string) error {
	learner, err := thermal.NewLearner(thermal.DefaultParams())
	if err != nil {
		return fmt.Errorf("failed to create learner: %v", err)
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"Time", "Temperature", "Action", "Outcome", "HeatingRate", "CoolingRate", "NaturalRate"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	day := []phase{
		{thermal.ActionHeating, 0.035, 180}, // morning warm-up
		{thermal.ActionIdle, -0.020, 360},   // daytime drift
		{thermal.ActionCooling, -0.065, 180},
		{thermal.ActionOff, -0.018, 720}, // overnight
	}

	// Keep timestamps inside the rolling window.
	ts := time.Now().Add(-48 * time.Hour)
	temp := 68.0
	const sampleEvery = 30

	for cycle := 0; cycle < 2; cycle++ {
		for _, p := range day {
			for m := 0; m < p.minutes; m++ {
				temp += p.ratePerMin
				ts = ts.Add(time.Minute)
				if m%sampleEvery != 0 {
					continue
				}

				res := learner.Observe(thermal.Observation{
					Timestamp:   ts,
					Temperature: temp,
					HVACAction:  p.action,
				})
				rates := learner.Rates()

				if err := writer.Write([]string{
					ts.Format(time.RFC3339),
					fmt.Sprintf("%.2f", temp),
					p.action.String(),
					res.Outcome.String(),
					formatRate(rates.Heating),
					formatRate(rates.Cooling),
					formatRate(rates.Natural),
				}); err != nil {
					return fmt.Errorf("failed to write CSV record: %v", err)
				}
			}
		}
	}

	return nil
}

func formatRate(r *float64) string {
	if r == nil {
		return ""
	}
	return fmt.Sprintf("%.4f", *r)
}

func main() {
	if err := SimulateLearning("thermagent.csv"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
