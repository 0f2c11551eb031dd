// Package store persists a device's thermal learning state to a
// versioned JSON file. Writes are atomic (temp file + rename) so readers
// never observe a partial snapshot. Loading tolerates the legacy
// two-regime schema and individually malformed history entries.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/curve-control/thermagent/internal/logger"
	"github.com/curve-control/thermagent/internal/thermal"
)

// SchemaVersion is the current on-disk schema. Version 1 predates the
// natural regime and named its rates heat_up_rate / cool_down_rate.
const SchemaVersion = 2

const (
	defaultFilePerm os.FileMode = 0o644
	defaultDirPerm  os.FileMode = 0o755
)

// Snapshot is the in-memory form of a persisted learning state.
type Snapshot struct {
	History []thermal.DataPoint
	Rates   thermal.RateSnapshot
}

// Store reads and writes one device's snapshot file.
type Store struct {
	path     string
	filePerm os.FileMode
	dirPerm  os.FileMode
}

// New returns a store writing to dataDir/thermal_<device>.json. The
// device identity is sanitized the same way regardless of platform so
// the file name round-trips.
func New(dataDir, deviceID string) *Store {
	if dataDir == "" {
		dataDir = filepath.Join(os.TempDir(), "thermagent")
	}
	name := "thermal_" + sanitize(deviceID) + ".json"
	return &Store{
		path:     filepath.Join(dataDir, name),
		filePerm: defaultFilePerm,
		dirPerm:  defaultDirPerm,
	}
}

// Path returns the snapshot file path.
func (s *Store) Path() string { return s.path }

func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}

// persistedPoint is the wire form of a history entry. Timestamps use
// RFC 3339 so they round-trip as text.
type persistedPoint struct {
	Timestamp       string  `json:"timestamp"`
	TempStart       float64 `json:"temp_start"`
	TempEnd         float64 `json:"temp_end"`
	HVACAction      string  `json:"hvac_action"`
	IntervalMinutes float64 `json:"interval_minutes"`
}

type persistenceFile struct {
	Version     int              `json:"version"`
	SavedAt     time.Time        `json:"saved_at"`
	ThermalData []persistedPoint `json:"thermal_data"`

	HeatingRate     *float64 `json:"heating_rate,omitempty"`
	CoolingRate     *float64 `json:"cooling_rate,omitempty"`
	NaturalRate     *float64 `json:"natural_rate,omitempty"`
	LastCalculation string   `json:"last_calculation,omitempty"`

	// Legacy v1 fields, read-only.
	HeatUpRate   *float64 `json:"heat_up_rate,omitempty"`
	CoolDownRate *float64 `json:"cool_down_rate,omitempty"`
}

// Save writes the snapshot atomically, overwriting the previous one.
func (s *Store) Save(snap Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(s.path), s.dirPerm); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	f := persistenceFile{
		Version:     SchemaVersion,
		SavedAt:     time.Now(),
		ThermalData: make([]persistedPoint, 0, len(snap.History)),
		HeatingRate: snap.Rates.Heating,
		CoolingRate: snap.Rates.Cooling,
		NaturalRate: snap.Rates.Natural,
	}
	if !snap.Rates.LastCalculation.IsZero() {
		f.LastCalculation = snap.Rates.LastCalculation.Format(time.RFC3339Nano)
	}
	for _, p := range snap.History {
		f.ThermalData = append(f.ThermalData, persistedPoint{
			Timestamp:       p.Timestamp.Format(time.RFC3339Nano),
			TempStart:       p.TempStart,
			TempEnd:         p.TempEnd,
			HVACAction:      p.HVACAction.String(),
			IntervalMinutes: p.IntervalMinutes,
		})
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, s.filePerm); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot file. A missing file yields an empty snapshot
// and no error; an unreadable or unparseable file yields an empty
// snapshot and the error, so the caller can degrade to a cold start.
// Malformed individual entries are skipped with a warning.
func (s *Store) Load() (Snapshot, error) {
	// Stale temp files from a crashed save are dead weight.
	if _, err := os.Stat(s.path + ".tmp"); err == nil {
		_ = os.Remove(s.path + ".tmp")
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, nil
		}
		return Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}

	var f persistenceFile
	if err := json.Unmarshal(data, &f); err != nil {
		return Snapshot{}, fmt.Errorf("parse snapshot: %w", err)
	}

	if f.Version < SchemaVersion {
		migrateLegacyRates(&f)
	}

	snap := Snapshot{
		Rates: thermal.RateSnapshot{
			Heating: f.HeatingRate,
			Cooling: f.CoolingRate,
			Natural: f.NaturalRate,
		},
	}
	if f.LastCalculation != "" {
		if ts, err := time.Parse(time.RFC3339Nano, f.LastCalculation); err == nil {
			snap.Rates.LastCalculation = ts
		} else {
			logger.Warn("store: unparseable last_calculation %q: %v", f.LastCalculation, err)
		}
	}

	for i, raw := range f.ThermalData {
		p, err := restorePoint(raw)
		if err != nil {
			logger.Warn("store: skipping history entry %d: %v", i, err)
			continue
		}
		snap.History = append(snap.History, p)
	}
	return snap, nil
}

func restorePoint(raw persistedPoint) (thermal.DataPoint, error) {
	ts, err := time.Parse(time.RFC3339Nano, raw.Timestamp)
	if err != nil {
		// Second chance without sub-second precision, the common form
		// written by hand-edited or older files.
		ts, err = time.Parse(time.RFC3339, raw.Timestamp)
		if err != nil {
			return thermal.DataPoint{}, fmt.Errorf("timestamp %q: %w", raw.Timestamp, err)
		}
	}
	action, err := thermal.ParseHVACAction(raw.HVACAction)
	if err != nil {
		return thermal.DataPoint{}, err
	}
	return thermal.DataPoint{
		Timestamp:       ts,
		TempStart:       raw.TempStart,
		TempEnd:         raw.TempEnd,
		HVACAction:      action,
		IntervalMinutes: raw.IntervalMinutes,
	}, nil
}

// migrateLegacyRates maps the v1 two-regime schema onto the current
// slots: heat_up_rate becomes heating_rate, cool_down_rate becomes
// cooling_rate, and the natural rate stays unset. Run once at load, so
// schema knowledge never leaks into business logic.
func migrateLegacyRates(f *persistenceFile) {
	if f.HeatingRate == nil && f.HeatUpRate != nil {
		f.HeatingRate = f.HeatUpRate
	}
	if f.CoolingRate == nil && f.CoolDownRate != nil {
		f.CoolingRate = f.CoolDownRate
	}
	f.Version = SchemaVersion
}
