package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"

	modbusact "github.com/curve-control/thermagent/internal/actuators/modbus"
	mqttctrl "github.com/curve-control/thermagent/internal/controllers/mqtt"
	"github.com/curve-control/thermagent/internal/schedule"
	"github.com/curve-control/thermagent/internal/thermal"
)

// EnvPrefix guards which environment variables are read as overrides.
const EnvPrefix = "THERMAGENT_"

type Config struct {
	DeviceID  string `koanf:"device_id" yaml:"device_id"`
	DataDir   string `koanf:"data_dir" yaml:"data_dir"`
	LogLevel  string `koanf:"log_level" yaml:"log_level"`
	LogFormat string `koanf:"log_format" yaml:"log_format"`

	Learning    LearningConfig    `koanf:"learning" yaml:"learning"`
	Optimizer   OptimizerConfig   `koanf:"optimizer" yaml:"optimizer"`
	Preferences PreferencesConfig `koanf:"preferences" yaml:"preferences"`

	Controllers struct {
		HTTP HTTPConfig `koanf:"http" yaml:"http"`
		MQTT MQTTConfig `koanf:"mqtt" yaml:"mqtt"`
	} `koanf:"controllers" yaml:"controllers"`

	Actuators struct {
		Modbus ModbusConfig `koanf:"modbus" yaml:"modbus"`
	} `koanf:"actuators" yaml:"actuators"`
}

type LearningConfig struct {
	MinIntervalMinutes float64       `koanf:"min_interval_minutes" yaml:"min_interval_minutes"`
	MaxIntervalMinutes float64       `koanf:"max_interval_minutes" yaml:"max_interval_minutes"`
	MinTempChange      float64       `koanf:"min_temp_change" yaml:"min_temp_change"`
	MaxTempChange      float64       `koanf:"max_temp_change" yaml:"max_temp_change"`
	MinSamples         int           `koanf:"min_samples" yaml:"min_samples"`
	HistoryCapacity    int           `koanf:"history_capacity" yaml:"history_capacity"`
	RollingWindow      time.Duration `koanf:"rolling_window" yaml:"rolling_window"`
	RecalcInterval     time.Duration `koanf:"recalc_interval" yaml:"recalc_interval"`
}

type OptimizerConfig struct {
	Enabled        bool          `koanf:"enabled" yaml:"enabled"`
	BaseURL        string        `koanf:"base_url" yaml:"base_url"`
	Timeout        time.Duration `koanf:"timeout" yaml:"timeout"`
	UpdateInterval time.Duration `koanf:"update_interval" yaml:"update_interval"`
}

type PreferencesConfig struct {
	HomeSize        int     `koanf:"home_size" yaml:"home_size"`
	HomeTemperature float64 `koanf:"home_temperature" yaml:"home_temperature"`
	Location        int     `koanf:"location" yaml:"location"`
	TimeAway        string  `koanf:"time_away" yaml:"time_away"`
	TimeHome        string  `koanf:"time_home" yaml:"time_home"`
	SavingsLevel    int     `koanf:"savings_level" yaml:"savings_level"`
}

type HTTPConfig struct {
	Enabled bool   `koanf:"enabled" yaml:"enabled"`
	Addr    string `koanf:"addr" yaml:"addr"`
}

type MQTTConfig struct {
	Enabled         bool          `koanf:"enabled" yaml:"enabled"`
	BrokerURL       string        `koanf:"broker_url" yaml:"broker_url"`
	ClientID        string        `koanf:"client_id" yaml:"client_id"`
	BaseTopic       string        `koanf:"base_topic" yaml:"base_topic"`
	StateTopic      string        `koanf:"state_topic" yaml:"state_topic"`
	QoS             byte          `koanf:"qos" yaml:"qos"`
	RetainState     bool          `koanf:"retain_state" yaml:"retain_state"`
	PublishInterval time.Duration `koanf:"publish_interval" yaml:"publish_interval"`
	Username        string        `koanf:"username" yaml:"username"`
	Password        string        `koanf:"password" yaml:"password"`
}

type ModbusConfig struct {
	Enabled          bool          `koanf:"enabled" yaml:"enabled"`
	Addr             string        `koanf:"addr" yaml:"addr"`
	UnitID           byte          `koanf:"unit_id" yaml:"unit_id"`
	SetpointRegister uint16        `koanf:"setpoint_register" yaml:"setpoint_register"`
	Tolerance        float64       `koanf:"tolerance" yaml:"tolerance"`
	Timeout          time.Duration `koanf:"timeout" yaml:"timeout"`
}

// Defaults mirrors a learner built from thermal.DefaultParams with the
// HTTP API enabled.
func Defaults() Config {
	var cfg Config
	cfg.DeviceID = "default"
	cfg.LogLevel = "info"
	cfg.LogFormat = "text"

	fp := thermal.DefaultFilterParams()
	cfg.Learning = LearningConfig{
		MinIntervalMinutes: fp.MinIntervalMinutes,
		MaxIntervalMinutes: fp.MaxIntervalMinutes,
		MinTempChange:      fp.MinTempChange,
		MaxTempChange:      fp.MaxTempChange,
		MinSamples:         thermal.DefaultMinSamplesForCalculation,
		HistoryCapacity:    thermal.DefaultHistoryCapacity,
		RollingWindow:      thermal.DefaultRollingWindow,
		RecalcInterval:     thermal.DefaultRecalcInterval,
	}

	cfg.Optimizer.Timeout = 30 * time.Second
	cfg.Optimizer.UpdateInterval = schedule.DefaultUpdateInterval

	cfg.Preferences = PreferencesConfig{
		HomeSize:        2000,
		HomeTemperature: 72,
		TimeAway:        "08:00",
		TimeHome:        "17:00",
		SavingsLevel:    2,
	}

	cfg.Controllers.HTTP.Enabled = true
	cfg.Controllers.HTTP.Addr = ":8080"
	cfg.Controllers.MQTT.PublishInterval = 30 * time.Second
	cfg.Actuators.Modbus.UnitID = 1
	cfg.Actuators.Modbus.Tolerance = 0.1
	return cfg
}

// LoadConfig reads defaults, then the config file when present, then
// THERMAGENT_* environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := Defaults()
	k := koanf.New(".")

	if err := k.Load(structs.Provider(cfg, "koanf"), nil); err != nil {
		return cfg, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		parser, err := parserFor(path)
		if err != nil {
			return cfg, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return cfg, fmt.Errorf("load config %s: %w", path, err)
			}
			// Config file missing -> defaults plus env.
		}
	}

	envProvider := env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return envKeyTransform(strings.TrimPrefix(key, EnvPrefix)), value
		},
	})
	if err := k.Load(envProvider, nil); err != nil {
		return cfg, fmt.Errorf("load env: %w", err)
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return kyaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported config extension %q", ext)
	}
}

// sections with a nested level under them.
var nestedSections = map[string]bool{
	"controllers": true,
	"actuators":   true,
}

// flat sections whose remaining key keeps its underscores.
var flatSections = map[string]bool{
	"learning":    true,
	"optimizer":   true,
	"preferences": true,
}

// envKeyTransform maps CONTROLLERS_HTTP_ADDR to controllers.http.addr
// and LEARNING_MIN_SAMPLES to learning.min_samples. Keys that do not
// name a known section stay top level.
func envKeyTransform(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	parts := strings.Split(key, "_")
	if len(parts) < 2 {
		return key
	}
	section := parts[0]
	switch {
	case nestedSections[section]:
		if len(parts) < 3 {
			return key
		}
		return section + "." + parts[1] + "." + strings.Join(parts[2:], "_")
	case flatSections[section]:
		return section + "." + strings.Join(parts[1:], "_")
	default:
		return key
	}
}

func (c Config) Validate() error {
	if c.DeviceID == "" {
		return errors.New("device_id is required")
	}
	if _, err := c.LearnerParams(); err != nil {
		return err
	}
	if c.Controllers.MQTT.QoS > 1 {
		return errors.New("controllers.mqtt.qos must be 0 or 1")
	}
	if c.Optimizer.Enabled && c.Optimizer.BaseURL == "" {
		return errors.New("optimizer.base_url is required when optimizer is enabled")
	}
	if lvl := c.Preferences.SavingsLevel; lvl < 1 || lvl > 3 {
		return fmt.Errorf("preferences.savings_level must be 1..3, got %d", lvl)
	}
	return nil
}

// LearnerParams builds the learning engine parameters.
func (c Config) LearnerParams() (thermal.Params, error) {
	p := thermal.Params{
		Filter: thermal.FilterParams{
			MinIntervalMinutes: c.Learning.MinIntervalMinutes,
			MaxIntervalMinutes: c.Learning.MaxIntervalMinutes,
			MinTempChange:      c.Learning.MinTempChange,
			MaxTempChange:      c.Learning.MaxTempChange,
		},
		HistoryCapacity:           c.Learning.HistoryCapacity,
		MinSamples:                c.Learning.MinSamples,
		RollingWindow:             c.Learning.RollingWindow,
		RecalcInterval:            c.Learning.RecalcInterval,
		CoolingFallback:           thermal.DefaultCoolingRate30Min,
		NaturalFallback:           thermal.DefaultNaturalRate30Min,
		HeatingFallbackMultiplier: thermal.DefaultHeatingFallbackMultiplier,
	}
	if err := p.Validate(); err != nil {
		return thermal.Params{}, err
	}
	return p, nil
}

// SchedulePreferences builds the occupant preferences for the
// schedule builder.
func (c Config) SchedulePreferences() schedule.Preferences {
	return schedule.Preferences{
		HomeSize:        c.Preferences.HomeSize,
		BaseTemperature: c.Preferences.HomeTemperature,
		Location:        c.Preferences.Location,
		TimeAway:        c.Preferences.TimeAway,
		TimeHome:        c.Preferences.TimeHome,
		SavingsLevel:    c.Preferences.SavingsLevel,
	}
}

// MQTTControllerConfig builds the MQTT controller configuration.
func (c Config) MQTTControllerConfig() mqttctrl.Config {
	m := c.Controllers.MQTT
	return mqttctrl.Config{
		DeviceID:        c.DeviceID,
		BrokerURL:       m.BrokerURL,
		ClientID:        m.ClientID,
		BaseTopic:       m.BaseTopic,
		StateTopic:      m.StateTopic,
		QoS:             m.QoS,
		RetainState:     m.RetainState,
		PublishInterval: m.PublishInterval,
		Username:        m.Username,
		Password:        m.Password,
	}
}

// ModbusActuatorConfig builds the Modbus actuator configuration.
func (c Config) ModbusActuatorConfig() modbusact.Config {
	m := c.Actuators.Modbus
	return modbusact.Config{
		Addr:             m.Addr,
		UnitID:           m.UnitID,
		SetpointRegister: m.SetpointRegister,
		Tolerance:        m.Tolerance,
		Timeout:          m.Timeout,
	}
}

// DumpYAML renders the effective configuration.
func (c Config) DumpYAML() ([]byte, error) {
	return yaml.Marshal(c)
}
