// Package mqttctrl bridges a thermostat's MQTT state topic to the
// learning pipeline. It consumes climate state messages and feeds them
// to the observation sink, and publishes the learning summary and the
// recommended setpoint back to the broker.
package mqttctrl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/curve-control/thermagent/internal/logger"
	"github.com/curve-control/thermagent/internal/ports"
	"github.com/curve-control/thermagent/internal/thermal"
)

type Config struct {
	// Identity
	DeviceID string

	// MQTT connection
	BrokerURL string
	ClientID  string

	// Topics. StateTopic is the thermostat's climate state feed;
	// BaseTopic is where the controller publishes its own state.
	BaseTopic  string
	StateTopic string

	// Behavior
	QoS             byte
	RetainState     bool
	PublishInterval time.Duration

	Username string
	Password string
}

type Controller struct {
	sink      ports.ObservationSink
	rates     ports.RateProvider
	setpoints ports.SetpointProvider
	cfg       Config

	client mqtt.Client
	now    func() time.Time
}

// New builds a controller. setpoints may be nil when no schedule
// coordinator is running; the setpoint topic then goes unpublished.
func New(sink ports.ObservationSink, rates ports.RateProvider, setpoints ports.SetpointProvider, cfg Config) (*Controller, error) {
	// ---- defaults ----

	if cfg.BrokerURL == "" {
		cfg.BrokerURL = "tcp://localhost:1883"
	}

	if cfg.DeviceID == "" {
		return nil, errors.New("mqtt: DeviceID is required")
	}
	if cfg.BaseTopic == "" {
		cfg.BaseTopic = "thermagent/" + cfg.DeviceID
	}
	if cfg.StateTopic == "" {
		cfg.StateTopic = cfg.BaseTopic + "/state"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "thermagent-" + cfg.DeviceID
	}
	if cfg.PublishInterval <= 0 {
		cfg.PublishInterval = 30 * time.Second
	}
	if cfg.QoS > 1 {
		return nil, errors.New("mqtt: QoS must be 0 or 1")
	}
	return &Controller{
		sink:      sink,
		rates:     rates,
		setpoints: setpoints,
		cfg:       cfg,
		now:       time.Now,
	}, nil
}

func (c *Controller) Run(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(c.cfg.BrokerURL).
		SetClientID(c.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second)

	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}

	// Subscribe when connected/reconnected.
	opts.OnConnect = func(cl mqtt.Client) {
		token := cl.Subscribe(c.cfg.StateTopic, c.cfg.QoS, c.onState)
		token.Wait()
		if err := token.Error(); err != nil {
			logger.Error("mqtt subscribe %s: %v", c.cfg.StateTopic, err)
		}
	}

	c.client = mqtt.NewClient(opts)
	tok := c.client.Connect()
	tok.Wait()
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	// Publish loop: publish summary and setpoint on interval, and only
	// when changed.
	ticker := time.NewTicker(c.cfg.PublishInterval)
	defer ticker.Stop()

	st := c.publishInitial()

	for {
		select {
		case <-ctx.Done():
			c.client.Disconnect(250)
			return ctx.Err()

		case <-ticker.C:
			c.publishChanged(&st)
		}
	}
}

// publishState tracks the last published values so unchanged state is
// not republished on every tick.
type publishState struct {
	summary  thermal.Summary
	setpoint *float64
}

func (c *Controller) publishInitial() publishState {
	st := publishState{summary: c.rates.Summary()}
	c.publishSummary()
	if sp, ok := c.currentSetpoint(); ok {
		c.publishSetpoint()
		v := sp
		st.setpoint = &v
	}
	return st
}

func (c *Controller) publishChanged(st *publishState) {
	cur := c.rates.Summary()
	if !reflect.DeepEqual(cur, st.summary) {
		c.publishSummary()
		st.summary = cur
	}
	if sp, ok := c.currentSetpoint(); ok {
		if st.setpoint == nil || *st.setpoint != sp {
			c.publishSetpoint()
			v := sp
			st.setpoint = &v
		}
	}
}

// stateMessage is the climate state payload published by Home
// Assistant style thermostats.
type stateMessage struct {
	CurrentTemperature *float64 `json:"current_temperature"`
	HVACAction         string   `json:"hvac_action"`
	State              string   `json:"state"`
}

func (c *Controller) onState(_ mqtt.Client, msg mqtt.Message) {
	var m stateMessage
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		logger.Debug("mqtt state %s: bad payload: %v", msg.Topic(), err)
		return
	}

	// Entities report these states while the device is offline.
	switch strings.ToLower(m.State) {
	case "unavailable", "unknown":
		return
	}
	if m.CurrentTemperature == nil {
		return
	}

	action, err := thermal.ParseHVACAction(m.HVACAction)
	if err != nil {
		// Let the learner's sample validation count the reject.
		action = thermal.ActionUnknown
	}

	c.sink.Enqueue(thermal.Observation{
		Timestamp:   c.now(),
		Temperature: *m.CurrentTemperature,
		HVACAction:  action,
	})
}

type summaryDTO struct {
	DeviceID string `json:"device_id"`
	thermal.Summary
}

func (c *Controller) publishSummary() {
	b, _ := json.Marshal(summaryDTO{DeviceID: c.cfg.DeviceID, Summary: c.rates.Summary()})
	c.client.Publish(c.topic("summary"), c.cfg.QoS, c.cfg.RetainState, b)
}

type setpointDTO struct {
	DeviceID string  `json:"device_id"`
	Setpoint float64 `json:"setpoint"`
}

func (c *Controller) publishSetpoint() {
	sp, ok := c.currentSetpoint()
	if !ok {
		return
	}
	b, _ := json.Marshal(setpointDTO{DeviceID: c.cfg.DeviceID, Setpoint: sp})
	c.client.Publish(c.topic("setpoint"), c.cfg.QoS, c.cfg.RetainState, b)
}

func (c *Controller) currentSetpoint() (float64, bool) {
	if c.setpoints == nil {
		return 0, false
	}
	return c.setpoints.CurrentSetpoint()
}

func (c *Controller) topic(suffix string) string {
	return strings.TrimRight(c.cfg.BaseTopic, "/") + "/" + suffix
}
