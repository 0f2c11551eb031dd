// Package modbusact pushes recommended setpoints to a thermostat that
// exposes its setpoint as a Modbus holding register.
package modbusact

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/goburrow/modbus"

	"github.com/curve-control/thermagent/internal/logger"
)

// Config for the Modbus actuator.
type Config struct {
	Addr   string
	UnitID byte // Modbus slave/unit ID, 1..247.

	// SetpointRegister is the holding register carrying the target
	// temperature, scaled by TemperatureScale.
	SetpointRegister uint16

	Timeout time.Duration

	// Tolerance suppresses writes when the device already holds a
	// setpoint this close to the requested one.
	Tolerance float64
}

type Actuator struct {
	cfg Config

	mu      sync.Mutex
	handler *modbus.TCPClientHandler
	client  modbus.Client
}

func New(cfg Config) (*Actuator, error) {
	if cfg.UnitID == 0 {
		return nil, errors.New("modbus: UnitID is required (non-zero)")
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:1502"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = 0.1
	}
	return &Actuator{cfg: cfg}, nil
}

// SetTemperature writes the setpoint register. A read-back within the
// configured tolerance skips the write, so repeated pushes of the same
// schedule slot stay idempotent even when something else moved the
// register in between.
func (a *Actuator) SetTemperature(ctx context.Context, setpoint float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	client, err := a.connect()
	if err != nil {
		return err
	}

	res, err := client.ReadHoldingRegisters(a.cfg.SetpointRegister, 1)
	if err != nil {
		a.disconnect()
		return fmt.Errorf("modbus read setpoint: %w", err)
	}
	if len(res) == 2 {
		current := decodeTemp(binary.BigEndian.Uint16(res[0:2]))
		if math.Abs(current-setpoint) < a.cfg.Tolerance {
			logger.Debug("modbus %s: setpoint already %.2fF, skipping write", a.cfg.Addr, current)
			return nil
		}
	}

	if _, err := client.WriteSingleRegister(a.cfg.SetpointRegister, encodeTemp(setpoint)); err != nil {
		a.disconnect()
		return fmt.Errorf("modbus write setpoint: %w", err)
	}
	logger.Info("modbus %s: setpoint written %.2fF", a.cfg.Addr, setpoint)
	return nil
}

// Close drops the TCP connection. Safe to call multiple times.
func (a *Actuator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.disconnect()
}

// connect lazily dials the device and keeps the connection for
// subsequent writes. Callers hold a.mu.
func (a *Actuator) connect() (modbus.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	handler := modbus.NewTCPClientHandler(a.cfg.Addr)
	handler.Timeout = a.cfg.Timeout
	handler.SlaveId = a.cfg.UnitID
	if err := handler.Connect(); err != nil {
		return nil, fmt.Errorf("modbus connect %s: %w", a.cfg.Addr, err)
	}
	a.handler = handler
	a.client = modbus.NewClient(handler)
	return a.client, nil
}

func (a *Actuator) disconnect() {
	if a.handler != nil {
		_ = a.handler.Close()
	}
	a.handler = nil
	a.client = nil
}

const TemperatureScale int = 100

func encodeTemp(v float64) uint16 {
	r := min(max(int(math.Round(v*float64(TemperatureScale))), math.MinInt16), math.MaxInt16)
	return uint16(int16(r))
}

func decodeTemp(u uint16) float64 {
	i := int16(u)
	return float64(i) / float64(TemperatureScale)
}
