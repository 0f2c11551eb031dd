package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/curve-control/thermagent/cmd/app"
	modbusact "github.com/curve-control/thermagent/internal/actuators/modbus"
	httpctrl "github.com/curve-control/thermagent/internal/controllers/http"
	mqttctrl "github.com/curve-control/thermagent/internal/controllers/mqtt"
	"github.com/curve-control/thermagent/internal/device"
	"github.com/curve-control/thermagent/internal/logger"
	"github.com/curve-control/thermagent/internal/optimizer"
	"github.com/curve-control/thermagent/internal/ports"
	"github.com/curve-control/thermagent/internal/schedule"
	"github.com/curve-control/thermagent/internal/store"
	"github.com/curve-control/thermagent/internal/thermal"
)

func main() {
	var (
		configPath string
		dumpConfig bool
		validate   bool
	)
	flag.StringVar(&configPath, "config", "config.yaml", "path to config file (.yaml/.yml/.json)")
	flag.BoolVar(&dumpConfig, "dump-config", false, "print the effective configuration and exit")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	flag.Parse()

	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if dumpConfig {
		b, err := cfg.DumpYAML()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Stdout.Write(b)
		return
	}
	if validate {
		fmt.Println("config ok")
		return
	}

	logger.Init(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("%v", err)
	}
}

func run(cfg app.Config) error {
	params, err := cfg.LearnerParams()
	if err != nil {
		return err
	}
	learner, err := thermal.NewLearner(params)
	if err != nil {
		return err
	}

	dev := device.New(cfg.DeviceID, learner, store.New(cfg.DataDir, cfg.DeviceID))
	if err := dev.Setup(); err != nil {
		logger.Warn("initial snapshot write failed: %v", err)
	}

	var actuator ports.Actuator
	if cfg.Actuators.Modbus.Enabled {
		act, err := modbusact.New(cfg.ModbusActuatorConfig())
		if err != nil {
			return err
		}
		defer act.Close()
		actuator = act
	}

	var coord *schedule.Coordinator
	if cfg.Optimizer.Enabled {
		client := optimizer.NewClient(cfg.Optimizer.BaseURL, cfg.Optimizer.Timeout)

		// Probe the optimizer so a bad URL surfaces at startup instead
		// of on the first scheduled refresh.
		probeCtx, cancelProbe := context.WithTimeout(context.Background(), cfg.Optimizer.Timeout)
		heating, cooling, _ := dev.RatesWithFallback()
		probe := schedule.BuildRequest(cfg.SchedulePreferences(), cfg.Preferences.HomeTemperature, heating, cooling)
		if err := client.Validate(probeCtx, probe); err != nil {
			logger.Warn("optimizer validation failed: %v", err)
		}
		cancelProbe()

		coord = schedule.NewCoordinator(client, cfg.SchedulePreferences(), dev, dev, actuator, cfg.Optimizer.UpdateInterval)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return dev.Run(ctx) })

	if coord != nil {
		g.Go(func() error { return coord.Run(ctx) })
	}

	if cfg.Controllers.HTTP.Enabled {
		srv := httpctrl.New(dev, coord, cfg.Controllers.HTTP.Addr, cfg.DeviceID)
		logger.Info("http listening on %s", cfg.Controllers.HTTP.Addr)
		g.Go(func() error { return srv.Run(ctx) })
	}

	if cfg.Controllers.MQTT.Enabled {
		var setpoints ports.SetpointProvider
		if coord != nil {
			setpoints = coord
		}
		ctrl, err := mqttctrl.New(dev, dev, setpoints, cfg.MQTTControllerConfig())
		if err != nil {
			return err
		}
		logger.Info("mqtt consuming %s", cfg.Controllers.MQTT.BrokerURL)
		g.Go(func() error { return ctrl.Run(ctx) })
	}

	return g.Wait()
}
