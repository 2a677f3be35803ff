package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"siwtouch/internal/bus"
	"siwtouch/internal/config"
	"siwtouch/internal/firmware"
	"siwtouch/internal/gpio"
	"siwtouch/internal/hal"
	"siwtouch/internal/input"
	appLog "siwtouch/internal/log"
	"siwtouch/internal/reg"
	"siwtouch/internal/sim"
	"siwtouch/internal/web"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	sim        bool
	upgrade    string
	force      bool
	once       bool
}

func main() {
	appLog.Info("siwtouch starting", "version", "0.1.0")

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI flags override the config file.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.sim {
		conf.Bus.Type = "sim"
	}
	if flags.force {
		conf.Firmware.Force = true
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	appLog.Info("effective config",
		"chip", conf.Device.Chip,
		"bus", conf.Bus.Type,
		"port", conf.Bus.Port,
		"boot_mode", conf.Device.BootMode,
		"listen", conf.Listen,
		"monitor", conf.Monitor.Enabled,
		"schedule", conf.Monitor.Schedule,
		"once", flags.once,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf, flags); err != nil {
		appLog.Error("siwtouch failed", err)
		os.Exit(1)
	}
	appLog.Info("siwtouch exiting")
}

func run(ctx context.Context, conf *config.Config, flags flagConfig) error {
	v, err := reg.Lookup(conf.Device.Chip)
	if err != nil {
		return err
	}

	t, err := openTransport(conf, v)
	if err != nil {
		return err
	}
	defer t.Close()

	// IRQ edges are funneled to one goroutine so HandleIRQ never runs on
	// the gpiocdev event goroutine.
	irqCh := make(chan struct{}, 1)
	pl, closePl, err := openPlatform(conf, func() {
		select {
		case irqCh <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return err
	}
	defer closePl()

	lg := appLog.Default().With("dev", conf.Device.Name)
	srv := web.NewServer(conf, nil)

	opts := append(hal.ConfigOptions(conf),
		hal.WithLogger(lg),
		hal.WithReporter(input.LogReporter{Log: lg, Secret: true}),
		hal.WithPlatform(pl),
		hal.WithFirmware(firmwareSource(conf.Firmware.Path), ""),
		hal.WithProgress(srv.ReportProgress),
	)
	dev, err := hal.New(t, v, opts...)
	if err != nil {
		return err
	}
	defer dev.Close()

	if err := dev.Probe(); err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	if hal.ParseBootMode(conf.Device.BootMode) != hal.BootCharger {
		if err := dev.Init(); err != nil {
			return fmt.Errorf("init: %w", err)
		}
	}
	appLog.Info("device ready", "chip", v.Chip)
	fmt.Fprint(os.Stdout, dev.VersionText())

	if flags.upgrade != "" {
		name := flags.upgrade
		if name == "default" {
			name = ""
		}
		res, err := dev.UpgradeWithRetry(name)
		if err != nil {
			return fmt.Errorf("upgrade: %w", err)
		}
		appLog.Info("upgrade finished", "result", res)
	}

	if flags.once {
		if err := dev.MonitorOnce(); err != nil {
			appLog.Warn("health check failed", "err", err)
		}
		dev.WaitIdle()
		return dev.Remove()
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-irqCh:
				if err := dev.HandleIRQ(); err != nil {
					appLog.Warn("irq handling failed", "err", err)
				}
			}
		}
	}()

	if conf.Monitor.Enabled {
		if err := dev.StartMonitor(); err != nil {
			return err
		}
	}

	srv.SetDevice(dev)
	httpErr := make(chan error, 1)
	if conf.Listen != "" {
		go func() { httpErr <- srv.Serve(ctx) }()
	}

	select {
	case <-ctx.Done():
		appLog.Info("signal received, shutting down")
	case err := <-httpErr:
		appLog.Error("HTTP server stopped", err)
	}

	return dev.Remove()
}

func openTransport(conf *config.Config, v reg.Variant) (bus.Transport, error) {
	switch conf.Bus.Type {
	case "sim":
		appLog.Warn("using simulated controller", "chip", v.Chip)
		return sim.New(v, sim.WithHeaders(conf.Bus.TxHdrSize, conf.Bus.RxHdrSize)), nil
	case "i2c":
		return bus.OpenI2C(conf.Bus.Port, conf.Bus.I2CAddr)
	default:
		return bus.OpenSPI(conf.Bus.Port, conf.Bus.SpeedHz, conf.Bus.SPIMode)
	}
}

func openPlatform(conf *config.Config, onIRQ func()) (hal.Platform, func(), error) {
	if conf.Bus.Type == "sim" || conf.GPIO.ResetLine < 0 {
		return &sim.Pins{}, func() {}, nil
	}
	lines, err := gpio.Open(gpio.Config{
		Chip:  conf.GPIO.Chip,
		Reset: conf.GPIO.ResetLine,
		IRQ:   conf.GPIO.IRQLine,
		VDD:   conf.GPIO.VDDLine,
		VIO:   conf.GPIO.VIOLine,
	}, onIRQ)
	if err != nil {
		return nil, nil, err
	}
	return lines, func() {
		if err := lines.Close(); err != nil {
			appLog.Warn("gpio close failed", "err", err)
		}
	}, nil
}

// firmwareSource resolves images under path, or uses path as the default
// image when it names a file.
func firmwareSource(path string) firmware.Source {
	fi, err := os.Stat(path)
	if err == nil && !fi.IsDir() {
		return firmware.FileSource{Root: filepath.Dir(path), Default: filepath.Base(path)}
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		appLog.Warn("firmware path not readable", "path", path, "err", err)
	}
	return firmware.FileSource{Root: path}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/siwtouch/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.sim, "sim", false, "Drive a simulated controller instead of real hardware")
	flag.StringVar(&cfg.upgrade, "upgrade", "", "Upgrade firmware with the named image (\"default\" for the configured one)")
	flag.BoolVar(&cfg.force, "force", false, "Force the firmware upgrade regardless of version")
	flag.BoolVar(&cfg.once, "once", false, "Probe, init, run one health check and exit")

	flag.Parse()

	return cfg
}
