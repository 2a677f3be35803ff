package hal

import (
	"time"

	"siwtouch/internal/config"
	"siwtouch/internal/firmware"
	"siwtouch/internal/input"
	appLog "siwtouch/internal/log"
)

// Logger is the logging interface the device writes to. *log.Logger from
// internal/log satisfies it.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, err error, kv ...any)
}

// Progress is passed to ProgressCallback while a firmware image streams.
type Progress struct {
	// Phase is one of "code", "verify", "conf" or "complete".
	Phase string `json:"phase"`

	Written int `json:"written"`
	Total   int `json:"total"`

	// Percentage is the completion of the current phase (0.0 to 100.0).
	Percentage float64 `json:"percentage"`

	Elapsed time.Duration `json:"elapsed_ns"`
}

// ProgressCallback is called after every firmware chunk. It runs with the
// device lock held and must return quickly.
type ProgressCallback func(Progress)

// EngineConfig sizes the register engine's scratch buffers and framing.
type EngineConfig struct {
	BufSize     int
	TxHdrSize   int
	RxHdrSize   int
	RxDummySize int
	// XferAllowed enables batched transfers when the transport has them.
	XferAllowed bool
}

// Options holds everything a Device needs beyond its transport and variant.
type Options struct {
	Engine EngineConfig

	HwResetDelay time.Duration
	SwResetDelay time.Duration

	MaxX      int
	MaxY      int
	MaxFinger int
	MaxID     int

	UseLPWG          bool
	UseQuickCover    bool
	SensorlessMargin int

	BootMode    BootMode
	DebugOption uint32
	// MFTS forces double tap during suspend, as on the production line.
	MFTS bool

	// ChipID overrides the variant identity string when non-empty.
	ChipID string

	FirmwareName  string
	ForceUpgrade  bool
	VerifyUpgrade bool

	MonitorSchedule string

	Logger     Logger
	Reporter   input.Reporter
	Hooks      Hooks
	Platform   Platform
	SelfTester SelfTester
	Firmware   firmware.Source
	Progress   ProgressCallback

	// Sleep is used for every fixed delay. Tests replace it to run
	// without waiting.
	Sleep func(time.Duration)
}

func defaultOptions() Options {
	return Options{
		Engine: EngineConfig{
			TxHdrSize:   2,
			RxHdrSize:   4,
			RxDummySize: 2,
			XferAllowed: true,
		},
		HwResetDelay:    210 * time.Millisecond,
		SwResetDelay:    90 * time.Millisecond,
		MaxX:            1440,
		MaxY:            2560,
		MaxFinger:       10,
		MaxID:           10,
		UseLPWG:         true,
		MonitorSchedule: "@every 10s",
		Logger:          appLog.Default(),
		Reporter:        input.Nop{},
		Hooks:           NopHooks{},
		Platform:        nopPlatform{},
		Sleep:           time.Sleep,
	}
}

// Option is a functional option for configuring a Device.
type Option func(*Options)

// WithEngine sets the bus framing and buffer sizes.
func WithEngine(cfg EngineConfig) Option {
	return func(o *Options) {
		o.Engine = cfg
	}
}

// WithResetDelays sets the settle time after hardware and software reset.
func WithResetDelays(hw, sw time.Duration) Option {
	return func(o *Options) {
		o.HwResetDelay = hw
		o.SwResetDelay = sw
	}
}

// WithCaps sets the panel resolution and finger limits.
//
// Example:
//
//	dev, err := hal.New(t, v, hal.WithCaps(1080, 2160, 10, 10))
func WithCaps(maxX, maxY, maxFinger, maxID int) Option {
	return func(o *Options) {
		o.MaxX = maxX
		o.MaxY = maxY
		o.MaxFinger = maxFinger
		o.MaxID = maxID
	}
}

// WithLPWG enables low-power gestures and, optionally, quick cover.
func WithLPWG(use, quickCover bool, margin int) Option {
	return func(o *Options) {
		o.UseLPWG = use
		o.UseQuickCover = quickCover
		o.SensorlessMargin = margin
	}
}

// WithBootMode selects normal, charger or tc-check boot behaviour.
func WithBootMode(m BootMode) Option {
	return func(o *Options) {
		o.BootMode = m
	}
}

// WithDebugOption sets driver debug switches.
func WithDebugOption(mask uint32) Option {
	return func(o *Options) {
		o.DebugOption = mask
	}
}

// WithLogger sets the device logger.
//
// Example:
//
//	dev, err := hal.New(t, v, hal.WithLogger(appLog.Default().With("dev", "ts0")))
func WithLogger(l Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

// WithReporter sets where decoded touch and gesture events go.
func WithReporter(r input.Reporter) Option {
	return func(o *Options) {
		if r != nil {
			o.Reporter = r
		}
	}
}

// WithHooks installs platform callbacks for watch, ESD and charger events.
func WithHooks(h Hooks) Option {
	return func(o *Options) {
		if h != nil {
			o.Hooks = h
		}
	}
}

// WithPlatform sets the reset, supply and interrupt lines.
func WithPlatform(p Platform) Option {
	return func(o *Options) {
		if p != nil {
			o.Platform = p
		}
	}
}

// WithSelfTester replaces the built-in production self test.
func WithSelfTester(t SelfTester) Option {
	return func(o *Options) {
		o.SelfTester = t
	}
}

// WithFirmware sets the image source and the default image name used by
// UpgradeWithRetry.
func WithFirmware(src firmware.Source, name string) Option {
	return func(o *Options) {
		o.Firmware = src
		o.FirmwareName = name
	}
}

// WithProgress sets a callback to track firmware download progress.
//
// Example:
//
//	dev, err := hal.New(t, v,
//	    hal.WithProgress(func(p hal.Progress) {
//	        fmt.Printf("[%s] %.1f%%\n", p.Phase, p.Percentage)
//	    }),
//	)
func WithProgress(cb ProgressCallback) Option {
	return func(o *Options) {
		o.Progress = cb
	}
}

// WithSleep replaces time.Sleep for all fixed delays.
func WithSleep(fn func(time.Duration)) Option {
	return func(o *Options) {
		if fn != nil {
			o.Sleep = fn
		}
	}
}

// WithMonitorSchedule sets the cron spec of the health monitor.
func WithMonitorSchedule(spec string) Option {
	return func(o *Options) {
		o.MonitorSchedule = spec
	}
}

// ConfigOptions translates the application configuration into device
// options. Logger, reporter, platform and firmware source are left to the
// caller.
func ConfigOptions(cfg *config.Config) []Option {
	return []Option{
		WithEngine(EngineConfig{
			BufSize:     cfg.Bus.BufSize,
			TxHdrSize:   cfg.Bus.TxHdrSize,
			RxHdrSize:   cfg.Bus.RxHdrSize,
			RxDummySize: cfg.Bus.RxDummySize,
			XferAllowed: cfg.Bus.Xfer,
		}),
		WithResetDelays(
			time.Duration(cfg.Timing.HwResetDelayMs)*time.Millisecond,
			time.Duration(cfg.Timing.SwResetDelayMs)*time.Millisecond,
		),
		WithCaps(cfg.Caps.MaxX, cfg.Caps.MaxY, cfg.Caps.MaxFinger, cfg.Caps.MaxID),
		WithLPWG(cfg.LPWG.Use, cfg.LPWG.QuickCover, cfg.LPWG.SensorlessMargin),
		WithBootMode(ParseBootMode(cfg.Device.BootMode)),
		WithDebugOption(cfg.Device.DebugOption),
		WithMonitorSchedule(cfg.Monitor.Schedule),
		func(o *Options) {
			o.ChipID = cfg.Device.ChipID
			o.ForceUpgrade = cfg.Firmware.Force
			o.VerifyUpgrade = cfg.Firmware.Verify
		},
	}
}
