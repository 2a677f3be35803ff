package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DeviceConfig selects the controller variant and its boot behaviour.
type DeviceConfig struct {
	// Chip is the variant name (lg4894, lg4895, lg4946, sw1828).
	Chip string `yaml:"chip" json:"chip"`
	// ChipID overrides the expected identity string; empty uses the
	// variant default.
	ChipID string `yaml:"chip_id,omitempty" json:"chip_id,omitempty"`
	// Name is a label used in logs and the API.
	Name string `yaml:"name" json:"name"`
	// BootMode is one of "normal", "charger", "tc_check".
	BootMode string `yaml:"boot_mode" json:"boot_mode"`
	// DebugOption is a bitmask of driver debug switches.
	DebugOption uint32 `yaml:"debug_option" json:"debug_option"`
}

// BusConfig describes the register transport.
type BusConfig struct {
	// Type is "spi", "i2c" or "sim".
	Type    string `yaml:"type" json:"type"`
	Port    string `yaml:"port" json:"port"`
	SpeedHz int64  `yaml:"speed_hz" json:"speed_hz"`
	SPIMode int    `yaml:"spi_mode" json:"spi_mode"`
	I2CAddr uint16 `yaml:"i2c_addr" json:"i2c_addr"`

	BufSize     int `yaml:"buf_size" json:"buf_size"`
	TxHdrSize   int `yaml:"tx_hdr_size" json:"tx_hdr_size"`
	RxHdrSize   int `yaml:"rx_hdr_size" json:"rx_hdr_size"`
	RxDummySize int `yaml:"rx_dummy_size" json:"rx_dummy_size"`

	// Xfer enables batched transfers when the transport supports them.
	Xfer bool `yaml:"xfer" json:"xfer"`
}

// GPIOConfig holds the character device and line offsets. Negative offsets
// mean the line is not wired.
type GPIOConfig struct {
	Chip      string `yaml:"chip" json:"chip"`
	ResetLine int    `yaml:"reset_line" json:"reset_line"`
	IRQLine   int    `yaml:"irq_line" json:"irq_line"`
	VDDLine   int    `yaml:"vdd_line" json:"vdd_line"`
	VIOLine   int    `yaml:"vio_line" json:"vio_line"`
}

// TimingConfig holds reset delays in milliseconds.
type TimingConfig struct {
	HwResetDelayMs int `yaml:"hw_reset_delay_ms" json:"hw_reset_delay_ms"`
	SwResetDelayMs int `yaml:"sw_reset_delay_ms" json:"sw_reset_delay_ms"`
}

// CapsConfig describes the touch surface.
type CapsConfig struct {
	MaxX      int `yaml:"max_x" json:"max_x"`
	MaxY      int `yaml:"max_y" json:"max_y"`
	MaxFinger int `yaml:"max_finger" json:"max_finger"`
	MaxID     int `yaml:"max_id" json:"max_id"`
}

// LPWGConfig controls low-power gesture support.
type LPWGConfig struct {
	Use              bool `yaml:"use" json:"use"`
	QuickCover       bool `yaml:"quick_cover" json:"quick_cover"`
	SensorlessMargin int  `yaml:"sensorless_margin" json:"sensorless_margin"`
}

// FirmwareConfig points at the firmware image store.
type FirmwareConfig struct {
	// Path is the directory images are resolved against, or a default
	// image when it names a file.
	Path   string `yaml:"path" json:"path"`
	Force  bool   `yaml:"force" json:"force"`
	Verify bool   `yaml:"verify" json:"verify"`
}

// MonitorConfig schedules the periodic health check.
type MonitorConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Schedule is a cron expression with an optional seconds field,
	// e.g. "*/10 * * * * *".
	Schedule string `yaml:"schedule" json:"schedule"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	Device   DeviceConfig   `yaml:"device" json:"device"`
	Bus      BusConfig      `yaml:"bus" json:"bus"`
	GPIO     GPIOConfig     `yaml:"gpio" json:"gpio"`
	Timing   TimingConfig   `yaml:"timing" json:"timing"`
	Caps     CapsConfig     `yaml:"caps" json:"caps"`
	LPWG     LPWGConfig     `yaml:"lpwg" json:"lpwg"`
	Firmware FirmwareConfig `yaml:"firmware" json:"firmware"`
	Monitor  MonitorConfig  `yaml:"monitor" json:"monitor"`

	// Listen is the HTTP listen address for the API. Empty disables it.
	Listen string `yaml:"listen" json:"listen"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen   = "127.0.0.1:8080"
	defaultSchedule = "@every 10s"
	defaultFwPath   = "/lib/firmware/siw"
)

// DefaultConfig returns an in-memory default configuration for an LG4895
// panel on the first SPI port.
func DefaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Chip:     "lg4895",
			Name:     "siw_touch",
			BootMode: "normal",
		},
		Bus: BusConfig{
			Type:        "spi",
			Port:        "",
			SpeedHz:     10_000_000,
			SPIMode:     0,
			I2CAddr:     0x28,
			BufSize:     8 << 10,
			TxHdrSize:   2,
			RxHdrSize:   4,
			RxDummySize: 2,
			Xfer:        true,
		},
		GPIO: GPIOConfig{
			Chip:      "gpiochip0",
			ResetLine: 17,
			IRQLine:   27,
			VDDLine:   -1,
			VIOLine:   -1,
		},
		Timing: TimingConfig{
			HwResetDelayMs: 210,
			SwResetDelayMs: 90,
		},
		Caps: CapsConfig{
			MaxX:      1440,
			MaxY:      2560,
			MaxFinger: 10,
			MaxID:     10,
		},
		LPWG: LPWGConfig{
			Use:        true,
			QuickCover: true,
		},
		Firmware: FirmwareConfig{
			Path: defaultFwPath,
		},
		Monitor: MonitorConfig{
			Enabled:  false,
			Schedule: defaultSchedule,
		},
		Listen:   defaultListen,
		LogLevel: "info",
	}
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave correctly.
func (c *Config) Normalize() {
	d := DefaultConfig()

	c.Device.Chip = strings.ToLower(strings.TrimSpace(c.Device.Chip))
	if c.Device.Chip == "" {
		c.Device.Chip = d.Device.Chip
	}
	if c.Device.Name == "" {
		c.Device.Name = d.Device.Name
	}
	switch c.Device.BootMode {
	case "normal", "charger", "tc_check":
	default:
		c.Device.BootMode = "normal"
	}

	c.Bus.Type = strings.ToLower(c.Bus.Type)
	switch c.Bus.Type {
	case "spi", "i2c", "sim":
	default:
		c.Bus.Type = d.Bus.Type
	}
	if c.Bus.SpeedHz <= 0 {
		c.Bus.SpeedHz = d.Bus.SpeedHz
	}
	if c.Bus.I2CAddr == 0 {
		c.Bus.I2CAddr = d.Bus.I2CAddr
	}
	if c.Bus.BufSize <= 0 {
		c.Bus.BufSize = d.Bus.BufSize
	}
	if c.Bus.TxHdrSize <= 0 {
		c.Bus.TxHdrSize = d.Bus.TxHdrSize
	}
	if c.Bus.RxHdrSize <= 0 {
		c.Bus.RxHdrSize = d.Bus.RxHdrSize
	}
	if c.Bus.RxDummySize < 0 {
		c.Bus.RxDummySize = 0
	}

	if c.GPIO.Chip == "" {
		c.GPIO.Chip = d.GPIO.Chip
	}

	if c.Timing.HwResetDelayMs <= 0 {
		c.Timing.HwResetDelayMs = d.Timing.HwResetDelayMs
	}
	if c.Timing.SwResetDelayMs <= 0 {
		c.Timing.SwResetDelayMs = d.Timing.SwResetDelayMs
	}

	if c.Caps.MaxX <= 0 {
		c.Caps.MaxX = d.Caps.MaxX
	}
	if c.Caps.MaxY <= 0 {
		c.Caps.MaxY = d.Caps.MaxY
	}
	if c.Caps.MaxFinger <= 0 || c.Caps.MaxFinger > 10 {
		c.Caps.MaxFinger = d.Caps.MaxFinger
	}
	if c.Caps.MaxID <= 0 {
		c.Caps.MaxID = c.Caps.MaxFinger
	}

	if c.Firmware.Path == "" {
		c.Firmware.Path = d.Firmware.Path
	}
	if c.Monitor.Schedule == "" {
		c.Monitor.Schedule = defaultSchedule
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
}

// Validate reports settings Normalize cannot repair.
func (c *Config) Validate() error {
	if c.Bus.TxHdrSize+c.Bus.RxHdrSize >= c.Bus.BufSize {
		return fmt.Errorf("config: headers (%d+%d) leave no payload in a %d byte buffer",
			c.Bus.TxHdrSize, c.Bus.RxHdrSize, c.Bus.BufSize)
	}
	if c.BasicAuth != nil && c.BasicAuth.Username == "" {
		return errors.New("config: basic_auth requires a username")
	}
	return nil
}

// Load loads configuration from the given YAML path. A missing file is
// created with defaults and 0600 permissions.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes cfg atomically (temp file + rename) with 0600 permissions,
// creating the parent directory with 0700 if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".siwtouch-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
