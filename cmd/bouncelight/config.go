package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"bouncelight/internal/button"
	"bouncelight/internal/motion"
	"bouncelight/internal/strip"
)

// Config is the top-level YAML configuration for the bouncelight daemon.
//
// Defaults and validation live here so the rest of the code can assume a
// well-formed config.
type Config struct {
	Motion  MotionFileConfig `yaml:"motion"`
	Strip   StripFileConfig  `yaml:"strip"`
	Button  ButtonConfig     `yaml:"button"`
	Display DisplayConfig    `yaml:"display"`
	StateWS StateWSConfig    `yaml:"state_ws"`
	IPC     IPCConfig        `yaml:"ipc"`
	Journal JournalConfig    `yaml:"journal"`
	Logging LoggingConfig    `yaml:"logging"`
}

// MotionFileConfig is the kinematic tuning in YAML-friendly units.
type MotionFileConfig struct {
	AccelerationPxPerMS2    float64 `yaml:"acceleration_px_per_ms2"`
	TerminalVelocityPxPerMS float64 `yaml:"terminal_velocity_px_per_ms"`
	ExplodeDurationMS       int64   `yaml:"explode_duration_ms"`
}

// StripFileConfig describes the strip. Colors are [r, g, b] triples.
type StripFileConfig struct {
	Length           int   `yaml:"length"`
	MotionColor      []int `yaml:"motion_color,flow"`
	ImpactColor      []int `yaml:"impact_color,flow"`
	MotionBrightness int   `yaml:"motion_brightness"`
	ImpactBrightness int   `yaml:"impact_brightness"`
}

// Button sources.
const (
	ButtonSourceEvdev = "evdev"
	ButtonSourceGPIO  = "gpio"
	ButtonSourceIPC   = "ipc"
)

type ButtonConfig struct {
	Source string `yaml:"source"`

	// evdev
	Device  string `yaml:"device,omitempty"`
	KeyCode int    `yaml:"key_code,omitempty"`

	// gpio (sysfs value file)
	GPIOValuePath string `yaml:"gpio_value_path,omitempty"`
	ActiveLow     bool   `yaml:"active_low,omitempty"`
}

// Display drivers.
const (
	DisplayDriverSPI  = "spi"
	DisplayDriverNone = "none"
)

type DisplayConfig struct {
	Driver  string `yaml:"driver"`
	Device  string `yaml:"device"`
	SpeedHz int    `yaml:"speed_hz"`
	SPIMode int    `yaml:"spi_mode"`
}

type StateWSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns a fully-populated Config matching the reference build:
// five APA102 pixels on SPI and a push button on BTN_0.
func DefaultConfig() Config {
	return Config{
		Motion: MotionFileConfig{
			AccelerationPxPerMS2:    motion.DefaultAcceleration,
			TerminalVelocityPxPerMS: motion.DefaultTerminalVelocity,
			ExplodeDurationMS:       int64(motion.DefaultExplodeDuration),
		},
		Strip: StripFileConfig{
			Length:           strip.DefaultLength,
			MotionColor:      rgbSlice(strip.DefaultMotionColor),
			ImpactColor:      rgbSlice(strip.DefaultImpactColor),
			MotionBrightness: strip.DefaultMotionBrightness,
			ImpactBrightness: strip.DefaultImpactBrightness,
		},
		Button: ButtonConfig{
			Source:        ButtonSourceEvdev,
			Device:        "/dev/input/event0",
			KeyCode:       button.DefaultKeyCode,
			GPIOValuePath: "/sys/class/gpio/gpio8/value",
		},
		Display: DisplayConfig{
			Driver:  DisplayDriverSPI,
			Device:  "/dev/spidev0.0",
			SpeedHz: 4_000_000,
			SPIMode: 0,
		},
		StateWS: StateWSConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8080",
			Path:    "/ws/state",
		},
		IPC: IPCConfig{
			SocketPath: "/tmp/bouncelight.sock",
		},
		Journal: JournalConfig{
			Enabled: false,
			Path:    "~/.bouncelight/journal.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfigFile reads a YAML config file on top of DefaultConfig.
// Unknown fields are rejected to catch typos.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace/comments may follow the document.
	var rest yaml.Node
	if err := dec.Decode(&rest); !errors.Is(err, io.EOF) {
		if err != nil {
			return Config{}, fmt.Errorf("decode config yaml: %w", err)
		}
		return Config{}, errors.New("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides carries command-line values that replace file settings.
// A nil pointer means the flag was not given.
type FlagOverrides struct {
	ButtonSource *string
	ButtonDevice *string
	ButtonGPIO   *string

	DisplayDriver *string
	DisplayDevice *string

	StripLength *int

	StateWSEnabled *bool
	StateWSListen  *string

	IPCSocketPath *string

	JournalEnabled *bool
	JournalPath    *string

	LogLevel  *string
	LogFormat *string
}

// Apply merges the overrides into cfg, including zero values.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.ButtonSource != nil {
		cfg.Button.Source = *o.ButtonSource
	}
	if o.ButtonDevice != nil {
		cfg.Button.Device = *o.ButtonDevice
	}
	if o.ButtonGPIO != nil {
		cfg.Button.GPIOValuePath = *o.ButtonGPIO
	}
	if o.DisplayDriver != nil {
		cfg.Display.Driver = *o.DisplayDriver
	}
	if o.DisplayDevice != nil {
		cfg.Display.Device = *o.DisplayDevice
	}
	if o.StripLength != nil {
		cfg.Strip.Length = *o.StripLength
	}
	if o.StateWSEnabled != nil {
		cfg.StateWS.Enabled = *o.StateWSEnabled
	}
	if o.StateWSListen != nil {
		cfg.StateWS.Listen = *o.StateWSListen
	}
	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.JournalEnabled != nil {
		cfg.Journal.Enabled = *o.JournalEnabled
	}
	if o.JournalPath != nil {
		cfg.Journal.Path = *o.JournalPath
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
	if o.LogFormat != nil {
		cfg.Logging.Format = *o.LogFormat
	}
}

// Validate checks config invariants and returns a user-friendly error.
// Call it after defaults, file, and overrides have been applied.
func (c *Config) Validate() error {
	// Motion
	if !finitePositive(c.Motion.AccelerationPxPerMS2) {
		return errors.New("motion.acceleration_px_per_ms2 must be a finite number > 0")
	}
	if !finitePositive(c.Motion.TerminalVelocityPxPerMS) {
		return errors.New("motion.terminal_velocity_px_per_ms must be a finite number > 0")
	}
	if c.Motion.ExplodeDurationMS <= 0 || c.Motion.ExplodeDurationMS > int64(^uint32(0)>>1) {
		return errors.New("motion.explode_duration_ms must be between 1 and 2147483647")
	}

	// Strip
	if c.Strip.Length < 1 || c.Strip.Length > 1024 {
		return errors.New("strip.length must be between 1 and 1024")
	}
	if err := validateColor("strip.motion_color", c.Strip.MotionColor); err != nil {
		return err
	}
	if err := validateColor("strip.impact_color", c.Strip.ImpactColor); err != nil {
		return err
	}
	if c.Strip.MotionBrightness < 0 || c.Strip.MotionBrightness > strip.MaxBrightness {
		return fmt.Errorf("strip.motion_brightness must be between 0 and %d", strip.MaxBrightness)
	}
	if c.Strip.ImpactBrightness < 0 || c.Strip.ImpactBrightness > strip.MaxBrightness {
		return fmt.Errorf("strip.impact_brightness must be between 0 and %d", strip.MaxBrightness)
	}

	// Button
	switch c.Button.Source {
	case ButtonSourceEvdev:
		if c.Button.Device == "" {
			return errors.New("button.device must not be empty for evdev source")
		}
		if c.Button.KeyCode <= 0 || c.Button.KeyCode > 0x2ff {
			return errors.New("button.key_code must be between 1 and 767")
		}
	case ButtonSourceGPIO:
		if c.Button.GPIOValuePath == "" {
			return errors.New("button.gpio_value_path must not be empty for gpio source")
		}
	case ButtonSourceIPC:
		// Driven through ipc.socket_path.
	default:
		return fmt.Errorf("button.source must be %q, %q or %q", ButtonSourceEvdev, ButtonSourceGPIO, ButtonSourceIPC)
	}

	// Display
	switch c.Display.Driver {
	case DisplayDriverSPI:
		if c.Display.Device == "" {
			return errors.New("display.device must not be empty for spi driver")
		}
		if c.Display.SpeedHz <= 0 {
			return errors.New("display.speed_hz must be > 0")
		}
		if c.Display.SPIMode < 0 || c.Display.SPIMode > 3 {
			return errors.New("display.spi_mode must be between 0 and 3")
		}
	case DisplayDriverNone:
	default:
		return fmt.Errorf("display.driver must be %q or %q", DisplayDriverSPI, DisplayDriverNone)
	}

	// State websocket
	if c.StateWS.Enabled {
		if c.StateWS.Listen == "" {
			return errors.New("state_ws.listen must not be empty when enabled")
		}
		if c.StateWS.Path == "" || c.StateWS.Path[0] != '/' {
			return errors.New("state_ws.path must start with /")
		}
	}

	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}

	if c.Journal.Enabled && c.Journal.Path == "" {
		return errors.New("journal.enabled is true but journal.path is empty")
	}

	// Logging
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if _, err := parseLogFormat(c.Logging.Format); err != nil {
		return fmt.Errorf("logging.format: %w", err)
	}

	return nil
}

func validateColor(name string, c []int) error {
	if len(c) != 3 {
		return fmt.Errorf("%s must have exactly 3 components [r, g, b]", name)
	}
	for _, v := range c {
		if v < 0 || v > 255 {
			return fmt.Errorf("%s components must be between 0 and 255", name)
		}
	}
	return nil
}

// ToMotionConfig converts the file config into the state machine constants.
func (c *Config) ToMotionConfig() motion.Config {
	return motion.Config{
		Acceleration:     c.Motion.AccelerationPxPerMS2,
		TerminalVelocity: c.Motion.TerminalVelocityPxPerMS,
		ExplodeDuration:  motion.Millis(c.Motion.ExplodeDurationMS),
	}
}

// ToStripConfig converts the file config into the render palette.
// It assumes Validate has passed.
func (c *Config) ToStripConfig() strip.Config {
	return strip.Config{
		Length:           c.Strip.Length,
		MotionColor:      rgbFromSlice(c.Strip.MotionColor),
		ImpactColor:      rgbFromSlice(c.Strip.ImpactColor),
		MotionBrightness: uint8(c.Strip.MotionBrightness),
		ImpactBrightness: uint8(c.Strip.ImpactBrightness),
	}
}

func rgbSlice(c strip.RGB) []int {
	return []int{int(c.R), int(c.G), int(c.B)}
}

func rgbFromSlice(c []int) strip.RGB {
	if len(c) != 3 {
		return strip.Off
	}
	return strip.RGB{R: uint8(c[0]), G: uint8(c[1]), B: uint8(c[2])}
}

func finitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" || p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
