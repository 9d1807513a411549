package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/oxplot/go-pdsink/tcdpm"
	"github.com/oxplot/go-pdsink/tcpcdriver/fusb302"
	"github.com/oxplot/go-pdsink/tcpe"
)

// Config is the pdsink configuration. It is read from the YAML file given
// by --config or PDSINK_CONFIG, if any, and then overridden by flags.
type Config struct {
	// Bus is the I2C bus name or number, as understood by i2creg.Open.
	Bus string `yaml:"bus"`

	// MPN is the FUSB302 part number, which sets its I2C address.
	MPN string `yaml:"mpn"`

	// Policy is one of highest-voltage, lowest-voltage or window.
	Policy string `yaml:"policy"`

	// Window configures the window policy.
	Window WindowConfig `yaml:"window"`

	PollInterval   time.Duration `yaml:"poll_interval"`
	ReportInterval time.Duration `yaml:"report_interval"`

	Log LogConfig `yaml:"log"`

	// AbortOnFatal exits on a fatal negotiation error instead of resetting
	// and negotiating again.
	AbortOnFatal bool `yaml:"abort_on_fatal"`

	// Identity, if set, is reported to Discover Identity requests.
	Identity *IdentityConfig `yaml:"identity,omitempty"`
}

// WindowConfig bounds the profiles the window policy accepts.
type WindowConfig struct {
	MinVoltage         uint16 `yaml:"min_voltage"` // mV
	MaxVoltage         uint16 `yaml:"max_voltage"` // mV
	MinCurrent         uint16 `yaml:"min_current"` // mA
	PreferLowerVoltage bool   `yaml:"prefer_lower_voltage"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn or error
	Format string `yaml:"format"` // text or json
}

// IdentityConfig is the USB identity of the device.
type IdentityConfig struct {
	VID       uint16 `yaml:"vid"`
	PID       uint16 `yaml:"pid"`
	BCDDevice uint16 `yaml:"bcd_device"`
	XID       uint32 `yaml:"xid"`
}

// Policies
const (
	policyHighestVoltage = "highest-voltage"
	policyLowestVoltage  = "lowest-voltage"
	policyWindow         = "window"
)

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Bus:    "1",
		MPN:    "FUSB302BMPX",
		Policy: policyHighestVoltage,
		Window: WindowConfig{
			MinVoltage: 5000,
			MaxVoltage: 20000,
		},
		PollInterval:   tcdpm.DefaultPollInterval,
		ReportInterval: 100 * time.Millisecond,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFile reads path on top of c. Unknown keys are an error.
func (c *Config) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// Validate returns an error describing the first invalid field.
func (c *Config) Validate() error {
	if c.Bus == "" {
		return errors.New("bus must be set")
	}
	if _, err := fusb302.ParseMPN(c.MPN); err != nil {
		return err
	}
	p, err := c.policy()
	if err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if c.PollInterval <= 0 {
		return errors.New("poll_interval must be positive")
	}
	if c.ReportInterval <= 0 {
		return errors.New("report_interval must be positive")
	}
	if _, err := c.Log.level(); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, not %q", c.Log.Format)
	}
	return nil
}

func (c *Config) policy() (tcdpm.Policy, error) {
	switch c.Policy {
	case policyHighestVoltage:
		return tcdpm.HighestVoltage, nil
	case policyLowestVoltage:
		return tcdpm.LowestVoltage, nil
	case policyWindow:
		return tcdpm.FixedPolicy{
			MinVoltage:         c.Window.MinVoltage,
			MaxVoltage:         c.Window.MaxVoltage,
			MinCurrent:         c.Window.MinCurrent,
			PreferLowerVoltage: c.Window.PreferLowerVoltage,
		}, nil
	}
	return nil, fmt.Errorf("unknown policy %q", c.Policy)
}

func (c *Config) identity() *tcpe.Identity {
	if c.Identity == nil {
		return nil
	}
	return &tcpe.Identity{
		VID:       c.Identity.VID,
		PID:       c.Identity.PID,
		BCDDevice: c.Identity.BCDDevice,
		XID:       c.Identity.XID,
	}
}

func (l LogConfig) level() (slog.Level, error) {
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return lv, nil
}

func (l LogConfig) handler(w io.Writer) slog.Handler {
	lv, _ := l.level()
	opts := &slog.HandlerOptions{Level: lv}
	if l.Format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// parseConfig builds the configuration from defaults, the config file and
// args. It returns pflag.ErrHelp if help was requested.
func parseConfig(args []string, stderr io.Writer) (Config, error) {
	cfg := DefaultConfig()

	fs := pflag.NewFlagSet("pdsink", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", os.Getenv("PDSINK_CONFIG"), "path to YAML config file")
	bus := fs.String("bus", cfg.Bus, "I2C bus the FUSB302 is on")
	mpn := fs.String("mpn", cfg.MPN, "FUSB302 part number")
	policy := fs.String("policy", cfg.Policy, "profile selection policy: highest-voltage, lowest-voltage or window")
	minV := fs.Uint16("min-voltage", cfg.Window.MinVoltage, "window policy minimum voltage in mV")
	maxV := fs.Uint16("max-voltage", cfg.Window.MaxVoltage, "window policy maximum voltage in mV")
	minC := fs.Uint16("min-current", cfg.Window.MinCurrent, "window policy minimum current in mA")
	preferLower := fs.Bool("prefer-lower-voltage", cfg.Window.PreferLowerVoltage, "window policy prefers the lowest voltage")
	poll := fs.Duration("poll-interval", cfg.PollInterval, "delay between policy engine polls")
	report := fs.Duration("report-interval", cfg.ReportInterval, "delay between status reports")
	level := fs.String("log-level", cfg.Log.Level, "log level: debug, info, warn or error")
	format := fs.String("log-format", cfg.Log.Format, "log format: text or json")
	abort := fs.Bool("abort-on-fatal", cfg.AbortOnFatal, "exit on fatal negotiation errors instead of resetting")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if fs.NArg() > 0 {
		return cfg, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	if *configPath != "" {
		if err := cfg.LoadFile(*configPath); err != nil {
			return cfg, err
		}
	}

	// Flags given explicitly win over the file.
	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "bus":
			cfg.Bus = *bus
		case "mpn":
			cfg.MPN = *mpn
		case "policy":
			cfg.Policy = *policy
		case "min-voltage":
			cfg.Window.MinVoltage = *minV
		case "max-voltage":
			cfg.Window.MaxVoltage = *maxV
		case "min-current":
			cfg.Window.MinCurrent = *minC
		case "prefer-lower-voltage":
			cfg.Window.PreferLowerVoltage = *preferLower
		case "poll-interval":
			cfg.PollInterval = *poll
		case "report-interval":
			cfg.ReportInterval = *report
		case "log-level":
			cfg.Log.Level = *level
		case "log-format":
			cfg.Log.Format = *format
		case "abort-on-fatal":
			cfg.AbortOnFatal = *abort
		}
	})

	return cfg, cfg.Validate()
}
