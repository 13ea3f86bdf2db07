// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cryptol

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// ConfigEnv names the environment variable Load reads the config path from.
const ConfigEnv = "CRYPTOL_CLIENT_CONFIG"

// Config is the file form of the session options. YAML files (.yaml, .yml)
// and JSON files with comments (.json, .jsonc) are accepted.
type Config struct {
	// Address is the server address, scheme included.
	Address string `yaml:"address" json:"address"`

	// ControlPort is the server's control port.
	ControlPort int `yaml:"control_port" json:"control_port"`

	// Codec is "json" or "cbor".
	Codec string `yaml:"codec" json:"codec"`

	ConnectTimeout   Duration `yaml:"connect_timeout" json:"connect_timeout"`
	InterruptTimeout Duration `yaml:"interrupt_timeout" json:"interrupt_timeout"`

	// Launch starts the server with the session when Enabled is set.
	Launch LaunchConfig `yaml:"launch" json:"launch"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// LaunchConfig configures a server process owned by the session.
type LaunchConfig struct {
	Enabled    bool     `yaml:"enabled" json:"enabled"`
	Executable string   `yaml:"executable" json:"executable"`
	Args       []string `yaml:"args" json:"args"`
	Grace      Duration `yaml:"grace" json:"grace"`
}

// Duration is a time.Duration written as a string such as "500ms".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	return d.parse(s)
}

func (d *Duration) parse(s string) error {
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) { return time.Duration(d).String(), nil }

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Address:          "tcp://127.0.0.1",
		ControlPort:      DefaultControlPort,
		Codec:            "json",
		ConnectTimeout:   Duration(defaultDialTimeout),
		InterruptTimeout: Duration(defaultInterruptTimeout),
		Launch: LaunchConfig{
			Executable: DefaultServerExecutable,
			Grace:      Duration(defaultGraceInterval),
		},
		LogLevel: "info",
	}
}

// Load reads the file named by CRYPTOL_CLIENT_CONFIG. There is no search
// path: an unset variable is an error.
func Load() (*Config, error) {
	path := os.Getenv(ConfigEnv)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set", ConfigEnv)
	}
	return LoadConfig(path)
}

// LoadConfig reads path over DefaultConfig and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".json", ".jsonc":
		err = json.Unmarshal(jsonc.ToJSON(data), cfg)
	default:
		return nil, fmt.Errorf("config %s: unsupported format %q", path, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the fields Options relies on.
func (c *Config) Validate() error {
	var errs []error
	if _, _, err := splitEndpoint(c.Address + ":0"); err != nil {
		errs = append(errs, err)
	}
	if c.ControlPort <= 0 || c.ControlPort > 65535 {
		errs = append(errs, fmt.Errorf("control_port %d out of range", c.ControlPort))
	}
	if _, ok := CodecByName(c.Codec); !ok {
		errs = append(errs, fmt.Errorf("unknown codec %q", c.Codec))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Level returns the slog level named by LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return level, nil
}

// Options converts the configuration into session options. The logger is
// not part of the file and is passed separately with WithLogger.
func (c *Config) Options() []Option {
	opts := []Option{WithControlPort(c.ControlPort)}
	if codec, ok := CodecByName(c.Codec); ok {
		opts = append(opts, WithCodec(codec))
	}
	if c.ConnectTimeout > 0 {
		opts = append(opts, WithConnectTimeout(time.Duration(c.ConnectTimeout)))
	}
	if c.InterruptTimeout > 0 {
		opts = append(opts, WithInterruptTimeout(time.Duration(c.InterruptTimeout)))
	}
	if c.Launch.Enabled {
		opts = append(opts, WithLaunch(c.Launch.Executable, c.Launch.Args...))
		if c.Launch.Grace > 0 {
			opts = append(opts, WithGraceInterval(time.Duration(c.Launch.Grace)))
		}
	}
	return opts
}
