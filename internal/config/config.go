package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("pylon.config")

var ErrInvalid = errors.New("config: invalid value")

// Duration is a time.Duration written as a string such as "30m".
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	*d = Duration(v)
	return nil
}

type Config struct {
	CacheTTL         Duration `json:"cache_ttl"         toml:"cache_ttl"`
	SweepEvery       int      `json:"sweep_every"       toml:"sweep_every"`
	CachedModules    []string `json:"cached_modules"    toml:"cached_modules"`
	FormatterCommand []string `json:"formatter_command" toml:"formatter_command"`
	PythonPath       []string `json:"python_path"       toml:"python_path"`
	StateDir         string   `json:"state_dir"         toml:"state_dir"`
	PersistInterval  Duration `json:"persist_interval"  toml:"persist_interval"`
	PersistCache     bool     `json:"persist_cache"     toml:"persist_cache"`

	// ResolveAtMost bounds how many completion labels are resolved eagerly.
	ResolveAtMost int `json:"resolve_at_most" toml:"resolve_at_most"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		CacheTTL:         Duration(30 * time.Minute),
		SweepEvery:       2,
		CachedModules:    []string{"pandas", "numpy", "tensorflow", "matplotlib"},
		FormatterCommand: []string{"yapf"},
		PersistInterval:  Duration(5 * time.Minute),
		PersistCache:     true,
		ResolveAtMost:    25,
	}
}

// Load overlays v, typically the initializationOptions of the client, on
// the defaults.
func Load(v any) (Config, error) {
	return Default().Overlay(v)
}

// Overlay returns c with the fields present in v overwritten.
func (c Config) Overlay(v any) (Config, error) {
	if v == nil {
		return c, c.Validate()
	}

	data, err := json.Marshal(v)
	if err != nil {
		return Config{}, fmt.Errorf("failed to marshal source: %w", err)
	}

	// c is a copy but its slices share backing arrays with the original,
	// which Unmarshal would write into.
	c.CachedModules = slices.Clone(c.CachedModules)
	c.FormatterCommand = slices.Clone(c.FormatterCommand)
	c.PythonPath = slices.Clone(c.PythonPath)

	// only fields present in src will overwrite.
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal into Config: %w", err)
	}
	return c, c.Validate()
}

// LoadFromJSON reads JSON from r on top of the defaults.
func LoadFromJSON(r io.Reader) (Config, error) {
	cfg := Default()
	if err := json.NewDecoder(r).Decode(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// LoadFile reads a TOML file on top of the defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse config file '%s': %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		log.Warningf("config file '%s': unrecognized keys: %v", path, undecoded)
	}
	log.Infof("loaded configuration from %s", path)
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch {
	case c.CacheTTL <= 0:
		return fmt.Errorf("%w: cache_ttl must be positive, got %s", ErrInvalid, time.Duration(c.CacheTTL))
	case c.SweepEvery < 1:
		return fmt.Errorf("%w: sweep_every must be at least 1, got %d", ErrInvalid, c.SweepEvery)
	case c.ResolveAtMost < 0:
		return fmt.Errorf("%w: resolve_at_most must not be negative, got %d", ErrInvalid, c.ResolveAtMost)
	case c.PersistInterval <= 0:
		return fmt.Errorf("%w: persist_interval must be positive, got %s", ErrInvalid, time.Duration(c.PersistInterval))
	}
	return nil
}

// StateHome returns the state directory, creating it if needed. It
// defaults to pylon under $XDG_STATE_HOME.
func (c Config) StateHome() (string, error) {
	dir := c.StateDir
	if dir == "" {
		xdgStateHome := os.Getenv("XDG_STATE_HOME")
		if xdgStateHome == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get user home directory: %w", err)
			}
			xdgStateHome = filepath.Join(homeDir, ".local", "state")
		}
		dir = filepath.Join(xdgStateHome, "pylon")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create state directory: %w", err)
	}
	return dir, nil
}
