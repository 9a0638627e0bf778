// Package config loads the scripthost.toml startup configuration. The file
// is read once and never written.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/wippyai/scripthost/errors"
	"github.com/wippyai/scripthost/snapshot"
)

// FileName is the configuration file looked up in the working directory.
const FileName = "scripthost.toml"

// Config is the host configuration.
type Config struct {
	StorageRoot      string        `toml:"storage_root"`
	Snapshot         string        `toml:"snapshot"`
	Mode             string        `toml:"mode"`
	QueueCapacity    int           `toml:"queue_capacity"`
	MemoryLimitPages uint32        `toml:"memory_limit_pages"`
	ScriptTimeout    time.Duration `toml:"script_timeout"`
	Display          Display       `toml:"display"`
	Log              Log           `toml:"log"`
}

// Display sizes the terminal frame in cells.
type Display struct {
	Width  int `toml:"width"`
	Height int `toml:"height"`
}

// Log configures the diagnostic logger.
type Log struct {
	Level       string `toml:"level"`
	File        string `toml:"file"`
	Development bool   `toml:"development"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		StorageRoot:   ".",
		Snapshot:      snapshot.DefaultName,
		Mode:          "cooperative",
		QueueCapacity: 8,
		Display:       Display{Width: 32, Height: 10},
		Log:           Log{Level: "info", File: "scripthost.log"},
	}
}

// Load reads path over the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(errors.PhaseConfig, errors.KindNotFound).
			Path(path).Cause(err).Detail("open config").Build()
	}
	defer f.Close()

	c, err := Decode(f)
	if err != nil {
		return nil, err
	}
	if c.StorageRoot != "" && !filepath.IsAbs(c.StorageRoot) {
		c.StorageRoot = filepath.Join(filepath.Dir(path), c.StorageRoot)
	}
	return c, nil
}

// Decode parses TOML from r over the defaults and validates the result.
func Decode(r io.Reader) (*Config, error) {
	c := Default()
	md, err := toml.NewDecoder(r).Decode(c)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "parse config")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, errors.InvalidInput(errors.PhaseConfig, "unknown keys: "+strings.Join(keys, ", "))
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	bad := func(format string, args ...any) error {
		return errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf(format, args...))
	}
	switch strings.ToLower(c.Mode) {
	case "", "cooperative", "worker":
	default:
		return bad("mode must be cooperative or worker, got %q", c.Mode)
	}
	if c.Snapshot == "" {
		return bad("snapshot name is empty")
	}
	if c.QueueCapacity < 0 {
		return bad("queue_capacity must not be negative, got %d", c.QueueCapacity)
	}
	if c.ScriptTimeout < 0 {
		return bad("script_timeout must not be negative, got %s", c.ScriptTimeout)
	}
	if c.Display.Width < 0 || c.Display.Height < 0 {
		return bad("display size must not be negative, got %dx%d", c.Display.Width, c.Display.Height)
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return bad("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	return nil
}
