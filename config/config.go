// Package config loads the host program's render-graph configuration
// from a TOML file and optionally hot-reloads it on change. None of it is
// inspected by the core packages; the values it carries condition backend
// capability and host-side logging only.
package config

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/rendergraph/core"
	"github.com/spaghettifunk/rendergraph/scheduling"
)

// DebugOptions carries CLI flags that never affect graph semantics:
// they're threaded through opaquely to the host program's shader
// pipeline and logging.
type DebugOptions struct {
	DebugShaders      bool   `toml:"debug_shaders"`
	ProjectDirShaders string `toml:"project_dir_shaders"`
}

// Config is the host program's render-graph configuration: backend
// capability flags and frame-pacing parameters, loaded from TOML.
type Config struct {
	Backend struct {
		SupportsUniversalHeaps bool `toml:"supports_universal_heaps"`
	} `toml:"backend"`

	Frames struct {
		SimultaneousFramesInFlight int `toml:"simultaneous_frames_in_flight"`
	} `toml:"frames"`

	Debug DebugOptions `toml:"debug"`

	LogLevel string `toml:"log_level"`
}

// Default returns the configuration used when no file is supplied: no
// universal heaps, double-buffered frames in flight, info-level logging.
func Default() Config {
	c := Config{}
	c.Backend.SupportsUniversalHeaps = false
	c.Frames.SimultaneousFramesInFlight = 2
	c.LogLevel = "info"
	return c
}

// Load reads and parses a TOML configuration file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %q: %w", path, err)
	}
	cfg := Default()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// BackendCapabilities projects the configuration's backend section into
// the scheduling package's capability-conditioning type.
func (c Config) BackendCapabilities() scheduling.BackendCapabilities {
	return scheduling.BackendCapabilities{SupportsUniversalHeaps: c.Backend.SupportsUniversalHeaps}
}

// ApplyLogLevel parses c.LogLevel and sets it on the package-wide logger.
func (c Config) ApplyLogLevel() {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		core.LogWarn("config: unrecognized log_level %q, leaving default", c.LogLevel)
		return
	}
	core.SetLevel(level)
}
