package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadParsesTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rendergraph.toml")
	contents := `
log_level = "debug"

[backend]
supports_universal_heaps = true

[frames]
simultaneous_frames_in_flight = 3

[debug]
debug_shaders = true
project_dir_shaders = "shaders/"
`
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: unexpected error %v", err)
	}

	if !cfg.Backend.SupportsUniversalHeaps {
		t.Fatalf("SupportsUniversalHeaps: have false, want true")
	}
	if cfg.Frames.SimultaneousFramesInFlight != 3 {
		t.Fatalf("SimultaneousFramesInFlight: have %d, want 3", cfg.Frames.SimultaneousFramesInFlight)
	}
	if !cfg.Debug.DebugShaders || cfg.Debug.ProjectDirShaders != "shaders/" {
		t.Fatalf("Debug: have %+v, want DebugShaders=true ProjectDirShaders=shaders/", cfg.Debug)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel: have %q, want debug", cfg.LogLevel)
	}
}

func TestDefaultValues(t *testing.T) {
	cfg := Default()
	if cfg.Backend.SupportsUniversalHeaps {
		t.Fatalf("Default SupportsUniversalHeaps: have true, want false")
	}
	if cfg.Frames.SimultaneousFramesInFlight != 2 {
		t.Fatalf("Default SimultaneousFramesInFlight: have %d, want 2", cfg.Frames.SimultaneousFramesInFlight)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("Load of missing file: expected error")
	}
}
