package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pylon/internal/config"

	"kr.dev/diff"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load(nil)
	if err != nil {
		t.Fatal(err)
	}
	diff.Test(t, t.Errorf, cfg, config.Default())
}

func TestLoadOverlay(t *testing.T) {
	opts := map[string]any{
		"cache_ttl":      "10s",
		"cached_modules": []string{"scipy"},
		"persist_cache":  false,
	}
	cfg, err := config.Load(opts)
	if err != nil {
		t.Fatal(err)
	}

	want := config.Default()
	want.CacheTTL = config.Duration(10 * time.Second)
	want.CachedModules = []string{"scipy"}
	want.PersistCache = false
	diff.Test(t, t.Errorf, cfg, want)
}

func TestLoadInvalid(t *testing.T) {
	tests := []map[string]any{
		{"cache_ttl": "soon"},
		{"cache_ttl": "0s"},
		{"sweep_every": 0},
		{"persist_interval": "-1m"},
	}
	for _, opts := range tests {
		if _, err := config.Load(opts); !errors.Is(err, config.ErrInvalid) {
			t.Errorf("Load(%v) err = %v, want ErrInvalid", opts, err)
		}
	}
}

func TestLoadFromJSON(t *testing.T) {
	cfg, err := config.LoadFromJSON(strings.NewReader(`{"formatter_command": ["black", "-q", "-"]}`))
	if err != nil {
		t.Fatal(err)
	}
	diff.Test(t, t.Errorf, cfg.FormatterCommand, []string{"black", "-q", "-"})
	if cfg.SweepEvery != 2 {
		t.Errorf("SweepEvery = %d, want default", cfg.SweepEvery)
	}
}

func TestLoadFileThenOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pylon.toml")
	data := `
cache_ttl = "1h"
sweep_every = 4
python_path = ["/opt/site-packages"]
unknown_key = 1
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if time.Duration(cfg.CacheTTL) != time.Hour || cfg.SweepEvery != 4 {
		t.Errorf("LoadFile = %+v", cfg)
	}

	// Client options win over the file.
	cfg, err = cfg.Overlay(map[string]any{"sweep_every": 3})
	if err != nil {
		t.Fatal(err)
	}
	if time.Duration(cfg.CacheTTL) != time.Hour || cfg.SweepEvery != 3 {
		t.Errorf("Overlay = %+v", cfg)
	}
	diff.Test(t, t.Errorf, cfg.PythonPath, []string{"/opt/site-packages"})

	if _, err := config.LoadFile(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("LoadFile of a missing file succeeded")
	}
}

func TestOverlayKeepsBase(t *testing.T) {
	base := config.Default()
	base.PythonPath = []string{"/lib/a", "/lib/b"}

	cfg, err := base.Overlay(map[string]any{
		"python_path":    []string{"/other"},
		"cached_modules": []string{"scipy"},
	})
	if err != nil {
		t.Fatal(err)
	}
	diff.Test(t, t.Errorf, cfg.PythonPath, []string{"/other"})
	diff.Test(t, t.Errorf, base.PythonPath, []string{"/lib/a", "/lib/b"})
	diff.Test(t, t.Errorf, base.CachedModules, config.Default().CachedModules)
}

func TestStateHome(t *testing.T) {
	base := t.TempDir()
	t.Setenv("XDG_STATE_HOME", base)

	dir, err := config.Default().StateHome()
	if err != nil {
		t.Fatal(err)
	}
	if dir != filepath.Join(base, "pylon") {
		t.Errorf("StateHome = %s", dir)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("state directory not created: %v", err)
	}
}
