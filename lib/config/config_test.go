// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Sync.CreateBudget != 10*time.Millisecond {
		t.Errorf("create_budget = %v, want 10ms", cfg.Sync.CreateBudget)
	}
	if cfg.Geometry.Debounce != 100*time.Millisecond {
		t.Errorf("debounce = %v, want 100ms", cfg.Geometry.Debounce)
	}
	if cfg.Geometry.RebuildDelay != 200*time.Millisecond {
		t.Errorf("rebuild_delay = %v, want 200ms", cfg.Geometry.RebuildDelay)
	}
	if cfg.Geometry.Compression != "lz4" {
		t.Errorf("compression = %q, want lz4", cfg.Geometry.Compression)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

func TestLoadRequiresEnvVar(t *testing.T) {
	t.Setenv(EnvVar, "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when SCENESYNC_CONFIG not set")
	}
	if !strings.HasPrefix(err.Error(), "SCENESYNC_CONFIG environment variable not set") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenesync.yaml")
	content := `
sync:
  create_budget: 5ms
geometry:
  compression: zstd
  debounce: 250ms
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv(EnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sync.CreateBudget != 5*time.Millisecond {
		t.Errorf("create_budget = %v, want 5ms", cfg.Sync.CreateBudget)
	}
	if cfg.Geometry.Compression != "zstd" {
		t.Errorf("compression = %q, want zstd", cfg.Geometry.Compression)
	}
	if cfg.Geometry.Debounce != 250*time.Millisecond {
		t.Errorf("debounce = %v, want 250ms", cfg.Geometry.Debounce)
	}
	// Untouched keys keep their defaults.
	if cfg.Geometry.RebuildDelay != 200*time.Millisecond {
		t.Errorf("rebuild_delay = %v, want default 200ms", cfg.Geometry.RebuildDelay)
	}
	if !cfg.Sync.CollectGarbage {
		t.Error("collect_garbage lost its default")
	}
}

func TestLoadJSONC(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenesync.jsonc")
	content := `{
  // Slow link: compress harder.
  "geometry": {"compression": "zstd",},
  /* lock colors */
  "locks": {"colors": ["#112233"]},
}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Geometry.Compression != "zstd" {
		t.Errorf("compression = %q, want zstd", cfg.Geometry.Compression)
	}
	if len(cfg.Locks.Colors) != 1 || cfg.Locks.Colors[0] != "#112233" {
		t.Errorf("colors = %v, want [#112233]", cfg.Locks.Colors)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidateAggregatesErrors(t *testing.T) {
	cfg := Default()
	cfg.Sync.CreateBudget = -time.Second
	cfg.Geometry.Debounce = 0
	cfg.Geometry.Compression = "gzip"
	cfg.Locks.Colors = []string{"red"}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{
		"sync.create_budget",
		"geometry.debounce",
		"geometry.compression",
		"locks.colors[0]",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	if _, err := Parse([]byte("geometry:\n  compression: brotli\n"), false); err == nil {
		t.Error("expected error for unknown compression")
	}
	if _, err := Parse([]byte("sync: [unclosed"), false); err == nil {
		t.Error("expected error for malformed YAML")
	}
}
