// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable read by [Load].
const EnvVar = "SCENESYNC_CONFIG"

// Config is the complete client configuration.
type Config struct {
	// Sync configures the reconciliation engine.
	Sync SyncConfig `yaml:"sync"`

	// Geometry configures brush geometry replication.
	Geometry GeometryConfig `yaml:"geometry"`

	// Locks configures lock decorations and holder colors.
	Locks LockConfig `yaml:"locks"`
}

// SyncConfig configures the reconciliation engine.
type SyncConfig struct {
	// CreateBudget bounds the time spent spawning entities for remote
	// creates in one tick. Remaining creates are deferred to the next
	// tick. Zero disables the bound.
	// Default: 10ms
	CreateBudget time.Duration `yaml:"create_budget"`

	// CollectGarbage runs deferred garbage reclamation after
	// destructive operations.
	// Default: true
	CollectGarbage bool `yaml:"collect_garbage"`

	// HiddenSyncTypes lists classes that are normally hidden from the
	// editor but should still replicate.
	HiddenSyncTypes []string `yaml:"hidden_sync_types"`
}

// GeometryConfig configures brush geometry replication.
type GeometryConfig struct {
	// Debounce is the quiet period after a geometry edit before the
	// model is encoded and published.
	// Default: 100ms
	Debounce time.Duration `yaml:"debounce"`

	// RebuildDelay is the countdown before a scene geometry rebuild
	// after remote geometry arrives. Dragging resets it.
	// Default: 200ms
	RebuildDelay time.Duration `yaml:"rebuild_delay"`

	// Compression is the preferred blob compression: none, lz4 or zstd.
	// Default: lz4
	Compression string `yaml:"compression"`
}

// LockConfig configures lock decorations.
type LockConfig struct {
	// Material is the decoration material for ordinary entities.
	// Default: lock
	Material string `yaml:"material"`

	// LandscapeMaterial is the decoration material for landscape
	// entities, which cannot use the ordinary one.
	// Default: lock-landscape
	LandscapeMaterial string `yaml:"landscape_material"`

	// LandscapeClasses lists classes that use LandscapeMaterial.
	LandscapeClasses []string `yaml:"landscape_classes"`

	// Colors are holder colors handed to users in join order, as
	// #RRGGBB strings.
	Colors []string `yaml:"colors"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Sync: SyncConfig{
			CreateBudget:   10 * time.Millisecond,
			CollectGarbage: true,
		},
		Geometry: GeometryConfig{
			Debounce:     100 * time.Millisecond,
			RebuildDelay: 200 * time.Millisecond,
			Compression:  "lz4",
		},
		Locks: LockConfig{
			Material:          "lock",
			LandscapeMaterial: "lock-landscape",
			LandscapeClasses:  []string{"Landscape", "LandscapeProxy"},
			Colors: []string{
				"#e6194b", "#3cb44b", "#4363d8", "#f58231",
				"#911eb4", "#42d4f4", "#f032e6", "#bfef45",
			},
		},
	}
}

// Load loads configuration from the file named by SCENESYNC_CONFIG.
// It fails when the variable is unset.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of a scenesync config file, or use --config", EnvVar)
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path over [Default] and validates it.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg, err := Parse(data, isJSON(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data over [Default] and validates the result. When
// jsonWithComments is set, data is JSONC.
func Parse(data []byte, jsonWithComments bool) (*Config, error) {
	if jsonWithComments {
		data = jsonc.ToJSON(data)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isJSON(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		return true
	}
	return false
}

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

var compressionNames = []string{"none", "lz4", "zstd"}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Sync.CreateBudget < 0 {
		errs = append(errs, fmt.Errorf("sync.create_budget must not be negative"))
	}

	if c.Geometry.Debounce <= 0 {
		errs = append(errs, fmt.Errorf("geometry.debounce must be positive"))
	}
	if c.Geometry.RebuildDelay < 0 {
		errs = append(errs, fmt.Errorf("geometry.rebuild_delay must not be negative"))
	}
	if !contains(compressionNames, c.Geometry.Compression) {
		errs = append(errs, fmt.Errorf("geometry.compression must be one of: %v", compressionNames))
	}

	if c.Locks.Material == "" {
		errs = append(errs, fmt.Errorf("locks.material is required"))
	}
	if c.Locks.LandscapeMaterial == "" {
		errs = append(errs, fmt.Errorf("locks.landscape_material is required"))
	}
	if len(c.Locks.Colors) == 0 {
		errs = append(errs, fmt.Errorf("locks.colors must not be empty"))
	}
	for i, color := range c.Locks.Colors {
		if !colorPattern.MatchString(color) {
			errs = append(errs, fmt.Errorf("locks.colors[%d]: %q is not #RRGGBB", i, color))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
