// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lockvisual

import (
	"slices"

	"github.com/bureau-foundation/scenesync/lib/config"
	"github.com/bureau-foundation/scenesync/replication"
)

// Palette picks decoration materials for lock holders.
type Palette struct {
	material          string
	landscapeMaterial string
	landscapeClasses  []string
}

// NewPalette returns a palette for the given lock configuration.
func NewPalette(cfg config.LockConfig) *Palette {
	return &Palette{
		material:          cfg.Material,
		landscapeMaterial: cfg.LandscapeMaterial,
		landscapeClasses:  slices.Clone(cfg.LandscapeClasses),
	}
}

// Material returns the decoration material for holder, such as
// "lock:#e6194b". A nil holder or one without a color gets the bare
// material; partial locks have no single holder.
func (p *Palette) Material(holder *replication.User) string {
	return tinted(p.material, holder)
}

// LandscapeMaterial is Material for landscape entities.
func (p *Palette) LandscapeMaterial(holder *replication.User) string {
	return tinted(p.landscapeMaterial, holder)
}

func tinted(material string, holder *replication.User) string {
	if holder == nil || holder.Color == "" {
		return material
	}
	return material + ":" + holder.Color
}
