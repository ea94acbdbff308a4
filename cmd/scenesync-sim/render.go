// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"

	"github.com/bureau-foundation/scenesync/lib/binhash"
	"github.com/bureau-foundation/scenesync/replication"
	"github.com/bureau-foundation/scenesync/scene"
	"github.com/bureau-foundation/scenesync/tick"
)

// TreeRenderer prints a client's scene tree: levels, folders and
// actors nested under their attach parents, with lock holders.
type TreeRenderer struct {
	header lipgloss.Style
	level  lipgloss.Style
	folder lipgloss.Style
	faint  lipgloss.Style
	lock   lipgloss.Style
}

// NewTreeRenderer returns a renderer writing escape sequences for
// TrueColor terminals when color is set and plain text otherwise.
func NewTreeRenderer(out io.Writer, color bool) *TreeRenderer {
	profile := termenv.Ascii
	if color {
		profile = termenv.TrueColor
	}
	// lipgloss re-detects the profile from the writer unless it is set
	// explicitly after construction.
	renderer := lipgloss.NewRenderer(out, termenv.WithProfile(profile))
	renderer.SetColorProfile(profile)
	return &TreeRenderer{
		header: renderer.NewStyle().Bold(true).Underline(true),
		level:  renderer.NewStyle().Bold(true),
		folder: renderer.NewStyle().Foreground(lipgloss.Color("#7f8c8d")),
		faint:  renderer.NewStyle().Faint(true),
		lock:   renderer.NewStyle().Bold(true),
	}
}

// row is one actor line before column alignment.
type row struct {
	indent string
	name   string
	detail string
	lock   string
}

// Render returns the tree of client's world.
func (t *TreeRenderer) Render(client *tick.Client) string {
	var out strings.Builder
	user := client.Session().User()
	out.WriteString(t.header.Foreground(lipgloss.Color(user.Color)).Render(user.Name))
	out.WriteString("\n")

	world := client.World()
	for _, level := range world.Levels() {
		out.WriteString("  " + t.level.Render(world.Entity(level).Name()) + "\n")

		var rows []row
		byFolder := make(map[string][]scene.EntityID)
		for _, actor := range world.Actors(level) {
			ent := world.Entity(actor)
			if ent.Parent() != scene.NoEntity || ent.IsTransient() {
				continue
			}
			byFolder[ent.Folder()] = append(byFolder[ent.Folder()], actor)
		}
		folders := world.Folders(level)
		for folder := range maps.Keys(byFolder) {
			if !slices.Contains(folders, folder) {
				folders = append(folders, folder)
			}
		}
		slices.Sort(folders)

		for _, actor := range byFolder[""] {
			rows = t.actorRows(rows, client, actor, "    ")
		}
		for _, folder := range folders {
			if folder == "" {
				continue
			}
			rows = append(rows, row{indent: "    ", name: t.folder.Render(folder + "/")})
			for _, actor := range byFolder[folder] {
				rows = t.actorRows(rows, client, actor, "      ")
			}
		}
		writeRows(&out, rows)
	}
	return out.String()
}

func (t *TreeRenderer) actorRows(rows []row, client *tick.Client, actor scene.EntityID, indent string) []row {
	world := client.World()
	ent := world.Entity(actor)
	location := world.Transform(actor).Location
	detail := fmt.Sprintf("%s (%g, %g, %g)", ent.Class(), location.X, location.Y, location.Z)
	if model := ent.Model(); model != nil && len(model.Surfaces) > 0 {
		var materials []string
		for _, surface := range model.Surfaces {
			if !slices.Contains(materials, surface.Material) {
				materials = append(materials, surface.Material)
			}
		}
		detail += " [" + strings.Join(materials, ", ") + "]"
	}
	if object := client.Geometry().Model(actor); object != nil {
		if blob := object.Get(replication.PropGeometry).Bytes; len(blob) > 0 {
			detail += " #" + binhash.Sum(binhash.GeometryDomain, blob).Short()
		}
	}
	if missing := ent.MissingClass(); missing != "" {
		detail += " stand-in for " + missing
	}
	rows = append(rows, row{
		indent: indent,
		name:   ent.Label(),
		detail: t.faint.Render(detail),
		lock:   t.lockText(client.Engine().Registry().Lookup(actor)),
	})
	for _, child := range ent.Attached() {
		if c := world.Entity(child); c != nil && !c.IsDestroyed() {
			rows = t.actorRows(rows, client, child, indent+"  ")
		}
	}
	return rows
}

func (t *TreeRenderer) lockText(object *replication.Object) string {
	if object == nil {
		return t.faint.Render("local")
	}
	// LockHolder includes the local user's own locks; LockKind does not.
	if holder := object.LockHolder(); holder != nil {
		return t.lock.Foreground(lipgloss.Color(holder.Color)).Render("locked by " + holder.Name)
	}
	if object.IsPartiallyLocked() {
		return t.lock.Render("partially locked")
	}
	return ""
}

// writeRows pads the name column to the widest visible name.
func writeRows(out *strings.Builder, rows []row) {
	width := 0
	for _, r := range rows {
		width = max(width, ansi.StringWidth(r.indent+r.name))
	}
	for _, r := range rows {
		line := r.indent + r.name
		if r.detail != "" {
			line += strings.Repeat(" ", width-ansi.StringWidth(line)+2) + r.detail
		}
		if r.lock != "" {
			line += "  " + r.lock
		}
		out.WriteString(line + "\n")
	}
}
