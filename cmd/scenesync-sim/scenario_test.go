// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/scenesync/scene"
	"github.com/bureau-foundation/scenesync/tick"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseScenarioDefaults(t *testing.T) {
	scenario, err := ParseScenario([]byte("clients: [alice]\n"))
	if err != nil {
		t.Fatalf("ParseScenario: %v", err)
	}
	if scenario.Level != "Main" {
		t.Errorf("Level = %q, want Main", scenario.Level)
	}
	if scenario.Frame != 16*time.Millisecond {
		t.Errorf("Frame = %s, want 16ms", scenario.Frame)
	}
	if scenario.Settle != 30 {
		t.Errorf("Settle = %d, want 30", scenario.Settle)
	}
}

func TestParseScenarioDurations(t *testing.T) {
	scenario, err := ParseScenario([]byte("clients: [alice]\nframe: 33ms\nsettle: 4\n"))
	if err != nil {
		t.Fatalf("ParseScenario: %v", err)
	}
	if scenario.Frame != 33*time.Millisecond || scenario.Settle != 4 {
		t.Errorf("Frame, Settle = %s, %d; want 33ms, 4", scenario.Frame, scenario.Settle)
	}
}

func TestParseScenarioRejectsBadSteps(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "no clients",
			yaml: "steps: [{ticks: 1}]\n",
			want: "at least one client",
		},
		{
			name: "duplicate client",
			yaml: "clients: [alice, alice]\n",
			want: `"alice" listed twice`,
		},
		{
			name: "unknown client",
			yaml: "clients: [alice]\nsteps: [{client: carol, select: Crate}]\n",
			want: `unknown client "carol"`,
		},
		{
			name: "no action",
			yaml: "clients: [alice]\nsteps: [{client: alice}]\n",
			want: "no action",
		},
		{
			name: "several actions",
			yaml: "clients: [alice]\nsteps: [{client: alice, select: Crate, destroy: Crate}]\n",
			want: "several actions",
		},
		{
			name: "negative ticks",
			yaml: "clients: [alice]\nsteps: [{ticks: -2}]\n",
			want: "ticks must not be negative",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(test.yaml))
			if err == nil {
				t.Fatal("ParseScenario succeeded, want an error")
			}
			if !strings.Contains(err.Error(), test.want) {
				t.Errorf("error = %q, want it to mention %q", err, test.want)
			}
		})
	}
}

func runCrates(t *testing.T) *Runner {
	t.Helper()
	scenario, err := LoadScenario("testdata/crates.yaml")
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}
	runner := NewRunner(scenario, nil, discardLogger())
	t.Cleanup(runner.Close)
	if err := runner.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return runner
}

func actorNamed(t *testing.T, client *tick.Client, name string) *scene.Entity {
	t.Helper()
	world := client.World()
	ent := world.Entity(world.FindByName(world.LevelByName("Main"), name))
	if ent == nil || ent.IsDestroyed() {
		t.Fatalf("%s has no actor %q", client.Session().User().Name, name)
	}
	return ent
}

func TestRunnerReplaysScenario(t *testing.T) {
	runner := runCrates(t)
	clients := runner.Clients()
	if len(clients) != 2 {
		t.Fatalf("clients = %d, want 2", len(clients))
	}

	for _, client := range clients {
		name := client.Session().User().Name
		crate := actorNamed(t, client, "Big_Crate")
		if crate.Label() != "Big Crate" {
			t.Errorf("%s: crate label = %q, want Big Crate", name, crate.Label())
		}
		// Alice's move to Junk was reverted while Bob held the crate.
		if crate.Folder() != "Props" {
			t.Errorf("%s: crate folder = %q, want Props", name, crate.Folder())
		}
		if z := client.World().Transform(crate.ID()).Location.Z; z != 100 {
			t.Errorf("%s: crate z = %g, want 100", name, z)
		}

		wall := actorNamed(t, client, "Wall")
		model := wall.Model()
		if model == nil || len(model.Surfaces) != 1 || model.Surfaces[0].Material != "Plaster" {
			t.Errorf("%s: wall model = %+v, want one Plaster surface", name, model)
		}
	}
}

func TestRenderShowsFoldersAndLocks(t *testing.T) {
	runner := runCrates(t)
	alice := runner.Clients()[0]

	tree := NewTreeRenderer(io.Discard, false).Render(alice)
	for _, want := range []string{"alice\n", "  Main\n", "    Props/\n", "Big Crate", "locked by bob", "[Plaster]", "locked by alice"} {
		if !strings.Contains(tree, want) {
			t.Errorf("tree missing %q:\n%s", want, tree)
		}
	}
	if strings.Contains(tree, "\x1b[") {
		t.Errorf("tree has escape sequences with colour off:\n%q", tree)
	}
}

func TestRunPrintsEveryReplica(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run([]string{"--scenario", "testdata/crates.yaml", "--color", "never"}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("run: %v (stderr: %s)", err, stderr.String())
	}
	out := stdout.String()
	if !strings.HasPrefix(out, "alice\n") || !strings.Contains(out, "\nbob\n") {
		t.Errorf("output does not list both replicas:\n%s", out)
	}
}

func TestRunPrintsVersion(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := run([]string{"--version"}, &stdout, &stderr); err != nil {
		t.Fatalf("run(--version): %v", err)
	}
	if !strings.HasPrefix(stdout.String(), "scenesync-sim ") {
		t.Errorf("version output = %q", stdout.String())
	}
}

func TestRunRejectsBadFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing scenario", nil, "--scenario is required"},
		{"bad colour", []string{"--scenario", "testdata/crates.yaml", "--color", "sometimes"}, "unknown mode"},
		{"bad log level", []string{"--scenario", "testdata/crates.yaml", "--log-level", "loud"}, "--log-level"},
		{"extra argument", []string{"--scenario", "testdata/crates.yaml", "extra"}, "unexpected argument"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := run(test.args, &stdout, &stderr)
			if err == nil || !strings.Contains(err.Error(), test.want) {
				t.Errorf("run(%v) = %v, want an error mentioning %q", test.args, err, test.want)
			}
		})
	}
}
