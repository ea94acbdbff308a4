// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cogentcore.org/core/math32"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/scenesync/geometry"
	"github.com/bureau-foundation/scenesync/lib/config"
	"github.com/bureau-foundation/scenesync/replication"
	"github.com/bureau-foundation/scenesync/scene"
	"github.com/bureau-foundation/scenesync/tick"
)

const (
	defaultLevel  = "Main"
	defaultFrame  = 16 * time.Millisecond
	defaultSettle = 30
)

// Scenario is a scripted editing session.
type Scenario struct {
	// Level is the level the first client creates. Default: Main
	Level string `yaml:"level"`

	// Clients are joined in order.
	Clients []string `yaml:"clients"`

	// Frame is the delta of every tick. Default: 16ms
	Frame time.Duration `yaml:"frame"`

	// Settle is the number of frames run after the last step.
	// Default: 30
	Settle int `yaml:"settle"`

	Steps []Step `yaml:"steps"`
}

// Step is one edit by one client, or a run of frames across all of them.
// Exactly one action field is set.
type Step struct {
	Client string `yaml:"client"`

	Spawn    *SpawnStep  `yaml:"spawn"`
	Select   string      `yaml:"select"`
	Deselect string      `yaml:"deselect"`
	Move     *MoveStep   `yaml:"move"`
	Label    *LabelStep  `yaml:"label"`
	Folder   *FolderStep `yaml:"folder"`
	Attach   *AttachStep `yaml:"attach"`
	Detach   string      `yaml:"detach"`
	Destroy  string      `yaml:"destroy"`
	Paint    *PaintStep  `yaml:"paint"`
	Ticks    int         `yaml:"ticks"`
}

// SpawnStep spawns an actor. Brush classes with a Material get a
// single-surface model.
type SpawnStep struct {
	Class    string `yaml:"class"`
	Name     string `yaml:"name"`
	Folder   string `yaml:"folder"`
	Material string `yaml:"material"`
}

type MoveStep struct {
	Actor    string     `yaml:"actor"`
	Location [3]float32 `yaml:"location"`
}

type LabelStep struct {
	Actor string `yaml:"actor"`
	Label string `yaml:"label"`
}

type FolderStep struct {
	Actor  string `yaml:"actor"`
	Folder string `yaml:"folder"`
}

type AttachStep struct {
	Actor  string `yaml:"actor"`
	Parent string `yaml:"parent"`
}

// PaintStep sets the material of every surface of a brush. Only
// selected brushes publish geometry edits.
type PaintStep struct {
	Actor    string `yaml:"actor"`
	Material string `yaml:"material"`
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return scenario, nil
}

// ParseScenario decodes a scenario, fills in defaults and validates it.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	if scenario.Level == "" {
		scenario.Level = defaultLevel
	}
	if scenario.Frame == 0 {
		scenario.Frame = defaultFrame
	}
	if scenario.Settle == 0 {
		scenario.Settle = defaultSettle
	}
	if err := scenario.Validate(); err != nil {
		return nil, err
	}
	return &scenario, nil
}

// Validate reports every problem with the scenario at once.
func (s *Scenario) Validate() error {
	var errs []error
	if len(s.Clients) == 0 {
		errs = append(errs, errors.New("clients: at least one client is required"))
	}
	known := make(map[string]bool, len(s.Clients))
	for _, name := range s.Clients {
		if name == "" {
			errs = append(errs, errors.New("clients: empty client name"))
			continue
		}
		if known[name] {
			errs = append(errs, fmt.Errorf("clients: %q listed twice", name))
		}
		known[name] = true
	}
	if s.Frame < 0 {
		errs = append(errs, fmt.Errorf("frame: must be positive, got %s", s.Frame))
	}
	if s.Settle < 0 {
		errs = append(errs, fmt.Errorf("settle: must not be negative, got %d", s.Settle))
	}
	for i, step := range s.Steps {
		action, err := step.action()
		if err != nil {
			errs = append(errs, fmt.Errorf("steps[%d]: %w", i, err))
			continue
		}
		if action == "ticks" {
			if step.Ticks < 0 {
				errs = append(errs, fmt.Errorf("steps[%d]: ticks must not be negative", i))
			}
			continue
		}
		if !known[step.Client] {
			errs = append(errs, fmt.Errorf("steps[%d]: %s by unknown client %q", i, action, step.Client))
		}
	}
	return errors.Join(errs...)
}

// action names the step's single action.
func (s Step) action() (string, error) {
	var actions []string
	add := func(set bool, name string) {
		if set {
			actions = append(actions, name)
		}
	}
	add(s.Spawn != nil, "spawn")
	add(s.Select != "", "select")
	add(s.Deselect != "", "deselect")
	add(s.Move != nil, "move")
	add(s.Label != nil, "label")
	add(s.Folder != nil, "folder")
	add(s.Attach != nil, "attach")
	add(s.Detach != "", "detach")
	add(s.Destroy != "", "destroy")
	add(s.Paint != nil, "paint")
	add(s.Ticks != 0, "ticks")
	switch len(actions) {
	case 0:
		return "", errors.New("no action")
	case 1:
		return actions[0], nil
	default:
		return "", fmt.Errorf("several actions %v in one step", actions)
	}
}

// Runner replays a scenario against a fresh in-process server.
type Runner struct {
	scenario *Scenario
	settings *config.Config
	server   *replication.MemoryServer
	logger   *slog.Logger

	clients []*tick.Client
	byName  map[string]*tick.Client
}

// NewRunner prepares a run of scenario. A nil settings uses
// config.Default().
func NewRunner(scenario *Scenario, settings *config.Config, logger *slog.Logger) *Runner {
	if settings == nil {
		settings = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		scenario: scenario,
		settings: settings,
		server: replication.NewMemoryServer(replication.MemoryServerConfig{
			Colors: settings.Locks.Colors,
			Logger: logger.With("component", "server"),
		}),
		logger: logger,
		byName: make(map[string]*tick.Client),
	}
}

// Run connects the clients, replays every step and settles.
func (r *Runner) Run() error {
	for i, name := range r.scenario.Clients {
		var world *scene.World
		if i == 0 {
			world = scene.NewWorld()
			world.AddLevel(r.scenario.Level)
		}
		client, err := tick.Connect(r.server.Connect(), tick.ClientConfig{
			Name:     name,
			World:    world,
			Settings: r.settings,
			Logger:   r.logger,
		})
		if err != nil {
			return fmt.Errorf("connecting %s: %w", name, err)
		}
		r.clients = append(r.clients, client)
		r.byName[name] = client
		// The next client joins after this one's uploads reach the server.
		if err := r.tick(1); err != nil {
			return err
		}
	}

	for i, step := range r.scenario.Steps {
		action, err := step.action()
		if err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
		if err := r.apply(action, step); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, action, err)
		}
	}
	return r.tick(r.scenario.Settle)
}

// Clients returns the connected clients in join order.
func (r *Runner) Clients() []*tick.Client { return r.clients }

// Server returns the in-process server.
func (r *Runner) Server() *replication.MemoryServer { return r.server }

// Close disconnects every client.
func (r *Runner) Close() {
	for _, client := range r.clients {
		client.Close()
	}
}

func (r *Runner) tick(frames int) error {
	for range frames {
		for _, client := range r.clients {
			if err := client.Tick(r.scenario.Frame); err != nil {
				return fmt.Errorf("%s: %w", client.Session().User().Name, err)
			}
		}
	}
	return nil
}

func (r *Runner) apply(action string, step Step) error {
	if action == "ticks" {
		return r.tick(step.Ticks)
	}
	client := r.byName[step.Client]
	if client == nil {
		return fmt.Errorf("unknown client %q", step.Client)
	}
	world := client.World()
	level := world.LevelByName(r.scenario.Level)
	if level == scene.NoEntity {
		return fmt.Errorf("%s has no level %q", step.Client, r.scenario.Level)
	}
	actor := func(name string) (scene.EntityID, error) {
		id := world.FindByName(level, name)
		if ent := world.Entity(id); ent == nil || ent.IsDestroyed() {
			return scene.NoEntity, fmt.Errorf("%s has no actor %q", step.Client, name)
		}
		return id, nil
	}

	switch action {
	case "spawn":
		id, err := world.Spawn(scene.SpawnParams{
			Level:  level,
			Class:  step.Spawn.Class,
			Name:   step.Spawn.Name,
			Folder: step.Spawn.Folder,
		})
		if err != nil {
			return err
		}
		if step.Spawn.Material != "" && world.IsA(world.Entity(id).Class(), scene.ClassBrush) {
			world.SetModel(id, &geometry.Model{
				Surfaces: []geometry.Surface{{Material: step.Spawn.Material, Actor: id.LocalRef()}},
			})
		}
	case "select", "deselect", "detach", "destroy":
		name := map[string]string{
			"select":   step.Select,
			"deselect": step.Deselect,
			"detach":   step.Detach,
			"destroy":  step.Destroy,
		}[action]
		id, err := actor(name)
		if err != nil {
			return err
		}
		switch action {
		case "select":
			world.Select(id)
		case "deselect":
			world.Deselect(id)
		case "detach":
			world.Detach(id)
		case "destroy":
			world.Destroy(id)
		}
	case "move":
		id, err := actor(step.Move.Actor)
		if err != nil {
			return err
		}
		transform := world.Transform(id)
		location := step.Move.Location
		transform.Location = math32.Vec3(location[0], location[1], location[2])
		world.SetTransform(id, transform)
	case "label":
		id, err := actor(step.Label.Actor)
		if err != nil {
			return err
		}
		world.SetLabel(id, step.Label.Label)
	case "folder":
		id, err := actor(step.Folder.Actor)
		if err != nil {
			return err
		}
		world.SetFolder(id, step.Folder.Folder)
	case "attach":
		child, err := actor(step.Attach.Actor)
		if err != nil {
			return err
		}
		parent, err := actor(step.Attach.Parent)
		if err != nil {
			return err
		}
		return world.Attach(child, parent)
	case "paint":
		id, err := actor(step.Paint.Actor)
		if err != nil {
			return err
		}
		return world.EditGeometry(id, scene.TransactionOther, func(model *geometry.Model) {
			for i := range model.Surfaces {
				model.Surfaces[i].Material = step.Paint.Material
			}
		})
	}
	return nil
}
