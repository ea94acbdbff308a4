// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tick

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/scenesync/geomsync"
	"github.com/bureau-foundation/scenesync/lib/clock"
	"github.com/bureau-foundation/scenesync/lib/config"
	"github.com/bureau-foundation/scenesync/reconcile"
	"github.com/bureau-foundation/scenesync/replication"
	"github.com/bureau-foundation/scenesync/scene"
)

// ClientConfig configures a Client.
type ClientConfig struct {
	// Name is the user name announced to the server.
	Name string

	// World is the editor world to reconcile. Defaults to an empty
	// world.
	World *scene.World

	// Settings defaults to config.Default().
	Settings *config.Config

	// Clock drives the create budget. Defaults to the real clock.
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Client is one editor connected to a shared scene.
type Client struct {
	world     *scene.World
	session   *replication.Session
	engine    *reconcile.Engine
	geometry  *geomsync.Coordinator
	scheduler *Scheduler
	logger    *slog.Logger
}

// Connect joins the session over transport, applies the current tree
// to the world and uploads the world's own levels.
func Connect(transport replication.Transport, cfg ClientConfig) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	world := cfg.World
	if world == nil {
		world = scene.NewWorld()
	}
	settings := cfg.Settings
	if settings == nil {
		settings = config.Default()
	}

	session, err := replication.Join(transport, replication.SessionConfig{Name: cfg.Name, Logger: logger})
	if err != nil {
		return nil, err
	}
	logger = logger.With("user", session.User().Name)

	engine := reconcile.New(reconcile.Config{
		World:    world,
		Session:  session,
		Clock:    cfg.Clock,
		Settings: settings,
		Logger:   logger,
	})
	coordinator, err := geomsync.New(geomsync.Config{Engine: engine})
	if err != nil {
		session.Leave("client setup failed")
		return nil, fmt.Errorf("connecting %s: %w", cfg.Name, err)
	}
	engine.Start()

	c := &Client{
		world:     world,
		session:   session,
		engine:    engine,
		geometry:  coordinator,
		scheduler: NewScheduler(logger),
		logger:    logger,
	}
	if err := c.registerPhases(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) registerPhases() error {
	e := c.engine
	phases := []Phase{
		{"begin-frame", func(time.Duration) { e.BeginFrame() }},
		{"deferred-creates", func(time.Duration) { e.ProcessDeferredCreates() }},
		{"receive", func(time.Duration) { c.session.Receive() }},
		{"uploads", func(time.Duration) { e.FlushUploads() }},
		{"selection", func(time.Duration) { e.UpdateSelection() }},
		{"transforms", func(time.Duration) { e.SyncMovedEntities() }},
		{"folder-reverts", func(time.Duration) { e.RevertLockedFolders() }},
		{"recreate", func(time.Duration) { e.RecreateLockedEntities() }},
		{"parents", func(time.Duration) { e.SyncParents() }},
		{"empty-folders", func(time.Duration) { e.DeleteEmptyFolders() }},
		{"garbage", func(time.Duration) { e.CollectGarbageIfNeeded() }},
		{"geometry", c.geometry.Tick},
		{"rebuild", e.RebuildGeometryIfNeeded},
	}
	for _, phase := range phases {
		if err := c.scheduler.Add(phase.Name, phase.Run); err != nil {
			return err
		}
	}
	return nil
}

// Tick runs one frame. It returns the error that ended the session once
// the session is gone.
func (c *Client) Tick(delta time.Duration) error {
	if err := c.err(); err != nil {
		return err
	}
	c.scheduler.Tick(delta)
	return c.err()
}

func (c *Client) err() error {
	if err := c.engine.Err(); err != nil {
		return err
	}
	if disconnected, reason := c.session.Disconnected(); disconnected {
		return fmt.Errorf("%w: %s", replication.ErrDisconnected, reason)
	}
	return nil
}

// Close leaves the session and stops listening to the world.
func (c *Client) Close() {
	c.geometry.Close()
	c.engine.Close()
	c.session.Leave("client closed")
	c.logger.Info("client closed", "frames", c.scheduler.Frames())
}

func (c *Client) World() *scene.World { return c.world }
func (c *Client) Session() *replication.Session { return c.session }
func (c *Client) Engine() *reconcile.Engine { return c.engine }
func (c *Client) Geometry() *geomsync.Coordinator { return c.geometry }
func (c *Client) Scheduler() *Scheduler { return c.scheduler }
