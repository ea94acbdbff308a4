// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tick

import (
	"fmt"
	"log/slog"
	"slices"
	"time"
)

// Phase is one step of a frame. Run receives the time since the
// previous frame.
type Phase struct {
	Name string
	Run  func(delta time.Duration)
}

// Scheduler runs phases in registration order.
type Scheduler struct {
	phases []Phase
	frames uint64
	logger *slog.Logger
}

// NewScheduler returns an empty scheduler. A nil logger uses
// slog.Default().
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{logger: logger}
}

// Add appends a phase. Names must be unique.
func (s *Scheduler) Add(name string, run func(delta time.Duration)) error {
	if run == nil {
		return fmt.Errorf("tick: phase %q has no run function", name)
	}
	if slices.ContainsFunc(s.phases, func(p Phase) bool { return p.Name == name }) {
		return fmt.Errorf("tick: duplicate phase %q", name)
	}
	s.phases = append(s.phases, Phase{Name: name, Run: run})
	return nil
}

// Phases returns the phase names in run order.
func (s *Scheduler) Phases() []string {
	names := make([]string, len(s.phases))
	for i, phase := range s.phases {
		names[i] = phase.Name
	}
	return names
}

// Frames returns the number of completed frames.
func (s *Scheduler) Frames() uint64 { return s.frames }

// Tick runs every phase once.
func (s *Scheduler) Tick(delta time.Duration) {
	for _, phase := range s.phases {
		phase.Run(delta)
	}
	s.frames++
	s.logger.Debug("frame complete", "frame", s.frames, "delta", delta)
}
