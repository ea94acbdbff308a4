// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source for frame-driven code.
//
// The sync core never blocks and never starts timers of its own: frame
// timers (debounce, rebuild countdowns) advance by the delta passed to each
// tick. The one place wall-clock time matters is the per-tick processing
// budget, which measures how long a frame has spent spawning entities. That
// measurement goes through a [Clock] so tests can drive it deterministically
// with [Fake]:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	budget := clock.NewBudget(c, 10*time.Millisecond)
//	budget.Reset()
//	c.Advance(11 * time.Millisecond)
//	budget.Exceeded() // true
//
// Production code uses [Real].
package clock
