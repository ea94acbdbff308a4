// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Budget measures time spent in the current window against a fixed
// allowance. The window opens on Reset. A zero or negative allowance
// means unlimited: Exceeded always reports false.
//
// Budget is not safe for concurrent use; it belongs to the frame loop
// that resets it.
type Budget struct {
	clock     Clock
	allowance time.Duration
	start     time.Time
}

// NewBudget returns a Budget reading time from c. The window opens at
// construction; call Reset at the start of each frame.
func NewBudget(c Clock, allowance time.Duration) *Budget {
	return &Budget{clock: c, allowance: allowance, start: c.Now()}
}

// Reset opens a new measurement window starting now.
func (b *Budget) Reset() {
	b.start = b.clock.Now()
}

// Elapsed returns the time spent since the window opened.
func (b *Budget) Elapsed() time.Duration {
	return Since(b.clock, b.start)
}

// Exceeded reports whether the window has run past the allowance.
func (b *Budget) Exceeded() bool {
	if b.allowance <= 0 {
		return false
	}
	return b.Elapsed() > b.allowance
}
