// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bench

import (
	"sync"
	"time"
)

// Clock abstracts time measurement so benchmark runs are testable
// without sleeping.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// SystemClock reads the real system time.
type SystemClock struct{}

// NewSystemClock creates a clock backed by time.Now.
func NewSystemClock() *SystemClock {
	return &SystemClock{}
}

// Now implements Clock.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// FakeClock is a manually controlled clock for tests.
//
// Description:
//
//	FakeClock starts at a fixed instant and only moves when told to.
//	An optional step advances the clock on every Now call, which makes
//	each timed interval deterministic without any real waiting.
//
// Thread Safety: Safe for concurrent use.
type FakeClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewFakeClock creates a fake clock starting at the given instant.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// SetStep makes every Now call advance the clock by d.
func (c *FakeClock) SetStep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step = d
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Now implements Clock.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}
