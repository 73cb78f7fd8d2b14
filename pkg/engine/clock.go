package engine

import (
	"sync"
	"time"
)

// Clock supplies the current logical height. Successive calls never return a
// smaller value.
type Clock interface {
	Height() uint64
}

// ManualClock is a clock driven explicitly by the caller, used for tests and
// for hosts that derive height from an external source.
//
// Thread-safe.
type ManualClock struct {
	mu     sync.Mutex
	height uint64
}

// NewManualClock creates a clock starting at height.
func NewManualClock(height uint64) *ManualClock {
	return &ManualClock{height: height}
}

func (c *ManualClock) Height() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height
}

// Advance moves the clock forward by n and returns the new height.
func (c *ManualClock) Advance(n uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.height += n
	return c.height
}

// Set moves the clock to height. Values below the current height are ignored.
func (c *ManualClock) Set(height uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if height > c.height {
		c.height = height
	}
}

// MonotonicClock reports unix seconds, clamped so that a wall clock stepping
// backwards never lowers the height.
type MonotonicClock struct {
	mu   sync.Mutex
	last uint64
	now  func() time.Time
}

// NewMonotonicClock creates a wall-clock backed height source.
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{now: time.Now}
}

func (c *MonotonicClock) Height() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	secs := c.now().Unix()
	if secs > 0 && uint64(secs) > c.last {
		c.last = uint64(secs)
	}
	return c.last
}
