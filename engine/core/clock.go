package core

import "time"

// Clock measures elapsed time for the frame loop. A stopped clock has no
// effect when updated.
type Clock struct {
	startTime time.Time
	elapsed   time.Duration
}

func NewClock() *Clock {
	return &Clock{}
}

// Update refreshes elapsed time. Call just before reading Elapsed.
func (c *Clock) Update() {
	if !c.startTime.IsZero() {
		c.elapsed = time.Since(c.startTime)
	}
}

// Start starts the clock and resets elapsed time.
func (c *Clock) Start() {
	c.startTime = time.Now()
	c.elapsed = 0
}

// Stop stops the clock. Does not reset elapsed time.
func (c *Clock) Stop() {
	c.startTime = time.Time{}
}

func (c *Clock) Elapsed() time.Duration {
	return c.elapsed
}

// ElapsedSeconds is the elapsed time as a float, for delta-time math.
func (c *Clock) ElapsedSeconds() float64 {
	return c.elapsed.Seconds()
}
