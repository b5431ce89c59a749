package core

import "time"

// Clock measures elapsed wall time between Start and the most recent
// Update, in nanoseconds. The executor uses one per frame to report the
// frame time to core.MetricsUpdate.
type Clock struct {
	startTime float64
	elapsed   float64
}

func NewClock() *Clock {
	return &Clock{}
}

// Update refreshes the elapsed time. Has no effect on a non-started clock.
func (c *Clock) Update() {
	if c.startTime != 0 {
		c.elapsed = float64(time.Now().UnixNano()) - c.startTime
	}
}

// Start (re)starts the clock, resetting elapsed time.
func (c *Clock) Start() {
	c.startTime = float64(time.Now().UnixNano())
	c.elapsed = 0
}

// Stop halts the clock without resetting the last elapsed reading.
func (c *Clock) Stop() {
	c.startTime = 0
}

func (c *Clock) Elapsed() float64 {
	return c.elapsed
}
