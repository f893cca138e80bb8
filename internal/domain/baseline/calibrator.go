// Package baseline fixes a participant's natural cadence once per session.
package baseline

import "time"

// DefaultWindow is the delay between session start and baseline capture.
const DefaultWindow = 30 * time.Second

// Baseline is the frozen reference cadence for a session.
type Baseline struct {
	Value      int
	Calculated bool
}

// Usable reports whether the baseline can drive band comparisons.
func (b Baseline) Usable() bool {
	return b.Calculated && b.Value > 0
}

// Calibrator captures a single cadence sample at the end of its window.
// Scheduling the sample is the caller's job; see DueAt.
type Calibrator struct {
	window   time.Duration
	startMS  int64
	started  bool
	baseline Baseline
}

// Option configures a Calibrator.
type Option func(*Calibrator)

// WithWindow overrides the calibration window.
func WithWindow(d time.Duration) Option {
	return func(c *Calibrator) {
		if d > 0 {
			c.window = d
		}
	}
}

// NewCalibrator creates an idle calibrator.
func NewCalibrator(opts ...Option) *Calibrator {
	c := &Calibrator{window: DefaultWindow}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start arms the calibrator for a session beginning at nowMS.
func (c *Calibrator) Start(nowMS int64) {
	c.startMS = nowMS
	c.started = true
	c.baseline = Baseline{}
}

// Window returns the configured calibration window.
func (c *Calibrator) Window() time.Duration { return c.window }

// DueAt is the timeline instant at which Sample should be called.
func (c *Calibrator) DueAt() int64 {
	return c.startMS + c.window.Milliseconds()
}

// Sample freezes cadence as the baseline. Later calls, and calls on a
// calibrator that was never started or has been reset, return the current
// baseline unchanged.
func (c *Calibrator) Sample(cadence int) Baseline {
	if !c.started || c.baseline.Calculated {
		return c.baseline
	}
	if cadence < 0 {
		cadence = 0
	}
	c.baseline = Baseline{Value: cadence, Calculated: true}
	return c.baseline
}

// IsCalculated reports whether Sample has fixed a baseline.
func (c *Calibrator) IsCalculated() bool { return c.baseline.Calculated }

// Baseline returns the current baseline.
func (c *Calibrator) Baseline() Baseline { return c.baseline }

// Reset returns the calibrator to its idle, uncalculated state.
func (c *Calibrator) Reset() {
	c.started = false
	c.startMS = 0
	c.baseline = Baseline{}
}
