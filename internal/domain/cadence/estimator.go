// Package cadence turns a noisy stream of step timestamps into a smoothed
// steps-per-minute estimate.
package cadence

import "math"

// Estimator tuning constants.
const (
	// MinStepIntervalMS rejects sensor chatter above 300 spm.
	MinStepIntervalMS = 200
	// StaleAfterMS is how long without an accepted step before cadence reads 0.
	StaleAfterMS = 2500

	historyWeight = 0.6
	instantWeight = 0.4
	msPerMinute   = 60000.0
)

// Estimator holds the smoothed cadence for one session. It is not safe for
// concurrent use; callers serialise access on the session timeline.
type Estimator struct {
	smoothed   float64
	lastStepMS int64
	primed     bool
}

// NewEstimator returns an estimator reset at timeline instant 0.
func NewEstimator() *Estimator {
	return &Estimator{}
}

// Reset clears the estimate and treats nowMS as the previous step instant.
func (e *Estimator) Reset(nowMS int64) {
	e.smoothed = 0
	e.lastStepMS = nowMS
	e.primed = false
}

// OnStep feeds one step. It reports whether the step was accepted. A step
// closer than MinStepIntervalMS to the last accepted one is chatter; so is a
// step stamped earlier than it, which keeps the divisor positive.
func (e *Estimator) OnStep(nowMS int64) bool {
	delta := nowMS - e.lastStepMS
	if delta < MinStepIntervalMS {
		return false
	}

	inst := msPerMinute / float64(delta)
	if e.primed {
		e.smoothed = historyWeight*e.smoothed + instantWeight*inst
	} else {
		e.smoothed = inst
		e.primed = true
	}
	e.lastStepMS = nowMS
	return true
}

// CurrentCadence returns the floored estimate, or 0 once the last accepted
// step is older than StaleAfterMS.
func (e *Estimator) CurrentCadence(nowMS int64) int {
	if nowMS-e.lastStepMS > StaleAfterMS {
		return 0
	}
	return int(math.Floor(e.smoothed))
}

// Smoothed exposes the raw EWMA value.
func (e *Estimator) Smoothed() float64 { return e.smoothed }

// LastStepTime returns the timeline instant of the last accepted step.
func (e *Estimator) LastStepTime() int64 { return e.lastStepMS }
