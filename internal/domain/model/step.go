// Package model contains domain models passed between layers.
package model

import "time"

// StepEvent is a single detected footstep as delivered by a transport.
// The core consumes the detection time mapped onto the session timeline, or
// the arrival instant when the sensor did not stamp the step.
type StepEvent struct {
	EventID    string    // optional id for at-least-once de-duplication
	Source     string    // transport that delivered it, e.g. "http", "mqtt"
	ReceivedAt time.Time // wall clock at the transport edge
	// TimestampMS is when the sensor detected the step, in Unix milliseconds.
	// Zero means the source did not stamp it.
	TimestampMS int64
}

// Stamped reports whether the sensor supplied a detection time.
func (e StepEvent) Stamped() bool { return e.TimestampMS > 0 }
