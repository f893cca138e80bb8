package service

import (
	"sync"
	"time"
)

// Status is the coarse session phase shown to the runner.
type Status string

// Session phases.
const (
	StatusNotStarted        Status = "not_started"
	StatusMeasuringBaseline Status = "measuring_baseline"
	StatusActive            Status = "active"
)

// Signal reports whether the step sensor is delivering.
type Signal string

// Sensor signal states.
const (
	SignalOK   Signal = "ok"
	SignalNone Signal = "no_signal"
)

// Snapshot is a point-in-time view of the coaching session.
type Snapshot struct {
	Status             Status    `json:"status"`
	Signal             Signal    `json:"signal"`
	ParticipantID      int       `json:"participant_id"`
	SessionID          string    `json:"session_id,omitempty"`
	ElapsedSec         int       `json:"elapsed_sec"`
	Cadence            int       `json:"cadence"`
	Baseline           int       `json:"baseline"`
	BaselineCalculated bool      `json:"baseline_calculated"`
	Deviation          int       `json:"deviation"`
	State              string    `json:"state"`
	At                 time.Time `json:"at"`
}

// EventKind classifies observer events.
type EventKind string

// Observer event kinds.
const (
	EventSessionStarted EventKind = "session_started"
	EventSessionStopped EventKind = "session_stopped"
	EventBaseline       EventKind = "baseline_set"
	EventTick           EventKind = "tick"
	EventTransition     EventKind = "transition"
	EventSignal         EventKind = "signal"
	EventStatus         EventKind = "status" // current snapshot, sent to new subscribers
)

// Event is delivered to observers after the session changes.
type Event struct {
	Kind     EventKind `json:"kind"`
	From     string    `json:"from,omitempty"`
	Snapshot Snapshot  `json:"snapshot"`
}

// Observer receives session events. Observe is called outside the session
// lock but on the timeline, so implementations must not block.
type Observer interface {
	Observe(e Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(e Event)

// Observe calls f.
func (f ObserverFunc) Observe(e Event) { f(e) }

type observers struct {
	mu   sync.RWMutex
	list []Observer
}

func (o *observers) add(obs Observer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.list = append(o.list, obs)
}

func (o *observers) notify(events ...Event) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, e := range events {
		for _, obs := range o.list {
			obs.Observe(e)
		}
	}
}
