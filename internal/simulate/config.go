package simulate

import (
	"time"
)

// Default runner settings.
const (
	DefaultBaseURL = "http://localhost:9080"
	DefaultTimeout = 5 * time.Second
	DefaultWorkers = 4
)

// Config holds the settings for a real-time run against a live service.
type Config struct {
	BaseURL       string
	Profile       Profile
	Seed          uint64
	ParticipantID int           // 0 uses the service's selector
	Workers       int           // concurrent in-flight step requests
	Timeout       time.Duration // per request
	EventIDs      bool          // attach a unique id to every step
	ManageSession bool          // start the session first and stop it at the end
}

func (c *Config) withDefaults() *Config {
	out := *c
	if out.BaseURL == "" {
		out.BaseURL = DefaultBaseURL
	}
	if out.Timeout <= 0 {
		out.Timeout = DefaultTimeout
	}
	if out.Workers <= 0 {
		out.Workers = DefaultWorkers
	}
	return &out
}

// stepRequest is the body posted to /steps.
type stepRequest struct {
	EventID     string `json:"event_id,omitempty"`
	TimestampMS int64  `json:"timestamp_ms,omitempty"`
}

// startRequest is the body posted to /session/start.
type startRequest struct {
	ParticipantID int `json:"participant_id,omitempty"`
}

// startResponse is the body returned by /session/start.
type startResponse struct {
	SessionID     string `json:"session_id"`
	ParticipantID int    `json:"participant_id"`
}

// Stats tracks a run's results.
type Stats struct {
	StepsPlanned   int
	StepsSent      int
	StepsAccepted  int
	StepsDuplicate int
	StepsThrottled int
	StepsFailed    int
	SessionID      string
	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
}
