// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers defaults, an optional YAML file and environment variables.
// - External errors are wrapped with this package's sentinel errors.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Log sink kinds.
const (
	LogSinkCSV      = "csv"
	LogSinkPostgres = "postgres"
	LogSinkNone     = "none"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// TickIntervalMS is the monitoring tick period.
	TickIntervalMS int `koanf:"tick_interval_ms"`

	// CalibrationWindowMS is the delay between session start and baseline capture.
	CalibrationWindowMS int `koanf:"calibration_window_ms"`

	// StepQueueSize bounds the in-memory step ingestion queue.
	StepQueueSize int `koanf:"step_queue_size"`

	// LogQueueSize bounds the rows waiting for the activity log writer.
	LogQueueSize int `koanf:"log_queue_size"`

	// DedupeSize sets how many step event ids are remembered.
	DedupeSize int `koanf:"dedupe_size"`

	// DeltaDetection enables the step-to-step rise/drop rule.
	DeltaDetection bool `koanf:"delta_detection"`

	// DefaultParticipantID seeds the participant selector.
	DefaultParticipantID int `koanf:"default_participant_id"`

	// LogSink selects the activity log backend: csv, postgres or none.
	LogSink string `koanf:"log_sink"`

	// LogDir is where CSV activity logs are created.
	LogDir string `koanf:"log_dir"`

	// PostgresDSN is used when LogSink is postgres.
	PostgresDSN string `koanf:"postgres_dsn"`

	// MQTT transport for step events, cues and status.
	MQTTEnabled     bool   `koanf:"mqtt_enabled"`
	MQTTBroker      string `koanf:"mqtt_broker"`
	MQTTClientID    string `koanf:"mqtt_client_id"`
	MQTTStepTopic   string `koanf:"mqtt_step_topic"`
	MQTTCueTopic    string `koanf:"mqtt_cue_topic"`
	MQTTStatusTopic string `koanf:"mqtt_status_topic"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		Addr:                 ":9080",
		TickIntervalMS:       2000,
		CalibrationWindowMS:  30000,
		StepQueueSize:        1024,
		LogQueueSize:         4096,
		DedupeSize:           10_000,
		DeltaDetection:       true,
		DefaultParticipantID: 1,
		LogSink:              LogSinkCSV,
		LogDir:               "logs",
		MQTTEnabled:          false,
		MQTTBroker:           "tcp://localhost:1883",
		MQTTClientID:         "cadence-coach",
		MQTTStepTopic:        "cadence/steps",
		MQTTCueTopic:         "cadence/cues",
		MQTTStatusTopic:      "cadence/status",
	}
}

// TickInterval returns the tick period as a duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMS) * time.Millisecond
}

// CalibrationWindow returns the calibration window as a duration.
func (c *Config) CalibrationWindow() time.Duration {
	return time.Duration(c.CalibrationWindowMS) * time.Millisecond
}

// Validate checks field combinations that cannot be expressed with
// defaults. Failures are *FieldError.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return invalid("addr", "must not be empty")
	case c.TickIntervalMS <= 0:
		return invalid("tick_interval_ms", "must be positive")
	case c.CalibrationWindowMS <= 0:
		return invalid("calibration_window_ms", "must be positive")
	case c.DefaultParticipantID < 1:
		return invalid("default_participant_id", "must be >= 1")
	case c.LogFormat != "text" && c.LogFormat != "json":
		return invalid("log_format", "must be text or json")
	}

	switch c.LogSink {
	case LogSinkCSV:
		if strings.TrimSpace(c.LogDir) == "" {
			return invalid("log_dir", "must not be empty for the csv sink")
		}
	case LogSinkPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return invalid("postgres_dsn", "must be set for the postgres sink")
		}
	case LogSinkNone:
	default:
		return invalid("log_sink", fmt.Sprintf("%q is not csv, postgres or none", c.LogSink))
	}

	if c.MQTTEnabled && strings.TrimSpace(c.MQTTBroker) == "" {
		return invalid("mqtt_broker", "must be set when mqtt is enabled")
	}
	return nil
}
