// Package audio turns feedback state changes into audible output.
//
// The concrete sound device is outside this service; an Output receives
// each cue and renders it (log line, MQTT message to the wearable, ...).
package audio

import (
	"context"
	"errors"
	"time"

	"github.com/EdinaDepner/CadenceCoach/pkg/logger"
)

// Kind names a cue class.
type Kind string

// Cue classes.
const (
	KindUp        Kind = "cadence_up"
	KindDown      Kind = "cadence_down"
	KindRecovered Kind = "cadence_recovered"
	KindBeat      Kind = "beat"
	KindBeatStart Kind = "beat_start"
	KindBeatStop  Kind = "beat_stop"
)

// Cue is one audible event.
type Cue struct {
	Kind Kind      `json:"kind"`
	SPM  int       `json:"spm,omitempty"`
	At   time.Time `json:"at"`
}

// Output renders cues. Emit should return promptly when ctx is cancelled,
// which happens when a newer cue of the same class replaces this one.
type Output interface {
	Emit(ctx context.Context, c Cue) error
}

// OutputFunc adapts a function to Output.
type OutputFunc func(ctx context.Context, c Cue) error

// Emit calls f.
func (f OutputFunc) Emit(ctx context.Context, c Cue) error { return f(ctx, c) }

// LogOutput writes every cue to a logger. Beats are logged at debug level.
type LogOutput struct {
	Logger logger.Logger
}

// Emit implements Output.
func (o LogOutput) Emit(ctx context.Context, c Cue) error {
	if c.Kind == KindBeat {
		o.Logger.Debug(ctx, "beat", logger.Int("spm", c.SPM))
		return nil
	}
	o.Logger.Info(ctx, "cue", logger.String("kind", string(c.Kind)), logger.Int("spm", c.SPM))
	return nil
}

// MultiOutput fans a cue out to several outputs.
type MultiOutput []Output

// Emit implements Output. Every output is tried; failures are joined.
func (m MultiOutput) Emit(ctx context.Context, c Cue) error {
	var errs []error
	for _, o := range m {
		if err := o.Emit(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
