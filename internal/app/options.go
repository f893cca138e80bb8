package service

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/EdinaDepner/CadenceCoach/internal/adapters/activitylog"
	"github.com/EdinaDepner/CadenceCoach/internal/domain/feedback"
	"github.com/EdinaDepner/CadenceCoach/internal/scheduler"
	"github.com/EdinaDepner/CadenceCoach/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithScheduler sets the timeline the session runs on.
func WithScheduler(s scheduler.Scheduler) Option {
	return func(svc *Service) {
		if s != nil {
			svc.sched = s
		}
	}
}

// WithSink sets the feedback sink driven by the state machine.
func WithSink(sink feedback.Sink) Option {
	return func(svc *Service) {
		if sink != nil {
			svc.sink = sink
		}
	}
}

// WithLogFactory sets how a session's activity log is opened.
func WithLogFactory(f activitylog.Factory) Option {
	return func(svc *Service) {
		if f != nil {
			svc.logFactory = f
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(svc *Service) {
		if l != nil {
			svc.logger = l
		}
	}
}

// WithTickInterval sets the monitoring period.
func WithTickInterval(d time.Duration) Option {
	return func(svc *Service) {
		if d > 0 {
			svc.tickInterval = d
		}
	}
}

// WithCalibrationWindow sets the delay before the baseline is captured.
func WithCalibrationWindow(d time.Duration) Option {
	return func(svc *Service) {
		if d > 0 {
			svc.calibrationWindow = d
		}
	}
}

// WithDeltaDetection toggles the tick-to-tick rise/drop rule.
func WithDeltaDetection(enabled bool) Option {
	return func(svc *Service) {
		svc.deltaDetection = enabled
	}
}

// WithStepQueueSize bounds the step ingestion queue.
func WithStepQueueSize(size int) Option {
	return func(svc *Service) {
		if size > 0 {
			svc.stepQueueSize = size
		}
	}
}

// WithLogQueueSize bounds the rows waiting for the activity log writer.
func WithLogQueueSize(size int) Option {
	return func(svc *Service) {
		if size > 0 {
			svc.logQueueSize = size
		}
	}
}

// WithDedupeSize sets how many step event ids are remembered.
func WithDedupeSize(size int) Option {
	return func(svc *Service) {
		if size > 0 {
			svc.dedupeSize = size
		}
	}
}

// WithParticipant seeds the participant selector.
func WithParticipant(id int) Option {
	return func(svc *Service) {
		if id >= 1 {
			svc.participant = id
		}
	}
}

// WithTracerProvider sets the provider tick spans are recorded with.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(svc *Service) {
		if tp != nil {
			svc.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithClock overrides the wall clock used for session timestamps.
func WithClock(now func() time.Time) Option {
	return func(svc *Service) {
		if now != nil {
			svc.now = now
		}
	}
}

// WithIDGenerator overrides how session ids are minted.
func WithIDGenerator(gen func() string) Option {
	return func(svc *Service) {
		if gen != nil {
			svc.newID = gen
		}
	}
}
