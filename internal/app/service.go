// Package service runs coaching sessions: it owns the cadence estimator, the
// baseline calibrator and the feedback state machine for one participant at a
// time, and drives them from a single scheduler timeline.
package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/EdinaDepner/CadenceCoach/internal/adapters/activitylog"
	"github.com/EdinaDepner/CadenceCoach/internal/adapters/mq/queue"
	"github.com/EdinaDepner/CadenceCoach/internal/adapters/mq/worker"
	"github.com/EdinaDepner/CadenceCoach/internal/domain/baseline"
	"github.com/EdinaDepner/CadenceCoach/internal/domain/cadence"
	"github.com/EdinaDepner/CadenceCoach/internal/domain/dedupe"
	"github.com/EdinaDepner/CadenceCoach/internal/domain/feedback"
	"github.com/EdinaDepner/CadenceCoach/internal/domain/model"
	"github.com/EdinaDepner/CadenceCoach/internal/scheduler"
	"github.com/EdinaDepner/CadenceCoach/pkg/logger"
	"github.com/EdinaDepner/CadenceCoach/pkg/metrics"
)

const tracerName = "github.com/EdinaDepner/CadenceCoach/internal/app"

// Service is the session controller.
type Service struct {
	mu sync.Mutex

	// Collaborators
	sched      scheduler.Scheduler
	ownSched   *scheduler.Loop
	sink       feedback.Sink
	logFactory activitylog.Factory
	deduper    dedupe.Deduper
	steps      *queue.InMemoryQueue[model.StepEvent]
	stepWorker *worker.Worker[model.StepEvent]
	tracer     trace.Tracer
	now        func() time.Time
	newID      func() string

	// Configuration
	tickInterval      time.Duration
	calibrationWindow time.Duration
	deltaDetection    bool
	stepQueueSize     int
	logQueueSize      int
	dedupeSize        int

	// Session state, guarded by mu
	estimator      *cadence.Estimator
	calibrator     *baseline.Calibrator
	machine        *feedback.Machine
	session        *model.Session
	generation     uint64
	participant    int
	sensorOK       bool
	log            *activitylog.AsyncLog
	baselineHandle scheduler.Handle
	tickHandle     scheduler.Handle

	// Counters
	stepsAccepted  atomic.Int64
	stepsRejected  atomic.Int64
	stepsDuplicate atomic.Int64
	stepsDropped   atomic.Int64
	stepsClockAhead atomic.Int64
	ticks          atomic.Int64
	transitions    atomic.Int64
	sessions       atomic.Int64

	observers observers

	// Lifecycle
	started bool
	stopped bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		sink:              feedback.NopSink{},
		logFactory:        activitylog.DiscardFactory,
		tracer:            otel.Tracer(tracerName),
		now:               time.Now,
		newID:             uuid.NewString,
		tickInterval:      2 * time.Second,
		calibrationWindow: baseline.DefaultWindow,
		deltaDetection:    true,
		stepQueueSize:     1024,
		logQueueSize:      4096,
		dedupeSize:        10_000,
		participant:       1,
		sensorOK:          true,
		logger:            logger.Nop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.sched == nil {
		s.ownSched = scheduler.NewLoop(scheduler.WithLogger(s.logger))
		s.sched = s.ownSched
	}
	s.estimator = cadence.NewEstimator()
	s.calibrator = baseline.NewCalibrator(baseline.WithWindow(s.calibrationWindow))
	s.machine = feedback.NewMachine(s.sink, feedback.WithDeltaDetection(s.deltaDetection))
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.steps = queue.NewInMemoryQueue[model.StepEvent]("steps", queue.WithCapacity(s.stepQueueSize))
	s.stepWorker = worker.New[model.StepEvent](s.steps, worker.HandlerFunc[model.StepEvent](s.handleStep),
		worker.WithName("steps"), worker.WithLogger(s.logger))
	s.stepWorker.OnError(func(model.StepEvent, error) {
		s.stepsDropped.Add(1)
		metrics.RecordStepDropped("timeline_closed")
	})
	return s
}

// Start runs the step ingestion worker, and the event loop when the service
// created its own.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting cadence service...")

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	if s.ownSched != nil {
		go s.ownSched.Run(runCtx)
	}
	go s.stepWorker.Run(runCtx)

	s.started = true
	s.logger.Info(ctx, "cadence service started",
		logger.Int("tickIntervalMs", int(s.tickInterval.Milliseconds())),
		logger.Int("calibrationWindowMs", int(s.calibrationWindow.Milliseconds())),
		logger.Bool("deltaDetection", s.deltaDetection),
		logger.Int("stepQueueSize", s.stepQueueSize),
	)
	return nil
}

// Shutdown stops any active session, drains queued steps and stops the
// worker. It is safe to call more than once.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	started := s.started
	s.mu.Unlock()

	s.logger.Info(ctx, "stopping cadence service...")

	if err := s.StopSession(ctx); err != nil && !errors.Is(err, ErrNoSession) {
		s.logger.Warn(ctx, "stop session on shutdown failed", logger.Error(err))
	}

	_ = s.steps.Close()
	var err error
	if started {
		select {
		case <-s.stepWorker.Done():
		case <-ctx.Done():
			err = s.stepWorker.Shutdown(ctx)
		}
		s.cancel()
		if s.ownSched != nil {
			if serr := s.ownSched.Shutdown(ctx); serr != nil && err == nil {
				err = serr
			}
		}
	}

	s.logger.Info(ctx, "cadence service stopped")
	return err
}

// AddObserver subscribes obs to session events.
func (s *Service) AddObserver(obs Observer) {
	if obs != nil {
		s.observers.add(obs)
	}
}

// Stats returns service statistics for monitoring.
func (s *Service) Stats() map[string]any {
	ctx := context.Background()

	s.mu.Lock()
	stats := map[string]any{
		"started":           s.started,
		"participant":       s.participant,
		"tickIntervalMs":    s.tickInterval.Milliseconds(),
		"calibrationWindow": s.calibrationWindow.Milliseconds(),
		"deltaDetection":    s.deltaDetection,
		"sessionActive":     s.session != nil,
	}
	if s.session != nil {
		stats["sessionId"] = s.session.ID
	}
	s.mu.Unlock()

	stats["stepQueueLength"] = s.steps.Len(ctx)
	stats["stepQueueCapacity"] = s.steps.Capacity()
	stats["dedupeSize"] = s.deduper.Size()
	stats["stepsAccepted"] = s.stepsAccepted.Load()
	stats["stepsRejected"] = s.stepsRejected.Load()
	stats["stepsDuplicate"] = s.stepsDuplicate.Load()
	stats["stepsDropped"] = s.stepsDropped.Load()
	stats["stepsClockAhead"] = s.stepsClockAhead.Load()
	stats["ticks"] = s.ticks.Load()
	stats["transitions"] = s.transitions.Load()
	stats["sessions"] = s.sessions.Load()
	return stats
}
