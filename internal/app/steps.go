package service

import (
	"context"

	"github.com/EdinaDepner/CadenceCoach/internal/domain/model"
	"github.com/EdinaDepner/CadenceCoach/pkg/logger"
	"github.com/EdinaDepner/CadenceCoach/pkg/metrics"
)

// SubmitStep accepts a step from a transport. Events carrying an id are
// de-duplicated; accepted events are queued for the timeline.
func (s *Service) SubmitStep(ctx context.Context, ev model.StepEvent) error {
	s.mu.Lock()
	started, stopped := s.started, s.stopped
	s.mu.Unlock()
	if stopped {
		return ErrStopped
	}
	if !started {
		return ErrNotStarted
	}

	if ev.EventID != "" && s.deduper.SeenAndRecord(ctx, ev.EventID) {
		s.stepsDuplicate.Add(1)
		metrics.RecordStepDuplicate()
		s.logger.Debug(ctx, "duplicate step detected, skipping",
			logger.String("eventId", ev.EventID),
			logger.String("source", ev.Source),
		)
		return ErrDuplicate
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = s.now()
	}

	if !s.steps.Enqueue(ctx, ev) {
		if ev.EventID != "" {
			// Let a retry of the same event through.
			s.deduper.Forget(ctx, ev.EventID)
		}
		s.stepsDropped.Add(1)
		metrics.RecordStepDropped("queue_full")
		return ErrQueueFull
	}
	return nil
}

// RecordStep posts a step straight onto the timeline. A stamped step counts
// at its detection time; an unstamped one at the instant the timeline runs
// it. It returns false if the timeline refused it.
func (s *Service) RecordStep(ev model.StepEvent) bool {
	return s.sched.Post(func() { s.onStep(ev) })
}

func (s *Service) handleStep(_ context.Context, ev model.StepEvent) error {
	if !s.RecordStep(ev) {
		return ErrStopped
	}
	return nil
}

func (s *Service) onStep(ev model.StepEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		s.stepsDropped.Add(1)
		metrics.RecordStepDropped("no_session")
		return
	}
	if s.estimator.OnStep(s.stepInstantLocked(ev, s.sched.NowMillis())) {
		s.stepsAccepted.Add(1)
		metrics.RecordStepAccepted()
		return
	}
	s.stepsRejected.Add(1)
	metrics.RecordStepRejected()
	s.logger.Debug(context.Background(), "step rejected as chatter", logger.String("source", ev.Source))
}

// maxSensorLeadMS bounds how far ahead of the timeline a sensor clock may
// run before its stamps are ignored in favour of the arrival instant.
const maxSensorLeadMS = 2000

// stepInstantLocked places ev on the timeline. Stamped steps keep their
// sensor spacing, so a batch delivered at once is not mistaken for chatter.
func (s *Service) stepInstantLocked(ev model.StepEvent, now int64) int64 {
	if !ev.Stamped() {
		return now
	}
	at := s.session.TimelineAt(ev.TimestampMS)
	if at > now+maxSensorLeadMS {
		s.stepsClockAhead.Add(1)
		metrics.RecordErrorByComponent("steps", "sensor_clock_ahead")
		return now
	}
	return at
}
