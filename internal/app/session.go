package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/EdinaDepner/CadenceCoach/internal/adapters/activitylog"
	"github.com/EdinaDepner/CadenceCoach/internal/domain/feedback"
	"github.com/EdinaDepner/CadenceCoach/internal/domain/model"
	"github.com/EdinaDepner/CadenceCoach/pkg/logger"
	"github.com/EdinaDepner/CadenceCoach/pkg/metrics"
)

// StartSession begins a coaching session. A participantID of 0 uses the
// current participant selector; a positive one also moves the selector.
func (s *Service) StartSession(ctx context.Context, participantID int) (model.Session, error) {
	if participantID < 0 {
		return model.Session{}, ErrInvalidParticipant
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return model.Session{}, ErrStopped
	}
	if s.session != nil {
		id := s.session.ID
		s.mu.Unlock()
		return model.Session{}, fmt.Errorf("%w: %s", ErrSessionActive, id)
	}
	if participantID > 0 {
		s.participant = participantID
	}

	now := s.sched.NowMillis()
	s.generation++
	sess := model.Session{
		ID:            s.newID(),
		ParticipantID: s.participant,
		StartedAt:     s.now(),
		StartMS:       now,
		Generation:    s.generation,
	}

	sessLog := s.logger.With(logger.String("sessionId", sess.ID), logger.Int("participantId", sess.ParticipantID))
	w, err := s.logFactory(ctx, sess)
	if err != nil {
		metrics.RecordErrorByComponent("activity_log", "open_failed")
		sessLog.Error(ctx, "activity log unavailable, session continues without it", logger.Error(err))
		w = activitylog.Discard{}
	}
	alog := activitylog.NewAsync(w,
		activitylog.WithQueueSize(s.logQueueSize),
		activitylog.WithLogger(sessLog.Named("activitylog")),
	)
	go s.drainLogErrors(alog, sess.ID)

	s.session = &sess
	s.log = alog
	s.estimator.Reset(now)
	s.calibrator.Start(now)
	gen := sess.Generation
	s.baselineHandle = s.sched.After(s.calibrator.Window(), func() { s.captureBaseline(gen) })
	snap := s.snapshotLocked(now)
	s.mu.Unlock()

	s.sessions.Add(1)
	metrics.RecordSessionStarted()
	metrics.UpdateBaselineCadence(0)
	s.logger.Info(ctx, "session started",
		logger.String("sessionId", sess.ID),
		logger.Int("participantId", sess.ParticipantID),
	)
	s.observers.notify(Event{Kind: EventSessionStarted, Snapshot: snap})
	return sess, nil
}

// StopSession ends the active session. Pending baseline capture and ticks
// are cancelled; the activity log is drained and closed.
func (s *Service) StopSession(ctx context.Context) error {
	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return ErrNoSession
	}
	sess := *s.session
	now := s.sched.NowMillis()
	snap := s.snapshotLocked(now)

	if s.baselineHandle != nil {
		s.baselineHandle.Cancel()
		s.baselineHandle = nil
	}
	if s.tickHandle != nil {
		s.tickHandle.Cancel()
		s.tickHandle = nil
	}
	s.machine.Reset()
	s.calibrator.Reset()
	alog := s.log
	s.log = nil
	s.session = nil
	s.mu.Unlock()

	var err error
	if alog != nil {
		if cerr := alog.Close(); cerr != nil {
			err = fmt.Errorf("close activity log: %w", cerr)
			s.logger.Error(ctx, "closing activity log failed",
				logger.String("sessionId", sess.ID),
				logger.Error(cerr),
			)
		}
	}

	metrics.RecordSessionStopped()
	metrics.UpdateCurrentCadence(0)
	s.logger.Info(ctx, "session stopped",
		logger.String("sessionId", sess.ID),
		logger.Int("elapsedSec", sess.ElapsedSec(now)),
	)

	snap.Status = StatusNotStarted
	snap.State = feedback.StateInit.String()
	s.observers.notify(Event{Kind: EventSessionStopped, Snapshot: snap})
	return err
}

// captureBaseline freezes the cadence at the end of the calibration window
// and starts the monitoring tick.
func (s *Service) captureBaseline(gen uint64) {
	ctx := context.Background()

	s.mu.Lock()
	if s.session == nil || s.session.Generation != gen || s.calibrator.IsCalculated() {
		s.mu.Unlock()
		return
	}
	now := s.sched.NowMillis()
	current := s.cadenceLocked(now)
	b := s.calibrator.Sample(current)
	s.machine.Arm(b.Value, now)
	s.baselineHandle = nil
	s.tickHandle = s.sched.Every(s.tickInterval, func() { s.tick(gen) })

	rec := model.NewRecord(*s.session, now, current, b.Value, s.machine.State().String())
	// Enqueue before unlocking so StopSession cannot close the log first.
	s.appendRecord(ctx, s.log, rec)
	snap := s.snapshotLocked(now)
	s.mu.Unlock()

	metrics.UpdateBaselineCadence(b.Value)
	s.logger.Info(ctx, "baseline captured",
		logger.String("sessionId", rec.SessionID),
		logger.Int("baseline", b.Value),
		logger.Bool("usable", b.Usable()),
	)
	s.observers.notify(Event{Kind: EventBaseline, Snapshot: snap})
}

// tick evaluates one monitoring period and appends its log row.
func (s *Service) tick(gen uint64) {
	ctx, span := s.tracer.Start(context.Background(), "cadence.tick")
	defer span.End()

	s.mu.Lock()
	if s.session == nil || s.session.Generation != gen {
		s.mu.Unlock()
		return
	}
	now := s.sched.NowMillis()
	current := s.cadenceLocked(now)
	tr := s.machine.Tick(current, now)
	rec := model.NewRecord(*s.session, now, current, s.calibrator.Baseline().Value, tr.To.String())
	s.appendRecord(ctx, s.log, rec)
	snap := s.snapshotLocked(now)
	s.mu.Unlock()

	span.SetAttributes(
		attribute.String("session.id", rec.SessionID),
		attribute.Int("cadence.spm", current),
		attribute.Int("cadence.baseline", rec.Baseline),
		attribute.String("cadence.state", rec.State),
		attribute.Bool("cadence.changed", tr.Changed),
	)

	s.ticks.Add(1)
	metrics.RecordTick()
	metrics.UpdateCurrentCadence(current)

	events := []Event{{Kind: EventTick, Snapshot: snap}}
	if tr.Changed {
		s.transitions.Add(1)
		metrics.RecordTransition(tr.To.String())
		s.logger.Debug(ctx, "cadence state changed",
			logger.String("from", tr.From.String()),
			logger.String("to", tr.To.String()),
			logger.Int("cadence", current),
		)
		events = append(events, Event{Kind: EventTransition, From: tr.From.String(), Snapshot: snap})
	}
	s.observers.notify(events...)
}

// appendRecord queues rec without blocking. Callers hold s.mu.
func (s *Service) appendRecord(ctx context.Context, alog *activitylog.AsyncLog, rec model.Record) {
	if alog == nil {
		return
	}
	if err := alog.Append(ctx, rec); err != nil {
		s.logger.Warn(ctx, "activity log append failed",
			logger.String("sessionId", rec.SessionID),
			logger.Int("elapsedSec", rec.ElapsedSec),
			logger.Error(err),
		)
	}
}

func (s *Service) drainLogErrors(alog *activitylog.AsyncLog, sessionID string) {
	for err := range alog.Errors() {
		s.logger.Error(context.Background(), "activity log write failed",
			logger.String("sessionId", sessionID),
			logger.Error(err),
		)
	}
}

// Status returns a snapshot of the current session.
func (s *Service) Status() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(s.sched.NowMillis())
}

// SetSensorAvailable records whether the step sensor is delivering. While
// it is not, cadence reads as 0.
func (s *Service) SetSensorAvailable(available bool) {
	s.mu.Lock()
	if s.sensorOK == available {
		s.mu.Unlock()
		return
	}
	s.sensorOK = available
	snap := s.snapshotLocked(s.sched.NowMillis())
	s.mu.Unlock()

	metrics.UpdateSensorAvailable(available)
	s.logger.Info(context.Background(), "step sensor availability changed", logger.Bool("available", available))
	s.observers.notify(Event{Kind: EventSignal, Snapshot: snap})
}

// Participant returns the participant selector value.
func (s *Service) Participant() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.participant
}

// SetParticipant moves the participant selector.
func (s *Service) SetParticipant(id int) error {
	if id < 1 {
		return ErrInvalidParticipant
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participant = id
	return nil
}

// IncrementParticipant moves the selector up by one and returns it.
func (s *Service) IncrementParticipant() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participant++
	return s.participant
}

// DecrementParticipant moves the selector down by one, never below 1.
func (s *Service) DecrementParticipant() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.participant > 1 {
		s.participant--
	}
	return s.participant
}

func (s *Service) cadenceLocked(now int64) int {
	if !s.sensorOK {
		return 0
	}
	return s.estimator.CurrentCadence(now)
}

func (s *Service) snapshotLocked(now int64) Snapshot {
	snap := Snapshot{
		Status:        StatusNotStarted,
		Signal:        SignalOK,
		ParticipantID: s.participant,
		State:         s.machine.State().String(),
	}
	if !s.sensorOK {
		snap.Signal = SignalNone
	}
	if s.session == nil {
		return snap
	}

	b := s.calibrator.Baseline()
	snap.Status = StatusMeasuringBaseline
	if b.Calculated {
		snap.Status = StatusActive
	}
	snap.ParticipantID = s.session.ParticipantID
	snap.SessionID = s.session.ID
	snap.ElapsedSec = s.session.ElapsedSec(now)
	snap.At = s.session.WallClock(now)
	snap.Cadence = s.cadenceLocked(now)
	snap.Baseline = b.Value
	snap.BaselineCalculated = b.Calculated
	if b.Calculated {
		snap.Deviation = snap.Cadence - b.Value
	}
	return snap
}
