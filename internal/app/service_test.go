package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/EdinaDepner/CadenceCoach/internal/adapters/activitylog"
	"github.com/EdinaDepner/CadenceCoach/internal/domain/feedback"
	"github.com/EdinaDepner/CadenceCoach/internal/domain/model"
	"github.com/EdinaDepner/CadenceCoach/internal/scheduler"
)

var sessionStart = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

type recordingSink struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingSink) add(c string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
}

func (r *recordingSink) StartBeat(int)         { r.add("start_beat") }
func (r *recordingSink) StopBeat()             { r.add("stop_beat") }
func (r *recordingSink) PlayCadenceUp()        { r.add("up") }
func (r *recordingSink) PlayCadenceDown()      { r.add("down") }
func (r *recordingSink) PlayCadenceRecovered() { r.add("recovered") }

func (r *recordingSink) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type memoryLog struct {
	mu      sync.Mutex
	records []model.Record
	closed  bool
}

func (m *memoryLog) Append(_ context.Context, r model.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	return nil
}

func (m *memoryLog) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *memoryLog) Records() []model.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Record(nil), m.records...)
}

type harness struct {
	svc    *Service
	clock  *scheduler.Manual
	sink   *recordingSink
	log    *memoryLog
	events *eventLog
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (e *eventLog) Observe(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *eventLog) Kinds() []EventKind {
	e.mu.Lock()
	defer e.mu.Unlock()
	kinds := make([]EventKind, 0, len(e.events))
	for _, ev := range e.events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

func newHarness(opts ...Option) *harness {
	h := &harness{
		clock:  scheduler.NewManual(0),
		sink:   &recordingSink{},
		log:    &memoryLog{},
		events: &eventLog{},
	}
	base := []Option{
		WithScheduler(h.clock),
		WithSink(h.sink),
		WithLogFactory(func(context.Context, model.Session) (activitylog.Writer, error) { return h.log, nil }),
		WithClock(func() time.Time { return sessionStart }),
		WithIDGenerator(func() string { return "session-1" }),
	}
	h.svc = New(append(base, opts...)...)
	h.svc.AddObserver(h.events)
	return h
}

// stepEvery feeds steps every interval ms over (from, to], running ticks
// that fall due in between.
func (h *harness) stepEvery(from, to, interval int64) {
	for t := from + interval; t <= to; t += interval {
		h.clock.AdvanceTo(t)
		h.svc.RecordStep(model.StepEvent{Source: "test"})
		h.clock.AdvanceTo(t)
	}
	h.clock.AdvanceTo(to)
}

func countOf(calls []string, c string) int {
	n := 0
	for _, x := range calls {
		if x == c {
			n++
		}
	}
	return n
}

func TestService_SessionLifecycle(t *testing.T) {
	Convey("Given a service on a virtual clock", t, func() {
		h := newHarness()
		ctx := context.Background()

		Convey("Status starts as not started", func() {
			st := h.svc.Status()
			So(st.Status, ShouldEqual, StatusNotStarted)
			So(st.Signal, ShouldEqual, SignalOK)
			So(st.ParticipantID, ShouldEqual, 1)
			So(st.State, ShouldEqual, "INIT")
		})

		Convey("A session measures its baseline for the calibration window", func() {
			sess, err := h.svc.StartSession(ctx, 4)
			So(err, ShouldBeNil)
			So(sess.ID, ShouldEqual, "session-1")
			So(sess.ParticipantID, ShouldEqual, 4)
			So(h.svc.Participant(), ShouldEqual, 4)

			h.stepEvery(0, 29_999, 375)
			So(h.svc.Status().Status, ShouldEqual, StatusMeasuringBaseline)

			h.stepEvery(29_999, 30_000, 375)
			st := h.svc.Status()
			So(st.Status, ShouldEqual, StatusActive)
			So(st.Baseline, ShouldEqual, 160)
			So(st.BaselineCalculated, ShouldBeTrue)
			So(st.ElapsedSec, ShouldEqual, 30)
			So(h.sink.Calls(), ShouldContain, "start_beat")
		})

		Convey("Starting twice is refused", func() {
			_, err := h.svc.StartSession(ctx, 0)
			So(err, ShouldBeNil)
			_, err = h.svc.StartSession(ctx, 0)
			So(errors.Is(err, ErrSessionActive), ShouldBeTrue)
		})

		Convey("Negative participant ids are refused", func() {
			_, err := h.svc.StartSession(ctx, -1)
			So(err, ShouldEqual, ErrInvalidParticipant)
		})

		Convey("Stopping without a session fails", func() {
			So(h.svc.StopSession(ctx), ShouldEqual, ErrNoSession)
		})

		Convey("Stopping before the window cancels the baseline and ticks", func() {
			_, err := h.svc.StartSession(ctx, 0)
			So(err, ShouldBeNil)
			h.stepEvery(0, 10_000, 375)

			So(h.svc.StopSession(ctx), ShouldBeNil)
			h.clock.Advance(60 * time.Second)

			st := h.svc.Status()
			So(st.Status, ShouldEqual, StatusNotStarted)
			So(st.BaselineCalculated, ShouldBeFalse)
			So(h.log.Records(), ShouldBeEmpty)
			So(h.svc.Stats()["ticks"], ShouldEqual, int64(0))
			So(h.clock.Pending(), ShouldEqual, 0)
			So(h.events.Kinds(), ShouldResemble, []EventKind{EventSessionStarted, EventSessionStopped})
		})

		Convey("A new session after a stop starts from scratch", func() {
			_, _ = h.svc.StartSession(ctx, 0)
			h.stepEvery(0, 31_000, 375)
			So(h.svc.StopSession(ctx), ShouldBeNil)

			_, err := h.svc.StartSession(ctx, 0)
			So(err, ShouldBeNil)
			st := h.svc.Status()
			So(st.Status, ShouldEqual, StatusMeasuringBaseline)
			So(st.Cadence, ShouldEqual, 0)
			So(st.State, ShouldEqual, "INIT")
		})
	})
}

func TestService_ActivityLog(t *testing.T) {
	Convey("Given a steady 160 spm run", t, func() {
		h := newHarness()
		ctx := context.Background()
		_, err := h.svc.StartSession(ctx, 2)
		So(err, ShouldBeNil)

		h.stepEvery(0, 40_000, 375)
		So(h.svc.StopSession(ctx), ShouldBeNil)
		records := h.log.Records()

		Convey("One synthetic row is written at baseline, then one per tick", func() {
			So(len(records), ShouldEqual, 6)
			So(records[0].ElapsedSec, ShouldEqual, 30)
			So(records[0].Cadence, ShouldEqual, 160)
			So(records[0].Baseline, ShouldEqual, 160)
			So(records[0].State, ShouldEqual, "INIT")

			for i, r := range records[1:] {
				So(r.ElapsedSec, ShouldEqual, 32+2*i)
				So(r.ParticipantID, ShouldEqual, 2)
				So(r.SessionID, ShouldEqual, "session-1")
				So(r.Deviation, ShouldEqual, r.Cadence-r.Baseline)
			}
			So(records[0].Timestamp.Equal(sessionStart.Add(30*time.Second)), ShouldBeTrue)
		})

		Convey("The runner recovers into OK after five seconds in band", func() {
			So(records[3].State, ShouldEqual, "INIT")
			So(records[4].State, ShouldEqual, "OK")
			So(records[5].State, ShouldEqual, "OK")
			So(countOf(h.sink.Calls(), "recovered"), ShouldEqual, 1)
		})

		Convey("Observers saw the baseline, each tick and the transition", func() {
			kinds := h.events.Kinds()
			So(countOf(kindsToStrings(kinds), string(EventBaseline)), ShouldEqual, 1)
			So(countOf(kindsToStrings(kinds), string(EventTick)), ShouldEqual, 5)
			So(countOf(kindsToStrings(kinds), string(EventTransition)), ShouldEqual, 1)
			So(kinds[len(kinds)-1], ShouldEqual, EventSessionStopped)
		})
	})

	Convey("Given a session with no steps at all", t, func() {
		h := newHarness()
		ctx := context.Background()
		_, _ = h.svc.StartSession(ctx, 0)

		h.clock.AdvanceTo(36_000)
		st := h.svc.Status()
		So(h.svc.StopSession(ctx), ShouldBeNil)

		Convey("The baseline is zero, state stays INIT and rows are still logged", func() {
			So(st.Status, ShouldEqual, StatusActive)
			So(st.Baseline, ShouldEqual, 0)
			records := h.log.Records()
			So(len(records), ShouldEqual, 4)
			for _, r := range records {
				So(r.State, ShouldEqual, "INIT")
				So(r.Cadence, ShouldEqual, 0)
			}
			So(h.sink.Calls(), ShouldNotContain, "start_beat")
		})
	})
}

func kindsToStrings(kinds []EventKind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}

func TestService_Coaching(t *testing.T) {
	Convey("Given a runner calibrated at 160 spm", t, func() {
		h := newHarness()
		ctx := context.Background()
		_, _ = h.svc.StartSession(ctx, 0)
		h.stepEvery(0, 30_000, 375)
		So(h.svc.Status().Baseline, ShouldEqual, 160)

		Convey("Speeding up to 180 spm flags UP at the next tick", func() {
			h.stepEvery(30_000, 32_000, 333)
			So(h.svc.Status().State, ShouldEqual, string(feedback.StateUp))
			So(countOf(h.sink.Calls(), "up"), ShouldEqual, 1)

			h.stepEvery(32_000, 36_000, 333)
			So(countOf(h.sink.Calls(), "up"), ShouldEqual, 1)
		})

		Convey("Standing still leads to STOP and the beat stops", func() {
			h.clock.AdvanceTo(36_000)
			So(h.svc.Status().State, ShouldNotEqual, string(feedback.StateStop))

			h.clock.AdvanceTo(38_000)
			So(h.svc.Status().State, ShouldEqual, string(feedback.StateStop))
			So(h.svc.Status().Cadence, ShouldEqual, 0)
			So(countOf(h.sink.Calls(), "stop_beat"), ShouldEqual, 1)
		})

		Convey("Losing the sensor reads as no signal with zero cadence", func() {
			h.svc.SetSensorAvailable(false)
			st := h.svc.Status()
			So(st.Signal, ShouldEqual, SignalNone)
			So(st.Cadence, ShouldEqual, 0)
			So(h.events.Kinds(), ShouldContain, EventSignal)

			h.svc.SetSensorAvailable(true)
			So(h.svc.Status().Cadence, ShouldEqual, 160)
		})
	})
}

func TestService_Participant(t *testing.T) {
	Convey("Given the participant selector", t, func() {
		h := newHarness(WithParticipant(2))

		So(h.svc.Participant(), ShouldEqual, 2)
		So(h.svc.IncrementParticipant(), ShouldEqual, 3)
		So(h.svc.DecrementParticipant(), ShouldEqual, 2)
		So(h.svc.DecrementParticipant(), ShouldEqual, 1)
		So(h.svc.DecrementParticipant(), ShouldEqual, 1)
		So(h.svc.SetParticipant(0), ShouldEqual, ErrInvalidParticipant)
		So(h.svc.SetParticipant(9), ShouldBeNil)

		sess, err := h.svc.StartSession(context.Background(), 0)
		So(err, ShouldBeNil)
		So(sess.ParticipantID, ShouldEqual, 9)
	})
}

func TestService_SubmitStep(t *testing.T) {
	Convey("Given a service with the step worker", t, func() {
		h := newHarness()
		ctx := context.Background()

		Convey("Steps are refused before Start", func() {
			err := h.svc.SubmitStep(ctx, model.StepEvent{EventID: "a"})
			So(err, ShouldEqual, ErrNotStarted)
		})

		Convey("Once started, repeated event ids are dropped", func() {
			So(h.svc.Start(ctx), ShouldBeNil)
			defer func() { _ = h.svc.Shutdown(ctx) }()

			So(h.svc.SubmitStep(ctx, model.StepEvent{EventID: "a", Source: "mqtt"}), ShouldBeNil)
			So(h.svc.SubmitStep(ctx, model.StepEvent{EventID: "a", Source: "mqtt"}), ShouldEqual, ErrDuplicate)
			So(h.svc.SubmitStep(ctx, model.StepEvent{Source: "http"}), ShouldBeNil)
			So(h.svc.SubmitStep(ctx, model.StepEvent{Source: "http"}), ShouldBeNil)
			So(h.svc.Stats()["stepsDuplicate"], ShouldEqual, int64(1))
		})

		Convey("After Shutdown steps and sessions are refused", func() {
			So(h.svc.Start(ctx), ShouldBeNil)
			_, err := h.svc.StartSession(ctx, 0)
			So(err, ShouldBeNil)

			So(h.svc.Shutdown(ctx), ShouldBeNil)
			So(h.svc.Status().Status, ShouldEqual, StatusNotStarted)
			So(h.svc.SubmitStep(ctx, model.StepEvent{}), ShouldEqual, ErrStopped)
			_, err = h.svc.StartSession(ctx, 0)
			So(err, ShouldEqual, ErrStopped)
			So(h.svc.Shutdown(ctx), ShouldBeNil)
		})
	})
}

func TestService_StampedSteps(t *testing.T) {
	Convey("Given a session started at timeline 0", t, func() {
		h := newHarness()
		_, err := h.svc.StartSession(context.Background(), 1)
		So(err, ShouldBeNil)
		base := sessionStart.UnixMilli()

		Convey("A burst delivered late keeps the sensor spacing", func() {
			h.clock.AdvanceTo(2200)
			for i := int64(1); i <= 4; i++ {
				So(h.svc.RecordStep(model.StepEvent{Source: "mqtt", TimestampMS: base + 375*i}), ShouldBeTrue)
			}
			h.clock.AdvanceTo(2200)

			So(h.svc.Stats()["stepsAccepted"], ShouldEqual, int64(4))
			So(h.svc.Stats()["stepsRejected"], ShouldEqual, int64(0))
			So(h.svc.Status().Cadence, ShouldEqual, 160)
		})

		Convey("The same burst unstamped collapses onto one instant", func() {
			h.clock.AdvanceTo(2200)
			for i := 0; i < 4; i++ {
				h.svc.RecordStep(model.StepEvent{Source: "mqtt"})
			}
			h.clock.AdvanceTo(2200)

			So(h.svc.Stats()["stepsAccepted"], ShouldEqual, int64(1))
			So(h.svc.Stats()["stepsRejected"], ShouldEqual, int64(3))
			So(h.svc.Status().Cadence, ShouldEqual, 27)
		})

		Convey("A stamp far ahead of the timeline falls back to arrival time", func() {
			h.clock.AdvanceTo(2200)
			h.svc.RecordStep(model.StepEvent{Source: "http", TimestampMS: base + 60000})
			h.clock.AdvanceTo(2200)

			So(h.svc.Stats()["stepsAccepted"], ShouldEqual, int64(1))
			So(h.svc.Stats()["stepsClockAhead"], ShouldEqual, int64(1))
			So(h.svc.Status().Cadence, ShouldEqual, 27)
		})

		Convey("A stamp from before the session is chatter", func() {
			h.clock.AdvanceTo(1000)
			h.svc.RecordStep(model.StepEvent{Source: "http", TimestampMS: base - 500})
			h.clock.AdvanceTo(1000)

			So(h.svc.Stats()["stepsAccepted"], ShouldEqual, int64(0))
			So(h.svc.Stats()["stepsRejected"], ShouldEqual, int64(1))
		})
	})
}

type sessionEvents struct {
	mu     sync.Mutex
	counts map[string]int
}

func (o *sessionEvents) Observe(ev Event) {
	if ev.Kind != EventTick && ev.Kind != EventBaseline {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counts[ev.Snapshot.SessionID]++
}

func TestService_StopWhileTicking(t *testing.T) {
	Convey("Given sessions stopped while millisecond ticks are firing", t, func() {
		loop := scheduler.NewLoop()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go loop.Run(ctx)

		var (
			mu   sync.Mutex
			logs = map[string]*memoryLog{}
		)
		svc := New(
			WithScheduler(loop),
			WithSink(&recordingSink{}),
			WithTickInterval(time.Millisecond),
			WithCalibrationWindow(time.Millisecond),
			WithLogFactory(func(_ context.Context, sess model.Session) (activitylog.Writer, error) {
				l := &memoryLog{}
				mu.Lock()
				logs[sess.ID] = l
				mu.Unlock()
				return l, nil
			}),
		)
		seen := &sessionEvents{counts: map[string]int{}}
		svc.AddObserver(seen)

		for i := 0; i < 50; i++ {
			_, err := svc.StartSession(ctx, 1)
			So(err, ShouldBeNil)
			time.Sleep(time.Duration(1+i%4) * time.Millisecond)
			So(svc.StopSession(ctx), ShouldBeNil)
		}

		idle := make(chan struct{})
		So(loop.Post(func() { close(idle) }), ShouldBeTrue)
		<-idle

		Convey("Every observed baseline and tick has its row", func() {
			mu.Lock()
			defer mu.Unlock()
			seen.mu.Lock()
			defer seen.mu.Unlock()
			So(len(logs), ShouldEqual, 50)
			for id, l := range logs {
				So(len(l.Records()), ShouldEqual, seen.counts[id])
			}
		})
	})
}

func TestService_TickSpans(t *testing.T) {
	Convey("Given a tracer provider with an in-memory exporter", t, func() {
		exp := tracetest.NewInMemoryExporter()
		tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
		defer func() { _ = tp.Shutdown(context.Background()) }()

		h := newHarness(WithTracerProvider(tp))
		_, _ = h.svc.StartSession(context.Background(), 0)
		h.stepEvery(0, 36_000, 375)

		Convey("Each tick records one span", func() {
			spans := exp.GetSpans()
			So(len(spans), ShouldEqual, 3)
			for _, sp := range spans {
				So(sp.Name, ShouldEqual, "cadence.tick")
			}
		})
	})
}
