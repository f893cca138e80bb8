package simulate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/EdinaDepner/CadenceCoach/internal/adapters/activitylog"
	service "github.com/EdinaDepner/CadenceCoach/internal/app"
	"github.com/EdinaDepner/CadenceCoach/internal/domain/model"
	"github.com/EdinaDepner/CadenceCoach/internal/scheduler"
	"github.com/EdinaDepner/CadenceCoach/pkg/logger"
)

// ReplayConfig holds the settings for an offline run.
type ReplayConfig struct {
	Profile       Profile
	Seed          uint64
	ParticipantID int
	LogDir        string    // CSV output directory; empty keeps rows in memory only
	StartedAt     time.Time // wall clock of the session start; zero uses time.Now
	Options       []service.Option
}

// Transition is a state change observed during a replay.
type Transition struct {
	ElapsedSec int
	From       string
	To         string
	Cadence    int
}

// ReplayResult is what an offline run produced.
type ReplayResult struct {
	Session     model.Session
	Steps       int
	Records     []model.Record
	Transitions []Transition
	Baseline    int
	LogPath     string
}

// Replay runs cfg.Profile through an in-process service on a virtual clock.
// The run completes immediately regardless of the profile's length.
func Replay(ctx context.Context, cfg ReplayConfig) (*ReplayResult, error) {
	clock := scheduler.NewManual(0)
	rec := &recorder{}

	var factory activitylog.Factory = activitylog.DiscardFactory
	if cfg.LogDir != "" {
		factory = activitylog.CSVFactory(cfg.LogDir)
	}

	startedAt := cfg.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	opts := append([]service.Option{
		service.WithLogger(logger.Nop()),
	}, cfg.Options...)
	opts = append(opts,
		service.WithScheduler(clock),
		service.WithClock(func() time.Time { return startedAt }),
		service.WithLogFactory(rec.wrap(factory)),
	)
	svc := service.New(opts...)
	svc.AddObserver(rec)

	sess, err := svc.StartSession(ctx, cfg.ParticipantID)
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}

	steps := cfg.Profile.Steps(cfg.Seed)
	for _, at := range steps {
		if err := ctx.Err(); err != nil {
			_ = svc.Shutdown(context.WithoutCancel(ctx))
			return nil, err
		}
		clock.AdvanceTo(at)
		svc.RecordStep(model.StepEvent{Source: "replay", ReceivedAt: sess.WallClock(at)})
		clock.AdvanceTo(at)
	}
	clock.AdvanceTo(cfg.Profile.Duration().Milliseconds())

	baseline := svc.Status().Baseline
	if err := svc.StopSession(ctx); err != nil {
		return nil, fmt.Errorf("stop session: %w", err)
	}
	if err := svc.Shutdown(ctx); err != nil {
		return nil, fmt.Errorf("shutdown: %w", err)
	}

	res := &ReplayResult{
		Session:     sess,
		Steps:       len(steps),
		Records:     rec.Records(),
		Transitions: rec.Transitions(),
		Baseline:    baseline,
	}
	if cfg.LogDir != "" {
		res.LogPath = rec.Path()
	}

	logger.Get().Info(ctx, "replay completed",
		logger.String("sessionId", sess.ID),
		logger.String("profile", cfg.Profile.String()),
		logger.Int("steps", res.Steps),
		logger.Int("records", len(res.Records)),
		logger.Int("transitions", len(res.Transitions)),
		logger.Int("baseline", baseline),
		logger.String("logPath", res.LogPath))
	return res, nil
}

// recorder keeps a copy of every row written and every state change seen.
type recorder struct {
	mu          sync.Mutex
	records     []model.Record
	transitions []Transition
	path        string
}

func (r *recorder) wrap(f activitylog.Factory) activitylog.Factory {
	return func(ctx context.Context, s model.Session) (activitylog.Writer, error) {
		w, err := f(ctx, s)
		if err != nil {
			return nil, err
		}
		if cw, ok := w.(*activitylog.CSVWriter); ok {
			r.mu.Lock()
			r.path = cw.Path()
			r.mu.Unlock()
		}
		return &teeWriter{Writer: w, r: r}, nil
	}
}

func (r *recorder) Observe(e service.Event) {
	if e.Kind != service.EventTransition {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, Transition{
		ElapsedSec: e.Snapshot.ElapsedSec,
		From:       e.From,
		To:         e.Snapshot.State,
		Cadence:    e.Snapshot.Cadence,
	})
}

func (r *recorder) Records() []model.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Record(nil), r.records...)
}

func (r *recorder) Transitions() []Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Transition(nil), r.transitions...)
}

func (r *recorder) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

type teeWriter struct {
	activitylog.Writer
	r *recorder
}

func (t *teeWriter) Append(ctx context.Context, rec model.Record) error {
	if err := t.Writer.Append(ctx, rec); err != nil {
		return err
	}
	t.r.mu.Lock()
	t.r.records = append(t.r.records, rec)
	t.r.mu.Unlock()
	return nil
}
