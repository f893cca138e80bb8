package activitylog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/EdinaDepner/CadenceCoach/internal/adapters/mq/queue"
	"github.com/EdinaDepner/CadenceCoach/internal/adapters/mq/worker"
	"github.com/EdinaDepner/CadenceCoach/internal/domain/model"
	"github.com/EdinaDepner/CadenceCoach/pkg/logger"
	"github.com/EdinaDepner/CadenceCoach/pkg/metrics"
)

const (
	defaultAsyncQueueSize = 4096
	defaultErrorBuffer    = 64
	defaultDrainTimeout   = 5 * time.Second
)

// AsyncLog queues rows in front of a Writer so Append never blocks on I/O.
// Rows are written in Append order by a single worker; failures are sent to
// Errors, logged and counted, never retried.
type AsyncLog struct {
	writer Writer
	q      *queue.InMemoryQueue[model.Record]
	w      *worker.Worker[model.Record]
	errs   chan error
	errMu  sync.RWMutex
	done   bool
	logger logger.Logger

	drainTimeout time.Duration
	cancel       context.CancelFunc
	closeOnce    sync.Once
	closeErr     error
}

// AsyncOption configures an AsyncLog.
type AsyncOption func(*asyncOptions)

type asyncOptions struct {
	queueSize    int
	errorBuffer  int
	drainTimeout time.Duration
	logger       logger.Logger
}

// WithQueueSize bounds the rows waiting to be written.
func WithQueueSize(n int) AsyncOption {
	return func(o *asyncOptions) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// WithDrainTimeout bounds how long Close waits for queued rows.
func WithDrainTimeout(d time.Duration) AsyncOption {
	return func(o *asyncOptions) {
		if d > 0 {
			o.drainTimeout = d
		}
	}
}

// WithLogger sets the logger used for write failures.
func WithLogger(l logger.Logger) AsyncOption {
	return func(o *asyncOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewAsync starts a background writer in front of w.
func NewAsync(w Writer, opts ...AsyncOption) *AsyncLog {
	cfg := asyncOptions{
		queueSize:    defaultAsyncQueueSize,
		errorBuffer:  defaultErrorBuffer,
		drainTimeout: defaultDrainTimeout,
		logger:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	a := &AsyncLog{
		writer:       w,
		q:            queue.NewInMemoryQueue[model.Record]("activity_log", queue.WithCapacity(cfg.queueSize)),
		errs:         make(chan error, cfg.errorBuffer),
		logger:       cfg.logger,
		drainTimeout: cfg.drainTimeout,
	}
	a.w = worker.New[model.Record](a.q, worker.HandlerFunc[model.Record](a.write),
		worker.WithName("activity_log"), worker.WithLogger(cfg.logger))
	a.w.OnError(a.report)

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	go a.w.Run(ctx)
	return a
}

// Append queues r. It fails fast when the log is closed or its queue is full.
func (a *AsyncLog) Append(ctx context.Context, r model.Record) error {
	if a.q.IsClosed() {
		return ErrClosed
	}
	if !a.q.Enqueue(ctx, r) {
		metrics.RecordLogError()
		err := fmt.Errorf("%w: session %s at %ds", ErrQueueFull, r.SessionID, r.ElapsedSec)
		a.publish(err)
		return err
	}
	return nil
}

// Errors delivers write failures. It is closed after Close returns.
func (a *AsyncLog) Errors() <-chan error { return a.errs }

// Close drains queued rows, then closes the underlying writer.
func (a *AsyncLog) Close() error {
	a.closeOnce.Do(func() {
		_ = a.q.Close()
		select {
		case <-a.w.Done():
		case <-time.After(a.drainTimeout):
			a.cancel()
			<-a.w.Done()
			a.logger.Warn(context.Background(), "activity log drain timed out",
				logger.Int("dropped", a.q.Len(context.Background())))
		}
		a.cancel()
		a.closeErr = a.writer.Close()

		a.errMu.Lock()
		a.done = true
		close(a.errs)
		a.errMu.Unlock()
	})
	return a.closeErr
}

func (a *AsyncLog) write(ctx context.Context, r model.Record) error {
	start := time.Now()
	if err := a.writer.Append(ctx, r); err != nil {
		return err
	}
	metrics.RecordLogWrite(float64(time.Since(start).Milliseconds()))
	return nil
}

func (a *AsyncLog) report(r model.Record, err error) {
	metrics.RecordLogError()
	a.publish(fmt.Errorf("session %s at %ds: %w", r.SessionID, r.ElapsedSec, err))
}

// publish never blocks. Failures that do not fit in Errors are still
// logged and counted.
func (a *AsyncLog) publish(err error) {
	a.errMu.RLock()
	defer a.errMu.RUnlock()
	if a.done {
		return
	}
	select {
	case a.errs <- err:
	default:
	}
}
