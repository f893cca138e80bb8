package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/EdinaDepner/CadenceCoach/pkg/logger"
)

const defaultTaskBuffer = 1024

// Loop is a single-goroutine event loop. Timers fire on their own goroutines
// and hand their task to the loop, so tasks never overlap.
type Loop struct {
	tasks  chan Task
	epoch  time.Time
	logger logger.Logger

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithLogger sets the logger used for task panics.
func WithLogger(l logger.Logger) LoopOption {
	return func(lp *Loop) {
		if l != nil {
			lp.logger = l
		}
	}
}

// WithTaskBuffer sets how many tasks may wait for the loop.
func WithTaskBuffer(n int) LoopOption {
	return func(lp *Loop) {
		if n > 0 {
			lp.tasks = make(chan Task, n)
		}
	}
}

// NewLoop creates a loop whose clock starts at zero now.
func NewLoop(opts ...LoopOption) *Loop {
	l := &Loop{
		tasks:    make(chan Task, defaultTaskBuffer),
		epoch:    time.Now(),
		logger:   logger.Nop(),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run executes tasks until ctx is cancelled or Shutdown is called.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.shutdown:
			return
		case fn := <-l.tasks:
			safeRun(ctx, l.logger, fn)
		}
	}
}

// Shutdown stops the loop and waits for the running task to finish.
func (l *Loop) Shutdown(ctx context.Context) error {
	l.shutdownOnce.Do(func() { close(l.shutdown) })
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("loop shutdown: %w", ctx.Err())
	}
}

// NowMillis returns milliseconds since the loop was created, on the monotonic clock.
func (l *Loop) NowMillis() int64 {
	return time.Since(l.epoch).Milliseconds()
}

// Post enqueues fn without blocking.
func (l *Loop) Post(fn Task) bool {
	select {
	case <-l.shutdown:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	default:
		return false
	}
}

// deliver hands a timer task to the loop, waiting for room so ticks are not
// dropped under load.
func (l *Loop) deliver(fn Task) {
	select {
	case l.tasks <- fn:
	case <-l.shutdown:
	}
}

// After runs fn once after d.
func (l *Loop) After(d time.Duration, fn Task) Handle {
	h := &handle{}
	h.setTimer(time.AfterFunc(d, func() {
		l.deliver(func() {
			if h.active() {
				fn()
			}
		})
	}))
	return h
}

// Every runs fn every d. Deadlines are computed from the first schedule so
// slow tasks do not make the period drift.
func (l *Loop) Every(d time.Duration, fn Task) Handle {
	if d <= 0 {
		panic("scheduler: non-positive period")
	}
	h := &handle{}
	next := time.Now().Add(d)

	var arm func()
	arm = func() {
		h.setTimer(time.AfterFunc(time.Until(next), func() {
			l.deliver(func() {
				if !h.active() {
					return
				}
				next = next.Add(d)
				arm()
				fn()
			})
		}))
	}
	arm()
	return h
}
