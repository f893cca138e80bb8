// Package scheduler serialises session work onto a single timeline.
//
// Every step callback, the one-shot baseline capture and the periodic
// monitoring tick run through a Scheduler, so the cadence core never needs
// locks. Loop is the production implementation; Manual drives a virtual
// clock for deterministic tests and offline replay.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/EdinaDepner/CadenceCoach/pkg/logger"
	"github.com/EdinaDepner/CadenceCoach/pkg/metrics"
)

// Task is a unit of work run on the timeline.
type Task func()

// Handle cancels a scheduled task. Cancel is idempotent.
type Handle interface {
	Cancel()
}

// Scheduler runs tasks one at a time on a shared timeline.
type Scheduler interface {
	// NowMillis returns the timeline clock in milliseconds.
	NowMillis() int64
	// Post runs fn as soon as possible. It returns false if the task was not accepted.
	Post(fn Task) bool
	// After runs fn once, d from now.
	After(d time.Duration, fn Task) Handle
	// Every runs fn every d, first at now+d.
	Every(d time.Duration, fn Task) Handle
}

// handle is shared by both implementations.
type handle struct {
	cancelled atomic.Bool
	mu        sync.Mutex
	timer     *time.Timer
}

func (h *handle) Cancel() {
	if h.cancelled.Swap(true) {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.timer != nil {
		h.timer.Stop()
	}
}

func (h *handle) active() bool { return !h.cancelled.Load() }

func (h *handle) setTimer(t *time.Timer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.timer = t
	if h.cancelled.Load() {
		t.Stop()
	}
}

// safeRun executes fn, isolating panics so one broken task cannot stop the
// timeline.
func safeRun(ctx context.Context, log logger.Logger, fn Task) {
	start := time.Now()
	defer func() {
		metrics.RecordSchedulerTask(float64(time.Since(start).Milliseconds()))
		if r := recover(); r != nil {
			metrics.RecordSchedulerPanic()
			metrics.RecordErrorByComponent("scheduler", "task_panic")
			log.Error(ctx, "scheduled task panicked", logger.String("panic", fmt.Sprint(r)))
		}
	}()
	fn()
}
