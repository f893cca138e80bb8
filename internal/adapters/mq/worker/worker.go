// Package worker drains a queue on a single goroutine and hands each item to
// a Handler, preserving queue order.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/EdinaDepner/CadenceCoach/pkg/logger"
	"github.com/EdinaDepner/CadenceCoach/pkg/metrics"
)

// Source is where a worker reads items from.
type Source[T any] interface {
	Dequeue(ctx context.Context) <-chan T
}

// Handler processes one item.
type Handler[T any] interface {
	Handle(ctx context.Context, item T) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc[T any] func(ctx context.Context, item T) error

// Handle calls f.
func (f HandlerFunc[T]) Handle(ctx context.Context, item T) error { return f(ctx, item) }

// Worker processes items until its source is drained, ctx is cancelled or
// Shutdown is called.
type Worker[T any] struct {
	source  Source[T]
	handler Handler[T]
	name    string
	onError func(item T, err error)

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// New creates a worker reading from source.
func New[T any](source Source[T], handler Handler[T], opts ...Option) *Worker[T] {
	cfg := options{name: "worker", logger: logger.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Worker[T]{
		source:   source,
		handler:  handler,
		name:     cfg.name,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   cfg.logger.Named(cfg.name),
	}
}

// OnError registers a callback for handler failures. Call before Run.
func (w *Worker[T]) OnError(fn func(item T, err error)) {
	w.onError = fn
}

// Run starts the worker loop. It returns when the source channel closes,
// ctx is cancelled or Shutdown is called.
func (w *Worker[T]) Run(ctx context.Context) {
	defer close(w.done)

	items := w.source.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case item, ok := <-items:
			if !ok {
				return
			}
			w.process(ctx, item)
		}
	}
}

// Done is closed once Run has returned.
func (w *Worker[T]) Done() <-chan struct{} { return w.done }

// Shutdown stops the worker without draining the source and waits for the
// item in progress.
func (w *Worker[T]) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *Worker[T]) process(ctx context.Context, item T) {
	start := time.Now()
	err := w.handler.Handle(ctx, item)
	if err == nil {
		return
	}

	metrics.RecordErrorByComponent(w.name, "handler_error")
	w.logger.Error(ctx, "error processing item",
		logger.Int64("latency_ms", time.Since(start).Milliseconds()),
		logger.Error(err),
	)
	if w.onError != nil {
		w.onError(item, err)
	}
}
