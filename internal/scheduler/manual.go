package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/EdinaDepner/CadenceCoach/pkg/logger"
)

// Manual is a virtual-clock scheduler. Time only moves when Advance is
// called; due tasks run on the caller's goroutine in deadline order.
type Manual struct {
	mu     sync.Mutex
	now    int64
	seq    uint64
	queue  taskHeap
	logger logger.Logger
}

type manualTask struct {
	at     int64
	seq    uint64
	period int64
	fn     Task
	h      *handle
}

// NewManual returns a scheduler whose clock reads startMS.
func NewManual(startMS int64) *Manual {
	return &Manual{now: startMS, logger: logger.Nop()}
}

// NowMillis returns the virtual clock.
func (m *Manual) NowMillis() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Post queues fn at the current instant. It runs on the next Advance.
func (m *Manual) Post(fn Task) bool {
	m.push(0, 0, fn)
	return true
}

// After queues fn at now+d.
func (m *Manual) After(d time.Duration, fn Task) Handle {
	return m.push(d.Milliseconds(), 0, fn)
}

// Every queues fn at now+d and every d after that.
func (m *Manual) Every(d time.Duration, fn Task) Handle {
	if d <= 0 {
		panic("scheduler: non-positive period")
	}
	return m.push(d.Milliseconds(), d.Milliseconds(), fn)
}

func (m *Manual) push(delay, period int64, fn Task) *handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := &handle{}
	m.seq++
	heap.Push(&m.queue, &manualTask{at: m.now + delay, seq: m.seq, period: period, fn: fn, h: h})
	return h
}

// Advance moves the clock forward by d, running every task that falls due,
// including ones scheduled by tasks during the advance.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d.Milliseconds()
	m.mu.Unlock()
	m.AdvanceTo(target)
}

// AdvanceTo moves the clock to targetMS. Earlier targets only flush tasks
// that are already due.
func (m *Manual) AdvanceTo(targetMS int64) {
	for {
		m.mu.Lock()
		if targetMS < m.now {
			targetMS = m.now
		}
		if m.queue.Len() == 0 || m.queue[0].at > targetMS {
			m.now = targetMS
			m.mu.Unlock()
			return
		}
		t := heap.Pop(&m.queue).(*manualTask)
		if t.at > m.now {
			m.now = t.at
		}
		active := t.h.active()
		if active && t.period > 0 {
			m.seq++
			t.at += t.period
			t.seq = m.seq
			heap.Push(&m.queue, t)
		}
		m.mu.Unlock()

		if active {
			safeRun(context.Background(), m.logger, t.fn)
		}
	}
}

// Pending returns how many tasks are queued, cancelled ones included.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queue.Len()
}

type taskHeap []*manualTask

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	return h[i].seq < h[j].seq
}
func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)   { *h = append(*h, x.(*manualTask)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}
