package audio

import (
	"context"
	"sync"
	"time"

	"github.com/EdinaDepner/CadenceCoach/internal/domain/feedback"
	"github.com/EdinaDepner/CadenceCoach/pkg/logger"
	"github.com/EdinaDepner/CadenceCoach/pkg/metrics"
)

const defaultCueTimeout = 3 * time.Second

var _ feedback.Sink = (*CuePlayer)(nil)

// CuePlayer implements feedback.Sink on top of an Output. Calls never block
// the caller: cues are emitted on their own goroutines and a newer cue of
// the same class cancels one still in flight.
type CuePlayer struct {
	out     Output
	logger  logger.Logger
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	inflight map[Kind]*slot
	beat     *metronome
}

// PlayerOption configures a CuePlayer.
type PlayerOption func(*CuePlayer)

// WithLogger sets the logger for emit failures.
func WithLogger(l logger.Logger) PlayerOption {
	return func(p *CuePlayer) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithCueTimeout bounds how long a single cue may take to emit.
func WithCueTimeout(d time.Duration) PlayerOption {
	return func(p *CuePlayer) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// NewCuePlayer creates a player writing to out.
func NewCuePlayer(out Output, opts ...PlayerOption) *CuePlayer {
	ctx, cancel := context.WithCancel(context.Background())
	p := &CuePlayer{
		out:      out,
		logger:   logger.Nop(),
		timeout:  defaultCueTimeout,
		ctx:      ctx,
		cancel:   cancel,
		inflight: make(map[Kind]*slot),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// StartBeat (re)starts the metronome at spm. Non-positive tempos are ignored.
func (p *CuePlayer) StartBeat(spm int) {
	if spm <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx.Err() != nil {
		return
	}
	if p.beat != nil {
		if p.beat.spm == spm {
			return
		}
		p.beat.stop()
	}
	p.beat = startMetronome(p.ctx, spm, p.emitBeat)
	p.fire(Cue{Kind: KindBeatStart, SPM: spm, At: time.Now()})
}

// StopBeat stops the metronome. Calling it when no beat runs is a no-op.
func (p *CuePlayer) StopBeat() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.beat == nil {
		return
	}
	p.beat.stop()
	p.beat = nil
	p.fire(Cue{Kind: KindBeatStop, At: time.Now()})
}

// PlayCadenceUp emits the speeding-up cue.
func (p *CuePlayer) PlayCadenceUp() { p.play(KindUp) }

// PlayCadenceDown emits the slowing-down cue.
func (p *CuePlayer) PlayCadenceDown() { p.play(KindDown) }

// PlayCadenceRecovered emits the back-in-band cue.
func (p *CuePlayer) PlayCadenceRecovered() { p.play(KindRecovered) }

// BeatSPM returns the running metronome tempo, or 0.
func (p *CuePlayer) BeatSPM() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.beat == nil {
		return 0
	}
	return p.beat.spm
}

// Close stops the beat, cancels in-flight cues and waits for them to finish.
func (p *CuePlayer) Close() error {
	p.mu.Lock()
	if p.beat != nil {
		p.beat.stop()
		p.beat = nil
	}
	p.cancel()
	p.mu.Unlock()
	p.wg.Wait()
	return nil
}

func (p *CuePlayer) play(kind Kind) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx.Err() != nil {
		return
	}
	p.fire(Cue{Kind: kind, At: time.Now()})
}

// slot tracks the in-flight cue of one class.
type slot struct {
	cancel context.CancelFunc
}

// fire replaces any in-flight cue of the same class. Must hold p.mu.
func (p *CuePlayer) fire(c Cue) {
	if prev, ok := p.inflight[c.Kind]; ok {
		prev.cancel()
	}
	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	s := &slot{cancel: cancel}
	p.inflight[c.Kind] = s
	metrics.RecordCue(string(c.Kind))

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.release(c.Kind, s)
		if err := p.out.Emit(ctx, c); err != nil && ctx.Err() == nil {
			metrics.RecordErrorByComponent("audio", "emit_failed")
			p.logger.Warn(ctx, "cue emit failed", logger.String("kind", string(c.Kind)), logger.Error(err))
		}
	}()
}

func (p *CuePlayer) release(kind Kind, s *slot) {
	s.cancel()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inflight[kind] == s {
		delete(p.inflight, kind)
	}
}

func (p *CuePlayer) emitBeat(ctx context.Context, c Cue) {
	if err := p.out.Emit(ctx, c); err != nil && ctx.Err() == nil {
		metrics.RecordErrorByComponent("audio", "beat_failed")
		p.logger.Debug(ctx, "beat emit failed", logger.Error(err))
	}
}
