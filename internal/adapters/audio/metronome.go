package audio

import (
	"context"
	"time"
)

// BeatInterval returns the gap between beats at spm, or 0 if spm is not positive.
func BeatInterval(spm int) time.Duration {
	if spm <= 0 {
		return 0
	}
	return time.Minute / time.Duration(spm)
}

// metronome emits a beat cue every interval until stopped.
type metronome struct {
	spm    int
	cancel context.CancelFunc
	done   chan struct{}
}

func startMetronome(parent context.Context, spm int, emit func(ctx context.Context, c Cue)) *metronome {
	ctx, cancel := context.WithCancel(parent)
	m := &metronome{spm: spm, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(BeatInterval(spm))
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				emit(ctx, Cue{Kind: KindBeat, SPM: spm, At: t})
			}
		}
	}()
	return m
}

func (m *metronome) stop() {
	m.cancel()
	<-m.done
}
