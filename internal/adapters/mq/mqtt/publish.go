package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	service "github.com/EdinaDepner/CadenceCoach/internal/app"
	"github.com/EdinaDepner/CadenceCoach/internal/adapters/audio"
	"github.com/EdinaDepner/CadenceCoach/pkg/logger"
	"github.com/EdinaDepner/CadenceCoach/pkg/metrics"
)

const statusPublishTimeout = 2 * time.Second

// CuePublisher is an audio.Output that publishes cues for a remote player.
type CuePublisher struct {
	pub   Publisher
	topic string
}

// NewCuePublisher publishes cues to topic.
func NewCuePublisher(pub Publisher, topic string) *CuePublisher {
	return &CuePublisher{pub: pub, topic: topic}
}

// Emit publishes c and waits for the broker, bounded by ctx.
func (p *CuePublisher) Emit(ctx context.Context, c audio.Cue) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal cue: %w", err)
	}
	t := p.pub.Publish(p.topic, 0, false, payload)
	select {
	case <-t.Done():
		return t.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StatusPublisher mirrors session events onto a retained status topic.
type StatusPublisher struct {
	pub    Publisher
	topic  string
	logger logger.Logger
}

// NewStatusPublisher publishes events to topic.
func NewStatusPublisher(pub Publisher, topic string, log logger.Logger) *StatusPublisher {
	if log == nil {
		log = logger.Nop()
	}
	return &StatusPublisher{pub: pub, topic: topic, logger: log}
}

// Observe publishes e without waiting; failures are logged once the broker
// answers.
func (p *StatusPublisher) Observe(e service.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		p.logger.Error(context.Background(), "marshal status event", logger.Error(err))
		return
	}
	t := p.pub.Publish(p.topic, 0, true, payload)
	go func() {
		if !t.WaitTimeout(statusPublishTimeout) {
			metrics.RecordErrorByComponent("mqtt", "status_timeout")
			return
		}
		if err := t.Error(); err != nil {
			metrics.RecordErrorByComponent("mqtt", "status_publish_failed")
			p.logger.Warn(context.Background(), "status publish failed",
				logger.String("kind", string(e.Kind)),
				logger.Error(err),
			)
		}
	}()
}
