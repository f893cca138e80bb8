package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	service "github.com/EdinaDepner/CadenceCoach/internal/app"
	"github.com/EdinaDepner/CadenceCoach/internal/domain/model"
	"github.com/EdinaDepner/CadenceCoach/pkg/logger"
	"github.com/EdinaDepner/CadenceCoach/pkg/metrics"
)

const stepQoS = 1

// StepSubmitter accepts steps from a transport.
type StepSubmitter interface {
	SubmitStep(ctx context.Context, ev model.StepEvent) error
}

// stepMessage is the optional JSON body of a step message. An empty body is
// an unstamped step without an id.
type stepMessage struct {
	EventID     string `json:"event_id"`
	TimestampMS int64  `json:"timestamp_ms"`
}

// StepSource subscribes to the step topic and forwards every message as a
// step event.
type StepSource struct {
	sub     Subscriber
	topic   string
	target  StepSubmitter
	timeout time.Duration
	logger  logger.Logger
}

// NewStepSource builds a source for topic. Call Subscribe after each connect.
func NewStepSource(sub Subscriber, topic string, target StepSubmitter, log logger.Logger) *StepSource {
	if log == nil {
		log = logger.Nop()
	}
	return &StepSource{sub: sub, topic: topic, target: target, timeout: defaultConnectTimeout, logger: log}
}

// Subscribe registers the message handler on the step topic.
func (s *StepSource) Subscribe(ctx context.Context) error {
	if err := wait(ctx, s.sub.Subscribe(s.topic, stepQoS, s.handle), s.timeout); err != nil {
		metrics.RecordErrorByComponent("mqtt", "subscribe_failed")
		return err
	}
	s.logger.Info(ctx, "subscribed to step topic", logger.String("topic", s.topic))
	return nil
}

// Unsubscribe removes the handler.
func (s *StepSource) Unsubscribe(ctx context.Context) error {
	return wait(ctx, s.sub.Unsubscribe(s.topic), s.timeout)
}

func (s *StepSource) handle(_ paho.Client, msg paho.Message) {
	ctx := context.Background()

	var body stepMessage
	if payload := msg.Payload(); len(payload) > 0 {
		if err := json.Unmarshal(payload, &body); err != nil {
			metrics.RecordStepDropped("mqtt_bad_payload")
			s.logger.Warn(ctx, "step payload unmarshal error",
				logger.String("topic", msg.Topic()),
				logger.Error(err),
			)
			return
		}
	}

	err := s.target.SubmitStep(ctx, model.StepEvent{
		EventID:     body.EventID,
		Source:      "mqtt",
		ReceivedAt:  time.Now(),
		TimestampMS: max(body.TimestampMS, 0),
	})
	switch {
	case err == nil, errors.Is(err, service.ErrDuplicate):
	case errors.Is(err, service.ErrQueueFull):
		metrics.RecordStepDropped("mqtt_queue_full")
	default:
		s.logger.Warn(ctx, "step not accepted", logger.String("eventId", body.EventID), logger.Error(err))
	}
}
