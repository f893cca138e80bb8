// Package mqtt carries step events in and cues and status out over an MQTT
// broker.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/EdinaDepner/CadenceCoach/pkg/logger"
)

// ErrConnect is returned when the broker cannot be reached.
var ErrConnect = errors.New("mqtt connect failed")

const defaultConnectTimeout = 10 * time.Second

// Config names the broker and the topics used.
type Config struct {
	Broker         string
	ClientID       string
	StepTopic      string
	CueTopic       string
	StatusTopic    string
	ConnectTimeout time.Duration
}

// Publisher is the publishing half of a paho client.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// Subscriber is the subscribing half of a paho client.
type Subscriber interface {
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	Unsubscribe(topics ...string) paho.Token
}

// Hooks observe the connection. Either may be nil.
type Hooks struct {
	OnConnect        func(c paho.Client)
	OnConnectionLost func(err error)
}

// Connect dials the broker and waits for the session to be established.
// The client reconnects on its own; OnConnect runs after every (re)connect.
func Connect(ctx context.Context, cfg Config, hooks Hooks, log logger.Logger) (paho.Client, error) {
	if log == nil {
		log = logger.Nop()
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(timeout).
		SetOnConnectHandler(func(c paho.Client) {
			log.Info(context.Background(), "connected to mqtt broker", logger.String("broker", cfg.Broker))
			if hooks.OnConnect != nil {
				hooks.OnConnect(c)
			}
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn(context.Background(), "mqtt connection lost", logger.Error(err))
			if hooks.OnConnectionLost != nil {
				hooks.OnConnectionLost(err)
			}
		})

	client := paho.NewClient(opts)
	if err := wait(ctx, client.Connect(), timeout); err != nil {
		client.Disconnect(0)
		return nil, fmt.Errorf("%w: %s: %w", ErrConnect, cfg.Broker, err)
	}
	return client, nil
}

// wait blocks until t completes, ctx ends or timeout elapses.
func wait(ctx context.Context, t paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-t.Done():
		return t.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("timed out after %s", timeout)
	}
}
