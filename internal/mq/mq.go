package mq

import (
	"context"
	"fmt"

	"github.com/boardtrack/apiserver/config"
)

// Backend defines the broker-agnostic publish operations used by the app.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Close() error
}

// NewBackend constructs the broker selected by config. An empty backend
// name returns (nil, nil): publishing is optional.
func NewBackend(ctx context.Context, cfg config.MQConfig) (Backend, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "rabbitmq":
		return NewRabbitMQClient(cfg.RabbitMQ)
	case "pubsub":
		return NewPubSubClient(ctx, cfg.PubSub)
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.Backend)
	}
}
