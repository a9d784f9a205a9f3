package client

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"sentinel/internal/config"
	"sentinel/internal/util"
)

// KafkaAlertPublisher mirrors security alerts onto a Kafka topic so an
// external notifier can deliver them. It is best-effort: the Redis alert
// queue remains the system of record and publish failures are only logged.
type KafkaAlertPublisher struct {
	Writer *kafka.Writer
	config *config.KafkaConfig
	logger *zap.Logger
}

func NewKafkaAlertPublisher(cfg *config.Config, logger *zap.Logger) (*KafkaAlertPublisher, error) {
	kafkaConfig := cfg.Kafka

	writer := &kafka.Writer{
		Addr:         kafka.TCP(kafkaConfig.Brokers...),
		Topic:        kafkaConfig.AlertTopic,
		Balancer:     &kafka.LeastBytes{},
		MaxAttempts:  3,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error("failed to write kafka messages",
					zap.Error(err),
					zap.Int("message_count", len(messages)),
				)
			}
		},
	}

	util.Info("Kafka alert publisher initialized",
		zap.Strings("brokers", kafkaConfig.Brokers),
		zap.String("topic", kafkaConfig.AlertTopic),
	)

	return &KafkaAlertPublisher{
		Writer: writer,
		config: &kafkaConfig,
		logger: logger,
	}, nil
}

// Publish enqueues one alert payload keyed by user so alerts for the same
// account land on the same partition.
func (p *KafkaAlertPublisher) Publish(ctx context.Context, key string, payload []byte) error {
	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
	}
	if err := p.Writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}
	return nil
}

func (p *KafkaAlertPublisher) HealthCheck(ctx context.Context) error {
	// The writer dials lazily; treat a reachable broker list as healthy.
	if p.Writer == nil {
		return fmt.Errorf("kafka writer not initialized")
	}
	return nil
}

func (p *KafkaAlertPublisher) Close() error {
	if p.Writer != nil {
		if err := p.Writer.Close(); err != nil {
			util.Error("failed to close Kafka alert publisher", zap.Error(err))
			return err
		}
		util.Info("Kafka alert publisher closed")
	}
	return nil
}
