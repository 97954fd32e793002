package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"jobdesk-auth/internal/config"
	"jobdesk-auth/internal/util"
)

// KafkaProducer publishes auth events. The producer is optional: when Kafka is
// unreachable at startup the service proceeds without it.
type KafkaProducer struct {
	Writer *kafka.Writer
	config *config.KafkaConfig
	logger *zap.Logger
}

func NewKafkaProducer(cfg *config.Config, logger *zap.Logger) (*KafkaProducer, error) {
	kafkaConfig := cfg.Kafka

	writer := &kafka.Writer{
		Addr:         kafka.TCP(kafkaConfig.Brokers...),
		Topic:        kafkaConfig.Topic,
		Balancer:     &kafka.LeastBytes{},
		MaxAttempts:  3,
		BatchSize:    100,
		BatchBytes:   1048576, // 1MB
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

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Connectivity probe; a missing topic is tolerated at startup
	err := writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte("startup"),
		Value: []byte(`{"probe":true}`),
	})
	if err != nil && !isConnectivityError(err) {
		return nil, fmt.Errorf("failed to connect to Kafka brokers: %w", err)
	}

	util.Info("Kafka producer initialized",
		zap.Strings("brokers", kafkaConfig.Brokers),
		zap.String("topic", kafkaConfig.Topic),
	)

	return &KafkaProducer{
		Writer: writer,
		config: &kafkaConfig,
		logger: logger,
	}, nil
}

// Publish writes a single keyed message to the auth-events topic
func (p *KafkaProducer) Publish(ctx context.Context, key, value []byte) error {
	return p.Writer.WriteMessages(ctx, kafka.Message{
		Key:   key,
		Value: value,
		Time:  time.Now().UTC(),
	})
}

func (p *KafkaProducer) HealthCheck(ctx context.Context) error {
	err := p.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte("healthcheck"),
		Value: []byte(`{"probe":true}`),
	})
	if err != nil && !isConnectivityError(err) {
		return fmt.Errorf("kafka health check failed: %w", err)
	}
	return nil
}

func (p *KafkaProducer) Close() error {
	if p.Writer != nil {
		if err := p.Writer.Close(); err != nil {
			p.logger.Error("failed to close kafka writer", zap.Error(err))
			return err
		}
	}
	return nil
}

// isConnectivityError distinguishes topic/partition setup issues, which are
// tolerated at startup, from hard broker connection failures.
func isConnectivityError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Unknown Topic") ||
		strings.Contains(msg, "unknown topic") ||
		strings.Contains(msg, "Leader Not Available") ||
		strings.Contains(msg, "leader not available")
}
