package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

//go:generate mockgen -source ./producer.go -destination=./mocks/producer.go -package=mock_kafka

type Producer interface {
	SendMessage(ctx context.Context, topic string, key []byte, value []byte) error
	Close() error
}

// ConsoleProducer logs messages instead of sending them. It is used when no
// brokers are configured.
type ConsoleProducer struct {
	logger *zap.Logger
}

func NewConsoleProducer(logger *zap.Logger) Producer {
	logger.Info("kafka: using console producer")
	return &ConsoleProducer{logger: logger}
}

func (p *ConsoleProducer) SendMessage(ctx context.Context, topic string, key []byte, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.logger.Info("kafka: console message",
		zap.String("topic", topic),
		zap.ByteString("key", key),
		zap.ByteString("value", value),
	)
	return nil
}

func (p *ConsoleProducer) Close() error {
	return nil
}

type BrokerProducer struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewBrokerProducer(brokers []string, logger *zap.Logger) Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	logger.Info("kafka: producer connected", zap.Strings("brokers", brokers))
	return &BrokerProducer{writer: w, logger: logger}
}

func (p *BrokerProducer) SendMessage(ctx context.Context, topic string, key []byte, value []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   key,
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("failed to write message to %s: %w", topic, err)
	}
	return nil
}

func (p *BrokerProducer) Close() error {
	p.logger.Info("kafka: closing producer")
	return p.writer.Close()
}
