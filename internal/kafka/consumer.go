package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/repository"
)

// MessageReader is the subset of *kafka.Reader used by the consumer.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type AuditHandler func(ctx context.Context, entry repository.AuditExportPayload) error

// AuditConsumer reads exported audit entries and hands each to a handler.
// Offsets are committed only after the handler succeeds or the message is
// undecodable.
type AuditConsumer struct {
	reader       MessageReader
	handle       AuditHandler
	logger       *zap.Logger
	retryBackoff time.Duration
}

func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        groupID,
		Topic:          topic,
		MinBytes:       10e3,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		MaxWait:        3 * time.Second,
	})
}

func NewAuditConsumer(reader MessageReader, handle AuditHandler, logger *zap.Logger) *AuditConsumer {
	return &AuditConsumer{
		reader:       reader,
		handle:       handle,
		logger:       logger,
		retryBackoff: 5 * time.Second,
	}
}

// Run consumes until ctx is done.
func (c *AuditConsumer) Run(ctx context.Context) error {
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.logger.Error("consumer: failed to close reader", zap.Error(err))
		}
	}()

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			c.logger.Error("consumer: failed to fetch message", zap.Error(err))
			if !c.sleep(ctx) {
				return nil
			}
			continue
		}

		if !c.deliver(ctx, m) {
			return nil
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.logger.Error("consumer: failed to commit offset", zap.Int64("offset", m.Offset), zap.Error(err))
		}
	}
}

// deliver retries the handler until it succeeds. It reports false when ctx
// ends first.
func (c *AuditConsumer) deliver(ctx context.Context, m kafka.Message) bool {
	var entry repository.AuditExportPayload
	if err := json.Unmarshal(m.Value, &entry); err != nil {
		c.logger.Warn("consumer: skipping undecodable message",
			zap.Int64("offset", m.Offset), zap.Error(err))
		return true
	}
	for {
		err := c.handle(ctx, entry)
		if err == nil {
			return true
		}
		c.logger.Error("consumer: handler failed", zap.Int64("seq", entry.Seq), zap.Error(err))
		if !c.sleep(ctx) {
			return false
		}
	}
}

func (c *AuditConsumer) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.retryBackoff):
		return true
	}
}
