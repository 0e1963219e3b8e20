package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/config"
	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/kafka"
	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/logger"
	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/repository"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if !cfg.ExportEnabled() {
		return fmt.Errorf("kafka.brokers is empty, nothing to consume")
	}

	reader := kafka.NewReader(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID)
	consumer := kafka.NewAuditConsumer(reader, func(_ context.Context, e repository.AuditExportPayload) error {
		log.Info("audit entry",
			zap.Int64("seq", e.Seq),
			zap.String("table", e.Table),
			zap.String("record_id", e.RecordID),
			zap.String("action", e.Action),
			zap.String("changed_by", e.ChangedBy),
			zap.Time("changed_at", e.ChangedAt),
			zap.ByteString("new_values", e.NewValues),
		)
		return nil
	}, log)

	log.Info("consumer: reading", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	return consumer.Run(ctx)
}
