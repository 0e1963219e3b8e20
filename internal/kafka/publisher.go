package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/db"
	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/metrics"
	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/repository"
	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/storage"
)

var errShutdown = errors.New("publisher shutdown during batch processing")

type PublisherConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
}

// Publisher relays committed outbox tasks to the producer. Tasks are claimed
// in one short transaction and sent outside of it.
type Publisher struct {
	db             db.DB
	repo           storage.OutboxTaskRepository
	producer       Producer
	config         PublisherConfig
	logger         *zap.Logger
	timeNow        func() time.Time
	wg             sync.WaitGroup
	shutdownSignal chan struct{}
	stopOnce       sync.Once
}

func NewPublisher(database db.DB, repo storage.OutboxTaskRepository, producer Producer, config PublisherConfig, logger *zap.Logger) *Publisher {
	return &Publisher{
		db:             database,
		repo:           repo,
		producer:       producer,
		config:         config,
		logger:         logger,
		timeNow:        time.Now,
		shutdownSignal: make(chan struct{}),
	}
}

func (p *Publisher) Run(ctx context.Context) {
	p.logger.Info("outbox publisher: starting",
		zap.Duration("poll_interval", p.config.PollInterval),
		zap.Int("batch_size", p.config.BatchSize),
	)
	p.wg.Add(1)
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil && !errors.Is(err, errShutdown) && ctx.Err() == nil {
				metrics.OperationErrorsTotal.WithLabelValues("outbox_batch").Inc()
				p.logger.Error("outbox publisher: failed to process batch", zap.Error(err))
			}
		case <-p.shutdownSignal:
			p.logger.Info("outbox publisher: shutdown signal received")
			return
		case <-ctx.Done():
			p.logger.Info("outbox publisher: context cancelled")
			return
		}
	}
}

// Shutdown stops Run, waits for the in-flight batch and closes the producer.
func (p *Publisher) Shutdown() {
	p.stopOnce.Do(func() {
		close(p.shutdownSignal)

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			p.logger.Info("outbox publisher: shutdown complete")
		case <-time.After(30 * time.Second):
			p.logger.Warn("outbox publisher: shutdown timed out")
		}

		if err := p.producer.Close(); err != nil {
			p.logger.Error("outbox publisher: failed to close producer", zap.Error(err))
		}
	})
}

// ProcessBatch claims up to BatchSize tasks and sends them. It returns the
// number of tasks sent successfully.
func (p *Publisher) ProcessBatch(ctx context.Context) (int, error) {
	var tasks []*repository.OutboxTask
	err := db.WithTx(ctx, p.db, func(tx db.Tx) error {
		var err error
		tasks, err = p.repo.GetProcessableTasks(ctx, tx, p.config.BatchSize, p.config.MaxAttempts)
		if err != nil {
			return fmt.Errorf("failed to get processable tasks: %w", err)
		}
		for _, task := range tasks {
			err := p.repo.UpdateTaskStatus(ctx, tx, task.ID, repository.TaskStatusProcessing, task.Attempts, nil, nil)
			if err != nil {
				return fmt.Errorf("failed to mark task %s as PROCESSING: %w", task.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(tasks) == 0 {
		return 0, nil
	}

	p.logger.Debug("outbox publisher: claimed tasks", zap.Int("count", len(tasks)))

	sent := 0
	for i, task := range tasks {
		select {
		case <-p.shutdownSignal:
			p.releaseUnsent(ctx, tasks[i:])
			return sent, errShutdown
		case <-ctx.Done():
			p.releaseUnsent(ctx, tasks[i:])
			return sent, ctx.Err()
		default:
		}

		if err := p.processSingleTask(ctx, task); err != nil {
			p.logger.Warn("outbox publisher: task not sent", zap.Stringer("task_id", task.ID), zap.Error(err))
			continue
		}
		sent++
	}
	return sent, nil
}

// releaseUnsent hands claimed but unsent tasks back to the next batch. It runs
// while the caller's context may already be cancelled.
func (p *Publisher) releaseUnsent(ctx context.Context, tasks []*repository.OutboxTask) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	for _, task := range tasks {
		status := task.Status
		if status == repository.TaskStatusProcessing {
			status = repository.TaskStatusCreated
		}
		if err := p.repo.UpdateTaskStatus(ctx, p.db, task.ID, status, task.Attempts, task.LastError, nil); err != nil {
			p.logger.Warn("outbox publisher: failed to release task", zap.Stringer("task_id", task.ID), zap.Error(err))
		}
	}
	p.logger.Info("outbox publisher: released unsent tasks", zap.Int("count", len(tasks)))
}

func (p *Publisher) processSingleTask(ctx context.Context, task *repository.OutboxTask) error {
	err := p.producer.SendMessage(ctx, task.Topic, messageKey(task), task.Payload)
	if err != nil {
		metrics.OutboxSentTotal.WithLabelValues("failed").Inc()
		attempts := task.Attempts + 1
		errMsg := err.Error()
		if attempts >= p.config.MaxAttempts {
			p.logger.Error("outbox publisher: task reached max attempts",
				zap.Stringer("task_id", task.ID), zap.Int("attempts", attempts))
		}

		if updateErr := p.repo.UpdateTaskStatus(ctx, p.db, task.ID, repository.TaskStatusFailed, attempts, &errMsg, nil); updateErr != nil {
			return fmt.Errorf("failed to update task status after send failure: %w (send error: %v)", updateErr, err)
		}
		return err
	}

	metrics.OutboxSentTotal.WithLabelValues("sent").Inc()
	now := p.timeNow().UTC()
	if err := p.repo.UpdateTaskStatus(ctx, p.db, task.ID, repository.TaskStatusDone, task.Attempts, nil, &now); err != nil {
		return fmt.Errorf("failed to update task status after successful send: %w", err)
	}
	return nil
}

// messageKey keys audit exports by record so one record's entries land on
// one partition in order.
func messageKey(task *repository.OutboxTask) []byte {
	var payload repository.AuditExportPayload
	if err := json.Unmarshal(task.Payload, &payload); err == nil && payload.RecordID != "" {
		return []byte(payload.Table + ":" + payload.RecordID)
	}
	return []byte(task.ID.String())
}
