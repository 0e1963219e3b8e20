package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/db"
	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/repository"
)

// AuditLog appends audit entries inside the caller's transaction. When an
// export topic is configured each entry is also queued in the outbox.
type AuditLog struct {
	repo        AuditRepository
	outbox      OutboxTaskRepository
	exportTopic string
	logger      *zap.Logger
	timeNow     func() time.Time
}

// NewAuditLog builds an AuditLog. An empty exportTopic disables the outbox.
func NewAuditLog(repo AuditRepository, outbox OutboxTaskRepository, exportTopic string, logger *zap.Logger) *AuditLog {
	return &AuditLog{
		repo:        repo,
		outbox:      outbox,
		exportTopic: exportTopic,
		logger:      logger,
		timeNow:     time.Now,
	}
}

func (a *AuditLog) Record(ctx context.Context, tx db.Tx, table, recordID string, action AuditAction, oldValues, newValues interface{}, actor string) (*AuditEntry, error) {
	oldJSON, err := marshalSnapshot(oldValues)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal old values: %w", err)
	}
	newJSON, err := marshalSnapshot(newValues)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal new values: %w", err)
	}
	if actor == "" {
		actor = SystemActor
	}

	row := &repository.AuditEntry{
		TableName: table,
		RecordID:  recordID,
		Action:    string(action),
		OldValues: oldJSON,
		NewValues: newJSON,
		ChangedBy: actor,
		ChangedAt: a.timeNow().UTC(),
	}
	if err := a.repo.AppendTx(ctx, tx, row); err != nil {
		return nil, fmt.Errorf("failed to append audit entry: %w", err)
	}

	if a.exportTopic != "" {
		if err := a.enqueue(ctx, tx, row); err != nil {
			return nil, err
		}
	}

	entry := toAuditEntry(row)
	return &entry, nil
}

func (a *AuditLog) enqueue(ctx context.Context, tx db.Tx, row *repository.AuditEntry) error {
	payload, err := json.Marshal(repository.AuditExportPayload{
		Seq:       row.Seq,
		Table:     row.TableName,
		RecordID:  row.RecordID,
		Action:    row.Action,
		OldValues: row.OldValues,
		NewValues: row.NewValues,
		ChangedBy: row.ChangedBy,
		ChangedAt: row.ChangedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal audit export payload: %w", err)
	}

	task := &repository.OutboxTask{Payload: payload, Topic: a.exportTopic}
	if err := a.outbox.CreateTx(ctx, tx, task); err != nil {
		return fmt.Errorf("failed to enqueue audit export: %w", err)
	}
	return nil
}

func (a *AuditLog) Query(ctx context.Context, filter AuditFilter) ([]AuditEntry, error) {
	rows, err := a.repo.Query(ctx, repository.AuditQuery{
		Table:     filter.Table,
		Since:     filter.Since,
		Ascending: filter.Ascending,
		Limit:     filter.Limit,
	})
	if err != nil {
		a.logger.Error("audit query failed", zap.String("table", filter.Table), zap.Error(err))
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	return toAuditEntries(rows), nil
}

func marshalSnapshot(v interface{}) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func toAuditEntry(r *repository.AuditEntry) AuditEntry {
	return AuditEntry{
		Seq:       r.Seq,
		TableName: r.TableName,
		RecordID:  r.RecordID,
		Action:    AuditAction(r.Action),
		OldValues: r.OldValues,
		NewValues: r.NewValues,
		ChangedBy: r.ChangedBy,
		ChangedAt: r.ChangedAt,
	}
}

func toAuditEntries(rows []*repository.AuditEntry) []AuditEntry {
	entries := make([]AuditEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, toAuditEntry(r))
	}
	return entries
}
