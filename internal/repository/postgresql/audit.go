package postgresql

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/db"
	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/repository"
	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/storage"
)

// auditSeqLock keys the advisory lock that serialises audit appends, so a
// higher seq is never visible before a lower one.
const auditSeqLock = 7_424_001

const auditColumns = "seq, table_name, record_id, action, old_values, new_values, changed_by, changed_at"

type AuditRepo struct {
	db db.DB
}

func NewAuditRepo(db db.DB) storage.AuditRepository {
	return &AuditRepo{db: db}
}

// AppendTx inserts entry and fills in its seq. The lock is released on commit or rollback.
func (r *AuditRepo) AppendTx(ctx context.Context, tx db.Tx, entry *repository.AuditEntry) error {
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", auditSeqLock); err != nil {
		return fmt.Errorf("failed to acquire audit lock: %w", err)
	}
	err := tx.Get(ctx, &entry.Seq, `
        INSERT INTO audit_log (
            table_name, record_id, action, old_values, new_values, changed_by, changed_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING seq
    `, entry.TableName, entry.RecordID, entry.Action, entry.OldValues, entry.NewValues, entry.ChangedBy, entry.ChangedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

func (r *AuditRepo) Query(ctx context.Context, q repository.AuditQuery) ([]*repository.AuditEntry, error) {
	builder := sq.Select(auditColumns).From("audit_log").PlaceholderFormat(sq.Dollar)
	if q.Table != "" {
		builder = builder.Where(sq.Eq{"table_name": q.Table})
	}
	if !q.Since.IsZero() {
		builder = builder.Where(sq.Gt{"changed_at": q.Since})
	}
	if q.Ascending {
		builder = builder.OrderBy("changed_at ASC", "seq ASC")
	} else {
		builder = builder.OrderBy("changed_at DESC", "seq DESC")
	}
	if q.Limit > 0 {
		builder = builder.Limit(uint64(q.Limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build audit query: %w", err)
	}

	var entries []*repository.AuditEntry
	err = r.db.Select(ctx, &entries, query, args...)
	return entries, err
}

// After returns entries with seq greater than the given one in seq order.
func (r *AuditRepo) After(ctx context.Context, seq int64, limit int) ([]*repository.AuditEntry, error) {
	var entries []*repository.AuditEntry
	err := r.db.Select(ctx, &entries, `
        SELECT `+auditColumns+`
        FROM audit_log
        WHERE seq > $1
        ORDER BY seq ASC
        LIMIT $2
    `, seq, limit)
	return entries, err
}
