package postgresql

import (
	"context"

	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/db"
	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/repository"
	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/storage"
)

type StatusHistoryRepo struct {
	db db.DB
}

func NewStatusHistoryRepo(db db.DB) storage.StatusHistoryRepository {
	return &StatusHistoryRepo{db: db}
}

func (r *StatusHistoryRepo) CreateTx(ctx context.Context, tx db.Tx, entry *repository.StatusHistoryEntry) error {
	_, err := tx.Exec(ctx, `
        INSERT INTO order_status_history (
            order_id, old_status, new_status, changed_by, notes, changed_at
        ) VALUES ($1, $2, $3, $4, $5, $6)
    `, entry.OrderID, entry.OldStatus, entry.NewStatus, entry.ChangedBy, entry.Notes, entry.ChangedAt)
	return err
}

func (r *StatusHistoryRepo) GetByOrderID(ctx context.Context, orderID string) ([]*repository.StatusHistoryEntry, error) {
	var entries []*repository.StatusHistoryEntry
	err := r.db.Select(ctx, &entries, `
        SELECT * FROM order_status_history
        WHERE order_id = $1
        ORDER BY changed_at DESC, history_id DESC
    `, orderID)
	return entries, err
}
