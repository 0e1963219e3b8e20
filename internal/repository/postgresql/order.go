package postgresql

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v4"

	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/db"
	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/repository"
	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/storage"
)

type OrderRepo struct {
	db db.DB
}

func NewOrderRepo(db db.DB) storage.OrderRepository {
	return &OrderRepo{db: db}
}

func (r *OrderRepo) GetByID(ctx context.Context, id string) (*repository.Order, error) {
	var order repository.Order
	err := r.db.Get(ctx, &order, "SELECT * FROM orders WHERE order_id = $1", id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *OrderRepo) GetByIDTx(ctx context.Context, tx db.Tx, id string) (*repository.Order, error) {
	var order repository.Order
	err := tx.Get(ctx, &order, "SELECT * FROM orders WHERE order_id = $1 FOR UPDATE", id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, err
	}
	return &order, nil
}

// UpdateStatusTx sets status and updated_at, and stamps the milestone column when one is given.
func (r *OrderRepo) UpdateStatusTx(ctx context.Context, tx db.Tx, id, status, milestone string, at time.Time) error {
	builder := sq.Update("orders").
		Set("status", status).
		Set("updated_at", at).
		Where(sq.Eq{"order_id": id}).
		PlaceholderFormat(sq.Dollar)
	if milestone != "" {
		builder = builder.Set(milestone, at)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build order update: %w", err)
	}

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrObjectNotFound
	}
	return nil
}
