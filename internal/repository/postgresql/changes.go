package postgresql

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/db"
	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/repository"
	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/storage"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type ChangeRepo struct {
	db db.DB
}

func NewChangeRepo(db db.DB) storage.ChangeRepository {
	return &ChangeRepo{db: db}
}

func (r *ChangeRepo) ProductsSince(ctx context.Context, since time.Time, limit int) ([]*repository.ProductChange, error) {
	var changes []*repository.ProductChange
	err := r.db.Select(ctx, &changes, `
        SELECT product_id, version, updated_at
        FROM products
        WHERE updated_at > $1
        ORDER BY updated_at DESC
        LIMIT $2
    `, since, limit)
	return changes, err
}

// OrdersSince returns orders placed after since or with a status change after since.
func (r *ChangeRepo) OrdersSince(ctx context.Context, since time.Time, limit int) ([]*repository.OrderChange, error) {
	var changes []*repository.OrderChange
	err := r.db.Select(ctx, &changes, `
        SELECT o.order_id, o.status, o.purchase_ts, o.updated_at
        FROM orders o
        WHERE o.purchase_ts > $1
           OR EXISTS (
               SELECT 1 FROM order_status_history h
               WHERE h.order_id = o.order_id AND h.changed_at > $1
           )
        ORDER BY o.purchase_ts DESC
        LIMIT $2
    `, since, limit)
	return changes, err
}

func (r *ChangeRepo) ProductsByIDs(ctx context.Context, ids []string) ([]*repository.ProductChange, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := psql.Select("product_id", "version", "updated_at").
		From("products").
		Where(sq.Eq{"product_id": ids}).
		OrderBy("updated_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build products query: %w", err)
	}

	var changes []*repository.ProductChange
	err = r.db.Select(ctx, &changes, query, args...)
	return changes, err
}

func (r *ChangeRepo) OrdersByIDs(ctx context.Context, ids []string) ([]*repository.OrderChange, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := psql.Select("order_id", "status", "purchase_ts", "updated_at").
		From("orders").
		Where(sq.Eq{"order_id": ids}).
		OrderBy("purchase_ts DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build orders query: %w", err)
	}

	var changes []*repository.OrderChange
	err = r.db.Select(ctx, &changes, query, args...)
	return changes, err
}
