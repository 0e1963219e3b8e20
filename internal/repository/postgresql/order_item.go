package postgresql

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"

	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/db"
	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/repository"
	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/storage"
)

const selectOrderItems = `
        SELECT order_id, order_item_id, product_id, quantity, unit_price, freight_value
        FROM order_items
        WHERE order_id = $1
        ORDER BY order_item_id`

type OrderItemRepo struct {
	db db.DB
}

func NewOrderItemRepo(db db.DB) storage.OrderItemRepository {
	return &OrderItemRepo{db: db}
}

func (r *OrderItemRepo) ListByOrder(ctx context.Context, orderID string) ([]*repository.OrderItem, error) {
	var items []*repository.OrderItem
	err := r.db.Select(ctx, &items, selectOrderItems, orderID)
	return items, err
}

func (r *OrderItemRepo) ListByOrderTx(ctx context.Context, tx db.Tx, orderID string) ([]*repository.OrderItem, error) {
	var items []*repository.OrderItem
	err := tx.Select(ctx, &items, selectOrderItems, orderID)
	return items, err
}

func (r *OrderItemRepo) GetByIDTx(ctx context.Context, tx db.Tx, orderID string, itemID int) (*repository.OrderItem, error) {
	var item repository.OrderItem
	err := tx.Get(ctx, &item, `
        SELECT order_id, order_item_id, product_id, quantity, unit_price, freight_value
        FROM order_items
        WHERE order_id = $1 AND order_item_id = $2
        FOR UPDATE
    `, orderID, itemID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (r *OrderItemRepo) UpdateTx(ctx context.Context, tx db.Tx, item *repository.OrderItem) error {
	tag, err := tx.Exec(ctx, `
        UPDATE order_items
        SET
            quantity = $1,
            unit_price = $2,
            freight_value = $3
        WHERE order_id = $4 AND order_item_id = $5
    `, item.Quantity, item.UnitPrice, item.FreightValue, item.OrderID, item.ItemID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrObjectNotFound
	}
	return nil
}
