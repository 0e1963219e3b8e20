package postgresql

import (
	"context"

	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/db"
	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/repository"
	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/storage"
)

type InventoryRepo struct{}

func NewInventoryRepo() storage.InventoryRepository {
	return &InventoryRepo{}
}

func (r *InventoryRepo) CreateTx(ctx context.Context, tx db.Tx, inv *repository.Inventory) error {
	_, err := tx.Exec(ctx, `
        INSERT INTO inventory (product_id, available_qty, reserved_qty, restock_date)
        VALUES ($1, $2, $3, $4)
    `, inv.ProductID, inv.AvailableQty, inv.ReservedQty, inv.RestockDate)
	return err
}

func (r *InventoryRepo) SetAvailableTx(ctx context.Context, tx db.Tx, productID string, qty int) error {
	_, err := tx.Exec(ctx, `
        INSERT INTO inventory (product_id, available_qty, reserved_qty)
        VALUES ($1, $2, 0)
        ON CONFLICT (product_id) DO UPDATE SET available_qty = EXCLUDED.available_qty
    `, productID, qty)
	return err
}

// ReleaseReservationTx moves qty units from reserved back to available.
func (r *InventoryRepo) ReleaseReservationTx(ctx context.Context, tx db.Tx, productID string, qty int) error {
	_, err := tx.Exec(ctx, `
        UPDATE inventory
        SET available_qty = available_qty + $1, reserved_qty = reserved_qty - $1
        WHERE product_id = $2
    `, qty, productID)
	return err
}
