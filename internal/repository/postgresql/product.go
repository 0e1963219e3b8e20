package postgresql

import (
	"context"
	"errors"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"

	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/db"
	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/repository"
	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/storage"
)

const uniqueViolation = "23505"

const selectProductWithInventory = `
        SELECT p.product_id, p.title, p.description, p.weight_g, p.length_cm, p.height_cm,
               p.width_cm, p.category_name, p.photos_qty, p.version, p.created_at, p.updated_at,
               i.available_qty, i.reserved_qty, i.restock_date
        FROM products p
        LEFT JOIN inventory i ON p.product_id = i.product_id
        WHERE p.product_id = $1`

type ProductRepo struct {
	db db.DB
}

func NewProductRepo(db db.DB) storage.ProductRepository {
	return &ProductRepo{db: db}
}

func (r *ProductRepo) CreateTx(ctx context.Context, tx db.Tx, p *repository.Product) error {
	_, err := tx.Exec(ctx, `
        INSERT INTO products (
            product_id, title, description, weight_g, length_cm, height_cm, width_cm,
            category_name, photos_qty, version, created_at, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
    `, p.ID, p.Title, p.Description, p.WeightG, p.LengthCM, p.HeightCM, p.WidthCM,
		p.CategoryName, p.PhotosQty, p.Version, p.CreatedAt, p.UpdatedAt)
	if isUniqueViolation(err) {
		return repository.ErrDuplicate
	}
	return err
}

func (r *ProductRepo) GetByID(ctx context.Context, id string) (*repository.ProductWithInventory, error) {
	var product repository.ProductWithInventory
	err := r.db.Get(ctx, &product, selectProductWithInventory, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, err
	}
	return &product, nil
}

// GetByIDTx locks the product row for the rest of the transaction.
func (r *ProductRepo) GetByIDTx(ctx context.Context, tx db.Tx, id string) (*repository.ProductWithInventory, error) {
	var product repository.ProductWithInventory
	err := tx.Get(ctx, &product, selectProductWithInventory+" FOR UPDATE OF p", id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, err
	}
	return &product, nil
}

// UpdateTx writes p only if the stored version still equals expectedVersion.
func (r *ProductRepo) UpdateTx(ctx context.Context, tx db.Tx, p *repository.Product, expectedVersion int) error {
	tag, err := tx.Exec(ctx, `
        UPDATE products
        SET
            title = $1,
            description = $2,
            weight_g = $3,
            length_cm = $4,
            height_cm = $5,
            width_cm = $6,
            category_name = $7,
            photos_qty = $8,
            version = $9,
            updated_at = $10
        WHERE product_id = $11 AND version = $12
    `, p.Title, p.Description, p.WeightG, p.LengthCM, p.HeightCM, p.WidthCM,
		p.CategoryName, p.PhotosQty, p.Version, p.UpdatedAt, p.ID, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrStaleVersion
	}
	return nil
}

func (r *ProductRepo) DeleteTx(ctx context.Context, tx db.Tx, id string) error {
	tag, err := tx.Exec(ctx, "DELETE FROM products WHERE product_id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrObjectNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
