package postgresql

import (
	"context"

	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/db"
	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/repository"
	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/storage"
)

type ProductVersionRepo struct {
	db db.DB
}

func NewProductVersionRepo(db db.DB) storage.ProductVersionRepository {
	return &ProductVersionRepo{db: db}
}

func (r *ProductVersionRepo) CreateTx(ctx context.Context, tx db.Tx, v *repository.ProductVersion) error {
	_, err := tx.Exec(ctx, `
        INSERT INTO product_versions (
            product_id, version, title, description, weight_g, length_cm, height_cm,
            width_cm, category_name, photos_qty, created_by, change_summary, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
    `, v.ProductID, v.Version, v.Title, v.Description, v.WeightG, v.LengthCM, v.HeightCM,
		v.WidthCM, v.CategoryName, v.PhotosQty, v.CreatedBy, v.ChangeSummary, v.CreatedAt)
	if isUniqueViolation(err) {
		return repository.ErrDuplicate
	}
	return err
}

// ListByProduct returns the newest versions first.
func (r *ProductVersionRepo) ListByProduct(ctx context.Context, productID string, limit int) ([]*repository.ProductVersion, error) {
	var versions []*repository.ProductVersion
	err := r.db.Select(ctx, &versions, `
        SELECT * FROM product_versions
        WHERE product_id = $1
        ORDER BY version DESC
        LIMIT $2
    `, productID, limit)
	return versions, err
}
