package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/db"
	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/metrics"
	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/repository"
)

const (
	initialVersionSummary = "Initial creation"
	defaultUpdateSummary  = "Product updated"
	recentVersionsLimit   = 10
	maxVersionsLimit      = 100
)

// VersionStore owns product writes. Every successful write bumps the version,
// snapshots it into product_versions and appends one audit entry.
type VersionStore struct {
	db        db.DB
	products  ProductRepository
	versions  ProductVersionRepository
	inventory InventoryRepository
	audit     *AuditLog
	cache     ProductCache
	policy    Policy
	logger    *zap.Logger
	timeNow   func() time.Time
	newID     func() string
}

func NewVersionStore(
	database db.DB,
	products ProductRepository,
	versions ProductVersionRepository,
	inventory InventoryRepository,
	audit *AuditLog,
	cache ProductCache,
	policy Policy,
	logger *zap.Logger,
) *VersionStore {
	return &VersionStore{
		db:        database,
		products:  products,
		versions:  versions,
		inventory: inventory,
		audit:     audit,
		cache:     cache,
		policy:    policy,
		logger:    logger,
		timeNow:   time.Now,
		newID:     func() string { return uuid.NewString() },
	}
}

func (s *VersionStore) Create(ctx context.Context, in NewProduct) (*Product, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, invalid("title", nil, "must not be empty")
	}
	if in.AvailableQty < 0 {
		return nil, invalid("available_qty", in.AvailableQty, "must not be negative")
	}
	if in.PhotosQty < 0 {
		return nil, invalid("photos_qty", in.PhotosQty, "must not be negative")
	}

	id := in.ID
	if id == "" {
		id = s.newID()
	}
	actor := actorOrSystem(in.Actor)
	now := s.timeNow().UTC()

	row := &repository.Product{
		ID:           id,
		Title:        in.Title,
		Description:  in.Description,
		WeightG:      in.WeightG,
		LengthCM:     in.LengthCM,
		HeightCM:     in.HeightCM,
		WidthCM:      in.WidthCM,
		CategoryName: in.CategoryName,
		PhotosQty:    in.PhotosQty,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	inv := &repository.Inventory{ProductID: id, AvailableQty: in.AvailableQty}
	created := toProduct(row, inv)

	gen := s.cache.Generation()
	err := db.WithTx(ctx, s.db, func(tx db.Tx) error {
		if err := s.products.CreateTx(ctx, tx, row); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrAlreadyExists
			}
			return fmt.Errorf("failed to insert product: %w", err)
		}
		if err := s.inventory.CreateTx(ctx, tx, inv); err != nil {
			return fmt.Errorf("failed to provision inventory: %w", err)
		}
		if err := s.versions.CreateTx(ctx, tx, versionRow(row, actor, initialVersionSummary, now)); err != nil {
			return fmt.Errorf("failed to write product version: %w", err)
		}
		_, err := s.audit.Record(ctx, tx, TableProducts, id, ActionCreate, nil, created, actor)
		return err
	})
	if err != nil {
		if !errors.Is(err, ErrAlreadyExists) {
			s.logger.Error("product create failed", zap.String("product_id", id), zap.Error(err))
			metrics.OperationErrorsTotal.WithLabelValues("create_product").Inc()
		}
		return nil, err
	}

	metrics.ProductMutationsTotal.WithLabelValues(string(ActionCreate)).Inc()
	s.cache.Set(created, gen)
	return created, nil
}

func (s *VersionStore) Update(ctx context.Context, id string, upd ProductUpdate) (*Product, error) {
	if upd.ExpectedVersion == nil && s.policy.RequireVersion {
		return nil, invalid("version", nil, "is required")
	}
	if err := validatePatch(upd.Patch); err != nil {
		return nil, err
	}

	actor := actorOrSystem(upd.Actor)
	summary := upd.ChangeSummary
	if summary == "" {
		summary = defaultUpdateSummary
	}
	gen := s.cache.Generation()
	now := s.timeNow().UTC()

	var updated *Product
	err := db.WithTx(ctx, s.db, func(tx db.Tx) error {
		current, err := s.products.GetByIDTx(ctx, tx, id)
		if err != nil {
			if errors.Is(err, repository.ErrObjectNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to load product: %w", err)
		}
		before := toProductWithInventory(current)

		if upd.ExpectedVersion != nil && *upd.ExpectedVersion != current.Version {
			return &ConflictError{
				CurrentVersion:  current.Version,
				ExpectedVersion: *upd.ExpectedVersion,
				CurrentValues:   before,
				Submitted:       upd.Patch,
			}
		}

		merged := current.Product
		applyPatch(&merged, upd.Patch)
		merged.Version = current.Version + 1
		merged.UpdatedAt = now

		if err := s.products.UpdateTx(ctx, tx, &merged, current.Version); err != nil {
			if errors.Is(err, repository.ErrStaleVersion) {
				return &ConflictError{CurrentVersion: current.Version + 1, ExpectedVersion: current.Version, CurrentValues: before, Submitted: upd.Patch}
			}
			return fmt.Errorf("failed to update product: %w", err)
		}

		after := &repository.ProductWithInventory{
			Product:      merged,
			AvailableQty: current.AvailableQty,
			ReservedQty:  current.ReservedQty,
			RestockDate:  current.RestockDate,
		}
		if upd.Patch.AvailableQty.Set {
			if err := s.inventory.SetAvailableTx(ctx, tx, id, upd.Patch.AvailableQty.Value); err != nil {
				return fmt.Errorf("failed to update inventory: %w", err)
			}
			after.AvailableQty.SetValid(upd.Patch.AvailableQty.Value)
			if !after.ReservedQty.Valid {
				after.ReservedQty.SetValid(0)
			}
		}

		if err := s.versions.CreateTx(ctx, tx, versionRow(&merged, actor, summary, now)); err != nil {
			return fmt.Errorf("failed to write product version: %w", err)
		}

		updated = toProductWithInventory(after)
		_, err = s.audit.Record(ctx, tx, TableProducts, id, ActionUpdate, before, updated, actor)
		return err
	})
	if err != nil {
		var conflict *ConflictError
		switch {
		case errors.As(err, &conflict):
			metrics.VersionConflictsTotal.Inc()
			s.logger.Info("product version conflict",
				zap.String("product_id", id),
				zap.Int("expected_version", conflict.ExpectedVersion),
				zap.Int("version", conflict.CurrentVersion))
		case errors.Is(err, ErrNotFound):
		default:
			s.logger.Error("product update failed", zap.String("product_id", id), zap.Error(err))
			metrics.OperationErrorsTotal.WithLabelValues("update_product").Inc()
		}
		return nil, err
	}

	metrics.ProductMutationsTotal.WithLabelValues(string(ActionUpdate)).Inc()
	s.cache.Set(updated, gen)
	return updated, nil
}

func (s *VersionStore) Delete(ctx context.Context, id, actor string) error {
	err := db.WithTx(ctx, s.db, func(tx db.Tx) error {
		current, err := s.products.GetByIDTx(ctx, tx, id)
		if err != nil {
			if errors.Is(err, repository.ErrObjectNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to load product: %w", err)
		}
		// Row locks first, the audit sequence lock last, as in every other writer.
		if err := s.products.DeleteTx(ctx, tx, id); err != nil {
			return fmt.Errorf("failed to delete product: %w", err)
		}
		_, err = s.audit.Record(ctx, tx, TableProducts, id, ActionDelete, toProductWithInventory(current), nil, actorOrSystem(actor))
		return err
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Error("product delete failed", zap.String("product_id", id), zap.Error(err))
			metrics.OperationErrorsTotal.WithLabelValues("delete_product").Inc()
		}
		return err
	}

	metrics.ProductMutationsTotal.WithLabelValues(string(ActionDelete)).Inc()
	s.cache.Delete(id)
	return nil
}

// Get returns the product with its most recent versions, newest first.
func (s *VersionStore) Get(ctx context.Context, id string) (*ProductDetails, error) {
	product, ok := s.cache.Get(id)
	if !ok {
		gen := s.cache.Generation()
		row, err := s.products.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrObjectNotFound) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("failed to get product: %w", err)
		}
		product = toProductWithInventory(row)
		s.cache.Set(product, gen)
	}

	versions, err := s.versions.ListByProduct(ctx, id, recentVersionsLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list product versions: %w", err)
	}
	return &ProductDetails{Product: *product, Versions: toVersions(versions)}, nil
}

func (s *VersionStore) Versions(ctx context.Context, id string, limit int) ([]ProductVersion, error) {
	if limit <= 0 {
		limit = recentVersionsLimit
	}
	if limit > maxVersionsLimit {
		limit = maxVersionsLimit
	}
	rows, err := s.versions.ListByProduct(ctx, id, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list product versions: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return toVersions(rows), nil
}

func validatePatch(p ProductPatch) error {
	switch {
	case p.Title.Null:
		return invalid("title", nil, "must not be null")
	case p.PhotosQty.Null:
		return invalid("photos_qty", nil, "must not be null")
	case p.AvailableQty.Null:
		return invalid("available_qty", nil, "must not be null")
	}
	if p.Title.Set && strings.TrimSpace(p.Title.Value) == "" {
		return invalid("title", nil, "must not be empty")
	}
	if p.PhotosQty.Set && p.PhotosQty.Value < 0 {
		return invalid("photos_qty", p.PhotosQty.Value, "must not be negative")
	}
	if p.AvailableQty.Set && p.AvailableQty.Value < 0 {
		return invalid("available_qty", p.AvailableQty.Value, "must not be negative")
	}
	return nil
}

func applyPatch(p *repository.Product, patch ProductPatch) {
	if patch.Title.Set {
		p.Title = patch.Title.Value
	}
	if patch.Description.Set {
		p.Description = patch.Description.Value
	}
	if patch.WeightG.Set {
		p.WeightG = patch.WeightG.Value
	}
	if patch.LengthCM.Set {
		p.LengthCM = patch.LengthCM.Value
	}
	if patch.HeightCM.Set {
		p.HeightCM = patch.HeightCM.Value
	}
	if patch.WidthCM.Set {
		p.WidthCM = patch.WidthCM.Value
	}
	if patch.CategoryName.Set {
		p.CategoryName = patch.CategoryName.Value
	}
	if patch.PhotosQty.Set {
		p.PhotosQty = patch.PhotosQty.Value
	}
}

func actorOrSystem(actor string) string {
	if actor == "" {
		return SystemActor
	}
	return actor
}

func versionRow(p *repository.Product, actor, summary string, at time.Time) *repository.ProductVersion {
	return &repository.ProductVersion{
		ProductID:     p.ID,
		Version:       p.Version,
		Title:         p.Title,
		Description:   p.Description,
		WeightG:       p.WeightG,
		LengthCM:      p.LengthCM,
		HeightCM:      p.HeightCM,
		WidthCM:       p.WidthCM,
		CategoryName:  p.CategoryName,
		PhotosQty:     p.PhotosQty,
		CreatedBy:     actor,
		ChangeSummary: summary,
		CreatedAt:     at,
	}
}

func toProduct(p *repository.Product, inv *repository.Inventory) *Product {
	out := &Product{
		ID:           p.ID,
		Title:        p.Title,
		Description:  p.Description,
		WeightG:      p.WeightG,
		LengthCM:     p.LengthCM,
		HeightCM:     p.HeightCM,
		WidthCM:      p.WidthCM,
		CategoryName: p.CategoryName,
		PhotosQty:    p.PhotosQty,
		Version:      p.Version,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
	if inv != nil {
		out.AvailableQty.SetValid(inv.AvailableQty)
		out.ReservedQty.SetValid(inv.ReservedQty)
		out.RestockDate = inv.RestockDate
	}
	return out
}

func toProductWithInventory(r *repository.ProductWithInventory) *Product {
	out := toProduct(&r.Product, nil)
	out.AvailableQty = r.AvailableQty
	out.ReservedQty = r.ReservedQty
	out.RestockDate = r.RestockDate
	return out
}

func toVersions(rows []*repository.ProductVersion) []ProductVersion {
	versions := make([]ProductVersion, 0, len(rows))
	for _, v := range rows {
		versions = append(versions, ProductVersion{
			Version:       v.Version,
			Title:         v.Title,
			Description:   v.Description,
			WeightG:       v.WeightG,
			LengthCM:      v.LengthCM,
			HeightCM:      v.HeightCM,
			WidthCM:       v.WidthCM,
			CategoryName:  v.CategoryName,
			PhotosQty:     v.PhotosQty,
			CreatedBy:     v.CreatedBy,
			ChangeSummary: v.ChangeSummary,
			CreatedAt:     v.CreatedAt,
		})
	}
	return versions
}
