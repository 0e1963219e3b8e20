package postgresql_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aarondl/null/v8"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	mock_database "gitlab.ozon.dev/pupkingeorgij/catalog/internal/db/mocks"
	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/repository"
	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/repository/postgresql"
)

func testProduct() *repository.Product {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return &repository.Product{
		ID:           "p-1",
		Title:        "Widget",
		Description:  null.StringFrom("small widget"),
		WeightG:      null.Float64From(120),
		CategoryName: null.StringFrom("tools"),
		PhotosQty:    2,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestProductRepo_CreateTx(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockTx := mock_database.NewMockTx(ctrl)
		repo := postgresql.NewProductRepo(mock_database.NewMockDB(ctrl))
		p := testProduct()

		mockTx.EXPECT().Exec(
			gomock.Any(),
			gomock.Any(),
			gomock.Eq(p.ID),
			gomock.Eq(p.Title),
			gomock.Eq(p.Description),
			gomock.Eq(p.WeightG),
			gomock.Eq(p.LengthCM),
			gomock.Eq(p.HeightCM),
			gomock.Eq(p.WidthCM),
			gomock.Eq(p.CategoryName),
			gomock.Eq(p.PhotosQty),
			gomock.Eq(1),
			gomock.Eq(p.CreatedAt),
			gomock.Eq(p.UpdatedAt),
		).Return(pgconn.CommandTag("INSERT 0 1"), nil)

		assert.NoError(t, repo.CreateTx(ctx, mockTx, p))
	})

	t.Run("duplicate id", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockTx := mock_database.NewMockTx(ctrl)
		repo := postgresql.NewProductRepo(mock_database.NewMockDB(ctrl))

		mockTx.EXPECT().Exec(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(),
			gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, &pgconn.PgError{Code: "23505"})

		err := repo.CreateTx(ctx, mockTx, testProduct())
		assert.ErrorIs(t, err, repository.ErrDuplicate)
	})
}

func TestProductRepo_GetByID(t *testing.T) {
	ctx := context.Background()

	t.Run("found with inventory", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDB := mock_database.NewMockDB(ctrl)
		repo := postgresql.NewProductRepo(mockDB)

		expected := &repository.ProductWithInventory{
			Product:      *testProduct(),
			AvailableQty: null.IntFrom(10),
			ReservedQty:  null.IntFrom(3),
		}

		mockDB.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Eq("p-1")).
			DoAndReturn(func(_ context.Context, dest *repository.ProductWithInventory, _ string, _ string) error {
				*dest = *expected
				return nil
			})

		product, err := repo.GetByID(ctx, "p-1")
		assert.NoError(t, err)
		assert.Equal(t, expected, product)
	})

	t.Run("not found", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDB := mock_database.NewMockDB(ctrl)
		repo := postgresql.NewProductRepo(mockDB)

		mockDB.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(pgx.ErrNoRows)

		product, err := repo.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, repository.ErrObjectNotFound)
		assert.Nil(t, product)
	})
}

func TestProductRepo_UpdateTx(t *testing.T) {
	ctx := context.Background()

	t.Run("version matches", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockTx := mock_database.NewMockTx(ctrl)
		repo := postgresql.NewProductRepo(mock_database.NewMockDB(ctrl))
		p := testProduct()
		p.Title = "Widget v2"
		p.Version = 2

		mockTx.EXPECT().Exec(
			gomock.Any(),
			gomock.Any(),
			gomock.Eq("Widget v2"),
			gomock.Eq(p.Description),
			gomock.Eq(p.WeightG),
			gomock.Eq(p.LengthCM),
			gomock.Eq(p.HeightCM),
			gomock.Eq(p.WidthCM),
			gomock.Eq(p.CategoryName),
			gomock.Eq(p.PhotosQty),
			gomock.Eq(2),
			gomock.Eq(p.UpdatedAt),
			gomock.Eq("p-1"),
			gomock.Eq(1),
		).Return(pgconn.CommandTag("UPDATE 1"), nil)

		assert.NoError(t, repo.UpdateTx(ctx, mockTx, p, 1))
	})

	t.Run("stale version", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockTx := mock_database.NewMockTx(ctrl)
		repo := postgresql.NewProductRepo(mock_database.NewMockDB(ctrl))

		mockTx.EXPECT().Exec(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(),
			gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(pgconn.CommandTag("UPDATE 0"), nil)

		err := repo.UpdateTx(ctx, mockTx, testProduct(), 7)
		assert.ErrorIs(t, err, repository.ErrStaleVersion)
	})

	t.Run("exec error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockTx := mock_database.NewMockTx(ctrl)
		repo := postgresql.NewProductRepo(mock_database.NewMockDB(ctrl))

		dbErr := errors.New("connection reset")
		mockTx.EXPECT().Exec(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(),
			gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dbErr)

		err := repo.UpdateTx(ctx, mockTx, testProduct(), 1)
		assert.Equal(t, dbErr, err)
	})
}

func TestProductRepo_DeleteTx(t *testing.T) {
	ctx := context.Background()

	t.Run("deleted", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockTx := mock_database.NewMockTx(ctrl)
		repo := postgresql.NewProductRepo(mock_database.NewMockDB(ctrl))

		mockTx.EXPECT().Exec(gomock.Any(), gomock.Eq("DELETE FROM products WHERE product_id = $1"), gomock.Eq("p-1")).
			Return(pgconn.CommandTag("DELETE 1"), nil)

		assert.NoError(t, repo.DeleteTx(ctx, mockTx, "p-1"))
	})

	t.Run("missing", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockTx := mock_database.NewMockTx(ctrl)
		repo := postgresql.NewProductRepo(mock_database.NewMockDB(ctrl))

		mockTx.EXPECT().Exec(gomock.Any(), gomock.Any(), gomock.Eq("p-1")).
			Return(pgconn.CommandTag("DELETE 0"), nil)

		assert.ErrorIs(t, repo.DeleteTx(ctx, mockTx, "p-1"), repository.ErrObjectNotFound)
	})
}

func TestInventoryRepo_ReleaseReservationTx(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockTx := mock_database.NewMockTx(ctrl)
	repo := postgresql.NewInventoryRepo()

	mockTx.EXPECT().Exec(gomock.Any(), gomock.Any(), gomock.Eq(3), gomock.Eq("p-2")).
		Return(pgconn.CommandTag("UPDATE 1"), nil)

	assert.NoError(t, repo.ReleaseReservationTx(context.Background(), mockTx, "p-2", 3))
}

func TestProductVersionRepo_ListByProduct(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockDB := mock_database.NewMockDB(ctrl)
	repo := postgresql.NewProductVersionRepo(mockDB)

	expected := []*repository.ProductVersion{
		{ProductID: "p-1", Version: 2, Title: "Widget v2"},
		{ProductID: "p-1", Version: 1, Title: "Widget"},
	}

	mockDB.EXPECT().Select(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Eq("p-1"), gomock.Eq(10)).
		DoAndReturn(func(_ context.Context, dest *[]*repository.ProductVersion, _ string, _ ...interface{}) error {
			*dest = expected
			return nil
		})

	versions, err := repo.ListByProduct(context.Background(), "p-1", 10)
	assert.NoError(t, err)
	assert.Equal(t, expected, versions)
}
