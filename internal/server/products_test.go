package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aarondl/null/v8"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/storage"
)

var createdAt = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func widget(version int, title string) *storage.Product {
	return &storage.Product{
		ID:           "P1",
		Title:        title,
		Version:      version,
		AvailableQty: null.IntFrom(5),
		ReservedQty:  null.IntFrom(0),
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
}

func TestHandleCreateProduct(t *testing.T) {
	tests := []struct {
		name           string
		body           interface{}
		setupMocks     func(f *fixture)
		expectedStatus int
		expectedField  string
	}{
		{
			name: "created with version 1",
			body: map[string]interface{}{"product_id": "P1", "title": "Widget", "available_qty": 5, "created_by": "alice"},
			setupMocks: func(f *fixture) {
				f.products.EXPECT().
					Create(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, in storage.NewProduct) (*storage.Product, error) {
						assert.Equal(t, "P1", in.ID)
						assert.Equal(t, "Widget", in.Title)
						assert.Equal(t, 5, in.AvailableQty)
						assert.Equal(t, "alice", in.Actor)
						return widget(1, "Widget"), nil
					})
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "missing title",
			body:           map[string]interface{}{"product_id": "P1"},
			setupMocks:     func(f *fixture) {},
			expectedStatus: http.StatusBadRequest,
			expectedField:  "title",
		},
		{
			name:           "negative stock",
			body:           map[string]interface{}{"title": "Widget", "available_qty": -1},
			setupMocks:     func(f *fixture) {},
			expectedStatus: http.StatusBadRequest,
			expectedField:  "available_qty",
		},
		{
			name:           "malformed body",
			body:           "{",
			setupMocks:     func(f *fixture) {},
			expectedStatus: http.StatusBadRequest,
			expectedField:  "body",
		},
		{
			name: "duplicate id",
			body: map[string]interface{}{"product_id": "P1", "title": "Widget"},
			setupMocks: func(f *fixture) {
				f.products.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil, storage.ErrAlreadyExists)
			},
			expectedStatus: http.StatusConflict,
		},
		{
			name: "store failure",
			body: map[string]interface{}{"title": "Widget"},
			setupMocks: func(f *fixture) {
				f.products.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection reset"))
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, Options{})
			tc.setupMocks(f)

			rr := f.do(t, http.MethodPost, "/api/products", tc.body)

			assert.Equal(t, tc.expectedStatus, rr.Code)
			if tc.expectedField != "" {
				assert.Equal(t, tc.expectedField, decodeBody(t, rr)["field"])
			}
		})
	}
}

func TestHandleUpdateProduct(t *testing.T) {
	t.Run("passes version and set fields only", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.products.EXPECT().
			Update(gomock.Any(), "P1", gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, upd storage.ProductUpdate) (*storage.Product, error) {
				require.NotNil(t, upd.ExpectedVersion)
				assert.Equal(t, 1, *upd.ExpectedVersion)
				assert.Equal(t, storage.Some("Widget v2"), upd.Patch.Title)
				assert.True(t, upd.Patch.Description.Set)
				assert.False(t, upd.Patch.Description.Value.Valid)
				assert.False(t, upd.Patch.WeightG.Set)
				assert.Equal(t, "bob", upd.Actor)
				assert.Equal(t, "rename", upd.ChangeSummary)
				return widget(2, "Widget v2"), nil
			})

		rr := f.do(t, http.MethodPut, "/api/products/P1",
			`{"version":1,"title":"Widget v2","description":null,"updated_by":"bob","change_summary":"rename"}`)

		require.Equal(t, http.StatusOK, rr.Code)
		body := decodeBody(t, rr)
		assert.Equal(t, float64(2), body["version"])
		assert.Equal(t, "Widget v2", body["title"])
	})

	t.Run("stale version returns the conflict payload", func(t *testing.T) {
		f := newFixture(t, Options{})
		submitted := storage.ProductPatch{Title: storage.Some("Widget v3")}
		f.products.EXPECT().Update(gomock.Any(), "P1", gomock.Any()).Return(nil, &storage.ConflictError{
			CurrentVersion:  2,
			ExpectedVersion: 1,
			CurrentValues:   widget(2, "Widget v2"),
			Submitted:       submitted,
		})

		rr := f.do(t, http.MethodPut, "/api/products/P1", `{"version":1,"title":"Widget v3"}`)

		require.Equal(t, http.StatusConflict, rr.Code)
		body := decodeBody(t, rr)
		assert.Equal(t, float64(2), body["current_version"])
		assert.Equal(t, float64(1), body["expected_version"])
		current := body["current_values"].(map[string]interface{})
		assert.Equal(t, "Widget v2", current["title"])
		assert.Equal(t, map[string]interface{}{"title": "Widget v3"}, body["submitted_values"])
	})

	t.Run("version below one", func(t *testing.T) {
		f := newFixture(t, Options{})

		rr := f.do(t, http.MethodPut, "/api/products/P1", `{"version":0,"title":"x"}`)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "version", decodeBody(t, rr)["field"])
	})

	t.Run("not found", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.products.EXPECT().Update(gomock.Any(), "missing", gomock.Any()).Return(nil, storage.ErrNotFound)

		rr := f.do(t, http.MethodPut, "/api/products/missing", `{"title":"x"}`)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestHandleGetProduct(t *testing.T) {
	f := newFixture(t, Options{})
	f.products.EXPECT().Get(gomock.Any(), "P1").Return(&storage.ProductDetails{
		Product:  *widget(2, "Widget v2"),
		Versions: []storage.ProductVersion{{Version: 2, Title: "Widget v2"}, {Version: 1, Title: "Widget"}},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/products/P1", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "P1"})
	rr := httptest.NewRecorder()

	f.server.handleGetProduct(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, "P1", body["product_id"])
	assert.Len(t, body["versions"], 2)
}

func TestHandleDeleteProduct(t *testing.T) {
	t.Run("confirms the deletion", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.products.EXPECT().Delete(gomock.Any(), "P1", "carol").Return(nil)

		rr := f.do(t, http.MethodDelete, "/api/products/P1", map[string]string{"deleted_by": "carol"})

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "Product deleted successfully", decodeBody(t, rr)["message"])
	})

	t.Run("empty body uses the system actor", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.products.EXPECT().Delete(gomock.Any(), "P1", storage.SystemActor).Return(nil)

		rr := f.do(t, http.MethodDelete, "/api/products/P1", nil)

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("missing", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.products.EXPECT().Delete(gomock.Any(), "P9", storage.SystemActor).Return(storage.ErrNotFound)

		rr := f.do(t, http.MethodDelete, "/api/products/P9", nil)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestHandleListVersions(t *testing.T) {
	t.Run("limit is forwarded", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.products.EXPECT().Versions(gomock.Any(), "P1", 5).Return([]storage.ProductVersion{{Version: 3}}, nil)

		rr := f.do(t, http.MethodGet, "/api/products/P1/versions?limit=5", nil)

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("bad limit", func(t *testing.T) {
		f := newFixture(t, Options{})

		rr := f.do(t, http.MethodGet, "/api/products/P1/versions?limit=zero", nil)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}
