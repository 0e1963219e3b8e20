package server

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/storage"
)

func TestHandleChanges(t *testing.T) {
	since := time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC)

	t.Run("timestamp poll", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.feed.EXPECT().
			Poll(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, got *time.Time) (*storage.Changes, error) {
				require.NotNil(t, got)
				assert.True(t, since.Equal(*got))
				return &storage.Changes{
					ChangeSet: storage.ChangeSet{
						Products: []storage.ProductChange{{ID: "P1", Version: 2}},
						Orders:   []storage.OrderChange{},
						Audit:    []storage.AuditEntry{},
					},
					Timestamp: since.Add(time.Hour),
				}, nil
			})

		rr := f.do(t, http.MethodGet, "/api/delta/changes?since=2025-06-01T11:00:00Z", nil)

		require.Equal(t, http.StatusOK, rr.Code)
		body := decodeBody(t, rr)
		changes, ok := body["changes"].(map[string]interface{})
		require.True(t, ok, "changes must be an object")
		assert.Len(t, changes["products"], 1)
		assert.Len(t, changes["orders"], 0)
		assert.NotContains(t, body, "products")
		assert.Equal(t, "2025-06-01T12:00:00Z", body["timestamp"])
	})

	t.Run("zone-less since is UTC", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.feed.EXPECT().
			Poll(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, got *time.Time) (*storage.Changes, error) {
				require.NotNil(t, got)
				assert.True(t, since.Equal(*got))
				return &storage.Changes{Timestamp: since}, nil
			})

		rr := f.do(t, http.MethodGet, "/api/delta/changes?since=2025-06-01T11:00:00.000000", nil)

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("no since means now", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.feed.EXPECT().Poll(gomock.Any(), gomock.Nil()).Return(&storage.Changes{}, nil)

		rr := f.do(t, http.MethodGet, "/api/delta/changes", nil)

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("bad since", func(t *testing.T) {
		f := newFixture(t, Options{})

		rr := f.do(t, http.MethodGet, "/api/delta/changes?since=yesterday", nil)

		require.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "since", decodeBody(t, rr)["field"])
	})

	t.Run("cursor poll", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.feed.EXPECT().PollSeq(gomock.Any(), int64(40), 2).Return(&storage.SeqChanges{
			ChangeSet: storage.ChangeSet{Audit: []storage.AuditEntry{{Seq: 41}, {Seq: 42}}},
			Cursor:    42,
			HasMore:   true,
		}, nil)

		rr := f.do(t, http.MethodGet, "/api/delta/changes?cursor=40&limit=2", nil)

		require.Equal(t, http.StatusOK, rr.Code)
		body := decodeBody(t, rr)
		assert.Len(t, body["changes"].(map[string]interface{})["audit"], 2)
		assert.Equal(t, float64(42), body["cursor"])
		assert.Equal(t, true, body["has_more"])
	})

	t.Run("negative cursor", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.feed.EXPECT().PollSeq(gomock.Any(), int64(-1), 0).
			Return(nil, &storage.ValidationError{Field: "cursor", Value: int64(-1), Reason: "must not be negative"})

		rr := f.do(t, http.MethodGet, "/api/delta/changes?cursor=-1", nil)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestHandleAudit(t *testing.T) {
	t.Run("filters forwarded", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.audit.EXPECT().Query(gomock.Any(), storage.AuditFilter{
			Table:     storage.TableProducts,
			Since:     time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			Ascending: true,
			Limit:     20,
		}).Return([]storage.AuditEntry{{Seq: 1, TableName: storage.TableProducts, Action: storage.ActionCreate}}, nil)

		rr := f.do(t, http.MethodGet, "/api/audit?table=products&since=2025-06-01T00:00:00Z&order=asc&limit=20", nil)

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("defaults and cap", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.audit.EXPECT().Query(gomock.Any(), storage.AuditFilter{Limit: maxAuditLimit}).Return(nil, nil)

		rr := f.do(t, http.MethodGet, "/api/audit?limit=5000", nil)

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("bad order", func(t *testing.T) {
		f := newFixture(t, Options{})

		rr := f.do(t, http.MethodGet, "/api/audit?order=sideways", nil)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}
