package deltaclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/storage"
)

func TestClient_After(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/delta/changes", r.URL.Path)
		assert.Equal(t, "7", r.URL.Query().Get("cursor"))
		assert.Equal(t, "25", r.URL.Query().Get("limit"))
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "admin", user)
		assert.Equal(t, "secret", pass)
		_ = json.NewEncoder(w).Encode(storage.SeqChanges{Cursor: 9, ChangeSet: storage.ChangeSet{Audit: []storage.AuditEntry{{Seq: 8}, {Seq: 9}}}})
	}))
	defer srv.Close()

	c := New(srv.URL+"/", WithBasicAuth("admin", "secret"))
	changes, err := c.After(context.Background(), 7, 25)

	require.NoError(t, err)
	assert.Equal(t, int64(9), changes.Cursor)
	assert.Len(t, changes.Audit, 2)
}

func TestClient_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Since(context.Background(), time.Now())

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.Code)
}

func TestWatcher_DrainsPages(t *testing.T) {
	pages := map[string]storage.SeqChanges{
		"0": {
			ChangeSet: storage.ChangeSet{
				Audit:    []storage.AuditEntry{{Seq: 1}, {Seq: 2}},
				Products: []storage.ProductChange{{ID: "P1", Version: 2}},
			},
			Cursor:  2,
			HasMore: true,
		},
		"2": {
			ChangeSet: storage.ChangeSet{
				Audit:  []storage.AuditEntry{{Seq: 3}},
				Orders: []storage.OrderChange{{ID: "O1", Status: storage.StatusCanceled}},
			},
			Cursor: 3,
		},
		"3": {Cursor: 3},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, ok := pages[r.URL.Query().Get("cursor")]
		if !assert.True(t, ok) {
			http.Error(w, "unexpected cursor", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(page)
	}))
	defer srv.Close()

	var batches []Batch
	w := NewWatcher(New(srv.URL), WatcherConfig{Interval: time.Hour, Limit: 2}, func(b Batch) {
		batches = append(batches, b)
	}, zap.NewNop())

	require.NoError(t, w.Poll(context.Background()))
	require.NoError(t, w.Poll(context.Background()))

	require.Len(t, batches, 2)
	assert.Equal(t, int64(2), batches[0].Cursor)
	assert.Equal(t, "O1", batches[1].Orders[0].ID)
	assert.Equal(t, int64(3), w.Cursor())
}

func TestWatcher_TimestampMode(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	next := start.Add(5 * time.Second)

	var (
		mu   sync.Mutex
		seen []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.URL.Query().Get("since"))
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(storage.Changes{Timestamp: next})
	}))
	defer srv.Close()

	w := NewWatcher(New(srv.URL), WatcherConfig{Interval: time.Hour, Cursor: -1}, func(Batch) {
		t.Error("empty polls must not be delivered")
	}, zap.NewNop())
	w.since = start

	require.NoError(t, w.Poll(context.Background()))
	require.NoError(t, w.Poll(context.Background()))

	assert.Equal(t, []string{"2025-06-01T12:00:00Z", "2025-06-01T12:00:05Z"}, seen)
}

func TestWatcher_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(storage.SeqChanges{ChangeSet: storage.ChangeSet{Audit: []storage.AuditEntry{{Seq: 1}}}, Cursor: 1})
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	delivered := make(chan Batch, 1)
	w := NewWatcher(New(srv.URL), WatcherConfig{Interval: time.Hour}, func(b Batch) {
		delivered <- b
		cancel()
	}, zap.NewNop())

	require.NoError(t, w.Run(ctx))

	b := <-delivered
	assert.Equal(t, int64(1), b.Cursor)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestWatcher_StopsOnClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad cursor", http.StatusBadRequest)
	}))
	defer srv.Close()

	w := NewWatcher(New(srv.URL), WatcherConfig{Interval: time.Hour}, func(Batch) {}, zap.NewNop())
	err := w.Run(context.Background())

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.Code)
}
