package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/storage"
)

func TestBasicAuth(t *testing.T) {
	t.Run("missing credentials", func(t *testing.T) {
		f := newFixture(t, Options{AuthEnabled: true})

		rr := f.do(t, http.MethodGet, "/api/products/P1", nil)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.NotEmpty(t, rr.Header().Get("WWW-Authenticate"))
	})

	t.Run("wrong password", func(t *testing.T) {
		f := newFixture(t, Options{AuthEnabled: true})
		f.users.EXPECT().ValidateUser(gomock.Any(), "admin", "nope").Return(false, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/products/P1", nil)
		req.SetBasicAuth("admin", "nope")
		rr := httptest.NewRecorder()
		f.handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("lookup failure", func(t *testing.T) {
		f := newFixture(t, Options{AuthEnabled: true})
		f.users.EXPECT().ValidateUser(gomock.Any(), "admin", "secret").Return(false, errors.New("db down"))

		req := httptest.NewRequest(http.MethodGet, "/api/products/P1", nil)
		req.SetBasicAuth("admin", "secret")
		rr := httptest.NewRecorder()
		f.handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("authenticated user wins over payload actor", func(t *testing.T) {
		f := newFixture(t, Options{AuthEnabled: true})
		f.users.EXPECT().ValidateUser(gomock.Any(), "admin", "secret").Return(true, nil)
		f.orders.EXPECT().Cancel(gomock.Any(), "O1", "admin", "").Return(&storage.Order{ID: "O1", Status: storage.StatusCanceled}, nil)

		req := httptest.NewRequest(http.MethodPost, "/api/orders/O1/cancel", nil)
		req.SetBasicAuth("admin", "secret")
		rr := httptest.NewRecorder()
		f.handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("health stays open", func(t *testing.T) {
		f := newFixture(t, Options{AuthEnabled: true})

		rr := f.do(t, http.MethodGet, "/healthz", nil)

		assert.Equal(t, http.StatusOK, rr.Code)
	})
}

func TestActorFrom(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, storage.SystemActor, actorFrom(ctx))
	assert.Equal(t, "bob", actorFrom(ctx, "", "bob"))
	assert.Equal(t, "alice", actorFrom(withActor(ctx, "alice"), "bob"))
}

func TestRequestLogMiddleware_FeedsAccessLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	accessLog := NewAccessLog(1, 10, 10*time.Millisecond, zap.New(core))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	accessLog.Start(ctx)

	f := newFixture(t, Options{AccessLog: accessLog})
	f.products.EXPECT().Get(gomock.Any(), "P1").Return(nil, storage.ErrNotFound)

	rr := f.do(t, http.MethodGet, "/api/products/P1", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)

	require.Eventually(t, func() bool { return logs.Len() == 1 }, time.Second, 5*time.Millisecond)
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "/api/products/{id}", fields["route"])
	assert.Equal(t, int64(http.StatusNotFound), fields["status"])
	assert.Equal(t, "P1", fields["record_id"])
}

func TestRequestLogMiddleware_ActorOnlyWhenValidated(t *testing.T) {
	cases := []struct {
		name  string
		auth  bool
		actor string
	}{
		{name: "auth disabled ignores the header", auth: false, actor: storage.SystemActor},
		{name: "validated user", auth: true, actor: "admin"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			core, logs := observer.New(zap.InfoLevel)
			accessLog := NewAccessLog(1, 10, 10*time.Millisecond, zap.New(core))
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			accessLog.Start(ctx)

			f := newFixture(t, Options{AuthEnabled: tc.auth, AccessLog: accessLog})
			if tc.auth {
				f.users.EXPECT().ValidateUser(gomock.Any(), "admin", "secret").Return(true, nil)
			}
			f.products.EXPECT().Get(gomock.Any(), "P1").Return(nil, storage.ErrNotFound)

			req := httptest.NewRequest(http.MethodGet, "/api/products/P1", nil)
			req.SetBasicAuth("admin", "secret")
			f.handler.ServeHTTP(httptest.NewRecorder(), req)

			require.Eventually(t, func() bool { return logs.Len() == 1 }, time.Second, 5*time.Millisecond)
			assert.Equal(t, tc.actor, logs.All()[0].ContextMap()["actor"])
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, Options{CORSOrigins: []string{"http://localhost:3000"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/products/P1", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)

	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
}
