package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	mock_server "gitlab.ozon.dev/pupkingeorgij/catalog/internal/server/mocks"
)

type fixture struct {
	products *mock_server.MockProductService
	orders   *mock_server.MockOrderService
	feed     *mock_server.MockChangeFeed
	audit    *mock_server.MockAuditReader
	users    *mock_server.MockUserRepo
	server   *Server
	handler  http.Handler
}

func newFixture(t *testing.T, opts Options) *fixture {
	ctrl := gomock.NewController(t)
	f := &fixture{
		products: mock_server.NewMockProductService(ctrl),
		orders:   mock_server.NewMockOrderService(ctrl),
		feed:     mock_server.NewMockChangeFeed(ctrl),
		audit:    mock_server.NewMockAuditReader(ctrl),
		users:    mock_server.NewMockUserRepo(ctrl),
	}
	f.server = New(f.products, f.orders, f.feed, f.audit, f.users, opts, zap.NewNop())
	f.handler = f.server.Handler()
	return f
}

func (f *fixture) do(t *testing.T, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}
