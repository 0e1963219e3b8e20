//go:generate mockgen -source ./server.go -destination=./mocks/server.go -package=mock_server
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/storage"
)

type ProductService interface {
	Create(ctx context.Context, in storage.NewProduct) (*storage.Product, error)
	Update(ctx context.Context, id string, upd storage.ProductUpdate) (*storage.Product, error)
	Delete(ctx context.Context, id, actor string) error
	Get(ctx context.Context, id string) (*storage.ProductDetails, error)
	Versions(ctx context.Context, id string, limit int) ([]storage.ProductVersion, error)
}

type OrderService interface {
	Get(ctx context.Context, orderID string) (*storage.OrderDetails, error)
	SetStatus(ctx context.Context, orderID string, status storage.OrderStatus, actor, notes string) (*storage.Order, error)
	Cancel(ctx context.Context, orderID, actor, notes string) (*storage.Order, error)
	Refund(ctx context.Context, orderID, actor, notes string) (*storage.Order, error)
	UpdateItem(ctx context.Context, orderID string, itemID int, patch storage.ItemPatch, actor string) (*storage.OrderItem, error)
}

type ChangeFeed interface {
	Poll(ctx context.Context, since *time.Time) (*storage.Changes, error)
	PollSeq(ctx context.Context, after int64, limit int) (*storage.SeqChanges, error)
}

type AuditReader interface {
	Query(ctx context.Context, filter storage.AuditFilter) ([]storage.AuditEntry, error)
}

type UserRepo interface {
	ValidateUser(ctx context.Context, username, password string) (bool, error)
}

type Options struct {
	// AuthEnabled puts /api behind basic auth against the users table.
	AuthEnabled bool
	CORSOrigins []string
	// AccessLog batches request log lines; nil logs nothing per request.
	AccessLog *AccessLog
}

type Server struct {
	products ProductService
	orders   OrderService
	feed     ChangeFeed
	audit    AuditReader
	userRepo UserRepo
	opts     Options
	logger   *zap.Logger
	validate *validator.Validate
	server   *http.Server
}

func New(products ProductService, orders OrderService, feed ChangeFeed, audit AuditReader, userRepo UserRepo, opts Options, logger *zap.Logger) *Server {
	return &Server{
		products: products,
		orders:   orders,
		feed:     feed,
		audit:    audit,
		userRepo: userRepo,
		opts:     opts,
		logger:   logger,
		validate: newValidator(),
	}
}

// Run serves on lis until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, lis net.Listener) error {
	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	if s.opts.AccessLog != nil {
		s.opts.AccessLog.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http: server listening", zap.String("addr", lis.Addr().String()))
		errCh <- s.server.Serve(lis)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http: shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	if s.opts.AccessLog != nil {
		s.opts.AccessLog.Shutdown(ctx)
	}
	s.logger.Info("http: shutdown completed")
	return nil
}

func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(s.requestLogMiddleware)

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	if s.opts.AuthEnabled {
		api.Use(s.basicAuthMiddleware)
	}

	api.HandleFunc("/products", s.handleCreateProduct).Methods(http.MethodPost)
	api.HandleFunc("/products/{id}", s.handleGetProduct).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}", s.handleUpdateProduct).Methods(http.MethodPut)
	api.HandleFunc("/products/{id}", s.handleDeleteProduct).Methods(http.MethodDelete)
	api.HandleFunc("/products/{id}/versions", s.handleListVersions).Methods(http.MethodGet)

	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}/status", s.handleUpdateOrderStatus).Methods(http.MethodPut)
	api.HandleFunc("/orders/{id}/items/{itemID}", s.handleUpdateOrderItem).Methods(http.MethodPut)
	api.HandleFunc("/orders/{id}/cancel", s.handleCancelOrder).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/refund", s.handleRefundOrder).Methods(http.MethodPost)

	api.HandleFunc("/delta/changes", s.handleChanges).Methods(http.MethodGet)
	api.HandleFunc("/audit", s.handleAudit).Methods(http.MethodGet)

	origins := s.opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(router)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
