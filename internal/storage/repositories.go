//go:generate mockgen -source ./repositories.go -destination=./mocks/repositories.go -package=mock_storage
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/db"
	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/repository"
)

type ProductRepository interface {
	CreateTx(ctx context.Context, tx db.Tx, p *repository.Product) error
	GetByID(ctx context.Context, id string) (*repository.ProductWithInventory, error)
	GetByIDTx(ctx context.Context, tx db.Tx, id string) (*repository.ProductWithInventory, error)
	UpdateTx(ctx context.Context, tx db.Tx, p *repository.Product, expectedVersion int) error
	DeleteTx(ctx context.Context, tx db.Tx, id string) error
}

type ProductVersionRepository interface {
	CreateTx(ctx context.Context, tx db.Tx, v *repository.ProductVersion) error
	ListByProduct(ctx context.Context, productID string, limit int) ([]*repository.ProductVersion, error)
}

type InventoryRepository interface {
	CreateTx(ctx context.Context, tx db.Tx, inv *repository.Inventory) error
	SetAvailableTx(ctx context.Context, tx db.Tx, productID string, qty int) error
	ReleaseReservationTx(ctx context.Context, tx db.Tx, productID string, qty int) error
}

type AuditRepository interface {
	AppendTx(ctx context.Context, tx db.Tx, entry *repository.AuditEntry) error
	Query(ctx context.Context, q repository.AuditQuery) ([]*repository.AuditEntry, error)
	After(ctx context.Context, seq int64, limit int) ([]*repository.AuditEntry, error)
}

type OrderRepository interface {
	GetByID(ctx context.Context, id string) (*repository.Order, error)
	GetByIDTx(ctx context.Context, tx db.Tx, id string) (*repository.Order, error)
	UpdateStatusTx(ctx context.Context, tx db.Tx, id, status, milestone string, at time.Time) error
}

type OrderItemRepository interface {
	ListByOrder(ctx context.Context, orderID string) ([]*repository.OrderItem, error)
	ListByOrderTx(ctx context.Context, tx db.Tx, orderID string) ([]*repository.OrderItem, error)
	GetByIDTx(ctx context.Context, tx db.Tx, orderID string, itemID int) (*repository.OrderItem, error)
	UpdateTx(ctx context.Context, tx db.Tx, item *repository.OrderItem) error
}

type StatusHistoryRepository interface {
	CreateTx(ctx context.Context, tx db.Tx, entry *repository.StatusHistoryEntry) error
	GetByOrderID(ctx context.Context, orderID string) ([]*repository.StatusHistoryEntry, error)
}

type ChangeRepository interface {
	ProductsSince(ctx context.Context, since time.Time, limit int) ([]*repository.ProductChange, error)
	OrdersSince(ctx context.Context, since time.Time, limit int) ([]*repository.OrderChange, error)
	ProductsByIDs(ctx context.Context, ids []string) ([]*repository.ProductChange, error)
	OrdersByIDs(ctx context.Context, ids []string) ([]*repository.OrderChange, error)
}

type OutboxTaskRepository interface {
	CreateTx(ctx context.Context, tx db.Tx, task *repository.OutboxTask) error
	GetProcessableTasks(ctx context.Context, q db.Querier, limit, maxAttempts int) ([]*repository.OutboxTask, error)
	UpdateTaskStatus(ctx context.Context, q db.Querier, id uuid.UUID, status repository.TaskStatus, attempts int, lastError *string, completedAt *time.Time) error
}

type UserRepository interface {
	CreateUser(ctx context.Context, username, password string) error
	EnsureUser(ctx context.Context, username, password string) error
	ValidateUser(ctx context.Context, username, password string) (bool, error)
}
