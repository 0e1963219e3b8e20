package repository

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/aarondl/null/v8"
)

var (
	ErrObjectNotFound = errors.New("not found")
	ErrDuplicate      = errors.New("already exists")
	// ErrStaleVersion is returned when a version-guarded UPDATE matched no row.
	ErrStaleVersion = errors.New("stale version")
)

type Product struct {
	ID           string       `db:"product_id"`
	Title        string       `db:"title"`
	Description  null.String  `db:"description"`
	WeightG      null.Float64 `db:"weight_g"`
	LengthCM     null.Float64 `db:"length_cm"`
	HeightCM     null.Float64 `db:"height_cm"`
	WidthCM      null.Float64 `db:"width_cm"`
	CategoryName null.String  `db:"category_name"`
	PhotosQty    int          `db:"photos_qty"`
	Version      int          `db:"version"`
	CreatedAt    time.Time    `db:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at"`
}

// ProductWithInventory is a product row left-joined with its inventory row.
type ProductWithInventory struct {
	Product
	AvailableQty null.Int  `db:"available_qty"`
	ReservedQty  null.Int  `db:"reserved_qty"`
	RestockDate  null.Time `db:"restock_date"`
}

type ProductVersion struct {
	ID            int64        `db:"version_id"`
	ProductID     string       `db:"product_id"`
	Version       int          `db:"version"`
	Title         string       `db:"title"`
	Description   null.String  `db:"description"`
	WeightG       null.Float64 `db:"weight_g"`
	LengthCM      null.Float64 `db:"length_cm"`
	HeightCM      null.Float64 `db:"height_cm"`
	WidthCM       null.Float64 `db:"width_cm"`
	CategoryName  null.String  `db:"category_name"`
	PhotosQty     int          `db:"photos_qty"`
	CreatedBy     string       `db:"created_by"`
	ChangeSummary string       `db:"change_summary"`
	CreatedAt     time.Time    `db:"created_at"`
}

type Inventory struct {
	ProductID    string    `db:"product_id"`
	AvailableQty int       `db:"available_qty"`
	ReservedQty  int       `db:"reserved_qty"`
	RestockDate  null.Time `db:"restock_date"`
}

type AuditEntry struct {
	Seq       int64           `db:"seq"`
	TableName string          `db:"table_name"`
	RecordID  string          `db:"record_id"`
	Action    string          `db:"action"`
	OldValues json.RawMessage `db:"old_values"`
	NewValues json.RawMessage `db:"new_values"`
	ChangedBy string          `db:"changed_by"`
	ChangedAt time.Time       `db:"changed_at"`
}

type Order struct {
	ID                    string    `db:"order_id"`
	CustomerID            string    `db:"customer_id"`
	Status                string    `db:"status"`
	PurchaseTS            time.Time `db:"purchase_ts"`
	ApprovedAt            null.Time `db:"approved_at"`
	DeliveredCarrierDate  null.Time `db:"delivered_carrier_date"`
	DeliveredCustomerDate null.Time `db:"delivered_customer_date"`
	EstimatedDeliveryDate null.Time `db:"estimated_delivery_date"`
	UpdatedAt             time.Time `db:"updated_at"`
}

type OrderItem struct {
	OrderID      string  `db:"order_id"`
	ItemID       int     `db:"order_item_id"`
	ProductID    string  `db:"product_id"`
	Quantity     int     `db:"quantity"`
	UnitPrice    float64 `db:"unit_price"`
	FreightValue float64 `db:"freight_value"`
}

type StatusHistoryEntry struct {
	ID        int64       `db:"history_id"`
	OrderID   string      `db:"order_id"`
	OldStatus null.String `db:"old_status"`
	NewStatus string      `db:"new_status"`
	ChangedBy string      `db:"changed_by"`
	Notes     null.String `db:"notes"`
	ChangedAt time.Time   `db:"changed_at"`
}

// ProductChange and OrderChange are the slim rows returned by the change feed.
type ProductChange struct {
	ID        string    `db:"product_id"`
	Version   int       `db:"version"`
	UpdatedAt time.Time `db:"updated_at"`
}

type OrderChange struct {
	ID         string    `db:"order_id"`
	Status     string    `db:"status"`
	PurchaseTS time.Time `db:"purchase_ts"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// AuditQuery filters audit_log reads. Zero Since means from the beginning.
type AuditQuery struct {
	Table     string
	Since     time.Time
	Ascending bool
	Limit     int
}
