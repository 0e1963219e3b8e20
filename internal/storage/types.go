package storage

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/aarondl/null/v8"
)

type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCanceled   OrderStatus = "canceled"
	StatusRefunded   OrderStatus = "refunded"
)

var AllStatuses = []OrderStatus{
	StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCanceled, StatusRefunded,
}

func (s OrderStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

type AuditAction string

const (
	ActionCreate       AuditAction = "CREATE"
	ActionUpdate       AuditAction = "UPDATE"
	ActionDelete       AuditAction = "DELETE"
	ActionStatusUpdate AuditAction = "STATUS_UPDATE"
	ActionRefund       AuditAction = "REFUND"
)

const (
	TableProducts   = "products"
	TableOrders     = "orders"
	TableOrderItems = "order_items"
)

const SystemActor = "system"

// Product is a product joined with its inventory row.
type Product struct {
	ID           string       `json:"product_id"`
	Title        string       `json:"title"`
	Description  null.String  `json:"description"`
	WeightG      null.Float64 `json:"weight_g"`
	LengthCM     null.Float64 `json:"length_cm"`
	HeightCM     null.Float64 `json:"height_cm"`
	WidthCM      null.Float64 `json:"width_cm"`
	CategoryName null.String  `json:"category_name"`
	PhotosQty    int          `json:"photos_qty"`
	Version      int          `json:"version"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	AvailableQty null.Int     `json:"available_qty"`
	ReservedQty  null.Int     `json:"reserved_qty"`
	RestockDate  null.Time    `json:"restock_date"`
}

type ProductVersion struct {
	Version       int          `json:"version"`
	Title         string       `json:"title"`
	Description   null.String  `json:"description"`
	WeightG       null.Float64 `json:"weight_g"`
	LengthCM      null.Float64 `json:"length_cm"`
	HeightCM      null.Float64 `json:"height_cm"`
	WidthCM       null.Float64 `json:"width_cm"`
	CategoryName  null.String  `json:"category_name"`
	PhotosQty     int          `json:"photos_qty"`
	CreatedBy     string       `json:"created_by"`
	ChangeSummary string       `json:"change_summary"`
	CreatedAt     time.Time    `json:"created_at"`
}

type ProductDetails struct {
	Product
	Versions []ProductVersion `json:"versions"`
}

type NewProduct struct {
	ID           string
	Title        string
	Description  null.String
	WeightG      null.Float64
	LengthCM     null.Float64
	HeightCM     null.Float64
	WidthCM      null.Float64
	CategoryName null.String
	PhotosQty    int
	AvailableQty int
	Actor        string
}

// Optional distinguishes a field missing from a patch from one explicitly set.
// Null records an explicit JSON null; only fields backed by a null type may
// carry it.
type Optional[T any] struct {
	Value T
	Set   bool
	Null  bool
}

func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Set: true}
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	o.Null = bytes.Equal(bytes.TrimSpace(data), []byte("null"))
	return json.Unmarshal(data, &o.Value)
}

type ProductPatch struct {
	Title        Optional[string]       `json:"title"`
	Description  Optional[null.String]  `json:"description"`
	WeightG      Optional[null.Float64] `json:"weight_g"`
	LengthCM     Optional[null.Float64] `json:"length_cm"`
	HeightCM     Optional[null.Float64] `json:"height_cm"`
	WidthCM      Optional[null.Float64] `json:"width_cm"`
	CategoryName Optional[null.String]  `json:"category_name"`
	PhotosQty    Optional[int]          `json:"photos_qty"`
	AvailableQty Optional[int]          `json:"available_qty"`
}

// MarshalJSON emits only the fields that were set.
func (p ProductPatch) MarshalJSON() ([]byte, error) {
	fields := make(map[string]interface{})
	put := func(name string, set bool, v interface{}) {
		if set {
			fields[name] = v
		}
	}
	put("title", p.Title.Set, p.Title.Value)
	put("description", p.Description.Set, p.Description.Value)
	put("weight_g", p.WeightG.Set, p.WeightG.Value)
	put("length_cm", p.LengthCM.Set, p.LengthCM.Value)
	put("height_cm", p.HeightCM.Set, p.HeightCM.Value)
	put("width_cm", p.WidthCM.Set, p.WidthCM.Value)
	put("category_name", p.CategoryName.Set, p.CategoryName.Value)
	put("photos_qty", p.PhotosQty.Set, p.PhotosQty.Value)
	put("available_qty", p.AvailableQty.Set, p.AvailableQty.Value)
	return json.Marshal(fields)
}

type ProductUpdate struct {
	// ExpectedVersion nil means last writer wins.
	ExpectedVersion *int
	Patch           ProductPatch
	Actor           string
	ChangeSummary   string
}

type Order struct {
	ID                    string      `json:"order_id"`
	CustomerID            string      `json:"customer_id"`
	Status                OrderStatus `json:"status"`
	PurchaseTS            time.Time   `json:"purchase_ts"`
	ApprovedAt            null.Time   `json:"approved_at"`
	DeliveredCarrierDate  null.Time   `json:"delivered_carrier_date"`
	DeliveredCustomerDate null.Time   `json:"delivered_customer_date"`
	EstimatedDeliveryDate null.Time   `json:"estimated_delivery_date"`
	UpdatedAt             time.Time   `json:"updated_at"`
}

type OrderItem struct {
	OrderID      string  `json:"order_id"`
	ItemID       int     `json:"order_item_id"`
	ProductID    string  `json:"product_id"`
	Quantity     int     `json:"quantity"`
	UnitPrice    float64 `json:"unit_price"`
	FreightValue float64 `json:"freight_value"`
}

type ItemPatch struct {
	Quantity     Optional[int]     `json:"quantity"`
	UnitPrice    Optional[float64] `json:"unit_price"`
	FreightValue Optional[float64] `json:"freight_value"`
}

type StatusHistoryEntry struct {
	OldStatus null.String `json:"old_status"`
	NewStatus OrderStatus `json:"new_status"`
	ChangedBy string      `json:"changed_by"`
	Notes     null.String `json:"notes"`
	ChangedAt time.Time   `json:"changed_at"`
}

type OrderDetails struct {
	Order
	Items   []OrderItem          `json:"items"`
	History []StatusHistoryEntry `json:"status_history"`
}

type AuditEntry struct {
	Seq       int64           `json:"seq"`
	TableName string          `json:"table_name"`
	RecordID  string          `json:"record_id"`
	Action    AuditAction     `json:"action"`
	OldValues json.RawMessage `json:"old_values"`
	NewValues json.RawMessage `json:"new_values"`
	ChangedBy string          `json:"changed_by"`
	ChangedAt time.Time       `json:"changed_at"`
}

type AuditFilter struct {
	Table     string
	Since     time.Time
	Ascending bool
	Limit     int
}

type ProductChange struct {
	ID        string    `json:"product_id"`
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

type OrderChange struct {
	ID         string      `json:"order_id"`
	Status     OrderStatus `json:"status"`
	PurchaseTS time.Time   `json:"purchase_ts"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// ChangeSet groups what changed per category. Both poll modes nest it under
// "changes" on the wire.
type ChangeSet struct {
	Products []ProductChange `json:"products"`
	Orders   []OrderChange   `json:"orders"`
	Audit    []AuditEntry    `json:"audit"`
}

// Changes is the result of a timestamp poll.
type Changes struct {
	ChangeSet `json:"changes"`
	Timestamp time.Time `json:"timestamp"`
}

// SeqChanges is the result of a sequence poll. Cursor is the highest seq returned.
type SeqChanges struct {
	ChangeSet `json:"changes"`
	Cursor    int64 `json:"cursor"`
	HasMore   bool  `json:"has_more"`
}
