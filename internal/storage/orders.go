package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aarondl/null/v8"
	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/db"
	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/metrics"
	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/repository"
)

const (
	defaultCancelNotes = "Order canceled"
	defaultRefundNotes = "Order refunded"
)

// OrderMachine applies status transitions to orders. Orders carry no version;
// concurrent writers are serialised by the row lock taken at the start of each
// transaction.
type OrderMachine struct {
	db        db.DB
	orders    OrderRepository
	items     OrderItemRepository
	history   StatusHistoryRepository
	inventory InventoryRepository
	audit     *AuditLog
	cache     ProductCache
	policy    Policy
	logger    *zap.Logger
	timeNow   func() time.Time
}

func NewOrderMachine(
	database db.DB,
	orders OrderRepository,
	items OrderItemRepository,
	history StatusHistoryRepository,
	inventory InventoryRepository,
	audit *AuditLog,
	cache ProductCache,
	policy Policy,
	logger *zap.Logger,
) *OrderMachine {
	return &OrderMachine{
		db:        database,
		orders:    orders,
		items:     items,
		history:   history,
		inventory: inventory,
		audit:     audit,
		cache:     cache,
		policy:    policy,
		logger:    logger,
		timeNow:   time.Now,
	}
}

// transition describes one status change. guard and compensate are optional.
// compensate returns the products whose stock it changed.
type transition struct {
	to           OrderStatus
	action       AuditAction
	defaultNotes string
	guard        func(from OrderStatus) error
	compensate   func(ctx context.Context, tx db.Tx, orderID string) ([]string, error)
}

func (m *OrderMachine) SetStatus(ctx context.Context, orderID string, status OrderStatus, actor, notes string) (*Order, error) {
	if !status.Valid() {
		return nil, invalid("status", status, "unknown order status")
	}
	if m.policy.RouteTerminal {
		switch status {
		case StatusCanceled:
			return m.Cancel(ctx, orderID, actor, notes)
		case StatusRefunded:
			return m.Refund(ctx, orderID, actor, notes)
		}
	}
	return m.apply(ctx, orderID, actor, notes, transition{to: status, action: ActionStatusUpdate})
}

// Cancel moves the order to canceled and returns every item's quantity from
// reserved to available stock.
func (m *OrderMachine) Cancel(ctx context.Context, orderID, actor, notes string) (*Order, error) {
	order, err := m.apply(ctx, orderID, actor, notes, transition{
		to:           StatusCanceled,
		action:       ActionStatusUpdate,
		defaultNotes: defaultCancelNotes,
		guard: func(from OrderStatus) error {
			if _, blocked := cancelBlocked[from]; blocked {
				return invalid("status", from, "order can no longer be canceled")
			}
			return nil
		},
		compensate: m.releaseReservations,
	})
	if err == nil {
		metrics.OrdersCanceledTotal.Inc()
	}
	return order, err
}

func (m *OrderMachine) Refund(ctx context.Context, orderID, actor, notes string) (*Order, error) {
	return m.apply(ctx, orderID, actor, notes, transition{
		to:           StatusRefunded,
		action:       ActionRefund,
		defaultNotes: defaultRefundNotes,
	})
}

func (m *OrderMachine) apply(ctx context.Context, orderID, actor, notes string, t transition) (*Order, error) {
	actor = actorOrSystem(actor)
	if notes == "" {
		notes = t.defaultNotes
	}
	now := m.timeNow().UTC()

	var (
		result  *Order
		from    OrderStatus
		touched []string
	)
	err := db.WithTx(ctx, m.db, func(tx db.Tx) error {
		row, err := m.orders.GetByIDTx(ctx, tx, orderID)
		if err != nil {
			if errors.Is(err, repository.ErrObjectNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to load order: %w", err)
		}
		from = OrderStatus(row.Status)

		if t.guard != nil {
			if err := t.guard(from); err != nil {
				return err
			}
		}
		if !m.policy.Transitions.Allows(from, t.to) {
			return invalid("status", t.to, fmt.Sprintf("transition from %s is not allowed", from))
		}
		if t.compensate != nil {
			touched, err = t.compensate(ctx, tx, orderID)
			if err != nil {
				return err
			}
		}

		milestone := milestoneColumn(t.to)
		if err := m.orders.UpdateStatusTx(ctx, tx, orderID, string(t.to), milestone, now); err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}

		entry := &repository.StatusHistoryEntry{
			OrderID:   orderID,
			OldStatus: null.StringFrom(string(from)),
			NewStatus: string(t.to),
			ChangedBy: actor,
			Notes:     null.NewString(notes, notes != ""),
			ChangedAt: now,
		}
		if err := m.history.CreateTx(ctx, tx, entry); err != nil {
			return fmt.Errorf("failed to write status history: %w", err)
		}

		_, err = m.audit.Record(ctx, tx, TableOrders, orderID, t.action,
			map[string]OrderStatus{"status": from},
			map[string]OrderStatus{"status": t.to},
			actor)
		if err != nil {
			return err
		}

		row.Status = string(t.to)
		row.UpdatedAt = now
		stampMilestone(row, milestone, now)
		result = toOrder(row)
		return nil
	})
	if err != nil {
		var verr *ValidationError
		if !errors.Is(err, ErrNotFound) && !errors.As(err, &verr) {
			m.logger.Error("order transition failed",
				zap.String("order_id", orderID),
				zap.String("to", string(t.to)),
				zap.Error(err))
			metrics.OperationErrorsTotal.WithLabelValues("order_transition").Inc()
		}
		return nil, err
	}

	for _, productID := range touched {
		m.cache.Delete(productID)
	}
	metrics.StatusTransitionsTotal.WithLabelValues(string(from), string(t.to)).Inc()
	return result, nil
}

// releaseReservations sums quantities per product so an order with several
// lines for one product releases the total in a single statement. Inventory
// rows are locked in product id order.
func (m *OrderMachine) releaseReservations(ctx context.Context, tx db.Tx, orderID string) ([]string, error) {
	items, err := m.items.ListByOrderTx(ctx, tx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}

	totals := make(map[string]int)
	var productIDs []string
	for _, item := range items {
		if _, seen := totals[item.ProductID]; !seen {
			productIDs = append(productIDs, item.ProductID)
		}
		totals[item.ProductID] += item.Quantity
	}
	sort.Strings(productIDs)

	for _, productID := range productIDs {
		if err := m.inventory.ReleaseReservationTx(ctx, tx, productID, totals[productID]); err != nil {
			return nil, fmt.Errorf("failed to restore inventory for product %s: %w", productID, err)
		}
	}
	return productIDs, nil
}

func (m *OrderMachine) UpdateItem(ctx context.Context, orderID string, itemID int, patch ItemPatch, actor string) (*OrderItem, error) {
	switch {
	case patch.Quantity.Null:
		return nil, invalid("quantity", nil, "must not be null")
	case patch.UnitPrice.Null:
		return nil, invalid("unit_price", nil, "must not be null")
	case patch.FreightValue.Null:
		return nil, invalid("freight_value", nil, "must not be null")
	}
	if patch.Quantity.Set && patch.Quantity.Value <= 0 {
		return nil, invalid("quantity", patch.Quantity.Value, "must be positive")
	}
	if patch.UnitPrice.Set && patch.UnitPrice.Value < 0 {
		return nil, invalid("unit_price", patch.UnitPrice.Value, "must not be negative")
	}
	if patch.FreightValue.Set && patch.FreightValue.Value < 0 {
		return nil, invalid("freight_value", patch.FreightValue.Value, "must not be negative")
	}

	var result *OrderItem
	err := db.WithTx(ctx, m.db, func(tx db.Tx) error {
		order, err := m.orders.GetByIDTx(ctx, tx, orderID)
		if err != nil {
			if errors.Is(err, repository.ErrObjectNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to load order: %w", err)
		}
		if m.policy.FreezeItems && OrderStatus(order.Status) != StatusPending {
			return invalid("status", order.Status, "items can only be edited while the order is pending")
		}

		item, err := m.items.GetByIDTx(ctx, tx, orderID, itemID)
		if err != nil {
			if errors.Is(err, repository.ErrObjectNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to load order item: %w", err)
		}
		before := toOrderItem(item)

		if patch.Quantity.Set {
			item.Quantity = patch.Quantity.Value
		}
		if patch.UnitPrice.Set {
			item.UnitPrice = patch.UnitPrice.Value
		}
		if patch.FreightValue.Set {
			item.FreightValue = patch.FreightValue.Value
		}
		if err := m.items.UpdateTx(ctx, tx, item); err != nil {
			return fmt.Errorf("failed to update order item: %w", err)
		}

		after := toOrderItem(item)
		recordID := fmt.Sprintf("%s/%d", orderID, itemID)
		if _, err := m.audit.Record(ctx, tx, TableOrderItems, recordID, ActionUpdate, before, after, actorOrSystem(actor)); err != nil {
			return err
		}
		result = after
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Get returns the order with its items and status history, newest first.
func (m *OrderMachine) Get(ctx context.Context, orderID string) (*OrderDetails, error) {
	row, err := m.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	items, err := m.items.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order items: %w", err)
	}
	history, err := m.history.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order history: %w", err)
	}

	details := &OrderDetails{
		Order:   *toOrder(row),
		Items:   make([]OrderItem, 0, len(items)),
		History: make([]StatusHistoryEntry, 0, len(history)),
	}
	for _, item := range items {
		details.Items = append(details.Items, *toOrderItem(item))
	}
	for _, h := range history {
		details.History = append(details.History, StatusHistoryEntry{
			OldStatus: h.OldStatus,
			NewStatus: OrderStatus(h.NewStatus),
			ChangedBy: h.ChangedBy,
			Notes:     h.Notes,
			ChangedAt: h.ChangedAt,
		})
	}
	return details, nil
}

func stampMilestone(o *repository.Order, column string, at time.Time) {
	switch column {
	case "approved_at":
		o.ApprovedAt = null.TimeFrom(at)
	case "delivered_carrier_date":
		o.DeliveredCarrierDate = null.TimeFrom(at)
	case "delivered_customer_date":
		o.DeliveredCustomerDate = null.TimeFrom(at)
	}
}

func toOrder(o *repository.Order) *Order {
	return &Order{
		ID:                    o.ID,
		CustomerID:            o.CustomerID,
		Status:                OrderStatus(o.Status),
		PurchaseTS:            o.PurchaseTS,
		ApprovedAt:            o.ApprovedAt,
		DeliveredCarrierDate:  o.DeliveredCarrierDate,
		DeliveredCustomerDate: o.DeliveredCustomerDate,
		EstimatedDeliveryDate: o.EstimatedDeliveryDate,
		UpdatedAt:             o.UpdatedAt,
	}
}

func toOrderItem(i *repository.OrderItem) *OrderItem {
	return &OrderItem{
		OrderID:      i.OrderID,
		ItemID:       i.ItemID,
		ProductID:    i.ProductID,
		Quantity:     i.Quantity,
		UnitPrice:    i.UnitPrice,
		FreightValue: i.FreightValue,
	}
}
