package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/metrics"
	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/repository"
)

const (
	PollLimit       = 50
	MaxSeqPollLimit = 500
)

// ChangeFeed answers delta polls. It never writes.
type ChangeFeed struct {
	changes ChangeRepository
	audit   AuditRepository
	logger  *zap.Logger
	timeNow func() time.Time
}

func NewChangeFeed(changes ChangeRepository, audit AuditRepository, logger *zap.Logger) *ChangeFeed {
	return &ChangeFeed{
		changes: changes,
		audit:   audit,
		logger:  logger,
		timeNow: time.Now,
	}
}

// Poll returns up to PollLimit changes per category newer than since. A nil
// since means now. Anything beyond the cap is dropped; use PollSeq to page.
func (f *ChangeFeed) Poll(ctx context.Context, since *time.Time) (*Changes, error) {
	now := f.timeNow().UTC()
	from := now
	if since != nil {
		from = since.UTC()
	}

	var (
		products []*repository.ProductChange
		orders   []*repository.OrderChange
		audit    []*repository.AuditEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		products, err = f.changes.ProductsSince(gctx, from, PollLimit)
		if err != nil {
			return fmt.Errorf("failed to poll products: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		orders, err = f.changes.OrdersSince(gctx, from, PollLimit)
		if err != nil {
			return fmt.Errorf("failed to poll orders: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		audit, err = f.audit.Query(gctx, repository.AuditQuery{Since: from, Limit: PollLimit})
		if err != nil {
			return fmt.Errorf("failed to poll audit log: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		f.logger.Error("change feed poll failed", zap.Time("since", from), zap.Error(err))
		metrics.OperationErrorsTotal.WithLabelValues("poll").Inc()
		return nil, err
	}

	metrics.FeedPollsTotal.WithLabelValues("timestamp").Inc()
	return &Changes{
		ChangeSet: ChangeSet{
			Products: toProductChanges(products),
			Orders:   toOrderChanges(orders),
			Audit:    toAuditEntries(audit),
		},
		Timestamp: now,
	}, nil
}

// PollSeq pages through the audit sequence after the given cursor and
// returns the current state of every product and order those entries touch.
func (f *ChangeFeed) PollSeq(ctx context.Context, after int64, limit int) (*SeqChanges, error) {
	if after < 0 {
		return nil, invalid("cursor", after, "must not be negative")
	}
	if limit <= 0 {
		limit = PollLimit
	}
	if limit > MaxSeqPollLimit {
		limit = MaxSeqPollLimit
	}

	rows, err := f.audit.After(ctx, after, limit+1)
	if err != nil {
		f.logger.Error("sequence poll failed", zap.Int64("cursor", after), zap.Error(err))
		metrics.OperationErrorsTotal.WithLabelValues("poll").Inc()
		return nil, fmt.Errorf("failed to read audit sequence: %w", err)
	}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}
	cursor := after
	if len(rows) > 0 {
		cursor = rows[len(rows)-1].Seq
	}

	productIDs, orderIDs := touchedRecords(rows)

	var (
		products []*repository.ProductChange
		orders   []*repository.OrderChange
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		products, err = f.changes.ProductsByIDs(gctx, productIDs)
		return err
	})
	g.Go(func() error {
		var err error
		orders, err = f.changes.OrdersByIDs(gctx, orderIDs)
		return err
	})
	if err := g.Wait(); err != nil {
		f.logger.Error("sequence poll failed", zap.Int64("cursor", after), zap.Error(err))
		return nil, fmt.Errorf("failed to load changed records: %w", err)
	}

	metrics.FeedPollsTotal.WithLabelValues("sequence").Inc()
	return &SeqChanges{
		ChangeSet: ChangeSet{
			Products: toProductChanges(products),
			Orders:   toOrderChanges(orders),
			Audit:    toAuditEntries(rows),
		},
		Cursor:  cursor,
		HasMore: hasMore,
	}, nil
}

// touchedRecords collects distinct product and order ids. Item entries are
// keyed "order/item" and count as a change to their order.
func touchedRecords(rows []*repository.AuditEntry) (productIDs, orderIDs []string) {
	seenProducts := make(map[string]struct{})
	seenOrders := make(map[string]struct{})
	for _, r := range rows {
		switch r.TableName {
		case TableProducts:
			if _, ok := seenProducts[r.RecordID]; !ok {
				seenProducts[r.RecordID] = struct{}{}
				productIDs = append(productIDs, r.RecordID)
			}
		case TableOrders, TableOrderItems:
			id := r.RecordID
			if r.TableName == TableOrderItems {
				id, _, _ = strings.Cut(id, "/")
			}
			if _, ok := seenOrders[id]; !ok {
				seenOrders[id] = struct{}{}
				orderIDs = append(orderIDs, id)
			}
		}
	}
	return productIDs, orderIDs
}

func toProductChanges(rows []*repository.ProductChange) []ProductChange {
	out := make([]ProductChange, 0, len(rows))
	for _, r := range rows {
		out = append(out, ProductChange{ID: r.ID, Version: r.Version, UpdatedAt: r.UpdatedAt})
	}
	return out
}

func toOrderChanges(rows []*repository.OrderChange) []OrderChange {
	out := make([]OrderChange, 0, len(rows))
	for _, r := range rows {
		out = append(out, OrderChange{ID: r.ID, Status: OrderStatus(r.Status), PurchaseTS: r.PurchaseTS, UpdatedAt: r.UpdatedAt})
	}
	return out
}
