package deltaclient

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/storage"
)

// Batch is one non-empty set of changes handed to the watcher callback.
type Batch struct {
	Products []storage.ProductChange
	Orders   []storage.OrderChange
	Audit    []storage.AuditEntry
	Cursor   int64
}

func (b Batch) Empty() bool {
	return len(b.Products) == 0 && len(b.Orders) == 0 && len(b.Audit) == 0
}

type WatcherConfig struct {
	Interval time.Duration
	// Cursor starts sequence mode after this seq. A negative value selects
	// timestamp mode starting now.
	Cursor int64
	Limit  int
}

// Watcher polls the change feed on an interval. In sequence mode it drains
// pages while has_more is set before sleeping again.
type Watcher struct {
	client   *Client
	cfg      WatcherConfig
	onBatch  func(Batch)
	logger   *zap.Logger
	timeNow  func() time.Time
	newRetry func() backoff.BackOff

	cursor int64
	since  time.Time
}

func NewWatcher(client *Client, cfg WatcherConfig, onBatch func(Batch), logger *zap.Logger) *Watcher {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	w := &Watcher{
		client:  client,
		cfg:     cfg,
		onBatch: onBatch,
		logger:  logger,
		timeNow: time.Now,
		cursor:  cfg.Cursor,
	}
	w.newRetry = func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 200 * time.Millisecond
		b.MaxInterval = w.cfg.Interval
		b.MaxElapsedTime = 0
		return b
	}
	return w
}

// Cursor is the last sequence number delivered.
func (w *Watcher) Cursor() int64 {
	return w.cursor
}

// Run polls immediately and then every interval until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	if w.cfg.Cursor < 0 {
		w.since = w.timeNow().UTC()
	}

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := w.pollWithRetry(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *Watcher) pollWithRetry(ctx context.Context) error {
	op := func() error {
		err := w.Poll(ctx)
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.Code >= http.StatusBadRequest && statusErr.Code < http.StatusInternalServerError {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		w.logger.Warn("watch: poll failed, retrying", zap.Duration("in", next), zap.Error(err))
	}
	return backoff.RetryNotify(op, backoff.WithContext(w.newRetry(), ctx), notify)
}

// Poll runs one poll cycle.
func (w *Watcher) Poll(ctx context.Context) error {
	if w.cfg.Cursor < 0 {
		changes, err := w.client.Since(ctx, w.since)
		if err != nil {
			return err
		}
		w.deliver(Batch{Products: changes.Products, Orders: changes.Orders, Audit: changes.Audit})
		w.since = changes.Timestamp
		return nil
	}

	for {
		changes, err := w.client.After(ctx, w.cursor, w.cfg.Limit)
		if err != nil {
			return err
		}
		w.cursor = changes.Cursor
		w.deliver(Batch{Products: changes.Products, Orders: changes.Orders, Audit: changes.Audit, Cursor: changes.Cursor})
		if !changes.HasMore {
			return nil
		}
	}
}

func (w *Watcher) deliver(b Batch) {
	if b.Empty() {
		return
	}
	w.onBatch(b)
}
