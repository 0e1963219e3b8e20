package storage

import (
	"context"
	"testing"
	"time"

	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/db"
	mock_database "gitlab.ozon.dev/pupkingeorgij/catalog/internal/db/mocks"
	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/repository"
	mock_storage "gitlab.ozon.dev/pupkingeorgij/catalog/internal/storage/mocks"
)

var fixedTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeCache struct {
	items map[string]*Product
	gen   uint64
}

func newFakeCache() *fakeCache {
	return &fakeCache{items: make(map[string]*Product)}
}

func (c *fakeCache) Get(id string) (*Product, bool) {
	p, ok := c.items[id]
	return p, ok
}

func (c *fakeCache) Generation() uint64 { return c.gen }

func (c *fakeCache) Set(p *Product, gen uint64) {
	if gen == c.gen {
		c.items[p.ID] = p
	}
}

func (c *fakeCache) Delete(id string) {
	c.gen++
	delete(c.items, id)
}

type fixture struct {
	db        *mock_database.MockDB
	tx        *mock_database.MockTx
	products  *mock_storage.MockProductRepository
	versions  *mock_storage.MockProductVersionRepository
	inventory *mock_storage.MockInventoryRepository
	auditRepo *mock_storage.MockAuditRepository
	outbox    *mock_storage.MockOutboxTaskRepository
	orders    *mock_storage.MockOrderRepository
	items     *mock_storage.MockOrderItemRepository
	history   *mock_storage.MockStatusHistoryRepository
	changes   *mock_storage.MockChangeRepository
	cache     *fakeCache

	// recorded collects every audit row appended through the fixture.
	recorded []*repository.AuditEntry
	nextSeq  int64
}

func newFixture(t *testing.T) *fixture {
	ctrl := gomock.NewController(t)
	return &fixture{
		db:        mock_database.NewMockDB(ctrl),
		tx:        mock_database.NewMockTx(ctrl),
		products:  mock_storage.NewMockProductRepository(ctrl),
		versions:  mock_storage.NewMockProductVersionRepository(ctrl),
		inventory: mock_storage.NewMockInventoryRepository(ctrl),
		auditRepo: mock_storage.NewMockAuditRepository(ctrl),
		outbox:    mock_storage.NewMockOutboxTaskRepository(ctrl),
		orders:    mock_storage.NewMockOrderRepository(ctrl),
		items:     mock_storage.NewMockOrderItemRepository(ctrl),
		history:   mock_storage.NewMockStatusHistoryRepository(ctrl),
		changes:   mock_storage.NewMockChangeRepository(ctrl),
		cache:     newFakeCache(),
		nextSeq:   100,
	}
}

func (f *fixture) auditLog(topic string) *AuditLog {
	a := NewAuditLog(f.auditRepo, f.outbox, topic, zap.NewNop())
	a.timeNow = func() time.Time { return fixedTime }
	return a
}

func (f *fixture) versionStore(policy Policy) *VersionStore {
	s := NewVersionStore(f.db, f.products, f.versions, f.inventory, f.auditLog(""), f.cache, policy, zap.NewNop())
	s.timeNow = func() time.Time { return fixedTime }
	s.newID = func() string { return "generated-id" }
	return s
}

func (f *fixture) orderMachine(policy Policy) *OrderMachine {
	m := NewOrderMachine(f.db, f.orders, f.items, f.history, f.inventory, f.auditLog(""), f.cache, policy, zap.NewNop())
	m.timeNow = func() time.Time { return fixedTime }
	return m
}

func (f *fixture) expectCommit() {
	f.db.EXPECT().BeginTx(gomock.Any()).Return(f.tx, nil)
	f.tx.EXPECT().Commit(gomock.Any()).Return(nil)
}

func (f *fixture) expectRollback() {
	f.db.EXPECT().BeginTx(gomock.Any()).Return(f.tx, nil)
	f.tx.EXPECT().Rollback(gomock.Any()).Return(nil)
}

// expectAudit accepts exactly n appends and assigns increasing seqs.
func (f *fixture) expectAudit(n int) {
	f.auditRepo.EXPECT().AppendTx(gomock.Any(), f.tx, gomock.Any()).
		Times(n).
		DoAndReturn(func(_ context.Context, _ db.Tx, e *repository.AuditEntry) error {
			f.nextSeq++
			e.Seq = f.nextSeq
			f.recorded = append(f.recorded, e)
			return nil
		})
}
