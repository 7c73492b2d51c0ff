package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/invoice-matching/internal/application/dispatcher"
	"github.com/garyjia/invoice-matching/internal/application/port"
	"github.com/garyjia/invoice-matching/internal/domain/entity"
	"github.com/garyjia/invoice-matching/internal/domain/event"
)

// memStore backs every repository mock so a test sees what the service wrote.
// Entities are copied on the way in and out like a real database would.
type memStore struct {
	mu       sync.Mutex
	matches  map[string]*entity.InvoiceMatch
	items    map[string]*entity.InvoiceMatchItem
	orders   map[string]*entity.PurchaseOrder
	receipts map[string]*entity.GoodsReceipt
	history  []*entity.MatchHistory
}

func newMemStore() *memStore {
	return &memStore{
		matches:  map[string]*entity.InvoiceMatch{},
		items:    map[string]*entity.InvoiceMatchItem{},
		orders:   map[string]*entity.PurchaseOrder{},
		receipts: map[string]*entity.GoodsReceipt{},
	}
}

type storeSnapshot struct {
	matches map[string]entity.InvoiceMatch
	items   map[string]entity.InvoiceMatchItem
	history int
}

func (s *memStore) snapshot() storeSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := storeSnapshot{
		matches: make(map[string]entity.InvoiceMatch, len(s.matches)),
		items:   make(map[string]entity.InvoiceMatchItem, len(s.items)),
		history: len(s.history),
	}
	for id, m := range s.matches {
		snap.matches[id] = *m
	}
	for id, it := range s.items {
		snap.items[id] = *it
	}
	return snap
}

func (s *memStore) restore(snap storeSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches = make(map[string]*entity.InvoiceMatch, len(snap.matches))
	for id, m := range snap.matches {
		m := m
		s.matches[id] = &m
	}
	s.items = make(map[string]*entity.InvoiceMatchItem, len(snap.items))
	for id, it := range snap.items {
		it := it
		s.items[id] = &it
	}
	s.history = s.history[:snap.history]
}

func (s *memStore) match(id string) *entity.InvoiceMatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok {
		return nil
	}
	cp := *m
	return &cp
}

func (s *memStore) historyFor(matchID string) []*entity.MatchHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.MatchHistory
	for _, h := range s.history {
		if h.MatchID == matchID {
			out = append(out, h)
		}
	}
	return out
}

// mockMatchRepo implements port.MatchRepository
type mockMatchRepo struct {
	store      *memStore
	updateFunc func(ctx context.Context, m *entity.InvoiceMatch) error
}

func (r *mockMatchRepo) Create(ctx context.Context, m *entity.InvoiceMatch) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *m
	cp.Items = nil
	r.store.matches[m.ID] = &cp
	return nil
}

func (r *mockMatchRepo) GetByID(ctx context.Context, id string) (*entity.InvoiceMatch, error) {
	if m := r.store.match(id); m != nil {
		m.Items = nil
		return m, nil
	}
	return nil, port.ErrNotFound
}

func (r *mockMatchRepo) List(ctx context.Context, filter port.MatchFilter) ([]*entity.InvoiceMatch, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*entity.InvoiceMatch
	for _, m := range r.store.matches {
		if filter.FacilityID != "" && m.FacilityID != filter.FacilityID {
			continue
		}
		if filter.Status != "" && m.Status != filter.Status {
			continue
		}
		if filter.SupplierID != "" && m.SupplierID != filter.SupplierID {
			continue
		}
		if filter.Query != "" && !r.store.matchesQuery(m, filter.Query) {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// matchesQuery is a case-insensitive substring search over the invoice
// number and PO number. Callers hold s.mu.
func (s *memStore) matchesQuery(m *entity.InvoiceMatch, q string) bool {
	q = strings.ToLower(q)
	if strings.Contains(strings.ToLower(m.InvoiceNumber), q) {
		return true
	}
	po, ok := s.orders[m.PurchaseOrderID]
	return ok && strings.Contains(strings.ToLower(po.PONumber), q)
}

func (r *mockMatchRepo) Update(ctx context.Context, m *entity.InvoiceMatch) error {
	if r.updateFunc != nil {
		if err := r.updateFunc(ctx, m); err != nil {
			return err
		}
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	stored, ok := r.store.matches[m.ID]
	if !ok {
		return port.ErrNotFound
	}
	if stored.Version != m.Version {
		return port.ErrVersionConflict
	}
	m.Version++
	cp := *m
	cp.Items = nil
	r.store.matches[m.ID] = &cp
	return nil
}

func (r *mockMatchRepo) CountByFacility(ctx context.Context, facilityID string) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	n := 0
	for _, m := range r.store.matches {
		if m.FacilityID == facilityID {
			n++
		}
	}
	return n, nil
}

// mockItemRepo implements port.MatchItemRepository
type mockItemRepo struct {
	store      *memStore
	updateFunc func(ctx context.Context, item *entity.InvoiceMatchItem) error
}

func (r *mockItemRepo) CreateBatch(ctx context.Context, items []*entity.InvoiceMatchItem) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, it := range items {
		cp := *it
		r.store.items[it.ID] = &cp
	}
	return nil
}

func (r *mockItemRepo) GetByID(ctx context.Context, id string) (*entity.InvoiceMatchItem, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	it, ok := r.store.items[id]
	if !ok {
		return nil, port.ErrNotFound
	}
	cp := *it
	return &cp, nil
}

func (r *mockItemRepo) GetByMatchID(ctx context.Context, matchID string) ([]*entity.InvoiceMatchItem, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*entity.InvoiceMatchItem
	for _, it := range r.store.items {
		if it.MatchID == matchID {
			cp := *it
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LineCode < out[j].LineCode })
	return out, nil
}

func (r *mockItemRepo) Update(ctx context.Context, item *entity.InvoiceMatchItem) error {
	if r.updateFunc != nil {
		if err := r.updateFunc(ctx, item); err != nil {
			return err
		}
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *item
	r.store.items[item.ID] = &cp
	return nil
}

// mockOrderRepo implements port.PurchaseOrderRepository
type mockOrderRepo struct {
	store *memStore
}

func (r *mockOrderRepo) Create(ctx context.Context, po *entity.PurchaseOrder) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.orders[po.ID] = po
	return nil
}

func (r *mockOrderRepo) GetByID(ctx context.Context, id string) (*entity.PurchaseOrder, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	po, ok := r.store.orders[id]
	if !ok {
		return nil, port.ErrNotFound
	}
	return po, nil
}

func (r *mockOrderRepo) List(ctx context.Context, facilityID string, limit, offset int) ([]*entity.PurchaseOrder, error) {
	return nil, nil
}

// mockReceiptRepo implements port.GoodsReceiptRepository
type mockReceiptRepo struct {
	store *memStore
}

func (r *mockReceiptRepo) Create(ctx context.Context, grn *entity.GoodsReceipt) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.receipts[grn.ID] = grn
	return nil
}

func (r *mockReceiptRepo) GetByID(ctx context.Context, id string) (*entity.GoodsReceipt, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	grn, ok := r.store.receipts[id]
	if !ok {
		return nil, port.ErrNotFound
	}
	return grn, nil
}

func (r *mockReceiptRepo) GetByPurchaseOrderID(ctx context.Context, poID string) ([]*entity.GoodsReceipt, error) {
	return nil, nil
}

// mockHistoryRepo implements port.HistoryRepository
type mockHistoryRepo struct {
	store      *memStore
	createFunc func(ctx context.Context, h *entity.MatchHistory) error
}

func (r *mockHistoryRepo) Create(ctx context.Context, h *entity.MatchHistory) error {
	if r.createFunc != nil {
		if err := r.createFunc(ctx, h); err != nil {
			return err
		}
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	h.ID = int64(len(r.store.history) + 1)
	r.store.history = append(r.store.history, h)
	return nil
}

func (r *mockHistoryRepo) GetByMatchID(ctx context.Context, matchID string) ([]*entity.MatchHistory, error) {
	return r.store.historyFor(matchID), nil
}

// mockTxManager rolls the store back when fn fails
type mockTxManager struct {
	store *memStore
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	snap := m.store.snapshot()
	if err := fn(ctx); err != nil {
		m.store.restore(snap)
		return err
	}
	return nil
}

// mockLocker serialises by key
type mockLocker struct {
	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	acquired int
}

func (l *mockLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = map[string]*sync.Mutex{}
	}
	km, ok := l.locks[key]
	if !ok {
		km = &sync.Mutex{}
		l.locks[key] = km
	}
	l.acquired++
	l.mu.Unlock()

	km.Lock()
	return km.Unlock, nil
}

type mockLogger struct {
	mu    sync.Mutex
	warns []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {}
func (m *mockLogger) Warn(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warns = append(m.warns, msg)
}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

func (m *mockLogger) warned(msg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.warns {
		if w == msg {
			return true
		}
	}
	return false
}

// fixture wires the matching service to an in-memory store
type fixture struct {
	store      *memStore
	matches    *mockMatchRepo
	items      *mockItemRepo
	history    *mockHistoryRepo
	locker     *mockLocker
	logger     *mockLogger
	dispatcher dispatcher.Dispatcher
	svc        *matchingServiceImpl
}

var fixedNow = time.Date(2024, time.March, 14, 9, 30, 0, 0, time.UTC)

func newFixture() *fixture {
	store := newMemStore()
	f := &fixture{
		store:      store,
		matches:    &mockMatchRepo{store: store},
		items:      &mockItemRepo{store: store},
		history:    &mockHistoryRepo{store: store},
		locker:     &mockLocker{},
		logger:     &mockLogger{},
		dispatcher: dispatcher.NewDispatcher(),
	}

	f.dispatcher.SubscribeNamed(event.TypeMatchCreated, "history_recorder", NewHistoryRecorder(f.history).Handle)
	f.dispatcher.SubscribeNamed(event.TypeStatusChanged, "history_recorder", NewHistoryRecorder(f.history).Handle)
	f.dispatcher.SubscribeNamed(event.TypeVarianceResolved, "history_recorder", NewHistoryRecorder(f.history).Handle)
	f.dispatcher.SubscribeNamed(event.TypeIntegrityWarning, "integrity_logger", NewIntegrityLogger(f.logger).Handle)

	svc := NewMatchingService(MatchingDeps{
		Matches:    f.matches,
		Items:      f.items,
		Orders:     &mockOrderRepo{store: store},
		Receipts:   &mockReceiptRepo{store: store},
		History:    f.history,
		TxManager:  &mockTxManager{store: store},
		Locker:     f.locker,
		Dispatcher: f.dispatcher,
		Logger:     f.logger,
	}).(*matchingServiceImpl)
	svc.now = func() time.Time { return fixedNow }
	f.svc = svc

	f.seedProcurement()
	return f
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// seedProcurement registers po-1 (total 2235.00) and grn-1, which is five
// gauze short and fifty syringes short.
func (f *fixture) seedProcurement() {
	f.store.orders["po-1"] = &entity.PurchaseOrder{
		ID: "po-1", PONumber: "PO-0001", FacilityID: "fac-1", SupplierID: "sup-1",
		Lines: []*entity.PurchaseOrderLine{
			{ID: "pol-1", PurchaseOrderID: "po-1", LineCode: "L1", ItemName: "Paracetamol 500mg", QuantityOrdered: dec("100"), UnitPrice: dec("14.50")},
			{ID: "pol-2", PurchaseOrderID: "po-1", LineCode: "L2", ItemName: "Gauze swab", QuantityOrdered: dec("500"), UnitPrice: dec("0.45")},
			{ID: "pol-3", PurchaseOrderID: "po-1", LineCode: "L3", ItemName: "Syringe 5ml", QuantityOrdered: dec("200"), UnitPrice: dec("2.80")},
		},
	}
	f.store.orders["po-2"] = &entity.PurchaseOrder{
		ID: "po-2", PONumber: "PO-0002", FacilityID: "fac-2", SupplierID: "sup-2",
		Lines: []*entity.PurchaseOrderLine{
			{ID: "pol-9", PurchaseOrderID: "po-2", LineCode: "L1", ItemName: "Gloves", QuantityOrdered: dec("10"), UnitPrice: dec("5")},
		},
	}
	f.store.receipts["grn-1"] = &entity.GoodsReceipt{
		ID: "grn-1", GRNNumber: "GRN-0001", PurchaseOrderID: "po-1", FacilityID: "fac-1",
		Lines: []*entity.GoodsReceiptLine{
			{ID: "grl-1", GoodsReceiptID: "grn-1", LineCode: "L1", QuantityReceived: dec("100"), UnitCost: dec("14.50")},
			{ID: "grl-2", GoodsReceiptID: "grn-1", LineCode: "L2", QuantityReceived: dec("495"), UnitCost: dec("0.45")},
			{ID: "grl-3", GoodsReceiptID: "grn-1", LineCode: "L3", QuantityReceived: dec("150"), UnitCost: dec("2.80")},
		},
	}
	f.store.receipts["grn-2"] = &entity.GoodsReceipt{
		ID: "grn-2", GRNNumber: "GRN-0002", PurchaseOrderID: "po-2", FacilityID: "fac-2",
	}
}

var clerk = Actor{UserID: "user-clerk", FacilityID: "fac-1"}
var manager = Actor{UserID: "user-manager", FacilityID: "fac-1"}

// cleanInput invoices exactly what po-1 ordered with no GRN
func cleanInput() CreateMatchInput {
	return CreateMatchInput{
		FacilityID:      "fac-1",
		PurchaseOrderID: "po-1",
		InvoiceNumber:   "SUP-INV-100",
		InvoiceDate:     time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC),
		InvoiceAmount:   dec("2235.00"),
		Items: []CreateMatchItemInput{
			{LineCode: "L1", InvoiceQuantity: dec("100"), InvoiceUnitPrice: dec("14.50")},
			{LineCode: "L2", InvoiceQuantity: dec("500"), InvoiceUnitPrice: dec("0.45")},
			{LineCode: "L3", InvoiceQuantity: dec("200"), InvoiceUnitPrice: dec("2.80")},
		},
	}
}
