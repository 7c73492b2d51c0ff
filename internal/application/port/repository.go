package port

import (
	"context"
	"errors"

	"github.com/garyjia/invoice-matching/internal/domain/entity"
)

var (
	// ErrNotFound is returned by repositories when a row does not exist
	ErrNotFound = errors.New("record not found")

	// ErrVersionConflict is returned when an update lost an optimistic race
	ErrVersionConflict = errors.New("version conflict")
)

// MatchFilter narrows a match listing. Zero values mean no restriction.
type MatchFilter struct {
	FacilityID string
	Status     entity.MatchStatus
	SupplierID string
	// Query matches a substring of the invoice number or the PO number
	Query      string
	Limit      int
	Offset     int
}

// MatchRepository defines persistence operations for InvoiceMatch headers
type MatchRepository interface {
	Create(ctx context.Context, m *entity.InvoiceMatch) error
	GetByID(ctx context.Context, id string) (*entity.InvoiceMatch, error)
	// List returns matches ordered by creation time, newest first
	List(ctx context.Context, filter MatchFilter) ([]*entity.InvoiceMatch, error)
	// Update writes the header when the stored version equals m.Version and
	// bumps m.Version on success
	Update(ctx context.Context, m *entity.InvoiceMatch) error
	CountByFacility(ctx context.Context, facilityID string) (int, error)
}

// MatchItemRepository defines persistence operations for InvoiceMatchItem
type MatchItemRepository interface {
	CreateBatch(ctx context.Context, items []*entity.InvoiceMatchItem) error
	GetByID(ctx context.Context, id string) (*entity.InvoiceMatchItem, error)
	GetByMatchID(ctx context.Context, matchID string) ([]*entity.InvoiceMatchItem, error)
	Update(ctx context.Context, item *entity.InvoiceMatchItem) error
}

// PurchaseOrderRepository defines persistence operations for purchase orders
type PurchaseOrderRepository interface {
	Create(ctx context.Context, po *entity.PurchaseOrder) error
	GetByID(ctx context.Context, id string) (*entity.PurchaseOrder, error)
	List(ctx context.Context, facilityID string, limit, offset int) ([]*entity.PurchaseOrder, error)
}

// GoodsReceiptRepository defines persistence operations for goods receipts
type GoodsReceiptRepository interface {
	Create(ctx context.Context, grn *entity.GoodsReceipt) error
	GetByID(ctx context.Context, id string) (*entity.GoodsReceipt, error)
	GetByPurchaseOrderID(ctx context.Context, poID string) ([]*entity.GoodsReceipt, error)
}

// HistoryRepository defines persistence operations for MatchHistory
type HistoryRepository interface {
	Create(ctx context.Context, h *entity.MatchHistory) error
	GetByMatchID(ctx context.Context, matchID string) ([]*entity.MatchHistory, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
