package service

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/invoice-matching/internal/domain/entity"
)

// Actor is who performs an operation and in which facility. An empty
// FacilityID on read operations means all facilities.
type Actor struct {
	UserID     string
	FacilityID string
}

// CreateMatchItemInput is one invoice line. PO and GRN figures are looked
// up from the referenced documents by LineCode.
type CreateMatchItemInput struct {
	LineCode         string          `json:"lineCode" validate:"required"`
	ItemName         string          `json:"itemName"`
	InvoiceQuantity  decimal.Decimal `json:"invoiceQuantity" validate:"dnonneg"`
	InvoiceUnitPrice decimal.Decimal `json:"invoiceUnitPrice" validate:"dnonneg"`
}

// CreateMatchInput is the payload for creating a match
type CreateMatchInput struct {
	FacilityID       string                 `json:"facilityId" validate:"required"`
	PurchaseOrderID  string                 `json:"purchaseOrderId" validate:"required"`
	GRNID            string                 `json:"grnId"`
	InvoiceNumber    string                 `json:"invoiceNumber" validate:"required,max=64"`
	VendorInvoiceRef string                 `json:"vendorInvoiceRef" validate:"max=128"`
	InvoiceDate      time.Time              `json:"invoiceDate" validate:"required"`
	DueDate          *time.Time             `json:"dueDate"`
	InvoiceAmount    decimal.Decimal        `json:"invoiceAmount" validate:"dnonneg"`
	Items            []CreateMatchItemInput `json:"items" validate:"required,min=1,dive"`
}

// ResolveInput is the payload for resolving one item's variance
type ResolveInput struct {
	Resolution       entity.VarianceType `json:"resolution"`
	Notes            string              `json:"notes"`
	AdjustedQuantity decimal.NullDecimal `json:"adjustedQuantity" validate:"omitempty,dnonneg"`
	AdjustedPrice    decimal.NullDecimal `json:"adjustedPrice" validate:"omitempty,dnonneg"`
}

// ApproveInput is the payload for approving a match
type ApproveInput struct {
	Notes            string     `json:"notes" validate:"max=1000"`
	PaymentScheduled *time.Time `json:"paymentScheduled"`
}

// ListInput filters a listing
type ListInput struct {
	FacilityID string
	Status     entity.MatchStatus
	SupplierID string
	Query      string
	Limit      int
	Offset     int
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
