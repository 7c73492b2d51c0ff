package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceMatch ties one supplier invoice to one purchase order and, once
// goods arrive, one goods-received note.
type InvoiceMatch struct {
	ID               string          `json:"id"`
	MatchNumber      string          `json:"matchNumber"`
	FacilityID       string          `json:"facilityId"`
	PurchaseOrderID  string          `json:"purchaseOrderId"`
	GRNID            *string         `json:"grnId"` // nil until goods are received
	SupplierID       string          `json:"supplierId,omitempty"`
	InvoiceNumber    string          `json:"invoiceNumber"`
	VendorInvoiceRef string          `json:"vendorInvoiceRef,omitempty"`
	InvoiceDate      time.Time       `json:"invoiceDate"`
	DueDate          time.Time       `json:"dueDate"`
	InvoiceAmount    decimal.Decimal `json:"invoiceAmount"`

	POAmount         decimal.Decimal `json:"poAmount"`
	GRNAmount        decimal.Decimal `json:"grnAmount"`
	AmountVariance   decimal.Decimal `json:"amountVariance"`
	VariancePercent  decimal.Decimal `json:"variancePercent"`
	SuggestedStatus  MatchStatus     `json:"suggestedStatus"`
	IntegrityWarning string          `json:"integrityWarning,omitempty"`

	Status MatchStatus `json:"status"`

	CreatedByID      string     `json:"createdById,omitempty"`
	MatchedByID      string     `json:"matchedById,omitempty"`
	ApprovedByID     string     `json:"approvedById,omitempty"`
	ApprovalDate     *time.Time `json:"approvalDate,omitempty"`
	ApprovalNotes    string     `json:"approvalNotes,omitempty"`
	FlaggedByID      string     `json:"flaggedById,omitempty"`
	FlagReason       string     `json:"flagReason,omitempty"`
	PaymentScheduled *time.Time `json:"paymentScheduled,omitempty"`
	PaymentDate      *time.Time `json:"paymentDate,omitempty"`
	PaymentReference string     `json:"paymentReference,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Items []*InvoiceMatchItem `json:"items"`

	// AllowedActions is filled on reads and never stored
	AllowedActions []string `json:"allowedActions,omitempty"`
}

// HasGRN reports whether goods have been received against the match.
func (m *InvoiceMatch) HasGRN() bool {
	return m.GRNID != nil && *m.GRNID != ""
}

// HasIntegrityWarning reports whether the item totals disagree with the
// match-level variance.
func (m *InvoiceMatch) HasIntegrityWarning() bool {
	return m.IntegrityWarning != ""
}

// Item returns the owned item with the given id.
func (m *InvoiceMatch) Item(id string) (*InvoiceMatchItem, bool) {
	for _, item := range m.Items {
		if item.ID == id {
			return item, true
		}
	}
	return nil, false
}

// InvoiceMatchItem is one line within a match. Quantities and prices are
// fixed at creation; only the resolve action mutates VarianceType and Notes.
type InvoiceMatchItem struct {
	ID       string `json:"id"`
	MatchID  string `json:"matchId"`
	LineCode string `json:"lineCode"`
	ItemName string `json:"itemName"`

	POQuantity       decimal.Decimal     `json:"poQuantity"`
	GRNQuantity      decimal.NullDecimal `json:"grnQuantity"`
	InvoiceQuantity  decimal.Decimal     `json:"invoiceQuantity"`
	POUnitPrice      decimal.Decimal     `json:"poUnitPrice"`
	InvoiceUnitPrice decimal.Decimal     `json:"invoiceUnitPrice"`

	QuantityVariance decimal.Decimal `json:"quantityVariance"`
	PriceVariance    decimal.Decimal `json:"priceVariance"`
	TotalVariance    decimal.Decimal `json:"totalVariance"`
	VarianceType     VarianceType    `json:"varianceType"`

	Notes            string              `json:"notes,omitempty"`
	AdjustedQuantity decimal.NullDecimal `json:"adjustedQuantity"`
	AdjustedPrice    decimal.NullDecimal `json:"adjustedPrice"`
	ResolvedByID     string              `json:"resolvedById,omitempty"`
	ResolvedAt       *time.Time          `json:"resolvedAt,omitempty"`
}

// IsResolved reports whether a reviewer has resolved the line.
func (i *InvoiceMatchItem) IsResolved() bool {
	return i.ResolvedAt != nil
}

// MatchHistory is one audit trail entry for a match
type MatchHistory struct {
	ID             int64     `json:"id"`
	MatchID        string    `json:"matchId"`
	ActorID        string    `json:"actorId"`
	PreviousStatus string    `json:"previousStatus"`
	NewStatus      string    `json:"newStatus"`
	Action         string    `json:"action"`
	Detail         string    `json:"detail"`
	CreatedAt      time.Time `json:"createdAt"`
}
