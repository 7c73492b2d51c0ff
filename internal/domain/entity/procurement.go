package entity

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/invoice-matching/internal/domain/money"
)

// PurchaseOrder is the order placed with a supplier. It is owned by the
// procurement module; matches only reference it.
type PurchaseOrder struct {
	ID         string               `json:"id"`
	PONumber   string               `json:"poNumber"`
	FacilityID string               `json:"facilityId"`
	SupplierID string               `json:"supplierId"`
	Lines      []*PurchaseOrderLine `json:"lines"`
	CreatedAt  time.Time            `json:"createdAt"`
}

// PurchaseOrderLine is one ordered item
type PurchaseOrderLine struct {
	ID              string          `json:"id"`
	PurchaseOrderID string          `json:"purchaseOrderId"`
	LineCode        string          `json:"lineCode"`
	ItemName        string          `json:"itemName"`
	QuantityOrdered decimal.Decimal `json:"quantityOrdered"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
}

// Total is the sum of ordered quantity times unit price over all lines.
func (po *PurchaseOrder) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range po.Lines {
		total = total.Add(money.LineTotal(line.QuantityOrdered, line.UnitPrice))
	}
	return total
}

// Line returns the line with the given code.
func (po *PurchaseOrder) Line(code string) (*PurchaseOrderLine, bool) {
	for _, line := range po.Lines {
		if line.LineCode == code {
			return line, true
		}
	}
	return nil, false
}

// GoodsReceipt records what was physically received against a purchase order
type GoodsReceipt struct {
	ID              string              `json:"id"`
	GRNNumber       string              `json:"grnNumber"`
	PurchaseOrderID string              `json:"purchaseOrderId"`
	FacilityID      string              `json:"facilityId"`
	Lines           []*GoodsReceiptLine `json:"lines"`
	ReceivedAt      time.Time           `json:"receivedAt"`
	CreatedAt       time.Time           `json:"createdAt"`
}

// GoodsReceiptLine is one received item
type GoodsReceiptLine struct {
	ID               string          `json:"id"`
	GoodsReceiptID   string          `json:"goodsReceiptId"`
	LineCode         string          `json:"lineCode"`
	ItemName         string          `json:"itemName"`
	QuantityReceived decimal.Decimal `json:"quantityReceived"`
	UnitCost         decimal.Decimal `json:"unitCost"`
}

// Total is the sum of received quantity times unit cost over all lines.
func (g *GoodsReceipt) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range g.Lines {
		total = total.Add(money.LineTotal(line.QuantityReceived, line.UnitCost))
	}
	return total
}

// ReceivedQuantity sums received quantity for a line code. A code may be
// received across several GRN lines (partial deliveries).
func (g *GoodsReceipt) ReceivedQuantity(code string) (decimal.Decimal, bool) {
	qty := decimal.Zero
	found := false
	for _, line := range g.Lines {
		if line.LineCode == code {
			qty = qty.Add(line.QuantityReceived)
			found = true
		}
	}
	return qty, found
}
