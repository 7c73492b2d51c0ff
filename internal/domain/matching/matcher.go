// Package matching implements three-way matching of purchase order, goods
// received note and supplier invoice: per-line variance classification, the
// match-level roll-up and the dashboard statistics fold.
package matching

import (
	"github.com/shopspring/decimal"

	"github.com/garyjia/invoice-matching/internal/domain/entity"
	"github.com/garyjia/invoice-matching/internal/domain/money"
)

// LineInput holds the five raw figures compared for one line
type LineInput struct {
	POQuantity       decimal.Decimal
	GRNQuantity      decimal.NullDecimal
	InvoiceQuantity  decimal.Decimal
	POUnitPrice      decimal.Decimal
	InvoiceUnitPrice decimal.Decimal
}

// LineResult is the classified variance of one line
type LineResult struct {
	QuantityVariance decimal.Decimal
	PriceVariance    decimal.Decimal
	TotalVariance    decimal.Decimal
	VarianceType     entity.VarianceType
}

// MatchLine compares invoice quantity against the received quantity (or the
// ordered quantity while nothing has been received) and invoice price
// against PO price. It never yields VarianceAccepted.
func MatchLine(in LineInput) LineResult {
	expectedQty := in.POQuantity
	if in.GRNQuantity.Valid && in.GRNQuantity.Decimal.IsPositive() {
		expectedQty = in.GRNQuantity.Decimal
	}

	qtyVariance := in.InvoiceQuantity.Sub(expectedQty)
	priceVariance := in.InvoiceUnitPrice.Sub(in.POUnitPrice)
	totalVariance := money.LineTotal(in.InvoiceQuantity, in.InvoiceUnitPrice).
		Sub(money.LineTotal(in.POQuantity, in.POUnitPrice))

	return LineResult{
		QuantityVariance: qtyVariance,
		PriceVariance:    priceVariance,
		TotalVariance:    totalVariance,
		VarianceType:     classify(qtyVariance, priceVariance),
	}
}

func classify(qtyVariance, priceVariance decimal.Decimal) entity.VarianceType {
	qtyOff := !qtyVariance.IsZero()
	priceOff := !priceVariance.IsZero()

	switch {
	case qtyOff && priceOff:
		return entity.VarianceBoth
	case qtyOff:
		return entity.VarianceQuantity
	case priceOff:
		return entity.VariancePrice
	default:
		return entity.VarianceNone
	}
}

// InputFor extracts the matcher input from a stored item.
func InputFor(item *entity.InvoiceMatchItem) LineInput {
	return LineInput{
		POQuantity:       item.POQuantity,
		GRNQuantity:      item.GRNQuantity,
		InvoiceQuantity:  item.InvoiceQuantity,
		POUnitPrice:      item.POUnitPrice,
		InvoiceUnitPrice: item.InvoiceUnitPrice,
	}
}

// ApplyLine recomputes the item's variances in place. A reviewer's
// resolution is kept; only unresolved lines get a fresh classification.
func ApplyLine(item *entity.InvoiceMatchItem) LineResult {
	res := MatchLine(InputFor(item))
	item.QuantityVariance = res.QuantityVariance
	item.PriceVariance = res.PriceVariance
	item.TotalVariance = res.TotalVariance
	if !item.IsResolved() {
		item.VarianceType = res.VarianceType
	}
	return res
}
