package matching

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/garyjia/invoice-matching/internal/domain/entity"
	"github.com/garyjia/invoice-matching/internal/domain/money"
)

// Aggregation is the match-level roll-up of its items
type Aggregation struct {
	AmountVariance   decimal.Decimal
	ItemVarianceSum  decimal.Decimal
	VariancePercent  decimal.Decimal
	SuggestedStatus  entity.MatchStatus
	IntegrityWarning string
	// LinesClear is set when every item is none or accepted
	LinesClear bool
}

// HasIntegrityWarning reports whether item totals disagree with the header.
func (a Aggregation) HasIntegrityWarning() bool {
	return a.IntegrityWarning != ""
}

// Reviewed reports whether every line is clear and the header reconciles
// with the lines. A non-zero amount variance is then fully explained by
// lines a reviewer accepted or the goods receipt backs.
func (a Aggregation) Reviewed() bool {
	return a.LinesClear && !a.HasIntegrityWarning()
}

// Aggregate rolls item variances up into a suggested status. AmountVariance
// is computed from the header amounts independently of the items; when it
// strays from the item sum by more than half a cent the result carries an
// integrity warning and never suggests matched.
func Aggregate(invoiceAmount, poAmount decimal.Decimal, items []*entity.InvoiceMatchItem) Aggregation {
	amountVariance := invoiceAmount.Sub(poAmount)

	itemSum := decimal.Zero
	allClear := true
	for _, item := range items {
		itemSum = itemSum.Add(item.TotalVariance)
		if !item.VarianceType.IsClear() {
			allClear = false
		}
	}

	agg := Aggregation{
		AmountVariance:  amountVariance,
		ItemVarianceSum: itemSum,
		VariancePercent: money.Percent(amountVariance, poAmount),
		SuggestedStatus: entity.MatchStatusMismatch,
		LinesClear:      allClear,
	}

	if !money.WithinTolerance(amountVariance, itemSum) {
		agg.IntegrityWarning = fmt.Sprintf(
			"amount variance %s does not equal sum of item variances %s",
			money.Format(amountVariance, ""), money.Format(itemSum, ""))
	}

	if allClear && amountVariance.IsZero() && !agg.HasIntegrityWarning() {
		agg.SuggestedStatus = entity.MatchStatusMatched
	}

	return agg
}

// AggregateMatch runs Aggregate over a match and stores the derived fields
// on it. The lifecycle status is left alone.
func AggregateMatch(m *entity.InvoiceMatch) Aggregation {
	agg := Aggregate(m.InvoiceAmount, m.POAmount, m.Items)
	m.AmountVariance = agg.AmountVariance
	m.VariancePercent = agg.VariancePercent
	m.SuggestedStatus = agg.SuggestedStatus
	m.IntegrityWarning = agg.IntegrityWarning
	return agg
}
