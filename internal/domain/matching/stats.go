package matching

import (
	"github.com/shopspring/decimal"

	"github.com/garyjia/invoice-matching/internal/domain/entity"
)

// Stats are the dashboard counts for a set of matches
type Stats struct {
	Pending             int             `json:"pending"`
	Matched             int             `json:"matched"`
	Mismatch            int             `json:"mismatch"`
	Flagged             int             `json:"flagged"`
	Approved            int             `json:"approved"`
	Paid                int             `json:"paid"`
	TotalVarianceAmount decimal.Decimal `json:"totalVarianceAmount"`
}

// Total is the number of matches counted.
func (s Stats) Total() int {
	return s.Pending + s.Matched + s.Mismatch + s.Flagged + s.Approved + s.Paid
}

// Count returns the number of matches in status.
func (s Stats) Count(status entity.MatchStatus) int {
	switch status {
	case entity.MatchStatusPending:
		return s.Pending
	case entity.MatchStatusMatched:
		return s.Matched
	case entity.MatchStatusMismatch:
		return s.Mismatch
	case entity.MatchStatusFlagged:
		return s.Flagged
	case entity.MatchStatusApproved:
		return s.Approved
	case entity.MatchStatusPaid:
		return s.Paid
	}
	return 0
}

// ComputeStats folds matches into per-status counts and the absolute
// variance outstanding. Paid matches are counted but their variance is
// settled and left out of the sum.
func ComputeStats(matches []*entity.InvoiceMatch) Stats {
	stats := Stats{TotalVarianceAmount: decimal.Zero}

	for _, m := range matches {
		switch m.Status {
		case entity.MatchStatusPending:
			stats.Pending++
		case entity.MatchStatusMatched:
			stats.Matched++
		case entity.MatchStatusMismatch:
			stats.Mismatch++
		case entity.MatchStatusFlagged:
			stats.Flagged++
		case entity.MatchStatusApproved:
			stats.Approved++
		case entity.MatchStatusPaid:
			stats.Paid++
			continue
		default:
			// unknown statuses are not counted
			continue
		}
		stats.TotalVarianceAmount = stats.TotalVarianceAmount.Add(m.AmountVariance.Abs())
	}

	return stats
}
