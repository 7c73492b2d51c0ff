package entity

// MatchStatus is the lifecycle status of an InvoiceMatch
type MatchStatus string

// Status constants for InvoiceMatch
const (
	MatchStatusPending  MatchStatus = "pending"
	MatchStatusMatched  MatchStatus = "matched"
	MatchStatusMismatch MatchStatus = "mismatch"
	MatchStatusFlagged  MatchStatus = "flagged"
	MatchStatusApproved MatchStatus = "approved"
	MatchStatusPaid     MatchStatus = "paid"
)

// AllMatchStatuses lists every status in lifecycle order
var AllMatchStatuses = []MatchStatus{
	MatchStatusPending,
	MatchStatusMatched,
	MatchStatusMismatch,
	MatchStatusFlagged,
	MatchStatusApproved,
	MatchStatusPaid,
}

// IsValid reports whether s is a known status
func (s MatchStatus) IsValid() bool {
	switch s {
	case MatchStatusPending, MatchStatusMatched, MatchStatusMismatch,
		MatchStatusFlagged, MatchStatusApproved, MatchStatusPaid:
		return true
	default:
		return false
	}
}

// String returns the string representation of the status
func (s MatchStatus) String() string {
	return string(s)
}

// VarianceType classifies how an invoice line differs from PO/GRN
type VarianceType string

// Variance type constants for InvoiceMatchItem
const (
	VarianceNone     VarianceType = "none"
	VarianceQuantity VarianceType = "quantity"
	VariancePrice    VarianceType = "price"
	VarianceBoth     VarianceType = "both"
	VarianceAccepted VarianceType = "accepted" // manual override, never computed
)

// IsValid reports whether v is a known variance type
func (v VarianceType) IsValid() bool {
	switch v {
	case VarianceNone, VarianceQuantity, VariancePrice, VarianceBoth, VarianceAccepted:
		return true
	default:
		return false
	}
}

func (v VarianceType) String() string {
	return string(v)
}

// IsClear reports whether the line needs no further review
func (v VarianceType) IsClear() bool {
	return v == VarianceNone || v == VarianceAccepted
}

// IsResolution reports whether v may be chosen when resolving a variance
func (v VarianceType) IsResolution() bool {
	switch v {
	case VarianceAccepted, VarianceQuantity, VariancePrice, VarianceBoth:
		return true
	default:
		return false
	}
}

// History action constants
const (
	ActionCreate   = "CREATE"
	ActionEvaluate = "EVALUATE"
	ActionResolve  = "RESOLVE_VARIANCE"
	ActionApprove  = "APPROVE"
	ActionFlag     = "FLAG"
	ActionPay      = "MARK_PAID"
)
