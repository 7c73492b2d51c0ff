package event

// Type identifies the type of domain event
type Type string

const (
	TypeMatchCreated     Type = "match.created"
	TypeStatusChanged    Type = "match.status_changed"
	TypeVarianceResolved Type = "match.variance_resolved"
	TypeIntegrityWarning Type = "match.integrity_warning"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeMatchCreated,
		TypeStatusChanged,
		TypeVarianceResolved,
		TypeIntegrityWarning:
		return true
	default:
		return false
	}
}
