package workflow

// Trigger represents an event that can cause a state transition
type Trigger string

const (
	TriggerMatch          Trigger = "MATCH"
	TriggerReportMismatch Trigger = "REPORT_MISMATCH"
	TriggerFlag           Trigger = "FLAG"
	TriggerApprove        Trigger = "APPROVE"
	TriggerPay            Trigger = "PAY"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
