package workflow

// MatchLifecycle returns a builder configured with the invoice match
// lifecycle. approvable guards APPROVE; pass nil to leave it unguarded.
//
//	pending  -> matched | mismatch | flagged
//	matched  -> approved | flagged
//	mismatch -> matched | flagged
//	flagged  -> matched | mismatch
//	approved -> paid
func MatchLifecycle(approvable GuardFunc) StateMachineBuilder {
	b := NewBuilder()

	b.Configure(StatePending).
		Permit(TriggerMatch, StateMatched).
		Permit(TriggerReportMismatch, StateMismatch).
		Permit(TriggerFlag, StateFlagged)

	b.Configure(StateMatched).
		PermitIf(TriggerApprove, StateApproved, approvable).
		Permit(TriggerFlag, StateFlagged)

	b.Configure(StateMismatch).
		Permit(TriggerMatch, StateMatched).
		Permit(TriggerFlag, StateFlagged)

	b.Configure(StateFlagged).
		Permit(TriggerMatch, StateMatched).
		Permit(TriggerReportMismatch, StateMismatch)

	b.Configure(StateApproved).
		Permit(TriggerPay, StatePaid)

	return b
}
