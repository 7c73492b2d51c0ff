package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/invoice-matching/internal/application/port"
	"github.com/garyjia/invoice-matching/internal/domain/entity"
	"github.com/garyjia/invoice-matching/internal/domain/event"
)

func shortDeliveryInput() CreateMatchInput {
	in := cleanInput()
	in.GRNID = "grn-1"
	in.InvoiceNumber = "SUP-INV-200"
	in.InvoiceAmount = dec("2245.00")
	in.Items[2].InvoiceUnitPrice = dec("2.85")
	return in
}

func itemByCode(t *testing.T, m *entity.InvoiceMatch, code string) *entity.InvoiceMatchItem {
	t.Helper()
	for _, it := range m.Items {
		if it.LineCode == code {
			return it
		}
	}
	t.Fatalf("no item with line code %s", code)
	return nil
}

func TestMatchingService_Create(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	m, err := f.svc.Create(ctx, clerk, shortDeliveryInput())
	require.NoError(t, err)

	assert.Equal(t, entity.MatchStatusPending, m.Status)
	assert.Equal(t, "INV20240300001", m.MatchNumber)
	assert.Equal(t, "sup-1", m.SupplierID)
	assert.Equal(t, m.InvoiceDate, m.DueDate)
	require.NotNil(t, m.GRNID)
	assert.Equal(t, "grn-1", *m.GRNID)
	assert.True(t, m.POAmount.Equal(dec("2235")), "po amount = %s", m.POAmount)
	assert.True(t, m.GRNAmount.Equal(dec("2092.75")), "grn amount = %s", m.GRNAmount)
	assert.True(t, m.AmountVariance.Equal(dec("10")))
	assert.True(t, m.VariancePercent.Equal(dec("0.45")), "percent = %s", m.VariancePercent)
	assert.Equal(t, entity.MatchStatusMismatch, m.SuggestedStatus)
	assert.False(t, m.HasIntegrityWarning())
	assert.Equal(t, int64(1), m.Version)
	require.Len(t, m.Items, 3)

	l1 := itemByCode(t, m, "L1")
	assert.Equal(t, entity.VarianceNone, l1.VarianceType)
	assert.Equal(t, "Paracetamol 500mg", l1.ItemName)

	l2 := itemByCode(t, m, "L2")
	assert.Equal(t, entity.VarianceQuantity, l2.VarianceType)
	assert.True(t, l2.QuantityVariance.Equal(dec("5")))
	assert.True(t, l2.GRNQuantity.Valid)

	l3 := itemByCode(t, m, "L3")
	assert.Equal(t, entity.VarianceBoth, l3.VarianceType)
	assert.True(t, l3.TotalVariance.Equal(dec("10")))

	stored := f.store.match(m.ID)
	require.NotNil(t, stored)
	assert.Equal(t, entity.MatchStatusPending, stored.Status)

	history := f.store.historyFor(m.ID)
	require.Len(t, history, 1)
	assert.Equal(t, entity.ActionCreate, history[0].Action)
	assert.Equal(t, "pending", history[0].NewStatus)
	assert.Equal(t, clerk.UserID, history[0].ActorID)
}

func TestMatchingService_Create_NoGRN(t *testing.T) {
	f := newFixture()

	m, err := f.svc.Create(context.Background(), clerk, cleanInput())
	require.NoError(t, err)

	assert.Nil(t, m.GRNID)
	assert.True(t, m.GRNAmount.IsZero())
	for _, it := range m.Items {
		assert.False(t, it.GRNQuantity.Valid)
		assert.Equal(t, entity.VarianceNone, it.VarianceType)
	}
	assert.Equal(t, entity.MatchStatusMatched, m.SuggestedStatus)
	assert.Equal(t, entity.MatchStatusPending, m.Status)
}

func TestMatchingService_Create_SequentialNumbers(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first, err := f.svc.Create(ctx, clerk, cleanInput())
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, clerk, cleanInput())
	require.NoError(t, err)

	assert.Equal(t, "INV20240300001", first.MatchNumber)
	assert.Equal(t, "INV20240300002", second.MatchNumber)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestMatchingService_Create_Errors(t *testing.T) {
	tests := []struct {
		name    string
		actor   Actor
		mutate  func(in *CreateMatchInput)
		wantErr error
	}{
		{
			name:    "empty items",
			actor:   clerk,
			mutate:  func(in *CreateMatchInput) { in.Items = nil },
			wantErr: ErrValidation,
		},
		{
			name:    "missing invoice number",
			actor:   clerk,
			mutate:  func(in *CreateMatchInput) { in.InvoiceNumber = "" },
			wantErr: ErrValidation,
		},
		{
			name:    "negative invoice amount",
			actor:   clerk,
			mutate:  func(in *CreateMatchInput) { in.InvoiceAmount = dec("-1") },
			wantErr: ErrValidation,
		},
		{
			name:    "unknown PO line code",
			actor:   clerk,
			mutate:  func(in *CreateMatchInput) { in.Items[0].LineCode = "L99" },
			wantErr: ErrValidation,
		},
		{
			name:    "duplicate line code",
			actor:   clerk,
			mutate:  func(in *CreateMatchInput) { in.Items[1].LineCode = "L1" },
			wantErr: ErrValidation,
		},
		{
			name:  "line not on GRN",
			actor: Actor{UserID: "u", FacilityID: "fac-2"},
			mutate: func(in *CreateMatchInput) {
				in.PurchaseOrderID = "po-2"
				in.FacilityID = "fac-2"
				in.GRNID = "grn-2"
				in.Items = []CreateMatchItemInput{{LineCode: "L1", InvoiceQuantity: dec("10"), InvoiceUnitPrice: dec("5")}}
			},
			wantErr: ErrValidation,
		},
		{
			name:    "GRN of another PO",
			actor:   clerk,
			mutate:  func(in *CreateMatchInput) { in.GRNID = "grn-2" },
			wantErr: ErrValidation,
		},
		{
			name:    "unknown PO",
			actor:   clerk,
			mutate:  func(in *CreateMatchInput) { in.PurchaseOrderID = "po-404" },
			wantErr: ErrNotFound,
		},
		{
			name:    "unknown GRN",
			actor:   clerk,
			mutate:  func(in *CreateMatchInput) { in.GRNID = "grn-404" },
			wantErr: ErrNotFound,
		},
		{
			name:    "PO of another facility",
			actor:   Actor{UserID: "u", FacilityID: "fac-2"},
			mutate:  func(in *CreateMatchInput) { in.FacilityID = "fac-2" },
			wantErr: ErrNotFound,
		},
		{
			name:    "caller facility differs from payload",
			actor:   Actor{UserID: "u", FacilityID: "fac-2"},
			mutate:  func(in *CreateMatchInput) {},
			wantErr: ErrValidation,
		},
		{
			name:    "missing actor",
			actor:   Actor{},
			mutate:  func(in *CreateMatchInput) {},
			wantErr: ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			in := cleanInput()
			tt.mutate(&in)

			m, err := f.svc.Create(context.Background(), tt.actor, in)

			require.Error(t, err)
			assert.Nil(t, m)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.Empty(t, f.store.matches, "no partial match may be stored")
			assert.Empty(t, f.store.items)
		})
	}
}

func TestMatchingService_Flag(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m, err := f.svc.Create(ctx, clerk, cleanInput())
	require.NoError(t, err)

	_, err = f.svc.Flag(ctx, manager, m.ID, "")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.Flag(ctx, manager, m.ID, "   ")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, entity.MatchStatusPending, f.store.match(m.ID).Status)

	flagged, err := f.svc.Flag(ctx, manager, m.ID, "price disputed")
	require.NoError(t, err)

	assert.Equal(t, entity.MatchStatusFlagged, flagged.Status)
	assert.Equal(t, "price disputed", flagged.FlagReason)
	assert.Equal(t, manager.UserID, flagged.FlaggedByID)
	assert.Equal(t, int64(2), flagged.Version)
	assert.Equal(t, entity.MatchStatusFlagged, f.store.match(m.ID).Status)

	history := f.store.historyFor(m.ID)
	require.Len(t, history, 2)
	assert.Equal(t, entity.ActionFlag, history[1].Action)
	assert.Equal(t, "pending", history[1].PreviousStatus)
	assert.Equal(t, "flagged", history[1].NewStatus)
	assert.Equal(t, "price disputed", history[1].Detail)

	// flagged cannot be flagged again
	_, err = f.svc.Flag(ctx, manager, m.ID, "again")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestMatchingService_ApproveRequiresMatched(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m, err := f.svc.Create(ctx, clerk, cleanInput())
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, manager, m.ID, ApproveInput{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidState)
	var stateErr *InvalidStateError
	require.True(t, errors.As(err, &stateErr))
	assert.Equal(t, "pending", stateErr.Status)

	evaluated, err := f.svc.Evaluate(ctx, clerk, m.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.MatchStatusMatched, evaluated.Status)
	assert.Equal(t, clerk.UserID, evaluated.MatchedByID)

	scheduled := time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC)
	approved, err := f.svc.Approve(ctx, manager, m.ID, ApproveInput{Notes: "ok to pay", PaymentScheduled: &scheduled})
	require.NoError(t, err)

	assert.Equal(t, entity.MatchStatusApproved, approved.Status)
	assert.Equal(t, manager.UserID, approved.ApprovedByID)
	require.NotNil(t, approved.ApprovalDate)
	assert.Equal(t, fixedNow, *approved.ApprovalDate)
	assert.Equal(t, "ok to pay", approved.ApprovalNotes)
	require.NotNil(t, approved.PaymentScheduled)
	assert.Equal(t, scheduled, *approved.PaymentScheduled)

	_, err = f.svc.Approve(ctx, manager, m.ID, ApproveInput{})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestMatchingService_ApproveBlockedByIntegrityWarning(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	in := cleanInput()
	in.InvoiceAmount = dec("2240.00") // header says 5.00 over, lines say exact
	m, err := f.svc.Create(ctx, clerk, in)
	require.NoError(t, err)

	assert.True(t, m.HasIntegrityWarning())
	assert.Equal(t, entity.MatchStatusMismatch, m.SuggestedStatus)
	assert.True(t, f.logger.warned("Invoice match integrity warning"))

	// force the match into matched as a bad import would
	f.store.mu.Lock()
	f.store.matches[m.ID].Status = entity.MatchStatusMatched
	f.store.mu.Unlock()

	_, err = f.svc.Approve(ctx, manager, m.ID, ApproveInput{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Contains(t, err.Error(), "integrity warning")
	assert.Equal(t, entity.MatchStatusMatched, f.store.match(m.ID).Status)
}

func TestMatchingService_MarkPaid(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m, err := f.svc.Create(ctx, clerk, cleanInput())
	require.NoError(t, err)

	_, err = f.svc.MarkPaid(ctx, manager, m.ID, "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.MarkPaid(ctx, manager, m.ID, "PAY-1")
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = f.svc.Evaluate(ctx, clerk, m.ID)
	require.NoError(t, err)
	_, err = f.svc.MarkPaid(ctx, manager, m.ID, "PAY-1")
	assert.ErrorIs(t, err, ErrInvalidState, "matched is not approved")

	_, err = f.svc.Approve(ctx, manager, m.ID, ApproveInput{})
	require.NoError(t, err)

	paid, err := f.svc.MarkPaid(ctx, manager, m.ID, "PAY-1")
	require.NoError(t, err)
	assert.Equal(t, entity.MatchStatusPaid, paid.Status)
	assert.Equal(t, "PAY-1", paid.PaymentReference)
	require.NotNil(t, paid.PaymentDate)

	_, err = f.svc.Flag(ctx, manager, m.ID, "too late")
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = f.svc.Evaluate(ctx, manager, m.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	actions := []string{}
	for _, h := range f.store.historyFor(m.ID) {
		actions = append(actions, h.Action)
	}
	assert.Equal(t, []string{entity.ActionCreate, entity.ActionEvaluate, entity.ActionApprove, entity.ActionPay}, actions)
}

func TestMatchingService_ResolveVarianceThenEvaluate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	// invoice follows the PO but the GRN is short
	in := cleanInput()
	in.GRNID = "grn-1"
	in.Items[2].InvoiceQuantity = dec("150")
	in.InvoiceAmount = dec("2095.00")
	m, err := f.svc.Create(ctx, clerk, in)
	require.NoError(t, err)
	assert.Equal(t, entity.MatchStatusMismatch, m.SuggestedStatus)
	assert.False(t, m.HasIntegrityWarning(), m.IntegrityWarning)

	m, err = f.svc.Evaluate(ctx, clerk, m.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.MatchStatusMismatch, m.Status)

	l2 := itemByCode(t, m, "L2")
	l3 := itemByCode(t, m, "L3")
	assert.Equal(t, entity.VarianceQuantity, l2.VarianceType)
	assert.Equal(t, entity.VarianceNone, l3.VarianceType)

	item, err := f.svc.ResolveVariance(ctx, manager, l2.ID, ResolveInput{
		Resolution:       entity.VarianceAccepted,
		Notes:            "five swabs back-ordered, credit note agreed",
		AdjustedQuantity: decimal.NewNullDecimal(dec("495")),
	})
	require.NoError(t, err)
	assert.Equal(t, entity.VarianceAccepted, item.VarianceType)
	assert.Equal(t, manager.UserID, item.ResolvedByID)
	assert.True(t, item.AdjustedQuantity.Decimal.Equal(dec("495")))

	// resolving does not move the status
	stored := f.store.match(m.ID)
	assert.Equal(t, entity.MatchStatusMismatch, stored.Status)
	assert.Equal(t, entity.MatchStatusMismatch, stored.SuggestedStatus, "amount variance is still -140")

	// the header is 140.00 under the PO because 50 syringes were not invoiced
	assert.True(t, stored.AmountVariance.Equal(dec("-140")))

	// every line is now clear and explains the header variance
	m, err = f.svc.Evaluate(ctx, manager, m.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.MatchStatusMatched, m.Status)
	assert.Equal(t, manager.UserID, m.MatchedByID)

	_, err = f.svc.Approve(ctx, manager, m.ID, ApproveInput{Notes: "credit note on file"})
	require.NoError(t, err)
	paid, err := f.svc.MarkPaid(ctx, manager, m.ID, "PAY-2095")
	require.NoError(t, err)
	assert.Equal(t, entity.MatchStatusPaid, paid.Status)
}

func TestMatchingService_AcceptedPriceVarianceReachesPaid(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	// 10.00 over the PO: syringes billed at 2.85 instead of 2.80
	m, err := f.svc.Create(ctx, clerk, shortDeliveryInput())
	require.NoError(t, err)
	require.False(t, m.HasIntegrityWarning(), m.IntegrityWarning)

	m, err = f.svc.Evaluate(ctx, clerk, m.ID)
	require.NoError(t, err)
	require.Equal(t, entity.MatchStatusMismatch, m.Status)

	for _, item := range m.Items {
		if item.VarianceType.IsClear() {
			continue
		}
		_, err := f.svc.ResolveVariance(ctx, manager, item.ID, ResolveInput{
			Resolution: entity.VarianceAccepted,
			Notes:      "supplier price rise agreed",
		})
		require.NoError(t, err)
	}

	m, err = f.svc.Evaluate(ctx, manager, m.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.MatchStatusMatched, m.Status)
	assert.Equal(t, entity.MatchStatusMismatch, m.SuggestedStatus)
	assert.True(t, m.AmountVariance.Equal(dec("10")))

	// flagged for review, then cleared again
	_, err = f.svc.Flag(ctx, manager, m.ID, "check contract price")
	require.NoError(t, err)
	m, err = f.svc.Evaluate(ctx, manager, m.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.MatchStatusMatched, m.Status)

	_, err = f.svc.Approve(ctx, manager, m.ID, ApproveInput{})
	require.NoError(t, err)
	paid, err := f.svc.MarkPaid(ctx, manager, m.ID, "PAY-2245")
	require.NoError(t, err)
	assert.Equal(t, entity.MatchStatusPaid, paid.Status)
}

func TestMatchingService_ApproveRequiresClearLines(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m, err := f.svc.Create(ctx, clerk, cleanInput())
	require.NoError(t, err)
	m, err = f.svc.Evaluate(ctx, clerk, m.ID)
	require.NoError(t, err)
	require.Equal(t, entity.MatchStatusMatched, m.Status)

	l1 := itemByCode(t, m, "L1")
	_, err = f.svc.ResolveVariance(ctx, manager, l1.ID, ResolveInput{Resolution: entity.VarianceQuantity, Notes: "recount pending"})
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, manager, m.ID, ApproveInput{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Contains(t, err.Error(), "line L1 has an unresolved quantity variance")
	assert.Equal(t, entity.MatchStatusMatched, f.store.match(m.ID).Status)

	_, err = f.svc.ResolveVariance(ctx, manager, l1.ID, ResolveInput{Resolution: entity.VarianceAccepted, Notes: "recount done"})
	require.NoError(t, err)
	approved, err := f.svc.Approve(ctx, manager, m.ID, ApproveInput{})
	require.NoError(t, err)
	assert.Equal(t, entity.MatchStatusApproved, approved.Status)
}

func TestMatchingService_ResolveAllThenMatch(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	// invoice equals the PO, the GRN is short on gauze and syringes
	in := cleanInput()
	in.GRNID = "grn-1"
	m, err := f.svc.Create(ctx, clerk, in)
	require.NoError(t, err)

	m, err = f.svc.Evaluate(ctx, clerk, m.ID)
	require.NoError(t, err)
	require.Equal(t, entity.MatchStatusMismatch, m.Status)

	for _, code := range []string{"L2", "L3"} {
		_, err := f.svc.ResolveVariance(ctx, manager, itemByCode(t, m, code).ID, ResolveInput{
			Resolution: entity.VarianceAccepted,
			Notes:      "balance delivered after GRN",
		})
		require.NoError(t, err)
	}
	assert.Equal(t, entity.MatchStatusMatched, f.store.match(m.ID).SuggestedStatus)
	assert.Equal(t, entity.MatchStatusMismatch, f.store.match(m.ID).Status)

	m, err = f.svc.Evaluate(ctx, manager, m.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.MatchStatusMatched, m.Status)

	_, err = f.svc.Approve(ctx, manager, m.ID, ApproveInput{})
	require.NoError(t, err)
}

func TestMatchingService_ResolveVarianceIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m, err := f.svc.Create(ctx, clerk, shortDeliveryInput())
	require.NoError(t, err)
	l2 := itemByCode(t, m, "L2")

	in := ResolveInput{Resolution: entity.VarianceAccepted, Notes: "short shipment accepted"}

	first, err := f.svc.ResolveVariance(ctx, manager, l2.ID, in)
	require.NoError(t, err)
	versionAfterFirst := f.store.match(m.ID).Version
	historyAfterFirst := len(f.store.historyFor(m.ID))

	second, err := f.svc.ResolveVariance(ctx, manager, l2.ID, in)
	require.NoError(t, err)

	assert.Equal(t, first.VarianceType, second.VarianceType)
	assert.Equal(t, first.Notes, second.Notes)
	assert.Equal(t, first.ResolvedAt, second.ResolvedAt)
	assert.Equal(t, first.ResolvedByID, second.ResolvedByID)
	assert.Equal(t, versionAfterFirst, f.store.match(m.ID).Version)
	assert.Len(t, f.store.historyFor(m.ID), historyAfterFirst)
}

func TestMatchingService_ResolveVarianceErrors(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m, err := f.svc.Create(ctx, clerk, shortDeliveryInput())
	require.NoError(t, err)
	l2 := itemByCode(t, m, "L2")

	_, err = f.svc.ResolveVariance(ctx, manager, l2.ID, ResolveInput{Resolution: entity.VarianceAccepted})
	assert.ErrorIs(t, err, ErrValidation, "notes are mandatory")

	_, err = f.svc.ResolveVariance(ctx, manager, l2.ID, ResolveInput{Resolution: entity.VarianceNone, Notes: "x"})
	assert.ErrorIs(t, err, ErrValidation, "none is not a resolution")

	_, err = f.svc.ResolveVariance(ctx, manager, l2.ID, ResolveInput{
		Resolution: entity.VarianceAccepted, Notes: "x", AdjustedPrice: decimal.NewNullDecimal(dec("-1")),
	})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.ResolveVariance(ctx, manager, "missing-item", ResolveInput{Resolution: entity.VarianceAccepted, Notes: "x"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.ResolveVariance(ctx, Actor{UserID: "u", FacilityID: "fac-2"}, l2.ID, ResolveInput{Resolution: entity.VarianceAccepted, Notes: "x"})
	assert.ErrorIs(t, err, ErrNotFound, "items of other facilities are hidden")

	assert.Equal(t, entity.VarianceQuantity, f.store.items[l2.ID].VarianceType)
}

func TestMatchingService_ResolveVarianceRejectedAfterApproval(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m, err := f.svc.Create(ctx, clerk, cleanInput())
	require.NoError(t, err)
	_, err = f.svc.Evaluate(ctx, clerk, m.ID)
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, manager, m.ID, ApproveInput{})
	require.NoError(t, err)

	_, err = f.svc.ResolveVariance(ctx, manager, m.Items[0].ID, ResolveInput{Resolution: entity.VarianceQuantity, Notes: "late change"})
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, entity.VarianceNone, f.store.items[m.Items[0].ID].VarianceType)
}

func TestMatchingService_EvaluateNoOp(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m, err := f.svc.Create(ctx, clerk, cleanInput())
	require.NoError(t, err)

	_, err = f.svc.Evaluate(ctx, clerk, m.ID)
	require.NoError(t, err)
	version := f.store.match(m.ID).Version

	again, err := f.svc.Evaluate(ctx, clerk, m.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.MatchStatusMatched, again.Status)
	assert.Equal(t, version, f.store.match(m.ID).Version)
}

func TestMatchingService_VersionConflictLeavesNoPartialState(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m, err := f.svc.Create(ctx, clerk, shortDeliveryInput())
	require.NoError(t, err)
	l2 := itemByCode(t, m, "L2")

	f.matches.updateFunc = func(ctx context.Context, m *entity.InvoiceMatch) error {
		return port.ErrVersionConflict
	}

	_, err = f.svc.ResolveVariance(ctx, manager, l2.ID, ResolveInput{Resolution: entity.VarianceAccepted, Notes: "ok"})
	require.Error(t, err)
	assert.ErrorIs(t, err, port.ErrVersionConflict)

	// the item update inside the failed transaction is rolled back
	assert.Equal(t, entity.VarianceQuantity, f.store.items[l2.ID].VarianceType)
	assert.Len(t, f.store.historyFor(m.ID), 1)
}

func TestMatchingService_HistoryFailureRollsBack(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m, err := f.svc.Create(ctx, clerk, cleanInput())
	require.NoError(t, err)

	f.history.createFunc = func(ctx context.Context, h *entity.MatchHistory) error {
		return errors.New("disk full")
	}

	_, err = f.svc.Flag(ctx, manager, m.ID, "suspicious")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, entity.MatchStatusPending, f.store.match(m.ID).Status)
}

func TestMatchingService_ConcurrentTransitionsOnOneMatch(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m, err := f.svc.Create(ctx, clerk, cleanInput())
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, rejected := 0, 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Flag(ctx, manager, m.ID, "duplicate invoice?")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrInvalidState):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, rejected)
	assert.Equal(t, int64(2), f.store.match(m.ID).Version)
}

func TestMatchingService_GetListStatsHistory(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	a, err := f.svc.Create(ctx, clerk, cleanInput())
	require.NoError(t, err)
	f.svc.now = func() time.Time { return fixedNow.Add(time.Hour) }
	b, err := f.svc.Create(ctx, clerk, shortDeliveryInput())
	require.NoError(t, err)
	_, err = f.svc.Flag(ctx, manager, b.ID, "check syringes")
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, "fac-1", a.ID)
	require.NoError(t, err)
	assert.Len(t, got.Items, 3)

	_, err = f.svc.Get(ctx, "fac-2", a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.Get(ctx, "", "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := f.svc.List(ctx, ListInput{FacilityID: "fac-1"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID, "newest first")
	assert.Len(t, list[0].Items, 3)

	list, err = f.svc.List(ctx, ListInput{Status: entity.MatchStatusFlagged})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, b.ID, list[0].ID)

	list, err = f.svc.List(ctx, ListInput{FacilityID: "fac-2"})
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = f.svc.List(ctx, ListInput{Status: "archived"})
	assert.ErrorIs(t, err, ErrValidation)

	list, err = f.svc.List(ctx, ListInput{SupplierID: " sup-1 "})
	require.NoError(t, err)
	assert.Len(t, list, 2)
	list, err = f.svc.List(ctx, ListInput{SupplierID: "sup-2"})
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = f.svc.List(ctx, ListInput{Query: "inv-200"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, b.ID, list[0].ID)
	list, err = f.svc.List(ctx, ListInput{Query: "PO-0001"})
	require.NoError(t, err)
	assert.Len(t, list, 2)
	list, err = f.svc.List(ctx, ListInput{Query: "PO-0002"})
	require.NoError(t, err)
	assert.Empty(t, list)

	stats, err := f.svc.Stats(ctx, "fac-1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Flagged)
	assert.Equal(t, 2, stats.Total())
	assert.True(t, stats.TotalVarianceAmount.Equal(dec("10")))

	history, err := f.svc.History(ctx, "fac-1", b.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, entity.ActionFlag, history[1].Action)

	_, err = f.svc.History(ctx, "fac-2", b.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMatchingService_GetAllowedActions(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m, err := f.svc.Create(ctx, clerk, cleanInput())
	require.NoError(t, err)

	actions := func() []string {
		got, err := f.svc.Get(ctx, "fac-1", m.ID)
		require.NoError(t, err)
		return got.AllowedActions
	}

	assert.Equal(t, []string{entity.ActionFlag, entity.ActionEvaluate}, actions())

	_, err = f.svc.Evaluate(ctx, clerk, m.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{entity.ActionApprove, entity.ActionFlag}, actions())

	// a line reopened by a reviewer blocks approval
	_, err = f.svc.ResolveVariance(ctx, manager, m.Items[0].ID, ResolveInput{Resolution: entity.VariancePrice, Notes: "price query"})
	require.NoError(t, err)
	assert.Equal(t, []string{entity.ActionFlag}, actions())

	_, err = f.svc.ResolveVariance(ctx, manager, m.Items[0].ID, ResolveInput{Resolution: entity.VarianceAccepted, Notes: "price confirmed"})
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, manager, m.ID, ApproveInput{})
	require.NoError(t, err)
	assert.Equal(t, []string{entity.ActionPay}, actions())

	_, err = f.svc.MarkPaid(ctx, manager, m.ID, "PAY-1")
	require.NoError(t, err)
	assert.Empty(t, actions())
}

func TestHistoryRecorder_DefaultsActionToEventType(t *testing.T) {
	store := newMemStore()
	rec := NewHistoryRecorder(&mockHistoryRepo{store: store})

	err := rec.Handle(context.Background(), event.NewEvent(event.TypeIntegrityWarning, "m-1", "fac-1", "u-1", nil))
	require.NoError(t, err)

	entries := store.historyFor("m-1")
	require.Len(t, entries, 1)
	assert.Equal(t, "match.integrity_warning", entries[0].Action)
	assert.Equal(t, "u-1", entries[0].ActorID)
}
