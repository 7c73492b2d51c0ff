package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/garyjia/invoice-matching/internal/application/dispatcher"
	"github.com/garyjia/invoice-matching/internal/application/port"
	"github.com/garyjia/invoice-matching/internal/domain/entity"
	"github.com/garyjia/invoice-matching/internal/domain/event"
	"github.com/garyjia/invoice-matching/internal/domain/matching"
	"github.com/garyjia/invoice-matching/internal/domain/workflow"
	"github.com/garyjia/invoice-matching/pkg/utils"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// MatchingService runs the invoice match lifecycle
type MatchingService interface {
	Create(ctx context.Context, actor Actor, in CreateMatchInput) (*entity.InvoiceMatch, error)
	ResolveVariance(ctx context.Context, actor Actor, itemID string, in ResolveInput) (*entity.InvoiceMatchItem, error)
	Evaluate(ctx context.Context, actor Actor, matchID string) (*entity.InvoiceMatch, error)
	Approve(ctx context.Context, actor Actor, matchID string, in ApproveInput) (*entity.InvoiceMatch, error)
	Flag(ctx context.Context, actor Actor, matchID, reason string) (*entity.InvoiceMatch, error)
	MarkPaid(ctx context.Context, actor Actor, matchID, paymentRef string) (*entity.InvoiceMatch, error)

	Get(ctx context.Context, facilityID, matchID string) (*entity.InvoiceMatch, error)
	List(ctx context.Context, in ListInput) ([]*entity.InvoiceMatch, error)
	History(ctx context.Context, facilityID, matchID string) ([]*entity.MatchHistory, error)
	Stats(ctx context.Context, facilityID string) (matching.Stats, error)
}

// MatchingDeps are the collaborators of the matching service
type MatchingDeps struct {
	Matches    port.MatchRepository
	Items      port.MatchItemRepository
	Orders     port.PurchaseOrderRepository
	Receipts   port.GoodsReceiptRepository
	History    port.HistoryRepository
	TxManager  port.TransactionManager
	Locker     port.MatchLocker
	Dispatcher dispatcher.Dispatcher
	Logger     Logger
}

type matchingServiceImpl struct {
	matches    port.MatchRepository
	items      port.MatchItemRepository
	orders     port.PurchaseOrderRepository
	receipts   port.GoodsReceiptRepository
	history    port.HistoryRepository
	txManager  port.TransactionManager
	locker     port.MatchLocker
	dispatcher dispatcher.Dispatcher
	logger     Logger
	validate   *validator.Validate
	now        func() time.Time
}

// NewMatchingService creates a new MatchingService
func NewMatchingService(deps MatchingDeps) MatchingService {
	return &matchingServiceImpl{
		matches:    deps.Matches,
		items:      deps.Items,
		orders:     deps.Orders,
		receipts:   deps.Receipts,
		history:    deps.History,
		txManager:  deps.TxManager,
		locker:     deps.Locker,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		validate:   utils.NewValidator(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Create registers a new match in pending with every line classified
func (s *matchingServiceImpl) Create(ctx context.Context, actor Actor, in CreateMatchInput) (*entity.InvoiceMatch, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, newValidationError("invalid invoice match", utils.FieldErrors(err))
	}
	if blank(actor.UserID) {
		return nil, newValidationError("actor is required", nil)
	}
	if !blank(actor.FacilityID) && actor.FacilityID != in.FacilityID {
		return nil, newValidationError("facility mismatch", map[string]string{"facilityId": "does not match caller facility"})
	}

	// match numbers are sequential per facility
	release, err := s.locker.Acquire(ctx, "numbering:"+in.FacilityID)
	if err != nil {
		return nil, fmt.Errorf("lock match numbering: %w", err)
	}
	defer release()

	var created *entity.InvoiceMatch
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		po, err := s.orders.GetByID(txCtx, in.PurchaseOrderID)
		if err != nil {
			return notFoundOr(err, "purchase order", in.PurchaseOrderID)
		}
		if po.FacilityID != in.FacilityID {
			return &NotFoundError{Resource: "purchase order", ID: in.PurchaseOrderID}
		}

		var grn *entity.GoodsReceipt
		if in.GRNID != "" {
			grn, err = s.receipts.GetByID(txCtx, in.GRNID)
			if err != nil {
				return notFoundOr(err, "goods receipt", in.GRNID)
			}
			if grn.PurchaseOrderID != po.ID {
				return newValidationError("goods receipt does not belong to purchase order",
					map[string]string{"grnId": "belongs to purchase order " + grn.PurchaseOrderID})
			}
		}

		count, err := s.matches.CountByFacility(txCtx, in.FacilityID)
		if err != nil {
			return fmt.Errorf("count matches: %w", err)
		}

		now := s.now()
		m := &entity.InvoiceMatch{
			ID:               uuid.NewString(),
			MatchNumber:      matchNumber(now, count+1),
			FacilityID:       in.FacilityID,
			PurchaseOrderID:  po.ID,
			SupplierID:       po.SupplierID,
			InvoiceNumber:    in.InvoiceNumber,
			VendorInvoiceRef: in.VendorInvoiceRef,
			InvoiceDate:      in.InvoiceDate,
			DueDate:          in.InvoiceDate,
			InvoiceAmount:    in.InvoiceAmount,
			POAmount:         po.Total(),
			Status:           entity.MatchStatusPending,
			CreatedByID:      actor.UserID,
			Version:          1,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if in.DueDate != nil {
			m.DueDate = *in.DueDate
		}
		if grn != nil {
			id := grn.ID
			m.GRNID = &id
			m.GRNAmount = grn.Total()
		}

		m.Items, err = buildItems(m.ID, po, grn, in.Items)
		if err != nil {
			return err
		}

		agg := matching.AggregateMatch(m)

		if err := s.matches.Create(txCtx, m); err != nil {
			return fmt.Errorf("create match: %w", err)
		}
		if err := s.items.CreateBatch(txCtx, m.Items); err != nil {
			return fmt.Errorf("create match items: %w", err)
		}

		correlation := uuid.NewString()
		evts := []*event.Event{
			event.NewEventWithCorrelation(event.TypeMatchCreated, m.ID, m.FacilityID, actor.UserID, map[string]interface{}{
				event.KeyNewStatus:   m.Status,
				event.KeyAction:      entity.ActionCreate,
				event.KeyMatchNumber: m.MatchNumber,
				event.KeyDetail:      "suggested " + m.SuggestedStatus.String(),
			}, correlation),
		}
		if agg.HasIntegrityWarning() {
			evts = append(evts, integrityEvent(m, actor.UserID, correlation))
		}
		if err := s.dispatcher.DispatchAll(txCtx, evts); err != nil {
			return err
		}

		created = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Invoice match created",
		"match_id", created.ID,
		"match_number", created.MatchNumber,
		"facility_id", created.FacilityID,
		"suggested_status", created.SuggestedStatus)

	return created, nil
}

// ResolveVariance overrides one item's variance type. The match status is
// left alone; callers run Evaluate to move it.
func (s *matchingServiceImpl) ResolveVariance(ctx context.Context, actor Actor, itemID string, in ResolveInput) (*entity.InvoiceMatchItem, error) {
	if blank(in.Notes) {
		return nil, newValidationError("notes are required to resolve a variance", map[string]string{"notes": "required"})
	}
	if !in.Resolution.IsResolution() {
		return nil, newValidationError("invalid resolution", map[string]string{"resolution": "must be one of accepted, quantity, price, both"})
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, newValidationError("invalid resolution", utils.FieldErrors(err))
	}
	if blank(actor.UserID) {
		return nil, newValidationError("actor is required", nil)
	}

	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return nil, notFoundOr(err, "invoice match item", itemID)
	}

	var resolved *entity.InvoiceMatchItem
	_, err = s.mutate(ctx, actor, item.MatchID, entity.ActionResolve, func(txCtx context.Context, m *entity.InvoiceMatch) ([]*event.Event, bool, error) {
		if m.Status == entity.MatchStatusApproved || m.Status == entity.MatchStatusPaid {
			return nil, false, &InvalidStateError{MatchID: m.ID, Status: m.Status.String(), Action: "resolve variance on"}
		}

		target, ok := m.Item(itemID)
		if !ok {
			return nil, false, &NotFoundError{Resource: "invoice match item", ID: itemID}
		}

		if sameResolution(target, in) {
			resolved = target
			return nil, false, nil
		}

		previous := target.VarianceType
		now := s.now()
		target.VarianceType = in.Resolution
		target.Notes = in.Notes
		target.AdjustedQuantity = in.AdjustedQuantity
		target.AdjustedPrice = in.AdjustedPrice
		target.ResolvedByID = actor.UserID
		target.ResolvedAt = &now

		if err := s.items.Update(txCtx, target); err != nil {
			return nil, false, fmt.Errorf("update item: %w", err)
		}
		matching.AggregateMatch(m)

		resolved = target
		return []*event.Event{
			event.NewEvent(event.TypeVarianceResolved, m.ID, m.FacilityID, actor.UserID, map[string]interface{}{
				event.KeyPreviousStatus: m.Status,
				event.KeyNewStatus:      m.Status,
				event.KeyAction:         entity.ActionResolve,
				event.KeyItemID:         target.ID,
				event.KeyDetail:         fmt.Sprintf("%s: %s -> %s: %s", target.LineCode, previous, in.Resolution, in.Notes),
			}),
		}, true, nil
	})
	if err != nil {
		return nil, err
	}

	return resolved, nil
}

// Evaluate re-runs the aggregator and moves the match to the suggested
// status when the lifecycle allows it. Once every line is clear and the
// header reconciles, the match goes to matched even with a non-zero amount
// variance.
func (s *matchingServiceImpl) Evaluate(ctx context.Context, actor Actor, matchID string) (*entity.InvoiceMatch, error) {
	if blank(actor.UserID) {
		return nil, newValidationError("actor is required", nil)
	}

	return s.mutate(ctx, actor, matchID, entity.ActionEvaluate, func(txCtx context.Context, m *entity.InvoiceMatch) ([]*event.Event, bool, error) {
		if m.Status == entity.MatchStatusApproved || m.Status == entity.MatchStatusPaid {
			return nil, false, &InvalidStateError{MatchID: m.ID, Status: m.Status.String(), Action: "evaluate"}
		}

		agg := matching.AggregateMatch(m)
		target := agg.SuggestedStatus
		if agg.Reviewed() {
			target = entity.MatchStatusMatched
		}
		if target == m.Status {
			return nil, false, nil
		}

		trigger := workflow.TriggerReportMismatch
		if target == entity.MatchStatusMatched {
			trigger = workflow.TriggerMatch
		}

		evt, err := s.fire(txCtx, m, actor, trigger, entity.ActionEvaluate, "")
		if err != nil {
			return nil, false, err
		}
		if m.Status == entity.MatchStatusMatched {
			m.MatchedByID = actor.UserID
		}

		evts := []*event.Event{evt}
		if agg.HasIntegrityWarning() {
			evts = append(evts, integrityEvent(m, actor.UserID, evt.CorrelationID))
		}
		return evts, true, nil
	})
}

// Approve moves a matched match without integrity warnings to approved
func (s *matchingServiceImpl) Approve(ctx context.Context, actor Actor, matchID string, in ApproveInput) (*entity.InvoiceMatch, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, newValidationError("invalid approval", utils.FieldErrors(err))
	}
	if blank(actor.UserID) {
		return nil, newValidationError("actor is required", nil)
	}

	return s.mutate(ctx, actor, matchID, entity.ActionApprove, func(txCtx context.Context, m *entity.InvoiceMatch) ([]*event.Event, bool, error) {
		blocker := approvalBlocker(m)
		approvable := func(context.Context) bool { return blocker == "" }

		evt, err := s.fireGuarded(txCtx, m, actor, workflow.TriggerApprove, entity.ActionApprove, approvable, blocker, in.Notes)
		if err != nil {
			return nil, false, err
		}

		now := s.now()
		m.ApprovedByID = actor.UserID
		m.ApprovalDate = &now
		if in.Notes != "" {
			m.ApprovalNotes = in.Notes
		}
		if in.PaymentScheduled != nil {
			scheduled := in.PaymentScheduled.UTC()
			m.PaymentScheduled = &scheduled
		}
		return []*event.Event{evt}, true, nil
	})
}

// Flag parks a match for review with a mandatory reason
func (s *matchingServiceImpl) Flag(ctx context.Context, actor Actor, matchID, reason string) (*entity.InvoiceMatch, error) {
	if blank(reason) {
		return nil, newValidationError("a reason is required to flag a match", map[string]string{"reason": "required"})
	}
	if blank(actor.UserID) {
		return nil, newValidationError("actor is required", nil)
	}

	return s.mutate(ctx, actor, matchID, entity.ActionFlag, func(txCtx context.Context, m *entity.InvoiceMatch) ([]*event.Event, bool, error) {
		evt, err := s.fire(txCtx, m, actor, workflow.TriggerFlag, entity.ActionFlag, reason)
		if err != nil {
			return nil, false, err
		}
		m.FlaggedByID = actor.UserID
		m.FlagReason = reason
		return []*event.Event{evt}, true, nil
	})
}

// MarkPaid records payment of an approved match
func (s *matchingServiceImpl) MarkPaid(ctx context.Context, actor Actor, matchID, paymentRef string) (*entity.InvoiceMatch, error) {
	if blank(paymentRef) {
		return nil, newValidationError("a payment reference is required", map[string]string{"paymentRef": "required"})
	}
	if blank(actor.UserID) {
		return nil, newValidationError("actor is required", nil)
	}

	return s.mutate(ctx, actor, matchID, entity.ActionPay, func(txCtx context.Context, m *entity.InvoiceMatch) ([]*event.Event, bool, error) {
		evt, err := s.fire(txCtx, m, actor, workflow.TriggerPay, entity.ActionPay, paymentRef)
		if err != nil {
			return nil, false, err
		}
		now := s.now()
		m.PaymentDate = &now
		m.PaymentReference = paymentRef
		return []*event.Event{evt}, true, nil
	})
}

// Get loads a match with its items and the actions it currently accepts
func (s *matchingServiceImpl) Get(ctx context.Context, facilityID, matchID string) (*entity.InvoiceMatch, error) {
	m, err := s.load(ctx, facilityID, matchID)
	if err != nil {
		return nil, err
	}
	m.AllowedActions = allowedActions(ctx, m)
	return m, nil
}

// List returns matches newest first. An empty facility lists every facility.
func (s *matchingServiceImpl) List(ctx context.Context, in ListInput) ([]*entity.InvoiceMatch, error) {
	if in.Status != "" && !in.Status.IsValid() {
		return nil, newValidationError("invalid status filter", map[string]string{"status": string(in.Status)})
	}

	matches, err := s.matches.List(ctx, port.MatchFilter{
		FacilityID: in.FacilityID,
		Status:     in.Status,
		SupplierID: strings.TrimSpace(in.SupplierID),
		Query:      strings.TrimSpace(in.Query),
		Limit:      in.Limit,
		Offset:     in.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}

	for _, m := range matches {
		if m.Items, err = s.items.GetByMatchID(ctx, m.ID); err != nil {
			return nil, fmt.Errorf("load items for %s: %w", m.ID, err)
		}
	}
	return matches, nil
}

// History returns the audit trail of a match, oldest first
func (s *matchingServiceImpl) History(ctx context.Context, facilityID, matchID string) ([]*entity.MatchHistory, error) {
	if _, err := s.loadHeader(ctx, facilityID, matchID); err != nil {
		return nil, err
	}
	entries, err := s.history.GetByMatchID(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return entries, nil
}

// Stats folds every match of a facility into dashboard counts
func (s *matchingServiceImpl) Stats(ctx context.Context, facilityID string) (matching.Stats, error) {
	matches, err := s.matches.List(ctx, port.MatchFilter{FacilityID: facilityID})
	if err != nil {
		return matching.Stats{}, fmt.Errorf("list matches: %w", err)
	}
	return matching.ComputeStats(matches), nil
}

// mutateFunc changes m in place. It returns the events to publish and
// whether the header must be written.
type mutateFunc func(txCtx context.Context, m *entity.InvoiceMatch) ([]*event.Event, bool, error)

// mutate runs fn under the per-match lock inside one transaction. The header
// write is version guarded and events are dispatched before commit so a
// failing handler rolls the whole change back.
func (s *matchingServiceImpl) mutate(ctx context.Context, actor Actor, matchID, action string, fn mutateFunc) (*entity.InvoiceMatch, error) {
	release, err := s.locker.Acquire(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("lock match %s: %w", matchID, err)
	}
	defer release()

	var result *entity.InvoiceMatch
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		m, err := s.load(txCtx, actor.FacilityID, matchID)
		if err != nil {
			return err
		}

		evts, changed, err := fn(txCtx, m)
		if err != nil {
			return err
		}

		if changed {
			m.UpdatedAt = s.now()
			if err := s.matches.Update(txCtx, m); err != nil {
				return fmt.Errorf("update match: %w", err)
			}
		}
		if err := s.dispatcher.DispatchAll(txCtx, evts); err != nil {
			return err
		}

		result = m
		return nil
	})
	if err != nil {
		var stateErr *InvalidStateError
		if errors.As(err, &stateErr) {
			s.logger.Warn("Match transition rejected",
				"match_id", matchID,
				"action", action,
				"actor_id", actor.UserID,
				"error", err)
		}
		return nil, err
	}

	return result, nil
}

// fire applies trigger to m and returns the status change event
func (s *matchingServiceImpl) fire(ctx context.Context, m *entity.InvoiceMatch, actor Actor, trigger workflow.Trigger, action string, detail string) (*event.Event, error) {
	return s.fireGuarded(ctx, m, actor, trigger, action, nil, "", detail)
}

// fireGuarded is fire with a guard; blocked explains a failing guard
func (s *matchingServiceImpl) fireGuarded(ctx context.Context, m *entity.InvoiceMatch, actor Actor, trigger workflow.Trigger, action string, guard workflow.GuardFunc, blocked, detail string) (*event.Event, error) {
	machine, err := workflow.MatchLifecycle(guard).Build(workflow.State(m.Status))
	if err != nil {
		return nil, &InvalidStateError{MatchID: m.ID, Status: m.Status.String(), Action: actionVerb(action), Reason: "unknown status"}
	}

	tr, err := machine.Fire(ctx, trigger)
	switch {
	case errors.Is(err, workflow.ErrGuardFailed):
		return nil, &InvalidStateError{MatchID: m.ID, Status: m.Status.String(), Action: actionVerb(action), Reason: blocked}
	case err != nil:
		return nil, &InvalidStateError{MatchID: m.ID, Status: m.Status.String(), Action: actionVerb(action)}
	}

	m.Status = entity.MatchStatus(tr.To)

	return event.NewEvent(event.TypeStatusChanged, m.ID, m.FacilityID, actor.UserID, map[string]interface{}{
		event.KeyPreviousStatus: string(tr.From),
		event.KeyNewStatus:      string(tr.To),
		event.KeyAction:         action,
		event.KeyDetail:         detail,
	}), nil
}

// load fetches a match and its items, hiding matches of other facilities
func (s *matchingServiceImpl) load(ctx context.Context, facilityID, matchID string) (*entity.InvoiceMatch, error) {
	m, err := s.loadHeader(ctx, facilityID, matchID)
	if err != nil {
		return nil, err
	}
	if m.Items, err = s.items.GetByMatchID(ctx, m.ID); err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	return m, nil
}

func (s *matchingServiceImpl) loadHeader(ctx context.Context, facilityID, matchID string) (*entity.InvoiceMatch, error) {
	m, err := s.matches.GetByID(ctx, matchID)
	if err != nil {
		return nil, notFoundOr(err, "invoice match", matchID)
	}
	if facilityID != "" && m.FacilityID != facilityID {
		return nil, &NotFoundError{Resource: "invoice match", ID: matchID}
	}
	return m, nil
}

func buildItems(matchID string, po *entity.PurchaseOrder, grn *entity.GoodsReceipt, inputs []CreateMatchItemInput) ([]*entity.InvoiceMatchItem, error) {
	items := make([]*entity.InvoiceMatchItem, 0, len(inputs))
	problems := map[string]string{}
	seen := make(map[string]bool, len(inputs))

	for i, in := range inputs {
		field := fmt.Sprintf("items[%d].lineCode", i)
		if seen[in.LineCode] {
			problems[field] = "duplicate line code " + in.LineCode
			continue
		}
		seen[in.LineCode] = true

		line, ok := po.Line(in.LineCode)
		if !ok {
			problems[field] = "unknown purchase order line " + in.LineCode
			continue
		}

		item := &entity.InvoiceMatchItem{
			ID:               uuid.NewString(),
			MatchID:          matchID,
			LineCode:         in.LineCode,
			ItemName:         in.ItemName,
			POQuantity:       line.QuantityOrdered,
			InvoiceQuantity:  in.InvoiceQuantity,
			POUnitPrice:      line.UnitPrice,
			InvoiceUnitPrice: in.InvoiceUnitPrice,
		}
		if item.ItemName == "" {
			item.ItemName = line.ItemName
		}
		if grn != nil {
			received, ok := grn.ReceivedQuantity(in.LineCode)
			if !ok {
				problems[field] = "unknown goods receipt line " + in.LineCode
				continue
			}
			item.GRNQuantity = decimal.NewNullDecimal(received)
		}

		matching.ApplyLine(item)
		items = append(items, item)
	}

	if len(problems) > 0 {
		return nil, newValidationError("invoice lines do not match the referenced documents", problems)
	}
	return items, nil
}

// triggerActions maps lifecycle triggers to the service action that fires them
var triggerActions = map[workflow.Trigger]string{
	workflow.TriggerMatch:          entity.ActionEvaluate,
	workflow.TriggerReportMismatch: entity.ActionEvaluate,
	workflow.TriggerFlag:           entity.ActionFlag,
	workflow.TriggerApprove:        entity.ActionApprove,
	workflow.TriggerPay:            entity.ActionPay,
}

// allowedActions lists the lifecycle actions m accepts in its current state
func allowedActions(ctx context.Context, m *entity.InvoiceMatch) []string {
	blocker := approvalBlocker(m)
	machine, err := workflow.MatchLifecycle(func(context.Context) bool { return blocker == "" }).Build(workflow.State(m.Status))
	if err != nil {
		return nil
	}

	var actions []string
	seen := map[string]bool{}
	for _, trigger := range machine.PermittedTriggers() {
		action, ok := triggerActions[trigger]
		if !ok || seen[action] || !machine.CanFire(ctx, trigger) {
			continue
		}
		seen[action] = true
		actions = append(actions, action)
	}
	return actions
}

// approvalBlocker returns why m cannot be approved, or "" when it can
func approvalBlocker(m *entity.InvoiceMatch) string {
	if m.HasIntegrityWarning() {
		return "unresolved integrity warning: " + m.IntegrityWarning
	}
	for _, item := range m.Items {
		if !item.VarianceType.IsClear() {
			return fmt.Sprintf("line %s has an unresolved %s variance", item.LineCode, item.VarianceType)
		}
	}
	return ""
}

func sameResolution(item *entity.InvoiceMatchItem, in ResolveInput) bool {
	return item.IsResolved() &&
		item.VarianceType == in.Resolution &&
		item.Notes == in.Notes &&
		nullEqual(item.AdjustedQuantity, in.AdjustedQuantity) &&
		nullEqual(item.AdjustedPrice, in.AdjustedPrice)
}

func nullEqual(a, b decimal.NullDecimal) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.Decimal.Equal(b.Decimal)
}

func integrityEvent(m *entity.InvoiceMatch, actorID, correlation string) *event.Event {
	return event.NewEventWithCorrelation(event.TypeIntegrityWarning, m.ID, m.FacilityID, actorID, map[string]interface{}{
		event.KeyMatchNumber: m.MatchNumber,
		event.KeyDetail:      m.IntegrityWarning,
	}, correlation)
}

// matchNumber formats INV{yyyy}{mm}{seq:05d}
func matchNumber(now time.Time, seq int) string {
	return fmt.Sprintf("INV%04d%02d%05d", now.Year(), int(now.Month()), seq)
}

func notFoundOr(err error, resource, id string) error {
	if errors.Is(err, port.ErrNotFound) {
		return &NotFoundError{Resource: resource, ID: id}
	}
	return fmt.Errorf("load %s %s: %w", resource, id, err)
}

func actionVerb(action string) string {
	switch action {
	case entity.ActionApprove:
		return "approve"
	case entity.ActionFlag:
		return "flag"
	case entity.ActionPay:
		return "mark paid"
	case entity.ActionEvaluate:
		return "evaluate"
	}
	return action
}
