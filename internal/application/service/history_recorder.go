package service

import (
	"context"
	"fmt"

	"github.com/garyjia/invoice-matching/internal/application/port"
	"github.com/garyjia/invoice-matching/internal/domain/entity"
	"github.com/garyjia/invoice-matching/internal/domain/event"
)

// HistoryRecorder writes one MatchHistory row per lifecycle event. It runs
// synchronously inside the caller's transaction.
type HistoryRecorder struct {
	repo port.HistoryRepository
}

// NewHistoryRecorder creates a HistoryRecorder
func NewHistoryRecorder(repo port.HistoryRepository) *HistoryRecorder {
	return &HistoryRecorder{repo: repo}
}

// Handle implements dispatcher.Handler
func (r *HistoryRecorder) Handle(ctx context.Context, evt *event.Event) error {
	entry := &entity.MatchHistory{
		MatchID:        evt.MatchID,
		ActorID:        evt.ActorID,
		PreviousStatus: evt.GetPayloadString(event.KeyPreviousStatus),
		NewStatus:      evt.GetPayloadString(event.KeyNewStatus),
		Action:         evt.GetPayloadString(event.KeyAction),
		Detail:         evt.GetPayloadString(event.KeyDetail),
		CreatedAt:      evt.Timestamp,
	}
	if entry.Action == "" {
		entry.Action = evt.Type.String()
	}

	if err := r.repo.Create(ctx, entry); err != nil {
		return fmt.Errorf("record history for match %s: %w", evt.MatchID, err)
	}
	return nil
}

// IntegrityLogger surfaces item/header disagreements in the logs
type IntegrityLogger struct {
	logger Logger
}

// NewIntegrityLogger creates an IntegrityLogger
func NewIntegrityLogger(logger Logger) *IntegrityLogger {
	return &IntegrityLogger{logger: logger}
}

// Handle implements dispatcher.Handler
func (l *IntegrityLogger) Handle(ctx context.Context, evt *event.Event) error {
	l.logger.Warn("Invoice match integrity warning",
		"match_id", evt.MatchID,
		"match_number", evt.GetPayloadString(event.KeyMatchNumber),
		"facility_id", evt.FacilityID,
		"warning", evt.GetPayloadString(event.KeyDetail))
	return nil
}
