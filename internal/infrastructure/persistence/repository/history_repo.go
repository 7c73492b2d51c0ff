package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/invoice-matching/internal/application/port"
	"github.com/garyjia/invoice-matching/internal/domain/entity"
	"github.com/garyjia/invoice-matching/internal/infrastructure/persistence/sqlite"
)

// HistoryRepository implements port.HistoryRepository
type HistoryRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sqlite.DB, logger *zap.Logger) port.HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new history record
func (r *HistoryRepository) Create(ctx context.Context, history *entity.MatchHistory) error {
	query := `
		INSERT INTO match_history (
			match_id, actor_id, previous_status, new_status,
			action, detail, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		history.MatchID,
		history.ActorID,
		history.PreviousStatus,
		history.NewStatus,
		history.Action,
		history.Detail,
		history.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create history record", zap.String("match_id", history.MatchID), zap.Error(err))
		return fmt.Errorf("failed to create history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	history.ID = id
	return nil
}

// GetByMatchID retrieves all history records for a match, oldest first
func (r *HistoryRepository) GetByMatchID(ctx context.Context, matchID string) ([]*entity.MatchHistory, error) {
	query := `
		SELECT id, match_id, actor_id, previous_status, new_status,
			action, detail, created_at
		FROM match_history
		WHERE match_id = ?
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, matchID)
	if err != nil {
		r.logger.Error("Failed to get history by match ID", zap.String("match_id", matchID), zap.Error(err))
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	var records []*entity.MatchHistory
	for rows.Next() {
		var record entity.MatchHistory
		err := rows.Scan(
			&record.ID,
			&record.MatchID,
			&record.ActorID,
			&record.PreviousStatus,
			&record.NewStatus,
			&record.Action,
			&record.Detail,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		records = append(records, &record)
	}

	return records, rows.Err()
}

var _ port.HistoryRepository = (*HistoryRepository)(nil)
