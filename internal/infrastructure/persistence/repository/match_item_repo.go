package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/invoice-matching/internal/application/port"
	"github.com/garyjia/invoice-matching/internal/domain/entity"
	"github.com/garyjia/invoice-matching/internal/infrastructure/persistence/sqlite"
)

const itemColumns = `
	id, match_id, line_code, item_name,
	po_quantity, grn_quantity, invoice_quantity, po_unit_price, invoice_unit_price,
	quantity_variance, price_variance, total_variance, variance_type,
	notes, adjusted_quantity, adjusted_price, resolved_by_id, resolved_at`

// MatchItemRepository implements port.MatchItemRepository
type MatchItemRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewMatchItemRepository creates a new match item repository
func NewMatchItemRepository(db *sqlite.DB, logger *zap.Logger) port.MatchItemRepository {
	return &MatchItemRepository{
		db:     db,
		logger: logger,
	}
}

// CreateBatch inserts all items of a match
func (r *MatchItemRepository) CreateBatch(ctx context.Context, items []*entity.InvoiceMatchItem) error {
	query := `INSERT INTO invoice_match_items (` + itemColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	exec := r.db.Executor(ctx)
	for _, it := range items {
		_, err := exec.ExecContext(ctx, query,
			it.ID,
			it.MatchID,
			it.LineCode,
			it.ItemName,
			it.POQuantity,
			it.GRNQuantity,
			it.InvoiceQuantity,
			it.POUnitPrice,
			it.InvoiceUnitPrice,
			it.QuantityVariance,
			it.PriceVariance,
			it.TotalVariance,
			it.VarianceType,
			it.Notes,
			it.AdjustedQuantity,
			it.AdjustedPrice,
			it.ResolvedByID,
			it.ResolvedAt,
		)
		if err != nil {
			r.logger.Error("Failed to create match item",
				zap.String("match_id", it.MatchID),
				zap.String("line_code", it.LineCode),
				zap.Error(err))
			return fmt.Errorf("failed to create match item %s: %w", it.LineCode, err)
		}
	}
	return nil
}

// GetByID retrieves one item
func (r *MatchItemRepository) GetByID(ctx context.Context, id string) (*entity.InvoiceMatchItem, error) {
	query := `SELECT ` + itemColumns + ` FROM invoice_match_items WHERE id = ?`

	item, err := scanItem(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get match item", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get match item: %w", err)
	}
	return item, nil
}

// GetByMatchID retrieves the items of a match ordered by line code
func (r *MatchItemRepository) GetByMatchID(ctx context.Context, matchID string) ([]*entity.InvoiceMatchItem, error) {
	query := `SELECT ` + itemColumns + ` FROM invoice_match_items WHERE match_id = ? ORDER BY line_code ASC`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, matchID)
	if err != nil {
		r.logger.Error("Failed to get match items", zap.String("match_id", matchID), zap.Error(err))
		return nil, fmt.Errorf("failed to get match items: %w", err)
	}
	defer rows.Close()

	var items []*entity.InvoiceMatchItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Update writes the resolution columns of an item
func (r *MatchItemRepository) Update(ctx context.Context, item *entity.InvoiceMatchItem) error {
	query := `
		UPDATE invoice_match_items SET
			quantity_variance = ?, price_variance = ?, total_variance = ?, variance_type = ?,
			notes = ?, adjusted_quantity = ?, adjusted_price = ?, resolved_by_id = ?, resolved_at = ?
		WHERE id = ?
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		item.QuantityVariance,
		item.PriceVariance,
		item.TotalVariance,
		item.VarianceType,
		item.Notes,
		item.AdjustedQuantity,
		item.AdjustedPrice,
		item.ResolvedByID,
		item.ResolvedAt,
		item.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update match item", zap.String("id", item.ID), zap.Error(err))
		return fmt.Errorf("failed to update match item: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return port.ErrNotFound
	}
	return nil
}

func scanItem(row rowScanner) (*entity.InvoiceMatchItem, error) {
	var it entity.InvoiceMatchItem
	var resolvedAt sql.NullTime

	err := row.Scan(
		&it.ID,
		&it.MatchID,
		&it.LineCode,
		&it.ItemName,
		&it.POQuantity,
		&it.GRNQuantity,
		&it.InvoiceQuantity,
		&it.POUnitPrice,
		&it.InvoiceUnitPrice,
		&it.QuantityVariance,
		&it.PriceVariance,
		&it.TotalVariance,
		&it.VarianceType,
		&it.Notes,
		&it.AdjustedQuantity,
		&it.AdjustedPrice,
		&it.ResolvedByID,
		&resolvedAt,
	)
	if err != nil {
		return nil, err
	}
	it.ResolvedAt = timePtr(resolvedAt)
	return &it, nil
}

var _ port.MatchItemRepository = (*MatchItemRepository)(nil)
