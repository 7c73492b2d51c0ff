package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/invoice-matching/internal/application/port"
	"github.com/garyjia/invoice-matching/internal/domain/entity"
	"github.com/garyjia/invoice-matching/internal/infrastructure/persistence/sqlite"
)

const matchColumns = `
	id, match_number, facility_id, purchase_order_id, grn_id, supplier_id,
	invoice_number, vendor_invoice_ref, invoice_date, due_date,
	invoice_amount, po_amount, grn_amount, amount_variance, variance_percent,
	suggested_status, integrity_warning, status,
	created_by_id, matched_by_id, approved_by_id, approval_date, approval_notes,
	flagged_by_id, flag_reason, payment_scheduled, payment_date, payment_reference,
	version, created_at, updated_at`

// MatchRepository implements port.MatchRepository
type MatchRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewMatchRepository creates a new match repository
func NewMatchRepository(db *sqlite.DB, logger *zap.Logger) port.MatchRepository {
	return &MatchRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a match header. Items are written by the item repository.
func (r *MatchRepository) Create(ctx context.Context, m *entity.InvoiceMatch) error {
	query := `INSERT INTO invoice_matches (` + matchColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		m.ID,
		m.MatchNumber,
		m.FacilityID,
		m.PurchaseOrderID,
		m.GRNID,
		m.SupplierID,
		m.InvoiceNumber,
		m.VendorInvoiceRef,
		m.InvoiceDate,
		m.DueDate,
		m.InvoiceAmount,
		m.POAmount,
		m.GRNAmount,
		m.AmountVariance,
		m.VariancePercent,
		m.SuggestedStatus,
		m.IntegrityWarning,
		m.Status,
		m.CreatedByID,
		m.MatchedByID,
		m.ApprovedByID,
		m.ApprovalDate,
		m.ApprovalNotes,
		m.FlaggedByID,
		m.FlagReason,
		m.PaymentScheduled,
		m.PaymentDate,
		m.PaymentReference,
		m.Version,
		m.CreatedAt,
		m.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create invoice match", zap.String("match_number", m.MatchNumber), zap.Error(err))
		return fmt.Errorf("failed to create invoice match: %w", err)
	}
	return nil
}

// GetByID retrieves a match header by ID
func (r *MatchRepository) GetByID(ctx context.Context, id string) (*entity.InvoiceMatch, error) {
	query := `SELECT ` + matchColumns + ` FROM invoice_matches WHERE id = ?`

	m, err := scanMatch(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get invoice match", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get invoice match: %w", err)
	}
	return m, nil
}

// List retrieves match headers, newest first
func (r *MatchRepository) List(ctx context.Context, filter port.MatchFilter) ([]*entity.InvoiceMatch, error) {
	var where []string
	var args []interface{}
	if filter.FacilityID != "" {
		where = append(where, "facility_id = ?")
		args = append(args, filter.FacilityID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.SupplierID != "" {
		where = append(where, "supplier_id = ?")
		args = append(args, filter.SupplierID)
	}
	if filter.Query != "" {
		pattern := "%" + likeEscaper.Replace(filter.Query) + "%"
		where = append(where, `(invoice_number LIKE ? ESCAPE '\' OR purchase_order_id IN (
			SELECT id FROM purchase_orders WHERE po_number LIKE ? ESCAPE '\'))`)
		args = append(args, pattern, pattern)
	}

	query := `SELECT ` + matchColumns + ` FROM invoice_matches`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, match_number DESC"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list invoice matches", zap.Error(err))
		return nil, fmt.Errorf("failed to list invoice matches: %w", err)
	}
	defer rows.Close()

	var matches []*entity.InvoiceMatch
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// Update rewrites the mutable header columns when the stored version still
// equals m.Version
func (r *MatchRepository) Update(ctx context.Context, m *entity.InvoiceMatch) error {
	query := `
		UPDATE invoice_matches SET
			grn_id = ?, due_date = ?,
			amount_variance = ?, variance_percent = ?, suggested_status = ?, integrity_warning = ?,
			status = ?, matched_by_id = ?, approved_by_id = ?, approval_date = ?, approval_notes = ?,
			flagged_by_id = ?, flag_reason = ?, payment_scheduled = ?, payment_date = ?, payment_reference = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		m.GRNID,
		m.DueDate,
		m.AmountVariance,
		m.VariancePercent,
		m.SuggestedStatus,
		m.IntegrityWarning,
		m.Status,
		m.MatchedByID,
		m.ApprovedByID,
		m.ApprovalDate,
		m.ApprovalNotes,
		m.FlaggedByID,
		m.FlagReason,
		m.PaymentScheduled,
		m.PaymentDate,
		m.PaymentReference,
		m.UpdatedAt,
		m.ID,
		m.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update invoice match", zap.String("id", m.ID), zap.Error(err))
		return fmt.Errorf("failed to update invoice match: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		var exists int
		err := r.db.Executor(ctx).QueryRowContext(ctx, `SELECT 1 FROM invoice_matches WHERE id = ?`, m.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return port.ErrNotFound
		}
		return port.ErrVersionConflict
	}

	m.Version++
	return nil
}

// CountByFacility returns how many matches a facility has ever created
func (r *MatchRepository) CountByFacility(ctx context.Context, facilityID string) (int, error) {
	var count int
	err := r.db.Executor(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM invoice_matches WHERE facility_id = ?`, facilityID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count invoice matches: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMatch(row rowScanner) (*entity.InvoiceMatch, error) {
	var m entity.InvoiceMatch
	var grnID sql.NullString
	var approvalDate, paymentScheduled, paymentDate sql.NullTime

	err := row.Scan(
		&m.ID,
		&m.MatchNumber,
		&m.FacilityID,
		&m.PurchaseOrderID,
		&grnID,
		&m.SupplierID,
		&m.InvoiceNumber,
		&m.VendorInvoiceRef,
		&m.InvoiceDate,
		&m.DueDate,
		&m.InvoiceAmount,
		&m.POAmount,
		&m.GRNAmount,
		&m.AmountVariance,
		&m.VariancePercent,
		&m.SuggestedStatus,
		&m.IntegrityWarning,
		&m.Status,
		&m.CreatedByID,
		&m.MatchedByID,
		&m.ApprovedByID,
		&approvalDate,
		&m.ApprovalNotes,
		&m.FlaggedByID,
		&m.FlagReason,
		&paymentScheduled,
		&paymentDate,
		&m.PaymentReference,
		&m.Version,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if grnID.Valid {
		m.GRNID = &grnID.String
	}
	m.ApprovalDate = timePtr(approvalDate)
	m.PaymentScheduled = timePtr(paymentScheduled)
	m.PaymentDate = timePtr(paymentDate)
	return &m, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

var _ port.MatchRepository = (*MatchRepository)(nil)
