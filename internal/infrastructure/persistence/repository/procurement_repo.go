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

// PurchaseOrderRepository implements port.PurchaseOrderRepository
type PurchaseOrderRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewPurchaseOrderRepository creates a new purchase order repository
func NewPurchaseOrderRepository(db *sqlite.DB, logger *zap.Logger) port.PurchaseOrderRepository {
	return &PurchaseOrderRepository{db: db, logger: logger}
}

// Create inserts a purchase order and its lines
func (r *PurchaseOrderRepository) Create(ctx context.Context, po *entity.PurchaseOrder) error {
	exec := r.db.Executor(ctx)

	_, err := exec.ExecContext(ctx, `
		INSERT INTO purchase_orders (id, po_number, facility_id, supplier_id, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		po.ID, po.PONumber, po.FacilityID, po.SupplierID, po.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create purchase order", zap.String("po_number", po.PONumber), zap.Error(err))
		return fmt.Errorf("failed to create purchase order: %w", err)
	}

	for _, l := range po.Lines {
		_, err := exec.ExecContext(ctx, `
			INSERT INTO purchase_order_lines (id, purchase_order_id, line_code, item_name, quantity_ordered, unit_price)
			VALUES (?, ?, ?, ?, ?, ?)`,
			l.ID, po.ID, l.LineCode, l.ItemName, l.QuantityOrdered, l.UnitPrice,
		)
		if err != nil {
			return fmt.Errorf("failed to create purchase order line %s: %w", l.LineCode, err)
		}
	}
	return nil
}

// GetByID retrieves a purchase order with its lines
func (r *PurchaseOrderRepository) GetByID(ctx context.Context, id string) (*entity.PurchaseOrder, error) {
	var po entity.PurchaseOrder
	err := r.db.Executor(ctx).QueryRowContext(ctx, `
		SELECT id, po_number, facility_id, supplier_id, created_at
		FROM purchase_orders WHERE id = ?`, id,
	).Scan(&po.ID, &po.PONumber, &po.FacilityID, &po.SupplierID, &po.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get purchase order", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get purchase order: %w", err)
	}

	if po.Lines, err = r.lines(ctx, po.ID); err != nil {
		return nil, err
	}
	return &po, nil
}

// List retrieves purchase orders of a facility, newest first
func (r *PurchaseOrderRepository) List(ctx context.Context, facilityID string, limit, offset int) ([]*entity.PurchaseOrder, error) {
	query := `SELECT id, po_number, facility_id, supplier_id, created_at FROM purchase_orders`
	var args []interface{}
	if facilityID != "" {
		query += ` WHERE facility_id = ?`
		args = append(args, facilityID)
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchase orders: %w", err)
	}

	var orders []*entity.PurchaseOrder
	for rows.Next() {
		var po entity.PurchaseOrder
		if err := rows.Scan(&po.ID, &po.PONumber, &po.FacilityID, &po.SupplierID, &po.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan purchase order: %w", err)
		}
		orders = append(orders, &po)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// lines are loaded after the cursor is closed; a pool of one connection
	// cannot serve both
	for _, po := range orders {
		if po.Lines, err = r.lines(ctx, po.ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *PurchaseOrderRepository) lines(ctx context.Context, poID string) ([]*entity.PurchaseOrderLine, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, `
		SELECT id, purchase_order_id, line_code, item_name, quantity_ordered, unit_price
		FROM purchase_order_lines WHERE purchase_order_id = ? ORDER BY line_code`, poID)
	if err != nil {
		return nil, fmt.Errorf("failed to get purchase order lines: %w", err)
	}
	defer rows.Close()

	var lines []*entity.PurchaseOrderLine
	for rows.Next() {
		var l entity.PurchaseOrderLine
		if err := rows.Scan(&l.ID, &l.PurchaseOrderID, &l.LineCode, &l.ItemName, &l.QuantityOrdered, &l.UnitPrice); err != nil {
			return nil, fmt.Errorf("failed to scan purchase order line: %w", err)
		}
		lines = append(lines, &l)
	}
	return lines, rows.Err()
}

// GoodsReceiptRepository implements port.GoodsReceiptRepository
type GoodsReceiptRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewGoodsReceiptRepository creates a new goods receipt repository
func NewGoodsReceiptRepository(db *sqlite.DB, logger *zap.Logger) port.GoodsReceiptRepository {
	return &GoodsReceiptRepository{db: db, logger: logger}
}

// Create inserts a goods receipt and its lines
func (r *GoodsReceiptRepository) Create(ctx context.Context, grn *entity.GoodsReceipt) error {
	exec := r.db.Executor(ctx)

	_, err := exec.ExecContext(ctx, `
		INSERT INTO goods_receipts (id, grn_number, purchase_order_id, facility_id, received_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		grn.ID, grn.GRNNumber, grn.PurchaseOrderID, grn.FacilityID, grn.ReceivedAt, grn.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create goods receipt", zap.String("grn_number", grn.GRNNumber), zap.Error(err))
		return fmt.Errorf("failed to create goods receipt: %w", err)
	}

	for _, l := range grn.Lines {
		_, err := exec.ExecContext(ctx, `
			INSERT INTO goods_receipt_lines (id, goods_receipt_id, line_code, item_name, quantity_received, unit_cost)
			VALUES (?, ?, ?, ?, ?, ?)`,
			l.ID, grn.ID, l.LineCode, l.ItemName, l.QuantityReceived, l.UnitCost,
		)
		if err != nil {
			return fmt.Errorf("failed to create goods receipt line %s: %w", l.LineCode, err)
		}
	}
	return nil
}

// GetByID retrieves a goods receipt with its lines
func (r *GoodsReceiptRepository) GetByID(ctx context.Context, id string) (*entity.GoodsReceipt, error) {
	var grn entity.GoodsReceipt
	err := r.db.Executor(ctx).QueryRowContext(ctx, `
		SELECT id, grn_number, purchase_order_id, facility_id, received_at, created_at
		FROM goods_receipts WHERE id = ?`, id,
	).Scan(&grn.ID, &grn.GRNNumber, &grn.PurchaseOrderID, &grn.FacilityID, &grn.ReceivedAt, &grn.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get goods receipt", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get goods receipt: %w", err)
	}

	if grn.Lines, err = r.lines(ctx, grn.ID); err != nil {
		return nil, err
	}
	return &grn, nil
}

// GetByPurchaseOrderID retrieves every goods receipt of a purchase order
func (r *GoodsReceiptRepository) GetByPurchaseOrderID(ctx context.Context, poID string) ([]*entity.GoodsReceipt, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, `
		SELECT id, grn_number, purchase_order_id, facility_id, received_at, created_at
		FROM goods_receipts WHERE purchase_order_id = ? ORDER BY received_at`, poID)
	if err != nil {
		return nil, fmt.Errorf("failed to list goods receipts: %w", err)
	}

	var receipts []*entity.GoodsReceipt
	for rows.Next() {
		var grn entity.GoodsReceipt
		if err := rows.Scan(&grn.ID, &grn.GRNNumber, &grn.PurchaseOrderID, &grn.FacilityID, &grn.ReceivedAt, &grn.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan goods receipt: %w", err)
		}
		receipts = append(receipts, &grn)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, grn := range receipts {
		if grn.Lines, err = r.lines(ctx, grn.ID); err != nil {
			return nil, err
		}
	}
	return receipts, nil
}

func (r *GoodsReceiptRepository) lines(ctx context.Context, grnID string) ([]*entity.GoodsReceiptLine, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, `
		SELECT id, goods_receipt_id, line_code, item_name, quantity_received, unit_cost
		FROM goods_receipt_lines WHERE goods_receipt_id = ? ORDER BY rowid`, grnID)
	if err != nil {
		return nil, fmt.Errorf("failed to get goods receipt lines: %w", err)
	}
	defer rows.Close()

	var lines []*entity.GoodsReceiptLine
	for rows.Next() {
		var l entity.GoodsReceiptLine
		if err := rows.Scan(&l.ID, &l.GoodsReceiptID, &l.LineCode, &l.ItemName, &l.QuantityReceived, &l.UnitCost); err != nil {
			return nil, fmt.Errorf("failed to scan goods receipt line: %w", err)
		}
		lines = append(lines, &l)
	}
	return lines, rows.Err()
}

var (
	_ port.PurchaseOrderRepository = (*PurchaseOrderRepository)(nil)
	_ port.GoodsReceiptRepository  = (*GoodsReceiptRepository)(nil)
)
