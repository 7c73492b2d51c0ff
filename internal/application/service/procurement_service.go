package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/garyjia/invoice-matching/internal/application/port"
	"github.com/garyjia/invoice-matching/internal/domain/entity"
	"github.com/garyjia/invoice-matching/pkg/utils"
)

// POLineInput is one ordered line
type POLineInput struct {
	LineCode        string          `json:"lineCode" validate:"required"`
	ItemName        string          `json:"itemName" validate:"required"`
	QuantityOrdered decimal.Decimal `json:"quantityOrdered" validate:"dnonneg"`
	UnitPrice       decimal.Decimal `json:"unitPrice" validate:"dnonneg"`
}

// CreatePurchaseOrderInput registers a purchase order issued elsewhere
type CreatePurchaseOrderInput struct {
	PONumber   string        `json:"poNumber" validate:"required"`
	FacilityID string        `json:"facilityId" validate:"required"`
	SupplierID string        `json:"supplierId" validate:"required"`
	Lines      []POLineInput `json:"lines" validate:"required,min=1,dive"`
}

// GRNLineInput is one received line
type GRNLineInput struct {
	LineCode         string          `json:"lineCode" validate:"required"`
	ItemName         string          `json:"itemName"`
	QuantityReceived decimal.Decimal `json:"quantityReceived" validate:"dnonneg"`
	UnitCost         decimal.Decimal `json:"unitCost" validate:"dnonneg"`
}

// CreateGoodsReceiptInput registers a goods-received note
type CreateGoodsReceiptInput struct {
	GRNNumber       string         `json:"grnNumber" validate:"required"`
	PurchaseOrderID string         `json:"purchaseOrderId" validate:"required"`
	ReceivedAt      time.Time      `json:"receivedAt"`
	Lines           []GRNLineInput `json:"lines" validate:"required,min=1,dive"`
}

// ProcurementService keeps the local registry of purchase orders and goods
// receipts that matches are checked against
type ProcurementService interface {
	CreatePurchaseOrder(ctx context.Context, in CreatePurchaseOrderInput) (*entity.PurchaseOrder, error)
	GetPurchaseOrder(ctx context.Context, facilityID, id string) (*entity.PurchaseOrder, error)
	CreateGoodsReceipt(ctx context.Context, in CreateGoodsReceiptInput) (*entity.GoodsReceipt, error)
	GetGoodsReceipt(ctx context.Context, facilityID, id string) (*entity.GoodsReceipt, error)
}

type procurementServiceImpl struct {
	orders    port.PurchaseOrderRepository
	receipts  port.GoodsReceiptRepository
	txManager port.TransactionManager
	logger    Logger
	validate  *validator.Validate
}

// NewProcurementService creates a new ProcurementService
func NewProcurementService(
	orders port.PurchaseOrderRepository,
	receipts port.GoodsReceiptRepository,
	txManager port.TransactionManager,
	logger Logger,
) ProcurementService {
	return &procurementServiceImpl{
		orders:    orders,
		receipts:  receipts,
		txManager: txManager,
		logger:    logger,
		validate:  utils.NewValidator(),
	}
}

// CreatePurchaseOrder stores a purchase order and its lines
func (s *procurementServiceImpl) CreatePurchaseOrder(ctx context.Context, in CreatePurchaseOrderInput) (*entity.PurchaseOrder, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, newValidationError("invalid purchase order", utils.FieldErrors(err))
	}

	po := &entity.PurchaseOrder{
		ID:         uuid.NewString(),
		PONumber:   in.PONumber,
		FacilityID: in.FacilityID,
		SupplierID: in.SupplierID,
		CreatedAt:  time.Now().UTC(),
	}

	seen := make(map[string]bool, len(in.Lines))
	for i, l := range in.Lines {
		if seen[l.LineCode] {
			return nil, newValidationError("invalid purchase order",
				map[string]string{fmt.Sprintf("lines[%d].lineCode", i): "duplicate line code " + l.LineCode})
		}
		seen[l.LineCode] = true
		po.Lines = append(po.Lines, &entity.PurchaseOrderLine{
			ID:              uuid.NewString(),
			PurchaseOrderID: po.ID,
			LineCode:        l.LineCode,
			ItemName:        l.ItemName,
			QuantityOrdered: l.QuantityOrdered,
			UnitPrice:       l.UnitPrice,
		})
	}

	if err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.orders.Create(txCtx, po)
	}); err != nil {
		return nil, fmt.Errorf("create purchase order: %w", err)
	}

	s.logger.Info("Purchase order registered", "po_id", po.ID, "po_number", po.PONumber, "facility_id", po.FacilityID)
	return po, nil
}

// GetPurchaseOrder loads a purchase order with its lines
func (s *procurementServiceImpl) GetPurchaseOrder(ctx context.Context, facilityID, id string) (*entity.PurchaseOrder, error) {
	po, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "purchase order", id)
	}
	if facilityID != "" && po.FacilityID != facilityID {
		return nil, &NotFoundError{Resource: "purchase order", ID: id}
	}
	return po, nil
}

// CreateGoodsReceipt stores a GRN. Every received line must exist on the
// purchase order.
func (s *procurementServiceImpl) CreateGoodsReceipt(ctx context.Context, in CreateGoodsReceiptInput) (*entity.GoodsReceipt, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, newValidationError("invalid goods receipt", utils.FieldErrors(err))
	}

	var grn *entity.GoodsReceipt
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		po, err := s.orders.GetByID(txCtx, in.PurchaseOrderID)
		if err != nil {
			return notFoundOr(err, "purchase order", in.PurchaseOrderID)
		}

		now := time.Now().UTC()
		grn = &entity.GoodsReceipt{
			ID:              uuid.NewString(),
			GRNNumber:       in.GRNNumber,
			PurchaseOrderID: po.ID,
			FacilityID:      po.FacilityID,
			ReceivedAt:      in.ReceivedAt,
			CreatedAt:       now,
		}
		if grn.ReceivedAt.IsZero() {
			grn.ReceivedAt = now
		}

		for i, l := range in.Lines {
			poLine, ok := po.Line(l.LineCode)
			if !ok {
				return newValidationError("invalid goods receipt",
					map[string]string{fmt.Sprintf("lines[%d].lineCode", i): "not on purchase order " + po.PONumber})
			}
			name := l.ItemName
			if name == "" {
				name = poLine.ItemName
			}
			grn.Lines = append(grn.Lines, &entity.GoodsReceiptLine{
				ID:               uuid.NewString(),
				GoodsReceiptID:   grn.ID,
				LineCode:         l.LineCode,
				ItemName:         name,
				QuantityReceived: l.QuantityReceived,
				UnitCost:         l.UnitCost,
			})
		}

		return s.receipts.Create(txCtx, grn)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Goods receipt registered", "grn_id", grn.ID, "grn_number", grn.GRNNumber, "po_id", grn.PurchaseOrderID)
	return grn, nil
}

// GetGoodsReceipt loads a GRN with its lines
func (s *procurementServiceImpl) GetGoodsReceipt(ctx context.Context, facilityID, id string) (*entity.GoodsReceipt, error) {
	grn, err := s.receipts.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "goods receipt", id)
	}
	if facilityID != "" && grn.FacilityID != facilityID {
		return nil, &NotFoundError{Resource: "goods receipt", ID: id}
	}
	return grn, nil
}
