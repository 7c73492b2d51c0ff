package http

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/invoice-matching/internal/application/port"
	"github.com/garyjia/invoice-matching/internal/application/service"
	"github.com/garyjia/invoice-matching/internal/domain/entity"
	"github.com/garyjia/invoice-matching/internal/infrastructure/report"
	"github.com/garyjia/invoice-matching/pkg/utils"
)

const (
	// HeaderUserID identifies the acting user; required on mutations
	HeaderUserID = "X-User-ID"
	// HeaderFacilityID scopes the request to one facility
	HeaderFacilityID = "X-Facility-ID"
)

// Version is reported by the health check
const Version = "1.0.0"

// HealthChecker reports overall health and a status line per component
type HealthChecker func() (healthy bool, components map[string]string)

// Handlers contains all HTTP request handlers
type Handlers struct {
	matching    service.MatchingService
	procurement service.ProcurementService
	writer      *report.Writer
	logger      Logger
	health      HealthChecker
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	matching service.MatchingService,
	procurement service.ProcurementService,
	writer *report.Writer,
	logger Logger,
) *Handlers {
	return &Handlers{
		matching:    matching,
		procurement: procurement,
		writer:      writer,
		logger:      logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool              `json:"success"`
	Data    interface{}       `json:"data,omitempty"`
	Error   string            `json:"error,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  string            `json:"timestamp"`
	Version    string            `json:"version"`
	Components map[string]string `json:"components,omitempty"`
}

// ListMatchesRequest represents query parameters for listing matches
type ListMatchesRequest struct {
	FacilityID string `form:"facilityId"`
	Status     string `form:"status"`
	SupplierID string `form:"supplierId"`
	Query      string `form:"q"`
	Limit      int    `form:"limit"`
	Offset     int    `form:"offset"`
}

type flagRequest struct {
	Reason string `json:"reason"`
}

type paidRequest struct {
	PaymentRef string `json:"paymentRef"`
}

const maxListLimit = 500

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   Version,
	}

	healthy := true
	if h.health != nil {
		healthy, resp.Components = h.health()
	}
	if !healthy {
		resp.Status = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, Response{Success: false, Data: resp, Error: "service unhealthy"})
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: resp})
}

// ListMatches handles GET /api/invoice-matching
func (h *Handlers) ListMatches(c *gin.Context) {
	in, ok := h.listInput(c)
	if !ok {
		return
	}

	matches, err := h.matching.List(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err, "failed to list matches")
		return
	}
	if matches == nil {
		matches = []*entity.InvoiceMatch{}
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: matches})
}

// Stats handles GET /api/invoice-matching/stats
func (h *Handlers) Stats(c *gin.Context) {
	facilityID, ok := facilityScope(c)
	if !ok {
		return
	}
	stats, err := h.matching.Stats(c.Request.Context(), facilityID)
	if err != nil {
		h.fail(c, err, "failed to compute stats")
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: stats})
}

// ExportMatches handles GET /api/invoice-matching/export
func (h *Handlers) ExportMatches(c *gin.Context) {
	in, ok := h.listInput(c)
	if !ok {
		return
	}

	matches, err := h.matching.List(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err, "failed to list matches")
		return
	}

	content, err := h.writer.Render(matches)
	if err != nil {
		h.fail(c, err, "failed to render export")
		return
	}

	filename := "invoice-matches-" + time.Now().UTC().Format("20060102") + ".xlsx"
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, report.ContentType, content)
}

// GetMatch handles GET /api/invoice-matching/:id
func (h *Handlers) GetMatch(c *gin.Context) {
	m, err := h.matching.Get(c.Request.Context(), c.GetHeader(HeaderFacilityID), c.Param("id"))
	if err != nil {
		h.fail(c, err, "failed to get match")
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: m})
}

// MatchHistory handles GET /api/invoice-matching/:id/history
func (h *Handlers) MatchHistory(c *gin.Context) {
	entries, err := h.matching.History(c.Request.Context(), c.GetHeader(HeaderFacilityID), c.Param("id"))
	if err != nil {
		h.fail(c, err, "failed to get history")
		return
	}
	if entries == nil {
		entries = []*entity.MatchHistory{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: entries})
}

// CreateMatch handles POST /api/invoice-matching
func (h *Handlers) CreateMatch(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var in service.CreateMatchInput
	if !bindJSON(c, &in, false) {
		return
	}
	if in.FacilityID == "" {
		in.FacilityID = actor.FacilityID
	}

	m, err := h.matching.Create(c.Request.Context(), actor, in)
	if err != nil {
		h.fail(c, err, "failed to create match")
		return
	}

	h.logger.Info("Invoice match created",
		"match_id", m.ID,
		"match_number", m.MatchNumber,
		"user_id", actor.UserID)
	c.JSON(http.StatusCreated, Response{Success: true, Data: m})
}

// EvaluateMatch handles POST /api/invoice-matching/:id/evaluate
func (h *Handlers) EvaluateMatch(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	m, err := h.matching.Evaluate(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.fail(c, err, "failed to evaluate match")
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: m})
}

// ResolveItem handles POST /api/invoice-matching/items/:itemId/resolve
func (h *Handlers) ResolveItem(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var in service.ResolveInput
	if !bindJSON(c, &in, false) {
		return
	}
	in.Notes = utils.SanitizeString(in.Notes)

	item, err := h.matching.ResolveVariance(c.Request.Context(), actor, c.Param("itemId"), in)
	if err != nil {
		h.fail(c, err, "failed to resolve variance")
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: item})
}

// Approve handles POST /api/invoice-matching/:id/approve
func (h *Handlers) Approve(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var in service.ApproveInput
	if !bindJSON(c, &in, true) {
		return
	}
	in.Notes = utils.SanitizeString(in.Notes)

	m, err := h.matching.Approve(c.Request.Context(), actor, c.Param("id"), in)
	if err != nil {
		h.fail(c, err, "failed to approve match")
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: m})
}

// Flag handles POST /api/invoice-matching/:id/flag
func (h *Handlers) Flag(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req flagRequest
	if !bindJSON(c, &req, false) {
		return
	}

	m, err := h.matching.Flag(c.Request.Context(), actor, c.Param("id"), utils.SanitizeString(req.Reason))
	if err != nil {
		h.fail(c, err, "failed to flag match")
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: m})
}

// MarkPaid handles POST /api/invoice-matching/:id/paid
func (h *Handlers) MarkPaid(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req paidRequest
	if !bindJSON(c, &req, false) {
		return
	}

	m, err := h.matching.MarkPaid(c.Request.Context(), actor, c.Param("id"), utils.SanitizeString(req.PaymentRef))
	if err != nil {
		h.fail(c, err, "failed to mark match paid")
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: m})
}

// CreatePurchaseOrder handles POST /api/purchase-orders
func (h *Handlers) CreatePurchaseOrder(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var in service.CreatePurchaseOrderInput
	if !bindJSON(c, &in, false) {
		return
	}
	if in.FacilityID == "" {
		in.FacilityID = actor.FacilityID
	}

	po, err := h.procurement.CreatePurchaseOrder(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err, "failed to create purchase order")
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: po})
}

// GetPurchaseOrder handles GET /api/purchase-orders/:id
func (h *Handlers) GetPurchaseOrder(c *gin.Context) {
	po, err := h.procurement.GetPurchaseOrder(c.Request.Context(), c.GetHeader(HeaderFacilityID), c.Param("id"))
	if err != nil {
		h.fail(c, err, "failed to get purchase order")
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: po})
}

// CreateGoodsReceipt handles POST /api/goods-receipts
func (h *Handlers) CreateGoodsReceipt(c *gin.Context) {
	if _, ok := requireActor(c); !ok {
		return
	}
	var in service.CreateGoodsReceiptInput
	if !bindJSON(c, &in, false) {
		return
	}

	grn, err := h.procurement.CreateGoodsReceipt(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err, "failed to create goods receipt")
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: grn})
}

// GetGoodsReceipt handles GET /api/goods-receipts/:id
func (h *Handlers) GetGoodsReceipt(c *gin.Context) {
	grn, err := h.procurement.GetGoodsReceipt(c.Request.Context(), c.GetHeader(HeaderFacilityID), c.Param("id"))
	if err != nil {
		h.fail(c, err, "failed to get goods receipt")
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: grn})
}

func (h *Handlers) listInput(c *gin.Context) (service.ListInput, bool) {
	var req ListMatchesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid query parameters"})
		return service.ListInput{}, false
	}
	if req.Limit < 0 || req.Offset < 0 {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "limit and offset must not be negative"})
		return service.ListInput{}, false
	}
	if req.Limit > maxListLimit {
		req.Limit = maxListLimit
	}

	facilityID, ok := facilityScope(c)
	if !ok {
		return service.ListInput{}, false
	}
	return service.ListInput{
		FacilityID: facilityID,
		Status:     entity.MatchStatus(req.Status),
		SupplierID: req.SupplierID,
		Query:      req.Query,
		Limit:      req.Limit,
		Offset:     req.Offset,
	}, true
}

// fail maps a service error onto a status code. Unexpected errors are logged
// and their text withheld from the client.
func (h *Handlers) fail(c *gin.Context, err error, msg string) {
	var validationErr *service.ValidationError
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: validationErr.Message, Fields: validationErr.Fields})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, Response{Success: false, Error: err.Error()})
	case errors.Is(err, service.ErrInvalidState):
		c.JSON(http.StatusConflict, Response{Success: false, Error: err.Error()})
	case errors.Is(err, port.ErrVersionConflict):
		c.JSON(http.StatusConflict, Response{Success: false, Error: "match was modified concurrently, reload and retry"})
	case errors.Is(err, port.ErrLockTimeout):
		c.JSON(http.StatusConflict, Response{Success: false, Error: "match is busy, retry later"})
	default:
		h.logger.Error(msg, "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: msg})
	}
}

func requireActor(c *gin.Context) (service.Actor, bool) {
	userID := c.GetHeader(HeaderUserID)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, Response{Success: false, Error: "missing " + HeaderUserID + " header"})
		return service.Actor{}, false
	}
	return service.Actor{UserID: userID, FacilityID: c.GetHeader(HeaderFacilityID)}, true
}

// bindJSON decodes the body into dst. An empty body is accepted when optional.
func bindJSON(c *gin.Context, dst interface{}, optional bool) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body: " + err.Error()})
	return false
}

// facilityScope resolves the facility for list-style reads. The header
// scopes the caller; the facilityId query param only fills in when the
// header is absent and must agree with it otherwise.
func facilityScope(c *gin.Context) (string, bool) {
	header := c.GetHeader(HeaderFacilityID)
	query := c.Query("facilityId")
	switch {
	case header == "":
		return query, true
	case query == "" || query == header:
		return header, true
	}
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error:   "facilityId query parameter does not match " + HeaderFacilityID + " header",
	})
	return "", false
}
