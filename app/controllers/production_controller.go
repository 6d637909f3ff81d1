package controllers

import (
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/stitchtrackhq/StitchTrack/app/models"
	"github.com/stitchtrackhq/StitchTrack/app/repository"
	"github.com/stitchtrackhq/StitchTrack/internal/pkg/billing"
	"github.com/stitchtrackhq/StitchTrack/internal/pkg/database"
	"github.com/stitchtrackhq/StitchTrack/internal/pkg/production"
	"github.com/stitchtrackhq/StitchTrack/internal/pkg/usercontext"
)

// HandleListLines handles GET /api/v1/lines.
func HandleListLines(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	lines, err := repository.GetGlobalRepositories().ProductionLine.ListByFactory(userCtx.FactoryID, c.QueryBool("active"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load lines"})
	}
	return c.JSON(fiber.Map{"lines": lines})
}

type createLineRequest struct {
	Name    string `json:"name"`
	Section string `json:"section"`
}

// HandleCreateLine handles POST /api/v1/lines. Creation is capped by the
// billing tier's max_lines quota, counted over active lines only.
func HandleCreateLine(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req createLineRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}

	record, err := billing.NewRepository(database.GetDB()).GetOrCreateBillingRecord(userCtx.FactoryID)
	if err != nil {
		log.Printf("[Production] load billing record for factory %d: %v", userCtx.FactoryID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to check line quota"})
	}
	if !record.IsEntitled(time.Now()) {
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{"error": "payment_required", "message": "Your subscription is not active. Please update billing to add lines."})
	}

	repos := repository.GetGlobalRepositories()
	active, err := repos.ProductionLine.CountActive(userCtx.FactoryID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to check line quota"})
	}
	if active >= int64(record.MaxLines) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":   "quota_exceeded",
			"message": "Your plan allows up to " + strconv.Itoa(record.MaxLines) + " active lines. Upgrade to add more.",
		})
	}

	line := &models.ProductionLine{
		FactoryID: userCtx.FactoryID,
		Name:      req.Name,
		Section:   req.Section,
		IsActive:  true,
	}
	if line.Section == "" {
		line.Section = models.SectionSewing
	}
	if err := line.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}
	if err := repos.ProductionLine.Create(line); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to create line"})
	}
	production.InvalidateDashboard(userCtx.FactoryID)
	return c.Status(fiber.StatusCreated).JSON(line)
}

// HandleDeactivateLine handles DELETE /api/v1/lines/:id. Lines are never
// hard-deleted; deactivation frees the quota slot and keeps history intact.
func HandleDeactivateLine(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid line id"})
	}
	if err := repository.GetGlobalRepositories().ProductionLine.Deactivate(userCtx.FactoryID, uint(id)); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to deactivate line"})
	}
	production.InvalidateDashboard(userCtx.FactoryID)
	return c.JSON(fiber.Map{"deactivated": true})
}

type createPORequest struct {
	PONumber    string `json:"po_number"`
	BuyerName   string `json:"buyer_name"`
	StyleNumber string `json:"style_number"`
	OrderQty    int    `json:"order_qty"`
	ShipDate    string `json:"ship_date"`
}

// HandleCreatePurchaseOrder handles POST /api/v1/purchase-orders.
func HandleCreatePurchaseOrder(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req createPORequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}
	shipDate, err := time.Parse("2006-01-02", req.ShipDate)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "ship_date must be YYYY-MM-DD"})
	}

	po := &models.PurchaseOrder{
		FactoryID:   userCtx.FactoryID,
		PONumber:    req.PONumber,
		BuyerName:   req.BuyerName,
		StyleNumber: req.StyleNumber,
		OrderQty:    req.OrderQty,
		ShipDate:    shipDate,
		Status:      models.POStatusOpen,
	}
	if err := po.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}
	if err := repository.GetGlobalRepositories().PurchaseOrder.Create(po); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to create purchase order"})
	}
	production.InvalidateDashboard(userCtx.FactoryID)
	return c.Status(fiber.StatusCreated).JSON(po)
}

// HandleListPurchaseOrders handles GET /api/v1/purchase-orders.
func HandleListPurchaseOrders(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	orders, err := repository.GetGlobalRepositories().PurchaseOrder.ListByFactory(userCtx.FactoryID, c.Query("status"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load purchase orders"})
	}
	return c.JSON(fiber.Map{"purchase_orders": orders})
}

type updatePOStatusRequest struct {
	Status string `json:"status"`
}

// HandleUpdatePurchaseOrderStatus handles PATCH /api/v1/purchase-orders/:id/status.
func HandleUpdatePurchaseOrderStatus(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid purchase order id"})
	}
	var req updatePOStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}

	repos := repository.GetGlobalRepositories()
	po, err := repos.PurchaseOrder.GetByID(userCtx.FactoryID, uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Purchase order not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load purchase order"})
	}
	po.Status = req.Status
	if err := po.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}
	if err := repos.PurchaseOrder.Update(po); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to update purchase order"})
	}
	production.InvalidateDashboard(userCtx.FactoryID)
	return c.JSON(po)
}

type submitEntryRequest struct {
	LineID          uint   `json:"line_id"`
	PurchaseOrderID uint   `json:"purchase_order_id"`
	WorkDate        string `json:"work_date"`
	Stage           string `json:"stage"`
	TargetQty       int    `json:"target_qty"`
	ActualQty       int    `json:"actual_qty"`
	DefectQty       int    `json:"defect_qty"`
}

// HandleSubmitEntry handles POST /api/v1/entries. Re-submitting the same
// line/PO/date/stage slot overwrites the previous figures.
func HandleSubmitEntry(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req submitEntryRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}
	workDate, err := time.Parse("2006-01-02", req.WorkDate)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "work_date must be YYYY-MM-DD"})
	}

	repos := repository.GetGlobalRepositories()
	line, err := repos.ProductionLine.GetByID(userCtx.FactoryID, req.LineID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Line not found"})
	}
	if !line.IsActive {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Line is inactive"})
	}
	po, err := repos.PurchaseOrder.GetByID(userCtx.FactoryID, req.PurchaseOrderID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Purchase order not found"})
	}
	if po.Status != models.POStatusOpen {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Purchase order is not open"})
	}

	entry := &models.ProductionEntry{
		FactoryID:       userCtx.FactoryID,
		LineID:          req.LineID,
		PurchaseOrderID: req.PurchaseOrderID,
		WorkDate:        workDate,
		Stage:           req.Stage,
		TargetQty:       req.TargetQty,
		ActualQty:       req.ActualQty,
		DefectQty:       req.DefectQty,
		SubmittedBy:     userCtx.UserID,
	}
	if err := entry.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}
	if err := repos.ProductionEntry.Upsert(entry); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to save entry"})
	}
	production.InvalidateDashboard(userCtx.FactoryID)
	return c.Status(fiber.StatusCreated).JSON(entry)
}

// HandleGetPurchaseOrderProgress handles GET /api/v1/purchase-orders/:id/progress.
func HandleGetPurchaseOrderProgress(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid purchase order id"})
	}

	progress, err := loadProgress(userCtx.FactoryID, uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Purchase order not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load progress"})
	}
	return c.JSON(progress)
}

// HandleGetDashboard handles GET /api/v1/dashboard. The summary is cached
// briefly and invalidated whenever figures change.
func HandleGetDashboard(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	if cached := production.CachedDashboard(userCtx.FactoryID); cached != nil {
		return c.JSON(cached)
	}

	repos := repository.GetGlobalRepositories()
	active, err := repos.ProductionLine.CountActive(userCtx.FactoryID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load dashboard"})
	}
	record, err := billing.NewRepository(database.GetDB()).GetOrCreateBillingRecord(userCtx.FactoryID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load dashboard"})
	}
	orders, err := repos.PurchaseOrder.ListByFactory(userCtx.FactoryID, models.POStatusOpen)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load dashboard"})
	}

	now := time.Now().UTC()
	progress := make([]production.POProgress, 0, len(orders))
	for i := range orders {
		entries, err := repos.ProductionEntry.ListByPurchaseOrder(userCtx.FactoryID, orders[i].ID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load dashboard"})
		}
		progress = append(progress, production.Aggregate(&orders[i], entries, now))
	}

	summary := production.Summarize(userCtx.FactoryID, int(active), record.MaxLines, progress, now)
	production.StoreDashboard(summary)
	return c.JSON(summary)
}

// HandleBuyerPOView handles GET /api/v1/po-view/:token, the read-only
// buyer-facing progress page. No authentication; the token is the capability.
func HandleBuyerPOView(c *fiber.Ctx) error {
	po, err := repository.GetGlobalRepositories().PurchaseOrder.GetByViewToken(c.Params("token"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Purchase order not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load purchase order"})
	}

	progress, err := loadProgress(po.FactoryID, po.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load progress"})
	}
	return c.JSON(progress)
}

func loadProgress(factoryID, purchaseOrderID uint) (*production.POProgress, error) {
	repos := repository.GetGlobalRepositories()
	po, err := repos.PurchaseOrder.GetByID(factoryID, purchaseOrderID)
	if err != nil {
		return nil, err
	}
	entries, err := repos.ProductionEntry.ListByPurchaseOrder(factoryID, purchaseOrderID)
	if err != nil {
		return nil, err
	}
	progress := production.Aggregate(po, entries, time.Now().UTC())
	return &progress, nil
}
