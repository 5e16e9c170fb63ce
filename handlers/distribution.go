package handlers

import (
	"context"
	"errors"
	"time"

	"hackathon-engine/ledger"
	"hackathon-engine/middleware"
	"hackathon-engine/models"
	"hackathon-engine/services"
	"hackathon-engine/workers"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// AdminHandler exposes the distribution and emergency control surface. All
// routes here require the admin role forwarded by the gateway.
type AdminHandler struct {
	DB           *gorm.DB
	Distribution *services.DistributionService
	Emergency    *services.EmergencyService
	Monitor      *workers.TxMonitor
	Ledger       ledger.Client
}

func SetupAdminRoutes(app *fiber.App, h *AdminHandler) {
	app.Get("/health", h.Health)

	admin := app.Group("/admin", middleware.UserContextMiddleware(), middleware.RequireRole("admin"))

	admin.Get("/distributions/jobs", h.ListJobs)
	admin.Get("/events/:id/distributions", h.GetDistributions)
	admin.Post("/events/:id/distributions/trigger", h.TriggerDistribution)
	admin.Post("/events/:id/distributions/cancel", h.CancelDistribution)
	admin.Post("/events/:id/distributions/force-retry", h.ForceRetry)

	admin.Get("/emergency", h.EmergencyStatus)
	admin.Post("/emergency/stop", h.EmergencyStop)
	admin.Post("/emergency/resume", h.EmergencyResume)
	admin.Post("/events/:id/phase/override", h.OverridePhase)
}

// Health reports DB, ledger and engine status for the gateway's probes.
func (h *AdminHandler) Health(c *fiber.Ctx) error {
	status := fiber.StatusOK
	body := fiber.Map{
		"status":           "ok",
		"emergency_active": h.Emergency.Active(),
		"active_jobs":      len(h.Distribution.Jobs()),
		"pending_txs":      h.Monitor.PendingCount(),
	}

	sqlDB, err := h.DB.DB()
	if err != nil || sqlDB.Ping() != nil {
		body["database"] = "down"
		body["status"] = "degraded"
		status = fiber.StatusServiceUnavailable
	} else {
		body["database"] = "up"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if block, err := h.Ledger.CurrentBlock(ctx); err != nil {
		body["ledger"] = "down"
		body["status"] = "degraded"
		status = fiber.StatusServiceUnavailable
	} else {
		body["ledger"] = "up"
		body["ledger_block"] = block
	}

	return c.Status(status).JSON(body)
}

func (h *AdminHandler) ListJobs(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"jobs": h.Distribution.Jobs()})
}

func (h *AdminHandler) GetDistributions(c *fiber.Ctx) error {
	eventID := c.Params("id")

	var rows []models.Distribution
	err := h.DB.Where("event_id = ?", eventID).Order("position asc").Find(&rows).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	var txs []models.DistributionTransaction
	h.DB.Where("event_id = ?", eventID).Order("created_at desc").Find(&txs)

	return c.JSON(fiber.Map{"distributions": rows, "transactions": txs})
}

// TriggerDistribution schedules the event's payout immediately.
func (h *AdminHandler) TriggerDistribution(c *fiber.Ctx) error {
	eventID := c.Params("id")
	actor := c.Locals("user_id").(string)

	var req struct {
		Bypass bool `json:"bypass"`
	}
	_ = c.BodyParser(&req)

	err := h.Distribution.ManualTrigger(eventID, models.AdminTrigger(actor), req.Bypass)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEventNotCompleted),
			errors.Is(err, services.ErrPoolNotFunded),
			errors.Is(err, services.ErrPoolDistributed):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, services.ErrPayoutInFlight):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, services.ErrEmergencyStopped):
			return c.Status(fiber.StatusLocked).JSON(fiber.Map{"error": err.Error()})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to trigger distribution"})
		}
	}
	return c.JSON(fiber.Map{"message": "Distribution scheduled", "event_id": eventID})
}

func (h *AdminHandler) CancelDistribution(c *fiber.Ctx) error {
	eventID := c.Params("id")
	actor := c.Locals("user_id").(string)

	err := h.Distribution.Cancel(eventID, models.AdminTrigger(actor))
	if err != nil {
		if errors.Is(err, services.ErrJobProcessing) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Job is mid-submission and cannot be cancelled"})
		}
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"message": "Distribution cancelled", "event_id": eventID})
}

// ForceRetry re-queues a terminally failed distribution.
func (h *AdminHandler) ForceRetry(c *fiber.Ctx) error {
	eventID := c.Params("id")
	actor := c.Locals("user_id").(string)

	if err := h.Emergency.ForceRetry(eventID, models.AdminTrigger(actor)); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"message": "Force retry scheduled", "event_id": eventID})
}

func (h *AdminHandler) EmergencyStatus(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"active":  h.Emergency.Active(),
		"reasons": h.Emergency.Reasons(),
	})
}

func (h *AdminHandler) EmergencyStop(c *fiber.Ctx) error {
	actor := c.Locals("user_id").(string)

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.BodyParser(&req); err != nil || req.Reason == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "reason is required"})
	}

	if err := h.Emergency.Activate(req.Reason, models.AdminTrigger(actor)); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to activate emergency stop"})
	}
	return c.JSON(fiber.Map{"message": "Emergency stop activated"})
}

func (h *AdminHandler) EmergencyResume(c *fiber.Ctx) error {
	actor := c.Locals("user_id").(string)
	h.Emergency.Deactivate(models.AdminTrigger(actor))
	return c.JSON(fiber.Map{"message": "Emergency stop deactivated"})
}

// OverridePhase force-moves an event to a target phase, optionally verifying
// the expected current phase first.
func (h *AdminHandler) OverridePhase(c *fiber.Ctx) error {
	eventID := c.Params("id")
	actor := c.Locals("user_id").(string)

	var req struct {
		FromPhase        string `json:"from_phase"`
		ToPhase          string `json:"to_phase"`
		BypassValidation bool   `json:"bypass_validation"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.ToPhase == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "to_phase is required"})
	}

	err := h.Emergency.OverridePhase(
		eventID,
		models.EventPhase(req.FromPhase),
		models.EventPhase(req.ToPhase),
		models.AdminTrigger(actor),
		req.BypassValidation,
	)
	if err != nil {
		if errors.Is(err, services.ErrPhaseMismatch) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to override phase"})
	}
	return c.JSON(fiber.Map{"message": "Phase overridden", "event_id": eventID, "phase": req.ToPhase})
}
