package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/acme/voicecampaign/internal/repository"
	campaignsvc "github.com/acme/voicecampaign/internal/service/campaign"
	"github.com/acme/voicecampaign/pkg/logger"
)

// HealthProber checks backing stores and returns a map of component name to
// error text, empty when everything is reachable.
type HealthProber func(ctx context.Context) map[string]string

// HandlerSet bundles all HTTP handlers.
type HandlerSet struct {
	campaigns *campaignsvc.Service
	attempts  repository.AttemptStore
	health    HealthProber
	logger    *logger.Logger
}

// NewHandlerSet creates a new handler bundle. health may be nil.
func NewHandlerSet(campaigns *campaignsvc.Service, attempts repository.AttemptStore, health HealthProber, lg *logger.Logger) *HandlerSet {
	return &HandlerSet{
		campaigns: campaigns,
		attempts:  attempts,
		health:    health,
		logger:    lg,
	}
}

// Register wires all routes onto the fiber app.
func (h *HandlerSet) Register(app *fiber.App) {
	app.Get("/healthz", h.healthz)

	api := app.Group("/api")
	v1 := api.Group("/v1")

	campaigns := v1.Group("/campaigns")
	campaigns.Post("/", h.createCampaign)
	campaigns.Get("/", h.listCampaigns)
	campaigns.Get("/:id", h.getCampaign)
	campaigns.Post("/:id/start", h.startCampaign)
	campaigns.Post("/:id/pause", h.pauseCampaign)
	campaigns.Post("/:id/contacts", h.addContacts)
	campaigns.Get("/:id/outcomes", h.campaignOutcomes)
	campaigns.Get("/:id/attempts", h.listCampaignAttempts)
	campaigns.Post("/:id/attempts/:attempt_id/complete", h.completeAttempt)
	campaigns.Post("/:id/attempts/:attempt_id/outcome", h.recordAttemptOutcome)
}

// ErrorHandler provides centralized error responses.
func (h *HandlerSet) ErrorHandler(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := err.Error()

	if fiberErr, ok := err.(*fiber.Error); ok {
		code = fiberErr.Code
		message = fiberErr.Message
	}

	if code == fiber.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
		message = "internal server error"
	}

	return ctx.Status(code).JSON(fiber.Map{
		"error":    message,
		"trace_id": ctx.GetRespHeader("Trace-Id"),
	})
}

func (h *HandlerSet) healthz(ctx *fiber.Ctx) error {
	if h.health == nil {
		return ctx.JSON(fiber.Map{"status": "ok"})
	}

	probeCtx, cancel := context.WithTimeout(ctx.Context(), 2*time.Second)
	defer cancel()

	errs := h.health(probeCtx)
	if len(errs) > 0 {
		return ctx.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "degraded",
			"errors": errs,
		})
	}
	return ctx.JSON(fiber.Map{"status": "ok"})
}
