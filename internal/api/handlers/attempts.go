package handlers

import (
	"encoding/base64"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/acme/voicecampaign/internal/domain"
)

type attemptResponse struct {
	ID             uuid.UUID            `json:"id"`
	CampaignID     uuid.UUID            `json:"campaign_id"`
	ContactName    string               `json:"contact_name,omitempty"`
	SourceRef      string               `json:"source_ref"`
	PhoneNumber    string               `json:"phone_number"`
	Status         domain.AttemptStatus `json:"status"`
	Outcome        *string              `json:"outcome,omitempty"`
	SessionName    string               `json:"session_name,omitempty"`
	ProviderCallID string               `json:"provider_call_id,omitempty"`
	Notes          string               `json:"notes,omitempty"`
	StartedAt      time.Time            `json:"started_at"`
	CompletedAt    *time.Time           `json:"completed_at,omitempty"`
}

type listAttemptsResponse struct {
	Attempts []attemptResponse `json:"attempts"`
	NextPage string            `json:"next_page_token,omitempty"`
}

func (h *HandlerSet) listCampaignAttempts(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	limit, _ := strconv.Atoi(ctx.Query("limit", "100"))
	var pagingState []byte
	if token := ctx.Query("page_token"); token != "" {
		pagingState, err = base64.RawURLEncoding.DecodeString(token)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid page token")
		}
	}

	attempts, nextState, err := h.attempts.ListByCampaign(ctx.Context(), id, limit, pagingState)
	if err != nil {
		return translateError(err)
	}

	resp := listAttemptsResponse{Attempts: make([]attemptResponse, 0, len(attempts))}
	for _, a := range attempts {
		resp.Attempts = append(resp.Attempts, toAttemptResponse(a))
	}
	if len(nextState) > 0 {
		resp.NextPage = base64.RawURLEncoding.EncodeToString(nextState)
	}

	return ctx.Status(http.StatusOK).JSON(resp)
}

// completeAttempt finalizes a live attempt with its call result, as reported
// by the provider webhook or an operator.
func (h *HandlerSet) completeAttempt(ctx *fiber.Ctx) error {
	campaignID, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}
	attemptID, err := parseUUID(ctx.Params("attempt_id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid attempt id")
	}

	var req struct {
		Outcome  string `json:"outcome"`
		PickedUp bool   `json:"picked_up"`
	}
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	if err := h.campaigns.CompleteAttempt(ctx.Context(), campaignID, attemptID, req.Outcome, req.PickedUp); err != nil {
		return translateError(err)
	}
	return ctx.SendStatus(http.StatusNoContent)
}

// recordAttemptOutcome applies an after-the-fact outcome label to an
// attempt, adjusting the campaign's outcome histogram.
func (h *HandlerSet) recordAttemptOutcome(ctx *fiber.Ctx) error {
	campaignID, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}
	attemptID, err := parseUUID(ctx.Params("attempt_id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid attempt id")
	}

	var req struct {
		Outcome string `json:"outcome"`
	}
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if req.Outcome == "" {
		return fiber.NewError(http.StatusBadRequest, "outcome is required")
	}

	if err := h.campaigns.RecordOutcome(ctx.Context(), campaignID, attemptID, req.Outcome); err != nil {
		return translateError(err)
	}
	return ctx.SendStatus(http.StatusNoContent)
}

func toAttemptResponse(a domain.CallAttempt) attemptResponse {
	return attemptResponse{
		ID:             a.ID,
		CampaignID:     a.CampaignID,
		ContactName:    a.ContactName,
		SourceRef:      a.SourceRef,
		PhoneNumber:    a.PhoneNumber,
		Status:         a.Status,
		Outcome:        a.Outcome,
		SessionName:    a.SessionName,
		ProviderCallID: a.ProviderCallID,
		Notes:          a.Notes,
		StartedAt:      a.StartedAt,
		CompletedAt:    a.CompletedAt,
	}
}
