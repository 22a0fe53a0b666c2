package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/acme/voicecampaign/internal/domain"
	campaignsvc "github.com/acme/voicecampaign/internal/service/campaign"
)

type contactRequest struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
	SourceRef   string `json:"source_ref"`
	DoNotCall   bool   `json:"do_not_call"`
}

type contactSourceRequest struct {
	Type string `json:"type"`
	Ref  string `json:"ref"`
}

type createCampaignRequest struct {
	Name        string                `json:"name"`
	AgentID     string                `json:"agent_id"`
	Prompt      string                `json:"prompt"`
	TimeZone    string                `json:"time_zone"`
	DailyCap    int                   `json:"daily_cap"`
	StartHour   int                   `json:"start_hour"`
	EndHour     int                   `json:"end_hour"`
	CallingDays []int                 `json:"calling_days"`
	Source      *contactSourceRequest `json:"source"`
	Contacts    []contactRequest      `json:"contacts"`
}

type campaignResponse struct {
	ID                uuid.UUID              `json:"id"`
	Name              string                 `json:"name"`
	AgentID           string                 `json:"agent_id"`
	Prompt            string                 `json:"prompt"`
	TimeZone          string                 `json:"time_zone"`
	ExecutionStatus   domain.ExecutionStatus `json:"execution_status"`
	SourceType        string                 `json:"source_type"`
	SourceRef         string                 `json:"source_ref,omitempty"`
	StartHour         int                    `json:"start_hour"`
	EndHour           int                    `json:"end_hour"`
	CallingDays       []int                  `json:"calling_days"`
	DailyCap          int                    `json:"daily_cap"`
	CurrentDailyCalls int                    `json:"current_daily_calls"`
	TotalDials        int64                  `json:"total_dials"`
	TotalPickups      int64                  `json:"total_pickups"`
	PauseReason       string                 `json:"pause_reason,omitempty"`
	NextCallAt        *time.Time             `json:"next_call_at,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
	StartedAt         *time.Time             `json:"started_at,omitempty"`
	CompletedAt       *time.Time             `json:"completed_at,omitempty"`
}

type listCampaignsResponse struct {
	Campaigns []campaignResponse `json:"campaigns"`
}

type outcomeTallyResponse struct {
	Outcome string `json:"outcome"`
	Count   int64  `json:"count"`
}

func (h *HandlerSet) createCampaign(ctx *fiber.Ctx) error {
	var req createCampaignRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	input := campaignsvc.CreateCampaignInput{
		Name:      req.Name,
		AgentID:   req.AgentID,
		Prompt:    req.Prompt,
		TimeZone:  req.TimeZone,
		DailyCap:  req.DailyCap,
		StartHour: req.StartHour,
		EndHour:   req.EndHour,
	}
	for _, d := range req.CallingDays {
		input.CallingDays = append(input.CallingDays, time.Weekday(d))
	}
	if req.Source != nil {
		input.Source = domain.ContactSource{
			Type: domain.ContactSourceType(req.Source.Type),
			Ref:  req.Source.Ref,
		}
	} else {
		input.Source = domain.ContactSource{Type: domain.ContactSourceInline}
	}
	for _, c := range req.Contacts {
		input.Contacts = append(input.Contacts, campaignsvc.ContactInput{
			Name:        c.Name,
			PhoneNumber: c.PhoneNumber,
			SourceRef:   c.SourceRef,
			DoNotCall:   c.DoNotCall,
		})
	}

	campaign, err := h.campaigns.Create(ctx.Context(), input)
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusCreated).JSON(toCampaignResponse(campaign))
}

func (h *HandlerSet) listCampaigns(ctx *fiber.Ctx) error {
	limit, _ := strconv.Atoi(ctx.Query("limit", "50"))
	var afterID *uuid.UUID
	if afterStr := ctx.Query("after_id"); afterStr != "" {
		if id, err := uuid.Parse(afterStr); err == nil {
			afterID = &id
		}
	}

	campaigns, err := h.campaigns.List(ctx.Context(), afterID, limit)
	if err != nil {
		return translateError(err)
	}

	resp := listCampaignsResponse{Campaigns: make([]campaignResponse, 0, len(campaigns))}
	for _, c := range campaigns {
		resp.Campaigns = append(resp.Campaigns, toCampaignResponse(c))
	}

	return ctx.Status(http.StatusOK).JSON(resp)
}

func (h *HandlerSet) getCampaign(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	campaign, err := h.campaigns.Get(ctx.Context(), id)
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusOK).JSON(toCampaignResponse(campaign))
}

func (h *HandlerSet) startCampaign(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	campaign, err := h.campaigns.Start(ctx.Context(), id)
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(toCampaignResponse(campaign))
}

func (h *HandlerSet) pauseCampaign(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid request body")
		}
	}
	if req.Reason == "" {
		req.Reason = "paused by operator"
	}

	if err := h.campaigns.Pause(ctx.Context(), id, req.Reason); err != nil {
		return translateError(err)
	}
	return ctx.SendStatus(http.StatusNoContent)
}

func (h *HandlerSet) addContacts(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	var req struct {
		Contacts []contactRequest `json:"contacts"`
	}
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	inputs := make([]campaignsvc.ContactInput, 0, len(req.Contacts))
	for _, c := range req.Contacts {
		inputs = append(inputs, campaignsvc.ContactInput{
			Name:        c.Name,
			PhoneNumber: c.PhoneNumber,
			SourceRef:   c.SourceRef,
			DoNotCall:   c.DoNotCall,
		})
	}

	if err := h.campaigns.AddContacts(ctx.Context(), id, inputs); err != nil {
		return translateError(err)
	}

	return ctx.SendStatus(http.StatusAccepted)
}

func (h *HandlerSet) campaignOutcomes(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	tallies, err := h.campaigns.Outcomes(ctx.Context(), id)
	if err != nil {
		return translateError(err)
	}

	resp := make([]outcomeTallyResponse, 0, len(tallies))
	for _, t := range tallies {
		resp = append(resp, outcomeTallyResponse{Outcome: t.Outcome, Count: t.Count})
	}
	return ctx.Status(http.StatusOK).JSON(fiber.Map{"outcomes": resp})
}

func toCampaignResponse(campaign *domain.Campaign) campaignResponse {
	days := make([]int, 0, len(campaign.Window.CallingDays))
	for _, d := range campaign.Window.CallingDays {
		days = append(days, int(d))
	}

	return campaignResponse{
		ID:                campaign.ID,
		Name:              campaign.Name,
		AgentID:           campaign.AgentID,
		Prompt:            campaign.Prompt,
		TimeZone:          campaign.TimeZone,
		ExecutionStatus:   campaign.ExecutionStatus,
		SourceType:        string(campaign.ContactSource.Type),
		SourceRef:         campaign.ContactSource.Ref,
		StartHour:         campaign.Window.StartHour,
		EndHour:           campaign.Window.EndHour,
		CallingDays:       days,
		DailyCap:          campaign.DailyCap,
		CurrentDailyCalls: campaign.CurrentDailyCalls,
		TotalDials:        campaign.TotalDials,
		TotalPickups:      campaign.TotalPickups,
		PauseReason:       campaign.PauseReason,
		NextCallAt:        campaign.NextCallAt,
		CreatedAt:         campaign.CreatedAt,
		UpdatedAt:         campaign.UpdatedAt,
		StartedAt:         campaign.StartedAt,
		CompletedAt:       campaign.CompletedAt,
	}
}

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(value)
}
