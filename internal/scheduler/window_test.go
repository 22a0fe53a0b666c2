package scheduler

import (
	"testing"
	"time"

	"github.com/acme/voicecampaign/internal/domain"
)

func campaignWithWindow(start, end int, days ...time.Weekday) *domain.Campaign {
	return &domain.Campaign{
		TimeZone: "UTC",
		Window:   domain.CallingWindow{StartHour: start, EndHour: end, CallingDays: days},
		DailyCap: 100,
	}
}

func TestMayExecuteUnrestrictedWindow(t *testing.T) {
	campaign := campaignWithWindow(0, 0)

	for _, hour := range []int{0, 3, 12, 23} {
		at := time.Date(2025, 6, 2, hour, 30, 0, 0, time.UTC)
		if !MayExecute(campaign, at) {
			t.Fatalf("expected 0/0 window to allow hour %d", hour)
		}
	}
}

func TestMayExecuteOpenEndedWindow(t *testing.T) {
	campaign := campaignWithWindow(18, 24)

	evening := time.Date(2025, 6, 2, 23, 0, 0, 0, time.UTC)
	if !MayExecute(campaign, evening) {
		t.Fatalf("expected end=24 window to allow hour 23")
	}

	afternoon := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	if MayExecute(campaign, afternoon) {
		t.Fatalf("expected end=24 window to reject hour 14")
	}
}

func TestMayExecuteCrossingMidnight(t *testing.T) {
	campaign := campaignWithWindow(22, 2)

	night := time.Date(2025, 6, 2, 23, 0, 0, 0, time.UTC)
	if !MayExecute(campaign, night) {
		t.Fatalf("expected 22-2 window to allow hour 23")
	}

	earlyMorning := time.Date(2025, 6, 3, 1, 0, 0, 0, time.UTC)
	if !MayExecute(campaign, earlyMorning) {
		t.Fatalf("expected 22-2 window to allow hour 1")
	}

	midMorning := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	if MayExecute(campaign, midMorning) {
		t.Fatalf("expected 22-2 window to reject hour 10")
	}
}

func TestMayExecuteEndHourExclusive(t *testing.T) {
	campaign := campaignWithWindow(9, 17)

	if !MayExecute(campaign, time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected start hour to be inclusive")
	}
	if MayExecute(campaign, time.Date(2025, 6, 2, 17, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected end hour to be exclusive")
	}
}

func TestMayExecuteCallingDays(t *testing.T) {
	campaign := campaignWithWindow(0, 0, time.Monday, time.Wednesday)

	monday := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	if !MayExecute(campaign, monday) {
		t.Fatalf("expected Monday to be a calling day")
	}

	tuesday := time.Date(2025, 6, 3, 12, 0, 0, 0, time.UTC)
	if MayExecute(campaign, tuesday) {
		t.Fatalf("expected Tuesday to be rejected")
	}
}

func TestMayExecuteTimeZone(t *testing.T) {
	campaign := campaignWithWindow(9, 17)
	campaign.TimeZone = "America/New_York"

	// 13:00 UTC is 09:00 in New York during DST.
	if !MayExecute(campaign, time.Date(2025, 6, 2, 13, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected local 09:00 to be inside the window")
	}

	// 12:00 UTC is 08:00 in New York.
	if MayExecute(campaign, time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected local 08:00 to be outside the window")
	}
}

func TestMayExecuteDailyCap(t *testing.T) {
	campaign := campaignWithWindow(0, 0)
	campaign.DailyCap = 3
	campaign.CurrentDailyCalls = 3

	at := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	if MayExecute(campaign, at) {
		t.Fatalf("expected exhausted daily cap to block execution")
	}

	campaign.CurrentDailyCalls = 2
	if !MayExecute(campaign, at) {
		t.Fatalf("expected remaining daily budget to allow execution")
	}
}

func TestRejectionReason(t *testing.T) {
	campaign := campaignWithWindow(9, 17)
	campaign.DailyCap = 1
	campaign.CurrentDailyCalls = 1

	inside := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	reason := rejectionReason(campaign, inside)
	if reason != "daily cap reached (1/1)" {
		t.Fatalf("unexpected reason: %q", reason)
	}

	outside := time.Date(2025, 6, 2, 20, 0, 0, 0, time.UTC)
	reason = rejectionReason(campaign, outside)
	if reason != "outside calling hours (9-17, local hour 20)" {
		t.Fatalf("unexpected reason: %q", reason)
	}
}
