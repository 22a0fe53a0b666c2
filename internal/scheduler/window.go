package scheduler

import (
	"fmt"
	"time"

	"github.com/acme/voicecampaign/internal/domain"
)

// MayExecute reports whether the campaign may place a call right now. Pure
// function over the campaign's calling window, weekday set and daily
// counter; it is re-evaluated before every single contact because the
// counter and the clock both move mid-pass.
func MayExecute(c *domain.Campaign, now time.Time) bool {
	local := now.In(c.Location())
	if !withinHours(c.Window, local.Hour()) {
		return false
	}
	if !c.Window.AllowsDay(local.Weekday()) {
		return false
	}
	if c.CurrentDailyCalls >= c.DailyCap {
		return false
	}
	return true
}

func withinHours(w domain.CallingWindow, hour int) bool {
	switch {
	case w.StartHour == 0 && w.EndHour == 0:
		// Unrestricted window.
		return true
	case w.EndHour == 24:
		return hour >= w.StartHour
	case w.StartHour <= w.EndHour:
		return hour >= w.StartHour && hour < w.EndHour
	default:
		// Window crosses midnight.
		return hour >= w.StartHour || hour < w.EndHour
	}
}

// rejectionReason explains why MayExecute said no, for the pause reason.
func rejectionReason(c *domain.Campaign, now time.Time) string {
	local := now.In(c.Location())
	if !withinHours(c.Window, local.Hour()) {
		return fmt.Sprintf("outside calling hours (%d-%d, local hour %d)", c.Window.StartHour, c.Window.EndHour, local.Hour())
	}
	if !c.Window.AllowsDay(local.Weekday()) {
		return fmt.Sprintf("%s is not a calling day", local.Weekday())
	}
	if c.CurrentDailyCalls >= c.DailyCap {
		return fmt.Sprintf("daily cap reached (%d/%d)", c.CurrentDailyCalls, c.DailyCap)
	}
	return "calling window closed"
}
