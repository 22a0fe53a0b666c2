package domain

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionStatus enumerates lifecycle states of a campaign.
type ExecutionStatus string

const (
	ExecutionStatusDraft     ExecutionStatus = "draft"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusPaused    ExecutionStatus = "paused"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// ContactSourceType identifies where a campaign's contacts come from.
type ContactSourceType string

const (
	ContactSourceInline      ContactSourceType = "inline"
	ContactSourceSpreadsheet ContactSourceType = "spreadsheet"
)

// ContactSource describes the configured contact list for a campaign.
// Ref is empty for inline sources; for spreadsheet sources it holds the
// file path relative to the configured contacts directory.
type ContactSource struct {
	Type ContactSourceType
	Ref  string
}

// CallingWindow restricts the hours and weekdays during which a campaign
// may dial. StartHour/EndHour are 0-24; the pair 0/0 means unrestricted and
// EndHour 24 means "until end of day".
type CallingWindow struct {
	StartHour   int
	EndHour     int
	CallingDays []time.Weekday
}

// AllowsDay reports whether the window permits dialing on the given weekday.
// An empty day set permits every day.
func (w CallingWindow) AllowsDay(day time.Weekday) bool {
	if len(w.CallingDays) == 0 {
		return true
	}
	for _, d := range w.CallingDays {
		if d == day {
			return true
		}
	}
	return false
}

// Campaign models one unit of outbound-calling work bound to an AI agent
// and a contact source.
type Campaign struct {
	ID                uuid.UUID
	Name              string
	AgentID           string
	Prompt            string
	ContactSource     ContactSource
	ExecutionStatus   ExecutionStatus
	Window            CallingWindow
	TimeZone          string
	DailyCap          int
	CurrentDailyCalls int
	TotalDials        int64
	TotalPickups      int64
	LastDailyReset    *time.Time
	NextCallAt        *time.Time
	PauseReason       string
	Version           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
	StartedAt         *time.Time
	CompletedAt       *time.Time
}

// Location resolves the campaign time zone, falling back to UTC.
func (c *Campaign) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil || loc == nil {
		return time.UTC
	}
	return loc
}

// Contact is a callable target within a campaign. The engine never mutates
// contacts; SourceRef keys idempotent re-runs over the same source.
type Contact struct {
	Name        string
	PhoneNumber string
	SourceRef   string
	DoNotCall   bool
}

// RouteBinding maps a calling agent to its resolved outbound trunk and
// caller-ID number. Provisioning happens outside the engine.
type RouteBinding struct {
	AgentID   string
	TrunkID   string
	CallerID  string
	CreatedAt time.Time
}

// OutcomeTally is one bucket of the per-campaign outcome histogram.
type OutcomeTally struct {
	Outcome string
	Count   int64
}
