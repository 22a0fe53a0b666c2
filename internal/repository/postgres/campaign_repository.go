package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acme/voicecampaign/internal/domain"
	"github.com/acme/voicecampaign/internal/repository"
)

const campaignColumns = `id, name, agent_id, prompt, contact_source_type, contact_source_ref,
	execution_status, start_hour, end_hour, calling_days, time_zone,
	daily_cap, current_daily_calls, total_dials, total_pickups,
	last_daily_reset, next_call_at, pause_reason, version,
	created_at, updated_at, started_at, completed_at`

// CampaignRepository implements repository.CampaignRepository using PostgreSQL.
type CampaignRepository struct {
	db *sqlx.DB
}

// NewCampaignRepository constructs a new repository.
func NewCampaignRepository(db *sqlx.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// Create inserts a new campaign.
func (r *CampaignRepository) Create(ctx context.Context, campaign *domain.Campaign) error {
	q := `INSERT INTO campaigns (
		id, name, agent_id, prompt, contact_source_type, contact_source_ref,
		execution_status, start_hour, end_hour, calling_days, time_zone,
		daily_cap, current_daily_calls, total_dials, total_pickups,
		last_daily_reset, next_call_at, pause_reason, version,
		created_at, updated_at, started_at, completed_at
	) VALUES (
		:id, :name, :agent_id, :prompt, :contact_source_type, :contact_source_ref,
		:execution_status, :start_hour, :end_hour, :calling_days, :time_zone,
		:daily_cap, :current_daily_calls, :total_dials, :total_pickups,
		:last_daily_reset, :next_call_at, :pause_reason, :version,
		:created_at, :updated_at, :started_at, :completed_at
	)`

	if _, err := r.db.NamedExecContext(ctx, q, campaignParams(campaign)); err != nil {
		return fmt.Errorf("campaign repo: insert: %w", err)
	}

	return nil
}

// Get fetches a campaign by id.
func (r *CampaignRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	q := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`

	row := r.db.QueryRowxContext(ctx, q, id)
	var record campaignRecord
	if err := row.StructScan(&record); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("campaign repo: get: %w", err)
	}

	campaign := record.toDomain()
	return &campaign, nil
}

// Update persists campaign metadata. The version column guards against
// concurrent writers; a stale version surfaces as ErrConflict.
func (r *CampaignRepository) Update(ctx context.Context, campaign *domain.Campaign) error {
	q := `UPDATE campaigns SET
		name = :name,
		agent_id = :agent_id,
		prompt = :prompt,
		contact_source_type = :contact_source_type,
		contact_source_ref = :contact_source_ref,
		start_hour = :start_hour,
		end_hour = :end_hour,
		calling_days = :calling_days,
		time_zone = :time_zone,
		daily_cap = :daily_cap,
		version = version + 1,
		updated_at = NOW()
	 WHERE id = :id AND version = :version`

	res, err := r.db.NamedExecContext(ctx, q, campaignParams(campaign))
	if err != nil {
		return fmt.Errorf("campaign repo: update: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("campaign repo: rows affected: %w", err)
	}
	if n == 0 {
		if _, getErr := r.Get(ctx, campaign.ID); getErr != nil {
			return getErr
		}
		return repository.ErrConflict
	}
	return nil
}

// List returns campaigns with optional keyset pagination.
func (r *CampaignRepository) List(ctx context.Context, afterID *uuid.UUID, limit int) ([]*domain.Campaign, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows *sqlx.Rows
	var err error
	if afterID != nil {
		rows, err = r.db.QueryxContext(ctx, `SELECT `+campaignColumns+`
			FROM campaigns WHERE id > $1 ORDER BY id ASC LIMIT $2`, *afterID, limit)
	} else {
		rows, err = r.db.QueryxContext(ctx, `SELECT `+campaignColumns+`
			FROM campaigns ORDER BY id ASC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("campaign repo: list: %w", err)
	}
	defer rows.Close()

	return scanCampaigns(rows)
}

// ListRunningDue returns running campaigns due for evaluation now.
func (r *CampaignRepository) ListRunningDue(ctx context.Context, now time.Time, limit int) ([]*domain.Campaign, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryxContext(ctx, `SELECT `+campaignColumns+`
		FROM campaigns
		WHERE execution_status = $1 AND (next_call_at IS NULL OR next_call_at <= $2)
		ORDER BY next_call_at ASC NULLS FIRST
		LIMIT $3`, domain.ExecutionStatusRunning, now, limit)
	if err != nil {
		return nil, fmt.Errorf("campaign repo: list running due: %w", err)
	}
	defer rows.Close()

	return scanCampaigns(rows)
}

// Start moves a draft or paused campaign to running, zeroing the daily
// counter and making it due immediately.
func (r *CampaignRepository) Start(ctx context.Context, id uuid.UUID, now time.Time) (*domain.Campaign, error) {
	row := r.db.QueryRowxContext(ctx, `UPDATE campaigns SET
		execution_status = $2,
		current_daily_calls = 0,
		next_call_at = $3,
		pause_reason = '',
		started_at = COALESCE(started_at, $3),
		version = version + 1,
		updated_at = NOW()
	WHERE id = $1 AND execution_status IN ($4, $5)
	RETURNING `+campaignColumns,
		id, domain.ExecutionStatusRunning, now,
		domain.ExecutionStatusDraft, domain.ExecutionStatusPaused)

	var record campaignRecord
	if err := row.StructScan(&record); err != nil {
		if err == sql.ErrNoRows {
			return nil, r.transitionError(ctx, id)
		}
		return nil, fmt.Errorf("campaign repo: start: %w", err)
	}

	campaign := record.toDomain()
	return &campaign, nil
}

// Pause moves a running campaign to paused with a reason.
func (r *CampaignRepository) Pause(ctx context.Context, id uuid.UUID, reason string) error {
	return r.guardedTransition(ctx, id, `UPDATE campaigns SET
		execution_status = $2, pause_reason = $3, version = version + 1, updated_at = NOW()
	WHERE id = $1 AND execution_status = $4`,
		id, domain.ExecutionStatusPaused, reason, domain.ExecutionStatusRunning)
}

// Complete moves a running campaign to completed.
func (r *CampaignRepository) Complete(ctx context.Context, id uuid.UUID, now time.Time) error {
	return r.guardedTransition(ctx, id, `UPDATE campaigns SET
		execution_status = $2, completed_at = $3, version = version + 1, updated_at = NOW()
	WHERE id = $1 AND execution_status = $4`,
		id, domain.ExecutionStatusCompleted, now, domain.ExecutionStatusRunning)
}

// Fail marks a running campaign failed on unrecoverable configuration errors.
func (r *CampaignRepository) Fail(ctx context.Context, id uuid.UUID, reason string) error {
	return r.guardedTransition(ctx, id, `UPDATE campaigns SET
		execution_status = $2, pause_reason = $3, version = version + 1, updated_at = NOW()
	WHERE id = $1 AND execution_status = $4`,
		id, domain.ExecutionStatusFailed, reason, domain.ExecutionStatusRunning)
}

// RecordDial increments the dial counters in one statement and returns the
// fresh row so callers re-evaluate the cap against current values.
func (r *CampaignRepository) RecordDial(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	row := r.db.QueryRowxContext(ctx, `UPDATE campaigns SET
		total_dials = total_dials + 1,
		current_daily_calls = current_daily_calls + 1,
		version = version + 1,
		updated_at = NOW()
	WHERE id = $1
	RETURNING `+campaignColumns, id)

	var record campaignRecord
	if err := row.StructScan(&record); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("campaign repo: record dial: %w", err)
	}

	campaign := record.toDomain()
	return &campaign, nil
}

// RecordPickup increments the pickup counter.
func (r *CampaignRepository) RecordPickup(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `UPDATE campaigns SET
		total_pickups = total_pickups + 1, version = version + 1, updated_at = NOW()
	WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("campaign repo: record pickup: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("campaign repo: rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ResetDailyCounters zeroes daily counters for all running campaigns whose
// last reset falls before the current day in the campaign's own time zone.
// One statement, so two engine instances cannot double-reset.
func (r *CampaignRepository) ResetDailyCounters(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE campaigns SET
		current_daily_calls = 0,
		last_daily_reset = $1,
		version = version + 1,
		updated_at = NOW()
	WHERE execution_status = $2
	  AND (last_daily_reset IS NULL
	       OR (last_daily_reset AT TIME ZONE time_zone)::date < ($1::timestamptz AT TIME ZONE time_zone)::date)`,
		now, domain.ExecutionStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("campaign repo: reset daily counters: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("campaign repo: rows affected: %w", err)
	}
	return n, nil
}

// SetNextCall updates the earliest re-evaluation time.
func (r *CampaignRepository) SetNextCall(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE campaigns SET next_call_at = $2, updated_at = NOW() WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("campaign repo: set next call: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("campaign repo: rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *CampaignRepository) guardedTransition(ctx context.Context, id uuid.UUID, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("campaign repo: transition: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("campaign repo: rows affected: %w", err)
	}
	if n == 0 {
		return r.transitionError(ctx, id)
	}
	return nil
}

func (r *CampaignRepository) transitionError(ctx context.Context, id uuid.UUID) error {
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return repository.ErrInvalidTransition
}

func scanCampaigns(rows *sqlx.Rows) ([]*domain.Campaign, error) {
	var results []*domain.Campaign
	for rows.Next() {
		var record campaignRecord
		if err := rows.StructScan(&record); err != nil {
			return nil, fmt.Errorf("campaign repo: scan: %w", err)
		}
		campaign := record.toDomain()
		results = append(results, &campaign)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("campaign repo: rows err: %w", err)
	}

	return results, nil
}

func campaignParams(c *domain.Campaign) map[string]any {
	return map[string]any{
		"id":                  c.ID,
		"name":                c.Name,
		"agent_id":            c.AgentID,
		"prompt":              c.Prompt,
		"contact_source_type": string(c.ContactSource.Type),
		"contact_source_ref":  c.ContactSource.Ref,
		"execution_status":    c.ExecutionStatus,
		"start_hour":          c.Window.StartHour,
		"end_hour":            c.Window.EndHour,
		"calling_days":        encodeCallingDays(c.Window.CallingDays),
		"time_zone":           c.TimeZone,
		"daily_cap":           c.DailyCap,
		"current_daily_calls": c.CurrentDailyCalls,
		"total_dials":         c.TotalDials,
		"total_pickups":       c.TotalPickups,
		"last_daily_reset":    c.LastDailyReset,
		"next_call_at":        c.NextCallAt,
		"pause_reason":        c.PauseReason,
		"version":             c.Version,
		"created_at":          c.CreatedAt,
		"updated_at":          c.UpdatedAt,
		"started_at":          c.StartedAt,
		"completed_at":        c.CompletedAt,
	}
}

type campaignRecord struct {
	ID                uuid.UUID      `db:"id"`
	Name              string         `db:"name"`
	AgentID           string         `db:"agent_id"`
	Prompt            sql.NullString `db:"prompt"`
	SourceType        string         `db:"contact_source_type"`
	SourceRef         sql.NullString `db:"contact_source_ref"`
	ExecutionStatus   string         `db:"execution_status"`
	StartHour         int            `db:"start_hour"`
	EndHour           int            `db:"end_hour"`
	CallingDays       sql.NullString `db:"calling_days"`
	TimeZone          string         `db:"time_zone"`
	DailyCap          int            `db:"daily_cap"`
	CurrentDailyCalls int            `db:"current_daily_calls"`
	TotalDials        int64          `db:"total_dials"`
	TotalPickups      int64          `db:"total_pickups"`
	LastDailyReset    sql.NullTime   `db:"last_daily_reset"`
	NextCallAt        sql.NullTime   `db:"next_call_at"`
	PauseReason       sql.NullString `db:"pause_reason"`
	Version           int64          `db:"version"`
	CreatedAt         sql.NullTime   `db:"created_at"`
	UpdatedAt         sql.NullTime   `db:"updated_at"`
	StartedAt         sql.NullTime   `db:"started_at"`
	CompletedAt       sql.NullTime   `db:"completed_at"`
}

func (r campaignRecord) toDomain() domain.Campaign {
	campaign := domain.Campaign{
		ID:      r.ID,
		Name:    r.Name,
		AgentID: r.AgentID,
		Prompt:  r.Prompt.String,
		ContactSource: domain.ContactSource{
			Type: domain.ContactSourceType(r.SourceType),
			Ref:  r.SourceRef.String,
		},
		ExecutionStatus: domain.ExecutionStatus(r.ExecutionStatus),
		Window: domain.CallingWindow{
			StartHour:   r.StartHour,
			EndHour:     r.EndHour,
			CallingDays: decodeCallingDays(r.CallingDays.String),
		},
		TimeZone:          r.TimeZone,
		DailyCap:          r.DailyCap,
		CurrentDailyCalls: r.CurrentDailyCalls,
		TotalDials:        r.TotalDials,
		TotalPickups:      r.TotalPickups,
		PauseReason:       r.PauseReason.String,
		Version:           r.Version,
		CreatedAt:         r.CreatedAt.Time,
		UpdatedAt:         r.UpdatedAt.Time,
	}

	if r.LastDailyReset.Valid {
		t := r.LastDailyReset.Time
		campaign.LastDailyReset = &t
	}
	if r.NextCallAt.Valid {
		t := r.NextCallAt.Time
		campaign.NextCallAt = &t
	}
	if r.StartedAt.Valid {
		t := r.StartedAt.Time
		campaign.StartedAt = &t
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time
		campaign.CompletedAt = &t
	}

	return campaign
}

var weekdayNames = map[string]time.Weekday{
	"Sunday":    time.Sunday,
	"Monday":    time.Monday,
	"Tuesday":   time.Tuesday,
	"Wednesday": time.Wednesday,
	"Thursday":  time.Thursday,
	"Friday":    time.Friday,
	"Saturday":  time.Saturday,
}

func encodeCallingDays(days []time.Weekday) string {
	if len(days) == 0 {
		return ""
	}
	parts := make([]string, 0, len(days))
	for _, d := range days {
		parts = append(parts, d.String())
	}
	return strings.Join(parts, ",")
}

func decodeCallingDays(raw string) []time.Weekday {
	if raw == "" {
		return nil
	}
	var days []time.Weekday
	for _, part := range strings.Split(raw, ",") {
		if d, ok := weekdayNames[strings.TrimSpace(part)]; ok {
			days = append(days, d)
		}
	}
	return days
}
