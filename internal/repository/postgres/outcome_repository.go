package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acme/voicecampaign/internal/domain"
)

// OutcomeTallyRepository keeps per-campaign outcome buckets.
type OutcomeTallyRepository struct {
	db *sqlx.DB
}

// NewOutcomeTallyRepository builds the repository.
func NewOutcomeTallyRepository(db *sqlx.DB) *OutcomeTallyRepository {
	return &OutcomeTallyRepository{db: db}
}

// ApplyDelta upserts the bucket and adjusts its count atomically. Negative
// deltas back out a previously recorded outcome during corrections.
func (r *OutcomeTallyRepository) ApplyDelta(ctx context.Context, campaignID uuid.UUID, outcome string, delta int64) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO campaign_outcome_tallies (campaign_id, outcome, count)
		VALUES ($1, $2, GREATEST($3, 0))
		ON CONFLICT (campaign_id, outcome)
		DO UPDATE SET count = GREATEST(campaign_outcome_tallies.count + $3, 0)`,
		campaignID, outcome, delta)
	if err != nil {
		return fmt.Errorf("outcome tallies: apply delta: %w", err)
	}
	return nil
}

// List returns the outcome histogram for a campaign.
func (r *OutcomeTallyRepository) List(ctx context.Context, campaignID uuid.UUID) ([]domain.OutcomeTally, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT outcome, count FROM campaign_outcome_tallies
		WHERE campaign_id = $1 ORDER BY outcome ASC`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("outcome tallies: list: %w", err)
	}
	defer rows.Close()

	var tallies []domain.OutcomeTally
	for rows.Next() {
		var t struct {
			Outcome string `db:"outcome"`
			Count   int64  `db:"count"`
		}
		if err := rows.StructScan(&t); err != nil {
			return nil, fmt.Errorf("outcome tallies: scan: %w", err)
		}
		tallies = append(tallies, domain.OutcomeTally{Outcome: t.Outcome, Count: t.Count})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outcome tallies: rows err: %w", err)
	}
	return tallies, nil
}
