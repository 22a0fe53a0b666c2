package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acme/voicecampaign/internal/repository"
)

// ContactRepository persists inline campaign contacts.
type ContactRepository struct {
	db *sqlx.DB
}

// NewContactRepository constructs the repository.
func NewContactRepository(db *sqlx.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

// BulkInsert inserts a batch of contacts, appending after any existing ones
// so source order stays stable across uploads.
func (r *ContactRepository) BulkInsert(ctx context.Context, campaignID uuid.UUID, contacts []repository.ContactRecord) error {
	if len(contacts) == 0 {
		return nil
	}

	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var base int
		if err := tx.QueryRowxContext(ctx,
			`SELECT COALESCE(MAX(position), -1) + 1 FROM campaign_contacts WHERE campaign_id = $1`,
			campaignID).Scan(&base); err != nil {
			return fmt.Errorf("campaign contacts: next position: %w", err)
		}

		stmt, err := tx.PreparexContext(ctx, `INSERT INTO campaign_contacts (
			id, campaign_id, name, phone_number, source_ref, do_not_call, position, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (campaign_id, source_ref) DO NOTHING`)
		if err != nil {
			return fmt.Errorf("campaign contacts: prepare insert: %w", err)
		}
		defer stmt.Close()

		now := time.Now().UTC()
		for i, c := range contacts {
			id := c.ID
			if id == uuid.Nil {
				id = uuid.New()
			}
			if _, err := stmt.ExecContext(ctx, id, campaignID, c.Name, c.PhoneNumber,
				c.SourceRef, c.DoNotCall, base+i, now); err != nil {
				return fmt.Errorf("campaign contacts: insert: %w", err)
			}
		}
		return nil
	})
}

// ListByCampaign returns contacts in insertion order.
func (r *ContactRepository) ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]repository.ContactRecord, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT id, campaign_id, name, phone_number, source_ref, do_not_call, position, created_at
		FROM campaign_contacts
		WHERE campaign_id = $1
		ORDER BY position ASC`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("campaign contacts: list: %w", err)
	}
	defer rows.Close()

	var results []repository.ContactRecord
	for rows.Next() {
		var rec contactRecord
		if err := rows.StructScan(&rec); err != nil {
			return nil, fmt.Errorf("campaign contacts: scan: %w", err)
		}
		results = append(results, repository.ContactRecord(rec))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("campaign contacts: rows err: %w", err)
	}
	return results, nil
}

type contactRecord struct {
	ID          uuid.UUID `db:"id"`
	CampaignID  uuid.UUID `db:"campaign_id"`
	Name        string    `db:"name"`
	PhoneNumber string    `db:"phone_number"`
	SourceRef   string    `db:"source_ref"`
	DoNotCall   bool      `db:"do_not_call"`
	Position    int       `db:"position"`
	CreatedAt   time.Time `db:"created_at"`
}
