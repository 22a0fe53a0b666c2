package contacts

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/acme/voicecampaign/internal/config"
	"github.com/acme/voicecampaign/internal/domain"
	"github.com/acme/voicecampaign/internal/repository"
	"github.com/acme/voicecampaign/pkg/logger"
)

// SheetLoader loads raw contacts from a file-derived source.
type SheetLoader interface {
	Load(ref string) ([]domain.Contact, error)
}

// Resolver produces the callable contact set for a campaign: source order
// preserved, do-not-call contacts excluded, phone numbers normalized to
// E.164. Contacts without a usable number are dropped with a log line, never
// an error.
type Resolver struct {
	contacts repository.ContactRepository
	sheets   SheetLoader
	cfg      config.ContactsConfig
	logger   *logger.Logger
}

// NewResolver constructs a resolver.
func NewResolver(contactRepo repository.ContactRepository, sheets SheetLoader, cfg config.ContactsConfig, lg *logger.Logger) *Resolver {
	return &Resolver{contacts: contactRepo, sheets: sheets, cfg: cfg, logger: lg}
}

// Resolve returns the ordered callable contacts for the campaign.
func (r *Resolver) Resolve(ctx context.Context, campaign *domain.Campaign) ([]domain.Contact, error) {
	raw, err := r.load(ctx, campaign)
	if err != nil {
		return nil, err
	}

	resolved := make([]domain.Contact, 0, len(raw))
	for _, contact := range raw {
		if contact.DoNotCall {
			r.logger.Debug("contacts: skipping do-not-call contact",
				zap.String("campaign_id", campaign.ID.String()),
				zap.String("source_ref", contact.SourceRef))
			continue
		}

		normalized, ok := Normalize(contact.PhoneNumber, r.cfg)
		if !ok {
			r.logger.Warn("contacts: dropping contact with unusable phone number",
				zap.String("campaign_id", campaign.ID.String()),
				zap.String("source_ref", contact.SourceRef),
				zap.String("raw_number", contact.PhoneNumber))
			continue
		}

		contact.PhoneNumber = normalized
		resolved = append(resolved, contact)
	}

	return resolved, nil
}

func (r *Resolver) load(ctx context.Context, campaign *domain.Campaign) ([]domain.Contact, error) {
	switch campaign.ContactSource.Type {
	case domain.ContactSourceSpreadsheet:
		if campaign.ContactSource.Ref == "" {
			return nil, fmt.Errorf("contacts: campaign %s has a spreadsheet source without a file reference", campaign.ID)
		}
		return r.sheets.Load(campaign.ContactSource.Ref)
	case domain.ContactSourceInline, "":
		records, err := r.contacts.ListByCampaign(ctx, campaign.ID)
		if err != nil {
			return nil, fmt.Errorf("contacts: list inline contacts: %w", err)
		}
		result := make([]domain.Contact, 0, len(records))
		for _, rec := range records {
			ref := rec.SourceRef
			if ref == "" {
				ref = rec.ID.String()
			}
			result = append(result, domain.Contact{
				Name:        rec.Name,
				PhoneNumber: rec.PhoneNumber,
				SourceRef:   ref,
				DoNotCall:   rec.DoNotCall,
			})
		}
		return result, nil
	default:
		return nil, fmt.Errorf("contacts: unknown contact source type %q", campaign.ContactSource.Type)
	}
}
