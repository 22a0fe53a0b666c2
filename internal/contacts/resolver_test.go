package contacts

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/acme/voicecampaign/internal/config"
	"github.com/acme/voicecampaign/internal/domain"
	"github.com/acme/voicecampaign/internal/repository"
	"github.com/acme/voicecampaign/pkg/logger"
)

type fakeContactRepo struct {
	records []repository.ContactRecord
	err     error
}

func (f *fakeContactRepo) BulkInsert(ctx context.Context, campaignID uuid.UUID, records []repository.ContactRecord) error {
	return nil
}

func (f *fakeContactRepo) ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]repository.ContactRecord, error) {
	return f.records, f.err
}

type fakeSheets struct {
	contacts []domain.Contact
	loaded   []string
}

func (f *fakeSheets) Load(ref string) ([]domain.Contact, error) {
	f.loaded = append(f.loaded, ref)
	return f.contacts, nil
}

func testConfig() config.ContactsConfig {
	return config.ContactsConfig{
		DefaultCountryCode: "+1",
		DomesticPrefixes:   []string{"5"},
	}
}

func TestResolveInlineFiltersAndNormalizes(t *testing.T) {
	campaignID := uuid.New()
	repo := &fakeContactRepo{records: []repository.ContactRecord{
		{ID: uuid.New(), Name: "Ada", PhoneNumber: "5550001234", SourceRef: "ref-1"},
		{ID: uuid.New(), Name: "Grace", PhoneNumber: "+15550005678", SourceRef: "ref-2", DoNotCall: true},
		{ID: uuid.New(), Name: "Edsger", PhoneNumber: "not a number", SourceRef: "ref-3"},
		{ID: uuid.New(), Name: "Barbara", PhoneNumber: "4401234567890", SourceRef: "ref-4"},
	}}

	r := NewResolver(repo, &fakeSheets{}, testConfig(), logger.Nop())
	resolved, err := r.Resolve(context.Background(), &domain.Campaign{
		ID:            campaignID,
		ContactSource: domain.ContactSource{Type: domain.ContactSourceInline},
	})
	require.NoError(t, err)

	// DNC and unusable numbers are dropped; order is preserved.
	require.Len(t, resolved, 2)
	require.Equal(t, "Ada", resolved[0].Name)
	require.Equal(t, "+15550001234", resolved[0].PhoneNumber)
	require.Equal(t, "Barbara", resolved[1].Name)
	require.Equal(t, "+4401234567890", resolved[1].PhoneNumber)
}

func TestResolveInlineDefaultsSourceRefToRecordID(t *testing.T) {
	id := uuid.New()
	repo := &fakeContactRepo{records: []repository.ContactRecord{
		{ID: id, Name: "Ada", PhoneNumber: "+15550001234"},
	}}

	r := NewResolver(repo, &fakeSheets{}, testConfig(), logger.Nop())
	resolved, err := r.Resolve(context.Background(), &domain.Campaign{ID: uuid.New()})
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	require.Equal(t, id.String(), resolved[0].SourceRef)
}

func TestResolveSpreadsheetSource(t *testing.T) {
	sheets := &fakeSheets{contacts: []domain.Contact{
		{Name: "Ada", PhoneNumber: "+15550001234", SourceRef: "contacts.xlsx#1"},
	}}

	r := NewResolver(&fakeContactRepo{}, sheets, testConfig(), logger.Nop())
	resolved, err := r.Resolve(context.Background(), &domain.Campaign{
		ID:            uuid.New(),
		ContactSource: domain.ContactSource{Type: domain.ContactSourceSpreadsheet, Ref: "contacts.xlsx"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"contacts.xlsx"}, sheets.loaded)
	require.Len(t, resolved, 1)
}

func TestResolveSpreadsheetWithoutRef(t *testing.T) {
	r := NewResolver(&fakeContactRepo{}, &fakeSheets{}, testConfig(), logger.Nop())
	_, err := r.Resolve(context.Background(), &domain.Campaign{
		ID:            uuid.New(),
		ContactSource: domain.ContactSource{Type: domain.ContactSourceSpreadsheet},
	})
	require.Error(t, err)
}

func TestResolveRepositoryError(t *testing.T) {
	repo := &fakeContactRepo{err: errors.New("connection refused")}
	r := NewResolver(repo, &fakeSheets{}, testConfig(), logger.Nop())

	_, err := r.Resolve(context.Background(), &domain.Campaign{ID: uuid.New()})
	require.Error(t, err)
}

func TestDetectColumns(t *testing.T) {
	name, phone, dnc, hasHeader := detectColumns([]string{"Name", "Phone", "DNC"})
	require.True(t, hasHeader)
	require.Equal(t, 0, name)
	require.Equal(t, 1, phone)
	require.Equal(t, 2, dnc)

	name, phone, dnc, hasHeader = detectColumns([]string{"Ada", "+15550001234"})
	require.False(t, hasHeader)
	require.Equal(t, 0, name)
	require.Equal(t, 1, phone)
	require.Equal(t, -1, dnc)
}
