package contacts

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/acme/voicecampaign/internal/domain"
)

// SpreadsheetSource loads contacts from uploaded spreadsheet files. The first
// sheet is read; a header row naming the columns is honored, otherwise the
// first two columns are taken as name and phone.
type SpreadsheetSource struct {
	dir string
}

// NewSpreadsheetSource creates a source rooted at the given directory.
func NewSpreadsheetSource(dir string) *SpreadsheetSource {
	return &SpreadsheetSource{dir: dir}
}

// Load reads the referenced file and returns raw, un-normalized contacts in
// row order. SourceRef is derived from the file name and row index so the
// same row maps to the same ref on every pass.
func (s *SpreadsheetSource) Load(ref string) ([]domain.Contact, error) {
	path := filepath.Join(s.dir, filepath.Clean(ref))
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("spreadsheet source: open %s: %w", ref, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("spreadsheet source: %s has no sheets", ref)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("spreadsheet source: read rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	nameCol, phoneCol, dncCol, hasHeader := detectColumns(rows[0])
	start := 0
	if hasHeader {
		start = 1
	}

	contacts := make([]domain.Contact, 0, len(rows)-start)
	for i := start; i < len(rows); i++ {
		row := rows[i]
		contact := domain.Contact{
			Name:        cell(row, nameCol),
			PhoneNumber: cell(row, phoneCol),
			SourceRef:   fmt.Sprintf("%s#%d", ref, i),
			DoNotCall:   dncCol >= 0 && isTruthy(cell(row, dncCol)),
		}
		if contact.Name == "" && contact.PhoneNumber == "" {
			continue
		}
		contacts = append(contacts, contact)
	}
	return contacts, nil
}

func detectColumns(header []string) (nameCol, phoneCol, dncCol int, hasHeader bool) {
	nameCol, phoneCol, dncCol = 0, 1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "name", "contact", "contact_name":
			nameCol = i
			hasHeader = true
		case "phone", "phone_number", "number":
			phoneCol = i
			hasHeader = true
		case "do_not_call", "dnc", "opt_out":
			dncCol = i
			hasHeader = true
		}
	}
	return nameCol, phoneCol, dncCol, hasHeader
}

func cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

func isTruthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}
