package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/spherical/bulletin-import/internal/domain"
	"github.com/spherical/bulletin-import/internal/observability"
)

const timestampLayout = "20060102_150405"

// Layout names the sheets and files of the two import artifacts.
type Layout struct {
	OrganizationSheet  string
	OrganizationPrefix string
	IndividualSheet    string
	IndividualPrefix   string
}

// DefaultLayout matches the destination system's import templates.
func DefaultLayout() Layout {
	return Layout{
		OrganizationSheet:  "Entreprise",
		OrganizationPrefix: "Import_Entreprise",
		IndividualSheet:    "Personnes",
		IndividualPrefix:   "Import_Stagiaires",
	}
}

// Writer saves import rows as xlsx workbooks in an output directory.
type Writer struct {
	dir    string
	layout Layout
	stamp  string
	logger *observability.Logger
}

// NewWriter creates a writer. Every file it writes carries the runAt
// timestamp, so the workbooks of one run share a name suffix. A zero runAt
// uses the current time.
func NewWriter(dir string, layout Layout, runAt time.Time, logger *observability.Logger) *Writer {
	if runAt.IsZero() {
		runAt = time.Now()
	}
	return &Writer{
		dir:    dir,
		layout: layout,
		stamp:  runAt.Format(timestampLayout),
		logger: observability.OrNop(logger).WithOperation("export"),
	}
}

// WriteOrganizations writes the organization import. It writes nothing and
// returns "" when rows is empty.
func (w *Writer) WriteOrganizations(rows [][]string) (string, error) {
	return w.write(w.layout.OrganizationSheet, w.layout.OrganizationPrefix, OrganizationHeaders, rows)
}

// WriteIndividuals writes the trainee import. It writes nothing and returns
// "" when rows is empty.
func (w *Writer) WriteIndividuals(rows [][]string) (string, error) {
	return w.write(w.layout.IndividualSheet, w.layout.IndividualPrefix, IndividualHeaders, rows)
}

func (w *Writer) write(sheet, prefix string, headers []string, rows [][]string) (string, error) {
	if len(rows) == 0 {
		return "", nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", domain.IOError(fmt.Sprintf("cannot create output directory %s", w.dir), err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return "", domain.IOError(fmt.Sprintf("cannot name sheet %q", sheet), err)
	}
	if err := setRow(f, sheet, 1, headers); err != nil {
		return "", err
	}
	for i, row := range rows {
		if len(row) != len(headers) {
			return "", domain.ValidationError(fmt.Sprintf("row %d has %d columns, expected %d", i+1, len(row), len(headers)), nil)
		}
		if err := setRow(f, sheet, i+2, row); err != nil {
			return "", err
		}
	}

	path := filepath.Join(w.dir, fmt.Sprintf("%s_%s.xlsx", prefix, w.stamp))
	if err := f.SaveAs(path); err != nil {
		return "", domain.IOError(fmt.Sprintf("cannot save %s", path), err)
	}

	w.logger.Info().Str("file", path).Int("rows", len(rows)).Msg("import file written")
	return path, nil
}

func setRow(f *excelize.File, sheet string, n int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return domain.IOError("invalid cell reference", err)
	}
	// cells are written as text so that SIRET, postal codes and phone
	// numbers keep their leading zeros
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	if err := f.SetSheetRow(sheet, cell, &row); err != nil {
		return domain.IOError(fmt.Sprintf("cannot write row %d", n), err)
	}
	return nil
}
