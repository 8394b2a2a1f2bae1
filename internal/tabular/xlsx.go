package tabular

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/spherical/bulletin-import/internal/domain"
)

// XLSXSource reads one worksheet of an Office Open XML workbook.
type XLSXSource struct {
	Path  string
	Sheet string
}

// Rows implements domain.RowSource.
func (s *XLSXSource) Rows() ([]domain.Row, error) {
	f, err := excelize.OpenFile(s.Path)
	if err != nil {
		return nil, domain.SourceError(fmt.Sprintf("cannot open workbook %s", s.Path), err)
	}
	defer f.Close()

	sheet := s.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, domain.SourceError(fmt.Sprintf("sheet %q not found in %s", sheet, s.Path), err)
	}

	grid, err := f.GetRows(sheet)
	if err != nil {
		return nil, domain.SourceError(fmt.Sprintf("cannot read sheet %q of %s", sheet, s.Path), err)
	}
	return rowsFromGrid(grid), nil
}

// SheetGrid returns the raw cell values of a worksheet. It is used for
// sheets that are read by position rather than by header.
func SheetGrid(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, domain.SourceError(fmt.Sprintf("cannot open workbook %s", path), err)
	}
	defer f.Close()

	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, domain.SourceError(fmt.Sprintf("sheet %q not found in %s", sheet, path), err)
	}
	grid, err := f.GetRows(sheet)
	if err != nil {
		return nil, domain.SourceError(fmt.Sprintf("cannot read sheet %q of %s", sheet, path), err)
	}
	return grid, nil
}
