// Package tabular reads spreadsheet exports into header-keyed rows.
package tabular

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/spherical/bulletin-import/internal/domain"
)

// Open returns the RowSource matching the file extension. sheet selects an
// xlsx worksheet; empty means the first one.
func Open(path, sheet string) (domain.RowSource, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return &XLSXSource{Path: path, Sheet: sheet}, nil
	case ".csv":
		return &CSVSource{Path: path}, nil
	case ".xls":
		return nil, domain.SourceError(fmt.Sprintf("legacy binary workbook not supported, re-save %s as .xlsx or .csv", filepath.Base(path)), nil)
	default:
		return nil, domain.SourceError(fmt.Sprintf("unsupported tabular file: %s", filepath.Base(path)), nil)
	}
}

// FindLatest returns the file in dir whose name matches pattern with the
// greatest numeric prefix. pattern must capture the prefix in its first
// group. It returns "" when nothing matches.
func FindLatest(dir string, pattern *regexp.Regexp) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", domain.SourceError(fmt.Sprintf("cannot read directory %s", dir), err)
	}

	type candidate struct {
		name   string
		prefix uint64
	}
	var found []candidate
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := pattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		var prefix uint64
		if len(m) > 1 {
			prefix, _ = strconv.ParseUint(m[1], 10, 64)
		}
		found = append(found, candidate{name: e.Name(), prefix: prefix})
	}
	if len(found) == 0 {
		return "", nil
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].prefix != found[j].prefix {
			return found[i].prefix > found[j].prefix
		}
		return found[i].name > found[j].name
	})
	return filepath.Join(dir, found[0].name), nil
}

// rowsFromGrid keys every data row by the trimmed header of its column.
// Short rows are padded with empty values; cells beyond the header are
// dropped; fully blank rows are skipped.
func rowsFromGrid(grid [][]string) []domain.Row {
	if len(grid) == 0 {
		return nil
	}
	headers := make([]string, len(grid[0]))
	for i, h := range grid[0] {
		headers[i] = strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF"))
	}

	rows := make([]domain.Row, 0, len(grid)-1)
	for _, cells := range grid[1:] {
		row := make(domain.Row, len(headers))
		blank := true
		for i, h := range headers {
			if h == "" {
				continue
			}
			var v string
			if i < len(cells) {
				v = cells[i]
			}
			if strings.TrimSpace(v) != "" {
				blank = false
			}
			row[h] = v
		}
		if !blank {
			rows = append(rows, row)
		}
	}
	return rows
}
