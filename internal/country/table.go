// Package country maps free-text country labels onto the destination
// system's country codes.
package country

import (
	"fmt"
	"os"
	"strings"

	"github.com/spherical/bulletin-import/internal/domain"
	"github.com/spherical/bulletin-import/internal/tabular"
)

// Defaults used when no template is configured.
const (
	DefaultCode  = "FRA"
	DefaultLabel = "FRANCE"
	DefaultSheet = "Pays"
)

// Entry is one (code, label) line of the country sheet.
type Entry struct {
	Code  string
	Label string
}

// Table resolves labels to codes. It is immutable once built.
type Table struct {
	defaultCode string
	codes       map[string]string
	// folded maps an upper-cased label to the first label registered with
	// that folding.
	folded map[string]string
}

// NewTable registers the default label (as given, upper-cased and title
// form) followed by entries. A label registered twice keeps the later code.
// Case-insensitive lookups resolve through the earliest registered spelling.
func NewTable(defaultCode, defaultLabel string, entries []Entry) *Table {
	t := &Table{
		defaultCode: defaultCode,
		codes:       make(map[string]string, 2*len(entries)+2),
		folded:      make(map[string]string, len(entries)+1),
	}
	if defaultLabel != "" {
		t.add(defaultLabel, defaultCode)
		t.add(titleCase(defaultLabel), defaultCode)
	}
	for _, e := range entries {
		code := strings.TrimSpace(e.Code)
		label := strings.TrimSpace(e.Label)
		if code == "" || label == "" {
			continue
		}
		t.add(label, code)
	}
	return t
}

// Default returns the table holding only the default country.
func Default(defaultCode, defaultLabel string) *Table {
	return NewTable(defaultCode, defaultLabel, nil)
}

func (t *Table) add(label, code string) {
	upper := strings.ToUpper(label)
	t.codes[label] = code
	t.codes[upper] = code
	if _, ok := t.folded[upper]; !ok {
		t.folded[upper] = label
	}
}

// Code resolves a label: exact match, then case-insensitive match, then the
// default code. Blank labels resolve to the default code.
func (t *Table) Code(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return t.defaultCode
	}
	if code, ok := t.codes[label]; ok {
		return code
	}
	if first, ok := t.folded[strings.ToUpper(label)]; ok {
		return t.codes[first]
	}
	return t.defaultCode
}

// DefaultCode is the code returned for unknown or blank labels.
func (t *Table) DefaultCode() string {
	return t.defaultCode
}

// Len is the number of distinct labels known, case variants included.
func (t *Table) Len() int {
	return len(t.codes)
}

// Load reads the country sheet of the import template: row 1 is a header,
// column A the code, column B the label. When the template is missing or
// unreadable it returns the default table together with a source error the
// caller is expected to log.
func Load(templatePath, sheet, defaultCode, defaultLabel string) (*Table, error) {
	if templatePath == "" {
		return Default(defaultCode, defaultLabel), domain.SourceError("no template configured, using default country table", nil)
	}
	if _, err := os.Stat(templatePath); err != nil {
		return Default(defaultCode, defaultLabel), domain.SourceError(fmt.Sprintf("template %s not found, using default country table", templatePath), err)
	}
	if sheet == "" {
		sheet = DefaultSheet
	}

	grid, err := tabular.SheetGrid(templatePath, sheet)
	if err != nil {
		return Default(defaultCode, defaultLabel), err
	}

	var entries []Entry
	for i, cells := range grid {
		if i == 0 || len(cells) < 2 {
			continue
		}
		entries = append(entries, Entry{Code: cells[0], Label: cells[1]})
	}
	return NewTable(defaultCode, defaultLabel, entries), nil
}

func titleCase(s string) string {
	r := []rune(strings.ToLower(s))
	if len(r) == 0 {
		return s
	}
	r[0] = []rune(strings.ToUpper(string(r[0])))[0]
	return string(r)
}
