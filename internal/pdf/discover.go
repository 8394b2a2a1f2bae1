// Package pdf locates enrollment bulletins on disk and renders their pages
// for vision extraction.
package pdf

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spherical/bulletin-import/internal/domain"
)

// Discover resolves the input path into the ordered list of bulletins to
// process. A file must be a PDF; a directory must contain at least one PDF
// at its top level. All failures are fatal validation errors.
func Discover(input string) ([]string, error) {
	info, err := os.Stat(input)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ValidationError(fmt.Sprintf("path %s does not exist", input), err)
		}
		return nil, domain.ValidationError(fmt.Sprintf("cannot access %s", input), err)
	}

	if !info.IsDir() {
		if !IsPDF(input) {
			return nil, domain.ValidationError(fmt.Sprintf("%s is not a PDF file", input), nil)
		}
		return []string{input}, nil
	}

	entries, err := os.ReadDir(input)
	if err != nil {
		return nil, domain.ValidationError(fmt.Sprintf("cannot read directory %s", input), err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !IsPDF(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(input, e.Name()))
	}
	if len(files) == 0 {
		return nil, domain.ValidationError(fmt.Sprintf("no PDF file found in %s", input), nil)
	}

	sort.Strings(files)
	return files, nil
}
