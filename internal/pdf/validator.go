package pdf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spherical/bulletin-import/internal/domain"
	"github.com/spherical/bulletin-import/internal/observability"
)

// maxSize above which a bulletin is still accepted but logged.
const maxSize = 20 * 1024 * 1024

// Validator provides input validation for PDF files
type Validator struct {
	logger *observability.Logger
}

// NewValidator creates a new validator instance
func NewValidator(logger *observability.Logger) *Validator {
	return &Validator{logger: observability.OrNop(logger)}
}

// IsPDF reports whether a path carries the .pdf extension, in any case.
func IsPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

// ValidatePDFPath validates that a file path is valid and points to a PDF
func (v *Validator) ValidatePDFPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return domain.ValidationError("file path cannot be empty", nil)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.ValidationError(fmt.Sprintf("file does not exist: %s", path), err)
		}
		return domain.ValidationError(fmt.Sprintf("cannot access file: %s", path), err)
	}

	if info.IsDir() {
		return domain.ValidationError(fmt.Sprintf("path is a directory, not a file: %s", path), nil)
	}

	if !IsPDF(path) {
		return domain.ValidationError(fmt.Sprintf("%s is not a PDF file", path), nil)
	}

	if info.Size() > maxSize {
		v.logger.Warn().Str("file", path).Int("size_mb", int(info.Size()/(1024*1024))).Msg("PDF file is very large")
	}

	file, err := os.Open(path)
	if err != nil {
		return domain.ValidationError(fmt.Sprintf("cannot open file: %s", path), err)
	}
	file.Close()

	return nil
}

// ValidateQuality validates image quality parameter
func (v *Validator) ValidateQuality(quality int) error {
	if quality < 1 || quality > 100 {
		return domain.ValidationError(fmt.Sprintf("quality must be between 1 and 100, got %d", quality), nil)
	}
	return nil
}
