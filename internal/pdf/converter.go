package pdf

import (
	"context"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/gen2brain/go-fitz"

	"github.com/spherical/bulletin-import/internal/domain"
	"github.com/spherical/bulletin-import/internal/observability"
)

// Converter implements PDF to image conversion using go-fitz
type Converter struct {
	maxPages  int
	tempDirs  []string
	validator *Validator
}

// NewConverter creates a converter rendering at most maxPages pages per
// document; 0 renders every page.
func NewConverter(maxPages int, logger *observability.Logger) *Converter {
	return &Converter{
		maxPages:  maxPages,
		validator: NewValidator(logger),
	}
}

// Convert renders the pages of a PDF file as JPEG images
func (c *Converter) Convert(ctx context.Context, pdfPath string, quality int) ([]domain.PageImage, error) {
	if err := c.validator.ValidatePDFPath(pdfPath); err != nil {
		return nil, err
	}
	if err := c.validator.ValidateQuality(quality); err != nil {
		return nil, err
	}

	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, domain.ConversionError("Failed to open PDF", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return nil, domain.ValidationError("PDF has no pages", nil)
	}
	if c.maxPages > 0 && pageCount > c.maxPages {
		pageCount = c.maxPages
	}

	tempDir, err := os.MkdirTemp("", "bulletin-import-*")
	if err != nil {
		return nil, domain.IOError("Failed to create temp directory", err)
	}
	c.tempDirs = append(c.tempDirs, tempDir)

	images := make([]domain.PageImage, 0, pageCount)
	for pageNum := 0; pageNum < pageCount; pageNum++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		img, err := doc.Image(pageNum)
		if err != nil {
			return nil, domain.ConversionError(fmt.Sprintf("Failed to convert page %d", pageNum+1), err)
		}

		outputPath := filepath.Join(tempDir, fmt.Sprintf("page_%03d.jpg", pageNum+1))
		outputFile, err := os.Create(outputPath)
		if err != nil {
			return nil, domain.IOError(fmt.Sprintf("Failed to create output file for page %d", pageNum+1), err)
		}

		err = jpeg.Encode(outputFile, img, &jpeg.Options{Quality: quality})
		outputFile.Close()
		if err != nil {
			return nil, domain.ConversionError(fmt.Sprintf("Failed to encode page %d as JPG", pageNum+1), err)
		}

		bounds := img.Bounds()
		images = append(images, domain.PageImage{
			PageNumber: pageNum + 1,
			ImagePath:  outputPath,
			Width:      bounds.Dx(),
			Height:     bounds.Dy(),
		})
	}

	return images, nil
}

// Cleanup removes the temporary page images of every converted document
func (c *Converter) Cleanup() error {
	var errs []error
	for _, dir := range c.tempDirs {
		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, err)
		}
	}
	c.tempDirs = nil

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}
	return nil
}
