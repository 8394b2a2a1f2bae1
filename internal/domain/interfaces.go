package domain

import "context"

// Converter defines the interface for converting PDF to images
type Converter interface {
	// Convert renders the first pages of a PDF as JPEG images
	Convert(ctx context.Context, pdfPath string, quality int) ([]PageImage, error)

	// Cleanup removes temporary files created during conversion
	Cleanup() error
}

// Extractor turns one enrollment bulletin into a structured record. It is a
// blocking request/response call with no retry.
type Extractor interface {
	Extract(ctx context.Context, pdfPath string) (*ExtractedRecord, error)
}

// RowSource yields the rows of a tabular file keyed by header name.
type RowSource interface {
	Rows() ([]Row, error)
}
