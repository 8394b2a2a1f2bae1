package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/bulletin-import/internal/domain"
)

type fakeExtractor struct {
	records map[string]*domain.ExtractedRecord
	calls   []string
}

func (f *fakeExtractor) Extract(_ context.Context, pdfPath string) (*domain.ExtractedRecord, error) {
	f.calls = append(f.calls, pdfPath)
	rec, ok := f.records[pdfPath]
	if !ok {
		return nil, domain.APIError("API returned status 500", nil)
	}
	return rec, nil
}

func drain(ch chan domain.StreamEvent) []domain.EventType {
	close(ch)
	var types []domain.EventType
	for ev := range ch {
		types = append(types, ev.Type)
	}
	return types
}

func TestService_Process_SkipsFailedDocuments(t *testing.T) {
	ext := &fakeExtractor{records: map[string]*domain.ExtractedRecord{
		"a.pdf": {LastName: "Dupont", FirstName: "Claire"},
		"c.pdf": {LastName: "Martin", FirstName: "Paul"},
	}}
	events := make(chan domain.StreamEvent, 32)

	result, err := NewService(ext, nil).Process(context.Background(), []string{"a.pdf", "b.pdf", "c.pdf"}, events)

	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf", "b.pdf", "c.pdf"}, ext.calls)
	require.Len(t, result.Documents, 2)
	assert.Equal(t, "a.pdf", result.Documents[0].Path)
	assert.Equal(t, "Martin", result.Documents[1].Record.LastName)
	assert.Contains(t, result.Failed, "b.pdf")

	assert.Equal(t, []domain.EventType{
		domain.EventStart,
		domain.EventDocumentProcessing, domain.EventDocumentComplete,
		domain.EventDocumentProcessing, domain.EventError,
		domain.EventDocumentProcessing, domain.EventDocumentComplete,
		domain.EventComplete,
	}, drain(events))
}

func TestService_Process_AllFailed(t *testing.T) {
	ext := &fakeExtractor{}

	result, err := NewService(ext, nil).Process(context.Background(), []string{"a.pdf", "b.pdf"}, nil)

	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeExtraction))
	assert.Empty(t, result.Documents)
	assert.Len(t, result.Failed, 2)
}

func TestService_Process_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ext := &fakeExtractor{}

	_, err := NewService(ext, nil).Process(ctx, []string{"a.pdf"}, nil)

	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, ext.calls)
}

func TestService_EmitEvent_FullChannelDoesNotBlock(t *testing.T) {
	ext := &fakeExtractor{records: map[string]*domain.ExtractedRecord{
		"a.pdf": {LastName: "Dupont", FirstName: "Claire"},
	}}
	events := make(chan domain.StreamEvent, 1)

	_, err := NewService(ext, nil).Process(context.Background(), []string{"a.pdf"}, events)

	require.NoError(t, err)
	assert.Equal(t, []domain.EventType{domain.EventStart}, drain(events))
}
