package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/spherical/bulletin-import/internal/domain"
	"github.com/spherical/bulletin-import/internal/observability"
)

// Document is one bulletin that was read successfully.
type Document struct {
	Path   string
	Record domain.ExtractedRecord
}

// Result is the outcome of a batch. Failed maps a document path to the
// reason it was skipped.
type Result struct {
	Documents []Document
	Failed    map[string]error
}

// Service orchestrates the extraction of a batch of bulletins
type Service struct {
	extractor domain.Extractor
	logger    *observability.Logger
}

// NewService creates a new extraction service
func NewService(extractor domain.Extractor, logger *observability.Logger) *Service {
	return &Service{
		extractor: extractor,
		logger:    observability.OrNop(logger).WithOperation("extract"),
	}
}

// Process extracts every document in order, one at a time. A failing
// document is logged and skipped. An error is returned only when the context
// is cancelled or when no document could be read.
func (s *Service) Process(ctx context.Context, paths []string, eventCh chan<- domain.StreamEvent) (*Result, error) {
	startTime := time.Now()
	result := &Result{Failed: make(map[string]error)}

	s.emitEvent(eventCh, domain.StreamEvent{
		Type:      domain.EventStart,
		Payload:   fmt.Sprintf("Starting extraction of %d document(s)", len(paths)),
		Timestamp: time.Now(),
	})

	for _, path := range paths {
		select {
		case <-ctx.Done():
			s.emitError(eventCh, "", ctx.Err())
			return result, ctx.Err()
		default:
		}

		log := s.logger.WithDocument(path)
		s.emitEvent(eventCh, domain.StreamEvent{
			Type:      domain.EventDocumentProcessing,
			Document:  path,
			Payload:   fmt.Sprintf("Processing %s", path),
			Timestamp: time.Now(),
		})
		log.Info().Msg("Extracting bulletin")

		rec, err := s.extractor.Extract(ctx, path)
		if err != nil {
			log.Error().Err(err).Msg("Extraction failed, document skipped")
			result.Failed[path] = err
			s.emitError(eventCh, path, err)
			continue
		}

		result.Documents = append(result.Documents, Document{Path: path, Record: *rec})
		s.emitEvent(eventCh, domain.StreamEvent{
			Type:      domain.EventDocumentComplete,
			Document:  path,
			Payload:   *rec,
			Timestamp: time.Now(),
		})
	}

	duration := time.Since(startTime)
	s.emitEvent(eventCh, domain.StreamEvent{
		Type: domain.EventComplete,
		Payload: fmt.Sprintf("Extraction complete: %d/%d documents successful in %v",
			len(result.Documents), len(paths), duration),
		Timestamp: time.Now(),
	})

	s.logger.Info().
		Int("successful", len(result.Documents)).
		Int("failed", len(result.Failed)).
		Dur("duration", duration).
		Msg("Extraction complete")

	if len(result.Documents) == 0 {
		return result, domain.ExtractionError("All documents failed to extract", nil)
	}

	return result, nil
}

// emitEvent safely emits an event to the channel
func (s *Service) emitEvent(eventCh chan<- domain.StreamEvent, event domain.StreamEvent) {
	if eventCh != nil {
		select {
		case eventCh <- event:
		default:
			s.logger.Warn().Str("event", string(event.Type)).Msg("Event channel full, dropping event")
		}
	}
}

// emitError emits an error event
func (s *Service) emitError(eventCh chan<- domain.StreamEvent, document string, err error) {
	s.emitEvent(eventCh, domain.StreamEvent{
		Type:      domain.EventError,
		Document:  document,
		Payload:   err.Error(),
		Timestamp: time.Now(),
	})
}
