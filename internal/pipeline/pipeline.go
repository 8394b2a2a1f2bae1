// Package pipeline runs one import: discover bulletins, extract them,
// reconcile against the prior exports and write the import workbooks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/spherical/bulletin-import/internal/config"
	"github.com/spherical/bulletin-import/internal/country"
	"github.com/spherical/bulletin-import/internal/domain"
	"github.com/spherical/bulletin-import/internal/existing"
	"github.com/spherical/bulletin-import/internal/export"
	"github.com/spherical/bulletin-import/internal/extract"
	"github.com/spherical/bulletin-import/internal/llm"
	"github.com/spherical/bulletin-import/internal/observability"
	"github.com/spherical/bulletin-import/internal/pdf"
	"github.com/spherical/bulletin-import/internal/reconcile"
)

// Options describes the inputs and outputs of a run.
type Options struct {
	Input        string
	OutputDir    string
	TemplatePath string
	Existing     existing.Sources
	Country      config.CountryConfig
	IDs          domain.IDScheme
	Layout       export.Layout
}

// OptionsFromConfig maps a loaded configuration onto run options. Paths
// given on the command line are set by the caller.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Existing: cfg.Sources(),
		Country:  cfg.Country,
		IDs:      cfg.IDScheme(),
		Layout: export.Layout{
			OrganizationSheet:  cfg.Export.OrganizationSheet,
			OrganizationPrefix: cfg.Export.OrganizationFilePrefix,
			IndividualSheet:    cfg.Export.IndividualSheet,
			IndividualPrefix:   cfg.Export.IndividualFilePrefix,
		},
	}
}

// Deps are the collaborators of a run.
type Deps struct {
	Extractor domain.Extractor
	Logger    *observability.Logger
	Now       func() time.Time
	Events    chan<- domain.StreamEvent
}

// Summary reports what a run did.
type Summary struct {
	RunID            string
	Documents        int
	Extracted        int
	Failed           map[string]error
	Countries        int
	Existing         existing.Loaded
	Warnings         []string
	Decisions        []reconcile.Decision
	Stats            reconcile.Stats
	OrganizationFile string
	IndividualFile   string
}

// Run executes the import. Fatal conditions are returned as errors: a
// validation error for bad input, a no_data error when nothing could be
// extracted. domain.ErrNothingToExport is returned with a complete summary
// when every entity already exists or was invalid.
func Run(ctx context.Context, opts Options, deps Deps) (*Summary, error) {
	if deps.Extractor == nil {
		return nil, domain.ConfigError("no extractor configured", nil)
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	summary := &Summary{RunID: uuid.NewString()}
	logger := observability.OrNop(deps.Logger).WithRunID(summary.RunID).WithOperation("pipeline")

	paths, err := pdf.Discover(opts.Input)
	if err != nil {
		return summary, err
	}
	summary.Documents = len(paths)
	logger.Info().Int("documents", len(paths)).Str("input", opts.Input).Msg("Bulletins discovered")

	countries, err := country.Load(opts.TemplatePath, opts.Country.Sheet, opts.Country.DefaultCode, opts.Country.DefaultLabel)
	if err != nil {
		summary.Warnings = append(summary.Warnings, err.Error())
		logger.Warn().Err(err).Str("fallback", countries.DefaultCode()).Msg("Country table unavailable, using default code")
	}
	summary.Countries = countries.Len()

	index, loaded, err := existing.Load(opts.Existing)
	if err != nil {
		summary.Warnings = append(summary.Warnings, err.Error())
		logger.Warn().Err(err).Msg("Existing exports partly unavailable, affected entities will be treated as new")
	}
	summary.Existing = loaded
	logger.Info().
		Int("organizations", index.Organizations()).
		Int("individuals", index.Individuals()).
		Str("organization_file", loaded.OrganizationFile).
		Str("individual_file", loaded.IndividualFile).
		Msg("Existing index loaded")

	result, err := extract.NewService(deps.Extractor, logger).Process(ctx, paths, deps.Events)
	if result != nil {
		summary.Extracted = len(result.Documents)
		summary.Failed = result.Failed
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return summary, ctxErr
		}
		return summary, domain.NoDataError("no data extracted from any document", err)
	}

	// One timestamp stamps every synthetic id of the run.
	runDate := now()
	engine := reconcile.NewEngine(index, logger)
	for _, doc := range result.Documents {
		en := domain.NewEnrollment(doc.Path, doc.Record, opts.IDs, runDate)
		summary.Decisions = append(summary.Decisions, engine.Decide(en))
	}
	summary.Stats = engine.Stats()

	if engine.Empty() {
		logger.Info().Msg("Nothing to export")
		return summary, domain.ErrNothingToExport
	}

	writer := export.NewWriter(opts.OutputDir, opts.Layout, runDate, logger)

	summary.OrganizationFile, err = writer.WriteOrganizations(export.OrganizationRows(engine.Organizations(), countries))
	if err != nil {
		return summary, err
	}
	summary.IndividualFile, err = writer.WriteIndividuals(export.IndividualRows(engine.Individuals(), countries))
	if err != nil {
		return summary, err
	}

	logger.Info().
		Str("organization_file", summary.OrganizationFile).
		Str("individual_file", summary.IndividualFile).
		Msg("Import files written")

	return summary, nil
}

// NewExtractor builds the extraction client selected by cfg. The returned
// cleanup releases rendering temp files and is always safe to call.
func NewExtractor(cfg *config.Config, logger *observability.Logger) (domain.Extractor, func() error, error) {
	if err := cfg.RequireAPIKey(); err != nil {
		return nil, func() error { return nil }, err
	}

	llmCfg := llm.Config{
		APIKey:   cfg.Extraction.APIKey,
		Model:    cfg.Extraction.Model,
		Endpoint: cfg.Extraction.Endpoint,
		Timeout:  cfg.Extraction.Timeout,
	}

	switch cfg.Extraction.Provider {
	case config.ProviderMistral:
		return llm.NewMistralClient(llmCfg, logger), func() error { return nil }, nil
	case config.ProviderOpenRouter:
		converter := pdf.NewConverter(cfg.Extraction.MaxPages, logger)
		return llm.NewOpenRouterClient(llmCfg, converter, logger), converter.Cleanup, nil
	default:
		return nil, func() error { return nil }, domain.ConfigError(fmt.Sprintf("unknown extraction provider %q", cfg.Extraction.Provider), nil)
	}
}

// IsInformational reports whether err ends a run without failing it.
func IsInformational(err error) bool {
	return errors.Is(err, domain.ErrNothingToExport)
}
