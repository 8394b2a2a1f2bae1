package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical/bulletin-import/cmd/bulletin-import/ui"
	"github.com/spherical/bulletin-import/internal/config"
	"github.com/spherical/bulletin-import/internal/domain"
	"github.com/spherical/bulletin-import/internal/observability"
	"github.com/spherical/bulletin-import/internal/pdf"
	"github.com/spherical/bulletin-import/internal/pipeline"
)

var (
	pdfInput     string
	outputDir    string
	templatePath string
	existingDir  string
	cfgFile      string
	verbose      bool
	noColor      bool
)

var rootCmd = &cobra.Command{
	Use:   "bulletin-import",
	Short: "Turn PDF enrollment bulletins into Ammon import workbooks",
	Long: `bulletin-import reads enrollment bulletins, reconciles the trainees and
their companies against the latest Ammon exports, and writes the organization
and individual import workbooks for the entities that do not exist yet.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runImport,
}

func init() {
	rootCmd.Flags().StringVarP(&pdfInput, "pdf_input", "i", "./input", "PDF file or directory of PDF files")
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "./output", "output directory for the import workbooks")
	rootCmd.Flags().StringVarP(&templatePath, "template", "t", "./Template_Import_Entreprises.xlsx", "import template holding the country sheet")
	rootCmd.Flags().StringVarP(&existingDir, "existing", "e", "./existants", "directory of the prior Ammon exports")
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command.
func Execute(version string) error {
	rootCmd.Version = version
	return rootCmd.Execute()
}

func runImport(cmd *cobra.Command, _ []string) error {
	ui.InitUI(noColor)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	// Flags win over the config file and the environment when set.
	if cmd.Flags().Changed("existing") {
		cfg.Existing.Dir = existingDir
	}
	if verbose {
		cfg.Log.Level = "debug"
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: "bulletin-import",
	})

	extractor, cleanup, err := newExtractor(cfg, pdfInput, logger)
	defer func() {
		if cerr := cleanup(); cerr != nil {
			logger.Warn().Err(cerr).Msg("Failed to remove temporary files")
		}
	}()
	if err != nil {
		return err
	}

	opts := pipeline.OptionsFromConfig(cfg)
	opts.Input = pdfInput
	opts.OutputDir = outputDir
	opts.TemplatePath = templatePath

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	events := make(chan domain.StreamEvent, 64)
	done := make(chan struct{})
	go followProgress(events, done)

	start := time.Now()
	summary, err := pipeline.Run(ctx, opts, pipeline.Deps{
		Extractor: extractor,
		Logger:    logger,
		Events:    events,
	})
	close(events)
	<-done

	if summary != nil && summary.Documents > 0 {
		printSummary(summary, time.Since(start))
	}

	switch {
	case pipeline.IsInformational(err):
		ui.Info("Nothing to export: every entity already exists or was invalid")
		return nil
	case err != nil:
		return err
	}
	return nil
}

// newExtractor checks the input before the provider credentials so a bad
// --pdf_input is reported as such even when no API key is configured.
func newExtractor(cfg *config.Config, input string, logger *observability.Logger) (domain.Extractor, func() error, error) {
	if _, err := pdf.Discover(input); err != nil {
		return nil, func() error { return nil }, err
	}
	return pipeline.NewExtractor(cfg, logger)
}

// followProgress drives a spinner from extraction events until events is
// closed. With --verbose the log lines already report progress.
func followProgress(events <-chan domain.StreamEvent, done chan<- struct{}) {
	defer close(done)

	if verbose {
		for range events {
		}
		return
	}

	spin := ui.NewSpinner("Starting extraction...")
	spin.Start()
	defer spin.Stop()

	for ev := range events {
		if ev.Type == domain.EventDocumentProcessing {
			spin.UpdateMessage(fmt.Sprintf("Extracting %s", filepath.Base(ev.Document)))
		}
	}
}
