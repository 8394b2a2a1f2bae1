package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/spherical/bulletin-import/internal/config"
	"github.com/spherical/bulletin-import/internal/domain"
	"github.com/spherical/bulletin-import/internal/export"
	"github.com/spherical/bulletin-import/internal/llm"
	"github.com/spherical/bulletin-import/internal/reconcile"
)

var runTime = time.Date(2026, 10, 19, 14, 30, 0, 0, time.UTC)

type fakeExtractor map[string]domain.ExtractedRecord

func (f fakeExtractor) Extract(_ context.Context, pdfPath string) (*domain.ExtractedRecord, error) {
	rec, ok := f[filepath.Base(pdfPath)]
	if !ok {
		return nil, domain.APIError("API returned status 500", nil)
	}
	return &rec, nil
}

func writeWorkbook(t *testing.T, path, sheet string, rows [][]string) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetName("Sheet1", sheet))
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		require.NoError(t, f.SetSheetRow(sheet, cell, &values))
	}
	require.NoError(t, f.SaveAs(path))
}

type fixture struct {
	input    string
	output   string
	template string
	existing string
}

func newFixture(t *testing.T, docs ...string) fixture {
	t.Helper()
	root := t.TempDir()
	fx := fixture{
		input:    filepath.Join(root, "input"),
		output:   filepath.Join(root, "output"),
		template: filepath.Join(root, "Template_Import_Entreprises.xlsx"),
		existing: filepath.Join(root, "existants"),
	}
	require.NoError(t, os.MkdirAll(fx.input, 0o755))
	require.NoError(t, os.MkdirAll(fx.existing, 0o755))
	for _, d := range docs {
		require.NoError(t, os.WriteFile(filepath.Join(fx.input, d), []byte("%PDF-1.4"), 0o644))
	}

	writeWorkbook(t, fx.template, "Pays", [][]string{
		{"Code", "Libellé"},
		{"BEL", "Belgique"},
		{"FRA", "France"},
	})
	writeWorkbook(t, filepath.Join(fx.existing, "1-VIE_ENTREPRISE.xlsx"), "Export", [][]string{
		{"cRefExt", "SOC_cSIRET"},
		{"OLD-1", "12345678900012"},
	})
	writeWorkbook(t, filepath.Join(fx.existing, "2-VIE_ENTREPRISE.xlsx"), "Export", [][]string{
		{"cRefExt", "SOC_cRaisonSociale", "SOC_cSIRET"},
		{"SOC-9", "Old Co", "12345678900012"},
	})
	require.NoError(t, os.WriteFile(filepath.Join(fx.existing, "2-VIE_PERSONNE.csv"),
		[]byte("cRefExt;PER_cNom;PER_cPrenom\nPER-1;Martin;Paul\n"), 0o644))
	return fx
}

func (fx fixture) options() Options {
	opts := OptionsFromConfig(config.DefaultConfig())
	opts.Input = fx.input
	opts.OutputDir = fx.output
	opts.TemplatePath = fx.template
	opts.Existing.Dir = fx.existing
	return opts
}

func deps(ext domain.Extractor) Deps {
	return Deps{Extractor: ext, Now: func() time.Time { return runTime }}
}

func column(headers []string, name string) int {
	for i, h := range headers {
		if h == name {
			return i
		}
	}
	return -1
}

func readSheet(t *testing.T, path, sheet string) [][]string {
	t.Helper()
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	return rows
}

func TestRun_ReconcilesAndExports(t *testing.T) {
	fx := newFixture(t, "a.pdf", "b.pdf", "c.pdf", "d.pdf")
	ext := fakeExtractor{
		"a.pdf": {
			Salutation: "Mme", LastName: "Dupont", FirstName: "Claire",
			OrgName: "Old Co", OrgTaxID: "123 456 789 00012",
		},
		"b.pdf": {
			Salutation: "M.", LastName: "martin", FirstName: "paul",
			OrgName: "ACME", OrgTaxID: "999 888", OrgCountry: "belgique",
		},
		"c.pdf": {
			LastName: "Durand", FirstName: "Luc", Country: "Belgique",
			OrgName: "No Siret SARL",
		},
	}

	summary, err := Run(context.Background(), fx.options(), deps(ext))

	require.NoError(t, err)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 4, summary.Documents)
	assert.Equal(t, 3, summary.Extracted)
	assert.Contains(t, summary.Failed, filepath.Join(fx.input, "d.pdf"))
	assert.Empty(t, summary.Warnings)
	assert.Equal(t, filepath.Join(fx.existing, "2-VIE_ENTREPRISE.xlsx"), summary.Existing.OrganizationFile)

	require.Len(t, summary.Decisions, 3)
	a, b, c := summary.Decisions[0], summary.Decisions[1], summary.Decisions[2]
	assert.Equal(t, reconcile.DispositionLinkedExisting, a.Organization.Disposition)
	assert.Equal(t, "SOC-9", a.Organization.ExternalID)
	assert.Equal(t, reconcile.DispositionNew, a.Individual.Disposition)
	assert.Equal(t, "SOC-9", a.Individual.OrganizationID)
	assert.Equal(t, reconcile.DispositionNew, b.Organization.Disposition)
	assert.Equal(t, reconcile.DispositionSkipExisting, b.Individual.Disposition)
	assert.Equal(t, "PER-1", b.Individual.ExistingID)
	assert.Equal(t, reconcile.DispositionSkipInvalid, c.Organization.Disposition)
	assert.Equal(t, reconcile.DispositionNew, c.Individual.Disposition)
	assert.Equal(t, "INBP_20261019", c.Individual.OrganizationID)

	assert.Equal(t, filepath.Join(fx.output, "Import_Entreprise_20261019_143000.xlsx"), summary.OrganizationFile)
	assert.Equal(t, filepath.Join(fx.output, "Import_Stagiaires_20261019_143000.xlsx"), summary.IndividualFile)

	orgs := readSheet(t, summary.OrganizationFile, "Entreprise")
	require.Len(t, orgs, 2)
	assert.Equal(t, "INBP_999888_20261019", orgs[1][column(export.OrganizationHeaders, "cRefExt")])
	assert.Equal(t, "999888", orgs[1][column(export.OrganizationHeaders, "SOC_cSIRET")])
	assert.Equal(t, "BEL", orgs[1][column(export.OrganizationHeaders, "ADR_cPays")])

	people := readSheet(t, summary.IndividualFile, "Personnes")
	require.Len(t, people, 3)
	socRef := column(export.IndividualHeaders, "SOC_cRefExt")
	assert.Equal(t, "INBP_DUPON_20261019", people[1][0])
	assert.Equal(t, "SOC-9", people[1][socRef])
	assert.Equal(t, "INBP_DURAN_20261019", people[2][0])
	assert.Equal(t, "INBP_20261019", people[2][socRef])
}

func TestRun_MistralAnnotationCreatesOrganization(t *testing.T) {
	fx := newFixture(t, "a.pdf")

	annotation := `{"Civilité":"Mme","Nom du stagiaire":"Lefèvre","Prénom du stagiaire":"Anne",` +
		`"nom de l'entreprise":"Boulangerie du Port","adresse de l'entreprise":"2 quai Est",` +
		`"Code postal":"13002","Ville":"Marseille","Pays":"France",` +
		`"Date d'entrée dans l'entreprise":"01/09/2021","N° de SIRET":"552 100 554 00021",` +
		`"Code NAFA":"1071C"}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"model":               "mistral-ocr-latest",
			"document_annotation": annotation,
		})
	}))
	defer server.Close()

	ext := llm.NewMistralClient(llm.Config{APIKey: "test-key", Endpoint: server.URL}, nil)

	summary, err := Run(context.Background(), fx.options(), deps(ext))

	require.NoError(t, err)
	require.Len(t, summary.Decisions, 1)
	d := summary.Decisions[0]
	assert.Equal(t, reconcile.DispositionNew, d.Organization.Disposition)
	assert.Equal(t, "INBP_55210055400021_20261019", d.Organization.ExternalID)
	assert.Equal(t, reconcile.DispositionNew, d.Individual.Disposition)
	assert.Equal(t, "INBP_55210055400021_20261019", d.Individual.OrganizationID)

	orgs := readSheet(t, summary.OrganizationFile, "Entreprise")
	require.Len(t, orgs, 2)
	assert.Equal(t, "INBP_55210055400021_20261019", orgs[1][column(export.OrganizationHeaders, "cRefExt")])
	assert.Equal(t, "Boulangerie du Port", orgs[1][column(export.OrganizationHeaders, "SOC_cRaisonSociale")])
	assert.Equal(t, "55210055400021", orgs[1][column(export.OrganizationHeaders, "SOC_cSIRET")])
	assert.Equal(t, "FRA", orgs[1][column(export.OrganizationHeaders, "ADR_cPays")])

	people := readSheet(t, summary.IndividualFile, "Personnes")
	require.Len(t, people, 2)
	assert.Equal(t, "INBP_LEFÈV_20261019", people[1][0])
	assert.Equal(t, "INBP_55210055400021_20261019", people[1][column(export.IndividualHeaders, "SOC_cRefExt")])
}

func TestRun_OneTimestampPerRun(t *testing.T) {
	fx := newFixture(t, "a.pdf")
	ext := fakeExtractor{"a.pdf": {
		LastName: "Dupont", FirstName: "Claire",
		OrgName: "ACME", OrgTaxID: "999 888",
	}}

	// every reading of the clock moves it forward by a second
	tick := runTime.Add(-time.Second)
	d := deps(ext)
	d.Now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	summary, err := Run(context.Background(), fx.options(), d)

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(fx.output, "Import_Entreprise_20261019_143000.xlsx"), summary.OrganizationFile)
	assert.Equal(t, filepath.Join(fx.output, "Import_Stagiaires_20261019_143000.xlsx"), summary.IndividualFile)
	assert.Equal(t, "INBP_999888_20261019", summary.Decisions[0].Organization.ExternalID)
}

func TestRun_DegradedSources(t *testing.T) {
	fx := newFixture(t, "a.pdf")
	require.NoError(t, os.RemoveAll(fx.existing))
	require.NoError(t, os.Remove(fx.template))
	ext := fakeExtractor{"a.pdf": {
		LastName: "Dupont", FirstName: "Claire",
		OrgName: "Old Co", OrgTaxID: "12345678900012", OrgCountry: "Belgique",
	}}

	summary, err := Run(context.Background(), fx.options(), deps(ext))

	require.NoError(t, err)
	assert.Len(t, summary.Warnings, 2)
	assert.Equal(t, 1, summary.Stats.Organizations[reconcile.DispositionNew])
	assert.Equal(t, 1, summary.Stats.Individuals[reconcile.DispositionNew])

	orgs := readSheet(t, summary.OrganizationFile, "Entreprise")
	require.Len(t, orgs, 2)
	assert.Equal(t, "FRA", orgs[1][column(export.OrganizationHeaders, "ADR_cPays")])
}

func TestRun_NothingToExport(t *testing.T) {
	fx := newFixture(t, "a.pdf")
	ext := fakeExtractor{"a.pdf": {
		LastName: "Martin", FirstName: "Paul",
		OrgName: "Old Co", OrgTaxID: "12345678900012",
	}}

	summary, err := Run(context.Background(), fx.options(), deps(ext))

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNothingToExport))
	assert.True(t, IsInformational(err))
	assert.Equal(t, 1, summary.Stats.Organizations[reconcile.DispositionLinkedExisting])
	assert.Equal(t, 1, summary.Stats.Individuals[reconcile.DispositionSkipExisting])
	assert.Empty(t, summary.OrganizationFile)
	assert.NoDirExists(t, fx.output)
}

func TestRun_OnlyIndividualsWritesOneFile(t *testing.T) {
	fx := newFixture(t, "a.pdf")
	ext := fakeExtractor{"a.pdf": {
		LastName: "Dupont", FirstName: "Claire",
		OrgName: "Old Co", OrgTaxID: "12345678900012",
	}}

	summary, err := Run(context.Background(), fx.options(), deps(ext))

	require.NoError(t, err)
	assert.Empty(t, summary.OrganizationFile)
	assert.FileExists(t, summary.IndividualFile)
}

func TestRun_FatalErrors(t *testing.T) {
	t.Run("missing input", func(t *testing.T) {
		fx := newFixture(t)
		opts := fx.options()
		opts.Input = filepath.Join(fx.input, "missing")

		_, err := Run(context.Background(), opts, deps(fakeExtractor{}))
		assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))
	})

	t.Run("no documents", func(t *testing.T) {
		fx := newFixture(t)

		_, err := Run(context.Background(), fx.options(), deps(fakeExtractor{}))
		assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))
	})

	t.Run("every extraction failed", func(t *testing.T) {
		fx := newFixture(t, "a.pdf", "b.pdf")

		summary, err := Run(context.Background(), fx.options(), deps(fakeExtractor{}))
		assert.True(t, domain.IsType(err, domain.ErrorTypeNoData))
		assert.Len(t, summary.Failed, 2)
		assert.NoDirExists(t, fx.output)
	})

	t.Run("no extractor", func(t *testing.T) {
		_, err := Run(context.Background(), Options{}, Deps{})
		assert.True(t, domain.IsType(err, domain.ErrorTypeConfig))
	})
}

func TestNewExtractor(t *testing.T) {
	cfg := config.DefaultConfig()

	_, cleanup, err := NewExtractor(cfg, nil)
	assert.True(t, domain.IsType(err, domain.ErrorTypeConfig))
	assert.NoError(t, cleanup())

	cfg.Extraction.APIKey = "k"
	ext, cleanup, err := NewExtractor(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &llm.MistralClient{}, ext)
	assert.NoError(t, cleanup())

	cfg.Extraction.Provider = config.ProviderOpenRouter
	ext, cleanup, err = NewExtractor(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &llm.OpenRouterClient{}, ext)
	assert.NoError(t, cleanup())
}
