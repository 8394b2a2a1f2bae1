package existing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/spherical/bulletin-import/internal/domain"
)

func TestBuild_Organizations(t *testing.T) {
	ix := Build([]domain.Row{
		{ColumnTaxID: "123 456 789 00000", ColumnExternalID: "ORG_1"},
		{ColumnTaxID: "", ColumnExternalID: "ORG_EMPTY"},
		{ColumnTaxID: "55555555555555", ColumnExternalID: ""},
		{ColumnExternalID: "ORG_NO_COLUMN"},
		{ColumnTaxID: "77777777777777", ColumnExternalID: "ORG_OLD"},
		{ColumnTaxID: "777 777 777 77777", ColumnExternalID: "ORG_NEW"},
	}, nil)

	assert.Equal(t, 2, ix.Organizations())

	ref, ok := ix.LookupOrganization("12345678900000")
	assert.True(t, ok)
	assert.Equal(t, "ORG_1", ref)

	ref, ok = ix.LookupOrganization("77777777777777")
	assert.True(t, ok)
	assert.Equal(t, "ORG_NEW", ref, "last writer wins")

	_, ok = ix.LookupOrganization("55555555555555")
	assert.False(t, ok)
	_, ok = ix.LookupOrganization("")
	assert.False(t, ok)
}

func TestBuild_Individuals(t *testing.T) {
	ix := Build(nil, []domain.Row{
		{ColumnLastName: "DUPONT", ColumnFirstName: "Marie", ColumnExternalID: "PER_1"},
		{ColumnLastName: "Le Gall", ColumnFirstName: "Anne Sophie", ColumnExternalID: "PER_2"},
		{ColumnLastName: "Martin", ColumnFirstName: "", ColumnExternalID: "PER_3"},
		{ColumnLastName: "Durand", ColumnFirstName: "Paul"},
	})

	assert.Equal(t, 2, ix.Individuals())

	tests := []struct {
		last, first string
		want        string
		found       bool
	}{
		{"DUPONT", "Marie", "PER_1", true},
		{"dupont", "marie", "PER_1", true},
		{" du pont ", "MA RIE", "PER_1", true},
		{"LEGALL", "annesophie", "PER_2", true},
		{"Martin", "", "", false},
		{"Durand", "Paul", "", false},
		{"", "", "", false},
	}
	for _, tt := range tests {
		ref, ok := ix.LookupIndividual(tt.last, tt.first)
		assert.Equal(t, tt.found, ok, "%s %s", tt.last, tt.first)
		assert.Equal(t, tt.want, ref, "%s %s", tt.last, tt.first)
	}
}

func TestNew_EmptyKeyNeverMatches(t *testing.T) {
	ix := New(map[string]string{"": "ORG_EMPTY"}, map[string]string{"": "PER_EMPTY"})

	_, ok := ix.LookupOrganization("")
	assert.False(t, ok)
	_, ok = ix.LookupOrganization("   ")
	assert.False(t, ok)
	_, ok = ix.LookupIndividual("", "")
	assert.False(t, ok)
}

func TestNew_CopiesMaps(t *testing.T) {
	orgs := map[string]string{"12345678900000": "ORG_1"}
	ix := New(orgs, nil)
	orgs["12345678900000"] = "CHANGED"

	ref, _ := ix.LookupOrganization("12345678900000")
	assert.Equal(t, "ORG_1", ref)
}

func writeExport(t *testing.T, path string, grid [][]interface{}) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, r := range grid {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		row := r
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	require.NoError(t, f.SaveAs(path))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeExport(t, filepath.Join(dir, "20240101-VIE_ENTREPRISE.xlsx"), [][]interface{}{
		{"cRefExt", "SOC_cRaisonSociale", "SOC_cSIRET"},
		{"ORG_OLD", "Old", "11111111111111"},
	})
	writeExport(t, filepath.Join(dir, "20250101-VIE_ENTREPRISE.xlsx"), [][]interface{}{
		{"cRefExt", "SOC_cRaisonSociale", "SOC_cSIRET"},
		{"ORG_1", "ACME", "123 456 789 00000"},
	})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20250101-VIE_PERSONNE.csv"),
		[]byte("cRefExt;PER_cNom;PER_cPrenom\nPER_1;DUPONT;Marie\n"), 0o644))

	ix, loaded, err := Load(Sources{Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "20250101-VIE_ENTREPRISE.xlsx"), loaded.OrganizationFile)
	assert.Equal(t, filepath.Join(dir, "20250101-VIE_PERSONNE.csv"), loaded.IndividualFile)

	ref, ok := ix.LookupOrganization("12345678900000")
	assert.True(t, ok)
	assert.Equal(t, "ORG_1", ref)
	_, ok = ix.LookupOrganization("11111111111111")
	assert.False(t, ok, "only the latest export is read")

	ref, ok = ix.LookupIndividual("dupont", "marie")
	assert.True(t, ok)
	assert.Equal(t, "PER_1", ref)
}

func TestLoad_DegradesPerSource(t *testing.T) {
	dir := t.TempDir()
	writeExport(t, filepath.Join(dir, "1-VIE_ENTREPRISE.xlsx"), [][]interface{}{
		{"cRefExt", "SOC_cSIRET"},
		{"ORG_1", "12345678900000"},
	})

	ix, loaded, err := Load(Sources{Dir: dir})
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeSource))
	assert.Equal(t, "", loaded.IndividualFile)
	assert.Equal(t, 1, ix.Organizations())
	assert.Equal(t, 0, ix.Individuals())
}

func TestLoad_MissingDirectory(t *testing.T) {
	ix, _, err := Load(Sources{Dir: filepath.Join(t.TempDir(), "existants")})
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeSource))
	require.NotNil(t, ix)

	_, ok := ix.LookupOrganization("12345678900000")
	assert.False(t, ok)
	_, ok = ix.LookupIndividual("Dupont", "Marie")
	assert.False(t, ok)
}

func TestLoad_LegacyWorkbookDegrades(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1-VIE_ENTREPRISE.xls"), []byte{0xD0, 0xCF}, 0o644))

	ix, loaded, err := Load(Sources{Dir: dir})
	require.Error(t, err)
	assert.Equal(t, filepath.Join(dir, "1-VIE_ENTREPRISE.xls"), loaded.OrganizationFile)
	assert.Equal(t, 0, ix.Organizations())
}
