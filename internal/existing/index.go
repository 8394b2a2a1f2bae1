// Package existing indexes the entities already present in the destination
// system, as found in its latest exports.
package existing

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/spherical/bulletin-import/internal/domain"
	"github.com/spherical/bulletin-import/internal/identity"
	"github.com/spherical/bulletin-import/internal/tabular"
)

// Column headers of the destination system's exports.
const (
	ColumnExternalID = "cRefExt"
	ColumnTaxID      = "SOC_cSIRET"
	ColumnLastName   = "PER_cNom"
	ColumnFirstName  = "PER_cPrenom"
)

// Default export file name patterns; the first group is the numeric prefix.
var (
	DefaultOrganizationPattern = regexp.MustCompile(`^(\d+)-VIE_ENTREPRISE\.(?:xlsx|csv|xls)$`)
	DefaultIndividualPattern   = regexp.MustCompile(`^(\d+)-VIE_PERSONNE\.(?:xlsx|csv|xls)$`)
)

// Index maps normalized identity keys to external ids. It is read-only once
// built and safe for concurrent lookups.
type Index struct {
	organizations map[string]string
	individuals   map[string]string
}

// New copies already-normalized key maps into an Index.
func New(organizations, individuals map[string]string) *Index {
	ix := &Index{
		organizations: make(map[string]string, len(organizations)),
		individuals:   make(map[string]string, len(individuals)),
	}
	for k, v := range organizations {
		ix.organizations[k] = v
	}
	for k, v := range individuals {
		ix.individuals[k] = v
	}
	return ix
}

// Empty returns an index with no entries.
func Empty() *Index {
	return New(nil, nil)
}

// Build indexes organization and individual export rows. Rows lacking a
// required field are skipped; on duplicate keys the last row wins.
func Build(organizationRows, individualRows []domain.Row) *Index {
	ix := Empty()
	for _, row := range organizationRows {
		key := identity.NormalizeTaxID(row[ColumnTaxID])
		ref := row.Get(ColumnExternalID)
		if key == "" || ref == "" {
			continue
		}
		ix.organizations[key] = ref
	}
	for _, row := range individualRows {
		last, first := row.Get(ColumnLastName), row.Get(ColumnFirstName)
		ref := row.Get(ColumnExternalID)
		if last == "" || first == "" || ref == "" {
			continue
		}
		ix.individuals[identity.NormalizePersonKey(last, first)] = ref
	}
	return ix
}

// LookupOrganization returns the external id registered for a tax id.
func (ix *Index) LookupOrganization(taxID string) (string, bool) {
	key := identity.NormalizeTaxID(taxID)
	if key == "" {
		return "", false
	}
	ref, ok := ix.organizations[key]
	return ref, ok
}

// LookupIndividual returns the external id registered for a person.
func (ix *Index) LookupIndividual(lastName, firstName string) (string, bool) {
	if identity.StripSpace(lastName) == "" || identity.StripSpace(firstName) == "" {
		return "", false
	}
	ref, ok := ix.individuals[identity.NormalizePersonKey(lastName, firstName)]
	return ref, ok
}

// Organizations is the number of indexed organizations.
func (ix *Index) Organizations() int {
	return len(ix.organizations)
}

// Individuals is the number of indexed individuals.
func (ix *Index) Individuals() int {
	return len(ix.individuals)
}

// Sources locates the export files inside a directory.
type Sources struct {
	Dir                 string
	OrganizationPattern *regexp.Regexp
	IndividualPattern   *regexp.Regexp
}

// Loaded describes which files an index was built from.
type Loaded struct {
	OrganizationFile string
	IndividualFile   string
}

// Load builds the index from the latest export of each kind. Each kind
// degrades independently: a missing or unreadable file leaves that half of
// the index empty and contributes a source error to the returned error. The
// returned index is always usable.
func Load(src Sources) (*Index, Loaded, error) {
	if src.OrganizationPattern == nil {
		src.OrganizationPattern = DefaultOrganizationPattern
	}
	if src.IndividualPattern == nil {
		src.IndividualPattern = DefaultIndividualPattern
	}

	var loaded Loaded
	var errs []error

	orgRows, orgFile, err := readLatest(src.Dir, src.OrganizationPattern, "organization")
	if err != nil {
		errs = append(errs, err)
	}
	loaded.OrganizationFile = orgFile

	indRows, indFile, err := readLatest(src.Dir, src.IndividualPattern, "individual")
	if err != nil {
		errs = append(errs, err)
	}
	loaded.IndividualFile = indFile

	return Build(orgRows, indRows), loaded, errors.Join(errs...)
}

func readLatest(dir string, pattern *regexp.Regexp, kind string) ([]domain.Row, string, error) {
	path, err := tabular.FindLatest(dir, pattern)
	if err != nil {
		return nil, "", err
	}
	if path == "" {
		return nil, "", domain.SourceError(fmt.Sprintf("no %s export matching %s in %s", kind, pattern, dir), nil)
	}

	source, err := tabular.Open(path, "")
	if err != nil {
		return nil, path, err
	}
	rows, err := source.Rows()
	if err != nil {
		return nil, path, err
	}
	return rows, path, nil
}
