// Package reconcile decides, per enrollment, whether each extracted entity
// is created, linked to an existing record, or skipped.
package reconcile

import (
	"sync"

	"github.com/spherical/bulletin-import/internal/domain"
	"github.com/spherical/bulletin-import/internal/observability"
)

// Disposition is the outcome of reconciling one entity.
type Disposition string

const (
	DispositionNew            Disposition = "NEW"
	DispositionLinkedExisting Disposition = "LINKED-EXISTING"
	DispositionSkipExisting   Disposition = "SKIP-EXISTING"
	DispositionSkipInvalid    Disposition = "SKIP-INVALID"
)

// Lookup is the read side of the existing-entity index.
type Lookup interface {
	LookupOrganization(taxID string) (string, bool)
	LookupIndividual(lastName, firstName string) (string, bool)
}

// OrganizationDecision carries the resolved identity of an organization.
// ExternalID is the synthetic id for NEW organizations and the destination
// system's id for LINKED-EXISTING ones.
type OrganizationDecision struct {
	Organization domain.Organization
	Disposition  Disposition
	ExternalID   string
}

// IndividualDecision carries the outcome for an individual. OrganizationID is
// the id of the organization as resolved in the same enrollment; ExistingID
// is set for SKIP-EXISTING.
type IndividualDecision struct {
	Individual     domain.Individual
	Disposition    Disposition
	ExistingID     string
	OrganizationID string
}

// Decision is the reconciliation outcome of one enrollment.
type Decision struct {
	Source       string
	Organization OrganizationDecision
	Individual   IndividualDecision
}

// Stats counts dispositions per entity kind.
type Stats struct {
	Organizations map[Disposition]int
	Individuals   map[Disposition]int
}

// Engine applies the decision rules and accumulates the two worklists in
// input order.
type Engine struct {
	index  Lookup
	logger *observability.Logger

	mu            sync.Mutex
	organizations []OrganizationDecision
	individuals   []IndividualDecision
	stats         Stats
}

// NewEngine creates an engine over a read-only index.
func NewEngine(index Lookup, logger *observability.Logger) *Engine {
	return &Engine{
		index:  index,
		logger: observability.OrNop(logger).WithOperation("reconcile"),
		stats: Stats{
			Organizations: make(map[Disposition]int),
			Individuals:   make(map[Disposition]int),
		},
	}
}

// Decide reconciles one enrollment and queues its NEW entities. The
// organization is decided first so that the individual references the
// organization's final id. Validity is checked before any lookup, so an
// empty key never reaches the index.
func (e *Engine) Decide(en domain.Enrollment) Decision {
	org := e.decideOrganization(en.Organization)
	ind := e.decideIndividual(en.Individual, org.ExternalID)

	e.mu.Lock()
	if org.Disposition == DispositionNew {
		e.organizations = append(e.organizations, org)
	}
	if ind.Disposition == DispositionNew {
		e.individuals = append(e.individuals, ind)
	}
	e.stats.Organizations[org.Disposition]++
	e.stats.Individuals[ind.Disposition]++
	e.mu.Unlock()

	log := e.logger.WithDocument(en.Source)
	log.Info().
		Str("siret", org.Organization.CleanTaxID()).
		Str("organization", string(org.Disposition)).
		Str("organization_ref", org.ExternalID).
		Str("individual", string(ind.Disposition)).
		Msg("enrollment reconciled")

	return Decision{Source: en.Source, Organization: org, Individual: ind}
}

func (e *Engine) decideOrganization(o domain.Organization) OrganizationDecision {
	d := OrganizationDecision{Organization: o, ExternalID: o.SyntheticID()}
	if !o.IsValid() {
		d.Disposition = DispositionSkipInvalid
		return d
	}
	if ref, ok := e.index.LookupOrganization(o.TaxID); ok {
		d.Disposition = DispositionLinkedExisting
		d.ExternalID = ref
		return d
	}
	d.Disposition = DispositionNew
	return d
}

func (e *Engine) decideIndividual(i domain.Individual, organizationID string) IndividualDecision {
	d := IndividualDecision{Individual: i, OrganizationID: organizationID}
	if !i.IsValid() {
		d.Disposition = DispositionSkipInvalid
		return d
	}
	if ref, ok := e.index.LookupIndividual(i.LastName, i.FirstName); ok {
		d.Disposition = DispositionSkipExisting
		d.ExistingID = ref
		return d
	}
	d.Disposition = DispositionNew
	return d
}

// Organizations returns the NEW organizations in decision order.
func (e *Engine) Organizations() []OrganizationDecision {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]OrganizationDecision(nil), e.organizations...)
}

// Individuals returns the NEW individuals in decision order.
func (e *Engine) Individuals() []IndividualDecision {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]IndividualDecision(nil), e.individuals...)
}

// Stats returns a snapshot of the disposition counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Stats{
		Organizations: make(map[Disposition]int, len(e.stats.Organizations)),
		Individuals:   make(map[Disposition]int, len(e.stats.Individuals)),
	}
	for k, v := range e.stats.Organizations {
		s.Organizations[k] = v
	}
	for k, v := range e.stats.Individuals {
		s.Individuals[k] = v
	}
	return s
}

// Empty reports whether neither worklist holds anything to export.
func (e *Engine) Empty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.organizations) == 0 && len(e.individuals) == 0
}
