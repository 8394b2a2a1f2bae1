package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spherical/bulletin-import/internal/identity"
)

// idDateLayout is the YYYYMMDD suffix of synthetic external ids.
const idDateLayout = "20060102"

// Feminine honorifics recognised in the salutation field, lower case.
var feminineHonorifics = []string{"mme", "madame", "mlle", "mademoiselle"}

// Canonical salutations expected by the destination system.
const (
	SalutationFeminine  = "MME"
	SalutationMasculine = "M"
)

// Row is one record of a tabular source, keyed by column header.
type Row map[string]string

// Get returns the trimmed value of a column, or "" when absent.
func (r Row) Get(column string) string {
	return strings.TrimSpace(r[column])
}

// PageImage represents a single converted PDF page
type PageImage struct {
	PageNumber int
	ImagePath  string // Path to temporary JPG file
	Width      int
	Height     int
}

// ExtractedRecord is the structured answer of the extraction service for one
// bulletin. Its JSON form is keyed by the field labels of the annotation
// schema, see RecordLabels.
type ExtractedRecord struct {
	Salutation      string
	LastName        string
	FirstName       string
	Address         string
	PostalCode      string
	City            string
	Country         string
	Mobile          string
	Email           string
	BirthDate       string
	OrgName         string
	OrgAddress      string
	OrgPostalCode   string
	OrgCity         string
	OrgCountry      string
	OrgEntryDate    string
	OrgPhone        string
	OrgTaxID        string
	OrgActivityCode string
	OrgEmail        string
}

// recordField binds an annotation label to a record field. Labels such as
// "nom de l'entreprise" or "N° de SIRET" are not valid struct tag names for
// encoding/json, so the mapping is kept here instead.
type recordField struct {
	label string
	field func(r *ExtractedRecord) *string
}

var recordFields = []recordField{
	{"Civilité", func(r *ExtractedRecord) *string { return &r.Salutation }},
	{"Nom du stagiaire", func(r *ExtractedRecord) *string { return &r.LastName }},
	{"Prénom du stagiaire", func(r *ExtractedRecord) *string { return &r.FirstName }},
	{"Adresse du stagiaire", func(r *ExtractedRecord) *string { return &r.Address }},
	{"Code postal du stagiaire", func(r *ExtractedRecord) *string { return &r.PostalCode }},
	{"Ville du stagiaire", func(r *ExtractedRecord) *string { return &r.City }},
	{"Pays du stagiaire", func(r *ExtractedRecord) *string { return &r.Country }},
	{"Portable du stagiaire", func(r *ExtractedRecord) *string { return &r.Mobile }},
	{"Email du stagiaire", func(r *ExtractedRecord) *string { return &r.Email }},
	{"Date de naissance", func(r *ExtractedRecord) *string { return &r.BirthDate }},
	{"nom de l'entreprise", func(r *ExtractedRecord) *string { return &r.OrgName }},
	{"adresse de l'entreprise", func(r *ExtractedRecord) *string { return &r.OrgAddress }},
	{"Code postal", func(r *ExtractedRecord) *string { return &r.OrgPostalCode }},
	{"Ville", func(r *ExtractedRecord) *string { return &r.OrgCity }},
	{"Pays", func(r *ExtractedRecord) *string { return &r.OrgCountry }},
	{"Date d'entrée dans l'entreprise", func(r *ExtractedRecord) *string { return &r.OrgEntryDate }},
	{"Tél", func(r *ExtractedRecord) *string { return &r.OrgPhone }},
	{"N° de SIRET", func(r *ExtractedRecord) *string { return &r.OrgTaxID }},
	{"Code NAFA", func(r *ExtractedRecord) *string { return &r.OrgActivityCode }},
	{"Email", func(r *ExtractedRecord) *string { return &r.OrgEmail }},
}

// RecordLabels returns the annotation labels in schema order.
func RecordLabels() []string {
	labels := make([]string, len(recordFields))
	for i, f := range recordFields {
		labels[i] = f.label
	}
	return labels
}

// UnmarshalJSON decodes an annotation object keyed by field label. Numbers
// are kept in their literal form so a SIRET read as a number survives intact.
// Unknown keys and nulls are ignored.
func (r *ExtractedRecord) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	var out ExtractedRecord
	for _, f := range recordFields {
		v, ok := raw[f.label]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case string:
			*f.field(&out) = val
		case json.Number:
			*f.field(&out) = val.String()
		case bool:
			*f.field(&out) = strconv.FormatBool(val)
		default:
			return fmt.Errorf("field %q: unexpected %T value", f.label, v)
		}
	}
	*r = out
	return nil
}

// MarshalJSON encodes the record keyed by field label.
func (r ExtractedRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]string, len(recordFields))
	for _, f := range recordFields {
		out[f.label] = *f.field(&r)
	}
	return json.Marshal(out)
}

// Normalize trims every field in place.
func (r *ExtractedRecord) Normalize() {
	for _, f := range r.fields() {
		*f = strings.TrimSpace(*f)
	}
}

// Validate rejects a record that carries no data at all. Entity-level
// validity is decided later by Organization.IsValid and Individual.IsValid.
func (r *ExtractedRecord) Validate() error {
	for _, f := range r.fields() {
		if strings.TrimSpace(*f) != "" {
			return nil
		}
	}
	return ValidationError("extracted record is empty", nil)
}

func (r *ExtractedRecord) fields() []*string {
	out := make([]*string, len(recordFields))
	for i, f := range recordFields {
		out[i] = f.field(r)
	}
	return out
}

// IDScheme builds synthetic external ids. Prefixes come from configuration.
type IDScheme struct {
	OrganizationPrefix string
	IndividualPrefix   string
}

// OrganizationID returns "<prefix>_<taxId>_<YYYYMMDD>", or "<prefix>_<YYYYMMDD>"
// when the tax id is blank.
func (s IDScheme) OrganizationID(taxID string, on time.Time) string {
	date := on.Format(idDateLayout)
	if cleaned := identity.NormalizeTaxID(taxID); cleaned != "" {
		return s.OrganizationPrefix + "_" + cleaned + "_" + date
	}
	return s.OrganizationPrefix + "_" + date
}

// IndividualID returns "<prefix>_<first five upper-cased last name runes>_<YYYYMMDD>".
func (s IDScheme) IndividualID(lastName string, on time.Time) string {
	stem := []rune(strings.ToUpper(identity.StripSpace(lastName)))
	if len(stem) > 5 {
		stem = stem[:5]
	}
	return s.IndividualPrefix + "_" + string(stem) + "_" + on.Format(idDateLayout)
}

// Organization is the employer named on a bulletin. Its fields are fixed once
// extracted; the id it will finally be exported under is decided by
// reconciliation.
type Organization struct {
	Name         string
	Address      string
	PostalCode   string
	City         string
	Country      string
	TaxID        string
	ActivityCode string
	Phone        string
	Email        string
	EntryDate    string

	syntheticID string
}

// NewOrganization assigns the synthetic external id at construction time.
func NewOrganization(o Organization, ids IDScheme, on time.Time) Organization {
	o.syntheticID = ids.OrganizationID(o.TaxID, on)
	return o
}

// SyntheticID is the id generated when the organization was built.
func (o Organization) SyntheticID() string {
	return o.syntheticID
}

// CleanTaxID is the SIRET without whitespace.
func (o Organization) CleanTaxID() string {
	return identity.NormalizeTaxID(o.TaxID)
}

// IsValid reports whether name and tax id are both present.
func (o Organization) IsValid() bool {
	return strings.TrimSpace(o.Name) != "" && o.CleanTaxID() != ""
}

// Individual is the trainee named on a bulletin.
type Individual struct {
	Salutation string
	LastName   string
	FirstName  string
	Address    string
	PostalCode string
	City       string
	Country    string
	Mobile     string
	Email      string
	BirthDate  string

	externalID string
}

// NewIndividual assigns the synthetic external id at construction time.
func NewIndividual(i Individual, ids IDScheme, on time.Time) Individual {
	i.externalID = ids.IndividualID(i.LastName, on)
	return i
}

// ExternalID is the id the individual is exported under.
func (i Individual) ExternalID() string {
	return i.externalID
}

// IsValid reports whether last and first name are both present.
func (i Individual) IsValid() bool {
	return strings.TrimSpace(i.LastName) != "" && strings.TrimSpace(i.FirstName) != ""
}

// Gender is "F" for a feminine honorific, "M" otherwise.
func (i Individual) Gender() string {
	if i.isFeminine() {
		return "F"
	}
	return "M"
}

// NormalizedSalutation maps the free-text salutation onto the canonical form.
func (i Individual) NormalizedSalutation() string {
	if i.isFeminine() {
		return SalutationFeminine
	}
	return SalutationMasculine
}

func (i Individual) isFeminine() bool {
	s := strings.ToLower(i.Salutation)
	for _, h := range feminineHonorifics {
		if strings.Contains(s, h) {
			return true
		}
	}
	return false
}

// Enrollment pairs the organization and individual read from one document.
type Enrollment struct {
	Source       string
	Organization Organization
	Individual   Individual
}

// NewEnrollment builds both entities from an extracted record, assigning
// their synthetic ids for the given creation date.
func NewEnrollment(source string, r ExtractedRecord, ids IDScheme, on time.Time) Enrollment {
	r.Normalize()
	org := NewOrganization(Organization{
		Name:         r.OrgName,
		Address:      r.OrgAddress,
		PostalCode:   r.OrgPostalCode,
		City:         r.OrgCity,
		Country:      r.OrgCountry,
		TaxID:        r.OrgTaxID,
		ActivityCode: r.OrgActivityCode,
		Phone:        r.OrgPhone,
		Email:        r.OrgEmail,
		EntryDate:    r.OrgEntryDate,
	}, ids, on)
	ind := NewIndividual(Individual{
		Salutation: r.Salutation,
		LastName:   r.LastName,
		FirstName:  r.FirstName,
		Address:    r.Address,
		PostalCode: r.PostalCode,
		City:       r.City,
		Country:    r.Country,
		Mobile:     r.Mobile,
		Email:      r.Email,
		BirthDate:  r.BirthDate,
	}, ids, on)
	return Enrollment{Source: source, Organization: org, Individual: ind}
}

// EventType represents the type of stream event
type EventType string

const (
	EventStart              EventType = "start"
	EventDocumentProcessing EventType = "document_processing"
	EventDocumentComplete   EventType = "document_complete"
	EventError              EventType = "error"
	EventComplete           EventType = "complete"
)

// StreamEvent represents an event emitted during processing
type StreamEvent struct {
	Type      EventType   `json:"type"`
	Document  string      `json:"document,omitempty"`
	Payload   interface{} `json:"payload,omitempty"` // Record or status message
	Timestamp time.Time   `json:"timestamp"`
}
