// Package export turns reconciled worklists into the fixed-column import
// files of the destination system.
package export

import (
	"strings"

	"github.com/spherical/bulletin-import/internal/reconcile"
)

// OrganizationHeaders is the column contract of the organization import.
var OrganizationHeaders = []string{
	"cRefExt", "iDesactive", "SOC_cRaisonSociale", "SOC_cType",
	"SOC_iEstSiege", "SOC_cCateg", "SOC_cSIRET", "SOC_cNACE",
	"ADR_IESTADRCOURRIER", "ADR_cAdresseNature", "ADR_cAdresse1",
	"ADR_cAdresse2", "ADR_cAdresse3", "ADR_cAdresse4", "ADR_cCodePostal",
	"ADR_cVille", "ADR_cPays", "ADR_cSiteWeb", "ADR_cTel", "ADR_cEmail",
	"LIE_cCode", "LIE_cLibelle", "LIE_cRefext", "org_cAgrementAnimateur",
}

// IndividualHeaders is the column contract of the trainee import.
var IndividualHeaders = []string{
	"cRefExt", "SOC_cRefExt", "SOC_cRefExtService", "PER_CCODESTRUCTURE_RATTACHEMENT",
	"PER_cNumeroSS", "PER_cCivilite", "PER_cSexe", "PER_cNom", "PER_cPrenom",
	"PER_cNomJeun", "PER_xDateNaiss", "PER_cCommuneNaiss", "PER_cDeptNaiss",
	"PER_cPaysNaiss", "PER_cSitFam", "PER_cNationalite", "PER_cNIvForm",
	"PER_cCateg", "iDesactive", "PER_BNPAI_MAIL", "PER_BBL_COMM_MAIL",
	"psl_cTel", "psl_cTelPort", "psl_cEmail", "ADR_cAdresseNature",
	"ADR_cAdresse1", "ADR_cAdresse2", "ADR_cAdresse3", "ADR_cAdresse4",
	"ADR_cCodePostal", "ADR_cVille", "ADR_cPays", "ADR_cSiteWeb",
	"ADR_CTEL", "ADR_CTELPORT", "ADR_CEMAIL",
}

// Fixed values of the organization import.
const (
	orgActive         = "0"
	orgType           = "E"
	orgIsHeadOffice   = "-1"
	orgCategory       = "SGE"
	orgIsMailAddress  = "-1"
	orgAddressNature  = "PR"
	personStructure   = "CLIENT"
	personCategories  = "INT,STA"
	personActive      = "0"
	personNoMailFlag  = "0"
	personNoCommFlag  = "0"
	personAddressKind = "PERS"
)

// CountryCoder resolves a free-text country label to a code.
type CountryCoder interface {
	Code(label string) string
}

// OrganizationRows maps NEW organizations to import rows, in worklist order.
func OrganizationRows(worklist []reconcile.OrganizationDecision, countries CountryCoder) [][]string {
	rows := make([][]string, 0, len(worklist))
	for _, d := range worklist {
		o := d.Organization
		rows = append(rows, []string{
			d.ExternalID,              // cRefExt
			orgActive,                 // iDesactive
			o.Name,                    // SOC_cRaisonSociale
			orgType,                   // SOC_cType
			orgIsHeadOffice,           // SOC_iEstSiege
			orgCategory,               // SOC_cCateg
			o.CleanTaxID(),            // SOC_cSIRET
			o.ActivityCode,            // SOC_cNACE
			orgIsMailAddress,          // ADR_IESTADRCOURRIER
			orgAddressNature,          // ADR_cAdresseNature
			o.Address,                 // ADR_cAdresse1
			"",                        // ADR_cAdresse2
			"",                        // ADR_cAdresse3
			"",                        // ADR_cAdresse4
			o.PostalCode,              // ADR_cCodePostal
			o.City,                    // ADR_cVille
			countries.Code(o.Country), // ADR_cPays
			"",                        // ADR_cSiteWeb
			o.Phone,                   // ADR_cTel
			o.Email,                   // ADR_cEmail
			"",                        // LIE_cCode
			"",                        // LIE_cLibelle
			"",                        // LIE_cRefext
			"",                        // org_cAgrementAnimateur
		})
	}
	return rows
}

// IndividualRows maps NEW individuals to import rows, in worklist order.
// SOC_cRefExt is the organization id resolved during reconciliation.
func IndividualRows(worklist []reconcile.IndividualDecision, countries CountryCoder) [][]string {
	rows := make([][]string, 0, len(worklist))
	for _, d := range worklist {
		p := d.Individual
		country := countries.Code(p.Country)
		rows = append(rows, []string{
			p.ExternalID(),              // cRefExt
			d.OrganizationID,            // SOC_cRefExt
			"",                          // SOC_cRefExtService
			personStructure,             // PER_CCODESTRUCTURE_RATTACHEMENT
			"",                          // PER_cNumeroSS
			p.NormalizedSalutation(),    // PER_cCivilite
			p.Gender(),                  // PER_cSexe
			strings.ToUpper(p.LastName), // PER_cNom
			p.FirstName,                 // PER_cPrenom
			"",                          // PER_cNomJeun
			p.BirthDate,                 // PER_xDateNaiss
			"",                          // PER_cCommuneNaiss
			"",                          // PER_cDeptNaiss
			country,                     // PER_cPaysNaiss
			"",                          // PER_cSitFam
			country,                     // PER_cNationalite
			"",                          // PER_cNIvForm
			personCategories,            // PER_cCateg
			personActive,                // iDesactive
			personNoMailFlag,            // PER_BNPAI_MAIL
			personNoCommFlag,            // PER_BBL_COMM_MAIL
			"",                          // psl_cTel
			p.Mobile,                    // psl_cTelPort
			p.Email,                     // psl_cEmail
			personAddressKind,           // ADR_cAdresseNature
			p.Address,                   // ADR_cAdresse1
			"",                          // ADR_cAdresse2
			"",                          // ADR_cAdresse3
			"",                          // ADR_cAdresse4
			p.PostalCode,                // ADR_cCodePostal
			p.City,                      // ADR_cVille
			country,                     // ADR_cPays
			"",                          // ADR_cSiteWeb
			"",                          // ADR_CTEL
			p.Mobile,                    // ADR_CTELPORT
			p.Email,                     // ADR_CEMAIL
		})
	}
	return rows
}
