package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spherical/bulletin-import/cmd/bulletin-import/ui"
	"github.com/spherical/bulletin-import/internal/pipeline"
	"github.com/spherical/bulletin-import/internal/reconcile"
)

var dispositions = []reconcile.Disposition{
	reconcile.DispositionNew,
	reconcile.DispositionLinkedExisting,
	reconcile.DispositionSkipExisting,
	reconcile.DispositionSkipInvalid,
}

func printSummary(s *pipeline.Summary, elapsed time.Duration) {
	ui.Section("Import summary")
	ui.KeyValue("Run", s.RunID)
	ui.KeyValue("Documents", fmt.Sprintf("%d found, %d extracted, %d failed", s.Documents, s.Extracted, len(s.Failed)))
	ui.KeyValue("Duration", ui.FormatDuration(elapsed))
	if s.Existing.OrganizationFile != "" {
		ui.KeyValue("Existing organizations", s.Existing.OrganizationFile)
	}
	if s.Existing.IndividualFile != "" {
		ui.KeyValue("Existing individuals", s.Existing.IndividualFile)
	}
	fmt.Fprintln(os.Stdout)

	if len(s.Decisions) > 0 {
		ui.Table(os.Stdout, decisionHeaders, decisionRows(s.Decisions))
		fmt.Fprintln(os.Stdout)
		ui.Table(os.Stdout, []string{"Entity", "NEW", "LINKED-EXISTING", "SKIP-EXISTING", "SKIP-INVALID"}, statsRows(s.Stats))
		fmt.Fprintln(os.Stdout)
	}

	for _, w := range s.Warnings {
		ui.Warning("%s", w)
	}
	for _, path := range sortedKeys(s.Failed) {
		ui.Warning("%s skipped: %v", filepath.Base(path), s.Failed[path])
	}
	if s.OrganizationFile != "" {
		ui.Success("Organizations written to %s", s.OrganizationFile)
	}
	if s.IndividualFile != "" {
		ui.Success("Individuals written to %s", s.IndividualFile)
	}
}

var decisionHeaders = []string{"Document", "Organization", "Organization ref", "Individual", "Individual ref"}

func decisionRows(decisions []reconcile.Decision) [][]string {
	rows := make([][]string, 0, len(decisions))
	for _, d := range decisions {
		indRef := d.Individual.Individual.ExternalID()
		if d.Individual.Disposition == reconcile.DispositionSkipExisting {
			indRef = d.Individual.ExistingID
		}
		rows = append(rows, []string{
			filepath.Base(d.Source),
			string(d.Organization.Disposition),
			d.Organization.ExternalID,
			string(d.Individual.Disposition),
			indRef,
		})
	}
	return rows
}

func statsRows(st reconcile.Stats) [][]string {
	org := []string{"Organizations"}
	ind := []string{"Individuals"}
	for _, d := range dispositions {
		org = append(org, fmt.Sprint(st.Organizations[d]))
		ind = append(ind, fmt.Sprint(st.Individuals[d]))
	}
	return [][]string{org, ind}
}

func sortedKeys(m map[string]error) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
