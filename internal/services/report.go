package services

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/harrissondutra/fitOS-sub014/internal/models"
)

// WriteSummary prints the per-tenant outcome table followed by the totals,
// or the whole summary as indented JSON.
func WriteSummary(w io.Writer, summary *models.RunSummary, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TENANT\tSCHEMA\tPHASE\tREAD\tWRITTEN\tSKIPPED\tDURATION\tERROR")
	for _, rec := range summary.Records {
		var read, written, skipped int64
		if rec.Migration != nil {
			read, written, skipped = rec.Migration.Totals()
		}
		phase := string(rec.Phase)
		if rec.Phase == models.PhaseFailed {
			phase += " (" + string(rec.FailedPhase) + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			rec.TenantID, rec.SchemaName, phase, read, written, skipped, rec.Duration().Round(time.Millisecond), rec.Error)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "\nrun %s: migrated=%d failed=%d skipped=%d not_started=%d cancelled=%t\n",
		summary.RunID, summary.Migrated, summary.Failed, summary.Skipped, summary.NotStarted, summary.Cancelled)
	return err
}

// WriteValidation prints one line per table for every report.
func WriteValidation(w io.Writer, reports []*models.ValidationReport, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TENANT\tSCHEMA\tTABLE\tSOURCE\tDESTINATION\tOK")
	for _, r := range reports {
		if !r.SchemaExists || len(r.Tables) == 0 {
			fmt.Fprintf(tw, "%s\t%s\t-\t-\t-\t%t\n", r.TenantID, r.SchemaName, r.OK())
			continue
		}
		for _, tc := range r.Tables {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%t\n", r.TenantID, r.SchemaName, tc.Table, tc.Source, tc.Destination, tc.Match())
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, r := range reports {
		for _, m := range r.Mismatches {
			if _, err := fmt.Fprintf(w, "%s: %s\n", r.TenantID, m); err != nil {
				return err
			}
		}
	}
	return nil
}
