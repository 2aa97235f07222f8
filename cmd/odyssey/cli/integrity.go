package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

// IntegrityRunner scans posted ledger totals.
type IntegrityRunner interface {
	Run(ctx context.Context, companyID int64) (jobs.IntegrityReport, error)
}

// IntegrityOptions defines the flags of the integrity command.
type IntegrityOptions struct {
	CompanyID  int64
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// IntegritySummary is the JSON shape printed by the integrity command.
type IntegritySummary struct {
	OK         bool                 `json:"ok"`
	Companies  int                  `json:"companies"`
	Periods    int                  `json:"periods"`
	Imbalances []IntegrityImbalance `json:"imbalances"`
}

// IntegrityImbalance reports one unbalanced period.
type IntegrityImbalance struct {
	CompanyID   int64  `json:"company_id"`
	PeriodID    int64  `json:"period_id"`
	PeriodCode  string `json:"period_code"`
	TotalDebit  string `json:"total_debit"`
	TotalCredit string `json:"total_credit"`
}

// IntegrityCommand runs the scan in-process and prints the outcome. It exits
// 10 when an imbalance was found.
func IntegrityCommand(ctx context.Context, runner IntegrityRunner, opts IntegrityOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.CompanyID < 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "integrity: --company must not be negative")
		return 1
	}
	report, err := runner.Run(ctx, opts.CompanyID)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "integrity: %v\n", err)
		return 1
	}
	summary := IntegritySummary{
		OK:         len(report.Imbalances) == 0,
		Companies:  report.Companies,
		Periods:    report.Periods,
		Imbalances: make([]IntegrityImbalance, 0, len(report.Imbalances)),
	}
	for _, im := range report.Imbalances {
		summary.Imbalances = append(summary.Imbalances, IntegrityImbalance{
			CompanyID:   im.CompanyID,
			PeriodID:    im.PeriodID,
			PeriodCode:  im.PeriodCode,
			TotalDebit:  im.TotalDebit.StringFixed(4),
			TotalCredit: im.TotalCredit.StringFixed(4),
		})
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "integrity: encode json: %v\n", err)
			return 1
		}
	} else {
		renderIntegrityHuman(opts.Stdout, summary)
	}
	if !summary.OK {
		return 10
	}
	return 0
}

func renderIntegrityHuman(w io.Writer, s IntegritySummary) {
	_, _ = fmt.Fprintf(w, "checked %d periods across %d companies\n", s.Periods, s.Companies)
	if s.OK {
		_, _ = fmt.Fprintln(w, "ledger balanced")
		return
	}
	for _, im := range s.Imbalances {
		_, _ = fmt.Fprintf(w, "UNBALANCED company=%d period=%d (%s) debit=%s credit=%s\n",
			im.CompanyID, im.PeriodID, im.PeriodCode, im.TotalDebit, im.TotalCredit)
	}
}
