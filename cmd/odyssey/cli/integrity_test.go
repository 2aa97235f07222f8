package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

type stubRunner struct {
	report  jobs.IntegrityReport
	err     error
	company int64
}

func (s *stubRunner) Run(_ context.Context, companyID int64) (jobs.IntegrityReport, error) {
	s.company = companyID
	return s.report, s.err
}

func TestIntegrityCommandJSONSuccess(t *testing.T) {
	runner := &stubRunner{report: jobs.IntegrityReport{Companies: 2, Periods: 5}}
	var stdout, stderr bytes.Buffer

	code := IntegrityCommand(context.Background(), runner, IntegrityOptions{CompanyID: 4, JSONOutput: true, Stdout: &stdout, Stderr: &stderr})

	require.Equal(t, 0, code)
	require.Empty(t, stderr.String())
	require.Equal(t, int64(4), runner.company)
	var summary IntegritySummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.True(t, summary.OK)
	require.Equal(t, 5, summary.Periods)
	require.Empty(t, summary.Imbalances)
}

func TestIntegrityCommandReportsImbalance(t *testing.T) {
	runner := &stubRunner{report: jobs.IntegrityReport{
		Companies: 1,
		Periods:   1,
		Imbalances: []jobs.Imbalance{{
			CompanyID:   1,
			PeriodID:    7,
			PeriodCode:  "2024-03",
			TotalDebit:  decimal.NewFromInt(100),
			TotalCredit: decimal.RequireFromString("99.5"),
		}},
	}}
	var stdout bytes.Buffer

	code := IntegrityCommand(context.Background(), runner, IntegrityOptions{Stdout: &stdout, Stderr: &bytes.Buffer{}})

	require.Equal(t, 10, code)
	require.True(t, strings.Contains(stdout.String(), "UNBALANCED company=1 period=7 (2024-03) debit=100.0000 credit=99.5000"), stdout.String())
}

func TestIntegrityCommandFailures(t *testing.T) {
	var stderr bytes.Buffer
	code := IntegrityCommand(context.Background(), &stubRunner{}, IntegrityOptions{CompanyID: -1, Stdout: &bytes.Buffer{}, Stderr: &stderr})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "--company")

	stderr.Reset()
	code = IntegrityCommand(context.Background(), &stubRunner{err: errors.New("db down")}, IntegrityOptions{Stdout: &bytes.Buffer{}, Stderr: &stderr})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "db down")
}
