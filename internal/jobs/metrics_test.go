package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue next
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestTrackerRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	require.NoError(t, m.Track("ledger:gl_integrity").End(nil))
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("ledger:gl_integrity").End(boom), boom)

	assert.Equal(t, 1.0, counterValue(t, reg, "odyssey_jobs_total", map[string]string{"job": "ledger:gl_integrity", "status": "success"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "odyssey_jobs_total", map[string]string{"job": "ledger:gl_integrity", "status": "failure"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "odyssey_jobs_failures_total", map[string]string{"job": "ledger:gl_integrity"}))
}

func TestAddItemsIgnoresEmptyCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.AddItems("ledger:post_batch", "posted", 3)
	m.AddItems("ledger:post_batch", "posted", 0)

	assert.Equal(t, 3.0, counterValue(t, reg, "odyssey_job_items_total", map[string]string{"job": "ledger:post_batch", "outcome": "posted"}))

	var nilMetrics *Metrics
	nilMetrics.AddItems("x", "y", 1)
	assert.NoError(t, nilMetrics.Track("x").End(nil))
}
