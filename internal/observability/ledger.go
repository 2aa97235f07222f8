package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics counts ledger state changes. A nil receiver is a no-op.
type LedgerMetrics struct {
	drafts      prometheus.Counter
	posted      prometheus.Counter
	batchItems  *prometheus.CounterVec
	transitions *prometheus.CounterVec
	violations  *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger collectors against registerer.
func NewLedgerMetrics(registerer prometheus.Registerer) *LedgerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &LedgerMetrics{
		drafts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "odyssey_ledger_drafts_created_total",
			Help: "Draft journal entries created.",
		}),
		posted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "odyssey_ledger_journals_posted_total",
			Help: "Journal entries transitioned to POSTED.",
		}),
		batchItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_ledger_batch_items_total",
			Help: "Batch post items partitioned by outcome.",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_ledger_period_transitions_total",
			Help: "Accounting period lifecycle changes partitioned by action.",
		}, []string{"action"}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_ledger_integrity_violations_total",
			Help: "Periods whose posted debits and credits disagree.",
		}, []string{"company"}),
	}
	registerer.MustRegister(m.drafts, m.posted, m.batchItems, m.transitions, m.violations)
	return m
}

func (m *LedgerMetrics) DraftCreated() {
	if m != nil {
		m.drafts.Inc()
	}
}

func (m *LedgerMetrics) JournalPosted() {
	if m != nil {
		m.posted.Inc()
	}
}

// BatchItem counts one batch item as posted, failed, or aborted.
func (m *LedgerMetrics) BatchItem(outcome string) {
	if m != nil {
		m.batchItems.WithLabelValues(outcome).Inc()
	}
}

func (m *LedgerMetrics) PeriodTransition(action string) {
	if m != nil {
		m.transitions.WithLabelValues(action).Inc()
	}
}

// IntegrityViolation counts one unbalanced period found for companyID.
func (m *LedgerMetrics) IntegrityViolation(companyID int64) {
	if m != nil {
		m.violations.WithLabelValues(strconv.FormatInt(companyID, 10)).Inc()
	}
}
