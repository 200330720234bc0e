package deployflow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the workflow's Prometheus collectors.
type Metrics struct {
	stageDuration *prometheus.HistogramVec
	stageRuns     *prometheus.CounterVec
	transactions  *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "deployflow",
				Subsystem: "workflow",
				Name:      "stage_duration_seconds",
				Help:      "Duration of workflow stages.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
			},
			[]string{"stage"},
		),
		stageRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "deployflow",
				Subsystem: "workflow",
				Name:      "stage_runs_total",
				Help:      "Total number of stage executions by outcome.",
			},
			[]string{"stage", "outcome"},
		),
		transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "deployflow",
				Subsystem: "ledger",
				Name:      "transactions_total",
				Help:      "Total number of confirmed or rejected transactions.",
			},
			[]string{"stage", "step", "status"},
		),
	}
	for _, c := range []prometheus.Collector{m.stageDuration, m.stageRuns, m.transactions} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeStage(stage Stage, took time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.stageDuration.WithLabelValues(stage.String()).Observe(took.Seconds())
	m.stageRuns.WithLabelValues(stage.String(), outcome).Inc()
}

func (m *Metrics) observeTx(stage Stage, step, status string) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(stage.String(), step, status).Inc()
}
