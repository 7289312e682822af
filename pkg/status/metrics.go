package status

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes the status map as Prometheus gauges/counters. It does
// not own any state; Observe is called by the Orchestrator's dispatcher
// loop after each status-map mutation.
type Metrics struct {
	progress       *prometheus.GaugeVec
	finishedTasks  *prometheus.GaugeVec
	successfulTasks *prometheus.GaugeVec
	failedCount    *prometheus.GaugeVec
	registered     prometheus.Gauge
}

// NewMetrics registers the orchestrator's gauges against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		progress: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "exec_orchestrator_contract_progress",
			Help: "Fraction of the current batch's executions that have reported a result, per contract.",
		}, []string{"address"}),
		finishedTasks: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "exec_orchestrator_contract_finished_batches",
			Help: "Total batches completed for this contract since registration.",
		}, []string{"address"}),
		successfulTasks: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "exec_orchestrator_contract_successful_batches",
			Help: "Batches completed with no failed executions, per contract.",
		}, []string{"address"}),
		failedCount: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "exec_orchestrator_contract_failed_executions",
			Help: "Failed executions in the current batch, per contract.",
		}, []string{"address"}),
		registered: factory.NewGauge(prometheus.GaugeOpts{
			Name: "exec_orchestrator_registered_contracts",
			Help: "Number of contracts currently registered.",
		}),
	}
}

// Observe updates every gauge from a fresh status-map snapshot.
func (m *Metrics) Observe(snapshot map[string]TaskStatus) {
	m.registered.Set(float64(len(snapshot)))
	for addr, s := range snapshot {
		m.progress.WithLabelValues(addr).Set(s.Progress)
		m.finishedTasks.WithLabelValues(addr).Set(float64(s.FinishedTask))
		m.successfulTasks.WithLabelValues(addr).Set(float64(s.SuccessfulTask))
		m.failedCount.WithLabelValues(addr).Set(float64(len(s.FailedTasks)))
	}
}

// Forget removes an unregistered contract's label series so stale gauges
// don't linger after unregister_contract.
func (m *Metrics) Forget(address string) {
	m.progress.DeleteLabelValues(address)
	m.finishedTasks.DeleteLabelValues(address)
	m.successfulTasks.DeleteLabelValues(address)
	m.failedCount.DeleteLabelValues(address)
}
