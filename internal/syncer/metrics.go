package syncer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "logsync"
	subsystem = "syncer"
)

// Round outcomes used as the "result" label of rounds_total.
const (
	resultOK      = "ok"
	resultEmpty   = "empty"
	resultAnomaly = "anomaly"
	resultError   = "error"
)

type metrics struct {
	rounds     *prometheus.CounterVec
	operations *prometheus.CounterVec
	anomalies  *prometheus.CounterVec
	pushed     prometheus.Counter
}

// newMetrics registers the syncer's collectors with reg. A nil reg creates
// unregistered collectors.
func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		rounds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rounds_total",
			Help:      "number of sync rounds by result",
		}, []string{"result"}),
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "operations_total",
			Help:      "number of reconciled operations by kind",
		}, []string{"kind"}),
		anomalies: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "anomalies_total",
			Help:      "number of rounds halted by a reconciliation anomaly",
		}, []string{"code"}),
		pushed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "entries_pushed_total",
			Help:      "number of entries appended to the shared log",
		}),
	}
}
