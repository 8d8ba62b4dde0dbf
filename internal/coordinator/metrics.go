package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type coordinatorMetrics struct {
	Operations     *prometheus.CounterVec
	Rollbacks      prometheus.Counter
	EmergencyLocks prometheus.Counter
}

var metrics = &coordinatorMetrics{
	Operations: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_operations_total",
		Help: "Coordinator operations by name and outcome",
	}, []string{"op", "status"}),
	Rollbacks: promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleet_rollbacks_total",
		Help: "Operations that failed mid-commit and were rolled back",
	}),
	EmergencyLocks: promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleet_emergency_locks_total",
		Help: "Vehicles placed in emergency lock",
	}),
}
