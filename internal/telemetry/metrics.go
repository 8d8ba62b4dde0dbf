package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// pipelineMetrics holds the Prometheus metrics for the telemetry pipeline.
type pipelineMetrics struct {
	QueueDepth       prometheus.Gauge
	SamplesProcessed prometheus.Counter
	EventsEmitted    *prometheus.CounterVec
}

var metrics = &pipelineMetrics{
	QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
		Name: "telemetry_queue_depth",
		Help: "Number of telemetry updates waiting in the ingress queue",
	}),
	SamplesProcessed: promauto.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_samples_processed_total",
		Help: "Total telemetry samples applied by the worker",
	}),
	EventsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_events_emitted_total",
		Help: "Telemetry events dispatched to the coordinator",
	}, []string{"event"}),
}
