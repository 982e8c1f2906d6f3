package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Queue metrics
var (
	jobsProcessed *prometheus.CounterVec
	queueDepth    prometheus.Gauge
	dlqDepth      prometheus.Gauge
	handleLatency *prometheus.HistogramVec
	queueOnce     = make(chan struct{}, 1)
	queueReg      prometheus.Registerer
)

// SetQueueMetricsRegisterer sets a custom Prometheus registerer for queue metrics (useful for testing).
func SetQueueMetricsRegisterer(reg prometheus.Registerer) { queueReg = reg }

func initQueueMetricsOnce() {
	select {
	case queueOnce <- struct{}{}:
		if queueReg != nil {
			jobsProcessed = prometheus.NewCounterVec(
				prometheus.CounterOpts{Name: "deltastream_queue_jobs_total", Help: "Jobs processed by kind and result"},
				[]string{"kind", "result"},
			)
			queueDepth = prometheus.NewGauge(
				prometheus.GaugeOpts{Name: "deltastream_queue_depth", Help: "Messages waiting in the pending list"},
			)
			dlqDepth = prometheus.NewGauge(
				prometheus.GaugeOpts{Name: "deltastream_queue_dlq_depth", Help: "Entries in the dead-letter list"},
			)
			handleLatency = prometheus.NewHistogramVec(
				prometheus.HistogramOpts{Name: "deltastream_queue_handle_seconds", Help: "Handling time per job"},
				[]string{"kind"},
			)
			queueReg.MustRegister(jobsProcessed, queueDepth, dlqDepth, handleLatency)
		} else {
			jobsProcessed = promauto.NewCounterVec(
				prometheus.CounterOpts{Name: "deltastream_queue_jobs_total", Help: "Jobs processed by kind and result"},
				[]string{"kind", "result"},
			)
			queueDepth = promauto.NewGauge(
				prometheus.GaugeOpts{Name: "deltastream_queue_depth", Help: "Messages waiting in the pending list"},
			)
			dlqDepth = promauto.NewGauge(
				prometheus.GaugeOpts{Name: "deltastream_queue_dlq_depth", Help: "Entries in the dead-letter list"},
			)
			handleLatency = promauto.NewHistogramVec(
				prometheus.HistogramOpts{Name: "deltastream_queue_handle_seconds", Help: "Handling time per job"},
				[]string{"kind"},
			)
		}
	default:
		// already initialized
	}
}
