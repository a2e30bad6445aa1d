// Package metrics exposes Prometheus counters and gauges for the cluster
// controller: job throughput, worker fault/recovery events, and queue
// depth. Same RED/USE-style layout the controller's metrics always had,
// renamed from queue vocabulary to cluster vocabulary.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects Prometheus metrics for one running simulation.
type Collector struct {
	jobsGenerated prometheus.Counter
	jobsCompleted prometheus.Counter
	jobsFailed    prometheus.Counter

	workerFailures   prometheus.Counter
	workerRecoveries prometheus.Counter

	jobLatency prometheus.Histogram

	queueDepth    prometheus.Gauge
	activeWorkers prometheus.Gauge
}

// NewCollector creates a new metrics collector and registers it against
// the default Prometheus registry.
func NewCollector() *Collector {
	c := &Collector{
		jobsGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cluster_jobs_generated_total",
			Help: "Total number of jobs generated",
		}),
		jobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cluster_jobs_completed_total",
			Help: "Total number of jobs completed successfully",
		}),
		jobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cluster_jobs_failed_total",
			Help: "Total number of jobs failed, including retry exhaustion",
		}),
		workerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cluster_worker_failures_total",
			Help: "Total number of worker failure events",
		}),
		workerRecoveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cluster_worker_recoveries_total",
			Help: "Total number of worker recovery events",
		}),
		jobLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cluster_job_latency_seconds",
			Help:    "Job execution latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cluster_queue_depth",
			Help: "Current number of pending jobs",
		}),
		activeWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cluster_active_workers",
			Help: "Current number of ONLINE or BUSY workers",
		}),
	}

	prometheus.MustRegister(
		c.jobsGenerated,
		c.jobsCompleted,
		c.jobsFailed,
		c.workerFailures,
		c.workerRecoveries,
		c.jobLatency,
		c.queueDepth,
		c.activeWorkers,
	)

	return c
}

// RecordGenerated records a job entering the queue.
func (c *Collector) RecordGenerated() {
	c.jobsGenerated.Inc()
}

// RecordCompleted records a successful job execution with its latency.
func (c *Collector) RecordCompleted(latencySeconds float64) {
	c.jobsCompleted.Inc()
	c.jobLatency.Observe(latencySeconds)
}

// RecordFailed records a job reaching a terminal FAILED status, whatever
// the cause (executor failure or retry exhaustion).
func (c *Collector) RecordFailed() {
	c.jobsFailed.Inc()
}

// RecordWorkerFailure records a worker transitioning to FAILED.
func (c *Collector) RecordWorkerFailure() {
	c.workerFailures.Inc()
}

// RecordWorkerRecovery records a worker transitioning back to ONLINE.
func (c *Collector) RecordWorkerRecovery() {
	c.workerRecoveries.Inc()
}

// UpdateGauges refreshes the point-in-time queue depth and active worker
// count, typically called once per scheduler tick.
func (c *Collector) UpdateGauges(queueDepth, activeWorkers int) {
	c.queueDepth.Set(float64(queueDepth))
	c.activeWorkers.Set(float64(activeWorkers))
}

// StartServer starts the Prometheus /metrics HTTP endpoint.
func StartServer(port int) error {
	http.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	return http.ListenAndServe(addr, nil)
}
