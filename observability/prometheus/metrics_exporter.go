// Package prometheus adapts branch.Metrics and periodic branch snapshots to
// Prometheus collectors.
package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/branchpool/branchpool/branch"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// MetricsExporter adapts branch.Metrics to Prometheus collectors.
type MetricsExporter struct {
	taskDurationSeconds *prom.HistogramVec
	taskPanicTotal      *prom.CounterVec
	workerCount         *prom.GaugeVec
	queueDepth          *prom.GaugeVec
}

var _ branch.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors backing a
// branch.Metrics implementation.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "branchpool"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Task execution duration in seconds.",
		Buckets:   buckets,
	}, []string{"branch", "class"})
	panicVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_panic_total",
		Help:      "Total number of task panics recovered on a branch.",
	}, []string{"branch"})
	workerVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "worker_count",
		Help:      "Current worker count for a branch.",
	}, []string{"branch"})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Current queue depth for a branch.",
	}, []string{"branch"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if panicVec, err = registerCollector(reg, panicVec); err != nil {
		return nil, err
	}
	if workerVec, err = registerCollector(reg, workerVec); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		taskDurationSeconds: durationVec,
		taskPanicTotal:      panicVec,
		workerCount:         workerVec,
		queueDepth:          queueDepthVec,
	}, nil
}

// RecordWorkerCount records the current worker count of a branch.
func (m *MetricsExporter) RecordWorkerCount(branchName string, n int) {
	if m == nil {
		return
	}
	m.workerCount.WithLabelValues(normalizeLabel(branchName, "unknown")).Set(float64(n))
}

// RecordQueueDepth records the current queue depth of a branch.
func (m *MetricsExporter) RecordQueueDepth(branchName string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(normalizeLabel(branchName, "unknown")).Set(float64(depth))
}

// RecordTaskDuration records task execution duration.
func (m *MetricsExporter) RecordTaskDuration(branchName string, class branch.TaskClass, d time.Duration) {
	if m == nil {
		return
	}
	m.taskDurationSeconds.WithLabelValues(normalizeLabel(branchName, "unknown"), class.String()).Observe(d.Seconds())
}

// RecordTaskPanic records a recovered task panic.
func (m *MetricsExporter) RecordTaskPanic(branchName string, class branch.TaskClass) {
	if m == nil {
		return
	}
	m.taskPanicTotal.WithLabelValues(normalizeLabel(branchName, "unknown")).Inc()
}

func normalizeLabel(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
