package prometheus

import (
	"testing"
	"time"

	"github.com/branchpool/branchpool/branch"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsExporter_RecordMethods(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("branchpool", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	exporter.RecordWorkerCount("branch-a", 4)
	exporter.RecordTaskDuration("branch-a", branch.Normal, 250*time.Millisecond)
	exporter.RecordTaskPanic("branch-a", branch.Urgent)
	exporter.RecordQueueDepth("branch-a", 7)

	workers := testutil.ToFloat64(exporter.workerCount.WithLabelValues("branch-a"))
	if workers != 4 {
		t.Fatalf("worker count = %v, want 4", workers)
	}

	panicTotal := testutil.ToFloat64(exporter.taskPanicTotal.WithLabelValues("branch-a"))
	if panicTotal != 1 {
		t.Fatalf("panic total = %v, want 1", panicTotal)
	}

	queueDepth := testutil.ToFloat64(exporter.queueDepth.WithLabelValues("branch-a"))
	if queueDepth != 7 {
		t.Fatalf("queue depth = %v, want 7", queueDepth)
	}

	histCount, err := histogramSampleCount(exporter.taskDurationSeconds.WithLabelValues("branch-a", branch.Normal.String()))
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if histCount != 1 {
		t.Fatalf("duration sample count = %d, want 1", histCount)
	}
}

func TestMetricsExporter_AlreadyRegisteredReuse(t *testing.T) {
	reg := prom.NewRegistry()
	first, err := NewMetricsExporter("branchpool", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("first NewMetricsExporter failed: %v", err)
	}
	second, err := NewMetricsExporter("branchpool", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("second NewMetricsExporter failed: %v", err)
	}

	first.RecordTaskPanic("branch-a", branch.Normal)
	second.RecordTaskPanic("branch-a", branch.Normal)

	got := testutil.ToFloat64(first.taskPanicTotal.WithLabelValues("branch-a"))
	if got != 2 {
		t.Fatalf("shared panic counter = %v, want 2", got)
	}
}

func TestMetricsExporter_NilReceiverIsNoOp(t *testing.T) {
	var m *MetricsExporter
	m.RecordWorkerCount("branch-a", 1)
	m.RecordQueueDepth("branch-a", 1)
	m.RecordTaskDuration("branch-a", branch.Normal, time.Second)
	m.RecordTaskPanic("branch-a", branch.Normal)
}

func histogramSampleCount(observer prom.Observer) (uint64, error) {
	collector, ok := observer.(prom.Collector)
	if !ok {
		return 0, nil
	}

	metricCh := make(chan prom.Metric, 1)
	collector.Collect(metricCh)
	close(metricCh)
	for metric := range metricCh {
		msg := &dto.Metric{}
		if err := metric.Write(msg); err != nil {
			return 0, err
		}
		if msg.Histogram != nil {
			return msg.Histogram.GetSampleCount(), nil
		}
	}
	return 0, nil
}
