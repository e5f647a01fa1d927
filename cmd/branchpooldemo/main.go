// Command branchpooldemo wires a Workspace of two WorkBranches behind a
// shared Supervisor and a Prometheus /metrics endpoint, and drives it with
// a burst of submissions so the scaling behavior is visible on the
// exported gauges.
package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/branchpool/branchpool/branch"
	obs "github.com/branchpool/branchpool/observability/prometheus"
	"github.com/branchpool/branchpool/supervisor"
	"github.com/branchpool/branchpool/workspace"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	zapLogger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer zapLogger.Sync()
	logger := branch.NewZapLogger(zapLogger)

	reg := prom.NewRegistry()
	exporter, err := obs.NewMetricsExporter("branchpool", reg, obs.ExporterOptions{})
	if err != nil {
		panic(err)
	}
	poller, err := obs.NewSnapshotPoller(reg, 50*time.Millisecond)
	if err != nil {
		panic(err)
	}

	cpuBound := branch.New(2, branch.Blocking, branch.WithName("cpu-bound"), branch.WithLogger(logger), branch.WithMetrics(exporter))
	ioBound := branch.New(2, branch.Blocking, branch.WithName("io-bound"), branch.WithLogger(logger), branch.WithMetrics(exporter))
	defer cpuBound.Close()
	defer ioBound.Close()
	poller.AddBranch("cpu-bound", cpuBound)
	poller.AddBranch("io-bound", ioBound)

	sup := supervisor.New(2, 16, supervisor.WithTick(50*time.Millisecond), supervisor.WithLogger(logger))
	defer sup.Close()
	sup.Attach(cpuBound)
	sup.Attach(ioBound)

	ws := workspace.New()
	cpuHandle := ws.AttachBranch(cpuBound)
	ioHandle := ws.AttachBranch(ioBound)
	defer ws.DetachBranch(cpuHandle)
	defer ws.DetachBranch(ioHandle)

	pollCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(pollCtx)
	defer poller.Stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: ":2112", Handler: mux}
	go func() {
		_ = server.ListenAndServe()
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}()

	for i := 0; i < 500; i++ {
		i := i
		_ = ws.Submit(branch.Normal, func() {
			time.Sleep(2 * time.Millisecond)
			_ = i
		})
	}

	cpuBound.WaitTasks(10 * time.Second)
	ioBound.WaitTasks(10 * time.Second)

	fmt.Println("Prometheus endpoint is up at http://127.0.0.1:2112/metrics")
	fmt.Println("Try: curl -s http://127.0.0.1:2112/metrics | grep '^branchpool_'")

	time.Sleep(2 * time.Second)
}
