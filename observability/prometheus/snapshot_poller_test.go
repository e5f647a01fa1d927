package prometheus

import (
	"context"
	"testing"
	"time"

	"github.com/branchpool/branchpool/branch"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type branchStub struct {
	stats branch.Stats
}

func (s branchStub) Stats() branch.Stats { return s.stats }

func TestSnapshotPoller_CollectsBranchStats(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	poller.AddBranch("branch-a", branchStub{stats: branch.Stats{
		Workers: 8,
		Queued:  4,
		Waiting: true,
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		workers := testutil.ToFloat64(poller.branchWorkers.WithLabelValues("branch-a"))
		queued := testutil.ToFloat64(poller.branchQueued.WithLabelValues("branch-a"))
		return workers == 8 && queued == 4
	})

	if got := testutil.ToFloat64(poller.branchWaiting.WithLabelValues("branch-a")); got != 1 {
		t.Fatalf("branch waiting gauge = %v, want 1", got)
	}
}

func TestSnapshotPoller_RemoveBranch(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	poller.AddBranch("branch-a", branchStub{stats: branch.Stats{Workers: 1}})
	poller.RemoveBranch("branch-a")

	poller.branchesMu.RLock()
	_, ok := poller.branches["branch-a"]
	poller.branchesMu.RUnlock()
	if ok {
		t.Fatal("branch-a should have been removed")
	}
}

func TestSnapshotPoller_StartStop_Idempotent(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller.Start(ctx)
	poller.Start(ctx)
	poller.Stop()
	poller.Stop()
}

func assertEventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
