package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/branchpool/branchpool/branch"
	prom "github.com/prometheus/client_golang/prometheus"
)

// BranchSnapshotProvider provides a current branch.Stats snapshot. Satisfied
// by *branch.WorkBranch.
type BranchSnapshotProvider interface {
	Stats() branch.Stats
}

// SnapshotPoller periodically exports branch Stats() snapshots into
// Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	branchesMu sync.RWMutex
	branches   map[string]BranchSnapshotProvider

	branchWorkers *prom.GaugeVec
	branchQueued  *prom.GaugeVec
	branchWaiting *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	branchWorkers := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "branchpool",
		Name:      "branch_workers",
		Help:      "Current worker count, snapshot.",
	}, []string{"branch"})
	branchQueued := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "branchpool",
		Name:      "branch_queued",
		Help:      "Current queued task count, snapshot.",
	}, []string{"branch"})
	branchWaiting := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "branchpool",
		Name:      "branch_waiting_workers",
		Help:      "1 while a wait_tasks barrier is in progress on the branch, else 0, snapshot.",
	}, []string{"branch"})

	var err error
	if branchWorkers, err = registerCollector(reg, branchWorkers); err != nil {
		return nil, err
	}
	if branchQueued, err = registerCollector(reg, branchQueued); err != nil {
		return nil, err
	}
	if branchWaiting, err = registerCollector(reg, branchWaiting); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:      interval,
		branches:      make(map[string]BranchSnapshotProvider),
		branchWorkers: branchWorkers,
		branchQueued:  branchQueued,
		branchWaiting: branchWaiting,
	}, nil
}

// AddBranch adds or replaces a branch snapshot provider by name.
func (p *SnapshotPoller) AddBranch(name string, provider BranchSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "branch")
	p.branchesMu.Lock()
	p.branches[name] = provider
	p.branchesMu.Unlock()
}

// RemoveBranch stops polling the branch registered under name.
func (p *SnapshotPoller) RemoveBranch(name string) {
	if p == nil {
		return
	}
	p.branchesMu.Lock()
	delete(p.branches, normalizeLabel(name, "branch"))
	p.branchesMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.branchesMu.RLock()
	defer p.branchesMu.RUnlock()
	for name, provider := range p.branches {
		stats := provider.Stats()
		p.branchWorkers.WithLabelValues(name).Set(float64(stats.Workers))
		p.branchQueued.WithLabelValues(name).Set(float64(stats.Queued))
		if stats.Waiting {
			p.branchWaiting.WithLabelValues(name).Set(1)
		} else {
			p.branchWaiting.WithLabelValues(name).Set(0)
		}
	}
}
