// Package branchpool provides a dynamic, auto-scaling thread-pool library.
//
// Three collaborating pieces do the work:
//
//   - branch.WorkBranch is a pool: a bag of worker goroutines dequeuing
//     from one task queue, with graceful growth, cooperative shrink, a
//     quiesce-and-resume barrier, and destructor-safe shutdown.
//   - supervisor.Supervisor is a background control loop that scales an
//     attached WorkBranch's worker count toward equilibrium within
//     configured bounds.
//   - workspace.Workspace composes several WorkBranches and load-balances
//     submissions across them with a rotating-cursor 2-choice policy.
//
// # Quick start
//
//	b := branch.New(4, branch.Blocking, branch.WithName("workers"))
//	defer b.Close()
//
//	sup := supervisor.New(2, 16, supervisor.WithTick(50*time.Millisecond))
//	defer sup.Close()
//	sup.Attach(b)
//
//	b.Submit(branch.Normal, func() {
//		// unit of work
//	})
//
// Multiple branches can be composed behind a single Workspace:
//
//	ws := workspace.New()
//	h := ws.AttachBranch(b)
//	defer ws.DetachBranch(h)
//	ws.Submit(branch.Normal, func() { /* ... */ })
//
// See the branch, supervisor, and workspace package docs for the full
// contract, and observability/prometheus for wiring metrics into a
// Prometheus registry.
package branchpool
