package workspace

import "errors"

// ErrStaleHandle is returned when a handle is used after its object has
// been detached: dereferencing a detached handle fails cleanly instead of
// producing undefined behavior.
var ErrStaleHandle = errors.New("workspace: stale handle")

// ErrNoBranches is returned by Submit when the workspace has no attached
// branches to route work to.
var ErrNoBranches = errors.New("workspace: no branches attached")

// BranchHandle is a weak, non-owning (generation, index) reference to a
// branch owned by a Workspace.
type BranchHandle struct {
	index int
	gen   int
}

// SupervisorHandle is a weak, non-owning (generation, index) reference to
// a supervisor owned by a Workspace.
type SupervisorHandle struct {
	index int
	gen   int
}
