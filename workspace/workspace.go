// Package workspace composes multiple independent WorkBranches and
// load-balances submissions across them using a rotating cursor with a
// local 2-choice comparison. It also owns any Supervisors attached to it.
//
// Workspace is single-threaded: its mutating operations (Attach, Detach,
// Submit, ForEach) are not internally synchronized. Callers that need
// concurrent access must serialize externally.
package workspace

import (
	"github.com/branchpool/branchpool/branch"
	"github.com/branchpool/branchpool/supervisor"
)

type branchSlot struct {
	gen   int
	alive bool
	b     *branch.WorkBranch
}

type supervisorSlot struct {
	gen   int
	alive bool
	s     *supervisor.Supervisor
}

// Workspace owns a list of branches (with a rotating cursor) and a slab of
// supervisors. See the package doc for its concurrency contract.
type Workspace struct {
	branches []branchSlot
	live     []int // indices into branches, in attachment order; the load-balancing list
	cursor   int   // index into live; -1 iff live is empty

	supervisors []supervisorSlot
}

// New returns an empty Workspace.
func New() *Workspace {
	return &Workspace{cursor: -1}
}

// AttachBranch takes ownership of b and returns a handle to it. The
// cursor resets to the head of the list on every branch attach.
func (w *Workspace) AttachBranch(b *branch.WorkBranch) BranchHandle {
	idx := w.allocBranchSlot(b)
	w.live = append(w.live, idx)
	w.cursor = 0
	return BranchHandle{index: idx, gen: w.branches[idx].gen}
}

func (w *Workspace) allocBranchSlot(b *branch.WorkBranch) int {
	for i := range w.branches {
		if !w.branches[i].alive {
			w.branches[i].alive = true
			w.branches[i].b = b
			return i
		}
	}
	w.branches = append(w.branches, branchSlot{alive: true, b: b})
	return len(w.branches) - 1
}

// DetachBranch releases ownership of the branch identified by h and
// returns it to the caller. Returns ErrStaleHandle if h no longer refers
// to a live branch.
func (w *Workspace) DetachBranch(h BranchHandle) (*branch.WorkBranch, error) {
	slot, err := w.checkBranch(h)
	if err != nil {
		return nil, err
	}
	b := slot.b

	pos := -1
	for i, idx := range w.live {
		if idx == h.index {
			pos = i
			break
		}
	}
	w.live = append(w.live[:pos], w.live[pos+1:]...)

	w.branches[h.index] = branchSlot{gen: slot.gen + 1}

	switch {
	case len(w.live) == 0:
		w.cursor = -1
	case pos < w.cursor:
		w.cursor--
		fallthrough
	default:
		if w.cursor >= len(w.live) {
			w.cursor = 0
		}
	}

	return b, nil
}

// GetBranch dereferences h in O(1).
func (w *Workspace) GetBranch(h BranchHandle) (*branch.WorkBranch, error) {
	slot, err := w.checkBranch(h)
	if err != nil {
		return nil, err
	}
	return slot.b, nil
}

func (w *Workspace) checkBranch(h BranchHandle) (branchSlot, error) {
	if h.index < 0 || h.index >= len(w.branches) {
		return branchSlot{}, ErrStaleHandle
	}
	slot := w.branches[h.index]
	if !slot.alive || slot.gen != h.gen {
		return branchSlot{}, ErrStaleHandle
	}
	return slot, nil
}

// ForEachBranch visits each owned branch, in attachment order.
func (w *Workspace) ForEachBranch(fn func(*branch.WorkBranch)) {
	for _, idx := range w.live {
		fn(w.branches[idx].b)
	}
}

// AttachSupervisor takes ownership of s and returns a handle to it.
func (w *Workspace) AttachSupervisor(s *supervisor.Supervisor) SupervisorHandle {
	for i := range w.supervisors {
		if !w.supervisors[i].alive {
			w.supervisors[i].alive = true
			w.supervisors[i].s = s
			return SupervisorHandle{index: i, gen: w.supervisors[i].gen}
		}
	}
	w.supervisors = append(w.supervisors, supervisorSlot{alive: true, s: s})
	return SupervisorHandle{index: len(w.supervisors) - 1, gen: 0}
}

// DetachSupervisor releases ownership of the supervisor identified by h.
func (w *Workspace) DetachSupervisor(h SupervisorHandle) (*supervisor.Supervisor, error) {
	if h.index < 0 || h.index >= len(w.supervisors) {
		return nil, ErrStaleHandle
	}
	slot := w.supervisors[h.index]
	if !slot.alive || slot.gen != h.gen {
		return nil, ErrStaleHandle
	}
	w.supervisors[h.index] = supervisorSlot{gen: slot.gen + 1}
	return slot.s, nil
}

// GetSupervisor dereferences h in O(1).
func (w *Workspace) GetSupervisor(h SupervisorHandle) (*supervisor.Supervisor, error) {
	if h.index < 0 || h.index >= len(w.supervisors) {
		return nil, ErrStaleHandle
	}
	slot := w.supervisors[h.index]
	if !slot.alive || slot.gen != h.gen {
		return nil, ErrStaleHandle
	}
	return slot.s, nil
}

// ForEachSupervisor visits each owned supervisor.
func (w *Workspace) ForEachSupervisor(fn func(*supervisor.Supervisor)) {
	for i := range w.supervisors {
		if w.supervisors[i].alive {
			fn(w.supervisors[i].s)
		}
	}
}

// pick implements the rotating-cursor 2-choice policy: let A be the
// branch at the cursor, advance the cursor, let B be the new position,
// and route to whichever of A/B has fewer queued tasks (ties favor A).
func (w *Workspace) pick() (*branch.WorkBranch, error) {
	if len(w.live) == 0 {
		return nil, ErrNoBranches
	}
	a := w.branches[w.live[w.cursor]].b
	if len(w.live) == 1 {
		return a, nil
	}
	w.cursor = (w.cursor + 1) % len(w.live)
	b := w.branches[w.live[w.cursor]].b
	if b.NumTasks() < a.NumTasks() {
		return b, nil
	}
	return a, nil
}

// Submit routes fn to a branch chosen by the 2-choice policy and submits
// it under class.
func (w *Workspace) Submit(class branch.TaskClass, fn branch.Task) error {
	b, err := w.pick()
	if err != nil {
		return err
	}
	return b.Submit(class, fn)
}

// SubmitSequence routes a SEQUENCE group to a branch chosen by the
// 2-choice policy.
func (w *Workspace) SubmitSequence(fns ...branch.Task) error {
	b, err := w.pick()
	if err != nil {
		return err
	}
	return b.SubmitSequence(fns...)
}

// SubmitFunc routes a result-bearing submission to a branch chosen by the
// 2-choice policy and returns a Future for its result.
func SubmitFunc[T any](w *Workspace, class branch.TaskClass, fn func() (T, error)) (*branch.Future[T], error) {
	b, err := w.pick()
	if err != nil {
		return nil, err
	}
	return branch.SubmitFunc(b, class, fn)
}
