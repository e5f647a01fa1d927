package branch

import (
	"errors"
	"fmt"
)

// ErrEmptyPool is returned by DelWorker when the branch has no workers to retire.
var ErrEmptyPool = errors.New("branch: no workers to retire")

// ErrBadInvocation is returned by Submit and SubmitSequence when handed a
// nil Task, an empty Sequence, or a Sequence with a nil member.
var ErrBadInvocation = errors.New("branch: invocation of empty task")

// ErrClosed is returned by Submit-family methods once the branch has been shut down.
var ErrClosed = errors.New("branch: submit after shutdown")

// TaskFailedError wraps a panic recovered from a user callable. It is only
// ever surfaced through a Future; the void-submit path logs and suppresses it.
type TaskFailedError struct {
	Cause any
}

func (e *TaskFailedError) Error() string {
	return "branch: task failed: " + formatCause(e.Cause)
}

func (e *TaskFailedError) Unwrap() error {
	if err, ok := e.Cause.(error); ok {
		return err
	}
	return nil
}

func formatCause(cause any) string {
	if err, ok := cause.(error); ok {
		return err.Error()
	}
	if s, ok := cause.(string); ok {
		return s
	}
	return fmt.Sprint(cause)
}
