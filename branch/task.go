package branch

import (
	"runtime/debug"
)

// Task is the type-erased unit of work. A Go closure already gives us
// move-semantics-plus-inline-buffer behavior for free: captured state is
// heap-allocated by escape analysis exactly when it would overflow a
// hand-rolled inline buffer, and a func value is a single-shot invocable
// with a fixed signature. See DESIGN.md for why no custom erased-callable
// type is built here.
type Task func()

// TaskClass selects queue placement and grouping semantics at submission
// time: NORMAL enqueues at the back, URGENT at the front, SEQUENCE
// packages several Tasks to run back-to-back on one worker.
type TaskClass int

const (
	Normal TaskClass = iota
	Urgent
	Sequence
)

func (c TaskClass) String() string {
	switch c {
	case Normal:
		return "normal"
	case Urgent:
		return "urgent"
	case Sequence:
		return "sequence"
	default:
		return "unknown"
	}
}

// item is what actually travels through the TaskQueue: either a single
// Task or an ordered group of Tasks (a SEQUENCE) that must run without
// interleaving any other item.
type item struct {
	class TaskClass
	tasks []Task
}

func singleItem(class TaskClass, t Task) item {
	return item{class: class, tasks: []Task{t}}
}

func sequenceItem(tasks []Task) item {
	return item{class: Sequence, tasks: tasks}
}

// PanicHandler is invoked from the worker mission loop when a void-submitted
// callable (or a SEQUENCE member) panics. Result-bearing submissions made
// through SubmitFunc recover their own panics and transport them to the
// Future, so they never reach the PanicHandler.
type PanicHandler interface {
	HandlePanic(workerID int, class TaskClass, panicInfo any, stackTrace []byte)
}

// PanicHandlerFunc adapts a function to PanicHandler.
type PanicHandlerFunc func(workerID int, class TaskClass, panicInfo any, stackTrace []byte)

func (f PanicHandlerFunc) HandlePanic(workerID int, class TaskClass, panicInfo any, stackTrace []byte) {
	f(workerID, class, panicInfo, stackTrace)
}

// loggingPanicHandler is the default PanicHandler: it reports the panic to
// a Logger instead of letting it reach the caller.
type loggingPanicHandler struct {
	name string
	log  Logger
}

func (h loggingPanicHandler) HandlePanic(workerID int, class TaskClass, panicInfo any, stackTrace []byte) {
	h.log.Error("task panic recovered",
		F("branch", h.name),
		F("worker", workerID),
		F("class", class.String()),
		F("panic", panicInfo),
		F("stack", string(stackTrace)),
	)
}

// runProtected executes t, recovering any panic and reporting it through h
// (never nil - callers install a default). It never lets a user failure
// propagate past the worker.
func runProtected(workerID int, class TaskClass, t Task, h PanicHandler) (panicked bool, cause any) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			cause = r
			h.HandlePanic(workerID, class, r, debug.Stack())
		}
	}()
	t()
	return false, nil
}

// runSequenceProtected executes every task in the group in order on the
// calling goroutine, stopping (but not retrying) at the first panic so
// that one bad member doesn't silently skip its siblings without a trace.
func runSequenceProtected(workerID int, tasks []Task, h PanicHandler) (panicked bool, cause any) {
	for _, t := range tasks {
		if p, c := runProtected(workerID, Sequence, t, h); p {
			return p, c
		}
	}
	return false, nil
}
