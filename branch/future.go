package branch

import "context"

// Future is a single-shot handle to the result of a result-bearing
// submission. It resolves to either the callable's return value or a
// TaskFailedError transporting a recovered panic — failures are
// transported, not suppressed, on this path.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) resolve(val T, err error) {
	f.val, f.err = val, err
	close(f.done)
}

// Wait blocks until the task completes or ctx is done, whichever comes
// first.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done reports whether the task has completed without blocking.
func (f *Future[T]) Done() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// SubmitFunc submits fn on b under class and returns a Future resolving to
// fn's result. A panic inside fn is recovered here and transported as a
// TaskFailedError rather than being handled by the branch's void-submit
// PanicHandler.
func SubmitFunc[T any](b *WorkBranch, class TaskClass, fn func() (T, error)) (*Future[T], error) {
	fut := newFuture[T]()
	wrapped := func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				fut.resolve(zero, &TaskFailedError{Cause: r})
			}
		}()
		val, err := fn()
		fut.resolve(val, err)
	}
	if err := b.Submit(class, wrapped); err != nil {
		return nil, err
	}
	return fut, nil
}
