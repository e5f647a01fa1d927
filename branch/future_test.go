package branch

import (
	"context"
	"errors"
	"testing"
	"time"
)

// TestSubmitFunc_ResolvesValue verifies a successful callable's return value
// reaches the Future.
func TestSubmitFunc_ResolvesValue(t *testing.T) {
	b := New(2, LowLatency)
	defer b.Close()

	fut, err := SubmitFunc(b, Normal, func() (int, error) { return 42, nil })
	if err != nil {
		t.Fatalf("SubmitFunc() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	val, err := fut.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if val != 42 {
		t.Fatalf("val = %d, want 42", val)
	}
}

// TestSubmitFunc_ResolvesError verifies a callable's returned error reaches
// the Future without being mistaken for a panic.
func TestSubmitFunc_ResolvesError(t *testing.T) {
	b := New(2, LowLatency)
	defer b.Close()

	sentinel := errors.New("boom")
	fut, err := SubmitFunc(b, Normal, func() (int, error) { return 0, sentinel })
	if err != nil {
		t.Fatalf("SubmitFunc() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = fut.Wait(ctx)
	if !errors.Is(err, sentinel) {
		t.Fatalf("Wait() error = %v, want %v", err, sentinel)
	}
}

// TestSubmitFunc_PanicTransportedAsTaskFailedError verifies the
// result-submit path wraps a recovered panic instead of suppressing it.
func TestSubmitFunc_PanicTransportedAsTaskFailedError(t *testing.T) {
	b := New(2, LowLatency)
	defer b.Close()

	fut, err := SubmitFunc(b, Normal, func() (int, error) { panic("nope") })
	if err != nil {
		t.Fatalf("SubmitFunc() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = fut.Wait(ctx)

	var tfe *TaskFailedError
	if !errors.As(err, &tfe) {
		t.Fatalf("Wait() error = %v, want *TaskFailedError", err)
	}
	if tfe.Cause != "nope" {
		t.Fatalf("Cause = %v, want nope", tfe.Cause)
	}
}

// TestFuture_WaitContextCanceled verifies Wait returns the context's error
// when the context is done before the task completes.
func TestFuture_WaitContextCanceled(t *testing.T) {
	fut := newFuture[int]()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fut.Wait(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait() error = %v, want context.Canceled", err)
	}
}

// TestFuture_Done verifies Done() reflects completion without blocking.
func TestFuture_Done(t *testing.T) {
	fut := newFuture[int]()
	if fut.Done() {
		t.Fatal("Done() = true before resolve, want false")
	}
	fut.resolve(1, nil)
	if !fut.Done() {
		t.Fatal("Done() = false after resolve, want true")
	}
}
