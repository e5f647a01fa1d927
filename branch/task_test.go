package branch

import "testing"

// TestRunProtected_RecoversPanic verifies a panicking task never propagates
// past runProtected, and the installed handler observes it.
func TestRunProtected_RecoversPanic(t *testing.T) {
	var gotCause any
	h := PanicHandlerFunc(func(workerID int, class TaskClass, panicInfo any, stack []byte) {
		gotCause = panicInfo
	})

	panicked, cause := runProtected(1, Normal, func() { panic("boom") }, h)
	if !panicked {
		t.Fatal("runProtected() panicked = false, want true")
	}
	if cause != "boom" {
		t.Fatalf("cause = %v, want boom", cause)
	}
	if gotCause != "boom" {
		t.Fatalf("handler saw %v, want boom", gotCause)
	}
}

// TestRunProtected_NoPanic verifies the non-panicking path reports no panic.
func TestRunProtected_NoPanic(t *testing.T) {
	ran := false
	panicked, _ := runProtected(1, Normal, func() { ran = true }, loggingPanicHandler{log: NoOpLogger{}})
	if panicked {
		t.Fatal("runProtected() panicked = true, want false")
	}
	if !ran {
		t.Fatal("task did not run")
	}
}

// TestRunSequenceProtected_StopsAtFirstPanic verifies a SEQUENCE group halts
// at the first panicking member and does not run the remainder.
func TestRunSequenceProtected_StopsAtFirstPanic(t *testing.T) {
	var order []int
	tasks := []Task{
		func() { order = append(order, 1) },
		func() { order = append(order, 2); panic("bad") },
		func() { order = append(order, 3) },
	}

	panicked, cause := runSequenceProtected(1, tasks, loggingPanicHandler{log: NoOpLogger{}})
	if !panicked {
		t.Fatal("runSequenceProtected() panicked = false, want true")
	}
	if cause != "bad" {
		t.Fatalf("cause = %v, want bad", cause)
	}
	if len(order) != 2 {
		t.Fatalf("order = %v, want two entries (third member should not run)", order)
	}
}

// TestRunSequenceProtected_RunsInOrder verifies every member of a
// non-panicking SEQUENCE group runs, in submission order.
func TestRunSequenceProtected_RunsInOrder(t *testing.T) {
	var order []int
	tasks := []Task{
		func() { order = append(order, 1) },
		func() { order = append(order, 2) },
		func() { order = append(order, 3) },
	}

	panicked, _ := runSequenceProtected(1, tasks, loggingPanicHandler{log: NoOpLogger{}})
	if panicked {
		t.Fatal("runSequenceProtected() panicked = true, want false")
	}
	want := []int{1, 2, 3}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestTaskClass_String(t *testing.T) {
	cases := map[TaskClass]string{
		Normal:      "normal",
		Urgent:      "urgent",
		Sequence:    "sequence",
		TaskClass(99): "unknown",
	}
	for class, want := range cases {
		if got := class.String(); got != want {
			t.Errorf("TaskClass(%d).String() = %q, want %q", class, got, want)
		}
	}
}
