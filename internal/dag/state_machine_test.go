package dag

import (
	"reflect"
	"testing"
)

func TestStateMachine_Transitions_ValidAndInvalid(t *testing.T) {
	cases := []struct {
		from, to JobState
		ok       bool
	}{
		{JobPending, JobRunning, true},
		{JobPending, JobSkipped, true},
		{JobRunning, JobSucceeded, true},
		{JobRunning, JobFailed, true},
		{JobPending, JobSucceeded, false},
		{JobRunning, JobSkipped, false},
		{JobSucceeded, JobRunning, false},
		{JobSkipped, JobPending, false},
		{JobFailed, JobSucceeded, false},
	}
	for _, tc := range cases {
		st := ExecutionState{"a": tc.from}
		err := Transition(st, "a", tc.from, tc.to)
		if tc.ok && err != nil {
			t.Fatalf("%s -> %s: unexpected error %v", tc.from, tc.to, err)
		}
		if !tc.ok {
			if err == nil {
				t.Fatalf("%s -> %s: expected error", tc.from, tc.to)
			}
			if st["a"] != tc.from {
				t.Fatalf("state mutated on rejected transition")
			}
		}
	}

	if err := Transition(ExecutionState{"a": JobRunning}, "a", JobPending, JobRunning); err == nil {
		t.Fatalf("expected stale from-state to be rejected")
	}
	if err := Transition(ExecutionState{}, "a", JobPending, JobRunning); err == nil {
		t.Fatalf("expected unknown job to be rejected")
	}
}

func TestFailurePropagation_CascadeFailure_MarksDownstreamSkipped(t *testing.T) {
	g := mustGraph(t, job("A"), job("B", "A"), job("C", "B"), job("D"))
	st := pendingState(g)
	st["A"] = JobRunning

	skipped, err := FailAndPropagate(g, st, "A")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(skipped, []string{"B", "C"}) {
		t.Fatalf("unexpected skipped set: %v", skipped)
	}
	want := ExecutionState{"A": JobFailed, "B": JobSkipped, "C": JobSkipped, "D": JobPending}
	if !reflect.DeepEqual(st, want) {
		t.Fatalf("unexpected state: %v", st)
	}
}

func TestFailurePropagation_Diamond_DownstreamSkippedNotFailed(t *testing.T) {
	g := mustGraph(t, job("A"), job("B", "A"), job("C", "A"), job("D", "B", "C"))
	st := pendingState(g)
	st["A"] = JobSucceeded
	st["B"] = JobRunning
	st["C"] = JobSucceeded

	if _, err := FailAndPropagate(g, st, "B"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st["D"] != JobSkipped {
		t.Fatalf("expected D skipped, got %s", st["D"])
	}
	if st["C"] != JobSucceeded {
		t.Fatalf("sibling must keep its state, got %s", st["C"])
	}
}

func TestFailurePropagation_DetectsRunningDownstreamInvariantViolation(t *testing.T) {
	g := mustGraph(t, job("A"), job("B", "A"))
	st := ExecutionState{"A": JobRunning, "B": JobRunning}
	if _, err := FailAndPropagate(g, st, "A"); err == nil {
		t.Fatalf("expected invariant violation")
	}
}

func TestSkipPropagation_SkipsDependentsOnly(t *testing.T) {
	g := mustGraph(t, job("A"), job("B", "A"), job("C"))
	st := pendingState(g)

	skipped, err := SkipAndPropagate(g, st, "A")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(skipped, []string{"B"}) {
		t.Fatalf("unexpected skipped set: %v", skipped)
	}
	if st["A"] != JobSkipped || st["C"] != JobPending {
		t.Fatalf("unexpected state: %v", st)
	}
}
