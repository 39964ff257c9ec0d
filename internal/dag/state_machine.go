package dag

import (
	"container/heap"
	"fmt"
)

// IsTerminal reports whether the state is terminal (finished).
func IsTerminal(s JobState) bool {
	switch s {
	case JobSucceeded, JobFailed, JobSkipped:
		return true
	default:
		return false
	}
}

// IsSuccessful reports whether the state satisfies dependents.
func IsSuccessful(s JobState) bool {
	return s == JobSucceeded
}

// Transition performs an atomic validated transition for a single job.
//
// The caller supplies the expected prior state (from) to make races observable.
// This function mutates the provided state map if and only if the transition is valid.
func Transition(state ExecutionState, jobName string, from, to JobState) error {
	cur, ok := state[jobName]
	if !ok {
		return fmt.Errorf("unknown job in state: %q", jobName)
	}
	if cur != from {
		return fmt.Errorf("invalid transition for %q: expected %s, got %s", jobName, from, cur)
	}
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed transition for %q: %s -> %s", jobName, from, to)
	}
	state[jobName] = to
	return nil
}

func isAllowedTransition(from, to JobState) bool {
	switch from {
	case JobPending:
		return to == JobRunning || to == JobSkipped
	case JobRunning:
		return to == JobSucceeded || to == JobFailed
	default:
		return false
	}
}

// FailAndPropagate transitions jobName from Running to Failed and marks all
// of its Pending transitive dependents Skipped.
//
// It returns the names of the jobs it skipped, in canonical order.
//
// If a downstream job is already Running this is an invariant violation: a
// job can only start once everything it needs has succeeded.
func FailAndPropagate(g *JobGraph, state ExecutionState, jobName string) ([]string, error) {
	cur, ok := state[jobName]
	if !ok {
		return nil, fmt.Errorf("unknown job in state: %q", jobName)
	}
	if cur != JobRunning && cur != JobFailed {
		return nil, fmt.Errorf("cannot fail %q from state %s", jobName, cur)
	}
	state[jobName] = JobFailed
	return skipDownstream(g, state, jobName)
}

// SkipAndPropagate transitions jobName from Pending to Skipped and marks all
// of its Pending transitive dependents Skipped.
//
// It returns the names of the dependents it skipped (jobName excluded).
func SkipAndPropagate(g *JobGraph, state ExecutionState, jobName string) ([]string, error) {
	if err := Transition(state, jobName, JobPending, JobSkipped); err != nil {
		return nil, err
	}
	return skipDownstream(g, state, jobName)
}

// skipDownstream walks reachability from jobName in canonical index order.
func skipDownstream(g *JobGraph, state ExecutionState, jobName string) ([]string, error) {
	if g == nil {
		return nil, fmt.Errorf("nil graph")
	}
	node, ok := g.nodesByName[jobName]
	if !ok {
		return nil, fmt.Errorf("unknown job: %q", jobName)
	}

	start := node.canonicalIndex
	visited := make([]bool, len(g.nodes))
	visited[start] = true

	hq := &intMinHeap{}
	heap.Init(hq)
	for _, d := range g.outgoing[start] {
		heap.Push(hq, d)
	}

	var skipped []string
	for hq.Len() > 0 {
		u := heap.Pop(hq).(int)
		if visited[u] {
			continue
		}
		visited[u] = true

		name := g.nodes[u].Name
		st, ok := state[name]
		if !ok {
			return skipped, fmt.Errorf("missing state for %q", name)
		}

		switch st {
		case JobPending:
			state[name] = JobSkipped
			skipped = append(skipped, name)
		case JobRunning:
			return skipped, fmt.Errorf("invariant violation: downstream job %q is Running during propagation", name)
		default:
			// Already terminal. Leave unchanged.
		}

		for _, v := range g.outgoing[u] {
			if !visited[v] {
				heap.Push(hq, v)
			}
		}
	}

	return skipped, nil
}
