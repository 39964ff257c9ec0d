package dag

import (
	"context"
	"testing"
)

func noop(context.Context, Inputs) (Outputs, error) { return nil, nil }

func job(name string, needs ...string) Job {
	return Job{Name: name, Needs: needs, Run: noop}
}

func mustGraph(t *testing.T, jobs ...Job) *JobGraph {
	t.Helper()
	g, err := NewJobGraph(jobs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return g
}

func pendingState(g *JobGraph) ExecutionState {
	st := ExecutionState{}
	for _, n := range g.Nodes() {
		st[n.Name] = JobPending
	}
	return st
}
