package dag

import (
	"sort"
)

// GetReadyJobs returns the deterministically ordered list of job names that
// are eligible to start.
//
// Policy:
//   - A job is ready iff it is Pending and every job it needs is Succeeded.
//   - Guards are not evaluated here; the executor does that once a job is ready.
//   - The returned list is sorted by (topological depth asc, job name asc).
//
// This function is pure: it does not mutate graph or state.
func GetReadyJobs(g *JobGraph, state ExecutionState) []string {
	if g == nil {
		return nil
	}

	ready := make([]string, 0)
	for _, node := range g.nodes {
		if st, ok := state[node.Name]; !ok || st != JobPending {
			continue
		}

		depsOK := true
		for _, parentIdx := range g.incoming[node.canonicalIndex] {
			if !IsSuccessful(state[g.nodes[parentIdx].Name]) {
				depsOK = false
				break
			}
		}
		if depsOK {
			ready = append(ready, node.Name)
		}
	}

	sort.SliceStable(ready, func(i, j int) bool {
		a, b := ready[i], ready[j]
		ad, _ := g.Depth(a)
		bd, _ := g.Depth(b)
		if ad != bd {
			return ad < bd
		}
		return a < b
	})

	return ready
}

// AllTerminal reports whether every job in state is terminal.
func AllTerminal(state ExecutionState) bool {
	for _, st := range state {
		if !IsTerminal(st) {
			return false
		}
	}
	return true
}
