package dag

import (
	"container/heap"
)

// validateAcyclic proves the graph has no cycles using Kahn's algorithm.
//
// If a cycle exists, one cycle path is extracted deterministically for the error.
func (g *JobGraph) validateAcyclic() error {
	if len(g.topoOrderIndices()) == len(g.nodes) {
		return nil
	}
	return cycleError(g.findCycle())
}

type intMinHeap []int

func (h intMinHeap) Len() int           { return len(h) }
func (h intMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intMinHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topoOrderIndices returns a deterministic topological ordering of node indices.
// The ready queue is a min-heap by canonical index.
func (g *JobGraph) topoOrderIndices() []int {
	indeg := make([]int, len(g.indeg))
	copy(indeg, g.indeg)

	ready := &intMinHeap{}
	heap.Init(ready)
	for i := range indeg {
		if indeg[i] == 0 {
			heap.Push(ready, i)
		}
	}

	out := make([]int, 0, len(indeg))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(int)
		out = append(out, n)
		for _, m := range g.outgoing[n] {
			indeg[m]--
			if indeg[m] == 0 {
				heap.Push(ready, m)
			}
		}
	}
	return out
}

// findCycle runs a DFS in canonical index order and returns the first cycle
// it closes. Each job in the result is needed by the next one and the first
// job is repeated at the end, e.g. [a b c a].
func (g *JobGraph) findCycle() []string {
	const (
		unvisited = iota
		onStack
		done
	)

	color := make([]int, len(g.nodes))
	var path []int

	var dfs func(u int) []int
	dfs = func(u int) []int {
		color[u] = onStack
		path = append(path, u)
		for _, v := range g.outgoing[u] {
			switch color[v] {
			case unvisited:
				if c := dfs(v); c != nil {
					return c
				}
			case onStack:
				for i, p := range path {
					if p == v {
						c := append([]int(nil), path[i:]...)
						return append(c, v)
					}
				}
			}
		}
		path = path[:len(path)-1]
		color[u] = done
		return nil
	}

	for i := range g.nodes {
		if color[i] != unvisited {
			continue
		}
		if c := dfs(i); c != nil {
			out := make([]string, 0, len(c))
			for _, idx := range c {
				out = append(out, g.nodes[idx].Name)
			}
			return out
		}
	}
	return nil
}
