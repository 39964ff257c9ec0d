package dag

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"
)

type edgeIndex struct {
	from int
	to   int
}

// JobGraph is an immutable, validated DAG of jobs.
//
// It is safe for concurrent read access.
type JobGraph struct {
	nodesByName map[string]*JobNode
	nodes       []*JobNode // canonical order (by name)

	edges []edgeIndex // sorted

	outgoing [][]int // by canonical index, sorted ascending
	incoming [][]int // by canonical index, sorted ascending
	indeg    []int   // by canonical index
	depth    []int   // by canonical index (topological depth)

	hash GraphHash
}

// NewJobGraph builds and validates a JobGraph.
//
// Validation runs immediately and rejects:
//   - an empty job list, empty or duplicate job names
//   - jobs without a work function
//   - needs referencing unknown jobs
//   - duplicate needs and self-dependencies
//   - any cycle (direct or indirect)
func NewJobGraph(jobs []Job) (*JobGraph, error) {
	if len(jobs) == 0 {
		return nil, invalidf("no jobs")
	}

	nodesByName := make(map[string]*JobNode, len(jobs))
	nodes := make([]*JobNode, 0, len(jobs))

	for _, j := range jobs {
		if j.Name == "" {
			return nil, invalidf("job name is required")
		}
		if _, exists := nodesByName[j.Name]; exists {
			return nil, invalidf("duplicate job name: %q", j.Name)
		}
		if j.Run == nil {
			return nil, invalidf("job %q has no run function", j.Name)
		}
		node := &JobNode{Name: j.Name, Job: j}
		nodesByName[j.Name] = node
		nodes = append(nodes, node)
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Name < nodes[j].Name })
	for i, n := range nodes {
		n.canonicalIndex = i
	}

	// Canonicalize edges: map needs to indices, reject invalid, sort.
	var mapped []edgeIndex
	for _, n := range nodes {
		seen := make(map[string]struct{}, len(n.Job.Needs))
		for _, need := range n.Job.Needs {
			dep, ok := nodesByName[need]
			if !ok {
				return nil, invalidf("job %q needs unknown job %q", n.Name, need)
			}
			if dep.Name == n.Name {
				return nil, invalidf("job %q needs itself", n.Name)
			}
			if _, dup := seen[need]; dup {
				return nil, invalidf("job %q lists %q twice in needs", n.Name, need)
			}
			seen[need] = struct{}{}
			mapped = append(mapped, edgeIndex{from: dep.canonicalIndex, to: n.canonicalIndex})
		}
	}

	sort.Slice(mapped, func(i, j int) bool {
		a, b := mapped[i], mapped[j]
		if a.from != b.from {
			return a.from < b.from
		}
		return a.to < b.to
	})

	outgoing := make([][]int, len(nodes))
	incoming := make([][]int, len(nodes))
	indeg := make([]int, len(nodes))
	for _, e := range mapped {
		outgoing[e.from] = append(outgoing[e.from], e.to)
		incoming[e.to] = append(incoming[e.to], e.from)
		indeg[e.to]++
	}
	for i := range outgoing {
		sort.Ints(outgoing[i])
	}
	for i := range incoming {
		sort.Ints(incoming[i])
	}

	g := &JobGraph{
		nodesByName: nodesByName,
		nodes:       nodes,
		edges:       mapped,
		outgoing:    outgoing,
		incoming:    incoming,
		indeg:       indeg,
	}

	if err := g.validateAcyclic(); err != nil {
		return nil, err
	}

	g.depth = g.computeDepth()
	g.hash = g.computeGraphHash()
	return g, nil
}

// Hash returns the stable identity for this graph.
func (g *JobGraph) Hash() GraphHash { return g.hash }

// Len returns the number of jobs.
func (g *JobGraph) Len() int { return len(g.nodes) }

// Node returns a node by name.
func (g *JobGraph) Node(name string) (*JobNode, bool) {
	n, ok := g.nodesByName[name]
	return n, ok
}

// Nodes returns the nodes in canonical order.
func (g *JobGraph) Nodes() []*JobNode {
	out := make([]*JobNode, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Edges returns the dependency edges as stable (From, To) name pairs in canonical order.
func (g *JobGraph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, Edge{From: g.nodes[e.from].Name, To: g.nodes[e.to].Name})
	}
	return out
}

// Ancestors returns every job name reachable backwards from name, sorted.
func (g *JobGraph) Ancestors(name string) []string {
	n, ok := g.nodesByName[name]
	if !ok {
		return nil
	}
	seen := make([]bool, len(g.nodes))
	stack := append([]int(nil), g.incoming[n.canonicalIndex]...)
	for len(stack) > 0 {
		u := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[u] {
			continue
		}
		seen[u] = true
		stack = append(stack, g.incoming[u]...)
	}
	var out []string
	for i, ok := range seen {
		if ok {
			out = append(out, g.nodes[i].Name)
		}
	}
	return out
}

// Depth returns the topological depth of the given job.
//
// Depth is defined as the length of the longest path from any root to the node.
func (g *JobGraph) Depth(name string) (int, bool) {
	n, ok := g.nodesByName[name]
	if !ok {
		return 0, false
	}
	return g.depth[n.canonicalIndex], true
}

func (g *JobGraph) computeDepth() []int {
	depth := make([]int, len(g.nodes))
	for _, u := range g.topoOrderIndices() {
		maxParent := 0
		for _, p := range g.incoming[u] {
			if cand := depth[p] + 1; cand > maxParent {
				maxParent = cand
			}
		}
		depth[u] = maxParent
	}
	return depth
}

// TopologicalOrder returns a deterministic topological ordering of job names.
//
// Since the graph is validated on construction, this method must not fail.
func (g *JobGraph) TopologicalOrder() []string {
	order := g.topoOrderIndices()
	names := make([]string, 0, len(order))
	for _, idx := range order {
		names = append(names, g.nodes[idx].Name)
	}
	return names
}

func (g *JobGraph) computeGraphHash() GraphHash {
	h := sha256.New()

	var lenBuf [8]byte
	writeField := func(data []byte) {
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(data)))
		h.Write(lenBuf[:])
		h.Write(data)
	}

	writeField(binary.BigEndian.AppendUint32(nil, uint32(len(g.nodes))))
	for _, n := range g.nodes {
		writeField([]byte(n.Name))
	}

	writeField(binary.BigEndian.AppendUint32(nil, uint32(len(g.edges))))
	for _, e := range g.edges {
		writeField(binary.BigEndian.AppendUint32(nil, uint32(e.from)))
		writeField(binary.BigEndian.AppendUint32(nil, uint32(e.to)))
	}

	return GraphHash(hex.EncodeToString(h.Sum(nil)))
}
