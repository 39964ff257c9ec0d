package dag

import "context"

// GraphHash is the deterministic identity of a JobGraph.
//
// It is computed from job names and dependency structure only and is stable
// across different declaration orders of jobs and needs.
type GraphHash string

// String returns the string representation of the GraphHash.
func (h GraphHash) String() string { return string(h) }

// Edge represents a dependency relation: To depends on From.
//
// A directed edge From -> To means To can only run after From succeeds.
type Edge struct {
	From string
	To   string
}

// Outputs is the write-once key/value result of a single job.
type Outputs map[string]string

// Clone returns an independent copy of o.
func (o Outputs) Clone() Outputs {
	if o == nil {
		return nil
	}
	cp := make(Outputs, len(o))
	for k, v := range o {
		cp[k] = v
	}
	return cp
}

// Guard decides whether a ready job runs. A false result skips the job.
type Guard func(in Inputs) bool

// JobFunc is the work function of a job.
//
// The context passed to a JobFunc is not cancelled when the run is: a job
// that has started is allowed to finish.
type JobFunc func(ctx context.Context, in Inputs) (Outputs, error)

// Job is an immutable job declaration.
type Job struct {
	// Name identifies the job inside a graph and namespaces its outputs.
	Name string

	// Needs lists the jobs that must succeed before this one may run.
	Needs []string

	// If is an optional guard evaluated once the job becomes ready.
	If Guard

	// Run performs the work. A non-nil error fails the job.
	Run JobFunc
}

// JobNode is an immutable node in the JobGraph.
type JobNode struct {
	Name           string
	Job            Job
	canonicalIndex int
}

// Inputs is the read-only view a job has of the run: the run-scoped initial
// values plus the outputs of every upstream job, keyed by job name.
type Inputs struct {
	initial  Outputs
	upstream map[string]Outputs
}

// Initial returns a run-scoped initial value.
func (in Inputs) Initial(key string) (string, bool) {
	v, ok := in.initial[key]
	return v, ok
}

// Output returns the value a named upstream job produced under key.
func (in Inputs) Output(job, key string) (string, bool) {
	out, ok := in.upstream[job]
	if !ok {
		return "", false
	}
	v, ok := out[key]
	return v, ok
}
