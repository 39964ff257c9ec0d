// Package dag defines the job graph engine used to run one release.
//
// It is split into:
//   - Immutable graph definition (JobGraph): jobs + dependency structure + stable GraphHash
//   - Mutable execution state (ExecutionState): runtime statuses, owned by the Executor
//
// Jobs are plain data: a name, the names of the jobs it needs, an optional
// guard and a work function. Outputs are namespaced by the producing job's
// name and are visible to every direct and transitive dependent.
package dag
