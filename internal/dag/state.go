package dag

// JobState is the runtime execution state of a job.
type JobState string

const (
	JobPending   JobState = "Pending"
	JobRunning   JobState = "Running"
	JobSucceeded JobState = "Succeeded"
	JobFailed    JobState = "Failed"
	JobSkipped   JobState = "Skipped"
)

// SkipReason records why a job ended in JobSkipped.
type SkipReason string

const (
	// SkipGuard: the job's own guard, or the run-level guard, returned false.
	SkipGuard SkipReason = "guard"
	// SkipUpstreamFailed: a job this one transitively needs failed.
	SkipUpstreamFailed SkipReason = "upstream-failed"
	// SkipUpstreamSkipped: a job this one transitively needs was skipped.
	SkipUpstreamSkipped SkipReason = "upstream-skipped"
	// SkipCancelled: the run was cancelled before the job started.
	SkipCancelled SkipReason = "cancelled"
)

// ExecutionState maps job name to its current JobState.
//
// The scheduler reads it as a plain map and never mutates it.
type ExecutionState map[string]JobState

// Clone returns an independent copy of s.
func (s ExecutionState) Clone() ExecutionState {
	cp := make(ExecutionState, len(s))
	for k, v := range s {
		cp[k] = v
	}
	return cp
}
