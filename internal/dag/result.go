package dag

import "time"

// JobOutcome is the terminal record of one job.
type JobOutcome struct {
	State JobState

	// Reason and Cause are set when State is JobSkipped. Cause names the
	// upstream job whose failure or skip propagated here.
	Reason SkipReason
	Cause  string

	// Err is the error returned by the job's work function when State is JobFailed.
	Err error

	Outputs Outputs

	Started  time.Time
	Finished time.Time
}

// Duration returns how long the job ran. Zero for jobs that never started.
func (o JobOutcome) Duration() time.Duration {
	if o.Started.IsZero() || o.Finished.IsZero() {
		return 0
	}
	return o.Finished.Sub(o.Started)
}

// RunResult is the summary of one graph execution.
type RunResult struct {
	GraphHash GraphHash

	// FinalState is the terminal state of each job by name.
	FinalState ExecutionState

	// Outcomes holds the per-job terminal record by name.
	Outcomes map[string]JobOutcome

	// ExecutionOrder is the ordered list of jobs that were started (transitioned to Running).
	ExecutionOrder []string
}

// Failed returns the names of failed jobs in ExecutionOrder order.
func (r *RunResult) Failed() []string {
	var out []string
	for _, name := range r.ExecutionOrder {
		if r.FinalState[name] == JobFailed {
			out = append(out, name)
		}
	}
	return out
}

// Count returns how many jobs ended in st.
func (r *RunResult) Count(st JobState) int {
	n := 0
	for _, s := range r.FinalState {
		if s == st {
			n++
		}
	}
	return n
}
