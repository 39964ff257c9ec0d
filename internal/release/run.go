package release

import (
	"sync"
	"time"

	"releaseweaver/internal/dag"
	"releaseweaver/internal/trace"
)

// Status is the aggregate outcome of a run.
type Status string

const (
	StatusAllSucceeded       Status = "AllSucceeded"
	StatusPartialFailure     Status = "PartialFailure"
	StatusSkipped            Status = "Skipped"
	StatusConfigurationError Status = "ConfigurationError"
	StatusValidationError    Status = "ValidationError"
)

// JobReport is the terminal status of one job.
type JobReport struct {
	Name     string
	State    dag.JobState
	Reason   dag.SkipReason
	Cause    string
	Err      error
	Outputs  dag.Outputs
	Duration time.Duration
}

// Run is one execution of the release graph for a single trigger. It is
// never persisted.
type Run struct {
	ID      string
	Event   Event
	Release Release
	Status  Status

	// Err is set when the run aborted before scheduling (validation or configuration).
	Err error

	// Jobs holds one report per job in topological order.
	Jobs []JobReport

	GraphHash string
	Trace     trace.ExecutionTrace

	Started  time.Time
	Finished time.Time

	mu           sync.Mutex
	warnings     []string
	softFailures []error
}

// Job returns the report for name.
func (r *Run) Job(name string) (JobReport, bool) {
	for _, j := range r.Jobs {
		if j.Name == name {
			return j, true
		}
	}
	return JobReport{}, false
}

// Warnings returns the non-fatal conditions surfaced during the run.
func (r *Run) Warnings() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.warnings...)
}

// SoftFailures returns failures that did not change the run status, such
// as an announcement that could not be delivered.
func (r *Run) SoftFailures() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.softFailures...)
}

func (r *Run) warn(msg string) {
	r.mu.Lock()
	r.warnings = append(r.warnings, msg)
	r.mu.Unlock()
}

func (r *Run) softFail(err error) {
	r.mu.Lock()
	r.softFailures = append(r.softFailures, err)
	r.mu.Unlock()
}

// Duration is the wall time of the run.
func (r *Run) Duration() time.Duration {
	if r.Started.IsZero() || r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// aggregate derives the run status from the final job states.
//
// Every job succeeded: AllSucceeded. Every job skipped by a guard (or as a
// dependent of one): Skipped. Anything else, a cancelled run included:
// PartialFailure.
func aggregate(res *dag.RunResult) Status {
	if res.Count(dag.JobSucceeded) == len(res.FinalState) {
		return StatusAllSucceeded
	}
	if res.Count(dag.JobSkipped) == len(res.FinalState) {
		for _, oc := range res.Outcomes {
			if oc.Reason == dag.SkipCancelled {
				return StatusPartialFailure
			}
		}
		return StatusSkipped
	}
	return StatusPartialFailure
}
