package trace

import (
	"sort"
	"sync"
)

// Sink receives terminal job transitions from the executor.
//
// Record must not panic and has no error path; callers go through
// SafeRecord and may treat any sink as a no-op.
type Sink interface {
	Record(event TraceEvent)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Record(TraceEvent) {}

// SafeRecord records an event. A panicking sink is recovered and the event dropped.
func SafeRecord(s Sink, event TraceEvent) {
	if s == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	s.Record(event)
}

// Recorder is the journal of one release run.
//
// It is bound to the run's graph hash and keeps exactly one terminal event
// per job: the first one recorded. A second event for the same job, or an
// event without a kind or job, is counted as dropped and not forwarded.
// Accepted events are forwarded to the extra sinks given to NewRecorder.
type Recorder struct {
	graphHash string
	forward   []Sink

	mu      sync.Mutex
	byJob   map[string]TraceEvent
	dropped int
}

// NewRecorder returns a Recorder for the run of the graph with graphHash.
func NewRecorder(graphHash string, forward ...Sink) *Recorder {
	return &Recorder{
		graphHash: graphHash,
		forward:   forward,
		byJob:     map[string]TraceEvent{},
	}
}

func (r *Recorder) Record(event TraceEvent) {
	if r == nil {
		return
	}
	r.mu.Lock()
	_, seen := r.byJob[event.JobID]
	accepted := !seen && event.Kind != "" && event.JobID != ""
	if accepted {
		r.byJob[event.JobID] = event
	} else {
		r.dropped++
	}
	r.mu.Unlock()

	if !accepted {
		return
	}
	for _, s := range r.forward {
		SafeRecord(s, event)
	}
}

// Dropped returns how many events were rejected as duplicate or malformed.
func (r *Recorder) Dropped() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Trace returns the run's trace in canonical order. It is independent of
// the recorder.
func (r *Recorder) Trace() ExecutionTrace {
	if r == nil {
		return ExecutionTrace{}
	}
	tr := ExecutionTrace{GraphHash: r.graphHash}
	r.mu.Lock()
	jobs := make([]string, 0, len(r.byJob))
	for job := range r.byJob {
		jobs = append(jobs, job)
	}
	sort.Strings(jobs)
	tr.Events = make([]TraceEvent, 0, len(jobs))
	for _, job := range jobs {
		tr.Events = append(tr.Events, r.byJob[job])
	}
	r.mu.Unlock()
	tr.Canonicalize()
	return tr
}
