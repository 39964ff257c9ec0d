package dag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"releaseweaver/internal/trace"
)

// ErrAlreadyRun is returned when Run is called twice on the same Executor.
var ErrAlreadyRun = errors.New("executor already ran")

// Option configures an Executor.
type Option func(*Executor)

// WithConcurrency bounds the number of jobs running at once. n <= 0 means unbounded.
func WithConcurrency(n int) Option {
	return func(e *Executor) { e.concurrency = n }
}

// WithRunGuard installs a guard evaluated once before any job is considered.
// A false result skips every job with SkipGuard.
func WithRunGuard(guard func() bool) Option {
	return func(e *Executor) { e.runGuard = guard }
}

// WithInitialOutputs sets the run-scoped values every job can read through Inputs.Initial.
func WithInitialOutputs(initial Outputs) Option {
	return func(e *Executor) { e.initial = initial.Clone() }
}

// WithTraceSink records terminal job transitions to sink.
func WithTraceSink(sink trace.Sink) Option {
	return func(e *Executor) { e.sink = sink }
}

// WithLogger sets the logger used for job lifecycle messages.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Executor runs a JobGraph once.
//
// All state reads and writes happen under mu, on the coordinator goroutine.
// Job work functions run on their own goroutines outside the lock.
type Executor struct {
	Graph *JobGraph

	concurrency int
	runGuard    func() bool
	initial     Outputs
	sink        trace.Sink
	logger      *slog.Logger
	now         func() time.Time

	mu       sync.Mutex
	started  bool
	state    ExecutionState
	outcomes map[string]JobOutcome
	outputs  map[string]Outputs
	order    []string
}

// NewExecutor creates an executor with all jobs initialized to Pending.
func NewExecutor(g *JobGraph, opts ...Option) (*Executor, error) {
	if g == nil {
		return nil, fmt.Errorf("nil graph")
	}

	e := &Executor{
		Graph:    g,
		sink:     trace.NopSink{},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
		state:    make(ExecutionState, len(g.nodes)),
		outcomes: make(map[string]JobOutcome, len(g.nodes)),
		outputs:  make(map[string]Outputs, len(g.nodes)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	for _, n := range g.nodes {
		e.state[n.Name] = JobPending
	}
	return e, nil
}

type jobDone struct {
	name    string
	outputs Outputs
	err     error
}

// Run executes the graph until every job is terminal.
//
// Scheduling:
//   - A job is dispatched as soon as every job it needs has succeeded; jobs
//     with no dependency relation run concurrently and never wait on each other.
//   - A failed job skips its transitive dependents only.
//
// Cancellation: once ctx is done no further job starts. Pending jobs are
// skipped with SkipCancelled and running jobs are awaited; their context is
// detached from ctx so a half-finished publish is never interrupted.
//
// The returned error reports engine invariant violations only; job failures
// are part of the RunResult.
func (e *Executor) Run(ctx context.Context) (*RunResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil, ErrAlreadyRun
	}
	e.started = true

	if e.runGuard != nil && !e.runGuard() {
		for _, n := range e.Graph.nodes {
			e.state[n.Name] = JobSkipped
			e.recordSkip(n.Name, SkipGuard, "")
		}
		e.mu.Unlock()
		e.logger.Info("run guard is false, skipping all jobs", "jobs", len(e.Graph.nodes))
		return e.result(), nil
	}
	e.mu.Unlock()

	jobCtx := context.WithoutCancel(ctx)
	doneCh := make(chan jobDone, len(e.Graph.nodes))
	inFlight := 0
	cancelled := false

	for {
		e.mu.Lock()
		if !cancelled && ctx.Err() != nil {
			cancelled = true
			e.logger.Warn("run cancelled, no further jobs will start", "running", inFlight)
		}
		if cancelled {
			e.skipPendingLocked(SkipCancelled)
		} else if err := e.dispatchLocked(jobCtx, doneCh, &inFlight); err != nil {
			e.mu.Unlock()
			e.drain(doneCh, inFlight)
			return nil, err
		}

		if inFlight == 0 {
			finished := AllTerminal(e.state)
			e.mu.Unlock()
			if !finished {
				return nil, fmt.Errorf("no ready jobs but run not finished")
			}
			return e.result(), nil
		}
		e.mu.Unlock()

		var d jobDone
		if cancelled {
			d = <-doneCh
		} else {
			select {
			case <-ctx.Done():
				continue
			case d = <-doneCh:
			}
		}

		e.mu.Lock()
		inFlight--
		err := e.completeLocked(d)
		e.mu.Unlock()
		if err != nil {
			e.drain(doneCh, inFlight)
			return nil, err
		}
	}
}

// dispatchLocked starts every ready job the concurrency limit allows.
// Guard-skipped jobs can unblock nothing, but they change the ready set, so
// the scan repeats until a pass makes no progress.
func (e *Executor) dispatchLocked(ctx context.Context, doneCh chan<- jobDone, inFlight *int) error {
	for {
		progressed := false
		for _, name := range GetReadyJobs(e.Graph, e.state) {
			if e.concurrency > 0 && *inFlight >= e.concurrency {
				return nil
			}
			node := e.Graph.nodesByName[name]
			in := e.inputsLocked(name)

			if node.Job.If != nil {
				ok, err := evalGuard(node.Job.If, in)
				if err != nil {
					if err := Transition(e.state, name, JobPending, JobRunning); err != nil {
						return err
					}
					e.order = append(e.order, name)
					e.outcomes[name] = JobOutcome{State: JobRunning, Started: e.now()}
					if err := e.failLocked(name, err); err != nil {
						return err
					}
					progressed = true
					continue
				}
				if !ok {
					skipped, err := SkipAndPropagate(e.Graph, e.state, name)
					if err != nil {
						return err
					}
					e.recordSkip(name, SkipGuard, "")
					for _, s := range skipped {
						e.recordSkip(s, SkipUpstreamSkipped, name)
					}
					e.logger.Info("job skipped by guard", "job", name, "dependents", len(skipped))
					progressed = true
					continue
				}
			}

			if err := Transition(e.state, name, JobPending, JobRunning); err != nil {
				return err
			}
			e.order = append(e.order, name)
			e.outcomes[name] = JobOutcome{State: JobRunning, Started: e.now()}
			*inFlight++
			progressed = true
			e.logger.Debug("job started", "job", name)
			go runJob(ctx, node, in, doneCh)
		}
		if !progressed {
			return nil
		}
	}
}

func runJob(ctx context.Context, node *JobNode, in Inputs, doneCh chan<- jobDone) {
	d := jobDone{name: node.Name}
	defer func() {
		if r := recover(); r != nil {
			d.outputs = nil
			d.err = fmt.Errorf("job %q panicked: %v", node.Name, r)
		}
		doneCh <- d
	}()
	d.outputs, d.err = node.Job.Run(ctx, in)
}

func evalGuard(g Guard, in Inputs) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("guard panicked: %v", r)
		}
	}()
	return g(in), nil
}

func (e *Executor) completeLocked(d jobDone) error {
	if cur := e.state[d.name]; cur != JobRunning {
		return fmt.Errorf("completion for %q but state is %s", d.name, cur)
	}
	if d.err != nil {
		return e.failLocked(d.name, d.err)
	}

	if err := Transition(e.state, d.name, JobRunning, JobSucceeded); err != nil {
		return err
	}
	out := d.outputs.Clone()
	if out == nil {
		out = Outputs{}
	}
	e.outputs[d.name] = out

	oc := e.outcomes[d.name]
	oc.State = JobSucceeded
	oc.Outputs = out
	oc.Finished = e.now()
	e.outcomes[d.name] = oc

	trace.SafeRecord(e.sink, trace.TraceEvent{Kind: trace.EventJobSucceeded, JobID: d.name})
	e.logger.Info("job succeeded", "job", d.name, "duration", oc.Duration())
	return nil
}

func (e *Executor) failLocked(name string, cause error) error {
	skipped, err := FailAndPropagate(e.Graph, e.state, name)
	if err != nil {
		return err
	}

	oc := e.outcomes[name]
	oc.State = JobFailed
	oc.Err = cause
	oc.Finished = e.now()
	e.outcomes[name] = oc
	trace.SafeRecord(e.sink, trace.TraceEvent{Kind: trace.EventJobFailed, JobID: name})

	for _, s := range skipped {
		e.recordSkip(s, SkipUpstreamFailed, name)
	}
	e.logger.Error("job failed", "job", name, "error", cause, "skipped_dependents", skipped)
	return nil
}

func (e *Executor) skipPendingLocked(reason SkipReason) {
	for _, n := range e.Graph.nodes {
		if e.state[n.Name] != JobPending {
			continue
		}
		e.state[n.Name] = JobSkipped
		e.recordSkip(n.Name, reason, "")
	}
}

func (e *Executor) recordSkip(name string, reason SkipReason, cause string) {
	e.outcomes[name] = JobOutcome{State: JobSkipped, Reason: reason, Cause: cause}
	trace.SafeRecord(e.sink, trace.TraceEvent{
		Kind:       trace.EventJobSkipped,
		JobID:      name,
		Reason:     string(reason),
		CauseJobID: cause,
	})
}

// inputsLocked exposes the outputs of every succeeded ancestor of name.
func (e *Executor) inputsLocked(name string) Inputs {
	upstream := make(map[string]Outputs)
	for _, anc := range e.Graph.Ancestors(name) {
		if out, ok := e.outputs[anc]; ok {
			upstream[anc] = out.Clone()
		}
	}
	return Inputs{initial: e.initial.Clone(), upstream: upstream}
}

// drain waits for running jobs after an engine error.
func (e *Executor) drain(doneCh <-chan jobDone, inFlight int) {
	for ; inFlight > 0; inFlight-- {
		<-doneCh
	}
}

func (e *Executor) result() *RunResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	outcomes := make(map[string]JobOutcome, len(e.outcomes))
	for k, v := range e.outcomes {
		outcomes[k] = v
	}
	return &RunResult{
		GraphHash:      e.Graph.Hash(),
		FinalState:     e.state.Clone(),
		Outcomes:       outcomes,
		ExecutionOrder: append([]string(nil), e.order...),
	}
}
