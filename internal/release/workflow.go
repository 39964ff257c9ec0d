package release

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"releaseweaver/internal/dag"
	"releaseweaver/internal/trace"
)

// Collaborators are the external systems a release talks to.
type Collaborators struct {
	Builder   ArtifactBuilder
	Registry  PackagePublisher
	Host      ReleaseHost
	Changelog ChangelogExtractor
	Notifier  Notifier
}

func (c Collaborators) validate() error {
	var missing []string
	if c.Builder == nil {
		missing = append(missing, "builder")
	}
	if c.Registry == nil {
		missing = append(missing, "registry")
	}
	if c.Host == nil {
		missing = append(missing, "release host")
	}
	if c.Changelog == nil {
		missing = append(missing, "changelog")
	}
	if c.Notifier == nil {
		missing = append(missing, "notifier")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing collaborators: %v", missing)
	}
	return nil
}

// Settings are the per-project parameters of the release jobs.
type Settings struct {
	// Project is the display name used in release titles and announcements.
	Project string

	// PackageFormats are built for and published to the registry.
	PackageFormats []Format
	// ReleaseFormats are built for and attached to the release record.
	ReleaseFormats []Format

	// Credentials are passed through to the registry.
	Credentials Credentials
}

// Hook is an extra job declared by the project. It runs after the jobs it
// needs and sees the resolved release.
type Hook struct {
	Name  string
	Needs []string
	Run   func(ctx context.Context, rel Release) error
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Workflow) { w.logger = logger }
}

// WithConcurrency bounds how many jobs run at once. n <= 0 means unbounded.
func WithConcurrency(n int) Option {
	return func(w *Workflow) { w.concurrency = n }
}

// WithHooks adds project-declared jobs to the graph.
func WithHooks(hooks ...Hook) Option {
	return func(w *Workflow) { w.hooks = append(w.hooks, hooks...) }
}

// WithTraceSink forwards job events to sink in addition to the run's own trace.
func WithTraceSink(sink trace.Sink) Option {
	return func(w *Workflow) { w.sink = sink }
}

// Workflow runs releases. It is safe to call Run concurrently for
// different triggers.
type Workflow struct {
	collab   Collaborators
	settings Settings
	guard    AccessGuard

	logger      *slog.Logger
	concurrency int
	hooks       []Hook
	sink        trace.Sink
	newID       func() string
	now         func() time.Time
}

// NewWorkflow validates the collaborators and returns a Workflow.
func NewWorkflow(collab Collaborators, settings Settings, guard AccessGuard, opts ...Option) (*Workflow, error) {
	if err := collab.validate(); err != nil {
		return nil, ConfigurationError("workflow", err)
	}
	w := &Workflow{
		collab:   collab,
		settings: settings,
		guard:    guard,
		newID:    func() string { return uuid.NewString() },
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return w, nil
}

// NewGraph validates jobs into a graph, reporting any problem as a
// configuration error.
func NewGraph(jobs []dag.Job) (*dag.JobGraph, error) {
	g, err := dag.NewJobGraph(jobs)
	if err != nil {
		return nil, ConfigurationError("graph", err)
	}
	return g, nil
}

// Run resolves the trigger and executes the release graph.
//
// Validation and configuration problems do not return an error: they are
// reported through Run.Status and Run.Err with no job scheduled. The
// returned error is reserved for engine failures.
func (w *Workflow) Run(ctx context.Context, event Event) (*Run, error) {
	run := &Run{ID: w.newID(), Event: event, Started: w.now()}
	log := w.logger.With("run_id", run.ID)
	defer func() { run.Finished = w.now() }()

	rel, err := Resolve(event)
	if err != nil {
		log.Error("trigger rejected", "source", event.Source(), "error", err)
		run.Status = StatusValidationError
		run.Err = err
		return run, nil
	}
	run.Release = rel
	log = log.With("tag", rel.Tag)

	g, err := NewGraph(w.jobs(run, log))
	if err != nil {
		log.Error("invalid job graph", "error", err)
		run.Status = StatusConfigurationError
		run.Err = err
		return run, nil
	}
	run.GraphHash = g.Hash().String()

	var forward []trace.Sink
	if w.sink != nil {
		forward = append(forward, w.sink)
	}
	rec := trace.NewRecorder(run.GraphHash, forward...)

	exec, err := dag.NewExecutor(g,
		dag.WithRunGuard(func() bool {
			ok := w.guard.Check(event.Principal)
			if !ok {
				log.Info("access guard denied release", "owner", event.Principal.Owner,
					"repository", event.Principal.Repository, "actor", event.Principal.Actor)
			}
			return ok
		}),
		dag.WithInitialOutputs(dag.Outputs{OutputTag: rel.Tag, OutputVersion: rel.Version}),
		dag.WithConcurrency(w.concurrency),
		dag.WithTraceSink(rec),
		dag.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	log.Info("release started", "version", rel.Version, "jobs", g.Len())
	res, err := exec.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", run.ID, err)
	}

	for _, name := range g.TopologicalOrder() {
		oc := res.Outcomes[name]
		run.Jobs = append(run.Jobs, JobReport{
			Name:     name,
			State:    oc.State,
			Reason:   oc.Reason,
			Cause:    oc.Cause,
			Err:      oc.Err,
			Outputs:  oc.Outputs,
			Duration: oc.Duration(),
		})
	}
	run.Status = aggregate(res)
	run.Trace = rec.Trace()
	if n := rec.Dropped(); n > 0 {
		log.Warn("dropped trace events", "count", n)
	}

	log.Info("release finished", "status", run.Status,
		"failed", res.Failed(), "warnings", len(run.Warnings()), "soft_failures", len(run.SoftFailures()))
	return run, nil
}
