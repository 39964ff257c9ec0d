package release

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"releaseweaver/internal/dag"
	"releaseweaver/internal/trace"
)

func runRelease(t *testing.T, f *fixture, event Event, opts ...Option) *Run {
	t.Helper()
	w, err := NewWorkflow(f.collab, testSettings, owner, opts...)
	require.NoError(t, err)
	run, err := w.Run(context.Background(), event)
	require.NoError(t, err)
	return run
}

func requireState(t *testing.T, run *Run, job string, want dag.JobState) JobReport {
	t.Helper()
	rep, ok := run.Job(job)
	require.True(t, ok, "job %s missing from report", job)
	require.Equal(t, want, rep.State, "job %s: %+v", job, rep)
	return rep
}

func TestWorkflow_EndToEnd_AllSucceeded(t *testing.T) {
	f := newFixture()
	run := runRelease(t, f, Event{Ref: "refs/tags/v1.2.3", Principal: trusted})

	require.Equal(t, StatusAllSucceeded, run.Status)
	require.NoError(t, run.Err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, "v1.2.3", run.Release.Tag)

	names := make([]string, 0, len(run.Jobs))
	for _, j := range run.Jobs {
		names = append(names, j.Name)
		assert.Equal(t, dag.JobSucceeded, j.State)
	}
	assert.Equal(t, []string{JobDetermineTag, JobPublishPackage, JobPublishRelease, JobAnnounce}, names)

	require.Len(t, f.notifier.sent, 1)
	msg := f.notifier.sent[0]
	assert.Equal(t, "1.2.3", msg.Version)
	assert.Equal(t, "v1.2.3", msg.Tag)
	assert.Contains(t, msg.ReleaseURL, "v1.2.3")
	assert.Contains(t, msg.PackageURL, "v1.2.3")
	assert.Equal(t, "app 1.2.3 released", msg.Title)

	req := f.host.releases["v1.2.3"]
	assert.Equal(t, "## 1.2.3\n\n* Fixed things.", req.Body)
	assert.Equal(t, "app 1.2.3", req.Title)
	require.Len(t, req.Artifacts, 1)
	assert.Equal(t, Format("pex"), req.Artifacts[0].Format)

	assert.Len(t, f.builder.calls, 2)
	assert.Empty(t, run.Warnings())
	assert.Empty(t, run.SoftFailures())

	assert.Equal(t, run.GraphHash, run.Trace.GraphHash)
	assert.Len(t, run.Trace.Events, 4)
}

func TestWorkflow_EndToEnd_MissingChangelog(t *testing.T) {
	f := newFixture()
	f.collab.Changelog = fakeChangelog{}
	run := runRelease(t, f, Event{Ref: "v1.2.3", Principal: trusted})

	require.Equal(t, StatusAllSucceeded, run.Status)
	requireState(t, run, JobPublishRelease, dag.JobSucceeded)
	assert.Equal(t, MissingChangelogBody("1.2.3"), f.host.releases["v1.2.3"].Body)
	assert.Equal(t, "No changelog entry was found for 1.2.3.", f.host.releases["v1.2.3"].Body)

	warnings := run.Warnings()
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "1.2.3")
}

func TestWorkflow_ChangelogErrorFailsRelease(t *testing.T) {
	f := newFixture()
	f.collab.Changelog = brokenChangelog{}
	run := runRelease(t, f, Event{Ref: "v1.2.3", Principal: trusted})

	assert.Equal(t, StatusPartialFailure, run.Status)
	requireState(t, run, JobPublishRelease, dag.JobFailed)
	requireState(t, run, JobPublishPackage, dag.JobSucceeded)
}

type brokenChangelog struct{}

func (brokenChangelog) Extract(context.Context, string) (string, error) {
	return "", errors.New("permission denied")
}

func TestWorkflow_MalformedTagSchedulesNothing(t *testing.T) {
	for _, ref := range []string{"2.1.4", "v1.2", "refs/heads/main", "v1.2.3-rc.1", ""} {
		t.Run(ref, func(t *testing.T) {
			f := newFixture()
			run := runRelease(t, f, Event{Ref: ref, Principal: trusted})

			assert.Equal(t, StatusValidationError, run.Status)
			assert.ErrorIs(t, run.Err, ErrValidation)
			assert.Empty(t, run.Jobs)
			assert.Empty(t, f.builder.calls)
			assert.Empty(t, f.notifier.sent)
		})
	}
}

func TestWorkflow_ManualTagWins(t *testing.T) {
	f := newFixture()
	run := runRelease(t, f, Event{Ref: "refs/tags/v1.0.0", ManualTag: "v1.2.3", Principal: trusted})

	require.Equal(t, StatusAllSucceeded, run.Status)
	assert.Equal(t, "v1.2.3", run.Release.Tag)
	assert.Contains(t, f.host.releases, "v1.2.3")
	assert.NotContains(t, f.host.releases, "v1.0.0")
}

func TestWorkflow_AccessGuardFalseSkipsEverything(t *testing.T) {
	f := newFixture()
	run := runRelease(t, f, Event{Ref: "v1.2.3", Principal: Principal{Owner: "someone-else"}})

	assert.Equal(t, StatusSkipped, run.Status)
	require.Len(t, run.Jobs, 4)
	for _, j := range run.Jobs {
		assert.Equal(t, dag.JobSkipped, j.State, j.Name)
		assert.Equal(t, dag.SkipGuard, j.Reason, j.Name)
	}
	assert.Empty(t, f.builder.calls)
	assert.Empty(t, f.host.releases)
	assert.Empty(t, f.notifier.sent)
}

func TestWorkflow_PublishJobsOverlap(t *testing.T) {
	f := newFixture()
	releaseStarted := make(chan struct{})
	f.host.started = releaseStarted
	// The registry blocks until the release host has been called, so the
	// run only succeeds if both publish jobs are in flight together.
	f.registry.wait = releaseStarted

	run := runRelease(t, f, Event{Ref: "v1.2.3", Principal: trusted})
	require.Equal(t, StatusAllSucceeded, run.Status, "%+v", run.Jobs)
}

func TestWorkflow_PackageFailureSkipsAnnounceOnly(t *testing.T) {
	f := newFixture()
	f.registry.err = AuthError("publish", errors.New("invalid token"))
	run := runRelease(t, f, Event{Ref: "v1.2.3", Principal: trusted})

	assert.Equal(t, StatusPartialFailure, run.Status)
	pkg := requireState(t, run, JobPublishPackage, dag.JobFailed)
	assert.ErrorIs(t, pkg.Err, ErrAuth)
	requireState(t, run, JobPublishRelease, dag.JobSucceeded)

	ann := requireState(t, run, JobAnnounce, dag.JobSkipped)
	assert.Equal(t, dag.SkipUpstreamFailed, ann.Reason)
	assert.Equal(t, JobPublishPackage, ann.Cause)
	assert.Empty(t, f.notifier.sent)
}

func TestWorkflow_BothPublishJobsFail(t *testing.T) {
	f := newFixture()
	f.builder.err = errors.New("compiler exploded")
	run := runRelease(t, f, Event{Ref: "v1.2.3", Principal: trusted})

	assert.Equal(t, StatusPartialFailure, run.Status)
	requireState(t, run, JobDetermineTag, dag.JobSucceeded)
	requireState(t, run, JobPublishPackage, dag.JobFailed)
	requireState(t, run, JobPublishRelease, dag.JobFailed)
	requireState(t, run, JobAnnounce, dag.JobSkipped)
}

func TestWorkflow_SecondReleaseConflicts(t *testing.T) {
	f := newFixture()
	first := runRelease(t, f, Event{Ref: "v1.2.3", Principal: trusted})
	require.Equal(t, StatusAllSucceeded, first.Status)

	second := runRelease(t, f, Event{Ref: "v1.2.3", Principal: trusted})
	assert.Equal(t, StatusPartialFailure, second.Status)

	rel := requireState(t, second, JobPublishRelease, dag.JobFailed)
	assert.ErrorIs(t, rel.Err, ErrConflict)
	assert.Contains(t, rel.Err.Error(), "release already exists")

	pkg := requireState(t, second, JobPublishPackage, dag.JobFailed)
	assert.ErrorIs(t, pkg.Err, ErrConflict)

	requireState(t, second, JobAnnounce, dag.JobSkipped)
	assert.Len(t, f.notifier.sent, 1)
}

func TestWorkflow_NotificationFailureIsSoft(t *testing.T) {
	f := newFixture()
	f.notifier.err = errors.New("webhook returned 500")
	run := runRelease(t, f, Event{Ref: "v1.2.3", Principal: trusted})

	assert.Equal(t, StatusAllSucceeded, run.Status)
	ann := requireState(t, run, JobAnnounce, dag.JobSucceeded)
	assert.Equal(t, "false", ann.Outputs[OutputDelivered])

	soft := run.SoftFailures()
	require.Len(t, soft, 1)
	assert.ErrorIs(t, soft[0], ErrNotification)
	assert.Equal(t, CodeNotification, CodeOf(soft[0]))
}

func TestWorkflow_HooksRunAfterTheirNeeds(t *testing.T) {
	f := newFixture()
	var seen string
	hook := Hook{
		Name:  "update-docs",
		Needs: []string{JobPublishRelease},
		Run: func(_ context.Context, rel Release) error {
			seen = rel.Version
			return nil
		},
	}
	run := runRelease(t, f, Event{Ref: "v1.2.3", Principal: trusted}, WithHooks(hook))

	require.Equal(t, StatusAllSucceeded, run.Status)
	requireState(t, run, "update-docs", dag.JobSucceeded)
	assert.Equal(t, "1.2.3", seen)
}

func TestWorkflow_CyclicHooksAreConfigurationErrors(t *testing.T) {
	f := newFixture()
	run := runRelease(t, f, Event{Ref: "v1.2.3", Principal: trusted}, WithHooks(
		Hook{Name: "a", Needs: []string{"b"}},
		Hook{Name: "b", Needs: []string{"a"}},
	))

	assert.Equal(t, StatusConfigurationError, run.Status)
	assert.ErrorIs(t, run.Err, ErrConfiguration)
	assert.ErrorIs(t, run.Err, dag.ErrCycleFound)
	assert.Empty(t, run.Jobs)
	assert.Empty(t, f.builder.calls)
}

func TestWorkflow_HookNameClashIsConfigurationError(t *testing.T) {
	f := newFixture()
	run := runRelease(t, f, Event{Ref: "v1.2.3", Principal: trusted}, WithHooks(Hook{Name: JobAnnounce}))
	assert.Equal(t, StatusConfigurationError, run.Status)
	assert.True(t, strings.Contains(run.Err.Error(), "duplicate job name"))
}

func TestWorkflow_CancelledBeforeStartSkipsEverything(t *testing.T) {
	f := newFixture()
	w, err := NewWorkflow(f.collab, testSettings, owner)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	run, err := w.Run(ctx, Event{Ref: "v1.2.3", Principal: trusted})
	require.NoError(t, err)

	assert.Equal(t, StatusPartialFailure, run.Status)
	for _, j := range run.Jobs {
		assert.NotEqual(t, dag.JobFailed, j.State)
	}
	assert.Empty(t, f.notifier.sent)
}

func TestWorkflow_TraceSinkReceivesEvents(t *testing.T) {
	f := newFixture()
	rec := trace.NewRecorder("")
	run := runRelease(t, f, Event{Ref: "v1.2.3", Principal: trusted}, WithTraceSink(rec))

	ext := rec.Trace()
	require.Len(t, ext.Events, len(run.Jobs))
	ext.GraphHash = run.GraphHash
	h1, err := ext.Hash()
	require.NoError(t, err)
	h2, err := run.Trace.Hash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestNewWorkflow_RequiresCollaborators(t *testing.T) {
	_, err := NewWorkflow(Collaborators{}, testSettings, owner)
	require.ErrorIs(t, err, ErrConfiguration)
}
