package release

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"releaseweaver/internal/dag"
)

// Job names of the release graph.
const (
	JobDetermineTag   = "determine-tag"
	JobPublishPackage = "publish-package"
	JobPublishRelease = "publish-release"
	JobAnnounce       = "announce"
)

// Output keys.
const (
	OutputTag       = "tag"
	OutputVersion   = "version"
	OutputURL       = "url"
	OutputReleaseID = "id"
	OutputDelivered = "delivered"
)

// MissingChangelogBody is the release body used when the changelog has no
// entry for the version.
func MissingChangelogBody(version string) string {
	return fmt.Sprintf("No changelog entry was found for %s.", version)
}

func (w *Workflow) jobs(run *Run, log *slog.Logger) []dag.Job {
	jobs := []dag.Job{
		{
			Name: JobDetermineTag,
			Run:  determineTag,
		},
		{
			Name:  JobPublishPackage,
			Needs: []string{JobDetermineTag},
			Run:   w.publishPackage(log),
		},
		{
			Name:  JobPublishRelease,
			Needs: []string{JobDetermineTag},
			Run:   w.publishRelease(run, log),
		},
		{
			Name:  JobAnnounce,
			Needs: []string{JobDetermineTag, JobPublishPackage, JobPublishRelease},
			Run:   w.announce(run, log),
		},
	}
	for _, h := range w.hooks {
		jobs = append(jobs, hookJob(h, log))
	}
	return jobs
}

// releaseFrom reads the release published by determine-tag.
func releaseFrom(in dag.Inputs) (Release, error) {
	tag, ok := in.Output(JobDetermineTag, OutputTag)
	if !ok {
		return Release{}, fmt.Errorf("%s produced no %q output", JobDetermineTag, OutputTag)
	}
	return ParseTag(tag)
}

// determineTag re-validates the resolved tag and publishes it, with its
// version, to every downstream job.
func determineTag(_ context.Context, in dag.Inputs) (dag.Outputs, error) {
	tag, _ := in.Initial(OutputTag)
	rel, err := ParseTag(tag)
	if err != nil {
		return nil, err
	}
	return dag.Outputs{OutputTag: rel.Tag, OutputVersion: rel.Version}, nil
}

func (w *Workflow) publishPackage(log *slog.Logger) dag.JobFunc {
	log = log.With("job", JobPublishPackage)
	return func(ctx context.Context, in dag.Inputs) (dag.Outputs, error) {
		rel, err := releaseFrom(in)
		if err != nil {
			return nil, err
		}

		artifacts, err := w.collab.Builder.Build(ctx, rel, w.settings.PackageFormats)
		if err != nil {
			return nil, fmt.Errorf("build: %w", err)
		}
		log.Debug("artifacts built", "count", len(artifacts))

		rec, err := w.collab.Registry.Publish(ctx, rel, artifacts, w.settings.Credentials)
		if err != nil {
			return nil, fmt.Errorf("publish: %w", err)
		}
		log.Info("package published", "version", rec.Version, "url", rec.URL)
		return dag.Outputs{OutputURL: rec.URL, OutputVersion: rec.Version}, nil
	}
}

func (w *Workflow) publishRelease(run *Run, log *slog.Logger) dag.JobFunc {
	log = log.With("job", JobPublishRelease)
	return func(ctx context.Context, in dag.Inputs) (dag.Outputs, error) {
		rel, err := releaseFrom(in)
		if err != nil {
			return nil, err
		}

		artifacts, err := w.collab.Builder.Build(ctx, rel, w.settings.ReleaseFormats)
		if err != nil {
			return nil, fmt.Errorf("build: %w", err)
		}

		body, err := w.collab.Changelog.Extract(ctx, rel.Version)
		switch {
		case errors.Is(err, ErrNotFound):
			body = MissingChangelogBody(rel.Version)
			msg := fmt.Sprintf("no changelog entry for %s, using placeholder release body", rel.Version)
			run.warn(msg)
			log.Warn(msg)
		case err != nil:
			return nil, fmt.Errorf("changelog: %w", err)
		}

		rec, err := w.collab.Host.CreateRelease(ctx, ReleaseRequest{
			Tag:       rel.Tag,
			Title:     w.title(rel),
			Body:      body,
			Artifacts: artifacts,
		})
		if err != nil {
			return nil, fmt.Errorf("create release: %w", err)
		}
		log.Info("release created", "id", rec.ID, "url", rec.URL)
		return dag.Outputs{OutputURL: rec.URL, OutputReleaseID: rec.ID}, nil
	}
}

func (w *Workflow) announce(run *Run, log *slog.Logger) dag.JobFunc {
	log = log.With("job", JobAnnounce)
	return func(ctx context.Context, in dag.Inputs) (dag.Outputs, error) {
		rel, err := releaseFrom(in)
		if err != nil {
			return nil, err
		}
		pkgURL, _ := in.Output(JobPublishPackage, OutputURL)
		relURL, _ := in.Output(JobPublishRelease, OutputURL)

		msg := Message{
			Title:      w.title(rel) + " released",
			Version:    rel.Version,
			Tag:        rel.Tag,
			PackageURL: pkgURL,
			ReleaseURL: relURL,
		}
		if err := w.collab.Notifier.Send(ctx, msg); err != nil {
			nerr := NotificationError(JobAnnounce, err)
			run.softFail(nerr)
			log.Warn("announcement not delivered", "error", err)
			return dag.Outputs{OutputDelivered: "false"}, nil
		}
		log.Info("announcement sent")
		return dag.Outputs{OutputDelivered: "true"}, nil
	}
}

func hookJob(h Hook, log *slog.Logger) dag.Job {
	log = log.With("job", h.Name)
	return dag.Job{
		Name:  h.Name,
		Needs: h.Needs,
		Run: func(ctx context.Context, in dag.Inputs) (dag.Outputs, error) {
			tag, _ := in.Initial(OutputTag)
			rel, err := ParseTag(tag)
			if err != nil {
				return nil, err
			}
			if h.Run == nil {
				return nil, nil
			}
			if err := h.Run(ctx, rel); err != nil {
				return nil, err
			}
			log.Info("hook finished")
			return nil, nil
		},
	}
}

func (w *Workflow) title(rel Release) string {
	if w.settings.Project == "" {
		return rel.Tag
	}
	return w.settings.Project + " " + rel.Version
}
