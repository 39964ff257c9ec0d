package cli

import (
	"context"
	"fmt"
	"log/slog"

	"releaseweaver/internal/build"
	"releaseweaver/internal/changelog"
	"releaseweaver/internal/config"
	"releaseweaver/internal/notify"
	"releaseweaver/internal/registry"
	"releaseweaver/internal/release"
	"releaseweaver/internal/releasehost"
)

// Getenv reads an environment variable.
type Getenv func(string) string

// newBuilder returns the builder shared by the publish jobs and the hooks.
func newBuilder(cfg *config.Config, getenv Getenv, logger *slog.Logger) *build.Builder {
	return build.NewBuilder(cfg.Build.Workdir, recipes(cfg),
		build.WithLogger(logger.With("component", "build")),
		build.WithEnv(buildEnv(cfg.Build.Env, getenv)))
}

// collaborators builds the release collaborators from cfg. A dry run keeps
// the real builder and changelog but publishes to memory.
func collaborators(ctx context.Context, cfg *config.Config, builder *build.Builder, dryRun bool, getenv Getenv, logger *slog.Logger) (release.Collaborators, error) {
	c := release.Collaborators{
		Builder: builder,
		Changelog: changelog.NewOS(cfg.Build.Workdir, cfg.Release.Changelog,
			changelog.WithLogger(logger.With("component", "changelog"))),
	}

	if dryRun {
		c.Registry = registry.NewMemory("")
		c.Host = releasehost.NewMemory("")
		c.Notifier = notify.Log{Logger: logger.With("component", "notify", "dry_run", true)}
		return c, nil
	}

	reg, err := registry.NewS3(ctx, cfg.Registry.Bucket,
		registry.WithRegion(cfg.Registry.Region),
		registry.WithEndpoint(cfg.Registry.Endpoint),
		registry.WithPathStyle(cfg.Registry.PathStyle),
		registry.WithPrefix(cfg.Registry.Prefix),
		registry.WithProject(cfg.Project.Name),
		registry.WithPublicURL(cfg.Registry.PublicURL),
		registry.WithLogger(logger.With("component", "registry")),
	)
	if err != nil {
		return release.Collaborators{}, release.ConfigurationError("registry", err)
	}
	c.Registry = reg

	token := cfg.ReleaseToken(getenv)
	if token == "" {
		return release.Collaborators{}, release.ConfigurationError("release host",
			fmt.Errorf("environment variable %s is empty", cfg.Release.TokenEnv))
	}
	hostOpts := []releasehost.Option{releasehost.WithLogger(logger.With("component", "releasehost"))}
	if cfg.Release.APIURL != "" {
		hostOpts = append(hostOpts, releasehost.WithAPIURL(cfg.Release.APIURL))
	}
	host, err := releasehost.NewGitHub(cfg.Project.Repository, token, hostOpts...)
	if err != nil {
		return release.Collaborators{}, release.ConfigurationError("release host", err)
	}
	c.Host = host

	n, err := notifier(cfg, getenv, logger.With("component", "notify"))
	if err != nil {
		return release.Collaborators{}, err
	}
	c.Notifier = n
	return c, nil
}

// notifier logs every announcement and also posts it when a webhook is
// configured.
func notifier(cfg *config.Config, getenv Getenv, logger *slog.Logger) (release.Notifier, error) {
	log := notify.Log{Logger: logger}
	url := cfg.WebhookURL(getenv)
	if url == "" {
		return log, nil
	}
	wh, err := notify.NewWebhook(url, notify.WithLogger(logger))
	if err != nil {
		return nil, release.ConfigurationError("notify", err)
	}
	return notify.Multi{log, wh}, nil
}

func settings(cfg *config.Config, getenv Getenv) release.Settings {
	return release.Settings{
		Project:        cfg.Project.Name,
		PackageFormats: config.Formats(cfg.Build.PackageFormats),
		ReleaseFormats: config.Formats(cfg.Build.ReleaseFormats),
		Credentials:    cfg.Credentials(getenv),
	}
}

func guard(cfg *config.Config) release.AccessGuard {
	return release.AccessGuard{Owner: cfg.Access.Owner, Repository: cfg.Access.Repository}
}

func recipes(cfg *config.Config) map[release.Format]build.Recipe {
	out := make(map[release.Format]build.Recipe, len(cfg.Build.Recipes))
	for name, r := range cfg.Build.Recipes {
		out[release.Format(name)] = build.Recipe{Run: r.Run, Env: r.Env, Outputs: r.Outputs}
	}
	return out
}

// hooks turns configured shell hooks into release jobs. They run through
// builder, in its working directory and under its lock, with the build
// environment plus their own.
func hooks(cfg *config.Config, builder *build.Builder, logger *slog.Logger) []release.Hook {
	out := make([]release.Hook, 0, len(cfg.Hooks))
	for _, h := range cfg.Hooks {
		h := h
		out = append(out, release.Hook{
			Name:  h.Name,
			Needs: h.Needs,
			Run: func(ctx context.Context, rel release.Release) error {
				env := make(map[string]string, len(h.Env)+2)
				for k, v := range h.Env {
					env[k] = v
				}
				env["RELEASE_TAG"] = rel.Tag
				env["RELEASE_VERSION"] = rel.Version
				logger.Info("running hook", "hook", h.Name)
				if err := builder.Exec(ctx, build.Command{Run: h.Run, Env: env}); err != nil {
					return fmt.Errorf("hook %s: %w", h.Name, err)
				}
				return nil
			},
		})
	}
	return out
}

// buildEnv is the declared build environment. PATH is inherited from the
// host unless declared.
func buildEnv(declared map[string]string, getenv Getenv) map[string]string {
	env := make(map[string]string, len(declared)+1)
	for k, v := range declared {
		env[k] = v
	}
	if _, ok := env["PATH"]; !ok {
		if p := getenv("PATH"); p != "" {
			env["PATH"] = p
		}
	}
	return env
}
