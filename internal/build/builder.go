package build

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"

	"releaseweaver/internal/release"
)

// Builder builds release artifacts from per-format recipes.
//
// Builds are serialized: recipes share one working tree. A format already
// built for a version is not rebuilt; later requests reuse its artifacts.
type Builder struct {
	runner  *Runner
	recipes map[release.Format]Recipe
	baseEnv map[string]string
	logger  *slog.Logger

	mu    sync.Mutex
	built map[string][]release.Artifact
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithEnv adds variables visible to every recipe.
func WithEnv(env map[string]string) Option {
	return func(b *Builder) {
		for k, v := range env {
			b.baseEnv[k] = v
		}
	}
}

// NewBuilder returns a Builder that runs recipes in workingDir.
func NewBuilder(workingDir string, recipes map[release.Format]Recipe, opts ...Option) *Builder {
	b := &Builder{
		runner:  NewRunner(workingDir),
		recipes: recipes,
		baseEnv: map[string]string{},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		built:   map[string][]release.Artifact{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build runs the recipe of each requested format, in sorted order, and
// returns the artifacts with their digests.
//
// Recipes see RELEASE_TAG, RELEASE_VERSION and RELEASE_FORMAT in addition
// to their declared environment.
func (b *Builder) Build(ctx context.Context, rel release.Release, formats []release.Format) ([]release.Artifact, error) {
	sorted := append([]release.Format(nil), formats...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	b.mu.Lock()
	defer b.mu.Unlock()

	var out []release.Artifact
	for _, f := range sorted {
		arts, err := b.buildLocked(ctx, rel, f)
		if err != nil {
			return nil, err
		}
		out = append(out, arts...)
	}
	return out, nil
}

// Exec runs cmd in the builder's working directory with the base
// environment plus cmd.Env. It holds the build lock, so it never overlaps a
// recipe.
func (b *Builder) Exec(ctx context.Context, cmd Command) error {
	env := make(map[string]string, len(b.baseEnv)+len(cmd.Env))
	for k, v := range b.baseEnv {
		env[k] = v
	}
	for k, v := range cmd.Env {
		env[k] = v
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.runner.Exec(ctx, Command{Run: cmd.Run, Env: env})
}

func (b *Builder) buildLocked(ctx context.Context, rel release.Release, format release.Format) ([]release.Artifact, error) {
	recipe, ok := b.recipes[format]
	if !ok {
		return nil, fmt.Errorf("no recipe for format %q", format)
	}

	key := recipe.key(b.runner.WorkingDir, string(format), rel.Version)
	if arts, ok := b.built[key]; ok {
		b.logger.Debug("reusing built artifacts", "format", format, "count", len(arts))
		return arts, nil
	}

	env := make(map[string]string, len(b.baseEnv)+len(recipe.Env)+3)
	for k, v := range b.baseEnv {
		env[k] = v
	}
	for k, v := range recipe.Env {
		env[k] = v
	}
	env["RELEASE_TAG"] = rel.Tag
	env["RELEASE_VERSION"] = rel.Version
	env["RELEASE_FORMAT"] = string(format)

	b.logger.Info("building", "format", format, "version", rel.Version)
	if err := b.runner.Exec(ctx, Command{Run: recipe.Run, Env: env}); err != nil {
		return nil, fmt.Errorf("build %s: %w", format, err)
	}

	paths, err := collect(b.runner.WorkingDir, recipe.Outputs)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", format, err)
	}

	arts := make([]release.Artifact, 0, len(paths))
	for _, p := range paths {
		digest, size, err := Digest(p)
		if err != nil {
			return nil, fmt.Errorf("build %s: %w", format, err)
		}
		arts = append(arts, release.Artifact{
			Path:   filepath.ToSlash(p),
			Format: format,
			Digest: digest,
			Size:   size,
		})
	}
	b.built[key] = arts
	b.logger.Info("built", "format", format, "artifacts", len(arts))
	return arts, nil
}
