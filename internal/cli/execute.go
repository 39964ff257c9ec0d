package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"releaseweaver/internal/config"
	"releaseweaver/internal/gitref"
	"releaseweaver/internal/release"
)

// Env is the process surface a command runs against.
type Env struct {
	Stdout io.Writer
	Stderr io.Writer
	Getenv Getenv
}

func (e Env) withDefaults() Env {
	if e.Stdout == nil {
		e.Stdout = os.Stdout
	}
	if e.Stderr == nil {
		e.Stderr = os.Stderr
	}
	if e.Getenv == nil {
		e.Getenv = os.Getenv
	}
	return e
}

type Result struct {
	ExitCode int
	Run      *release.Run
}

// Execute runs one release for a canonical invocation.
//
// Responsibilities:
//   - Load and validate the config before any job is scheduled.
//   - Resolve the trigger ref, from HEAD when no ref or tag was given.
//   - Write the trace file after the run, whatever its status.
//   - Translate the run status to an exit code.
func Execute(ctx context.Context, inv Invocation, env Env) (res Result, execErr error) {
	env = env.withDefaults()
	res.ExitCode = ExitInternalError
	defer func() {
		if r := recover(); r != nil {
			res.ExitCode = ExitInternalError
			execErr = fmt.Errorf("internal error: %v", r)
		}
	}()

	logger := newLogger(env.Stderr, inv.LogLevel, inv.LogFormat)

	cfg, err := config.Load(inv.ConfigPath)
	if err != nil {
		res.ExitCode = ExitCode(err)
		return res, err
	}

	ref := inv.Ref
	if inv.GitDir != "" {
		if ref, err = headRef(inv.GitDir); err != nil {
			res.ExitCode = ExitCode(err)
			return res, err
		}
		logger.Info("detected release tag", "ref", ref, "git_dir", inv.GitDir)
	}

	builder := newBuilder(cfg, env.Getenv, logger)
	collab, err := collaborators(ctx, cfg, builder, inv.DryRun, env.Getenv, logger)
	if err != nil {
		res.ExitCode = ExitCode(err)
		return res, err
	}
	wf, err := release.NewWorkflow(collab, settings(cfg, env.Getenv), guard(cfg),
		release.WithLogger(logger),
		release.WithConcurrency(inv.Concurrency),
		release.WithHooks(hooks(cfg, builder, logger)...),
	)
	if err != nil {
		res.ExitCode = ExitCode(err)
		return res, err
	}

	run, err := wf.Run(ctx, inv.Event(ref))
	if err != nil {
		return res, err
	}
	res.Run = run
	res.ExitCode = exitForStatus(run.Status)

	if inv.TracePath != "" {
		if err := writeTrace(inv.TracePath, run); err != nil {
			res.ExitCode = ExitInternalError
			execErr = err
		}
	}

	s := summarize(run)
	if inv.Output == OutputJSON {
		err = writeJSON(env.Stdout, s)
	} else {
		err = writeText(env.Stdout, s)
	}
	if err != nil && execErr == nil {
		res.ExitCode = ExitInternalError
		execErr = fmt.Errorf("write summary: %w", err)
	}
	return res, execErr
}

func headRef(dir string) (string, error) {
	repo, err := gitref.Open(dir)
	if err != nil {
		return "", err
	}
	ref, err := gitref.HeadRef(repo)
	if errors.Is(err, release.ErrNotFound) {
		return "", invalidInvocationf("%v; pass --ref or --tag", err)
	}
	return ref, err
}
