package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

type app struct {
	env  Env
	exit int
	ran  bool
}

func (a *app) root() *cobra.Command {
	root := &cobra.Command{
		Use:   "releaseweaver",
		Short: "Build, publish, and announce a tagged release",
		Long: `releaseweaver turns a version tag into a release: it builds the
configured artifacts, publishes them to the package registry, creates the
release record with the changelog entry for the version, and announces it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(a.env.Stdout)
	root.SetErr(a.env.Stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return invalidInvocationf("%v", err)
	})

	root.AddCommand(a.runCommand(), a.validateTagCommand())
	return root
}

func (a *app) runCommand() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the release workflow for a tag",
		Long: `Runs the release workflow. The tag comes from --tag (a manual
trigger), --ref (a pushed ref such as refs/tags/v1.2.3), or, when neither is
given, from the release tag pointing at HEAD of --git-dir.

Exit codes: 0 released or skipped by the access guard, 1 partial failure,
2 invalid invocation or malformed tag, 3 configuration error, 4 internal error.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.ran = true
			inv, err := f.invocation()
			if err != nil {
				a.exit = ExitCode(err)
				return err
			}
			res, err := Execute(cmd.Context(), inv, a.env)
			a.exit = res.ExitCode
			return err
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.config, "config", "c", "", "config file (default releaseweaver.yaml)")
	fl.StringVar(&f.ref, "ref", "", "pushed ref, e.g. refs/tags/v1.2.3")
	fl.StringVar(&f.tag, "tag", "", "release tag for a manual trigger, e.g. v1.2.3")
	fl.StringVar(&f.gitDir, "git-dir", "", "repository to read the HEAD tag from when no ref or tag is given")
	fl.StringVar(&f.owner, "owner", "", "owner of the triggering repository")
	fl.StringVar(&f.repository, "repository", "", "triggering repository as owner/name")
	fl.StringVar(&f.actor, "actor", "", "user that triggered the release")
	fl.BoolVar(&f.dryRun, "dry-run", false, "build for real but publish, release and announce in memory")
	fl.StringVar(&f.trace, "trace", "", "write the canonical run trace to this file")
	fl.StringVarP(&f.output, "output", "o", "text", "summary format: text|json")
	fl.IntVar(&f.concurrency, "concurrency", 0, "maximum jobs running at once (0 = unbounded)")
	fl.StringVar(&f.logLevel, "log-level", "info", "debug|info|warn|error")
	fl.StringVar(&f.logFormat, "log-format", "text", "text|json")
	return cmd
}

// Run executes args against the command tree and returns the process exit
// code. Errors are printed to env.Stderr.
func Run(ctx context.Context, args []string, env Env) int {
	a := &app{env: env.withDefaults()}
	root := a.root()
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return a.exit
	}
	fmt.Fprintln(a.env.Stderr, "error:", err)

	var invErr *InvocationError
	if !a.ran && !errors.As(err, &invErr) {
		// Unknown commands and argument count errors come from cobra itself.
		return ExitInvalidInvocation
	}
	if a.exit == ExitSuccess {
		return ExitCode(err)
	}
	return a.exit
}
