package cli

import (
	"log/slog"
	"path/filepath"
	"strings"

	"releaseweaver/internal/config"
	"releaseweaver/internal/release"
)

type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
)

// Invocation is the canonical description of one `run`.
//
// Paths are absolute and clean. Exactly one trigger source is set: Ref,
// Tag, or GitDir for HEAD tag detection.
type Invocation struct {
	ConfigPath string

	Ref    string
	Tag    string
	GitDir string

	Principal release.Principal

	DryRun      bool
	TracePath   string
	Output      OutputFormat
	Concurrency int

	LogLevel  slog.Level
	LogFormat string
}

// runFlags holds raw flag values before canonicalization.
type runFlags struct {
	config      string
	ref         string
	tag         string
	gitDir      string
	owner       string
	repository  string
	actor       string
	dryRun      bool
	trace       string
	output      string
	concurrency int
	logLevel    string
	logFormat   string
}

func (f runFlags) invocation() (Invocation, error) {
	inv := Invocation{
		Ref:         f.ref,
		Tag:         f.tag,
		DryRun:      f.dryRun,
		Concurrency: f.concurrency,
	}

	cfgPath := f.config
	if strings.TrimSpace(cfgPath) == "" {
		cfgPath = config.DefaultPath
	}
	var err error
	if inv.ConfigPath, err = absPath(cfgPath); err != nil {
		return Invocation{}, err
	}

	// --ref and --tag may both be given; the manual tag wins.
	switch {
	case strings.TrimSpace(inv.Ref) == "" && strings.TrimSpace(inv.Tag) == "":
		dir := f.gitDir
		if strings.TrimSpace(dir) == "" {
			dir = filepath.Dir(inv.ConfigPath)
		}
		if inv.GitDir, err = absPath(dir); err != nil {
			return Invocation{}, err
		}
	case strings.TrimSpace(f.gitDir) != "":
		return Invocation{}, invalidInvocationf("--git-dir cannot be combined with --ref or --tag")
	}

	repo := strings.TrimSpace(f.repository)
	owner := strings.TrimSpace(f.owner)
	if owner == "" && repo != "" {
		owner, _, _ = strings.Cut(repo, "/")
	}
	inv.Principal = release.Principal{Owner: owner, Repository: repo, Actor: strings.TrimSpace(f.actor)}

	if f.trace != "" {
		if inv.TracePath, err = absPath(f.trace); err != nil {
			return Invocation{}, err
		}
	}

	switch OutputFormat(strings.ToLower(strings.TrimSpace(f.output))) {
	case OutputText, "":
		inv.Output = OutputText
	case OutputJSON:
		inv.Output = OutputJSON
	default:
		return Invocation{}, invalidInvocationf("invalid --output %q (expected text|json)", f.output)
	}

	if f.concurrency < 0 {
		return Invocation{}, invalidInvocationf("--concurrency must be >= 0 (got %d)", f.concurrency)
	}

	if inv.LogLevel, err = parseLevel(f.logLevel); err != nil {
		return Invocation{}, err
	}
	switch lf := strings.ToLower(strings.TrimSpace(f.logFormat)); lf {
	case "", "text":
		inv.LogFormat = "text"
	case "json":
		inv.LogFormat = "json"
	default:
		return Invocation{}, invalidInvocationf("invalid --log-format %q (expected text|json)", f.logFormat)
	}
	return inv, nil
}

// Event builds the trigger event for a resolved ref.
func (inv Invocation) Event(ref string) release.Event {
	return release.Event{Ref: ref, ManualTag: inv.Tag, Principal: inv.Principal}
}

func absPath(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", invalidInvocationf("path must not be empty")
	}
	abs, err := filepath.Abs(filepath.Clean(p))
	if err != nil {
		return "", invalidInvocationf("resolve %q: %v", p, err)
	}
	return abs, nil
}
