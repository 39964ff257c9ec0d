package build

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"syscall"
)

// Command is one shell invocation.
type Command struct {
	// Run is interpreted by "sh -c".
	Run string
	// Env is the complete environment of the command.
	Env map[string]string
}

// Result is the outcome of a finished command.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Runner executes commands in WorkingDir.
//
// Environment isolation: the command sees ONLY the variables in
// Command.Env. Host variables (HOME, PATH, tokens) are never passed through;
// if PATH is not declared the command runs without one.
type Runner struct {
	WorkingDir string
}

// NewRunner creates a Runner rooted at workingDir.
func NewRunner(workingDir string) *Runner {
	return &Runner{WorkingDir: workingDir}
}

// Run executes cmd and waits for it. A non-zero exit code is reported in
// the Result, not as an error. If ctx is cancelled the whole process group
// is killed.
func (r *Runner) Run(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.Run == "" {
		return nil, fmt.Errorf("command is empty")
	}

	c := exec.CommandContext(ctx, "sh", "-c", cmd.Run)
	c.Dir = r.WorkingDir
	c.Env = isolatedEnv(cmd.Env)
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	if err := c.Start(); err != nil {
		return nil, fmt.Errorf("failed to start command: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- c.Wait()
	}()

	var err error
	select {
	case <-ctx.Done():
		if c.Process != nil {
			_ = syscall.Kill(-c.Process.Pid, syscall.SIGKILL)
		}
		<-done
		return nil, fmt.Errorf("command cancelled: %w", ctx.Err())
	case err = <-done:
	}

	exitCode := 0
	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return nil, fmt.Errorf("failed to execute command: %w", err)
		}
		exitCode = exitErr.ExitCode()
	}

	return &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: exitCode,
	}, nil
}

// isolatedEnv returns env as sorted KEY=VALUE pairs. It never returns nil,
// so an empty map yields an empty environment rather than the host's.
func isolatedEnv(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// Exec runs cmd and reports a non-zero exit as an error carrying the end
// of its stderr.
func (r *Runner) Exec(ctx context.Context, cmd Command) error {
	res, err := r.Run(ctx, cmd)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("exit code %d: %s", res.ExitCode, tail(res.Stderr, 512))
	}
	return nil
}

func tail(b []byte, n int) string {
	b = bytes.TrimSpace(b)
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(b)
}
