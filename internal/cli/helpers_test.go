package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const projectConfig = `
project:
  name: demo
  repository: acme/demo
access:
  owner: acme
build:
  recipes:
    wheel:
      run: mkdir -p dist && printf wheel > dist/demo-$RELEASE_VERSION.whl
      outputs: [dist/*.whl]
    zipapp:
      run: mkdir -p dist && printf app > dist/demo.pyz
      outputs: [dist/demo.pyz]
  package_formats: [wheel]
  release_formats: [zipapp]
registry:
  bucket: demo-packages
`

const changes = `# Changes

## 1.2.3

- Faster startup.

## 1.2.2

- Initial release.
`

type project struct {
	dir    string
	config string
}

func newProject(t *testing.T, cfg string) project {
	t.Helper()
	dir := t.TempDir()
	p := project{dir: dir, config: filepath.Join(dir, "releaseweaver.yaml")}
	writeFile(t, p.config, cfg)
	writeFile(t, filepath.Join(dir, "CHANGES.md"), changes)
	return p
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

type cliRun struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, env map[string]string, args ...string) cliRun {
	t.Helper()
	var out, errb bytes.Buffer
	getenv := func(k string) string {
		if v, ok := env[k]; ok {
			return v
		}
		return os.Getenv(k)
	}
	code := Run(context.Background(), args, Env{Stdout: &out, Stderr: &errb, Getenv: getenv})
	return cliRun{code: code, stdout: out.String(), stderr: errb.String()}
}

func decodeSummary(t *testing.T, r cliRun) Summary {
	t.Helper()
	var s Summary
	if err := json.Unmarshal([]byte(r.stdout), &s); err != nil {
		t.Fatalf("decode summary: %v\nstdout:\n%s\nstderr:\n%s", err, r.stdout, r.stderr)
	}
	return s
}

func jobByName(t *testing.T, s Summary, name string) JobSummary {
	t.Helper()
	for _, j := range s.Jobs {
		if j.Name == name {
			return j
		}
	}
	t.Fatalf("no job %q in summary", name)
	return JobSummary{}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func contains(s, sub string) bool { return strings.Contains(s, sub) }
