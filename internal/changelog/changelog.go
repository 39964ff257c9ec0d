// Package changelog extracts the release notes of one version from a
// Markdown changelog.
//
// A version's entry is the section whose heading names the version, e.g.
//
//	## 2.1.4
//	## v2.1.4
//	## [2.1.4] - 2024-05-01
//
// and runs until the next heading of the same or a higher level.
package changelog

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	"releaseweaver/internal/release"
)

// DefaultPath is the changelog location used when none is configured.
const DefaultPath = "CHANGES.md"

// Extractor reads a changelog from a billy filesystem.
type Extractor struct {
	fs     billy.Filesystem
	path   string
	logger *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New returns an Extractor reading path from fs.
func New(fs billy.Filesystem, path string, opts ...Option) *Extractor {
	if path == "" {
		path = DefaultPath
	}
	e := &Extractor{
		fs:     fs,
		path:   path,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewOS returns an Extractor reading path relative to dir on the local disk.
func NewOS(dir, path string, opts ...Option) *Extractor {
	return New(osfs.New(dir), path, opts...)
}

// Extract returns the entry for version, trimmed of surrounding blank
// lines and without its heading. A missing changelog file or a missing
// entry both match release.ErrNotFound.
func (e *Extractor) Extract(_ context.Context, version string) (string, error) {
	data, err := util.ReadFile(e.fs, e.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", release.NotFoundError("changelog", fmt.Sprintf("%s does not exist", e.path))
		}
		return "", fmt.Errorf("read changelog %s: %w", e.path, err)
	}

	body, ok, err := Section(data, version)
	if err != nil {
		return "", fmt.Errorf("read changelog %s: %w", e.path, err)
	}
	if !ok {
		e.logger.Debug("no changelog entry", "version", version, "path", e.path)
		return "", release.NotFoundError("changelog", fmt.Sprintf("no entry for %s in %s", version, e.path))
	}
	return body, nil
}

// maxLine bounds a single changelog line.
const maxLine = 1024 * 1024

// Section returns the body of the entry for version in a Markdown document.
// A line longer than 1 MiB is an error rather than the end of the document.
func Section(doc []byte, version string) (string, bool, error) {
	var (
		out   []string
		level int
		found bool
	)

	sc := bufio.NewScanner(bytes.NewReader(doc))
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	for sc.Scan() {
		line := sc.Text()
		lvl, title := heading(line)

		if found {
			if lvl > 0 && lvl <= level {
				break
			}
			out = append(out, line)
			continue
		}
		if lvl > 0 && namesVersion(title, version) {
			found = true
			level = lvl
		}
	}
	if err := sc.Err(); err != nil {
		return "", false, err
	}
	if !found {
		return "", false, nil
	}
	return strings.Trim(strings.Join(out, "\n"), "\n\r\t "), true, nil
}

// heading returns the level and text of an ATX heading, or 0.
func heading(line string) (int, string) {
	trimmed := strings.TrimLeft(line, " ")
	if len(line)-len(trimmed) > 3 {
		return 0, ""
	}
	lvl := 0
	for lvl < len(trimmed) && trimmed[lvl] == '#' {
		lvl++
	}
	if lvl == 0 || lvl > 6 {
		return 0, ""
	}
	rest := trimmed[lvl:]
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return 0, ""
	}
	return lvl, strings.TrimSpace(rest)
}

// namesVersion reports whether a heading's first word is version, allowing
// a leading "v" and surrounding brackets.
func namesVersion(title, version string) bool {
	fields := strings.Fields(title)
	if len(fields) == 0 {
		return false
	}
	word := strings.Trim(fields[0], "[]")
	word = strings.TrimPrefix(word, "v")
	return word == version
}
