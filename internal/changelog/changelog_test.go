package changelog

import (
	"bufio"
	"context"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"releaseweaver/internal/release"
)

const changes = `# Release Notes

## 2.1.5

This release fixes the lock resolver.

* Fix --lock with extras. (#2401)

### Internal

* Bump CI images.

## [2.1.4] - 2024-05-01

* Add --scie support.

## v2.1.3

## 2.1.2
* Trailing entry.
`

func newExtractor(t *testing.T, content string) *Extractor {
	t.Helper()
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "CHANGES.md", []byte(content), 0o644))
	return New(fs, "")
}

func TestExtract(t *testing.T) {
	e := newExtractor(t, changes)
	ctx := context.Background()

	body, err := e.Extract(ctx, "2.1.5")
	require.NoError(t, err)
	assert.Equal(t, "This release fixes the lock resolver.\n\n* Fix --lock with extras. (#2401)\n\n### Internal\n\n* Bump CI images.", body)

	body, err = e.Extract(ctx, "2.1.4")
	require.NoError(t, err)
	assert.Equal(t, "* Add --scie support.", body)

	body, err = e.Extract(ctx, "2.1.3")
	require.NoError(t, err)
	assert.Empty(t, body)

	body, err = e.Extract(ctx, "2.1.2")
	require.NoError(t, err)
	assert.Equal(t, "* Trailing entry.", body)
}

func TestExtract_NotFound(t *testing.T) {
	e := newExtractor(t, changes)
	_, err := e.Extract(context.Background(), "9.9.9")
	require.ErrorIs(t, err, release.ErrNotFound)

	// A prefix of a listed version is not a match.
	_, err = e.Extract(context.Background(), "2.1")
	require.ErrorIs(t, err, release.ErrNotFound)
}

func TestExtract_MissingFileIsNotFound(t *testing.T) {
	e := New(memfs.New(), "docs/CHANGES.md")
	_, err := e.Extract(context.Background(), "1.0.0")
	require.ErrorIs(t, err, release.ErrNotFound)
}

func TestExtract_OverlongLineIsAnError(t *testing.T) {
	doc := "# Notes\n\n" + strings.Repeat("x", 2*maxLine) + "\n\n## 1.2.3\n\nfixes\n"
	e := newExtractor(t, doc)

	_, err := e.Extract(context.Background(), "1.2.3")
	require.Error(t, err)
	assert.ErrorIs(t, err, bufio.ErrTooLong)
	assert.NotErrorIs(t, err, release.ErrNotFound)

	_, ok, err := Section([]byte(doc), "1.2.3")
	require.ErrorIs(t, err, bufio.ErrTooLong)
	assert.False(t, ok)
}

func TestHeading(t *testing.T) {
	tests := []struct {
		line  string
		level int
		title string
	}{
		{"## 1.0.0", 2, "1.0.0"},
		{"#1.0.0", 0, ""},
		{"   ### x", 3, "x"},
		{"    ## code block", 0, ""},
		{"####### too deep", 0, ""},
		{"plain", 0, ""},
	}
	for _, tt := range tests {
		lvl, title := heading(tt.line)
		assert.Equal(t, tt.level, lvl, tt.line)
		assert.Equal(t, tt.title, title, tt.line)
	}
}
