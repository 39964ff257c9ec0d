package registry

import (
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"time"

	"github.com/Masterminds/semver/v3"

	"releaseweaver/internal/release"
)

const (
	manifestName = "manifest.json"
	latestName   = "latest.json"
)

// Manifest is the committed record of one published version.
type Manifest struct {
	Project   string          `json:"project,omitempty"`
	Version   string          `json:"version"`
	Tag       string          `json:"tag"`
	Published time.Time       `json:"published"`
	Files     []ManifestEntry `json:"files"`
}

// ManifestEntry describes one stored artifact.
type ManifestEntry struct {
	Name   string `json:"name"`
	Key    string `json:"key"`
	Format string `json:"format"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// latest is the body of <prefix>/latest.json.
type latest struct {
	Version string `json:"version"`
	Tag     string `json:"tag"`
}

// entries maps artifacts to storage keys under dir. Basenames must be unique.
func entries(dir string, artifacts []release.Artifact) ([]ManifestEntry, error) {
	if len(artifacts) == 0 {
		return nil, fmt.Errorf("no artifacts to publish")
	}
	seen := make(map[string]bool, len(artifacts))
	out := make([]ManifestEntry, 0, len(artifacts))
	for _, a := range artifacts {
		name := path.Base(a.Path)
		if seen[name] {
			return nil, fmt.Errorf("two artifacts named %q", name)
		}
		seen[name] = true
		out = append(out, ManifestEntry{
			Name:   name,
			Key:    path.Join(dir, name),
			Format: string(a.Format),
			SHA256: a.Digest,
			Size:   a.Size,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func encodeManifest(m Manifest) ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// newerThan reports whether version should replace current as latest.
// An unparseable current value is always replaced.
func newerThan(version, current string) (bool, error) {
	v, err := semver.NewVersion(version)
	if err != nil {
		return false, fmt.Errorf("parse version %q: %w", version, err)
	}
	if current == "" {
		return true, nil
	}
	c, err := semver.NewVersion(current)
	if err != nil {
		return true, nil
	}
	return v.GreaterThan(c), nil
}

// releaseDir is the storage directory of a release. It is named after the
// tag so package links carry it.
func releaseDir(prefix, tag string) string {
	if prefix == "" {
		return tag
	}
	return path.Join(prefix, tag)
}

func latestKey(prefix string) string {
	if prefix == "" {
		return latestName
	}
	return path.Join(prefix, latestName)
}
