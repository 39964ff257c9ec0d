package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"releaseweaver/internal/release"
)

// Memory is an in-process registry with the same conflict semantics as S3.
type Memory struct {
	baseURL string

	mu        sync.Mutex
	manifests map[string]Manifest
	latest    string
}

// NewMemory returns an empty registry whose package links start with baseURL.
func NewMemory(baseURL string) *Memory {
	if baseURL == "" {
		baseURL = "memory://registry"
	}
	return &Memory{
		baseURL:   strings.TrimRight(baseURL, "/"),
		manifests: map[string]Manifest{},
	}
}

// Publish records the version, failing with a conflict if it exists.
func (m *Memory) Publish(_ context.Context, rel release.Release, artifacts []release.Artifact, _ release.Credentials) (release.PackageRecord, error) {
	files, err := entries(releaseDir("", rel.Tag), artifacts)
	if err != nil {
		return release.PackageRecord{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.manifests[rel.Version]; ok {
		return release.PackageRecord{}, release.ConflictError("publish", fmt.Sprintf("version %s is already published", rel.Version))
	}
	m.manifests[rel.Version] = Manifest{Version: rel.Version, Tag: rel.Tag, Published: time.Now().UTC(), Files: files}
	if newer, err := newerThan(rel.Version, m.latest); err == nil && newer {
		m.latest = rel.Version
	}
	return release.PackageRecord{Version: rel.Version, URL: m.baseURL + "/" + releaseDir("", rel.Tag) + "/"}, nil
}

// Manifest returns the manifest of a published version.
func (m *Memory) Manifest(version string) (Manifest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	man, ok := m.manifests[version]
	return man, ok
}

// Latest returns the highest published version.
func (m *Memory) Latest() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest
}
