package releasehost

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"releaseweaver/internal/release"
)

// Memory is an in-process release host. Like a real host it refuses a
// second release for the same tag.
type Memory struct {
	baseURL string

	mu       sync.Mutex
	releases map[string]release.ReleaseRequest
	nextID   int
}

// NewMemory returns an empty host whose release links start with baseURL.
func NewMemory(baseURL string) *Memory {
	if baseURL == "" {
		baseURL = "memory://releases"
	}
	return &Memory{baseURL: strings.TrimRight(baseURL, "/"), releases: map[string]release.ReleaseRequest{}}
}

func (m *Memory) CreateRelease(_ context.Context, req release.ReleaseRequest) (release.ReleaseRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.releases[req.Tag]; ok {
		return release.ReleaseRecord{}, release.ConflictError("create-release", "release already exists")
	}
	m.nextID++
	m.releases[req.Tag] = req
	return release.ReleaseRecord{
		ID:  strconv.Itoa(m.nextID),
		Tag: req.Tag,
		URL: m.baseURL + "/tag/" + req.Tag,
	}, nil
}

// Release returns the request a release was created from.
func (m *Memory) Release(tag string) (release.ReleaseRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.releases[tag]
	return r, ok
}
