package release

import (
	"context"
	"errors"
	"sync"
	"time"
)

type fakeBuilder struct {
	mu    sync.Mutex
	calls [][]Format
	err   error
}

func (b *fakeBuilder) Build(_ context.Context, rel Release, formats []Format) ([]Artifact, error) {
	b.mu.Lock()
	b.calls = append(b.calls, formats)
	b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	out := make([]Artifact, 0, len(formats))
	for _, f := range formats {
		out = append(out, Artifact{Path: "dist/app-" + rel.Version + "." + string(f), Format: f, Digest: "d-" + string(f)})
	}
	return out, nil
}

type fakeRegistry struct {
	mu        sync.Mutex
	published map[string]bool
	err       error
	started   chan struct{}
	wait      <-chan struct{}
}

func (r *fakeRegistry) Publish(_ context.Context, rel Release, _ []Artifact, _ Credentials) (PackageRecord, error) {
	if r.started != nil {
		close(r.started)
	}
	if r.wait != nil {
		select {
		case <-r.wait:
		case <-time.After(5 * time.Second):
			return PackageRecord{}, errors.New("release job never started")
		}
	}
	if r.err != nil {
		return PackageRecord{}, r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.published == nil {
		r.published = map[string]bool{}
	}
	if r.published[rel.Version] {
		return PackageRecord{}, ConflictError("publish", "version "+rel.Version+" already published")
	}
	r.published[rel.Version] = true
	return PackageRecord{Version: rel.Version, URL: "https://pkg.example/app/" + rel.Tag + "/"}, nil
}

type fakeHost struct {
	mu       sync.Mutex
	releases map[string]ReleaseRequest
	err      error
	started  chan struct{}
}

func (h *fakeHost) CreateRelease(_ context.Context, req ReleaseRequest) (ReleaseRecord, error) {
	if h.started != nil {
		close(h.started)
	}
	if h.err != nil {
		return ReleaseRecord{}, h.err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.releases == nil {
		h.releases = map[string]ReleaseRequest{}
	}
	if _, ok := h.releases[req.Tag]; ok {
		return ReleaseRecord{}, ConflictError("create-release", "release already exists")
	}
	h.releases[req.Tag] = req
	return ReleaseRecord{ID: "1", Tag: req.Tag, URL: "https://git.example/app/releases/tag/" + req.Tag}, nil
}

type fakeChangelog struct {
	entries map[string]string
}

func (c fakeChangelog) Extract(_ context.Context, version string) (string, error) {
	if body, ok := c.entries[version]; ok {
		return body, nil
	}
	return "", NotFoundError("changelog", "no entry for "+version)
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (n *fakeNotifier) Send(_ context.Context, msg Message) error {
	if n.err != nil {
		return n.err
	}
	n.mu.Lock()
	n.sent = append(n.sent, msg)
	n.mu.Unlock()
	return nil
}

type fixture struct {
	builder  *fakeBuilder
	registry *fakeRegistry
	host     *fakeHost
	notifier *fakeNotifier
	collab   Collaborators
}

func newFixture() *fixture {
	f := &fixture{
		builder:  &fakeBuilder{},
		registry: &fakeRegistry{},
		host:     &fakeHost{},
		notifier: &fakeNotifier{},
	}
	f.collab = Collaborators{
		Builder:   f.builder,
		Registry:  f.registry,
		Host:      f.host,
		Changelog: fakeChangelog{entries: map[string]string{"1.2.3": "## 1.2.3\n\n* Fixed things."}},
		Notifier:  f.notifier,
	}
	return f
}

var testSettings = Settings{
	Project:        "app",
	PackageFormats: []Format{"sdist", "wheel"},
	ReleaseFormats: []Format{"pex"},
}

var owner = AccessGuard{Owner: "acme"}

var trusted = Principal{Owner: "acme", Repository: "acme/app", Actor: "maintainer"}
