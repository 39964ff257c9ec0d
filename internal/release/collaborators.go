package release

import "context"

// Format names a kind of build artifact, e.g. "sdist", "wheel" or "pex".
type Format string

// Artifact is one built file.
type Artifact struct {
	Path   string
	Format Format
	// Digest is the hex sha256 of the file contents.
	Digest string
	Size   int64
}

// ArtifactBuilder produces the artifacts for a set of formats. It is called
// once per publish job with the formats that job needs.
type ArtifactBuilder interface {
	Build(ctx context.Context, rel Release, formats []Format) ([]Artifact, error)
}

// Credentials are passed through to a registry untouched.
type Credentials struct {
	Username string
	Token    string
}

// IsZero reports whether no credentials were supplied.
func (c Credentials) IsZero() bool { return c.Username == "" && c.Token == "" }

// PackageRecord describes a successful registry publish.
type PackageRecord struct {
	Version string
	// URL is the canonical link to the published version.
	URL string
}

// PackagePublisher publishes artifacts to a package registry.
//
// Publishing a version that already exists must fail with ErrConflict.
// Rejected credentials must fail with ErrAuth.
type PackagePublisher interface {
	Publish(ctx context.Context, rel Release, artifacts []Artifact, creds Credentials) (PackageRecord, error)
}

// ReleaseRequest is everything a release host needs to create a release.
type ReleaseRequest struct {
	Tag       string
	Title     string
	Body      string
	Artifacts []Artifact
}

// ReleaseRecord describes a created release.
type ReleaseRecord struct {
	ID  string
	Tag string
	// URL is the canonical link to the release page.
	URL string
}

// ReleaseHost creates immutable release records.
//
// Creating a release for a tag that already has one must fail with
// ErrConflict and the message "release already exists".
type ReleaseHost interface {
	CreateRelease(ctx context.Context, req ReleaseRequest) (ReleaseRecord, error)
}

// ChangelogExtractor returns the changelog text for a version, or an error
// matching ErrNotFound when the changelog has no entry for it.
type ChangelogExtractor interface {
	Extract(ctx context.Context, version string) (string, error)
}

// Message is a release announcement.
type Message struct {
	Title      string
	Version    string
	Tag        string
	PackageURL string
	ReleaseURL string
}

// Notifier delivers announcements.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}
