package release

import (
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var tagPattern = regexp.MustCompile(`^v[0-9]+\.[0-9]+\.[0-9]+$`)

// Release is the resolved identity of one release run. Every job observes
// the same value.
type Release struct {
	// Tag is the canonical identifier, e.g. "v1.2.3".
	Tag string
	// Version is Tag without the leading "v", e.g. "1.2.3".
	Version string

	semver *semver.Version
}

// ParseTag validates tag and derives the version from it.
//
// Only the exact form vMAJOR.MINOR.PATCH is accepted. Pre-release and build
// suffixes are rejected, as are components that do not fit in a uint64.
func ParseTag(tag string) (Release, error) {
	if !tagPattern.MatchString(tag) {
		return Release{}, ValidationError("resolve", "malformed tag %q", tag)
	}
	version := strings.TrimPrefix(tag, "v")
	sv, err := semver.NewVersion(version)
	if err != nil {
		return Release{}, ValidationError("resolve", "malformed tag %q: %v", tag, err)
	}
	return Release{Tag: tag, Version: version, semver: sv}, nil
}

// Semver returns the parsed version.
func (r Release) Semver() *semver.Version {
	if r.semver == nil {
		sv, err := semver.NewVersion(r.Version)
		if err != nil {
			return nil
		}
		return sv
	}
	return r.semver
}

// IsZero reports whether r was never resolved.
func (r Release) IsZero() bool { return r.Tag == "" }

func (r Release) String() string { return r.Tag }
