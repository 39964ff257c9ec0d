package release

import "strings"

const tagRefPrefix = "refs/tags/"

// Event is a raw release trigger.
type Event struct {
	// Ref is the push-derived reference, either fully qualified
	// ("refs/tags/v1.2.3") or a bare tag name.
	Ref string

	// ManualTag is the tag given on manual invocation. When non-empty it
	// takes precedence over Ref.
	ManualTag string

	// Principal is who triggered the run. It is checked by the AccessGuard,
	// never by the resolver.
	Principal Principal
}

// Source reports which field of the event Resolve reads.
func (e Event) Source() string {
	if strings.TrimSpace(e.ManualTag) != "" {
		return "manual"
	}
	return "ref"
}

// Resolve turns a trigger event into a Release.
//
// A non-blank ManualTag wins over Ref. Values are matched as given;
// surrounding whitespace makes a tag malformed. A "refs/tags/" prefix is stripped
// from Ref; any other "refs/" ref (a branch, a pull request) cannot name a
// release and is rejected as a malformed tag.
func Resolve(event Event) (Release, error) {
	if strings.TrimSpace(event.ManualTag) != "" {
		return ParseTag(event.ManualTag)
	}

	ref := event.Ref
	if strings.TrimSpace(ref) == "" {
		return Release{}, ValidationError("resolve", "no tag given")
	}
	if strings.HasPrefix(ref, tagRefPrefix) {
		return ParseTag(strings.TrimPrefix(ref, tagRefPrefix))
	}
	if strings.HasPrefix(ref, "refs/") {
		return Release{}, ValidationError("resolve", "malformed tag: %q is not a tag ref", ref)
	}
	return ParseTag(ref)
}
