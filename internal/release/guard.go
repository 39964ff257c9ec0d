package release

import "strings"

// Principal identifies who triggered a run and from where.
type Principal struct {
	// Owner is the account that owns the repository the trigger came from.
	Owner string
	// Repository is "owner/name".
	Repository string
	// Actor is the user that caused the trigger. Informational only.
	Actor string
}

// AccessGuard decides whether a principal may release.
//
// Owner comparison is case-insensitive. An empty Repository allows any
// repository of the owner. An empty Owner denies everyone.
type AccessGuard struct {
	Owner      string
	Repository string
}

// Check reports whether p may run a release. It never fails: a false result
// skips the run rather than erroring it.
func (g AccessGuard) Check(p Principal) bool {
	if g.Owner == "" || !strings.EqualFold(g.Owner, p.Owner) {
		return false
	}
	if g.Repository == "" {
		return true
	}
	return strings.EqualFold(g.Repository, p.Repository)
}
