// Package gitref finds the release tag of a checked-out repository.
package gitref

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"releaseweaver/internal/release"
)

const op = "gitref"

// Open opens the repository containing dir.
func Open(dir string) (*git.Repository, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, release.ConfigurationError(op, fmt.Errorf("open repository %s: %w", dir, err))
	}
	return repo, nil
}

// HeadRef returns the tag ref (refs/tags/vX.Y.Z) pointing at HEAD.
//
// Tags that are not release tags are ignored. When several release tags
// point at HEAD the highest version wins.
func HeadRef(repo *git.Repository) (string, error) {
	head, err := repo.Head()
	if err != nil {
		return "", release.NotFoundError(op, fmt.Sprintf("resolve HEAD: %v", err))
	}

	tags, err := repo.Tags()
	if err != nil {
		return "", fmt.Errorf("list tags: %w", err)
	}

	var best release.Release
	var bestRef plumbing.ReferenceName
	err = tags.ForEach(func(ref *plumbing.Reference) error {
		target, err := commitOf(repo, ref)
		if err != nil {
			return err
		}
		if target != head.Hash() {
			return nil
		}
		rel, err := release.ParseTag(ref.Name().Short())
		if err != nil {
			return nil
		}
		if best.IsZero() || rel.Semver().GreaterThan(best.Semver()) {
			best, bestRef = rel, ref.Name()
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if best.IsZero() {
		return "", release.NotFoundError(op, fmt.Sprintf("no release tag points at %s", head.Hash().String()[:7]))
	}
	return bestRef.String(), nil
}

// commitOf peels annotated tags down to the commit they point at.
func commitOf(repo *git.Repository, ref *plumbing.Reference) (plumbing.Hash, error) {
	tag, err := repo.TagObject(ref.Hash())
	switch {
	case errors.Is(err, plumbing.ErrObjectNotFound):
		return ref.Hash(), nil
	case err != nil:
		return plumbing.ZeroHash, fmt.Errorf("read tag %s: %w", ref.Name().Short(), err)
	}
	commit, err := tag.Commit()
	if err != nil {
		// Tags of trees or blobs cannot be release tags.
		return plumbing.ZeroHash, nil
	}
	return commit.Hash, nil
}
