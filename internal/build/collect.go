package build

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// collect expands the declared output patterns relative to baseDir.
//
// Every pattern must match at least one regular file; a recipe that
// produced nothing for a declared output has failed. Directories are walked
// recursively. The result is sorted and free of duplicates.
func collect(baseDir string, patterns []string) ([]string, error) {
	var all []string
	for _, pattern := range patterns {
		full := pattern
		if !filepath.IsAbs(pattern) {
			full = filepath.Join(baseDir, pattern)
		}

		matches, err := filepath.Glob(full)
		if err != nil {
			return nil, fmt.Errorf("bad output pattern %q: %w", pattern, err)
		}
		var files []string
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil {
				return nil, fmt.Errorf("stat output %q: %w", m, err)
			}
			if !info.IsDir() {
				files = append(files, m)
				continue
			}
			walked, err := filesUnder(m)
			if err != nil {
				return nil, fmt.Errorf("collecting files from %q: %w", m, err)
			}
			files = append(files, walked...)
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("declared output %q matched no files", pattern)
		}
		all = append(all, files...)
	}

	sort.Strings(all)
	return dedupSorted(all), nil
}

func filesUnder(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

func dedupSorted(sorted []string) []string {
	if len(sorted) == 0 {
		return sorted
	}
	out := sorted[:1]
	for _, s := range sorted[1:] {
		if s != out[len(out)-1] {
			out = append(out, s)
		}
	}
	return out
}

// Digest returns the hex sha256 and size of the file at path.
func Digest(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("hashing %q: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
