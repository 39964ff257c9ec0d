package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"releaseweaver/internal/release"
)

// writeTrace writes the canonical trace of run to path. Runs that aborted
// before scheduling have no trace and write nothing.
func writeTrace(path string, run *release.Run) error {
	if run == nil || run.GraphHash == "" {
		return nil
	}
	data, err := run.Trace.CanonicalJSON()
	if err != nil {
		return fmt.Errorf("encode trace: %w", err)
	}
	if err := writeFileAtomic(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write trace: %w", err)
	}
	return nil
}

// writeFileAtomic replaces path with data through a synced temp file and a
// rename, so readers see the old content or the new, never a torn file.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
