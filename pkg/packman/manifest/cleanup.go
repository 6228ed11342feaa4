package manifest

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"

	"github.com/jamesainslie/packman/pkg/packman/fsutil"
)

// CleanupFiles rebuilds the ownership map and settles every file that is
// no longer claimed by a package. A file whose content is still something
// packman wrote is deleted, or restored from its pre-packman backup. A file
// that was changed by something else becomes an orphan and is left alone,
// unless removeOrphans is set, in which case it is deleted together with
// its backup. A missing file with a backup gets the backup put back.
func (m *Manifest) CleanupFiles(removeOrphans bool) error {
	fileMap := m.buildFileMap()

	candidates := map[string]struct{}{}
	for f := range m.fileMap {
		candidates[f] = struct{}{}
	}
	for f := range m.checksumHistory {
		candidates[f] = struct{}{}
	}
	for f := range m.orphaned {
		candidates[f] = struct{}{}
	}
	paths := make([]string, 0, len(candidates))
	for f := range candidates {
		paths = append(paths, f)
	}
	sort.Strings(paths)

	var errs []error
	for _, f := range paths {
		if _, owned := fileMap[f]; owned {
			delete(m.orphaned, f)
			continue
		}
		if err := m.release(f, removeOrphans); err != nil {
			logger.Error("failed to clean up file", "path", f, "error", err)
			errs = append(errs, err)
		}
	}
	m.fileMap = fileMap
	return errors.Join(errs...)
}

func (m *Manifest) release(path string, force bool) error {
	backup, hasBackup := m.originalFiles[path]

	if !fsutil.Exists(path) {
		if hasBackup {
			if err := restoreOriginal(path, backup); err != nil {
				return err
			}
		}
		m.forget(path)
		return nil
	}

	sum, err := fsutil.Checksum(path)
	if err != nil {
		return fmt.Errorf("checksumming %s: %w", path, err)
	}

	if slices.Contains(m.checksumHistory[path], sum) {
		if hasBackup {
			logger.Debug("restoring original file", "path", path)
			err = restoreOriginal(path, backup)
		} else {
			logger.Debug("removing unclaimed file", "path", path)
			err = m.remove(path)
		}
		if err != nil {
			return err
		}
		m.forget(path)
		return nil
	}

	if force {
		return m.discard(path, m.remove)
	}
	if _, ok := m.orphaned[path]; !ok {
		logger.Warn("file was modified outside packman, keeping it as an orphan", "path", path)
		m.orphaned[path] = struct{}{}
	}
	return nil
}

// ResolveOrphans deletes every orphaned file with remove, or with the
// manifest's remover when remove is nil, and drops its backup. It returns
// the number of orphans resolved.
func (m *Manifest) ResolveOrphans(remove Remover) (int, error) {
	if remove == nil {
		remove = m.remove
	}
	var (
		errs     []error
		resolved int
	)
	for _, f := range m.OrphanedFiles() {
		if err := m.discard(f, remove); err != nil {
			errs = append(errs, err)
			continue
		}
		resolved++
	}
	return resolved, errors.Join(errs...)
}

func (m *Manifest) discard(path string, remove Remover) error {
	logger.Debug("removing orphaned file", "path", path)
	if err := remove(path); err != nil {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	if backup, ok := m.originalFiles[path]; ok {
		if err := os.Remove(backup); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to remove backup", "path", backup, "error", err)
		}
	}
	m.forget(path)
	return nil
}

func (m *Manifest) forget(path string) {
	delete(m.originalFiles, path)
	delete(m.checksumHistory, path)
	delete(m.orphaned, path)
}

func restoreOriginal(path, backup string) error {
	if err := fsutil.CopyFile(backup, path); err != nil {
		return fmt.Errorf("restoring %s: %w", path, err)
	}
	if err := os.Remove(backup); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to remove backup", "path", backup, "error", err)
	}
	return nil
}
