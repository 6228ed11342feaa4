package installer

import (
	"errors"
	"fmt"

	"github.com/jamesainslie/packman/pkg/packman/manifest"
	"github.com/jamesainslie/packman/pkg/packman/operation"
	"github.com/jamesainslie/packman/pkg/packman/progress"
	"github.com/jamesainslie/packman/pkg/packman/trash"
)

// Uninstall removes the named package. Saving the manifest deletes the
// files no other package claims, restores the ones packman overwrote and
// leaves modified ones behind as orphans. It reports whether the package
// was installed.
func (i *Installer) Uninstall(name string, onProgress progress.Func) (bool, error) {
	onProgress = progress.Monotonic(onProgress)
	onProgress(0)

	if err := i.checkPending(); err != nil {
		return false, err
	}
	m, err := i.Manifest()
	if err != nil {
		return false, err
	}
	if !m.Delete(name) {
		logger.Info("not installed, nothing to do", "package", name)
		return false, nil
	}
	if err := i.save(m, onProgress); err != nil {
		return false, fmt.Errorf("uninstalling %s: %w", name, err)
	}
	onProgress(1)
	logger.Info("uninstalled", "package", name)
	return true, nil
}

// Validate returns the files of the named package whose content changed
// since it was installed. Nothing is modified.
func (i *Installer) Validate(name string) ([]string, error) {
	m, err := i.Manifest()
	if err != nil {
		return nil, err
	}
	if !m.Has(name) {
		return nil, fmt.Errorf("%w: %s", ErrNotInstalled, name)
	}
	return m.Verify(name)
}

// Recover rolls back the operation interrupted under the lock name,
// reporting rollback progress. It returns ErrNothingToRecover when there
// is none.
func (i *Installer) Recover(onProgress progress.Func) error {
	op, err := operation.Recover(i.cfg.LockName, i.cfg.Operation)
	if err != nil {
		return err
	}
	logger.Info("recovering interrupted operation", "state", op.StatePath(),
		"new_paths", len(op.NewPaths()), "backups", len(op.Backups()))

	var abortErr error
	interrupted := operation.Uninterruptible(func() {
		abortErr = op.Abort(onProgress)
	})
	// The rolled back operation may have been mid-save.
	i.discardManifest()
	if abortErr != nil {
		abortErr = fmt.Errorf("recovery incomplete: %w", abortErr)
	}
	if interrupted {
		return errors.Join(operation.ErrCancelled, abortErr)
	}
	return abortErr
}

// Orphans lists files left behind because they were modified after
// packman wrote them.
func (i *Installer) Orphans() ([]string, error) {
	m, err := i.Manifest()
	if err != nil {
		return nil, err
	}
	return m.OrphanedFiles(), nil
}

// Clean removes orphaned files, or moves them to the system trash when
// useTrash is set, and saves the manifest. It returns the number of
// orphans resolved.
func (i *Installer) Clean(useTrash bool) (int, error) {
	if err := i.checkPending(); err != nil {
		return 0, err
	}
	m, err := i.Manifest()
	if err != nil {
		return 0, err
	}

	var remove manifest.Remover
	if useTrash {
		remove = trash.New(i.cfg.RootDir).Move
	}
	n, resolveErr := m.ResolveOrphans(remove)
	if err := m.WriteJSON(i.cfg.ManifestPath); err != nil {
		i.discardManifest()
		return n, errors.Join(resolveErr, err)
	}
	return n, resolveErr
}
