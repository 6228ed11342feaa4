// Package operation implements packman's unit of work: every filesystem
// mutation goes through an Operation, which backs up what it is about to
// change, remembers what it created and persists that record after each
// call. A failed or interrupted install can then be rolled back, even from
// a different process after a crash.
package operation

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jamesainslie/packman/pkg/packman/fsutil"
	"github.com/jamesainslie/packman/pkg/packman/logging"
	"github.com/jamesainslie/packman/pkg/packman/progress"
)

var logger = logging.Get("operation")

// DefaultUpdateInterval bounds how often download progress is reported.
const DefaultUpdateInterval = 400 * time.Millisecond

// Config is shared by every Operation of a process.
type Config struct {
	// ScratchDir holds temp paths and recovery files.
	ScratchDir string

	// Client performs downloads. Nil uses NewHTTPClient(30s).
	Client *http.Client

	// ChunkSize is the read size for streamed downloads.
	ChunkSize int

	// Retries is the number of attempts made to open a download.
	Retries uint

	// UpdateInterval bounds download progress callbacks.
	UpdateInterval time.Duration

	// OnRestoreProgress receives rollback progress when Restore is not
	// given its own callback.
	OnRestoreProgress progress.Func
}

func (c Config) withDefaults() Config {
	if c.Client == nil {
		c.Client = NewHTTPClient(30 * time.Second)
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 8192
	}
	if c.Retries == 0 {
		c.Retries = 1
	}
	if c.UpdateInterval <= 0 {
		c.UpdateInterval = DefaultUpdateInterval
	}
	c.OnRestoreProgress = progress.OrNoop(c.OnRestoreProgress)
	return c
}

// Operation records filesystem mutations so they can be undone.
// It is not safe for concurrent use; a single package's work is sequential.
type Operation struct {
	name      string
	cfg       Config
	statePath string

	newPaths  *pathSet
	newDirs   *pathSet
	tempPaths *pathSet
	backups   map[string]string
	lastPath  string
	closed    bool
}

// New starts an Operation called name. It fails with a
// *StateFileExistsError when a previous operation of the same name was
// interrupted and has not been recovered.
func New(name string, cfg Config) (*Operation, error) {
	cfg = cfg.withDefaults()
	if err := os.MkdirAll(cfg.ScratchDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating scratch directory: %w", err)
	}

	op := &Operation{
		name:      name,
		cfg:       cfg,
		statePath: StatePath(cfg.ScratchDir, name),
		newPaths:  newPathSet(),
		newDirs:   newPathSet(),
		tempPaths: newPathSet(),
		backups:   map[string]string{},
	}

	// O_EXCL makes claiming the name atomic.
	f, err := os.OpenFile(op.statePath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, &StateFileExistsError{Name: name, Path: op.statePath}
		}
		return nil, fmt.Errorf("creating state file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	if err := op.persist(); err != nil {
		_ = os.Remove(op.statePath)
		return nil, err
	}
	return op, nil
}

// Recover rebuilds the interrupted Operation called name from its
// recovery file. It returns ErrNoState when there is nothing to recover.
func Recover(name string, cfg Config) (*Operation, error) {
	cfg = cfg.withDefaults()
	path := StatePath(cfg.ScratchDir, name)

	st, err := LoadState(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoState
		}
		return nil, err
	}

	op := &Operation{
		name:      name,
		cfg:       cfg,
		statePath: path,
		newPaths:  newPathSet(st.NewPaths...),
		newDirs:   newPathSet(st.NewDirs...),
		tempPaths: newPathSet(st.TempPaths...),
		backups:   st.Backups,
	}
	if st.LastPath != nil {
		op.lastPath = *st.LastPath
	}
	return op, nil
}

// Pending reports whether an interrupted operation called name is waiting
// to be recovered.
func Pending(name string, cfg Config) bool {
	return fsutil.Exists(StatePath(cfg.ScratchDir, name))
}

// Name returns the lock name the operation was created under.
func (o *Operation) Name() string { return o.name }

// StatePath returns the operation's recovery file.
func (o *Operation) StatePath() string { return o.statePath }

// LastPath returns the most recently allocated temp path. After a source
// fetch it points at the extracted package directory.
func (o *Operation) LastPath() string { return o.lastPath }

// NewPaths returns every path created or overwritten, in order.
func (o *Operation) NewPaths() []string { return o.newPaths.slice() }

// TempPaths returns every live temp path, in order.
func (o *Operation) TempPaths() []string { return o.tempPaths.slice() }

// Backups returns a copy of the original path to backup path mapping.
func (o *Operation) Backups() map[string]string {
	out := make(map[string]string, len(o.backups))
	for k, v := range o.backups {
		out[k] = v
	}
	return out
}

func (o *Operation) state() *State {
	st := &State{
		NewPaths:  o.newPaths.slice(),
		NewDirs:   o.newDirs.slice(),
		TempPaths: o.tempPaths.slice(),
		Backups:   o.Backups(),
	}
	if o.lastPath != "" {
		last := o.lastPath
		st.LastPath = &last
	}
	return st
}

func (o *Operation) persist() error {
	if err := o.state().write(o.statePath); err != nil {
		return fmt.Errorf("persisting operation state: %w", err)
	}
	return nil
}

func (o *Operation) check() error {
	if o.closed {
		return ErrClosed
	}
	return nil
}

func abs(path string) (string, error) {
	p, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", path, err)
	}
	return p, nil
}

// TempPath allocates a temp path with the given extension, registers it
// for cleanup and makes it the last path. Nothing is created on disk.
func (o *Operation) TempPath(ext string) (string, error) {
	return o.allocTemp(ext, true)
}

func (o *Operation) allocTemp(ext string, last bool) (string, error) {
	if err := o.check(); err != nil {
		return "", err
	}
	path := fsutil.TempPath(o.cfg.ScratchDir, ext)
	o.tempPaths.add(path)
	if last {
		o.lastPath = path
	}
	if err := o.persist(); err != nil {
		return "", err
	}
	return path, nil
}

// ShouldBackup reports whether path has pre-existing content this
// operation has not yet saved. Paths the operation created itself or
// already backed up are never backed up again.
func (o *Operation) ShouldBackup(path string) bool {
	return !o.tempPaths.has(path) &&
		!o.newPaths.has(path) &&
		!o.hasBackup(path) &&
		fsutil.Exists(path)
}

func (o *Operation) hasBackup(path string) bool {
	_, ok := o.backups[path]
	return ok
}

// BackupFile copies path into a fresh temp path and records the mapping.
func (o *Operation) BackupFile(path string) (string, error) {
	path, err := abs(path)
	if err != nil {
		return "", err
	}
	backup, err := o.allocTemp("", false)
	if err != nil {
		return "", err
	}
	logger.Debug("backing up", "path", path, "backup", backup)
	if err := fsutil.CopyFile(path, backup); err != nil {
		return "", fmt.Errorf("backing up %s: %w", path, err)
	}
	o.backups[path] = backup
	if err := o.persist(); err != nil {
		return "", err
	}
	return backup, nil
}

// prepare backs up dest if needed and records it, along with every
// missing parent directory, before it is touched, so a crash mid-write
// still leaves it covered by rollback.
func (o *Operation) prepare(dest string) error {
	if err := o.check(); err != nil {
		return err
	}
	if o.ShouldBackup(dest) {
		if _, err := o.BackupFile(dest); err != nil {
			return err
		}
	}
	for dir := filepath.Dir(dest); !fsutil.Exists(dir); dir = filepath.Dir(dir) {
		o.newDirs.add(dir)
		if filepath.Dir(dir) == dir {
			break
		}
	}
	o.newPaths.add(dest)
	return o.persist()
}

// CopyFile copies src to dest, creating dest's parent directories.
func (o *Operation) CopyFile(src, dest string) error {
	dest, err := abs(dest)
	if err != nil {
		return err
	}
	if err := o.prepare(dest); err != nil {
		return err
	}
	logger.Debug("copying", "src", src, "dest", dest)
	if err := fsutil.CopyFile(src, dest); err != nil {
		return fmt.Errorf("copying %s: %w", src, err)
	}
	return nil
}

// WriteFile writes content to path, creating parent directories.
func (o *Operation) WriteFile(path string, content []byte) error {
	path, err := abs(path)
	if err != nil {
		return err
	}
	if err := o.prepare(path); err != nil {
		return err
	}
	logger.Debug("writing", "path", path, "bytes", len(content))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, content, 0o644)
}

// RemoveFile deletes path after backing it up. Removing one of the
// operation's own temp paths simply releases it.
func (o *Operation) RemoveFile(path string) error {
	if err := o.check(); err != nil {
		return err
	}
	path, err := abs(path)
	if err != nil {
		return err
	}
	if o.ShouldBackup(path) {
		if _, err := o.BackupFile(path); err != nil {
			return err
		}
	}

	logger.Debug("deleting", "path", path)
	if err := fsutil.RemovePath(path, ""); err != nil {
		return fmt.Errorf("deleting %s: %w", path, err)
	}
	o.tempPaths.remove(path)
	o.newPaths.remove(path)
	if o.lastPath == path {
		o.lastPath = ""
	}
	return o.persist()
}

// Restore undoes the operation: every new path is deleted and every backup
// is copied back over its original. It keeps going past failures and
// returns them joined. Progress covers one unit per path.
func (o *Operation) Restore(onProgress progress.Func) error {
	if onProgress == nil {
		onProgress = o.cfg.OnRestoreProgress
	}
	steps := progress.NewSteps(o.newPaths.len()+len(o.backups), onProgress)
	onProgress(0)

	var errs []error
	for _, path := range o.newPaths.slice() {
		logger.Debug("cleaning up", "path", path)
		if err := fsutil.RemovePath(path, ""); err != nil {
			logger.Error("failed to clean up file", "path", path, "error", err)
			errs = append(errs, fmt.Errorf("removing %s: %w", path, err))
			continue
		}
		steps.Advance()
	}

	for _, dest := range sortedKeys(o.backups) {
		src := o.backups[dest]
		logger.Debug("restoring", "backup", src, "path", dest)
		if err := fsutil.CopyFile(src, dest); err != nil {
			logger.Error("failed to restore file", "path", dest, "error", err)
			errs = append(errs, fmt.Errorf("restoring %s: %w", dest, err))
			continue
		}
		steps.Advance()
	}
	o.removeNewDirs()

	onProgress(1)
	return errors.Join(errs...)
}

// removeNewDirs deletes the directories the operation created, deepest
// first. A directory that still has entries was reused by something else
// and stays.
func (o *Operation) removeNewDirs() {
	dirs := o.newDirs.slice()
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, dir := range dirs {
		if err := os.Remove(dir); err != nil && !os.IsNotExist(err) {
			logger.Debug("keeping directory", "path", dir, "error", err)
		}
	}
}

// Abort restores and then closes the operation.
func (o *Operation) Abort(onProgress progress.Func) error {
	logger.Debug("aborting operation", "name", o.name)
	err := o.Restore(onProgress)
	o.Close()
	return err
}

// Close discards every temp path and the recovery file. Failures are
// logged, not returned. Close is idempotent.
func (o *Operation) Close() {
	if o.closed {
		return
	}
	o.closed = true

	for _, path := range o.tempPaths.slice() {
		if err := fsutil.RemovePath(path, ""); err != nil {
			logger.Warn("failed to discard temporary path", "path", path, "error", err)
		}
	}
	if err := os.Remove(o.statePath); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to remove state file", "path", o.statePath, "error", err)
	}
}
