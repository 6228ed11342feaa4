// Package installer composes definitions, sources, the cache, steps,
// operations and the manifest into packman's user-level actions: install,
// uninstall, update, validate, recover, clean, export and import.
//
// Installs of a single process are serialized: every attempt runs inside an
// operation.Operation claimed under Config.LockName, and at most one such
// operation can exist until it is closed or recovered.
package installer

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/jamesainslie/packman/pkg/packman/cache"
	"github.com/jamesainslie/packman/pkg/packman/definition"
	"github.com/jamesainslie/packman/pkg/packman/logging"
	"github.com/jamesainslie/packman/pkg/packman/manifest"
	"github.com/jamesainslie/packman/pkg/packman/operation"
	"github.com/jamesainslie/packman/pkg/packman/progress"
	"github.com/jamesainslie/packman/pkg/packman/source"
)

var logger = logging.Get("installer")

// DefaultLockName keys the recovery file of install operations.
const DefaultLockName = "packman"

// Config locates everything an Installer reads and writes.
type Config struct {
	DefinitionsDir string
	ManifestPath   string
	// RootDir is the game installation packages are installed into.
	RootDir string
	// BackupDir keeps the pre-packman content of overwritten files.
	BackupDir string
	// LockName keys the operation recovery file.
	LockName string

	GitURL    string
	GitSubdir string

	Operation operation.Config
	Sources   source.Env
}

// Option configures an Installer.
type Option func(*Installer)

// WithCache enables the archive cache. Without it every install downloads.
func WithCache(c *cache.Cache) Option {
	return func(i *Installer) { i.cache = c }
}

// WithCloner replaces the git client used by Update.
func WithCloner(c Cloner) Option {
	return func(i *Installer) { i.cloner = c }
}

// WithLoader replaces the definition loader.
func WithLoader(l *definition.Loader) Option {
	return func(i *Installer) { i.defs = l }
}

// Installer is packman's orchestrator. It is not safe for concurrent use.
type Installer struct {
	cfg    Config
	defs   *definition.Loader
	cache  *cache.Cache
	cloner Cloner

	manifest *manifest.Manifest
}

// New returns an Installer for cfg.
func New(cfg Config, opts ...Option) (*Installer, error) {
	if cfg.ManifestPath == "" || cfg.RootDir == "" || cfg.DefinitionsDir == "" || cfg.BackupDir == "" {
		return nil, errors.New("installer: definitions dir, manifest path, root dir and backup dir are required")
	}
	root, err := filepath.Abs(cfg.RootDir)
	if err != nil {
		return nil, fmt.Errorf("resolving root dir: %w", err)
	}
	cfg.RootDir = root
	if cfg.LockName == "" {
		cfg.LockName = DefaultLockName
	}
	if cfg.Operation.Client != nil && cfg.Sources.Client == nil {
		cfg.Sources.Client = cfg.Operation.Client
	}

	i := &Installer{cfg: cfg, cloner: GitCloner{}}
	for _, opt := range opts {
		opt(i)
	}
	if i.defs == nil {
		i.defs = definition.NewLoader(cfg.DefinitionsDir, cfg.Sources)
	}
	return i, nil
}

// Config returns the effective configuration.
func (i *Installer) Config() Config { return i.cfg }

// Definitions returns the definition loader.
func (i *Installer) Definitions() *definition.Loader { return i.defs }

// Manifest returns the manifest, loading it on first use.
func (i *Installer) Manifest() (*manifest.Manifest, error) {
	if i.manifest != nil {
		return i.manifest, nil
	}
	m, err := manifest.FromPath(i.cfg.ManifestPath, manifest.WithRoot(i.cfg.RootDir))
	if err != nil {
		return nil, err
	}
	i.manifest = m
	return m, nil
}

// discardManifest drops the in-memory manifest so the next use rereads the
// last saved state.
func (i *Installer) discardManifest() {
	i.manifest = nil
}

// save runs the manifest's cleanup, checksum refresh and write.
func (i *Installer) save(m *manifest.Manifest, onProgress progress.Func) error {
	if err := m.UpdateFiles(i.cfg.ManifestPath, onProgress); err != nil {
		i.discardManifest()
		return fmt.Errorf("saving manifest: %w", err)
	}
	return nil
}

// Definition returns the named package's definition.
func (i *Installer) Definition(name string) (*definition.Definition, error) {
	def, err := i.defs.Load(name)
	if err != nil {
		if errors.Is(err, definition.ErrNotFound) {
			return nil, &PackageNotFoundError{Name: name, Suggestions: i.Suggest(name)}
		}
		return nil, err
	}
	return def, nil
}

// newOperation starts an operation under the lock name.
func (i *Installer) newOperation() (*operation.Operation, error) {
	return operation.New(i.cfg.LockName, i.cfg.Operation)
}

// Pending reports whether an interrupted operation awaits recovery.
func (i *Installer) Pending() bool {
	return operation.Pending(i.cfg.LockName, i.cfg.Operation)
}

// checkPending refuses to touch the install while an interrupted operation
// still has to be rolled back.
func (i *Installer) checkPending() error {
	if i.Pending() {
		return &operation.StateFileExistsError{
			Name: i.cfg.LockName,
			Path: operation.StatePath(i.cfg.Operation.ScratchDir, i.cfg.LockName),
		}
	}
	return nil
}
