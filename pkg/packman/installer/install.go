package installer

import (
	"context"
	"errors"
	"fmt"

	"github.com/jamesainslie/packman/pkg/packman/definition"
	"github.com/jamesainslie/packman/pkg/packman/fsutil"
	"github.com/jamesainslie/packman/pkg/packman/manifest"
	"github.com/jamesainslie/packman/pkg/packman/operation"
	"github.com/jamesainslie/packman/pkg/packman/progress"
	"github.com/jamesainslie/packman/pkg/packman/source"
)

// InstallOptions adjusts a single install.
type InstallOptions struct {
	// Force reinstalls a version that is already installed.
	Force bool
	// NoCache skips the archive cache lookup. The cache is still filled.
	NoCache bool
}

// Install installs version of the named package, or its latest version
// when version is empty. It reports whether anything changed; installing
// the installed version again without Force is a no-op.
//
// Progress is reported in 2+len(steps) equal units: fetching, each step
// and saving the manifest.
func (i *Installer) Install(ctx context.Context, name, version string, opts InstallOptions, onProgress progress.Func) (bool, error) {
	def, err := i.Definition(name)
	if err != nil {
		return false, err
	}

	steps := progress.NewSteps(2+len(def.Steps), progress.Monotonic(onProgress))
	steps.Report(0)

	log := logger.With("package", name)
	log.Info("resolving version", "version", versionLabel(version))
	info, err := i.resolve(ctx, def, version)
	if err != nil {
		return false, err
	}
	log = log.With("version", versionLabel(info.Version))
	log.Info("resolved version")

	m, err := i.Manifest()
	if err != nil {
		return false, err
	}
	if pkg, ok := m.Get(name); ok && pkg.Version == info.Version {
		if !opts.Force {
			log.Info("already installed")
			return false, nil
		}
		log.Info("reinstalling")
	}

	op, cached, err := i.fetch(ctx, def, info, opts.NoCache, steps)
	if err != nil {
		return false, err
	}
	packagePath := op.LastPath()

	err = op.Run(ctx, func(ctx context.Context) error {
		if !cached {
			i.populateCache(def.ID, info, packagePath)
		}

		log.Info("installing")
		for _, s := range def.Steps {
			if err := s.Execute(ctx, op, packagePath, i.cfg.RootDir, steps.Func()); err != nil {
				return fmt.Errorf("step %s: %w", s.Name, err)
			}
			steps.Advance()
		}

		files := op.NewPaths()
		if len(files) == 0 {
			return ErrNoFiles
		}

		if err := i.commitBackups(op, m); err != nil {
			return err
		}
		pkg := &manifest.Package{Version: info.Version, Files: files}
		if opt := info.Option(); opt != "" {
			pkg.Options = []string{opt}
		}
		if err := m.Put(name, pkg); err != nil {
			return err
		}
		return i.save(m, steps.Func())
	})
	if err != nil {
		i.discardManifest()
		return false, fmt.Errorf("installing %s: %w", name, err)
	}

	steps.Advance()
	log.Info("installed")
	return true, nil
}

// resolve asks each source in order for version info; the first answer
// wins.
func (i *Installer) resolve(ctx context.Context, def *definition.Definition, version string) (*source.Version, error) {
	var causes []error
	for _, src := range def.Sources {
		var (
			info *source.Version
			err  error
		)
		if version == "" {
			info, err = src.LatestVersion(ctx)
		} else {
			info, err = src.Version(ctx, version)
		}
		if err == nil {
			return info, nil
		}
		logger.Error("failed to load version info from source", "package", def.ID, "source", src.Type(), "error", err)
		causes = append(causes, fmt.Errorf("%s: %w", src.Type(), err))
		if ctx.Err() != nil {
			return nil, errors.Join(operation.ErrCancelled, ctx.Err())
		}
	}
	return nil, &VersionNotFoundError{Package: def.ID, Version: version, Causes: causes}
}

// fetch obtains the package files, from the cache when possible and
// otherwise from the first source that delivers them. Every attempt gets a
// fresh operation; a failed attempt is rolled back before the next one.
// The returned operation's last path is the package directory.
func (i *Installer) fetch(ctx context.Context, def *definition.Definition, info *source.Version, noCache bool, steps *progress.Steps) (*operation.Operation, bool, error) {
	log := logger.With("package", def.ID, "version", versionLabel(info.Version))
	var causes []error

	if !noCache && i.cache != nil {
		op, err := i.newOperation()
		if err != nil {
			return nil, false, err
		}
		err = i.cache.FetchVersion(op, def.ID, info.Version, steps.Func())
		if err == nil && op.LastPath() == "" {
			err = errors.New("cache did not produce a package directory")
		}
		if err == nil {
			log.Info("retrieved from cache")
			steps.Advance()
			return op, true, nil
		}
		log.Info("not found in cache", "reason", err)
		causes = append(causes, fmt.Errorf("cache: %w", err))
		abort(op)
	}

	log.Info("downloading")
	for _, src := range def.Sources {
		op, err := i.newOperation()
		if err != nil {
			return nil, false, err
		}
		err = src.FetchVersion(ctx, info.Version, info.Option(), op, steps.Func())
		if err == nil && op.LastPath() == "" {
			err = errors.New("source did not produce a package directory")
		}
		if err == nil {
			log.Info("downloaded", "source", src.Type())
			steps.Advance()
			return op, false, nil
		}

		log.Error("failed to fetch from source", "source", src.Type(), "error", err)
		causes = append(causes, fmt.Errorf("%s: %w", src.Type(), err))
		if abort(op) || ctx.Err() != nil {
			return nil, false, errors.Join(operation.ErrCancelled, err)
		}
	}
	return nil, false, &NoSourcesError{Package: def.ID, Version: info.Version, Causes: causes}
}

// abort rolls op back with interrupts held off and reports whether one
// arrived meanwhile.
func abort(op *operation.Operation) bool {
	return operation.Uninterruptible(func() {
		if err := op.Abort(nil); err != nil {
			logger.Error("rollback incomplete", "operation", op.Name(), "error", err)
		}
	})
}

// populateCache stores a freshly downloaded package. Failures only cost a
// future download.
func (i *Installer) populateCache(name string, info *source.Version, packagePath string) {
	if i.cache == nil || info.Version == "" {
		return
	}
	if err := i.cache.AddPackage(name, info.Version, info.Option(), packagePath); err != nil {
		logger.Error("failed to update cache", "package", name, "error", err)
		return
	}
	logger.Debug("cache updated", "package", name, "version", info.Version)
}

// commitBackups copies the operation's backups of files packman did not
// own into durable storage and records them as original files. Files that
// are already tracked or already backed up keep their first backup.
func (i *Installer) commitBackups(op *operation.Operation, m *manifest.Manifest) error {
	for original, temp := range op.Backups() {
		if m.Tracked(original) {
			continue
		}
		if _, ok := m.OriginalFile(original); ok {
			continue
		}
		dest := fsutil.BackupPath(i.cfg.BackupDir, original)
		logger.Debug("committing backup", "path", original, "backup", dest)
		if err := fsutil.CopyFile(temp, dest); err != nil {
			return fmt.Errorf("committing backup of %s: %w", original, err)
		}
		m.SetOriginalFile(original, dest)
	}
	return nil
}
