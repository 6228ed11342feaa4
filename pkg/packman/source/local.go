package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jamesainslie/packman/pkg/packman/fsutil"
	"github.com/jamesainslie/packman/pkg/packman/operation"
	"github.com/jamesainslie/packman/pkg/packman/plugin"
	"github.com/jamesainslie/packman/pkg/packman/progress"
)

func init() {
	Registry.Register("local", plugin.Strict(func(cfg LocalConfig) (Source, error) {
		l, err := NewLocal(cfg)
		if err != nil {
			return nil, err
		}
		return Unversioned(l), nil
	}))
}

// LocalConfig is the definition entry of a local source.
type LocalConfig struct {
	Path string `json:"path"`
}

// Local installs a directory or archive already on disk. It is mostly
// useful while authoring a package.
type Local struct {
	path string
}

// NewLocal validates cfg and returns the source.
func NewLocal(cfg LocalConfig) (*Local, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("path must not be empty")
	}
	return &Local{path: cfg.Path}, nil
}

// Type implements UnversionedSource.
func (l *Local) Type() string { return "local" }

// LatestVersion implements UnversionedSource.
func (l *Local) LatestVersion(context.Context) (*Version, error) {
	if _, err := os.Stat(l.path); err != nil {
		return nil, err
	}
	return &Version{Name: l.path, Options: []string{filepath.Base(l.path)}}, nil
}

// FetchLatest implements UnversionedSource. Archives are extracted;
// directories are copied into a temp directory so the package never
// aliases the user's files.
func (l *Local) FetchLatest(ctx context.Context, _ string, op *operation.Operation, onProgress progress.Func) error {
	onProgress = progress.OrNoop(onProgress)
	info, err := os.Stat(l.path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		_, err := op.ExtractArchive(l.path)
		onProgress(1)
		return err
	}

	files, err := fsutil.ListFiles(l.path)
	if err != nil {
		return err
	}
	dest, err := op.TempPath("")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	steps := progress.NewSteps(len(files), onProgress)
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		src := filepath.Join(l.path, filepath.FromSlash(rel))
		if err := fsutil.CopyFile(src, filepath.Join(dest, filepath.FromSlash(rel))); err != nil {
			return err
		}
		steps.Advance()
	}
	onProgress(1)
	return nil
}
