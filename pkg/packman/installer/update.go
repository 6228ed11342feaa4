package installer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/jamesainslie/packman/pkg/packman/fsutil"
	"github.com/jamesainslie/packman/pkg/packman/progress"
)

// Cloner fetches a shallow copy of a git repository into dest.
type Cloner interface {
	Clone(ctx context.Context, url, dest string) error
}

// GitCloner shells out to the git binary.
type GitCloner struct{}

// Clone runs git clone --depth 1.
func (GitCloner) Clone(ctx context.Context, url, dest string) error {
	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", "--quiet", url, dest)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("git clone %s: %w: %s", url, err, msg)
		}
		return fmt.Errorf("git clone %s: %w", url, err)
	}
	return nil
}

// Update refreshes the local definitions from the remote repository. Only
// definition files whose content differs are copied. It reports whether
// anything changed.
func (i *Installer) Update(ctx context.Context, onProgress progress.Func) (bool, error) {
	onProgress = progress.Monotonic(onProgress)
	onProgress(0)
	if i.cfg.GitURL == "" {
		return false, errors.New("no definitions repository configured")
	}

	dir := fsutil.TempPath(i.cfg.Operation.ScratchDir, "")
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return false, err
	}
	defer func() {
		if err := fsutil.RemovePath(dir, ""); err != nil {
			logger.Warn("failed to remove clone", "path", dir, "error", err)
		}
	}()

	logger.Debug("retrieving definitions", "url", i.cfg.GitURL, "subdir", i.cfg.GitSubdir)
	if err := i.cloner.Clone(ctx, i.cfg.GitURL, dir); err != nil {
		return false, err
	}
	steps := progress.NewSteps(2, onProgress)
	steps.Advance()

	src := filepath.Join(dir, filepath.FromSlash(i.cfg.GitSubdir))
	files, err := fsutil.ListFiles(src)
	if err != nil {
		return false, fmt.Errorf("reading %s from %s: %w", i.cfg.GitSubdir, i.cfg.GitURL, err)
	}

	updated := false
	for n, rel := range files {
		native := filepath.FromSlash(rel)
		from, to := filepath.Join(src, native), filepath.Join(i.cfg.DefinitionsDir, native)
		same, err := fsutil.SameContent(from, to)
		if err != nil {
			return updated, err
		}
		if !same {
			logger.Info("updating definition", "path", to)
			if err := fsutil.CopyFile(from, to); err != nil {
				return updated, err
			}
			i.defs.Invalidate(to)
			updated = true
		}
		steps.Report(float64(n+1) / float64(len(files)))
	}
	steps.Advance()

	if !updated {
		logger.Info("definitions already up to date")
	}
	return updated, nil
}
