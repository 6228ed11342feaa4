// Package trash moves files packman no longer owns to the desktop trash,
// so that orphaned files a user may have edited can still be recovered.
// Where no trash is available files are deleted.
package trash

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/jamesainslie/packman/pkg/packman/fsutil"
	"github.com/jamesainslie/packman/pkg/packman/logging"
)

var logger = logging.Get("trash")

// commandTimeout bounds each trash command.
const commandTimeout = 30 * time.Second

// Bin moves files into the platform trash. Empty parent directories left
// behind are pruned up to, but excluding, Root.
type Bin struct {
	Root string

	goos     string
	lookPath func(string) (string, error)
	run      func(ctx context.Context, name string, args ...string) error
}

// New returns a Bin pruning up to root.
func New(root string) *Bin {
	return &Bin{
		Root:     root,
		goos:     runtime.GOOS,
		lookPath: exec.LookPath,
		run: func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Run()
		},
	}
}

// commands returns the trash invocations to try for path, in order.
func (b *Bin) commands(path string) [][]string {
	switch b.goos {
	case "darwin":
		// Finder keeps "Put Back" working.
		script := fmt.Sprintf(`tell application "Finder" to delete POSIX file %q`, path)
		return [][]string{{"osascript", "-e", script}}
	case "linux", "freebsd", "openbsd", "netbsd":
		return [][]string{{"gio", "trash", path}, {"trash-put", path}}
	default:
		return nil
	}
}

// Move trashes path, or deletes it when no trash command succeeds. Its
// signature matches manifest.Remover.
func (b *Bin) Move(path string) error {
	if _, err := os.Lstat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("cannot trash %q: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("cannot resolve absolute path for %q: %w", path, err)
	}

	if b.trash(abs) {
		logger.Debug("moved to trash", "path", abs)
	} else {
		logger.Debug("no trash available, deleting", "path", abs)
	}
	// After a successful trash only the empty parents are left to prune.
	return fsutil.RemovePath(abs, b.Root)
}

func (b *Bin) trash(path string) bool {
	for _, argv := range b.commands(path) {
		bin, err := b.lookPath(argv[0])
		if err != nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		err = b.run(ctx, bin, argv[1:]...)
		cancel()
		if err == nil {
			if _, statErr := os.Lstat(path); os.IsNotExist(statErr) {
				return true
			}
		}
		logger.Debug("trash command failed", "command", argv[0], "error", err)
	}
	return false
}
