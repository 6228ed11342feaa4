package step

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/jamesainslie/packman/pkg/packman/condition"
	"github.com/jamesainslie/packman/pkg/packman/fsutil"
	"github.com/jamesainslie/packman/pkg/packman/operation"
	"github.com/jamesainslie/packman/pkg/packman/plugin"
	"github.com/jamesainslie/packman/pkg/packman/progress"
)

// ErrMultipleMatches is returned when a copy-folder glob selects more
// than one folder.
var ErrMultipleMatches = errors.New("multiple folders match")

func init() {
	Registry.Register("copy-folder", plugin.Strict(func(cfg CopyFolderConfig) (Action, error) {
		return NewCopyFolder(cfg)
	}))
}

// CopyFolderConfig is the definition entry of a copy-folder step.
type CopyFolderConfig struct {
	// From selects exactly one folder inside the package.
	From string `json:"from"`
	// To is the destination relative to the install root.
	To string `json:"to"`
	// Exclude holds gitignore patterns, relative to the selected folder.
	Exclude []string `json:"exclude,omitempty"`
}

// CopyFolder copies one folder of the package into the install root.
type CopyFolder struct {
	cfg     CopyFolderConfig
	from    *condition.Glob
	exclude *ignore.GitIgnore
}

// NewCopyFolder validates cfg.
func NewCopyFolder(cfg CopyFolderConfig) (*CopyFolder, error) {
	if cfg.From == "" {
		return nil, errors.New("from must not be empty")
	}
	to := path.Clean(filepath.ToSlash(cfg.To))
	if filepath.IsAbs(cfg.To) || path.IsAbs(to) || to == ".." || strings.HasPrefix(to, "../") {
		return nil, fmt.Errorf("to must stay inside the install root, got %q", cfg.To)
	}

	c := &CopyFolder{cfg: cfg}
	if cfg.From != "." {
		g, err := condition.CompileGlob(cfg.From)
		if err != nil {
			return nil, fmt.Errorf("invalid from pattern %q: %w", cfg.From, err)
		}
		c.from = g
	}
	if len(cfg.Exclude) > 0 {
		c.exclude = ignore.CompileIgnoreLines(cfg.Exclude...)
	}
	return c, nil
}

// source resolves the folder to copy. It returns "" when nothing matches.
func (c *CopyFolder) source(packagePath string) (string, error) {
	if c.from == nil {
		return packagePath, nil
	}
	dirs, err := fsutil.ListDirs(packagePath)
	if err != nil {
		return "", err
	}
	var matches []string
	for _, d := range dirs {
		if c.from.Match(d) {
			matches = append(matches, d)
		}
	}
	switch len(matches) {
	case 0:
		return "", nil
	case 1:
		return filepath.Join(packagePath, filepath.FromSlash(matches[0])), nil
	default:
		return "", fmt.Errorf("%w %q: %s", ErrMultipleMatches, c.cfg.From, strings.Join(matches, ", "))
	}
}

// Execute implements Action.
func (c *CopyFolder) Execute(ctx context.Context, op *operation.Operation, packagePath, rootDir string, onProgress progress.Func) error {
	onProgress = progress.OrNoop(onProgress)
	src, err := c.source(packagePath)
	if err != nil {
		return err
	}
	if src == "" {
		logger.Warn("folder not found in package", "from", c.cfg.From)
		onProgress(1)
		return nil
	}

	files, err := fsutil.ListFiles(src)
	if err != nil {
		return err
	}
	if c.exclude != nil {
		kept := files[:0]
		for _, rel := range files {
			if !c.exclude.MatchesPath(rel) {
				kept = append(kept, rel)
			}
		}
		files = kept
	}

	dest := filepath.Join(rootDir, filepath.FromSlash(c.cfg.To))
	steps := progress.NewSteps(len(files), onProgress)
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		native := filepath.FromSlash(rel)
		if err := op.CopyFile(filepath.Join(src, native), filepath.Join(dest, native)); err != nil {
			return err
		}
		steps.Advance()
	}
	onProgress(1)
	return nil
}
