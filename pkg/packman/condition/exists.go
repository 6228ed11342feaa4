package condition

import (
	"fmt"

	"github.com/jamesainslie/packman/pkg/packman/fsutil"
	"github.com/jamesainslie/packman/pkg/packman/plugin"
)

func init() {
	Registry.Register("exists", plugin.Strict(func(cfg ExistsConfig) (Condition, error) {
		return NewExists(cfg.Path)
	}))
}

// ExistsConfig is the definition entry of an exists condition.
type ExistsConfig struct {
	Path string `json:"path"`
}

// Exists holds when some file or directory in the package matches a glob.
// "*" stays within one path segment and "**" spans any number, including
// none.
type Exists struct {
	pattern string
	glob    *Glob
}

// NewExists compiles pattern.
func NewExists(pattern string) (*Exists, error) {
	if pattern == "" {
		return nil, fmt.Errorf("path must not be empty")
	}
	g, err := CompileGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid path pattern %q: %w", pattern, err)
	}
	return &Exists{pattern: pattern, glob: g}, nil
}

// Evaluate implements Condition.
func (e *Exists) Evaluate(packagePath, _ string) (bool, error) {
	entries, err := fsutil.ListAll(packagePath)
	if err != nil {
		return false, err
	}
	for _, rel := range entries {
		if e.glob.Match(rel) {
			return true, nil
		}
	}
	return false, nil
}
