package definition

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jamesainslie/packman/pkg/packman/fsutil"
	"github.com/jamesainslie/packman/pkg/packman/logging"
	"github.com/jamesainslie/packman/pkg/packman/source"
)

var logger = logging.Get("definition")

type cached struct {
	modTime time.Time
	size    int64
	def     *Definition
}

// Loader reads definitions from a directory and caches them until their
// file changes.
type Loader struct {
	dir string
	env source.Env

	mu    sync.Mutex
	cache map[string]cached
}

// NewLoader returns a Loader over dir. Sources it decodes are configured
// with env.
func NewLoader(dir string, env source.Env) *Loader {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return &Loader{dir: dir, env: env, cache: make(map[string]cached)}
}

// Dir returns the definitions directory.
func (l *Loader) Dir() string {
	return l.dir
}

// Path returns the definition file of the named package. The on-disk
// spelling must match name exactly, so lookups behave the same on
// case-insensitive filesystems.
func (l *Loader) Path(name string) (string, error) {
	clean := path.Clean(name)
	if name == "" || clean != name || path.IsAbs(name) || strings.HasPrefix(clean, "../") || clean == ".." {
		return "", fmt.Errorf("%w: invalid package name %q", ErrNotFound, name)
	}

	for _, ext := range Extensions {
		candidate := filepath.Join(l.dir, filepath.FromSlash(name)+ext)
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		resolved, err := fsutil.ResolveCase(candidate)
		if err != nil {
			return "", err
		}
		if got := l.NameOf(resolved); got != name {
			return "", fmt.Errorf("%w: %q does not match %q", ErrNotFound, name, got)
		}
		return resolved, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

// NameOf derives a package name from a definition path: the path relative
// to the definitions directory, without extension, using '/' separators.
func (l *Loader) NameOf(file string) string {
	rel, err := filepath.Rel(l.dir, file)
	if err != nil {
		rel = filepath.Base(file)
	}
	rel = filepath.ToSlash(rel)
	return strings.TrimSuffix(rel, path.Ext(rel))
}

// Load returns the definition of the named package.
func (l *Loader) Load(name string) (*Definition, error) {
	file, err := l.Path(name)
	if err != nil {
		return nil, err
	}
	return l.LoadFile(file)
}

// LoadFile loads the definition at file, from the cache when the file is
// unchanged.
func (l *Loader) LoadFile(file string) (*Definition, error) {
	info, err := os.Stat(file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, file)
		}
		return nil, err
	}

	l.mu.Lock()
	hit, ok := l.cache[file]
	l.mu.Unlock()
	if ok && hit.modTime.Equal(info.ModTime()) && hit.size == info.Size() {
		return hit.def, nil
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	def, err := Parse(data, filepath.Ext(file), l.env)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	def.ID = l.NameOf(file)
	def.Path = file

	l.mu.Lock()
	l.cache[file] = cached{modTime: info.ModTime(), size: info.Size(), def: def}
	l.mu.Unlock()
	return def, nil
}

// Invalidate drops file from the cache, or the whole cache when file is
// empty.
func (l *Loader) Invalidate(file string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if file == "" {
		l.cache = make(map[string]cached)
		return
	}
	delete(l.cache, file)
}

// Names lists every package with a definition file, sorted.
func (l *Loader) Names() ([]string, error) {
	files, err := l.files()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, l.NameOf(f))
	}
	sort.Strings(names)
	return names, nil
}

func (l *Loader) files() ([]string, error) {
	rels, err := fsutil.ListFiles(l.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var files []string
	for _, rel := range rels {
		if IsDefinitionFile(rel) {
			files = append(files, filepath.Join(l.dir, filepath.FromSlash(rel)))
		}
	}
	return files, nil
}

// All loads every definition, sorted by package name. Definitions that
// fail to load are skipped and reported together in the returned error.
func (l *Loader) All() ([]*Definition, error) {
	files, err := l.files()
	if err != nil {
		return nil, err
	}
	var (
		defs []*Definition
		errs []error
	)
	for _, f := range files {
		def, err := l.LoadFile(f)
		if err != nil {
			logger.Warn("skipping definition", "path", f, "error", err)
			errs = append(errs, err)
			continue
		}
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
	return defs, errors.Join(errs...)
}
