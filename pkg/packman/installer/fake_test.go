package installer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/packman/pkg/packman/cache"
	"github.com/jamesainslie/packman/pkg/packman/operation"
	"github.com/jamesainslie/packman/pkg/packman/plugin"
	"github.com/jamesainslie/packman/pkg/packman/progress"
	"github.com/jamesainslie/packman/pkg/packman/source"
)

// fakes maps the "key" of a fake source definition to its fixture.
var fakes sync.Map

type fakeConfig struct {
	Key string `json:"key"`
}

func init() {
	source.Registry.Register("fake", plugin.Strict(func(cfg fakeConfig) (source.Source, error) {
		f, ok := fakes.Load(cfg.Key)
		if !ok {
			return nil, fmt.Errorf("no fake source %q", cfg.Key)
		}
		return f.(*fakeSource), nil
	}))
}

// fakeSource serves in-memory package trees.
type fakeSource struct {
	mu       sync.Mutex
	latest   string
	versions map[string]map[string]string
	fetches  int
	fail     error
}

func newFake(t *testing.T, key string) *fakeSource {
	t.Helper()
	f := &fakeSource{versions: map[string]map[string]string{}}
	_, loaded := fakes.LoadOrStore(key, f)
	require.False(t, loaded, "fake %s registered twice", key)
	t.Cleanup(func() { fakes.Delete(key) })
	return f
}

// add publishes version with files (package-relative path to content) and
// makes it the latest.
func (f *fakeSource) add(version string, files map[string]string) *fakeSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.versions[version] = files
	f.latest = version
	return f
}

func (f *fakeSource) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func (f *fakeSource) Type() string { return "fake" }

func (f *fakeSource) Version(_ context.Context, id string) (*source.Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.versions[id]; !ok {
		return nil, fmt.Errorf("%w: %s", source.ErrVersionNotFound, id)
	}
	return &source.Version{Name: "fake", Version: id}, nil
}

func (f *fakeSource) LatestVersion(ctx context.Context) (*source.Version, error) {
	f.mu.Lock()
	latest := f.latest
	f.mu.Unlock()
	return f.Version(ctx, latest)
}

func (f *fakeSource) Versions(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.versions))
	for v := range f.versions {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeSource) FetchVersion(_ context.Context, version, _ string, op *operation.Operation, onProgress progress.Func) error {
	f.mu.Lock()
	f.fetches++
	files, ok := f.versions[version]
	fail := f.fail
	f.mu.Unlock()
	if fail != nil {
		return fail
	}
	if !ok {
		return fmt.Errorf("%w: %s", source.ErrVersionNotFound, version)
	}

	dir, err := op.TempPath("")
	if err != nil {
		return err
	}
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return err
		}
	}
	progress.OrNoop(onProgress)(1)
	return nil
}

// fakeCloner "clones" by writing files into the destination.
type fakeCloner struct {
	files map[string]string
	calls int
}

func (c *fakeCloner) Clone(_ context.Context, _, dest string) error {
	c.calls++
	for rel, content := range c.files {
		path := filepath.Join(dest, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

type env struct {
	root     string
	defs     string
	manifest string
	cfg      Config
	cache    *cache.Cache
	cloner   *fakeCloner
	inst     *Installer
}

func newEnv(t *testing.T) *env {
	t.Helper()
	base := t.TempDir()
	e := &env{
		root:     filepath.Join(base, "game"),
		defs:     filepath.Join(base, "cfg"),
		manifest: filepath.Join(base, "game", "packman.json"),
		cloner:   &fakeCloner{},
	}
	require.NoError(t, os.MkdirAll(e.root, 0o755))
	require.NoError(t, os.MkdirAll(e.defs, 0o755))

	c, err := cache.Open(filepath.Join(base, "cache"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	e.cache = c

	e.cfg = Config{
		DefinitionsDir: e.defs,
		ManifestPath:   e.manifest,
		RootDir:        e.root,
		BackupDir:      filepath.Join(base, "backups"),
		LockName:       "test",
		GitURL:         "https://example.com/definitions.git",
		GitSubdir:      "cfg",
		Operation:      operation.Config{ScratchDir: filepath.Join(base, "scratch")},
	}
	e.inst = e.open(t)
	return e
}

// open returns a fresh Installer over the same directories, as a new
// process would see them.
func (e *env) open(t *testing.T) *Installer {
	t.Helper()
	inst, err := New(e.cfg, WithCache(e.cache), WithCloner(e.cloner))
	require.NoError(t, err)
	return inst
}

// define writes a definition for name with the given fake source keys and
// one copy-folder step per "from:to" pair.
func (e *env) define(t *testing.T, name string, keys []string, copies ...string) {
	t.Helper()
	var b strings.Builder
	fmt.Fprintf(&b, "name: %s\nsources:\n", name)
	for _, key := range keys {
		fmt.Fprintf(&b, "  - type: fake\n    key: %s\n", key)
	}
	b.WriteString("steps:\n")
	for _, c := range copies {
		from, to, _ := strings.Cut(c, ":")
		fmt.Fprintf(&b, "  - action: copy-folder\n    from: %s\n    to: %s\n", from, to)
	}
	path := filepath.Join(e.defs, name+".yml")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
}

func (e *env) path(rel string) string {
	return filepath.Join(e.root, filepath.FromSlash(rel))
}

func (e *env) read(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(e.path(rel))
	require.NoError(t, err)
	return string(data)
}

func (e *env) write(t *testing.T, rel, content string) {
	t.Helper()
	path := e.path(rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
