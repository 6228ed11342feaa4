package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/packman/pkg/packman/definition"
	"github.com/jamesainslie/packman/pkg/packman/source"
)

const validYAML = `name: Demo
sources:
  - type: link
    url: https://example.com/demo.zip
steps:
  - action: copy-folder
    from: GameData/Demo
    to: GameData/Demo
`

func newWatcher(t *testing.T) (string, *Watcher) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	w, err := New(definition.NewLoader(dir, source.Env{}), WithDebounce(20*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return dir, w
}

// run starts the event loop and returns a channel of its events.
func run(t *testing.T, w *Watcher) <-chan Event {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan Event, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx, func(ev Event) { events <- ev })
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return events
}

func next(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watcher event")
		return Event{}
	}
}

func TestNewWatchesTree(t *testing.T) {
	dir, w := newWatcher(t)
	assert.Contains(t, w.Watched(), dir)
	assert.Contains(t, w.Watched(), filepath.Join(dir, "nested"))
}

func TestNewMissingDir(t *testing.T) {
	_, err := New(definition.NewLoader(filepath.Join(t.TempDir(), "missing"), source.Env{}))
	assert.Error(t, err)
}

func TestCheck(t *testing.T) {
	dir, w := newWatcher(t)
	path := filepath.Join(dir, "nested", "demo.yml")

	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o644))
	ev := w.Check(path)
	require.NoError(t, ev.Err)
	assert.Equal(t, "nested/demo", ev.Name)
	require.NotNil(t, ev.Definition)
	assert.Equal(t, "Demo", ev.Definition.Name)

	require.NoError(t, os.WriteFile(path, []byte("name: Demo\n"), 0o644))
	ev = w.Check(path)
	assert.ErrorIs(t, ev.Err, definition.ErrInvalid)

	require.NoError(t, os.Remove(path))
	ev = w.Check(path)
	assert.True(t, ev.Removed)
	assert.NoError(t, ev.Err)
}

func TestRunReportsChanges(t *testing.T) {
	dir, w := newWatcher(t)
	events := run(t, w)

	path := filepath.Join(dir, "demo.yml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o644))
	ev := next(t, events)
	assert.Equal(t, "demo", ev.Name)
	assert.NoError(t, ev.Err)

	require.NoError(t, os.WriteFile(path, []byte("sources: []\n"), 0o644))
	ev = next(t, events)
	assert.Error(t, ev.Err)

	require.NoError(t, os.Remove(path))
	ev = next(t, events)
	assert.True(t, ev.Removed)
}

func TestRunWatchesNewDirectories(t *testing.T) {
	dir, w := newWatcher(t)
	events := run(t, w)

	sub := filepath.Join(dir, "added")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.Eventually(t, func() bool {
		for _, p := range w.Watched() {
			if p == sub {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(sub, "x.json"), []byte(`{}`), 0o644))
	ev := next(t, events)
	assert.Equal(t, "added/x", ev.Name)
	assert.Error(t, ev.Err)
}

func TestRunIgnoresOtherFiles(t *testing.T) {
	dir, w := newWatcher(t)
	events := run(t, w)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "demo.yml"), []byte(validYAML), 0o644))
	assert.Equal(t, "demo", next(t, events).Name)
}

func TestCloseIsIdempotent(t *testing.T) {
	_, w := newWatcher(t)
	require.NoError(t, w.Close())
	assert.NoError(t, w.Close())
	assert.Empty(t, w.Watched())
}
