package step

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/packman/pkg/packman/operation"
	"github.com/jamesainslie/packman/pkg/packman/plugin"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

type fixture struct {
	pkg  string
	root string
	op   *operation.Operation
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	f := fixture{pkg: t.TempDir(), root: t.TempDir()}
	writeFile(t, filepath.Join(f.pkg, "Demo-1.0", "GameData", "Demo", "demo.cfg"), "cfg")
	writeFile(t, filepath.Join(f.pkg, "Demo-1.0", "GameData", "Demo", "Plugins", "Demo.dll"), "dll")
	writeFile(t, filepath.Join(f.pkg, "Demo-1.0", "GameData", "Demo", "Plugins", "Demo.pdb"), "pdb")
	writeFile(t, filepath.Join(f.pkg, "Demo-1.0", "README.md"), "readme")

	op, err := operation.New("step-test", operation.Config{ScratchDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(op.Close)
	f.op = op
	return f
}

func decode(t *testing.T, raw string) *Step {
	t.Helper()
	s, err := Decode(json.RawMessage(raw))
	require.NoError(t, err)
	return s
}

func TestCopyFolder(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	s := decode(t, `{"action":"copy-folder","from":"*/GameData/Demo","to":"GameData/Demo","exclude":["*.pdb"]}`)
	assert.Equal(t, "copy-folder", s.Name)

	var last float64
	require.NoError(t, s.Execute(context.Background(), f.op, f.pkg, f.root, func(p float64) { last = p }))
	assert.Equal(t, 1.0, last)

	assert.FileExists(t, filepath.Join(f.root, "GameData", "Demo", "demo.cfg"))
	assert.FileExists(t, filepath.Join(f.root, "GameData", "Demo", "Plugins", "Demo.dll"))
	assert.NoFileExists(t, filepath.Join(f.root, "GameData", "Demo", "Plugins", "Demo.pdb"))
	assert.Len(t, f.op.NewPaths(), 2)
}

func TestCopyFolderNoMatchSkips(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	s := decode(t, `{"action":"copy-folder","from":"*/GameData/Other","to":"GameData/Other"}`)

	require.NoError(t, s.Execute(context.Background(), f.op, f.pkg, f.root, nil))
	assert.Empty(t, f.op.NewPaths())
}

func TestCopyFolderMultipleMatches(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	s := decode(t, `{"action":"copy-folder","from":"**/Demo*","to":"GameData"}`)

	err := s.Execute(context.Background(), f.op, f.pkg, f.root, nil)
	assert.ErrorIs(t, err, ErrMultipleMatches)
}

func TestCopyFolderTopLevelRecursiveGlob(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	pkg := t.TempDir()
	writeFile(t, filepath.Join(pkg, "GameData", "Demo", "plugin.dll"), "dll")
	s := decode(t, `{"action":"copy-folder","from":"**/GameData","to":"GameData",
		"conditions":[{"type":"exists","path":"**/GameData"}]}`)

	require.NoError(t, s.Execute(context.Background(), f.op, pkg, f.root, nil))
	assert.FileExists(t, filepath.Join(f.root, "GameData", "Demo", "plugin.dll"))
	assert.Len(t, f.op.NewPaths(), 1)
}

func TestCopyFolderWholePackage(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	s := decode(t, `{"action":"copy-folder","from":".","to":"Mods/Demo"}`)

	require.NoError(t, s.Execute(context.Background(), f.op, f.pkg, f.root, nil))
	assert.FileExists(t, filepath.Join(f.root, "Mods", "Demo", "Demo-1.0", "README.md"))
}

func TestConditionsGuardStep(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	skipped := decode(t, `{"action":"copy-folder","from":"*/GameData/Demo","to":"GameData/Demo",
		"conditions":[{"type":"exists","path":"**/*.so"}]}`)
	require.Len(t, skipped.Conditions, 1)

	var last float64
	require.NoError(t, skipped.Execute(context.Background(), f.op, f.pkg, f.root, func(p float64) { last = p }))
	assert.Equal(t, 1.0, last)
	assert.Empty(t, f.op.NewPaths())

	run := decode(t, `{"action":"copy-folder","from":"*/GameData/Demo","to":"GameData/Demo",
		"conditions":[{"type":"not","condition":{"type":"exists","path":"**/*.so"}}]}`)
	require.NoError(t, run.Execute(context.Background(), f.op, f.pkg, f.root, nil))
	assert.NotEmpty(t, f.op.NewPaths())
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{
		`{"action":"copy-folder","to":"x"}`,
		`{"action":"copy-folder","from":"a","to":"../outside"}`,
		`{"action":"copy-folder","from":"a","to":"/abs"}`,
		`{"action":"copy-folder","from":"a","to":"b","extra":true}`,
		`{"action":"hang-forever"}`,
		`{"from":"a","to":"b"}`,
		`{"action":7,"from":"a","to":"b"}`,
		`{"action":"copy-folder","from":"a","to":"b","conditions":[{"type":"nope"}]}`,
	} {
		t.Run(raw, func(t *testing.T) {
			_, err := Decode(json.RawMessage(raw))
			assert.Error(t, err)
		})
	}
}

func TestDecodeTagErrors(t *testing.T) {
	t.Parallel()
	_, err := Decode(json.RawMessage(`{"from":"a","to":"b"}`))
	assert.ErrorIs(t, err, plugin.ErrMissingTag)

	_, err = Decode(json.RawMessage(`{"action":["copy-folder"],"from":"a","to":"b"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"action"`)
}

func TestUnmarshalSteps(t *testing.T) {
	t.Parallel()
	var steps []*Step
	require.NoError(t, json.Unmarshal([]byte(`[
		{"action":"copy-folder","from":"GameData","to":"GameData"},
		{"action":"copy-folder","from":"Ships","to":"Ships"}
	]`), &steps))
	assert.Len(t, steps, 2)
}
