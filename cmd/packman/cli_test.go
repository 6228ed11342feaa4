package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/packman/cmd/packman/tui"
	"github.com/jamesainslie/packman/pkg/packman/config"
	"github.com/jamesainslie/packman/pkg/packman/installer"
	"github.com/jamesainslie/packman/pkg/packman/operation"
)

type testEnv struct {
	root string
	defs string
	pkg  string
	out  *bytes.Buffer
	app  *app
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	base := t.TempDir()
	e := &testEnv{
		root: filepath.Join(base, "game"),
		defs: filepath.Join(base, "defs"),
		pkg:  filepath.Join(base, "Demo-1.0"),
		out:  &bytes.Buffer{},
	}
	for _, dir := range []string{e.root, e.defs, filepath.Join(e.pkg, "GameData", "Demo")} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(e.pkg, "GameData", "Demo", "demo.cfg"), []byte("demo"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(e.pkg, "GameData", "Demo", "Demo.dll"), []byte("dll"), 0o644))

	e.define(t, "demo.yml", `name: Demo
description: A demo package.
sources:
  - type: local
    path: `+filepath.ToSlash(e.pkg)+`
steps:
  - action: copy-folder
    from: GameData/Demo
    to: GameData/Demo
`)

	cfg := &config.Config{
		DefinitionsDir: e.defs,
		ManifestPath:   filepath.Join(e.root, "packman.json"),
		RootDir:        e.root,
		LockName:       "cli-test",
		Network:        config.NetworkConfig{Timeout: 5 * time.Second, ChunkSize: 8192, Retries: 1},
		Paths: config.PathsConfig{
			Scratch: filepath.Join(base, "scratch"),
			Backups: filepath.Join(base, "backups"),
			Cache:   filepath.Join(base, "cache"),
		},
	}
	e.app = newApp(cfg, e.out, &bytes.Buffer{})
	t.Cleanup(func() { _ = e.app.close() })
	return e
}

func (e *testEnv) define(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(e.defs, name), []byte(content), 0o644))
}

// output returns and resets what the commands printed.
func (e *testEnv) output() string {
	s := e.out.String()
	e.out.Reset()
	return s
}

func TestInstallValidateUninstall(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, e.app.install(ctx, []string{"demo"}, installer.InstallOptions{}))
	assert.Contains(t, e.output(), "✓ + demo@latest")
	assert.FileExists(t, filepath.Join(e.root, "GameData", "Demo", "Demo.dll"))

	require.NoError(t, e.app.install(ctx, []string{"demo"}, installer.InstallOptions{}))
	out := e.output()
	assert.Contains(t, out, "already installed")
	assert.Contains(t, out, "1 package was not installed")

	require.NoError(t, e.app.validate(nil))
	assert.Contains(t, e.output(), "✓ demo")

	cfgFile := filepath.Join(e.root, "GameData", "Demo", "demo.cfg")
	require.NoError(t, os.WriteFile(cfgFile, []byte("tweaked"), 0o644))
	err := e.app.validate([]string{"demo"})
	require.Error(t, err)
	assert.Contains(t, e.output(), "1 modified file")

	require.NoError(t, e.app.uninstall(ctx, nil))
	out = e.output()
	assert.Contains(t, out, "✓ - demo")
	assert.Contains(t, out, "1 orphaned file")
	assert.NoFileExists(t, filepath.Join(e.root, "GameData", "Demo", "Demo.dll"))
	assert.FileExists(t, cfgFile)

	require.NoError(t, e.app.clean(false, true))
	assert.Contains(t, e.output(), "demo.cfg")
	require.NoError(t, e.app.clean(false, false))
	assert.Contains(t, e.output(), "Removed 1 orphaned file.")
	assert.NoFileExists(t, cfgFile)
}

func TestInstallReportsFailures(t *testing.T) {
	e := newTestEnv(t)

	err := e.app.install(context.Background(), []string{"demo", "missing"}, installer.InstallOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 packages failed")

	out := e.output()
	assert.Contains(t, out, "✓ + demo@latest")
	assert.Contains(t, out, "✗ + missing@latest")
}

func TestInstallWithNothingInstalled(t *testing.T) {
	e := newTestEnv(t)
	require.NoError(t, e.app.install(context.Background(), nil, installer.InstallOptions{}))
	assert.Contains(t, e.output(), "No installed packages to update.")

	require.NoError(t, e.app.uninstall(context.Background(), nil))
	assert.Contains(t, e.output(), "No installed packages to uninstall.")
}

func TestListings(t *testing.T) {
	e := newTestEnv(t)
	require.NoError(t, e.app.install(context.Background(), []string{"demo"}, installer.InstallOptions{}))
	e.output()

	require.NoError(t, e.app.list("json"))
	var available []map[string]string
	require.NoError(t, json.Unmarshal([]byte(e.output()), &available))
	require.Len(t, available, 1)
	assert.Equal(t, map[string]string{"package": "demo", "name": "Demo", "description": "A demo package."}, available[0])

	require.NoError(t, e.app.installed("plain"))
	fields := strings.Fields(e.output())
	assert.Equal(t, []string{"demo", "unknown", "Demo-1.0", "2", "Demo"}, fields)
}

func TestRecoverWithoutPendingOperation(t *testing.T) {
	e := newTestEnv(t)
	require.NoError(t, e.app.rollback())
	assert.Contains(t, e.output(), "Nothing to recover.")
}

func TestLint(t *testing.T) {
	e := newTestEnv(t)
	require.NoError(t, e.app.lint(nil))
	assert.Contains(t, e.output(), "✓ demo")

	e.define(t, "broken.yml", "name: Broken\n")
	err := e.app.lint(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 definitions are invalid")
	assert.Contains(t, e.output(), "✗ broken")

	require.Error(t, e.app.lint([]string{filepath.Join(e.defs, "broken.yml")}))
	require.NoError(t, e.app.lint([]string{filepath.Join(e.defs, "demo.yml")}))
}

func TestInfoMarkdown(t *testing.T) {
	e := newTestEnv(t)
	doc, err := e.app.infoMarkdown(context.Background(), "demo", "")
	require.NoError(t, err)
	assert.Contains(t, doc, "# Demo")
	assert.Contains(t, doc, "**Sources:** local")
	assert.Contains(t, doc, "**Installed:** no")
	assert.Contains(t, doc, "**Version:** unknown")

	_, err = e.app.infoMarkdown(context.Background(), "dem", "")
	var notFound *installer.PackageNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Contains(t, notFound.Suggestions, "demo")
}

func TestExport(t *testing.T) {
	e := newTestEnv(t)
	require.NoError(t, e.app.install(context.Background(), []string{"demo"}, installer.InstallOptions{}))

	path := filepath.Join(t.TempDir(), "mods.json")
	require.NoError(t, e.app.export(path, ""))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\"demo\":\"\"}\n", string(data))
}

func TestLoggingConfig(t *testing.T) {
	cfg := &config.Config{Logging: config.LoggingConfig{Level: "info", MaxSize: "1MB", MaxBackups: 2}}

	lc, err := loggingConfig(cfg, false, false)
	require.NoError(t, err)
	assert.Equal(t, "info", lc.Level)
	assert.Equal(t, "warn", lc.ConsoleLevel)
	assert.Equal(t, int64(1000*1000), lc.Rotation.MaxSize)

	lc, err = loggingConfig(cfg, true, false)
	require.NoError(t, err)
	assert.Equal(t, "debug", lc.ConsoleLevel)

	lc, err = loggingConfig(cfg, false, true)
	require.NoError(t, err)
	assert.Equal(t, "error", lc.ConsoleLevel)

	cfg.Logging.MaxSize = "lots"
	_, err = loggingConfig(cfg, false, false)
	assert.Error(t, err)
}

func TestInstallerConfig(t *testing.T) {
	cfg := &config.Config{
		DefinitionsDir: "defs",
		ManifestPath:   "packman.json",
		RootDir:        "game",
		LockName:       "lock",
		Git:            config.GitConfig{URL: "https://example.com/defs.git", Subdir: "cfg"},
		Network:        config.NetworkConfig{Timeout: time.Second, ChunkSize: 1024, Retries: 0},
		Paths:          config.PathsConfig{Scratch: "s", Backups: "b", Cache: "c"},
		GitHub:         config.GitHubConfig{Token: "t", APIURL: "https://gh"},
	}
	ic := installerConfig(cfg)
	assert.Equal(t, "b", ic.BackupDir)
	assert.Equal(t, "cfg", ic.GitSubdir)
	assert.Equal(t, "s", ic.Operation.ScratchDir)
	assert.Equal(t, uint(1), ic.Operation.Retries)
	assert.Equal(t, "t", ic.Sources.GitHubToken)
	assert.Same(t, ic.Operation.Client, ic.Sources.Client)
}

func TestLineReporter(t *testing.T) {
	var buf bytes.Buffer
	r := &lineReporter{out: &buf}
	results := installer.Results{
		{Request: installer.Request{Name: "a"}, Changed: true},
		{Request: installer.Request{Name: "b", Version: "1.0"}},
		{Request: installer.Request{Name: "c"}, Err: installer.ErrAbandoned},
		{Request: installer.Request{Name: "d"}, Err: errors.Join(operation.ErrCancelled, context.Canceled)},
	}
	reportResults(r, results, installLabel, "already installed")
	pendingHint(r, installer.Results{{Err: &operation.StateFileExistsError{Name: "x"}}})

	out := buf.String()
	assert.Contains(t, out, "✓ + a@latest\n")
	assert.Contains(t, out, "- + b@1.0: already installed\n")
	assert.Contains(t, out, "✗ + c@latest: skipped, an interrupted operation must be recovered first\n")
	assert.Contains(t, out, "✗ + d@latest: cancelled\n")
	assert.Contains(t, out, "packman recover")

	assert.EqualError(t, batchError(results), "2 of 4 packages failed")
	assert.NoError(t, batchError(results[:2]))
	assert.Equal(t, 1, countUnchanged(results))

	var quiet bytes.Buffer
	q := &lineReporter{out: &quiet, quiet: true}
	q.finish("x", tui.Done, "")
	q.note("hidden")
	q.finish("y", tui.Failed, "boom")
	assert.Equal(t, "✗ y: boom\n", quiet.String())
}
