package installer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/packman/pkg/packman/manifest"
	"github.com/jamesainslie/packman/pkg/packman/operation"
	"github.com/jamesainslie/packman/pkg/packman/progress"
	"github.com/jamesainslie/packman/pkg/packman/source"
)

const pluginFile = "GameData/Demo/plugin.dll"

func demoFiles(content string) map[string]string {
	return map[string]string{pluginFile: content}
}

func install(t *testing.T, inst *Installer, name, version string, opts InstallOptions) bool {
	t.Helper()
	changed, err := inst.Install(context.Background(), name, version, opts, nil)
	require.NoError(t, err)
	return changed
}

func TestFreshInstall(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	newFake(t, "fresh").add("1.0", demoFiles("v1"))
	e.define(t, "demo", []string{"fresh"}, "GameData:GameData")

	var last float64
	changed, err := e.inst.Install(context.Background(), "demo", "", InstallOptions{}, func(p float64) {
		assert.GreaterOrEqual(t, p, last)
		last = p
	})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 1.0, last)
	assert.Equal(t, "v1", e.read(t, pluginFile))

	m, err := manifest.FromPath(e.manifest)
	require.NoError(t, err)
	pkg, ok := m.Get("demo")
	require.True(t, ok)
	assert.Equal(t, "1.0", pkg.Version)
	assert.Equal(t, []string{e.path(pluginFile)}, pkg.Files)
	assert.Contains(t, pkg.Checksums, e.path(pluginFile))
	assert.False(t, e.inst.Pending())
}

func TestInstallTwiceIsNoop(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	fake := newFake(t, "twice").add("1.0", demoFiles("v1"))
	e.define(t, "demo", []string{"twice"}, "GameData:GameData")

	assert.True(t, install(t, e.inst, "demo", "1.0", InstallOptions{}))
	assert.False(t, install(t, e.inst, "demo", "1.0", InstallOptions{}))
	assert.False(t, install(t, e.open(t), "demo", "", InstallOptions{}))
	assert.Equal(t, 1, fake.fetchCount())
}

func TestCacheHitAvoidsSources(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	fake := newFake(t, "cached").add("1.0", demoFiles("v1"))
	e.define(t, "demo", []string{"cached"}, "GameData:GameData")

	install(t, e.inst, "demo", "1.0", InstallOptions{})
	require.Equal(t, 1, fake.fetchCount())

	assert.True(t, install(t, e.inst, "demo", "1.0", InstallOptions{Force: true}))
	assert.Equal(t, 1, fake.fetchCount())
	assert.Equal(t, "v1", e.read(t, pluginFile))

	assert.True(t, install(t, e.inst, "demo", "1.0", InstallOptions{Force: true, NoCache: true}))
	assert.Equal(t, 2, fake.fetchCount())
}

func TestUninstallSharedFile(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	newFake(t, "shared-a").add("1.0", demoFiles("shared"))
	newFake(t, "shared-b").add("2.0", demoFiles("shared"))
	e.define(t, "a", []string{"shared-a"}, "GameData:GameData")
	e.define(t, "b", []string{"shared-b"}, "GameData:GameData")

	install(t, e.inst, "a", "", InstallOptions{})
	install(t, e.inst, "b", "", InstallOptions{})

	m, err := e.inst.Manifest()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, m.FileMap()[e.path(pluginFile)])

	changed, err := e.inst.Uninstall("a", nil)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.FileExists(t, e.path(pluginFile))
	assert.False(t, m.Has("a"))

	changed, err = e.inst.Uninstall("b", nil)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.NoFileExists(t, e.path(pluginFile))
	assert.NoDirExists(t, e.path("GameData"))
	assert.DirExists(t, e.root)

	changed, err = e.inst.Uninstall("b", nil)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestUninstallRestoresOriginalFile(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.write(t, pluginFile, "stock")
	newFake(t, "original").add("1.0", demoFiles("modded"))
	e.define(t, "demo", []string{"original"}, "GameData:GameData")

	install(t, e.inst, "demo", "", InstallOptions{})
	assert.Equal(t, "modded", e.read(t, pluginFile))

	m, err := e.inst.Manifest()
	require.NoError(t, err)
	backup, ok := m.OriginalFile(e.path(pluginFile))
	require.True(t, ok)
	assert.FileExists(t, backup)

	// A forced reinstall must not replace the backup with packman's own copy.
	install(t, e.inst, "demo", "", InstallOptions{Force: true})
	again, _ := m.OriginalFile(e.path(pluginFile))
	assert.Equal(t, backup, again)

	_, err = e.inst.Uninstall("demo", nil)
	require.NoError(t, err)
	assert.Equal(t, "stock", e.read(t, pluginFile))
}

func TestValidateDetectsTamper(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	newFake(t, "tamper").add("1.0", map[string]string{
		pluginFile:                 "v1",
		"GameData/Demo/readme.txt": "hello",
	})
	e.define(t, "demo", []string{"tamper"}, "GameData:GameData")
	install(t, e.inst, "demo", "", InstallOptions{})

	invalid, err := e.inst.Validate("demo")
	require.NoError(t, err)
	assert.Empty(t, invalid)

	e.write(t, pluginFile, "tampered")
	invalid, err = e.inst.Validate("demo")
	require.NoError(t, err)
	assert.Equal(t, []string{e.path(pluginFile)}, invalid)

	_, err = e.inst.Validate("other")
	assert.ErrorIs(t, err, ErrNotInstalled)
}

func TestFallsBackToNextSource(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	broken := newFake(t, "fallback-broken").add("1.0", demoFiles("never"))
	broken.fail = errors.New("connection reset")
	good := newFake(t, "fallback-good").add("1.0", demoFiles("v1"))
	e.define(t, "demo", []string{"fallback-broken", "fallback-good"}, "GameData:GameData")

	install(t, e.inst, "demo", "1.0", InstallOptions{NoCache: true})
	assert.Equal(t, 1, broken.fetchCount())
	assert.Equal(t, 1, good.fetchCount())
	assert.Equal(t, "v1", e.read(t, pluginFile))
}

func TestNoSources(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	boom := errors.New("boom")
	fake := newFake(t, "nosources").add("1.0", demoFiles("v1"))
	fake.fail = boom
	e.define(t, "demo", []string{"nosources"}, "GameData:GameData")

	_, err := e.inst.Install(context.Background(), "demo", "1.0", InstallOptions{}, nil)
	var noSources *NoSourcesError
	require.ErrorAs(t, err, &noSources)
	assert.Equal(t, "demo", noSources.Package)
	assert.Len(t, noSources.Causes, 2, "cache miss and source failure")
	assert.ErrorIs(t, err, boom)

	assert.False(t, e.inst.Pending())
	assert.NoFileExists(t, e.manifest)
}

func TestVersionNotFound(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	newFake(t, "noversion").add("1.0", demoFiles("v1"))
	e.define(t, "demo", []string{"noversion"}, "GameData:GameData")

	_, err := e.inst.Install(context.Background(), "demo", "9.9", InstallOptions{}, nil)
	var notFound *VersionNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "9.9", notFound.Version)
	assert.ErrorIs(t, err, source.ErrVersionNotFound)
}

func TestPackageNotFound(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	newFake(t, "suggest").add("1.0", demoFiles("v1"))
	e.define(t, "kerbal-engineer", []string{"suggest"}, "GameData:GameData")

	_, err := e.inst.Install(context.Background(), "kerbal", "", InstallOptions{}, nil)
	assert.ErrorIs(t, err, ErrPackageNotFound)
	var notFound *PackageNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, []string{"kerbal-engineer"}, notFound.Suggestions)
}

func TestFailedStepRollsBack(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.write(t, pluginFile, "stock")
	newFake(t, "rollback").add("1.0", map[string]string{
		pluginFile:        "modded",
		"Ships/A/a.craft": "a",
		"Ships/B/b.craft": "b",
	})
	e.define(t, "demo", []string{"rollback"}, "GameData:GameData", "Ships/*:Ships")

	_, err := e.inst.Install(context.Background(), "demo", "", InstallOptions{}, nil)
	require.Error(t, err)

	assert.Equal(t, "stock", e.read(t, pluginFile))
	assert.NoDirExists(t, e.path("Ships"))
	assert.False(t, e.inst.Pending())
	m, err := e.inst.Manifest()
	require.NoError(t, err)
	assert.False(t, m.Has("demo"))
}

func TestEmptyPackageIsRejected(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	newFake(t, "empty").add("1.0", map[string]string{"README.md": "docs only"})
	e.define(t, "demo", []string{"empty"}, "GameData:GameData")

	_, err := e.inst.Install(context.Background(), "demo", "", InstallOptions{}, nil)
	assert.ErrorIs(t, err, ErrNoFiles)
	assert.False(t, e.inst.Pending())
}

func TestUpgradeOrphansModifiedFile(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	fake := newFake(t, "upgrade")
	fake.add("1.0", map[string]string{pluginFile: "v1", "GameData/Demo/settings.cfg": "defaults"})
	e.define(t, "demo", []string{"upgrade"}, "GameData:GameData")
	install(t, e.inst, "demo", "1.0", InstallOptions{})

	e.write(t, "GameData/Demo/settings.cfg", "user edits")
	fake.add("2.0", map[string]string{pluginFile: "v2"})
	install(t, e.inst, "demo", "2.0", InstallOptions{})

	assert.Equal(t, "v2", e.read(t, pluginFile))
	assert.Equal(t, "user edits", e.read(t, "GameData/Demo/settings.cfg"))
	orphans, err := e.inst.Orphans()
	require.NoError(t, err)
	assert.Equal(t, []string{e.path("GameData/Demo/settings.cfg")}, orphans)

	n, err := e.inst.Clean(false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoFileExists(t, e.path("GameData/Demo/settings.cfg"))

	orphans, err = e.open(t).Orphans()
	require.NoError(t, err)
	assert.Empty(t, orphans)
}

func TestUpgradeRemovesStaleFiles(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	fake := newFake(t, "stale")
	fake.add("1.0", map[string]string{pluginFile: "v1", "GameData/Demo/old.dll": "old"})
	e.define(t, "demo", []string{"stale"}, "GameData:GameData")
	install(t, e.inst, "demo", "1.0", InstallOptions{})

	fake.add("2.0", map[string]string{pluginFile: "v2"})
	install(t, e.inst, "demo", "", InstallOptions{})

	assert.NoFileExists(t, e.path("GameData/Demo/old.dll"))
	orphans, err := e.inst.Orphans()
	require.NoError(t, err)
	assert.Empty(t, orphans)
}

func TestInterruptedOperationBlocksInstall(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.write(t, pluginFile, "stock")
	newFake(t, "blocked").add("1.0", demoFiles("v1"))
	e.define(t, "demo", []string{"blocked"}, "GameData:GameData")

	// Simulate a crash halfway through an earlier install.
	crashed, err := operation.New(e.cfg.LockName, e.cfg.Operation)
	require.NoError(t, err)
	require.NoError(t, crashed.WriteFile(e.path(pluginFile), []byte("half written")))
	require.NoError(t, crashed.WriteFile(e.path("GameData/Other/new.cfg"), []byte("new")))

	results := e.inst.InstallAll(context.Background(), []Request{{Name: "demo"}, {Name: "demo", Version: "1.0"}}, InstallOptions{}, nil)
	require.Len(t, results, 2)
	assert.ErrorIs(t, results[0].Err, operation.ErrStateFileExists)
	assert.ErrorIs(t, results[1].Err, ErrAbandoned)
	assert.Equal(t, 2, results.Unchanged())
	assert.Error(t, results.Err())

	_, err = e.inst.Uninstall("demo", nil)
	assert.ErrorIs(t, err, operation.ErrStateFileExists)

	var last float64
	require.NoError(t, e.open(t).Recover(func(p float64) { last = p }))
	assert.Equal(t, 1.0, last)
	assert.Equal(t, "stock", e.read(t, pluginFile))
	assert.NoFileExists(t, e.path("GameData/Other/new.cfg"))

	assert.ErrorIs(t, e.inst.Recover(nil), ErrNothingToRecover)
	assert.True(t, install(t, e.inst, "demo", "", InstallOptions{}))
}

func TestBatchContinuesPastFailures(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	newFake(t, "batch").add("1.0", demoFiles("v1"))
	e.define(t, "demo", []string{"batch"}, "GameData:GameData")

	tracked := map[string]bool{}
	results := e.inst.InstallAll(context.Background(),
		[]Request{ParseRequest("missing"), ParseRequest("demo@1.0"), ParseRequest("demo")},
		InstallOptions{},
		func(req Request) progress.Func {
			tracked[req.String()] = true
			return nil
		})
	require.Len(t, results, 3)
	assert.ErrorIs(t, results[0].Err, ErrPackageNotFound)
	assert.True(t, results[1].Changed)
	assert.NoError(t, results[2].Err)
	assert.False(t, results[2].Changed, "already installed")
	assert.Equal(t, 2, results.Unchanged())
	assert.True(t, tracked["demo@1.0"])
}

func TestInstallAllStopsWhenCancelled(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := e.inst.InstallAll(ctx, []Request{{Name: "a"}, {Name: "b"}}, InstallOptions{}, nil)
	for _, res := range results {
		assert.ErrorIs(t, res.Err, operation.ErrCancelled)
	}
}

func TestUpgradeAll(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	fake := newFake(t, "upgradeall").add("1.0", demoFiles("v1"))
	e.define(t, "demo", []string{"upgradeall"}, "GameData:GameData")
	install(t, e.inst, "demo", "", InstallOptions{})

	fake.add("1.1", demoFiles("v1.1"))
	results, err := e.inst.UpgradeAll(context.Background(), InstallOptions{}, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Changed)
	assert.Equal(t, "v1.1", e.read(t, pluginFile))
}

func TestVersionsAcrossSources(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	newFake(t, "versions-a").add("1.0", nil).add("1.1", nil)
	newFake(t, "versions-b").add("1.1", nil).add("2.0", nil)
	e.define(t, "demo", []string{"versions-a", "versions-b"}, "GameData:GameData")

	versions, err := e.inst.Versions(context.Background(), "demo")
	require.NoError(t, err)
	assert.Equal(t, []string{"1.0", "1.1", "2.0"}, versions)

	info, err := e.inst.LatestVersionInfo(context.Background(), "demo")
	require.NoError(t, err)
	assert.Equal(t, "1.1", info.Version)

	info, err = e.inst.VersionInfo(context.Background(), "demo", "2.0")
	require.NoError(t, err)
	assert.Equal(t, "2.0", info.Version)
}

func TestPackagesAndInstalled(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	newFake(t, "listing").add("1.0", demoFiles("v1"))
	e.define(t, "zeta", []string{"listing"}, "GameData:GameData")
	e.define(t, "alpha", []string{"listing"}, "GameData:GameData")

	defs, err := e.inst.Packages()
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "alpha", defs[0].ID)

	install(t, e.inst, "zeta", "", InstallOptions{})
	installed, err := e.inst.Installed()
	require.NoError(t, err)
	require.Len(t, installed, 1)
	assert.Equal(t, "zeta", installed[0].Name)
	assert.Equal(t, "1.0", installed[0].Version)
	assert.Equal(t, 1, installed[0].Files)
	require.NotNil(t, installed[0].Definition)

	require.NoError(t, os.Remove(filepath.Join(e.defs, "zeta.yml")))
	installed, err = e.inst.Installed()
	require.NoError(t, err)
	assert.Nil(t, installed[0].Definition)
}

func TestUpdateCopiesChangedDefinitions(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.cloner.files = map[string]string{
		"cfg/demo.yml":        "name: Demo\n",
		"cfg/nested/tool.yml": "name: Tool\n",
		"README.md":           "outside the subdir",
	}

	changed, err := e.inst.Update(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.FileExists(t, filepath.Join(e.defs, "nested", "tool.yml"))
	assert.NoFileExists(t, filepath.Join(e.defs, "README.md"))

	changed, err = e.inst.Update(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 2, e.cloner.calls)

	entries, err := os.ReadDir(e.cfg.Operation.ScratchDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "clone directories are removed")
}
