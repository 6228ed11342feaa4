package installer

import (
	"context"
	"errors"
	"fmt"

	"github.com/sahilm/fuzzy"
	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/packman/pkg/packman/definition"
	"github.com/jamesainslie/packman/pkg/packman/source"
)

// maxSuggestions bounds the "did you mean" list.
const maxSuggestions = 3

// versionQueryLimit bounds concurrent source queries.
const versionQueryLimit = 4

// Packages returns every available definition, sorted by name. Broken
// definitions are skipped and reported in the error.
func (i *Installer) Packages() ([]*definition.Definition, error) {
	return i.defs.All()
}

// InstalledPackage joins a manifest entry with its definition.
type InstalledPackage struct {
	Name    string
	Version string
	Option  string
	Files   int
	// Definition is nil when the definition file was removed.
	Definition *definition.Definition
}

// Installed lists installed packages, sorted by name.
func (i *Installer) Installed() ([]InstalledPackage, error) {
	m, err := i.Manifest()
	if err != nil {
		return nil, err
	}
	names := m.Packages()
	out := make([]InstalledPackage, 0, len(names))
	for _, name := range names {
		pkg, _ := m.Get(name)
		entry := InstalledPackage{
			Name:    name,
			Version: pkg.Version,
			Option:  pkg.Option(),
			Files:   len(pkg.Files),
		}
		if def, err := i.defs.Load(name); err == nil {
			entry.Definition = def
		} else {
			logger.Debug("installed package has no definition", "package", name, "error", err)
		}
		out = append(out, entry)
	}
	return out, nil
}

// VersionInfo resolves version of the named package. An empty version
// means latest.
func (i *Installer) VersionInfo(ctx context.Context, name, version string) (*source.Version, error) {
	def, err := i.Definition(name)
	if err != nil {
		return nil, err
	}
	return i.resolve(ctx, def, version)
}

// LatestVersionInfo resolves the latest version of the named package.
func (i *Installer) LatestVersionInfo(ctx context.Context, name string) (*source.Version, error) {
	return i.VersionInfo(ctx, name, "")
}

// Versions lists every version any source offers for the named package,
// in source order without duplicates. Sources are queried concurrently; a
// failing source is skipped unless all of them fail.
func (i *Installer) Versions(ctx context.Context, name string) ([]string, error) {
	def, err := i.Definition(name)
	if err != nil {
		return nil, err
	}

	results := make([][]string, len(def.Sources))
	errs := make([]error, len(def.Sources))
	var g errgroup.Group
	g.SetLimit(versionQueryLimit)
	for n, src := range def.Sources {
		g.Go(func() error {
			versions, err := src.Versions(ctx)
			if err != nil {
				logger.Warn("failed to list versions", "package", name, "source", src.Type(), "error", err)
				errs[n] = fmt.Errorf("%s: %w", src.Type(), err)
				return nil
			}
			results[n] = versions
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	if failed == len(def.Sources) {
		return nil, errors.Join(errs...)
	}

	seen := make(map[string]struct{})
	var out []string
	for _, versions := range results {
		for _, v := range versions {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out, nil
}

// Suggest returns the package names closest to name.
func (i *Installer) Suggest(name string) []string {
	names, err := i.defs.Names()
	if err != nil || name == "" {
		return nil
	}
	matches := fuzzy.Find(name, names)
	out := make([]string, 0, maxSuggestions)
	for _, match := range matches {
		if len(out) == maxSuggestions {
			break
		}
		out = append(out, match.Str)
	}
	return out
}
