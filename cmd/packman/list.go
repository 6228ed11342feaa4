package main

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/packman/pkg/packman/output"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls", "packages"},
	Short:   "List available packages",
	Long:    `Lists every package with a definition in the definitions directory.`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.list(formatFlag(cmd))
	},
}

var installedCmd = &cobra.Command{
	Use:   "installed",
	Short: "List installed packages",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.installed(formatFlag(cmd))
	},
}

var versionsCmd = &cobra.Command{
	Use:   "versions <package>",
	Short: "List the versions of a package",
	Long: `Lists every version the package's sources offer, newest first as
reported by each source. Versions offered by several sources are listed
once.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.versions(cmd.Context(), args[0], formatFlag(cmd))
	},
}

func init() {
	for _, cmd := range []*cobra.Command{listCmd, installedCmd, versionsCmd} {
		addFormatFlag(cmd)
		rootCmd.AddCommand(cmd)
	}
}

func (a *app) list(format string) error {
	inst, err := a.installer()
	if err != nil {
		return err
	}
	defs, loadErr := inst.Packages()
	if loadErr != nil && len(defs) == 0 {
		return loadErr
	}
	if loadErr != nil {
		a.warnf("some definitions could not be loaded; run 'packman lint' for details")
	}

	l := output.NewListing("Available packages", "package", "name", "description")
	l.Empty = "No package definitions in " + relPath(a.cfg.DefinitionsDir)
	for _, def := range defs {
		l.Add(def.ID, def.Name, def.Description)
	}
	return a.render(l, format)
}

func (a *app) installed(format string) error {
	inst, err := a.installer()
	if err != nil {
		return err
	}
	pkgs, err := inst.Installed()
	if err != nil {
		return err
	}

	l := output.NewListing("Installed packages", "package", "version", "option", "files", "name")
	l.Empty = "No packages installed."
	for _, p := range pkgs {
		name := ""
		if p.Definition != nil {
			name = p.Definition.Name
		}
		l.Add(p.Name, versionName(p.Version), p.Option, strconv.Itoa(p.Files), name)
	}
	return a.render(l, format)
}

func (a *app) versions(ctx context.Context, name, format string) error {
	inst, err := a.installer()
	if err != nil {
		return err
	}
	versions, err := inst.Versions(ctx, name)
	if err != nil {
		return err
	}
	current := ""
	if m, err := inst.Manifest(); err == nil {
		if pkg, ok := m.Get(name); ok {
			current = pkg.Version
		}
	}

	l := output.NewListing(name, "version", "installed")
	l.Empty = "No versions available; the package's sources are unversioned."
	for _, v := range versions {
		mark := ""
		if v == current {
			mark = "yes"
		}
		l.Add(v, mark)
	}
	return a.render(l, format)
}

// versionName labels packages from unversioned sources.
func versionName(version string) string {
	if version == "" {
		return "unknown"
	}
	return version
}
