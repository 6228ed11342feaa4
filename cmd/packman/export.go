package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/packman/cmd/packman/tui"
	"github.com/jamesainslie/packman/pkg/packman/installer"
	"github.com/jamesainslie/packman/pkg/packman/progress"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export installed packages",
	Long: `Writes the installed packages to a file another installation can
import. The json format lists package versions, which are downloaded
again on import; the zip format bundles the installed files themselves.

The format is inferred from the file extension unless --format is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("output")
		format, _ := cmd.Flags().GetString("format")
		return cli.export(path, format)
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import packages from an export",
	Long: `Installs the packages of a file written by 'packman export'. A json
export installs each listed version; a zip export restores the bundled
files in one operation.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("input")
		force, _ := cmd.Flags().GetBool("force")
		noCache, _ := cmd.Flags().GetBool("no-cache")
		return cli.importFile(cmd.Context(), path, installer.InstallOptions{Force: force, NoCache: noCache})
	},
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "file to write (default: packman-export.<format>)")
	exportCmd.Flags().String("format", "", "export format: json or zip")
	rootCmd.AddCommand(exportCmd)

	importCmd.Flags().StringP("input", "i", installer.DefaultExportName+".json", "file to import")
	importCmd.Flags().BoolP("force", "f", false, "reinstall packages already at the exported version")
	importCmd.Flags().Bool("no-cache", false, "download even when the version is cached")
	rootCmd.AddCommand(importCmd)
}

func (a *app) export(path, format string) error {
	inst, err := a.installer()
	if err != nil {
		return err
	}
	if path == "" {
		if path, err = installer.DefaultExportPath(format); err != nil {
			return err
		}
	}

	r := a.newReporter("Exporting", nil)
	err = inst.Export(path, format, r.progress(path))
	if err != nil {
		r.finish(path, tui.Failed, err.Error())
	} else {
		r.finish(path, tui.Done, "")
	}
	if closeErr := r.close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

func (a *app) importFile(ctx context.Context, path string, opts installer.InstallOptions) error {
	inst, err := a.installer()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r := a.newReporter("Importing "+path, cancel)
	results, err := inst.Import(ctx, path, opts, func(req installer.Request) progress.Func {
		return r.progress(installLabel(req))
	})
	if err != nil {
		r.finish(path, tui.Failed, err.Error())
		_ = r.close()
		return err
	}

	reportResults(r, results, installLabel, "already installed")
	pendingHint(r, results)
	orphanHint(r, inst)
	if err := r.close(); err != nil {
		return err
	}
	return batchError(results)
}
