package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/packman/pkg/packman/installer"
	"github.com/jamesainslie/packman/pkg/packman/progress"
)

var uninstallCmd = &cobra.Command{
	Use:     "uninstall [package...]",
	Aliases: []string{"remove", "rm"},
	Short:   "Uninstall packages",
	Long: `Removes the files each package installed and restores the files it
overwrote. Files changed since installation are kept as orphans; see
'packman clean'.

With no arguments every installed package is removed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.uninstall(cmd.Context(), args)
	},
}

func init() {
	rootCmd.AddCommand(uninstallCmd)
}

func uninstallLabel(req installer.Request) string {
	return "- " + req.Name
}

func (a *app) uninstall(ctx context.Context, names []string) error {
	inst, err := a.installer()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		m, err := inst.Manifest()
		if err != nil {
			return err
		}
		names = m.Packages()
		if len(names) == 0 {
			a.printf("No installed packages to uninstall.")
			return nil
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r := a.newReporter("Uninstalling packages", cancel)
	results := inst.UninstallAll(ctx, names, func(req installer.Request) progress.Func {
		return r.progress(uninstallLabel(req))
	})

	reportResults(r, results, uninstallLabel, "not installed; perhaps it was not installed with packman?")
	pendingHint(r, results)
	orphanHint(r, inst)
	if err := r.close(); err != nil {
		return err
	}
	return batchError(results)
}
