package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/packman/pkg/packman/installer"
	"github.com/jamesainslie/packman/pkg/packman/progress"
)

var installCmd = &cobra.Command{
	Use:   "install [package[@version]...]",
	Short: "Install or update packages",
	Long: `Installs each package at the requested version, or the latest one.

With no arguments every installed package is updated to its latest
version. A package already installed at the requested version is left
alone unless --force is given.`,
	RunE: runInstall,
}

func init() {
	installCmd.Flags().BoolP("force", "f", false, "reinstall packages already at the requested version")
	installCmd.Flags().Bool("no-cache", false, "download even when the version is cached")
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")
	noCache, _ := cmd.Flags().GetBool("no-cache")
	return cli.install(cmd.Context(), args, installer.InstallOptions{Force: force, NoCache: noCache})
}

func installLabel(req installer.Request) string {
	return "+ " + req.String()
}

func (a *app) install(ctx context.Context, args []string, opts installer.InstallOptions) error {
	inst, err := a.installer()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if len(args) == 0 {
		installed, err := inst.Installed()
		if err != nil {
			return err
		}
		if len(installed) == 0 {
			a.printf("No installed packages to update.")
			return nil
		}
	}

	r := a.newReporter("Installing packages", cancel)
	track := func(req installer.Request) progress.Func { return r.progress(installLabel(req)) }

	var results installer.Results
	if len(args) == 0 {
		results, err = inst.UpgradeAll(ctx, opts, track)
	} else {
		reqs := make([]installer.Request, len(args))
		for i, arg := range args {
			reqs[i] = installer.ParseRequest(arg)
		}
		results = inst.InstallAll(ctx, reqs, opts, track)
	}
	if err != nil {
		_ = r.close()
		return err
	}

	reportResults(r, results, installLabel, "already installed")
	if n := countUnchanged(results); n > 0 {
		r.note("%d %s not installed. Use -f to force installation.", n, plural(n, "package was", "packages were"))
	}
	pendingHint(r, results)
	orphanHint(r, inst)
	if err := r.close(); err != nil {
		return err
	}
	return batchError(results)
}

// countUnchanged counts successful entries that changed nothing.
func countUnchanged(results installer.Results) int {
	n := 0
	for _, res := range results {
		if res.Err == nil && !res.Changed {
			n++
		}
	}
	return n
}
