package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/packman/cmd/packman/tui"
)

const updateLabel = "definitions"

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update package definitions from the remote repository",
	Long: `Fetches the package definitions from the configured git repository
(git.url, git.subdir) and copies the ones that changed into the
definitions directory. Installed packages are not touched; run
'packman install' to update them.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.update(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)
}

func (a *app) update(ctx context.Context) error {
	inst, err := a.installer()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r := a.newReporter("Updating", cancel)
	changed, err := inst.Update(ctx, r.progress(updateLabel))
	switch {
	case err != nil:
		r.finish(updateLabel, tui.Failed, err.Error())
	case changed:
		r.finish(updateLabel, tui.Done, "updated")
	default:
		r.finish(updateLabel, tui.Skipped, "already up to date")
	}
	if closeErr := r.close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
