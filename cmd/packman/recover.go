package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/packman/cmd/packman/tui"
	"github.com/jamesainslie/packman/pkg/packman/installer"
)

const rollbackLabel = "rollback"

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Roll back an interrupted operation",
	Long: `Rolls back an install or uninstall that was interrupted, restoring
every file it had touched. Other commands refuse to run while such an
operation is pending.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.rollback()
	},
}

func init() {
	rootCmd.AddCommand(recoverCmd)
}

func (a *app) rollback() error {
	inst, err := a.installer()
	if err != nil {
		return err
	}
	if !inst.Pending() {
		a.printf("Nothing to recover.")
		return nil
	}

	// Rollback cannot be interrupted, so there is nothing to cancel.
	r := a.newReporter("Recovering", nil)
	err = inst.Recover(r.progress(rollbackLabel))
	switch {
	case errors.Is(err, installer.ErrNothingToRecover):
		r.finish(rollbackLabel, tui.Skipped, "nothing to recover")
		err = nil
	case err != nil:
		r.finish(rollbackLabel, tui.Failed, err.Error())
	default:
		r.finish(rollbackLabel, tui.Done, "")
	}
	if closeErr := r.close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
