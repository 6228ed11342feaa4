package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/packman/pkg/packman/output"
	"github.com/jamesainslie/packman/pkg/packman/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-check definitions as they are edited",
	Long: `Watches the definitions directory and checks every definition file
when it is saved, printing whether it is valid. Stop with Ctrl+C.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.watch(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func (a *app) watch(ctx context.Context) error {
	loader := a.loader()
	w, err := watcher.New(loader)
	if err != nil {
		return fmt.Errorf("watching %s: %w", loader.Dir(), err)
	}
	defer w.Close()

	a.printf("Watching %s (Ctrl+C to stop)", relPath(loader.Dir()))
	err = w.Run(ctx, func(ev watcher.Event) {
		switch {
		case ev.Removed:
			fmt.Fprintf(a.out, "%s %s: removed\n", output.MarkSkipped, ev.Name)
		case ev.Err != nil:
			fmt.Fprintf(a.out, "%s %s: %v\n", output.MarkFailed, ev.Name, ev.Err)
		default:
			fmt.Fprintf(a.out, "%s %s\n", output.MarkDone, ev.Name)
		}
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
