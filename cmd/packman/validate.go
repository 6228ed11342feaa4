package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/packman/pkg/packman/output"
)

var validateCmd = &cobra.Command{
	Use:   "validate [package...]",
	Short: "Check installed files against their checksums",
	Long: `Reports files of installed packages whose content changed since
packman installed them. With no arguments every installed package is
checked. Nothing is modified.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.validate(args)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func (a *app) validate(names []string) error {
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
			a.printf("No installed packages to validate.")
			return nil
		}
	}

	invalid := 0
	for _, name := range names {
		modified, err := inst.Validate(name)
		switch {
		case err != nil:
			invalid++
			fmt.Fprintf(a.out, "%s %s: %v\n", output.MarkFailed, name, err)
		case len(modified) > 0:
			invalid++
			fmt.Fprintf(a.out, "%s %s: %d modified %s\n", output.MarkFailed, name,
				len(modified), plural(len(modified), "file", "files"))
			for _, path := range modified {
				fmt.Fprintf(a.out, "    %s\n", relPath(path))
			}
		default:
			a.printf("%s %s", output.MarkDone, name)
		}
	}
	if invalid > 0 {
		return fmt.Errorf("%d of %d %s failed validation", invalid, len(names), plural(len(names), "package", "packages"))
	}
	return nil
}
