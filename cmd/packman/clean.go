package main

import (
	"github.com/spf13/cobra"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Resolve orphaned files",
	Long: `Orphaned files are files a package installed that were changed
afterwards, so packman kept them when the package was removed or
upgraded. Clean deletes them, or moves them to the system trash with
--trash. Use --dry-run to list them.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		useTrash, _ := cmd.Flags().GetBool("trash")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		return cli.clean(useTrash, dryRun)
	},
}

func init() {
	cleanCmd.Flags().Bool("trash", false, "move orphaned files to the system trash instead of deleting them")
	cleanCmd.Flags().BoolP("dry-run", "n", false, "list orphaned files without removing them")
	rootCmd.AddCommand(cleanCmd)
}

func (a *app) clean(useTrash, dryRun bool) error {
	inst, err := a.installer()
	if err != nil {
		return err
	}
	if dryRun {
		orphans, err := inst.Orphans()
		if err != nil {
			return err
		}
		if len(orphans) == 0 {
			a.printf("No orphaned files.")
		}
		for _, path := range orphans {
			a.printf("%s", relPath(path))
		}
		return nil
	}

	n, err := inst.Clean(useTrash)
	if n > 0 {
		verb := "Removed"
		if useTrash {
			verb = "Trashed"
		}
		a.printf("%s %d orphaned %s.", verb, n, plural(n, "file", "files"))
	} else if err == nil {
		a.printf("No orphaned files.")
	}
	return err
}
