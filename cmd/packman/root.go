package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	cli     *app

	rootCmd = &cobra.Command{
		Use:   "packman",
		Short: "Install, update and remove game mods transactionally",
		Long: `Packman installs game modifications from package definitions.

Every install and uninstall either completes or is rolled back, even if
packman is interrupted half way: run 'packman recover' after a crash.

Examples:
  packman list                   # Packages with a definition
  packman install kerbal-engineer
  packman install mechjeb@2.14.3 # A specific version
  packman install                # Update everything installed
  packman uninstall mechjeb
  packman export -o mods.zip     # Bundle installed files`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ~/.config/packman/config.yaml)")
	flags.String("root", "", "game directory packages are installed into")
	flags.String("definitions", "", "directory holding package definitions")
	flags.String("manifest", "", "installed package ledger")
	flags.BoolP("verbose", "v", false, "debug output on stderr")
	flags.BoolP("quiet", "q", false, "minimal output")
	flags.Bool("plain", false, "plain progress lines instead of the interactive view")
}

// Execute runs the root command and releases what it opened.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if closeErr := teardown(); err == nil {
		err = closeErr
	}
	return err
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
