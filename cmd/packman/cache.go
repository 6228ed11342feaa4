package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/packman/pkg/packman/output"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the package archive cache",
	Long: `Commands for managing the package archive cache.

Installs keep an archive of every downloaded version so reinstalling it
does not download again. The cache is stored in the XDG cache directory
(typically ~/.cache/packman) unless paths.cache is set.`,
}

var cacheListCmd = &cobra.Command{
	Use:   "list [package]",
	Short: "List cached archives",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		return cli.cacheList(name, formatFlag(cmd))
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.cacheStats()
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [package]",
	Short: "Remove cached archives",
	Long:  `Removes every cached archive, or only those of one package.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		return cli.cacheClear(name)
	},
}

var cachePathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show cache location",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cli.out, cli.cfg.Paths.Cache)
	},
}

func init() {
	addFormatFlag(cacheListCmd)
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cachePathCmd)
	rootCmd.AddCommand(cacheCmd)
}

func (a *app) cacheList(name, format string) error {
	c, err := a.openCache()
	if err != nil {
		return err
	}
	entries, err := c.List(name)
	if err != nil {
		return err
	}

	l := output.NewListing("Cached archives", "package", "version", "option", "size", "cached")
	l.Empty = "The cache is empty."
	for _, e := range entries {
		l.Add(e.Name, versionName(e.Version), e.Option, humanize.Bytes(uint64(e.Size)), e.CreatedAt().Format(time.DateTime))
	}
	return a.render(l, format)
}

func (a *app) cacheStats() error {
	c, err := a.openCache()
	if err != nil {
		return err
	}
	stats, err := c.Stats()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Cache location: %s\n", c.Dir())
	fmt.Fprintf(a.out, "Archives:       %s\n", humanize.Comma(int64(stats.Entries)))
	fmt.Fprintf(a.out, "Packages:       %s\n", humanize.Comma(int64(stats.Packages)))
	fmt.Fprintf(a.out, "Size:           %s\n", humanize.Bytes(uint64(stats.Bytes)))
	return nil
}

func (a *app) cacheClear(name string) error {
	c, err := a.openCache()
	if err != nil {
		return err
	}
	n, err := c.Clear(name)
	if err != nil {
		return err
	}
	if n == 0 {
		a.printf("Cache is already empty.")
		return nil
	}
	a.printf("Removed %d cached %s.", n, plural(n, "archive", "archives"))
	return nil
}
