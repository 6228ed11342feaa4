package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/jamesainslie/packman/pkg/packman/cache"
	"github.com/jamesainslie/packman/pkg/packman/config"
	"github.com/jamesainslie/packman/pkg/packman/installer"
	"github.com/jamesainslie/packman/pkg/packman/logging"
	"github.com/jamesainslie/packman/pkg/packman/operation"
	"github.com/jamesainslie/packman/pkg/packman/output"
	"github.com/jamesainslie/packman/pkg/packman/source"
)

// app is the state shared by the commands of one invocation.
type app struct {
	cfg   *config.Config
	viper *viper.Viper
	log   logging.Config

	out    io.Writer
	errOut io.Writer

	// interactive selects the Bubble Tea progress view and glamour
	// rendering.
	interactive bool
	quiet       bool

	inst  *installer.Installer
	cache *cache.Cache
}

var flagKeys = map[string]string{
	"root":        "root_dir",
	"definitions": "definitions_dir",
	"manifest":    "manifest_path",
}

// setup loads the configuration and logging for every command.
func setup(cmd *cobra.Command, args []string) error {
	v := config.New(cfgFile)
	for flag, key := range flagKeys {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			_ = v.BindPFlag(key, f)
		}
	}
	cfg, err := config.FromViper(v)
	if err != nil {
		return err
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	quiet, _ := cmd.Flags().GetBool("quiet")
	plain, _ := cmd.Flags().GetBool("plain")

	a := newApp(cfg, os.Stdout, os.Stderr)
	a.viper = v
	a.quiet = quiet
	a.interactive = !plain && !quiet && term.IsTerminal(int(os.Stdout.Fd()))

	a.log, err = loggingConfig(cfg, verbose, quiet)
	if err != nil {
		return err
	}
	if err := logging.Init(a.log); err != nil {
		return err
	}
	cli = a
	return nil
}

func teardown() error {
	if cli == nil {
		return nil
	}
	err := cli.close()
	cli = nil
	_ = logging.Close()
	return err
}

func loggingConfig(cfg *config.Config, verbose, quiet bool) (logging.Config, error) {
	rotation, err := logging.ParseRotation(cfg.Logging.MaxSize, cfg.Logging.MaxBackups)
	if err != nil {
		return logging.Config{}, err
	}
	lc := logging.Config{
		Level:        cfg.Logging.Level,
		Path:         cfg.Logging.Path,
		Rotation:     rotation,
		Components:   cfg.Logging.Components,
		ConsoleLevel: "warn",
	}
	switch {
	case verbose:
		lc.Level = "debug"
		lc.ConsoleLevel = "debug"
	case quiet:
		lc.ConsoleLevel = "error"
	}
	return lc, nil
}

// newApp returns the command state for cfg. Nothing is opened until a
// command asks for it.
func newApp(cfg *config.Config, out, errOut io.Writer) *app {
	return &app{cfg: cfg, out: out, errOut: errOut}
}

// installerConfig copies the settings each core package needs.
func installerConfig(cfg *config.Config) installer.Config {
	client := operation.NewHTTPClient(cfg.Network.Timeout)
	retries := uint(max(cfg.Network.Retries, 1))
	return installer.Config{
		DefinitionsDir: cfg.DefinitionsDir,
		ManifestPath:   cfg.ManifestPath,
		RootDir:        cfg.RootDir,
		BackupDir:      cfg.Paths.Backups,
		LockName:       cfg.LockName,
		GitURL:         cfg.Git.URL,
		GitSubdir:      cfg.Git.Subdir,
		Operation: operation.Config{
			ScratchDir: cfg.Paths.Scratch,
			Client:     client,
			ChunkSize:  cfg.Network.ChunkSize,
			Retries:    retries,
		},
		Sources: source.Env{
			Client:       client,
			Retries:      retries,
			GitHubToken:  cfg.GitHub.Token,
			GitHubAPI:    cfg.GitHub.APIURL,
			SpaceDockAPI: cfg.SpaceDock.APIURL,
		},
	}
}

// openCache opens the archive cache on first use.
func (a *app) openCache() (*cache.Cache, error) {
	if a.cache != nil {
		return a.cache, nil
	}
	c, err := cache.Open(a.cfg.Paths.Cache)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	a.cache = c
	return c, nil
}

// installer builds the orchestrator on first use. A cache that cannot be
// opened, for example because another packman holds it, only disables
// caching.
func (a *app) installer() (*installer.Installer, error) {
	if a.inst != nil {
		return a.inst, nil
	}
	var opts []installer.Option
	if c, err := a.openCache(); err != nil {
		logging.Get("cli").Warn("continuing without cache", "error", err)
	} else {
		opts = append(opts, installer.WithCache(c))
	}
	inst, err := installer.New(installerConfig(a.cfg), opts...)
	if err != nil {
		return nil, err
	}
	a.inst = inst
	return inst, nil
}

func (a *app) close() error {
	if a.cache == nil {
		return nil
	}
	err := a.cache.Close()
	a.cache = nil
	return err
}

// printf writes to stdout unless --quiet is set.
func (a *app) printf(format string, args ...interface{}) {
	if !a.quiet {
		fmt.Fprintf(a.out, format+"\n", args...)
	}
}

// warnf writes a warning to stderr.
func (a *app) warnf(format string, args ...interface{}) {
	fmt.Fprintln(a.errOut, output.WarningStyle.Render("Warning: "+fmt.Sprintf(format, args...)))
}

// render writes l in the named format.
func (a *app) render(l *output.Listing, format string) error {
	f, err := output.Get(format)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := f.Format(&buf, l); err != nil {
		return err
	}
	_, err = a.out.Write(buf.Bytes())
	return err
}

// relPath shortens path for display when it is below the working directory.
func relPath(path string) string {
	wd, err := os.Getwd()
	if err != nil {
		return path
	}
	if rel, err := filepath.Rel(wd, path); err == nil && filepath.IsLocal(rel) {
		return rel
	}
	return path
}

// addFormatFlag adds --format to a listing command.
func addFormatFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("format", "o", "table", fmt.Sprintf("output format %v", output.Available()))
}

func formatFlag(cmd *cobra.Command) string {
	f, _ := cmd.Flags().GetString("format")
	return f
}
