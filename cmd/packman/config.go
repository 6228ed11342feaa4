package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/packman/pkg/packman/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage packman configuration settings.

Configuration is loaded from --config, or else from
$XDG_CONFIG_HOME/packman/config.yaml (typically ~/.config/packman).

Environment variables override config file settings using the PACKMAN_
prefix:
  PACKMAN_ROOT_DIR=~/games/ksp
  PACKMAN_NETWORK_TIMEOUT=1m
  PACKMAN_GITHUB_TOKEN=...   (or GITHUB_TOKEN)`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration merged from defaults, the config file, environment and flags.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.configShow()
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cli.out, configPath())
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration file",
	Long:  `Create a commented default configuration file if one doesn't exist.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath()
		written, err := config.WriteDefault(path)
		if err != nil {
			return err
		}
		if !written {
			cli.printf("Config file already exists: %s", path)
			return nil
		}
		cli.printf("Created default config file: %s", path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

// configPath is the file --config names, or the default location.
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.ConfigFile()
}

func (a *app) configShow() error {
	if used := a.viper.ConfigFileUsed(); used != "" {
		if _, err := os.Stat(used); err == nil {
			fmt.Fprintf(a.out, "# Config file: %s\n", used)
		} else {
			fmt.Fprintln(a.out, "# Config file: (none found, using defaults)")
		}
	} else {
		fmt.Fprintln(a.out, "# Config file: (none found, using defaults)")
	}

	settings := a.viper.AllSettings()
	if gh, ok := settings["github"].(map[string]interface{}); ok {
		if token, _ := gh["token"].(string); token != "" {
			gh["token"] = "********"
		}
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		return err
	}
	if _, err := a.out.Write(data); err != nil {
		return err
	}

	var overrides []string
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, "PACKMAN_") || name == "GITHUB_TOKEN" {
			overrides = append(overrides, name)
		}
	}
	sort.Strings(overrides)
	if len(overrides) > 0 {
		fmt.Fprintf(a.out, "# Environment overrides: %s\n", strings.Join(overrides, ", "))
	}
	return nil
}
