package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	MaxSize    string            `mapstructure:"max_size"`
	MaxBackups int               `mapstructure:"max_backups"`
	Components map[string]string `mapstructure:"components"`
}

// GitConfig locates the remote package definitions.
type GitConfig struct {
	URL    string `mapstructure:"url"`
	Subdir string `mapstructure:"subdir"`
}

// NetworkConfig bounds network access.
type NetworkConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	ChunkSize int           `mapstructure:"chunk_size"`
	Retries   int           `mapstructure:"retries"`
}

// PathsConfig locates packman's own storage.
type PathsConfig struct {
	Scratch string `mapstructure:"scratch"`
	Backups string `mapstructure:"backups"`
	Cache   string `mapstructure:"cache"`
}

// GitHubConfig configures the github source.
type GitHubConfig struct {
	Token  string `mapstructure:"token"`
	APIURL string `mapstructure:"api_url"`
}

// SpaceDockConfig configures the spacedock source.
type SpaceDockConfig struct {
	APIURL string `mapstructure:"api_url"`
}

// Config represents the application configuration.
type Config struct {
	DefinitionsDir string          `mapstructure:"definitions_dir"`
	ManifestPath   string          `mapstructure:"manifest_path"`
	RootDir        string          `mapstructure:"root_dir"`
	LockName       string          `mapstructure:"lock_name"`
	Git            GitConfig       `mapstructure:"git"`
	Network        NetworkConfig   `mapstructure:"network"`
	Paths          PathsConfig     `mapstructure:"paths"`
	GitHub         GitHubConfig    `mapstructure:"github"`
	SpaceDock      SpaceDockConfig `mapstructure:"spacedock"`
	Logging        LoggingConfig   `mapstructure:"logging"`
}

// legacyEnv maps environment variables understood by earlier packman
// releases onto config keys.
var legacyEnv = map[string]string{
	"definitions_dir": "PACKMAN_CONFIG_FILE",
	"manifest_path":   "PACKMAN_MANIFEST_FILE",
	"git.url":         "PACKMAN_GIT_URL",
	"git.subdir":      "PACKMAN_GIT_CONFIG_FILE",
	"github.token":    "GITHUB_TOKEN",
	"logging.level":   "PACKMAN_LOGGING",
}

// New returns a viper instance with packman's defaults, search paths and
// environment bindings. configFile, when set, replaces the search paths.
func New(configFile string) *viper.Viper {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(ConfigDir())
	}

	v.SetEnvPrefix("PACKMAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		_ = v.BindEnv(key, "PACKMAN_"+strings.ToUpper(strings.NewReplacer(".", "_").Replace(key)), env)
	}

	SetDefaults(v)
	return v
}

// SetDefaults registers every default value on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("definitions_dir", DefaultDefinitionsDir)
	v.SetDefault("manifest_path", DefaultManifestPath)
	v.SetDefault("root_dir", DefaultRootDir)
	v.SetDefault("lock_name", DefaultLockName)

	v.SetDefault("git.url", DefaultGitURL)
	v.SetDefault("git.subdir", DefaultGitSubdir)

	v.SetDefault("network.timeout", DefaultTimeout)
	v.SetDefault("network.chunk_size", DefaultChunkSize)
	v.SetDefault("network.retries", DefaultRetries)

	v.SetDefault("paths.scratch", ScratchDir())
	v.SetDefault("paths.backups", BackupDir())
	v.SetDefault("paths.cache", CacheDir())

	v.SetDefault("github.token", "")
	v.SetDefault("github.api_url", DefaultGitHubAPI)
	v.SetDefault("spacedock.api_url", DefaultSpaceDockAPI)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.max_size", "10MB")
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.components", map[string]string{})
}

// Load loads configuration from file and environment variables.
// Config file locations, unless configFile is given:
//   - $XDG_CONFIG_HOME/packman/config.yaml
//   - $HOME/.config/packman/config.yaml
//
// Environment variables are prefixed with PACKMAN_ (e.g. PACKMAN_ROOT_DIR).
func Load(configFile string) (*Config, error) {
	return FromViper(New(configFile))
}

// FromViper reads the config file registered on v, if any, and decodes the
// merged settings.
func FromViper(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is acceptable; we use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// An explicit empty value in the file means "platform default".
	if cfg.Paths.Scratch == "" {
		cfg.Paths.Scratch = ScratchDir()
	}
	if cfg.Paths.Backups == "" {
		cfg.Paths.Backups = BackupDir()
	}
	if cfg.Paths.Cache == "" {
		cfg.Paths.Cache = CacheDir()
	}

	for _, p := range []*string{
		&cfg.DefinitionsDir, &cfg.ManifestPath, &cfg.RootDir,
		&cfg.Paths.Scratch, &cfg.Paths.Backups, &cfg.Paths.Cache, &cfg.Logging.Path,
	} {
		expanded, err := ExpandPath(*p)
		if err != nil {
			return nil, err
		}
		*p = expanded
	}

	return &cfg, cfg.Validate()
}

// Validate rejects settings the rest of packman cannot work with.
func (c *Config) Validate() error {
	switch {
	case c.DefinitionsDir == "":
		return errors.New("definitions_dir must not be empty")
	case c.ManifestPath == "":
		return errors.New("manifest_path must not be empty")
	case c.RootDir == "":
		return errors.New("root_dir must not be empty")
	case c.LockName == "" || strings.ContainsAny(c.LockName, `/\`):
		return fmt.Errorf("invalid lock_name %q", c.LockName)
	case c.Network.Timeout <= 0:
		return errors.New("network.timeout must be positive")
	case c.Network.ChunkSize <= 0:
		return errors.New("network.chunk_size must be positive")
	}
	return nil
}

// ConfigDir returns the directory holding config.yaml.
func ConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "packman")
	}
	return filepath.Join(xdg.ConfigHome, "packman")
}

// ConfigFile returns the default config file path.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ScratchDir returns $TMPDIR/packman for downloads, extractions and
// operation recovery files.
func ScratchDir() string {
	return filepath.Join(os.TempDir(), "packman")
}

// BackupDir returns $XDG_STATE_HOME/packman/backups for the pre-install
// content of files packages overwrite.
func BackupDir() string {
	return filepath.Join(xdg.StateHome, "packman", "backups")
}

// CacheDir returns $XDG_CACHE_HOME/packman for cached package archives.
func CacheDir() string {
	return filepath.Join(xdg.CacheHome, "packman")
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") && !strings.HasPrefix(path, `~\`) {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}

// WriteDefault writes a commented default config file to path unless one
// already exists. It reports whether a file was written.
func WriteDefault(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to check config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}

	content := fmt.Sprintf(`# packman configuration

# Directory holding one package definition file per package
definitions_dir: %s

# Ledger of installed packages
manifest_path: %s

# Game installation directory packages are installed into
root_dir: %s

# Remote repository "packman update" pulls definitions from
git:
  url: %s
  subdir: %s

network:
  timeout: %s
  chunk_size: %d
  retries: %d

# Leave empty to use the platform defaults
paths:
  scratch: ""
  backups: ""
  cache: ""

github:
  # Optional token to raise the API rate limit
  token: ""

logging:
  # Log level: debug, info, warn, error
  level: info
  # Empty means $XDG_STATE_HOME/packman/packman.log
  path: ""
  max_size: 10MB
  max_backups: 3
`, DefaultDefinitionsDir, DefaultManifestPath, DefaultRootDir, DefaultGitURL, DefaultGitSubdir,
		DefaultTimeout, DefaultChunkSize, DefaultRetries)

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("failed to write default config: %w", err)
	}
	return true, nil
}
