// Package config provides configuration management for packman.
package config

import "time"

// Default configuration values for packman.
const (
	// DefaultDefinitionsDir holds one package definition file per package.
	DefaultDefinitionsDir = "cfg"

	// DefaultManifestPath is the installed-package ledger.
	DefaultManifestPath = "packman.json"

	// DefaultRootDir is the game installation packages are installed into.
	DefaultRootDir = "."

	// DefaultGitURL is the remote repository package definitions are updated from.
	DefaultGitURL = "https://github.com/audoh/packman.git"

	// DefaultGitSubdir is the directory inside DefaultGitURL holding definitions.
	DefaultGitSubdir = "cfg"

	// DefaultTimeout bounds every network request.
	DefaultTimeout = 30 * time.Second

	// DefaultChunkSize is the read size used when streaming downloads.
	DefaultChunkSize = 8192

	// DefaultRetries is the number of attempts made for transient network failures.
	DefaultRetries = 3

	// DefaultLockName keys the recovery file of in-flight operations.
	DefaultLockName = "packman"

	// DefaultGitHubAPI is the GitHub REST endpoint.
	DefaultGitHubAPI = "https://api.github.com"

	// DefaultSpaceDockAPI is the SpaceDock REST endpoint.
	DefaultSpaceDockAPI = "https://spacedock.info/api/"
)
