// Package source defines where packages come from. A Source resolves
// version metadata and fetches a version's files into the filesystem
// through an operation.Operation, leaving the operation's last path at the
// extracted package directory.
//
// Sources are selected in package definitions by their "type" field and
// decoded through Registry.
package source

import (
	"context"
	"errors"
	"net/http"

	"github.com/jamesainslie/packman/pkg/packman/operation"
	"github.com/jamesainslie/packman/pkg/packman/plugin"
	"github.com/jamesainslie/packman/pkg/packman/progress"
)

var (
	// ErrVersionNotFound is returned when a source does not know a version.
	ErrVersionNotFound = errors.New("version not found")

	// ErrVersionUnsupported is returned when an unversioned source is asked
	// for a specific version.
	ErrVersionUnsupported = errors.New("source does not support versions")

	// ErrUnknownOption is returned when a fetch asks for an option the
	// version does not offer.
	ErrUnknownOption = errors.New("unknown option")
)

// Version describes one installable version of a package.
type Version struct {
	Name string
	// Version is empty for unversioned sources.
	Version     string
	Options     []string
	Description string
}

// Option returns the default option, the first one offered.
func (v *Version) Option() string {
	if len(v.Options) == 0 {
		return ""
	}
	return v.Options[0]
}

// Source is a provider of package versions.
type Source interface {
	// Type returns the tag the source is registered under.
	Type() string
	Version(ctx context.Context, id string) (*Version, error)
	LatestVersion(ctx context.Context) (*Version, error)
	// Versions lists every known version identifier, without duplicates.
	Versions(ctx context.Context) ([]string, error)
	// FetchVersion must perform all filesystem effects through op and
	// leave op.LastPath() at the package directory on success.
	FetchVersion(ctx context.Context, version, option string, op *operation.Operation, onProgress progress.Func) error
}

// Env carries the process configuration sources need.
type Env struct {
	Client       *http.Client
	Retries      uint
	GitHubToken  string
	GitHubAPI    string
	SpaceDockAPI string
}

// Configurable is implemented by sources that talk to the network.
type Configurable interface {
	Configure(env Env)
}

// Configure hands env to s if it wants it.
func Configure(s Source, env Env) {
	if c, ok := s.(Configurable); ok {
		c.Configure(env)
	}
}

// Registry holds every source type, keyed on "type".
var Registry = plugin.NewRegistry[Source]("source", "type")
