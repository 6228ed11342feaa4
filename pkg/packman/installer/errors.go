package installer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jamesainslie/packman/pkg/packman/operation"
)

var (
	// ErrPackageNotFound is matched by PackageNotFoundError.
	ErrPackageNotFound = errors.New("package not found")

	// ErrNotInstalled is returned for actions on a package that is not
	// installed.
	ErrNotInstalled = errors.New("package is not installed")

	// ErrNoFiles rejects a package whose steps produced no files.
	ErrNoFiles = errors.New("package has no files")

	// ErrNothingToRecover is returned by Recover when no operation was
	// interrupted.
	ErrNothingToRecover = operation.ErrNoState

	// ErrAbandoned marks batch entries skipped because an interrupted
	// operation has to be recovered first.
	ErrAbandoned = errors.New("abandoned: an interrupted operation must be recovered first")

	// ErrUnknownFormat is returned for export formats other than json and zip.
	ErrUnknownFormat = errors.New("unknown export format")
)

// PackageNotFoundError reports a package without a definition.
type PackageNotFoundError struct {
	Name        string
	Suggestions []string
}

func (e *PackageNotFoundError) Error() string {
	msg := fmt.Sprintf("package %q not found", e.Name)
	if len(e.Suggestions) > 0 {
		msg += "; did you mean " + strings.Join(e.Suggestions, ", ") + "?"
	}
	return msg
}

// Is matches ErrPackageNotFound.
func (e *PackageNotFoundError) Is(target error) bool {
	return target == ErrPackageNotFound
}

func versionLabel(version string) string {
	if version == "" {
		return "latest"
	}
	return version
}

// VersionNotFoundError reports that no source could resolve a version.
type VersionNotFoundError struct {
	Package string
	Version string
	Causes  []error
}

func (e *VersionNotFoundError) Error() string {
	return fmt.Sprintf("no version info for %s@%s%s", e.Package, versionLabel(e.Version), causes(e.Causes))
}

func (e *VersionNotFoundError) Unwrap() []error { return e.Causes }

// NoSourcesError reports that neither the cache nor any source could fetch
// a version.
type NoSourcesError struct {
	Package string
	Version string
	Causes  []error
}

func (e *NoSourcesError) Error() string {
	return fmt.Sprintf("no available sources for %s@%s%s", e.Package, versionLabel(e.Version), causes(e.Causes))
}

func (e *NoSourcesError) Unwrap() []error { return e.Causes }

func causes(errs []error) string {
	if len(errs) == 0 {
		return ""
	}
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return ": " + strings.Join(msgs, "; ")
}
