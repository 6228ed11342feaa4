package operation

import (
	"errors"
	"fmt"
)

var (
	// ErrStateFileExists is matched by StateFileExistsError.
	ErrStateFileExists = errors.New("state file exists")

	// ErrNoState is returned by Recover when no recovery file exists.
	ErrNoState = errors.New("no interrupted operation to recover")

	// ErrClosed is returned when a closed Operation is asked to mutate.
	ErrClosed = errors.New("operation is closed")

	// ErrCancelled wraps the error of an Operation that was rolled back
	// because of an interrupt or context cancellation.
	ErrCancelled = errors.New("cancelled")

	// ErrUnsupportedArchive is returned for archives of an unknown format.
	ErrUnsupportedArchive = errors.New("unsupported archive format")
)

// StateFileExistsError reports that an interrupted operation under the same
// name still has a recovery file and must be recovered first.
type StateFileExistsError struct {
	Name string
	Path string
}

func (e *StateFileExistsError) Error() string {
	return fmt.Sprintf("operation %q was interrupted (state file %s exists); recover it first", e.Name, e.Path)
}

// Is matches ErrStateFileExists.
func (e *StateFileExistsError) Is(target error) bool {
	return target == ErrStateFileExists
}

// HTTPStatusError is returned when a download does not answer with 2xx.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// Temporary reports whether retrying the request may succeed.
func (e *HTTPStatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}
