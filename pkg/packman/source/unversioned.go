package source

import (
	"context"
	"fmt"

	"github.com/jamesainslie/packman/pkg/packman/operation"
	"github.com/jamesainslie/packman/pkg/packman/progress"
)

// UnversionedSource only ever offers its current content.
type UnversionedSource interface {
	Type() string
	LatestVersion(ctx context.Context) (*Version, error)
	FetchLatest(ctx context.Context, option string, op *operation.Operation, onProgress progress.Func) error
}

// Unversioned adapts u to Source. Asking for any explicit version fails
// with ErrVersionUnsupported.
func Unversioned(u UnversionedSource) Source {
	return &unversioned{u}
}

type unversioned struct {
	UnversionedSource
}

func (u *unversioned) Version(ctx context.Context, id string) (*Version, error) {
	if id != "" {
		return nil, fmt.Errorf("%s source: %w", u.Type(), ErrVersionUnsupported)
	}
	return u.LatestVersion(ctx)
}

func (u *unversioned) Versions(context.Context) ([]string, error) {
	return nil, nil
}

func (u *unversioned) FetchVersion(ctx context.Context, version, option string, op *operation.Operation, onProgress progress.Func) error {
	if version != "" {
		return fmt.Errorf("%s source: %w", u.Type(), ErrVersionUnsupported)
	}
	return u.FetchLatest(ctx, option, op, onProgress)
}

func (u *unversioned) Configure(env Env) {
	if c, ok := u.UnversionedSource.(Configurable); ok {
		c.Configure(env)
	}
}
