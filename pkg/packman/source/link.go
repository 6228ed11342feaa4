package source

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jamesainslie/packman/pkg/packman/operation"
	"github.com/jamesainslie/packman/pkg/packman/plugin"
	"github.com/jamesainslie/packman/pkg/packman/progress"
)

func init() {
	Registry.Register("link", plugin.Strict(func(cfg LinkConfig) (Source, error) {
		l, err := NewLink(cfg)
		if err != nil {
			return nil, err
		}
		return Unversioned(l), nil
	}))
}

// LinkConfig is the definition entry of a link source.
type LinkConfig struct {
	URL string `json:"url"`
}

// Link downloads whatever archive a URL currently points at. It has no
// notion of versions.
type Link struct {
	url string
}

// NewLink validates cfg and returns the source.
func NewLink(cfg LinkConfig) (*Link, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("url must be an http(s) URL, got %q", cfg.URL)
	}
	return &Link{url: cfg.URL}, nil
}

// Type implements UnversionedSource.
func (l *Link) Type() string { return "link" }

// LatestVersion implements UnversionedSource.
func (l *Link) LatestVersion(context.Context) (*Version, error) {
	return &Version{Name: l.url, Options: []string{l.url}}, nil
}

// FetchLatest implements UnversionedSource.
func (l *Link) FetchLatest(ctx context.Context, option string, op *operation.Operation, onProgress progress.Func) error {
	if option != "" && option != l.url {
		return fmt.Errorf("%w %q for link %s", ErrUnknownOption, option, l.url)
	}
	return downloadAndExtract(ctx, op, l.url, onProgress)
}
