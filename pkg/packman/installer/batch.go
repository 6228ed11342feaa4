package installer

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/jamesainslie/packman/pkg/packman/operation"
	"github.com/jamesainslie/packman/pkg/packman/progress"
)

// Request names a package and, optionally, a version.
type Request struct {
	Name    string
	Version string
}

// ParseRequest splits "name@version". A bare name requests the latest
// version.
func ParseRequest(arg string) Request {
	name, version, _ := strings.Cut(arg, "@")
	return Request{Name: name, Version: version}
}

func (r Request) String() string {
	return r.Name + "@" + versionLabel(r.Version)
}

// Result is the outcome of one package in a batch.
type Result struct {
	Request
	// Changed is false for packages that were already installed, or not
	// installed for uninstalls.
	Changed bool
	Err     error
}

// Results collects the outcomes of a batch in request order.
type Results []Result

// Unchanged counts packages the batch did not change, failures included.
func (r Results) Unchanged() int {
	n := 0
	for _, res := range r {
		if !res.Changed {
			n++
		}
	}
	return n
}

// Err joins every failure, each prefixed with its package.
func (r Results) Err() error {
	var errs []error
	for _, res := range r {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.Name, res.Err))
		}
	}
	return errors.Join(errs...)
}

// Tracker hands out a progress callback per batch entry.
type Tracker func(req Request) progress.Func

func (t Tracker) track(req Request) progress.Func {
	if t == nil {
		return nil
	}
	return t(req)
}

// InstallAll installs each request in order. A failed package does not
// stop the batch, except for an interrupted operation that must be
// recovered first or a cancellation: the remaining requests are then
// marked ErrAbandoned or cancelled.
func (i *Installer) InstallAll(ctx context.Context, reqs []Request, opts InstallOptions, track Tracker) Results {
	return i.batch(ctx, reqs, func(req Request) (bool, error) {
		return i.Install(ctx, req.Name, req.Version, opts, track.track(req))
	})
}

// UninstallAll uninstalls each named package in order.
func (i *Installer) UninstallAll(ctx context.Context, names []string, track Tracker) Results {
	reqs := make([]Request, len(names))
	for n, name := range names {
		reqs[n] = Request{Name: name}
	}
	return i.batch(ctx, reqs, func(req Request) (bool, error) {
		return i.Uninstall(req.Name, track.track(req))
	})
}

// UpgradeAll installs the latest version of every installed package.
func (i *Installer) UpgradeAll(ctx context.Context, opts InstallOptions, track Tracker) (Results, error) {
	m, err := i.Manifest()
	if err != nil {
		return nil, err
	}
	var reqs []Request
	for _, name := range m.Packages() {
		reqs = append(reqs, Request{Name: name})
	}
	return i.InstallAll(ctx, reqs, opts, track), nil
}

func (i *Installer) batch(ctx context.Context, reqs []Request, run func(Request) (bool, error)) Results {
	results := make(Results, len(reqs))
	var stop error
	for n, req := range reqs {
		results[n].Request = req
		if stop != nil {
			results[n].Err = stop
			continue
		}
		if err := ctx.Err(); err != nil {
			stop = errors.Join(operation.ErrCancelled, err)
			results[n].Err = stop
			continue
		}

		changed, err := run(req)
		results[n].Changed, results[n].Err = changed, err
		switch {
		case errors.Is(err, operation.ErrStateFileExists):
			stop = ErrAbandoned
		case errors.Is(err, operation.ErrCancelled):
			stop = operation.ErrCancelled
		}
		if err != nil {
			logger.Error("batch entry failed", "package", req.Name, "error", err)
		}
	}
	return results
}

func sortRequests(reqs []Request) {
	slices.SortFunc(reqs, func(a, b Request) int { return strings.Compare(a.Name, b.Name) })
}
