package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/jamesainslie/packman/pkg/packman/operation"
	"github.com/jamesainslie/packman/pkg/packman/plugin"
	"github.com/jamesainslie/packman/pkg/packman/progress"
)

// DefaultGitHubAPI is used when Env.GitHubAPI is empty.
const DefaultGitHubAPI = "https://api.github.com"

func init() {
	Registry.Register("github", plugin.Strict(func(cfg GitHubConfig) (Source, error) {
		return NewGitHub(cfg)
	}))
}

// GitHubConfig is the definition entry of a github source.
type GitHubConfig struct {
	Repository string `json:"repository"`
}

// GitHub serves the releases of a GitHub repository. Every release must
// carry exactly one asset, the package archive.
type GitHub struct {
	repository string
	api        *apiClient
}

// NewGitHub validates cfg and returns the source.
func NewGitHub(cfg GitHubConfig) (*GitHub, error) {
	owner, repo, ok := strings.Cut(cfg.Repository, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return nil, fmt.Errorf("repository must be owner/name, got %q", cfg.Repository)
	}
	g := &GitHub{repository: cfg.Repository}
	g.Configure(Env{})
	return g, nil
}

// Type implements Source.
func (g *GitHub) Type() string { return "github" }

// Configure implements Configurable.
func (g *GitHub) Configure(env Env) {
	base := env.GitHubAPI
	if base == "" {
		base = DefaultGitHubAPI
	}
	g.api = newAPIClient(base, env)
	g.api.headers.Set("Accept", "application/vnd.github+json")
	if env.GitHubToken != "" {
		g.api.headers.Set("Authorization", "Bearer "+env.GitHubToken)
	}
}

type githubRelease struct {
	ID      int64         `json:"id"`
	Name    string        `json:"name"`
	TagName string        `json:"tag_name"`
	Body    string        `json:"body"`
	Assets  []githubAsset `json:"assets"`
}

type githubAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
}

func (r *githubRelease) version() *Version {
	name := r.Name
	if name == "" {
		name = r.TagName
	}
	v := &Version{Name: name, Version: r.TagName, Description: r.Body}
	for _, a := range r.Assets {
		v.Options = append(v.Options, a.Name)
	}
	return v
}

func (r *githubRelease) asset() (*githubAsset, error) {
	switch len(r.Assets) {
	case 1:
		return &r.Assets[0], nil
	case 0:
		return nil, fmt.Errorf("release %s has no assets", r.TagName)
	default:
		return nil, fmt.Errorf("release %s has %d assets; exactly one is supported", r.TagName, len(r.Assets))
	}
}

func (g *GitHub) release(ctx context.Context, endpoint string) (*githubRelease, error) {
	var rel githubRelease
	if err := g.api.getJSON(ctx, "repos/"+g.repository+"/"+endpoint, nil, &rel); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%s %s: %w: %w", g.repository, endpoint, ErrVersionNotFound, err)
		}
		return nil, err
	}
	return &rel, nil
}

func (g *GitHub) releaseByTag(ctx context.Context, tag string) (*githubRelease, error) {
	return g.release(ctx, "releases/tags/"+url.PathEscape(tag))
}

// Version implements Source.
func (g *GitHub) Version(ctx context.Context, id string) (*Version, error) {
	rel, err := g.releaseByTag(ctx, id)
	if err != nil {
		return nil, err
	}
	return rel.version(), nil
}

// LatestVersion implements Source.
func (g *GitHub) LatestVersion(ctx context.Context) (*Version, error) {
	rel, err := g.release(ctx, "releases/latest")
	if err != nil {
		return nil, err
	}
	return rel.version(), nil
}

// Versions implements Source.
func (g *GitHub) Versions(ctx context.Context) ([]string, error) {
	var releases []githubRelease
	q := url.Values{"per_page": {"100"}}
	if err := g.api.getJSON(ctx, "repos/"+g.repository+"/releases", q, &releases); err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	var out []string
	for _, r := range releases {
		if _, dup := seen[r.TagName]; dup {
			continue
		}
		seen[r.TagName] = struct{}{}
		out = append(out, r.TagName)
	}
	return out, nil
}

// FetchVersion implements Source.
func (g *GitHub) FetchVersion(ctx context.Context, version, option string, op *operation.Operation, onProgress progress.Func) error {
	rel, err := g.releaseByTag(ctx, version)
	if err != nil {
		return err
	}
	a, err := rel.asset()
	if err != nil {
		return err
	}
	if option != "" && option != a.Name {
		return fmt.Errorf("%w %q for %s@%s", ErrUnknownOption, option, g.repository, version)
	}
	return downloadAndExtract(ctx, op, a.BrowserDownloadURL, onProgress)
}
