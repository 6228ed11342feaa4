package source

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/jamesainslie/packman/pkg/packman/operation"
	"github.com/jamesainslie/packman/pkg/packman/plugin"
	"github.com/jamesainslie/packman/pkg/packman/progress"
)

// DefaultSpaceDockAPI is used when Env.SpaceDockAPI is empty.
const DefaultSpaceDockAPI = "https://spacedock.info/api/"

func init() {
	Registry.Register("spacedock", plugin.Strict(func(cfg SpaceDockConfig) (Source, error) {
		return NewSpaceDock(cfg)
	}))
}

// SpaceDockConfig is the definition entry of a spacedock source.
type SpaceDockConfig struct {
	ID int `json:"id"`
}

// SpaceDock serves the versions of one SpaceDock mod. Versions are
// identified by their friendly version; the single option of a version is
// the base name of its download without extension.
type SpaceDock struct {
	id  int
	api *apiClient

	mu  sync.Mutex
	mod *spacedockMod
}

// NewSpaceDock validates cfg and returns the source.
func NewSpaceDock(cfg SpaceDockConfig) (*SpaceDock, error) {
	if cfg.ID <= 0 {
		return nil, fmt.Errorf("id must be a positive mod id, got %d", cfg.ID)
	}
	s := &SpaceDock{id: cfg.ID}
	s.Configure(Env{})
	return s, nil
}

// Type implements Source.
func (s *SpaceDock) Type() string { return "spacedock" }

// Configure implements Configurable.
func (s *SpaceDock) Configure(env Env) {
	base := env.SpaceDockAPI
	if base == "" {
		base = DefaultSpaceDockAPI
	}
	s.mu.Lock()
	s.api = newAPIClient(base, env)
	s.mod = nil
	s.mu.Unlock()
}

type spacedockVersion struct {
	ID              int    `json:"id"`
	GameVersion     string `json:"game_version"`
	FriendlyVersion string `json:"friendly_version"`
	DownloadPath    string `json:"download_path"`
	Changelog       string `json:"changelog"`
}

type spacedockMod struct {
	ID               int                `json:"id"`
	Name             string             `json:"name"`
	Author           string             `json:"author"`
	ShortDescription string             `json:"short_description"`
	Versions         []spacedockVersion `json:"versions"`
	DefaultVersionID int                `json:"default_version_id"`
}

// loadMod fetches the mod once per source.
func (s *SpaceDock) loadMod(ctx context.Context) (*spacedockMod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mod != nil {
		return s.mod, nil
	}

	var mod spacedockMod
	if err := s.api.getJSON(ctx, "mod/"+strconv.Itoa(s.id), nil, &mod); err != nil {
		return nil, err
	}
	base, err := url.Parse(s.api.base)
	if err != nil {
		return nil, err
	}
	for i := range mod.Versions {
		ref, err := url.Parse(mod.Versions[i].DownloadPath)
		if err != nil {
			return nil, fmt.Errorf("version %s: %w", mod.Versions[i].FriendlyVersion, err)
		}
		mod.Versions[i].DownloadPath = base.ResolveReference(ref).String()
	}
	s.mod = &mod
	return s.mod, nil
}

func (s *SpaceDock) find(ctx context.Context, match func(*spacedockVersion) bool) (*spacedockVersion, error) {
	mod, err := s.loadMod(ctx)
	if err != nil {
		return nil, err
	}
	for i := range mod.Versions {
		if match(&mod.Versions[i]) {
			return &mod.Versions[i], nil
		}
	}
	return nil, ErrVersionNotFound
}

func spacedockOption(downloadPath string) string {
	name := downloadPath
	if u, err := url.Parse(downloadPath); err == nil {
		name = u.Path
	}
	name = path.Base(name)
	if idx := strings.LastIndex(name, "."); idx > 0 {
		name = name[:idx]
	}
	return name
}

func (v *spacedockVersion) version() *Version {
	return &Version{
		Name:        v.FriendlyVersion,
		Version:     v.FriendlyVersion,
		Options:     []string{spacedockOption(v.DownloadPath)},
		Description: v.Changelog,
	}
}

// Version implements Source.
func (s *SpaceDock) Version(ctx context.Context, id string) (*Version, error) {
	v, err := s.find(ctx, func(v *spacedockVersion) bool { return v.FriendlyVersion == id })
	if err != nil {
		return nil, fmt.Errorf("spacedock mod %d version %s: %w", s.id, id, err)
	}
	return v.version(), nil
}

// LatestVersion implements Source.
func (s *SpaceDock) LatestVersion(ctx context.Context) (*Version, error) {
	mod, err := s.loadMod(ctx)
	if err != nil {
		return nil, err
	}
	v, err := s.find(ctx, func(v *spacedockVersion) bool { return v.ID == mod.DefaultVersionID })
	if err != nil {
		return nil, fmt.Errorf("spacedock mod %d default version: %w", s.id, err)
	}
	return v.version(), nil
}

// Versions implements Source.
func (s *SpaceDock) Versions(ctx context.Context) ([]string, error) {
	mod, err := s.loadMod(ctx)
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	var out []string
	for _, v := range mod.Versions {
		if _, dup := seen[v.FriendlyVersion]; dup {
			continue
		}
		seen[v.FriendlyVersion] = struct{}{}
		out = append(out, v.FriendlyVersion)
	}
	return out, nil
}

// FetchVersion implements Source.
func (s *SpaceDock) FetchVersion(ctx context.Context, version, option string, op *operation.Operation, onProgress progress.Func) error {
	v, err := s.find(ctx, func(v *spacedockVersion) bool { return v.FriendlyVersion == version })
	if err != nil {
		return fmt.Errorf("spacedock mod %d version %s: %w", s.id, version, err)
	}
	if option != "" && spacedockOption(v.DownloadPath) != option {
		return fmt.Errorf("%w %q for spacedock mod %d", ErrUnknownOption, option, s.id)
	}
	if err := downloadAndExtract(ctx, op, v.DownloadPath, onProgress); err != nil {
		return fmt.Errorf("spacedock mod %d version %s: %w", s.id, version, err)
	}
	return nil
}
