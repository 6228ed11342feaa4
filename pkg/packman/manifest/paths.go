package manifest

import (
	"path/filepath"
	"strings"
)

func baseDir(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.Dir(abs), nil
}

// relativize expresses path relative to base when it lies under base.
// Paths elsewhere stay absolute so they survive a move of the manifest.
func relativize(base, path string) string {
	if base == "" || !filepath.IsAbs(path) {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(base, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// resolve turns a stored path back into an absolute one.
func resolve(base, path string) string {
	path = filepath.FromSlash(path)
	if filepath.IsAbs(path) || base == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(base, path)
}

func mapSlice(in []string, fn func(string) string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = fn(s)
	}
	return out
}

func mapKeys[V any](in map[string]V, fn func(string) string) map[string]V {
	out := make(map[string]V, len(in))
	for k, v := range in {
		out[fn(k)] = v
	}
	return out
}
