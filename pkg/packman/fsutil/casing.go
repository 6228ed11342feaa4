package fsutil

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/text/cases"
)

// ResolveCase returns path with every component spelled the way it is
// stored on disk. On case-insensitive filesystems "gamedata/Foo" resolves to
// "GameData/Foo"; on case-sensitive ones an exact match always wins.
// A path that does not exist returns an error wrapping os.ErrNotExist.
func ResolveCase(path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("resolve case of %s: %w", path, err)
	}

	clean := filepath.Clean(path)
	volume := filepath.VolumeName(clean)
	fold := cases.Fold()

	var parts []string
	current := clean
	for {
		parent, child := filepath.Dir(current), filepath.Base(current)
		if parent == current || child == "." || child == string(filepath.Separator) || child == ".." {
			break
		}

		match := child
		if entries, err := os.ReadDir(parent); err == nil {
			want := fold.String(child)
			for _, entry := range entries {
				name := entry.Name()
				if name == child {
					match = name
					break
				}
				if fold.String(name) == want {
					match = name
				}
			}
		}
		parts = append(parts, match)
		current = parent
	}

	// current is now the anchor: "/", "C:\", "." or a leading "..".
	resolved := current
	if current == "." && !filepath.IsAbs(clean) && volume == "" {
		resolved = ""
	}
	for i := len(parts) - 1; i >= 0; i-- {
		resolved = filepath.Join(resolved, parts[i])
	}
	if resolved == "" {
		resolved = "."
	}
	return resolved, nil
}
