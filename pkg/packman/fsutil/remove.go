package fsutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// RemovePath deletes path, file or tree, and then prunes parent directories
// left empty by the removal. Pruning never removes stop or anything above
// it; an empty stop disables pruning. A missing path is not an error.
func RemovePath(path, stop string) error {
	if err := removeAny(path); err != nil {
		return err
	}
	if stop == "" {
		return nil
	}
	pruneEmptyParents(filepath.Dir(path), stop)
	return nil
}

func removeAny(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if !info.IsDir() {
		return removeFile(path)
	}

	err = os.RemoveAll(path)
	if err == nil {
		return nil
	}
	// Read-only entries (common on Windows game installs) block RemoveAll;
	// clear them and retry once.
	_ = filepath.WalkDir(path, func(p string, _ fs.DirEntry, walkErr error) error {
		if walkErr == nil {
			_ = clearReadOnly(p)
		}
		return nil
	})
	return os.RemoveAll(path)
}

func removeFile(path string) error {
	err := os.Remove(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if clearErr := clearReadOnly(path); clearErr != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func pruneEmptyParents(dir, stop string) {
	stop = filepath.Clean(stop)
	for {
		dir = filepath.Clean(dir)
		if dir == stop || !within(dir, stop) {
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// within reports whether path lies strictly inside root.
func within(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Within reports whether path lies strictly inside root.
func Within(path, root string) bool {
	return within(filepath.Clean(path), filepath.Clean(root))
}
