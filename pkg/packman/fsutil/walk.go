package fsutil

import (
	"io/fs"
	"path/filepath"
	"sort"
	"sync"

	"github.com/charlievieth/fastwalk"
)

// ListFiles returns the regular files under root as slash-separated paths
// relative to root, sorted. Symlinks are not followed.
func ListFiles(root string) ([]string, error) {
	return list(root, func(d fs.DirEntry) bool { return d.Type().IsRegular() })
}

// ListDirs returns the directories under root, root excluded, in the same
// form as ListFiles.
func ListDirs(root string) ([]string, error) {
	return list(root, func(d fs.DirEntry) bool { return d.IsDir() })
}

// ListAll returns every file and directory under root, root excluded.
func ListAll(root string) ([]string, error) {
	return list(root, func(d fs.DirEntry) bool { return d.IsDir() || d.Type().IsRegular() })
}

func list(root string, keep func(fs.DirEntry) bool) ([]string, error) {
	var (
		mu  sync.Mutex
		out []string
	)
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path == root || !keep(d) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		mu.Lock()
		out = append(out, filepath.ToSlash(rel))
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}
