// Package cache keeps the archives of previously fetched package versions
// so reinstalling a version does not touch the network. Archives live
// under <dir>/archives; a badger index under <dir>/index maps
// (package, version) to its archive.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/jamesainslie/packman/pkg/packman/fsutil"
	"github.com/jamesainslie/packman/pkg/packman/logging"
	"github.com/jamesainslie/packman/pkg/packman/operation"
	"github.com/jamesainslie/packman/pkg/packman/progress"
)

var logger = logging.Get("cache")

// Cache is a content-addressed store of package archives.
type Cache struct {
	dir   string
	store *Store
}

// Open opens or creates the cache rooted at dir.
func Open(dir string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Join(dir, "archives"), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	store, err := OpenStore(filepath.Join(dir, "index"))
	if err != nil {
		return nil, fmt.Errorf("opening cache index: %w", err)
	}
	return &Cache{dir: dir, store: store}, nil
}

// Close closes the cache index.
func (c *Cache) Close() error {
	return c.store.Close()
}

// Dir returns the cache root.
func (c *Cache) Dir() string { return c.dir }

// ArchiveName returns the archive file name for a package version: the
// hex sha256 of the name and version.
func ArchiveName(name, version string) string {
	sum := sha256.Sum256(MakeKey(name, version))
	return hex.EncodeToString(sum[:]) + ".zip"
}

func (c *Cache) archivePath(file string) string {
	return filepath.Join(c.dir, "archives", file)
}

// Lookup returns the entry for a cached package version.
func (c *Cache) Lookup(name, version string) (*Entry, error) {
	entry, err := c.store.Get(name, version)
	if err != nil {
		return nil, err
	}
	if !fsutil.Exists(c.archivePath(entry.Archive)) {
		logger.Warn("cache entry has no archive, dropping it", "package", name, "version", version)
		_ = c.store.Delete(name, version)
		return nil, ErrNotFound
	}
	return entry, nil
}

// FetchVersion extracts the cached archive of name at version through op,
// leaving op's last path at the extracted directory. It returns
// ErrNotFound on a miss.
func (c *Cache) FetchVersion(op *operation.Operation, name, version string, onProgress progress.Func) error {
	onProgress = progress.OrNoop(onProgress)
	if version == "" {
		return ErrNotFound
	}
	entry, err := c.Lookup(name, version)
	if err != nil {
		return err
	}

	onProgress(0)
	if _, err := op.ExtractArchive(c.archivePath(entry.Archive)); err != nil {
		return fmt.Errorf("extracting cached archive: %w", err)
	}
	onProgress(1)
	logger.Debug("cache hit", "package", name, "version", version)
	return nil
}

// AddPackage archives the package directory pkgPath as name at version,
// replacing any previous archive for that version.
func (c *Cache) AddPackage(name, version, option, pkgPath string) error {
	if version == "" {
		return fmt.Errorf("cannot cache unversioned package %s", name)
	}
	file := ArchiveName(name, version)
	dest := c.archivePath(file)

	size, err := writeArchive(pkgPath, dest)
	if err != nil {
		return fmt.Errorf("archiving %s@%s: %w", name, version, err)
	}

	entry := &Entry{
		Name:    name,
		Version: version,
		Option:  option,
		Archive: file,
		Size:    size,
		Created: time.Now().UnixNano(),
	}
	if err := c.store.Put(entry); err != nil {
		return fmt.Errorf("indexing %s@%s: %w", name, version, err)
	}
	logger.Debug("cached package", "package", name, "version", version, "bytes", size)
	return nil
}

// writeArchive zips the tree at src into dest atomically and returns the
// archive size.
func writeArchive(src, dest string) (int64, error) {
	files, err := fsutil.ListFiles(src)
	if err != nil {
		return 0, err
	}

	tmp := dest + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmp)
		}
	}()

	zw := zip.NewWriter(out)
	for _, rel := range files {
		if err := addFile(zw, filepath.Join(src, filepath.FromSlash(rel)), rel); err != nil {
			out.Close()
			return 0, err
		}
	}
	if err := zw.Close(); err != nil {
		out.Close()
		return 0, err
	}
	if err := out.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp, dest); err != nil {
		return 0, err
	}
	committed = true

	info, err := os.Stat(dest)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func addFile(zw *zip.Writer, path, name string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, in)
	return err
}

// List returns every cached entry, or those of name when name is set.
func (c *Cache) List(name string) ([]Entry, error) {
	var prefix []byte
	if name != "" {
		prefix = MakeKeyPrefix(name)
	}
	return c.store.List(prefix)
}

// Stats summarises the cache.
type Stats struct {
	Entries  int
	Packages int
	Bytes    int64
}

// Stats returns the number of cached archives, distinct packages and bytes.
func (c *Cache) Stats() (Stats, error) {
	entries, err := c.List("")
	if err != nil {
		return Stats{}, err
	}
	names := map[string]struct{}{}
	var st Stats
	for _, e := range entries {
		st.Entries++
		st.Bytes += e.Size
		names[e.Name] = struct{}{}
	}
	st.Packages = len(names)
	return st, nil
}

// Remove drops the cached archive of name at version.
func (c *Cache) Remove(name, version string) error {
	entry, err := c.store.Get(name, version)
	if err != nil {
		return err
	}
	if err := os.Remove(c.archivePath(entry.Archive)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return c.store.Delete(name, version)
}

// Clear removes every cached archive, or only those of name when name is
// set. It returns the number of archives removed.
func (c *Cache) Clear(name string) (int, error) {
	entries, err := c.List(name)
	if err != nil {
		return 0, err
	}
	var errs []error
	for _, e := range entries {
		if err := os.Remove(c.archivePath(e.Archive)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	var prefix []byte
	if name != "" {
		prefix = MakeKeyPrefix(name)
	}
	if err := c.store.DeletePrefix(prefix); err != nil {
		errs = append(errs, err)
	}
	return len(entries), errors.Join(errs...)
}
