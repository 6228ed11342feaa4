package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/jamesainslie/packman/pkg/packman/fsutil"
	"github.com/jamesainslie/packman/pkg/packman/logging"
	"github.com/jamesainslie/packman/pkg/packman/progress"
)

var logger = logging.Get("manifest")

// Remover deletes a file that dropped out of ownership.
type Remover func(path string) error

// Manifest records installed packages. In memory every path is absolute;
// on disk paths are stored relative to the manifest's directory.
type Manifest struct {
	packages        map[string]*Package
	fileMap         map[string][]string
	originalFiles   map[string]string
	orphaned        map[string]struct{}
	checksumHistory map[string][]string

	// pending holds files of packages put since the last save; only their
	// checksums are known to be packman's own output.
	pending map[string]struct{}

	root   string
	remove Remover
}

// Option configures a Manifest.
type Option func(*Manifest)

// WithRoot bounds the pruning of empty directories when cleanup removes
// files. Without it nothing above the removed file is pruned.
func WithRoot(root string) Option {
	return func(m *Manifest) { m.root = root }
}

// WithRemover replaces the function used to delete files during cleanup.
func WithRemover(r Remover) Option {
	return func(m *Manifest) { m.remove = r }
}

// New returns an empty manifest.
func New(opts ...Option) *Manifest {
	m := &Manifest{
		packages:        map[string]*Package{},
		fileMap:         map[string][]string{},
		originalFiles:   map[string]string{},
		orphaned:        map[string]struct{}{},
		checksumHistory: map[string][]string{},
		pending:         map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.root != "" {
		if root, err := filepath.Abs(m.root); err == nil {
			m.root = root
		}
	}
	if m.remove == nil {
		m.remove = func(path string) error { return fsutil.RemovePath(path, m.root) }
	}
	return m
}

// FromPath loads the manifest at path, or returns an empty manifest when
// the file does not exist.
func FromPath(path string, opts ...Option) (*Manifest, error) {
	m := New(opts...)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return m, nil
		}
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	base, err := baseDir(path)
	if err != nil {
		return nil, err
	}
	if err := m.decode(data, base); err != nil {
		return nil, fmt.Errorf("decoding manifest %s: %w", path, err)
	}
	return m, nil
}

// Decode parses manifest JSON whose relative paths are relative to base.
func Decode(data []byte, base string, opts ...Option) (*Manifest, error) {
	m := New(opts...)
	if err := m.decode(data, base); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manifest) decode(data []byte, base string) error {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if doc.Version > FormatVersion {
		return fmt.Errorf("unsupported manifest version %d", doc.Version)
	}

	res := func(p string) string { return resolve(base, p) }
	for name, pkg := range doc.Packages {
		if pkg == nil {
			continue
		}
		m.packages[name] = &Package{
			Version:   pkg.Version,
			Options:   pkg.Options,
			Files:     mapSlice(pkg.Files, res),
			Checksums: mapKeys(pkg.Checksums, res),
		}
	}
	m.fileMap = mapKeys(doc.FileMap, res)
	m.originalFiles = mapKeys(doc.OriginalFiles, res)
	m.checksumHistory = mapKeys(doc.ChecksumHistory, res)
	for _, f := range doc.OrphanedFiles {
		m.orphaned[res(f)] = struct{}{}
	}
	return nil
}

// Packages returns the installed package names, sorted.
func (m *Manifest) Packages() []string {
	names := make([]string, 0, len(m.packages))
	for name := range m.packages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns a copy of the named package.
func (m *Manifest) Get(name string) (*Package, bool) {
	pkg, ok := m.packages[name]
	if !ok {
		return nil, false
	}
	return pkg.clone(), true
}

// Has reports whether name is installed.
func (m *Manifest) Has(name string) bool {
	_, ok := m.packages[name]
	return ok
}

// Put records pkg as installed under name, replacing any previous entry.
// File paths are made absolute.
func (m *Manifest) Put(name string, pkg *Package) error {
	pkg = pkg.clone()
	for i, f := range pkg.Files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		pkg.Files[i] = abs
		m.pending[abs] = struct{}{}
	}
	if pkg.Checksums == nil {
		pkg.Checksums = map[string]string{}
	}
	m.packages[name] = pkg
	return nil
}

// Delete removes the named package. It reports whether it was installed.
// Its files are only touched by the next cleanup.
func (m *Manifest) Delete(name string) bool {
	if _, ok := m.packages[name]; !ok {
		return false
	}
	delete(m.packages, name)
	return true
}

// FileMap returns the file to owners map as of the last cleanup.
func (m *Manifest) FileMap() map[string][]string {
	out := make(map[string][]string, len(m.fileMap))
	for k, v := range m.fileMap {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Tracked reports whether path was owned by any package at the last cleanup.
func (m *Manifest) Tracked(path string) bool {
	_, ok := m.fileMap[path]
	return ok
}

// OriginalFile returns the durable backup of path's pre-packman content.
func (m *Manifest) OriginalFile(path string) (string, bool) {
	backup, ok := m.originalFiles[path]
	return backup, ok
}

// SetOriginalFile records backup as the pre-packman content of path.
func (m *Manifest) SetOriginalFile(path, backup string) {
	m.originalFiles[path] = backup
}

// OriginalFiles returns a copy of the path to backup map.
func (m *Manifest) OriginalFiles() map[string]string {
	out := make(map[string]string, len(m.originalFiles))
	for k, v := range m.originalFiles {
		out[k] = v
	}
	return out
}

// OrphanedFiles returns the orphaned paths, sorted.
func (m *Manifest) OrphanedFiles() []string {
	out := make([]string, 0, len(m.orphaned))
	for f := range m.orphaned {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// ChecksumHistory returns every checksum packman produced for path.
func (m *Manifest) ChecksumHistory(path string) []string {
	return append([]string(nil), m.checksumHistory[path]...)
}

// buildFileMap derives file ownership from the package entries.
func (m *Manifest) buildFileMap() map[string][]string {
	fileMap := map[string][]string{}
	for _, name := range m.Packages() {
		for _, f := range m.packages[name].Files {
			if !slices.Contains(fileMap[f], name) {
				fileMap[f] = append(fileMap[f], name)
			}
		}
	}
	return fileMap
}

// UpdateChecksums recomputes the checksum of every owned file. Checksums
// of files put since the last save are also added to their history.
func (m *Manifest) UpdateChecksums() error {
	var errs []error
	for _, name := range m.Packages() {
		pkg := m.packages[name]
		for _, f := range pkg.Files {
			sum, err := fsutil.Checksum(f)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					logger.Warn("owned file is missing", "package", name, "path", f)
					continue
				}
				errs = append(errs, err)
				continue
			}
			pkg.Checksums[f] = sum
			if _, ok := m.pending[f]; ok {
				m.recordChecksum(f, sum)
			}
		}
		for f := range pkg.Checksums {
			if !slices.Contains(pkg.Files, f) {
				delete(pkg.Checksums, f)
			}
		}
	}
	m.pending = map[string]struct{}{}
	return errors.Join(errs...)
}

func (m *Manifest) recordChecksum(path, sum string) {
	if !slices.Contains(m.checksumHistory[path], sum) {
		m.checksumHistory[path] = append(m.checksumHistory[path], sum)
	}
}

// Verify returns the files of the named package whose content no longer
// matches the recorded checksum, sorted.
func (m *Manifest) Verify(name string) ([]string, error) {
	pkg, ok := m.packages[name]
	if !ok {
		return nil, fmt.Errorf("package %s is not installed", name)
	}
	var invalid []string
	for f, want := range pkg.Checksums {
		got, err := fsutil.Checksum(f)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		if got != want {
			logger.Warn("checksum mismatch", "package", name, "path", f)
			invalid = append(invalid, f)
		}
	}
	sort.Strings(invalid)
	return invalid, nil
}

// UpdateFiles saves the manifest to path: cleanup, checksum refresh and
// write, reported as three equal steps.
func (m *Manifest) UpdateFiles(path string, onProgress progress.Func) error {
	steps := progress.NewSteps(3, onProgress)
	steps.Report(0)

	if err := m.CleanupFiles(false); err != nil {
		return err
	}
	steps.Advance()

	if err := m.UpdateChecksums(); err != nil {
		return fmt.Errorf("updating checksums: %w", err)
	}
	steps.Advance()

	if err := m.WriteJSON(path); err != nil {
		return err
	}
	steps.Advance()
	return nil
}

// WriteJSON atomically writes the manifest to path, with paths relative to
// the directory holding it.
func (m *Manifest) WriteJSON(path string) error {
	base, err := baseDir(path)
	if err != nil {
		return err
	}
	data, err := m.Encode(base)
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

// Encode renders the manifest as JSON with paths under base made relative.
func (m *Manifest) Encode(base string) ([]byte, error) {
	rel := func(p string) string { return relativize(base, p) }

	doc := document{
		Version:         FormatVersion,
		Packages:        make(map[string]*Package, len(m.packages)),
		FileMap:         mapKeys(m.fileMap, rel),
		OriginalFiles:   mapKeys(m.originalFiles, rel),
		OrphanedFiles:   mapSlice(m.OrphanedFiles(), rel),
		ChecksumHistory: mapKeys(m.checksumHistory, rel),
	}
	for name, pkg := range m.packages {
		doc.Packages[name] = &Package{
			Version:   pkg.Version,
			Options:   pkg.Options,
			Files:     mapSlice(pkg.Files, rel),
			Checksums: mapKeys(pkg.Checksums, rel),
		}
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Portable returns a copy holding only package entries, for export. The
// copy carries no backups, orphans or history.
func (m *Manifest) Portable() *Manifest {
	out := New(WithRoot(m.root), WithRemover(m.remove))
	for name, pkg := range m.packages {
		out.packages[name] = pkg.clone()
	}
	out.fileMap = out.buildFileMap()
	return out
}
