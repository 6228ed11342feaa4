package installer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gowebpki/jcs"
	"github.com/klauspost/compress/zip"

	"github.com/jamesainslie/packman/pkg/packman/fsutil"
	"github.com/jamesainslie/packman/pkg/packman/manifest"
	"github.com/jamesainslie/packman/pkg/packman/operation"
	"github.com/jamesainslie/packman/pkg/packman/progress"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatZip  = "zip"
)

// DefaultExportName is the export file name without extension.
const DefaultExportName = "packman-export"

// exportManifest is the manifest's name inside zip exports.
const exportManifest = "manifest.json"

// DefaultExportPath returns the export file for format.
func DefaultExportPath(format string) (string, error) {
	switch format {
	case "", FormatJSON:
		return DefaultExportName + ".json", nil
	case FormatZip:
		return DefaultExportName + ".zip", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
}

// ExportFormat infers the format of an export file from its extension.
// A file without extension is JSON.
func ExportFormat(path string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case "", ".json":
		return FormatJSON, nil
	case ".zip":
		return FormatZip, nil
	default:
		return "", fmt.Errorf("%w: unrecognised extension %q", ErrUnknownFormat, ext)
	}
}

// Export writes the installed packages to path. The json format is a
// {name: version} map; the zip format bundles every installed file
// relative to the root together with a root-relative manifest. An empty
// format is inferred from path.
func (i *Installer) Export(path, format string, onProgress progress.Func) error {
	onProgress = progress.OrNoop(onProgress)
	if format == "" {
		var err error
		if format, err = ExportFormat(path); err != nil {
			return err
		}
	}
	m, err := i.Manifest()
	if err != nil {
		return err
	}

	onProgress(0)
	switch format {
	case FormatJSON:
		err = i.exportJSON(path, m)
	case FormatZip:
		err = i.exportZip(path, m, onProgress)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
	if err != nil {
		return err
	}
	onProgress(1)
	return nil
}

func (i *Installer) exportJSON(path string, m *manifest.Manifest) error {
	versions := make(map[string]string)
	for _, name := range m.Packages() {
		pkg, _ := m.Get(name)
		versions[name] = pkg.Version
	}
	raw, err := json.Marshal(versions)
	if err != nil {
		return err
	}
	// Canonical form keeps exports byte-stable for diffing.
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return fmt.Errorf("canonicalizing export: %w", err)
	}
	return fsutil.WriteFileAtomic(path, append(canonical, '\n'), 0o644)
}

func (i *Installer) exportZip(path string, m *manifest.Manifest, onProgress progress.Func) error {
	portable := m.Portable()
	var files []string
	for _, name := range portable.Packages() {
		pkg, _ := portable.Get(name)
		files = append(files, pkg.Files...)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	zw := zip.NewWriter(f)
	steps := progress.NewSteps(len(files)+1, onProgress)
	seen := make(map[string]struct{})
	for _, file := range files {
		if _, ok := seen[file]; ok {
			steps.Advance()
			continue
		}
		seen[file] = struct{}{}
		if !fsutil.Within(file, i.cfg.RootDir) {
			logger.Warn("not exporting file outside the root", "path", file)
			steps.Advance()
			continue
		}
		rel, err := filepath.Rel(i.cfg.RootDir, file)
		if err != nil {
			_ = f.Close()
			return err
		}
		if err := zipFile(zw, file, filepath.ToSlash(rel)); err != nil {
			_ = f.Close()
			return fmt.Errorf("exporting %s: %w", file, err)
		}
		steps.Advance()
	}

	data, err := portable.Encode(i.cfg.RootDir)
	if err != nil {
		_ = f.Close()
		return err
	}
	w, err := zw.Create(exportManifest)
	if err == nil {
		_, err = w.Write(data)
	}
	if err == nil {
		err = zw.Close()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	steps.Advance()
	return os.Rename(tmp, path)
}

func zipFile(zw *zip.Writer, path, name string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()
	info, err := src.Stat()
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate
	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}

// Import installs the packages of an export file. A json export installs
// each listed version through the sources; a zip export copies the bundled
// files into the root in a single operation, all or nothing.
func (i *Installer) Import(ctx context.Context, path string, opts InstallOptions, track Tracker) (Results, error) {
	format, err := ExportFormat(path)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatZip:
		return i.importZip(ctx, path, track)
	default:
		return i.importJSON(ctx, path, opts, track)
	}
}

func (i *Installer) importJSON(ctx context.Context, path string, opts InstallOptions, track Tracker) (Results, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var versions map[string]string
	if err := json.Unmarshal(data, &versions); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	reqs := make([]Request, 0, len(versions))
	for name, version := range versions {
		reqs = append(reqs, Request{Name: name, Version: version})
	}
	sortRequests(reqs)
	return i.InstallAll(ctx, reqs, opts, track), nil
}

func (i *Installer) importZip(ctx context.Context, path string, track Tracker) (Results, error) {
	m, err := i.Manifest()
	if err != nil {
		return nil, err
	}
	op, err := i.newOperation()
	if err != nil {
		return nil, err
	}

	var results Results
	err = op.Run(ctx, func(ctx context.Context) error {
		dir, err := op.ExtractArchive(path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(filepath.Join(dir, exportManifest))
		if err != nil {
			return fmt.Errorf("reading export manifest: %w", err)
		}
		bundle, err := manifest.Decode(data, i.cfg.RootDir)
		if err != nil {
			return err
		}

		for _, name := range bundle.Packages() {
			pkg, _ := bundle.Get(name)
			req := Request{Name: name, Version: pkg.Version}
			if cur, ok := m.Get(name); ok && pkg.Version != "" && cur.Version == pkg.Version {
				results = append(results, Result{Request: req})
				continue
			}
			if err := i.importFiles(ctx, op, dir, pkg.Files, track.track(req)); err != nil {
				return fmt.Errorf("importing %s: %w", name, err)
			}
			if err := m.Put(name, pkg); err != nil {
				return err
			}
			results = append(results, Result{Request: req, Changed: true})
		}

		if err := i.commitBackups(op, m); err != nil {
			return err
		}
		return i.save(m, nil)
	})
	if err != nil {
		i.discardManifest()
		return results, err
	}
	return results, nil
}

func (i *Installer) importFiles(ctx context.Context, op *operation.Operation, dir string, files []string, onProgress progress.Func) error {
	steps := progress.NewSteps(len(files), progress.Monotonic(onProgress))
	steps.Report(0)
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !fsutil.Within(file, i.cfg.RootDir) {
			return fmt.Errorf("file %s lies outside the root", file)
		}
		rel, err := filepath.Rel(i.cfg.RootDir, file)
		if err != nil {
			return err
		}
		if err := op.CopyFile(filepath.Join(dir, rel), file); err != nil {
			return err
		}
		steps.Advance()
	}
	return nil
}
