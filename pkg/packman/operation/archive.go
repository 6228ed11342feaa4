package operation

import (
	"archive/tar"
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

type archiveFormat int

const (
	formatUnknown archiveFormat = iota
	formatZip
	formatTar
	formatGzipTar
	formatZstdTar
)

var (
	zipMagic  = []byte("PK\x03\x04")
	zipEmpty  = []byte("PK\x05\x06")
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

func sniffFormat(header []byte) archiveFormat {
	switch {
	case bytes.HasPrefix(header, zipMagic), bytes.HasPrefix(header, zipEmpty):
		return formatZip
	case bytes.HasPrefix(header, gzipMagic):
		return formatGzipTar
	case bytes.HasPrefix(header, zstdMagic):
		return formatZstdTar
	case len(header) >= 262 && string(header[257:262]) == "ustar":
		return formatTar
	}
	return formatUnknown
}

// ExtractArchive unpacks the archive at path into a new temp directory and
// returns it; the directory also becomes the last path. Zip, tar, tar.gz
// and tar.zst are recognised by content, not by name.
func (o *Operation) ExtractArchive(path string) (string, error) {
	if err := o.check(); err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	br := bufio.NewReaderSize(f, 512)
	header, _ := br.Peek(512)
	format := sniffFormat(header)
	if format == formatUnknown {
		return "", fmt.Errorf("%s: %w", path, ErrUnsupportedArchive)
	}

	dest, err := o.TempPath("")
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", err
	}

	logger.Debug("extracting", "archive", path, "dest", dest)
	switch format {
	case formatZip:
		err = extractZip(path, dest)
	case formatTar:
		err = extractTar(br, dest)
	case formatGzipTar:
		var zr *gzip.Reader
		if zr, err = gzip.NewReader(br); err == nil {
			err = extractTar(zr, dest)
			zr.Close()
		}
	case formatZstdTar:
		var zr *zstd.Decoder
		if zr, err = zstd.NewReader(br); err == nil {
			err = extractTar(zr, dest)
			zr.Close()
		}
	}
	if err != nil {
		return "", fmt.Errorf("extracting %s: %w", path, err)
	}
	return dest, nil
}

// safeJoin resolves name under dest, rejecting entries that escape it.
func safeJoin(dest, name string) (string, error) {
	target := filepath.Join(dest, filepath.FromSlash(name))
	if target != dest && !strings.HasPrefix(target, dest+string(filepath.Separator)) {
		return "", fmt.Errorf("illegal path in archive: %s", name)
	}
	return target, nil
}

func extractZip(path, dest string) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return err
	}
	defer zr.Close()

	for _, entry := range zr.File {
		target, err := safeJoin(dest, entry.Name)
		if err != nil {
			return err
		}
		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := writeZipEntry(entry, target); err != nil {
			return err
		}
	}
	return nil
}

func writeZipEntry(entry *zip.File, target string) error {
	rc, err := entry.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	mode := entry.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	if err := writeEntry(rc, target, mode); err != nil {
		return err
	}
	return os.Chtimes(target, entry.Modified, entry.Modified)
}

func extractTar(r io.Reader, dest string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		target, err := safeJoin(dest, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeEntry(tr, target, hdr.FileInfo().Mode().Perm()|0o200); err != nil {
				return err
			}
			if err := os.Chtimes(target, hdr.ModTime, hdr.ModTime); err != nil {
				return err
			}
		default:
			// Links and devices have no place in a mod package.
			logger.Debug("skipping archive entry", "name", hdr.Name, "type", hdr.Typeflag)
		}
	}
}

func writeEntry(r io.Reader, target string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
