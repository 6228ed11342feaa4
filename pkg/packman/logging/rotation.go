package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
)

// DefaultMaxSize is the rotation threshold used when none is configured.
const DefaultMaxSize = 10 * 1024 * 1024

// RotationConfig configures size-based log rotation.
type RotationConfig struct {
	// MaxSize is the size in bytes at which the file is rotated.
	// Zero uses DefaultMaxSize.
	MaxSize int64

	// MaxBackups is the number of rotated files kept as <path>.1 ... <path>.N.
	// Zero keeps a single backup.
	MaxBackups int
}

// ParseRotation builds a RotationConfig from a human size such as "10MB".
func ParseRotation(maxSize string, maxBackups int) (RotationConfig, error) {
	cfg := RotationConfig{MaxBackups: maxBackups}
	if maxSize == "" {
		return cfg, nil
	}
	n, err := humanize.ParseBytes(maxSize)
	if err != nil {
		return cfg, fmt.Errorf("parsing max size %q: %w", maxSize, err)
	}
	cfg.MaxSize = int64(n)
	return cfg, nil
}

// RotatingWriter appends to a log file and rotates it once it grows past
// MaxSize. Writes hold an advisory file lock, so several packman processes
// can share one log without interleaving records.
type RotatingWriter struct {
	path string
	cfg  RotationConfig
	lock *flock.Flock

	mu   sync.Mutex
	file *os.File
	size int64
}

// NewRotatingWriter opens path for appending, creating parent directories.
func NewRotatingWriter(path string, cfg RotationConfig) (*RotatingWriter, error) {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	w := &RotatingWriter{
		path: path,
		cfg:  cfg,
		lock: flock.New(path + ".lock"),
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

// Write appends p, rotating first when p would push the file past MaxSize.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}

	if err := w.lock.Lock(); err != nil {
		return 0, fmt.Errorf("locking log file: %w", err)
	}
	defer func() { _ = w.lock.Unlock() }()

	// Another process may have rotated underneath us.
	if info, err := os.Stat(w.path); err != nil || !os.SameFile(info, w.mustStat()) {
		if err := w.reopen(); err != nil {
			return 0, err
		}
	}

	if w.size > 0 && w.size+int64(len(p)) > w.cfg.MaxSize {
		if err := w.rotate(); err != nil {
			return 0, fmt.Errorf("rotating log file: %w", err)
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	if err != nil {
		return n, fmt.Errorf("writing to log file: %w", err)
	}
	return n, nil
}

// Close closes the log file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *RotatingWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	w.file = f
	w.size = info.Size()
	return nil
}

func (w *RotatingWriter) reopen() error {
	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
	}
	return w.open()
}

func (w *RotatingWriter) mustStat() os.FileInfo {
	info, err := w.file.Stat()
	if err != nil {
		return nil
	}
	return info
}

// rotate shifts path.N-1 to path.N down to path to path.1 and starts a
// fresh file. The oldest backup falls off the end.
func (w *RotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("closing current file: %w", err)
	}
	w.file = nil

	_ = os.Remove(w.backupName(w.cfg.MaxBackups))
	for i := w.cfg.MaxBackups - 1; i >= 1; i-- {
		_ = os.Rename(w.backupName(i), w.backupName(i+1))
	}
	if err := os.Rename(w.path, w.backupName(1)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("renaming log file: %w", err)
	}
	return w.open()
}

func (w *RotatingWriter) backupName(n int) string {
	return fmt.Sprintf("%s.%d", w.path, n)
}
