package utils

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/capadapt/capadapt/pkg/errors"
)

// RotationConfig controls size-based log rotation
type RotationConfig struct {
	Filename string `yaml:"-"`

	// MaxSizeMB rotates the file once it would exceed this size. 0 disables rotation.
	MaxSizeMB int64 `yaml:"max_size_mb"`

	// MaxBackups is the number of rotated files kept. 0 keeps all of them.
	MaxBackups int `yaml:"max_backups"`

	// Compress gzips rotated files.
	Compress bool `yaml:"compress"`
}

// LogRotator is an io.WriteCloser that rotates its file by size
type LogRotator struct {
	mu     sync.Mutex
	config RotationConfig
	file   *os.File
	size   int64
	now    func() time.Time
}

// NewLogRotator opens (or creates) config.Filename for appending
func NewLogRotator(config RotationConfig) (*LogRotator, error) {
	if config.Filename == "" {
		return nil, errors.NewError(errors.ErrCodeMissingConfig, "log filename is required").
			WithComponent("logging")
	}
	r := &LogRotator{config: config, now: time.Now}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

// Write implements io.Writer
func (r *LogRotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return 0, errors.NewError(errors.ErrCodeInvalidState, "log file is closed").
			WithComponent("logging")
	}
	if limit := r.config.MaxSizeMB * 1024 * 1024; limit > 0 && r.size > 0 && r.size+int64(len(p)) > limit {
		if err := r.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

// Rotate moves the current file aside and starts a new one
func (r *LogRotator) Rotate() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rotate()
}

// Close closes the current file
func (r *LogRotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

func (r *LogRotator) open() error {
	if err := os.MkdirAll(filepath.Dir(r.config.Filename), 0750); err != nil {
		return logFileError(err, "create log directory", r.config.Filename)
	}
	f, err := os.OpenFile(r.config.Filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return logFileError(err, "open log file", r.config.Filename)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return logFileError(err, "stat log file", r.config.Filename)
	}
	r.file = f
	r.size = info.Size()
	return nil
}

func (r *LogRotator) rotate() error {
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			return logFileError(err, "close log file", r.config.Filename)
		}
		r.file = nil
	}

	backup := r.backupName(r.now().UTC())
	if err := os.Rename(r.config.Filename, backup); err != nil && !os.IsNotExist(err) {
		return logFileError(err, "rename log file", r.config.Filename)
	}
	if r.config.Compress {
		// a failed compression leaves the plain backup in place
		if err := gzipFile(backup); err == nil {
			_ = os.Remove(backup)
		}
	}
	r.prune()
	return r.open()
}

func (r *LogRotator) base() (dir, prefix, ext string) {
	dir = filepath.Dir(r.config.Filename)
	name := filepath.Base(r.config.Filename)
	ext = filepath.Ext(name)
	return dir, strings.TrimSuffix(name, ext) + "-", ext
}

func (r *LogRotator) backupName(at time.Time) string {
	dir, prefix, ext := r.base()
	return filepath.Join(dir, prefix+at.Format("20060102T150405.000000000")+ext)
}

// backups lists rotated files, oldest first
func (r *LogRotator) backups() []string {
	dir, prefix, ext := r.base()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) {
			continue
		}
		if strings.HasSuffix(name, ext) || strings.HasSuffix(name, ext+".gz") {
			names = append(names, filepath.Join(dir, name))
		}
	}
	// timestamps sort lexically
	sort.Strings(names)
	return names
}

func (r *LogRotator) prune() {
	if r.config.MaxBackups <= 0 {
		return
	}
	backups := r.backups()
	for len(backups) > r.config.MaxBackups {
		_ = os.Remove(backups[0])
		backups = backups[1:]
	}
}

func gzipFile(name string) error {
	src, err := os.Open(name)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(name+".gz", os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0640)
	if err != nil {
		return err
	}
	zw := gzip.NewWriter(dst)
	if _, err := io.Copy(zw, src); err != nil {
		_ = zw.Close()
		_ = dst.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		_ = dst.Close()
		return err
	}
	return dst.Close()
}

func logFileError(err error, msg, path string) error {
	code := errors.ErrCodeStorageWrite
	if os.IsPermission(err) {
		code = errors.ErrCodeAccessDenied
	}
	return errors.Wrap(err, code, msg).
		WithComponent("logging").
		WithContext("path", path)
}
