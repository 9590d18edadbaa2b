package backup

import (
	"context"
	"os"
	"path/filepath"

	"github.com/capadapt/capadapt/internal/circuit"
	"github.com/capadapt/capadapt/pkg/errors"
	"github.com/capadapt/capadapt/pkg/utils"
)

// Sink stores finished backups.
type Sink interface {
	// Store saves body under name and returns where it went.
	Store(ctx context.Context, name string, body []byte) (string, error)
}

// FileSink writes backups below a local directory.
type FileSink struct {
	dir string
}

// NewFileSink creates dir if needed.
func NewFileSink(dir string) (*FileSink, error) {
	if dir == "" {
		return nil, errors.NewError(errors.ErrCodeMissingConfig, "backup directory is required").
			WithComponent("backup")
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageWrite, "create backup directory").
			WithComponent("backup").
			WithContext("directory", dir)
	}
	return &FileSink{dir: dir}, nil
}

// Dir returns the root directory.
func (s *FileSink) Dir() string {
	return s.dir
}

// Store writes body atomically via a temporary file.
func (s *FileSink) Store(ctx context.Context, name string, body []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path, err := utils.SecureJoin(s.dir, name)
	if err != nil || path == filepath.Clean(s.dir) {
		return "", errors.Newf(errors.ErrCodeInvalidConfig, "backup name %q escapes the backup directory", name).
			WithComponent("backup")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return "", storeError(err, path)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0600); err != nil {
		_ = os.Remove(tmp)
		return "", storeError(err, path)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", storeError(err, path)
	}
	return path, nil
}

func storeError(err error, path string) error {
	code := errors.ErrCodeStorageWrite
	if os.IsPermission(err) {
		code = errors.ErrCodeAccessDenied
	}
	return errors.Wrap(err, code, "write backup file").
		WithComponent("backup").
		WithOperation("store").
		WithContext("path", path)
}

// GuardedSink rejects stores while its breaker is open so a failing destination
// is not hammered by every scheduled backup.
type GuardedSink struct {
	sink    Sink
	breaker *circuit.Breaker
}

// NewGuardedSink wraps sink with breaker.
func NewGuardedSink(sink Sink, breaker *circuit.Breaker) *GuardedSink {
	return &GuardedSink{sink: sink, breaker: breaker}
}

// Breaker returns the breaker guarding the sink.
func (g *GuardedSink) Breaker() *circuit.Breaker {
	return g.breaker
}

// Store forwards to the wrapped sink through the breaker.
func (g *GuardedSink) Store(ctx context.Context, name string, body []byte) (string, error) {
	var location string
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		location, err = g.sink.Store(ctx, name, body)
		return err
	})
	return location, err
}
