// Package backup defines the Backup adapter family and the runner that stores backups
// through a Sink.
package backup

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/capadapt/capadapt/internal/adapter"
	"github.com/capadapt/capadapt/internal/cache"
	"github.com/capadapt/capadapt/pkg/errors"
)

// NullBackupMessage is reported by the fallback for caches that cannot be backed up.
const NullBackupMessage = "No backup support for this cache. Nothing was written."

// Backup formats
const (
	FormatBadger = "badger"
	FormatJSONL  = "jsonl"
	FormatNone   = "none"
)

// Report describes what a backup wrote.
type Report struct {
	Format  string `json:"format"`
	Entries int    `json:"entries"`
	Bytes   int64  `json:"bytes"`
	Skipped bool   `json:"skipped"`
	Message string `json:"message,omitempty"`
}

// Backup serializes the state of one cache.
type Backup interface {
	adapter.Adapter

	// Backup writes the cache contents to w.
	Backup(ctx context.Context, w io.Writer) (Report, error)
}

// Family identifies Backup in the registry.
var Family = adapter.FamilyOf[Backup]()

// Declarations returns every Backup registration, fallback included.
func Declarations() []adapter.Registration {
	return []adapter.Registration{
		adapter.Declare[Backup](NewDatabaseBackup),
		adapter.Declare[Backup](NewSnapshotBackup),
		adapter.DeclareFallback[Backup](NewNullBackup),
	}
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// DatabaseBackup streams a badger-backed cache with badger's backup format.
type DatabaseBackup struct {
	cache *cache.DatabaseCache
}

func NewDatabaseBackup(c *cache.DatabaseCache) *DatabaseBackup {
	return &DatabaseBackup{cache: c}
}

func (b *DatabaseBackup) AdapterFamily() adapter.Family { return Family }

func (b *DatabaseBackup) Backup(ctx context.Context, w io.Writer) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	cw := &countingWriter{w: w}
	if _, err := b.cache.DB().Backup(cw, 0); err != nil {
		return Report{}, errors.Wrap(err, errors.ErrCodeStorageRead, "badger backup failed").
			WithComponent("backup").
			WithOperation("database").
			WithContext("cache", b.cache.Name())
	}

	return Report{
		Format:  FormatBadger,
		Entries: b.cache.Stats().Entries,
		Bytes:   cw.n,
	}, nil
}

// SnapshotBackup writes the entries of any cache.Snapshotter as JSON lines.
type SnapshotBackup struct {
	source cache.Snapshotter
}

func NewSnapshotBackup(s cache.Snapshotter) *SnapshotBackup {
	return &SnapshotBackup{source: s}
}

func (b *SnapshotBackup) AdapterFamily() adapter.Family { return Family }

func (b *SnapshotBackup) Backup(ctx context.Context, w io.Writer) (Report, error) {
	cw := &countingWriter{w: w}
	bw := bufio.NewWriter(cw)
	enc := json.NewEncoder(bw)

	entries := b.source.Snapshot()
	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}
		if err := enc.Encode(entry); err != nil {
			return Report{}, fmt.Errorf("encode entry %d: %w", i, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return Report{}, fmt.Errorf("flush snapshot: %w", err)
	}

	return Report{
		Format:  FormatJSONL,
		Entries: len(entries),
		Bytes:   cw.n,
	}, nil
}

// NullBackup is the fallback: it writes nothing and says so.
type NullBackup struct {
	owner any
}

func NewNullBackup(owner any) *NullBackup {
	return &NullBackup{owner: owner}
}

func (b *NullBackup) AdapterFamily() adapter.Family { return Family }

func (b *NullBackup) Backup(ctx context.Context, w io.Writer) (Report, error) {
	return Report{
		Format:  FormatNone,
		Skipped: true,
		Message: NullBackupMessage,
	}, nil
}

// Extension returns the file extension used for a format.
func Extension(format string) string {
	switch format {
	case FormatBadger:
		return ".badger"
	case FormatJSONL:
		return ".jsonl"
	default:
		return ".bin"
	}
}
