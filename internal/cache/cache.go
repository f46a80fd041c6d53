// Package cache persists reusable build artifacts between runs. Caching is a
// latency optimization only: a restore miss degrades to a cold run and a save
// failure is logged, neither ever fails a job.
package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Backend stores opaque payloads addressed by fingerprint keys. Reads are
// non-exclusive and concurrent writers to one key may race; last or either
// write winning is acceptable.
type Backend interface {
	// Restore returns the payload for key, with hit=false on a miss.
	Restore(ctx context.Context, key string) (payload []byte, hit bool, err error)
	// Save stores the payload under key, overwriting any previous value.
	Save(ctx context.Context, key string, payload []byte) error
}

// Disk is a local-filesystem backend, one file per key.
type Disk struct {
	dir string
}

// NewDisk creates a disk backend rooted at dir.
func NewDisk(dir string) *Disk {
	return &Disk{dir: dir}
}

func (d *Disk) path(key string) string {
	safe := strings.NewReplacer("/", "_", ":", "_").Replace(key)
	return filepath.Join(d.dir, safe)
}

// Restore implements Backend.
func (d *Disk) Restore(_ context.Context, key string) ([]byte, bool, error) {
	data, err := os.ReadFile(d.path(key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cache entry: %w", err)
	}
	return data, true, nil
}

// Save implements Backend. Writes go through a temp file and rename so a
// concurrent reader never sees a torn payload.
func (d *Disk) Save(_ context.Context, key string, payload []byte) error {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(d.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp entry: %w", err)
	}
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("closing cache entry: %w", err)
	}
	if err := os.Rename(tmp.Name(), d.path(key)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("publishing cache entry: %w", err)
	}
	return nil
}
