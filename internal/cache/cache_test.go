package cache

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/checkrun/pkg/types"
)

func TestDiskRoundTrip(t *testing.T) {
	d := NewDisk(t.TempDir())
	ctx := context.Background()

	_, hit, err := d.Restore(ctx, "v1-abc")
	require.NoError(t, err)
	assert.False(t, hit, "cold cache must miss, not error")

	require.NoError(t, d.Save(ctx, "v1-abc", []byte("payload")))

	data, hit, err := d.Restore(ctx, "v1-abc")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []byte("payload"), data)
}

func TestDiskOverwriteLastWriteWins(t *testing.T) {
	d := NewDisk(t.TempDir())
	ctx := context.Background()

	require.NoError(t, d.Save(ctx, "k", []byte("first")))
	require.NoError(t, d.Save(ctx, "k", []byte("second")))

	data, hit, err := d.Restore(ctx, "k")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []byte("second"), data)
}

func TestFingerprintDeterministic(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Cargo.lock"), []byte("lock-v1"), 0o644))

	spec := types.ToolchainSpec{Channel: "stable", Components: []string{"clippy", "rustfmt"}}
	a := Fingerprint(dir, []string{"Cargo.lock"}, spec, "v1")
	b := Fingerprint(dir, []string{"Cargo.lock"}, spec, "v1")
	assert.Equal(t, a, b)

	// Component order must not matter.
	swapped := types.ToolchainSpec{Channel: "stable", Components: []string{"rustfmt", "clippy"}}
	assert.Equal(t, a, Fingerprint(dir, []string{"Cargo.lock"}, swapped, "v1"))
}

func TestFingerprintChangesWithInputs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Cargo.lock"), []byte("lock-v1"), 0o644))
	spec := types.ToolchainSpec{Channel: "stable"}

	base := Fingerprint(dir, []string{"Cargo.lock"}, spec, "v1")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "Cargo.lock"), []byte("lock-v2"), 0o644))
	assert.NotEqual(t, base, Fingerprint(dir, []string{"Cargo.lock"}, spec, "v1"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "Cargo.lock"), []byte("lock-v1"), 0o644))
	assert.NotEqual(t, base, Fingerprint(dir, []string{"Cargo.lock"}, types.ToolchainSpec{Channel: "beta"}, "v1"))
	assert.NotEqual(t, base, Fingerprint(dir, []string{"Cargo.lock"}, spec, "v2"))
}

func TestFingerprintMissingKeyFile(t *testing.T) {
	dir := t.TempDir()
	spec := types.ToolchainSpec{Channel: "stable"}

	a := Fingerprint(dir, []string{"Cargo.lock"}, spec, "v1")
	b := Fingerprint(dir, []string{"Cargo.lock"}, spec, "v1")
	assert.Equal(t, a, b, "absent key files must still fingerprint deterministically")
}

type flakyBackend struct {
	fails int
	saved map[string][]byte
}

func (f *flakyBackend) Restore(_ context.Context, key string) ([]byte, bool, error) {
	if f.fails > 0 {
		f.fails--
		return nil, false, fmt.Errorf("connection refused")
	}
	data, ok := f.saved[key]
	return data, ok, nil
}

func (f *flakyBackend) Save(_ context.Context, key string, payload []byte) error {
	if f.fails > 0 {
		f.fails--
		return fmt.Errorf("connection refused")
	}
	if f.saved == nil {
		f.saved = make(map[string][]byte)
	}
	f.saved[key] = payload
	return nil
}

func TestBreakerDegradesToMiss(t *testing.T) {
	inner := &flakyBackend{fails: 100}
	b := NewBreakerBackend(inner, slog.Default())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		payload, hit, err := b.Restore(ctx, "k")
		assert.NoError(t, err, "restore must never surface an error")
		assert.False(t, hit)
		assert.Nil(t, payload)
	}

	// Once open, the breaker stops hammering the backend.
	assert.True(t, inner.fails > 80, "open circuit should fail fast without calling the backend")
	assert.Error(t, b.Save(ctx, "k", []byte("x")))
}

func TestBreakerPassThrough(t *testing.T) {
	inner := &flakyBackend{}
	b := NewBreakerBackend(inner, nil)
	ctx := context.Background()

	require.NoError(t, b.Save(ctx, "k", []byte("v")))
	data, hit, err := b.Restore(ctx, "k")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []byte("v"), data)
}
