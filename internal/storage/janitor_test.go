package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestSweepDeletesExpiredOnly(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.mp4")
	fresh := filepath.Join(dir, "fresh.mp4")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0o600))

	stale := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(old, stale, stale))

	j := NewJanitor(dir, 15*time.Minute, time.Minute)
	j.Sweep(time.Now())

	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
}

func TestSweepSkipsDirectories(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o750))
	stale := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(sub, stale, stale))

	j := NewJanitor(dir, time.Minute, time.Minute)
	j.Sweep(time.Now())

	assert.DirExists(t, sub)
}

func TestSweepIdempotentAfterLostRace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.mp4")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	stale := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, stale, stale))

	// Retrieval wins the race first.
	require.NoError(t, Remove(path))

	j := NewJanitor(dir, time.Minute, time.Minute)
	// Must not panic or error the loop; a second sweep behaves the same.
	j.Sweep(time.Now())
	j.Sweep(time.Now())
}

func TestSweepSurvivesMissingDirectory(t *testing.T) {
	j := NewJanitor(filepath.Join(t.TempDir(), "nonexistent"), time.Minute, time.Minute)
	j.Sweep(time.Now())
}

func TestRemoveIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.mp4")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	require.NoError(t, Remove(path))
	require.NoError(t, Remove(path))
}

func TestRunStopsOnContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "old.mp4")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	stale := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, stale, stale))

	j := NewJanitor(dir, time.Minute, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- j.Run(ctx) }()

	assert.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond, "expired file should be swept")

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("janitor did not stop on cancellation")
	}
}
