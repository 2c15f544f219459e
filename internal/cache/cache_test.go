package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestCache(t *testing.T) *Cache {
	c, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	require.NotNil(t, c)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func writeTestFile(t *testing.T, dir, name, content string) string {
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestOpenCreatesStore(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "nested", "cache.db")

	c, err := Open(dbPath)
	require.NoError(t, err)
	defer c.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestOpenCorruptStoreRebuilds(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "cache.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("this is not a sqlite file at all, just garbage bytes"), 0o644))

	c, err := Open(dbPath)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Entries)
}

func TestSetGetRoundTrip(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()
	dir := t.TempDir()
	tracked := writeTestFile(t, dir, "source.py", "def login(user, pw):\n    pass\n")

	err := c.Set(ctx, "code:abc", []byte(`{"matches":3}`), []string{tracked})
	require.NoError(t, err)

	value, ok := c.Get(ctx, "code:abc")
	require.True(t, ok)
	assert.Equal(t, []byte(`{"matches":3}`), value)
}

func TestGetMissingKey(t *testing.T) {
	c := setupTestCache(t)

	_, ok := c.Get(context.Background(), "nope")
	assert.False(t, ok)
}

func TestGetStaleAfterContentChange(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()
	dir := t.TempDir()
	tracked := writeTestFile(t, dir, "source.py", "x = 1\n")

	require.NoError(t, c.Set(ctx, "k", []byte("v"), []string{tracked}))

	// Change both content and size
	require.NoError(t, os.WriteFile(tracked, []byte("x = 1\ny = 2\n"), 0o644))

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok, "changed tracked file must invalidate the entry")

	// The stale entry must be gone even after restoring the original content
	require.NoError(t, os.WriteFile(tracked, []byte("x = 1\n"), 0o644))
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestGetStaleAfterFileRemoved(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()
	dir := t.TempDir()
	tracked := writeTestFile(t, dir, "gone.txt", "contents")

	require.NoError(t, c.Set(ctx, "k", []byte("v"), []string{tracked}))
	require.NoError(t, os.Remove(tracked))

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestGetSurvivesMTimeOnlyChange(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()
	dir := t.TempDir()
	tracked := writeTestFile(t, dir, "touched.txt", "stable content")

	require.NoError(t, c.Set(ctx, "k", []byte("v"), []string{tracked}))

	// Touch the file without changing content: the hash fallback should
	// keep the entry alive.
	future := time.Now().Add(2 * time.Hour)
	require.NoError(t, os.Chtimes(tracked, future, future))

	value, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), value)

	// And the refreshed fingerprint should make the next Get cheap again
	value, ok = c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), value)
}

func TestSetUntrackedEntry(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "static", []byte("data"), nil))

	value, ok := c.Get(ctx, "static")
	require.True(t, ok)
	assert.Equal(t, []byte("data"), value)
}

func TestSetMissingTrackedFileFails(t *testing.T) {
	c := setupTestCache(t)

	err := c.Set(context.Background(), "k", []byte("v"), []string{"/nonexistent/file.py"})
	assert.Error(t, err)
}

func TestSetOverwrite(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()
	dir := t.TempDir()
	tracked := writeTestFile(t, dir, "f.txt", "one")

	require.NoError(t, c.Set(ctx, "k", []byte("first"), []string{tracked}))
	require.NoError(t, c.Set(ctx, "k", []byte("second"), []string{tracked}))

	value, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("second"), value)
}

func TestInvalidate(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), nil))
	require.NoError(t, c.Invalidate(ctx, "k"))

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestCleanup(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "old", []byte("v"), nil))
	require.NoError(t, c.Set(ctx, "new", []byte("v"), nil))

	// Backdate the old entry past the cleanup threshold
	_, err := c.db.ExecContext(ctx,
		"UPDATE cache_entries SET accessed_at = ? WHERE key = ?",
		time.Now().Add(-31*24*time.Hour).UnixNano(), "old")
	require.NoError(t, err)

	removed, err := c.Cleanup(ctx, DefaultMaxAge)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, ok := c.Get(ctx, "old")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "new")
	assert.True(t, ok)
}

func TestStats(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()
	dir := t.TempDir()
	tracked := writeTestFile(t, dir, "f.txt", "data")

	require.NoError(t, c.Set(ctx, "a", []byte("1"), []string{tracked}))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), nil))

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, 1, stats.TrackedFiles)
	assert.False(t, stats.OldestEntry.IsZero())
	assert.WithinDuration(t, time.Now(), stats.OldestEntry, time.Minute)
}

func TestConcurrentAccess(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()
	dir := t.TempDir()
	tracked := writeTestFile(t, dir, "f.txt", "data")

	done := make(chan error, 8)
	for i := 0; i < 4; i++ {
		go func(n int) {
			key := string(rune('a' + n))
			done <- c.Set(ctx, key, []byte("v"), []string{tracked})
		}(i)
		go func() {
			c.Get(ctx, "a")
			done <- nil
		}()
	}

	for i := 0; i < 8; i++ {
		require.NoError(t, <-done)
	}

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Entries)
}

func TestFingerprintFile(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "f.txt", "hello")

	fp, err := FingerprintFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, fp.Path)
	assert.Equal(t, int64(5), fp.SizeBytes)
	assert.NotZero(t, fp.ContentHash)

	// Same content hashes identically
	other := writeTestFile(t, dir, "g.txt", "hello")
	fp2, err := FingerprintFile(other)
	require.NoError(t, err)
	assert.Equal(t, fp.ContentHash, fp2.ContentHash)
}
