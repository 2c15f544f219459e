package cache

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const (
	// DefaultMaxAge is the age threshold for background cleanup
	DefaultMaxAge = 30 * 24 * time.Hour

	// CacheDirName is the project-local directory holding the cache store
	CacheDirName = ".codequery"

	// CacheFileName is the on-disk store file under CacheDirName
	CacheFileName = "cache.db"
)

// Fingerprint captures the identity of a tracked file at Set time. A cache
// entry is valid only while every tracked file still matches its stored
// fingerprint.
type Fingerprint struct {
	Path        string
	MTimeNS     int64
	SizeBytes   int64
	ContentHash uint64
}

// FingerprintFile stats and hashes a file. The content hash lets a Get
// survive mtime churn that leaves content untouched (checkout, touch).
func FingerprintFile(path string) (Fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return Fingerprint{}, err
	}

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return Fingerprint{}, err
	}

	return Fingerprint{
		Path:        path,
		MTimeNS:     info.ModTime().UnixNano(),
		SizeBytes:   info.Size(),
		ContentHash: h.Sum64(),
	}, nil
}

// Cache is a persistent key->value store invalidated by tracked-file
// fingerprints. It is safe for concurrent use: reads go through the shared
// connection while writes are serialized by a single-writer lock.
type Cache struct {
	db      *sql.DB
	path    string
	logger  *log.Logger
	writeMu sync.Mutex
}

// DefaultPath returns the store location for a project root
func DefaultPath(root string) string {
	return filepath.Join(root, CacheDirName, CacheFileName)
}

// openDatabase opens the SQLite store with the settings the cache needs
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for concurrent readers alongside the single writer
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// Open opens or creates the cache store at dbPath. A corrupted store is
// deleted and rebuilt from empty rather than surfaced as a fatal error.
func Open(dbPath string) (*Cache, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	db, err := openAndMigrate(dbPath)
	if err != nil && dbPath != ":memory:" {
		// Corrupt store: start over from empty
		_ = os.Remove(dbPath)
		_ = os.Remove(dbPath + "-wal")
		_ = os.Remove(dbPath + "-shm")
		db, err = openAndMigrate(dbPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open cache store: %w", err)
	}

	return &Cache{
		db:     db,
		path:   dbPath,
		logger: log.New(io.Discard, "", 0),
	}, nil
}

func openAndMigrate(dbPath string) (*sql.DB, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, err
	}
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// SetLogger installs a logger for degraded-mode diagnostics. Cache failures
// are logged and treated as misses, never propagated to searches.
func (c *Cache) SetLogger(logger *log.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// Close closes the backing store
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the cached value for key, or (nil, false) when the entry is
// absent, stale, or unreadable. Staleness is checked against the current
// fingerprints of every tracked file; a changed or missing file always
// yields a miss, and the stale entry is dropped.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	var value []byte
	err := c.db.QueryRowContext(ctx, "SELECT value FROM cache_entries WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false
	}
	if err != nil {
		c.logger.Printf("cache: get %q: %v", key, err)
		return nil, false
	}

	fresh, err := c.verifyFingerprints(ctx, key)
	if err != nil {
		c.logger.Printf("cache: verify %q: %v", key, err)
		return nil, false
	}
	if !fresh {
		if err := c.Invalidate(ctx, key); err != nil {
			c.logger.Printf("cache: invalidate %q: %v", key, err)
		}
		return nil, false
	}

	c.touch(ctx, key)
	return value, true
}

// verifyFingerprints re-stats every tracked file for key. mtime+size match
// is sufficient; on mismatch the content hash decides, so a touch that left
// content intact does not evict, and the stored stat fields are refreshed.
func (c *Cache) verifyFingerprints(ctx context.Context, key string) (bool, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT path, mtime_ns, size_bytes, content_hash FROM tracked_files WHERE cache_key = ?", key)
	if err != nil {
		return false, err
	}
	defer func() { _ = rows.Close() }()

	var refresh []Fingerprint
	for rows.Next() {
		var stored Fingerprint
		var hash int64
		if err := rows.Scan(&stored.Path, &stored.MTimeNS, &stored.SizeBytes, &hash); err != nil {
			return false, err
		}
		stored.ContentHash = uint64(hash)

		info, err := os.Stat(stored.Path)
		if err != nil {
			// Tracked file missing: entry is stale
			return false, nil
		}
		if info.ModTime().UnixNano() == stored.MTimeNS && info.Size() == stored.SizeBytes {
			continue
		}

		current, err := FingerprintFile(stored.Path)
		if err != nil {
			return false, nil
		}
		if current.ContentHash != stored.ContentHash {
			return false, nil
		}
		refresh = append(refresh, current)
	}
	if err := rows.Err(); err != nil {
		return false, err
	}

	for _, fp := range refresh {
		c.refreshFingerprint(ctx, key, fp)
	}
	return true, nil
}

func (c *Cache) refreshFingerprint(ctx context.Context, key string, fp Fingerprint) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.db.ExecContext(ctx,
		"UPDATE tracked_files SET mtime_ns = ?, size_bytes = ? WHERE cache_key = ? AND path = ?",
		fp.MTimeNS, fp.SizeBytes, key, fp.Path)
	if err != nil {
		c.logger.Printf("cache: refresh fingerprint %q: %v", fp.Path, err)
	}
}

func (c *Cache) touch(ctx context.Context, key string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.db.ExecContext(ctx,
		"UPDATE cache_entries SET accessed_at = ? WHERE key = ?", time.Now().UnixNano(), key)
	if err != nil {
		c.logger.Printf("cache: touch %q: %v", key, err)
	}
}

// Set stores value under key, fingerprinting every tracked file. A failure
// to fingerprint any tracked file aborts the Set: caching a value whose
// staleness could not later be detected would violate the Get contract.
func (c *Cache) Set(ctx context.Context, key string, value []byte, trackedFiles []string) error {
	fingerprints := make([]Fingerprint, 0, len(trackedFiles))
	for _, path := range trackedFiles {
		fp, err := FingerprintFile(path)
		if err != nil {
			return fmt.Errorf("failed to fingerprint %s: %w", path, err)
		}
		fingerprints = append(fingerprints, fp)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixNano()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO cache_entries (key, value, created_at, accessed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			created_at = excluded.created_at,
			accessed_at = excluded.accessed_at
	`, key, value, now, now)
	if err != nil {
		return fmt.Errorf("failed to store entry: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM tracked_files WHERE cache_key = ?", key); err != nil {
		return fmt.Errorf("failed to clear fingerprints: %w", err)
	}

	for _, fp := range fingerprints {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tracked_files (cache_key, path, mtime_ns, size_bytes, content_hash)
			VALUES (?, ?, ?, ?, ?)
		`, key, fp.Path, fp.MTimeNS, fp.SizeBytes, int64(fp.ContentHash))
		if err != nil {
			return fmt.Errorf("failed to store fingerprint: %w", err)
		}
	}

	return tx.Commit()
}

// Invalidate removes an entry and its fingerprints
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE key = ?", key)
	return err
}

// Cleanup deletes entries not accessed within maxAge and returns the number
// removed. maxAge <= 0 uses DefaultMaxAge.
func (c *Cache) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	cutoff := time.Now().Add(-maxAge).UnixNano()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	result, err := c.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE accessed_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up cache: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// Stats describes the current state of the store
type Stats struct {
	Entries      int
	TrackedFiles int
	SizeBytes    int64
	OldestEntry  time.Time
}

// Stats reports entry counts and the approximate on-disk size
func (c *Cache) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cache_entries").Scan(&stats.Entries); err != nil {
		return nil, err
	}
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tracked_files").Scan(&stats.TrackedFiles); err != nil {
		return nil, err
	}

	var oldest sql.NullInt64
	if err := c.db.QueryRowContext(ctx, "SELECT MIN(created_at) FROM cache_entries").Scan(&oldest); err == nil && oldest.Valid {
		stats.OldestEntry = time.Unix(0, oldest.Int64)
	}

	var pageCount, pageSize int64
	if err := c.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = c.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		stats.SizeBytes = pageCount * pageSize
	}

	return stats, nil
}
