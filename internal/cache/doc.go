// Package cache implements the fingerprint-aware persistent cache shared
// by every index.
//
// Entries are stored in a single project-local SQLite file holding two
// tables: cache_entries (key -> value blob) and tracked_files (the
// fingerprints of the source files each entry depends on). A fingerprint is
// (mtime, size) with an xxhash content hash as fallback, so an entry
// survives tooling that rewrites timestamps without changing content.
//
// # Correctness contract
//
// Get must never serve a stale value: if any tracked file is missing or its
// fingerprint differs from what was stored at Set time, Get returns a miss
// and drops the entry. This holds regardless of whether the raw row still
// exists on disk.
//
// # Failure semantics
//
// A corrupted store is rebuilt from empty at Open. Individual Get/Set
// failures are logged through the injected logger and degrade to cache-miss
// behavior; they never abort a search.
//
// # Concurrency
//
// The store uses WAL mode with a single pooled connection. Writes are
// additionally serialized by a mutex so parallel index workers cannot
// interleave multi-statement updates.
package cache
