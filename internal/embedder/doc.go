// Package embedder generates vector embeddings for semantic search.
//
// Providers are selected at startup, not per call. NewFromEnv resolves the
// configured provider once and returns ErrNoProviderEnabled when nothing is
// configured, so callers can surface a structured "backend unavailable"
// error instead of degrading to keyword search.
//
// Selection order:
//
//  1. CODEQUERY_EMBEDDING_PROVIDER names a provider explicitly (jina,
//     openai, local)
//  2. JINA_API_KEY set → Jina AI
//  3. OPENAI_API_KEY set → OpenAI
//  4. nothing configured → ErrNoProviderEnabled
//
// The local provider produces deterministic hash-derived vectors. It is
// only used when asked for by name; it exists for offline development and
// tests, not as a silent fallback.
//
// All providers cache embeddings in-memory by content hash with LRU
// eviction, and remote providers retry with exponential backoff.
package embedder
