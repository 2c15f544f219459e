// Package mcp exposes the search engine over the Model Context Protocol.
//
// The server registers one tool per index plus an aggregate:
//
//   - search_code: structural search for functions, classes, and imports,
//     with complexity and length range filters
//   - search_files: line content search with glob, size, and time filters
//   - search_deps: declared/installed/imported dependency queries, plus
//     unused and outdated reports
//   - search_logs: level, time window, source, and correlation-id filters
//     over structured log files
//   - search_semantic: free-text search ranked by embedding similarity
//   - search_all: concurrent fan-out to every index with per-index error
//     isolation
//   - cache_stats: fingerprint cache statistics and optional cleanup
//
// All tools take the same core parameters (path, pattern, max_results,
// case_sensitive, parallel, no_cache, include, exclude) and return
// indented JSON. Configuration errors are returned as MCP protocol
// errors; per-file and backend errors travel inside the result payload so
// partial results always reach the client.
package mcp
