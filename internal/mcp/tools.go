package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/codequery/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams = -32602 // Invalid method parameters
	ErrorCodeInternalError = -32603 // Internal JSON-RPC error
	ErrorCodeEmptyPattern  = -32001 // Pattern parameter is empty
	ErrorCodeBadRoot       = -32002 // Root path missing or not a directory
)

// handleSearchCode handles the search_code tool invocation
func (s *Server) handleSearchCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	config, args, err := configFromRequest(request)
	if err != nil {
		return nil, err
	}
	config.SearchType = types.SearchType(getStringDefault(args, "search_type", string(types.SearchAll)))
	config.ComplexityMin = getIntDefault(args, "complexity_min", 0)
	config.ComplexityMax = getIntDefault(args, "complexity_max", 0)
	config.LinesMin = getIntDefault(args, "lines_min", 0)
	config.LinesMax = getIntDefault(args, "lines_max", 0)

	result, err := s.dispatcher.Code().Search(ctx, config)
	if err != nil {
		return nil, searchError(err)
	}
	return mcp.NewToolResultText(formatResult(result)), nil
}

// handleSearchFiles handles the search_files tool invocation
func (s *Server) handleSearchFiles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	config, args, err := configFromRequest(request)
	if err != nil {
		return nil, err
	}
	config.WholeWord = getBoolDefault(args, "whole_word", false)
	config.ContextLines = getIntDefault(args, "context_lines", types.DefaultContextLines)
	config.MaxFileSize = int64(getIntDefault(args, "max_file_size", 0))
	config.IncludeHidden = getBoolDefault(args, "include_hidden", false)

	result, err := s.dispatcher.Files().Search(ctx, config)
	if err != nil {
		return nil, searchError(err)
	}
	return mcp.NewToolResultText(formatResult(result)), nil
}

// handleSearchDeps handles the search_deps tool invocation
func (s *Server) handleSearchDeps(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	config, args, err := configFromRequest(request)
	if err != nil {
		return nil, err
	}
	config.SearchType = types.SearchType(getStringDefault(args, "search_type", string(types.SearchAll)))

	switch {
	case getBoolDefault(args, "unused", false):
		records, errs, err := s.dispatcher.Deps().Unused(ctx, config)
		if err != nil {
			return nil, searchError(err)
		}
		return mcp.NewToolResultText(formatRecords("unused", records, errs)), nil
	case getBoolDefault(args, "outdated", false):
		records, errs, err := s.dispatcher.Deps().Outdated(ctx, config)
		if err != nil {
			return nil, searchError(err)
		}
		return mcp.NewToolResultText(formatRecords("outdated", records, errs)), nil
	}

	result, err := s.dispatcher.Deps().Search(ctx, config)
	if err != nil {
		return nil, searchError(err)
	}
	return mcp.NewToolResultText(formatResult(result)), nil
}

// handleSearchLogs handles the search_logs tool invocation
func (s *Server) handleSearchLogs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	config, args, err := configFromRequest(request)
	if err != nil {
		return nil, err
	}
	config.Level = types.LogLevel(getStringDefault(args, "level", ""))
	config.CorrelationID = getStringDefault(args, "correlation_id", "")
	config.Sources = getStringSlice(args, "sources")

	if since := getStringDefault(args, "since", ""); since != "" {
		ts, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "since must be RFC 3339", map[string]interface{}{
				"param": "since",
				"value": since,
			})
		}
		config.Since = ts
	}
	if until := getStringDefault(args, "until", ""); until != "" {
		ts, err := time.Parse(time.RFC3339, until)
		if err != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "until must be RFC 3339", map[string]interface{}{
				"param": "until",
				"value": until,
			})
		}
		config.Until = ts
	}

	result, err := s.dispatcher.Logs().Search(ctx, config)
	if err != nil {
		return nil, searchError(err)
	}
	return mcp.NewToolResultText(formatResult(result)), nil
}

// handleSearchSemantic handles the search_semantic tool invocation
func (s *Server) handleSearchSemantic(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	config, args, err := configFromRequest(request)
	if err != nil {
		return nil, err
	}
	config.SimilarityThreshold = getFloatDefault(args, "similarity_threshold", 0)
	config.ExplainResults = getBoolDefault(args, "explain", false)

	result, err := s.dispatcher.Semantic().Search(ctx, config)
	if err != nil {
		return nil, searchError(err)
	}
	return mcp.NewToolResultText(formatResult(result)), nil
}

// handleSearchAll handles the search_all tool invocation
func (s *Server) handleSearchAll(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	config, args, err := configFromRequest(request)
	if err != nil {
		return nil, err
	}

	var selected []types.IndexKind
	for _, name := range getStringSlice(args, "indexes") {
		kind := types.IndexKind(name)
		if !kind.Valid() {
			return nil, newMCPError(ErrorCodeInvalidParams, "unknown index", map[string]interface{}{
				"param": "indexes",
				"value": name,
			})
		}
		selected = append(selected, kind)
	}

	aggregate, err := s.dispatcher.SearchAll(ctx, config, selected)
	if err != nil {
		return nil, searchError(err)
	}

	results := make(map[string]interface{}, len(aggregate.Results))
	for kind, result := range aggregate.Results {
		results[string(kind)] = resultPayload(result)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"results":       results,
		"total_matches": aggregate.TotalMatches(),
		"duration_ms":   aggregate.ExecutionTime.Milliseconds(),
	})), nil
}

// handleCacheStats handles the cache_stats tool invocation
func (s *Server) handleCacheStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})

	response := map[string]interface{}{}
	if days := getIntDefault(args, "max_age_days", 0); days > 0 {
		removed, err := s.cache.Cleanup(ctx, time.Duration(days)*24*time.Hour)
		if err != nil {
			return nil, newMCPError(ErrorCodeInternalError, "cache cleanup failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
		response["removed"] = removed
	}

	stats, err := s.cache.Stats(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to read cache stats", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response["entries"] = stats.Entries
	response["tracked_files"] = stats.TrackedFiles
	response["size_bytes"] = stats.SizeBytes
	if !stats.OldestEntry.IsZero() {
		response["oldest_entry"] = stats.OldestEntry.Format(time.RFC3339)
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// configFromRequest extracts the shared search parameters
func configFromRequest(request mcp.CallToolRequest) (types.SearchConfig, map[string]interface{}, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return types.SearchConfig{}, nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return types.SearchConfig{}, nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}
	if err := validatePath(path); err != nil {
		return types.SearchConfig{}, nil, newMCPError(ErrorCodeBadRoot, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	pattern, ok := args["pattern"].(string)
	if !ok || pattern == "" {
		return types.SearchConfig{}, nil, newMCPError(ErrorCodeEmptyPattern, "pattern parameter is required and cannot be empty", map[string]interface{}{
			"param":  "pattern",
			"reason": "missing or empty",
		})
	}

	config := types.NewSearchConfig(pattern, path)
	config.CaseSensitive = getBoolDefault(args, "case_sensitive", false)
	config.Parallel = getBoolDefault(args, "parallel", true)
	config.NoCache = getBoolDefault(args, "no_cache", false)
	config.Include = getStringSlice(args, "include")
	config.Exclude = getStringSlice(args, "exclude")

	limit := getIntDefault(args, "max_results", types.DefaultMaxResults)
	if limit < 1 || limit > 1000 {
		return types.SearchConfig{}, nil, newMCPError(ErrorCodeInvalidParams, "max_results must be between 1 and 1000", map[string]interface{}{
			"param": "max_results",
			"value": limit,
		})
	}
	config.MaxResults = limit

	return config, args, nil
}

// searchError maps index errors onto MCP error codes
func searchError(err error) error {
	switch {
	case errors.Is(err, types.ErrEmptyPattern):
		return newMCPError(ErrorCodeEmptyPattern, err.Error(), nil)
	case errors.Is(err, types.ErrInvalidPattern):
		return newMCPError(ErrorCodeInvalidParams, err.Error(), nil)
	case errors.Is(err, types.ErrRootNotFound):
		return newMCPError(ErrorCodeBadRoot, err.Error(), nil)
	default:
		return newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// formatResult renders one index result as indented JSON
func formatResult(result *types.SearchResult) string {
	return formatJSON(resultPayload(result))
}

func resultPayload(result *types.SearchResult) map[string]interface{} {
	matches := make([]map[string]interface{}, 0, len(result.Matches))
	for _, m := range result.Matches {
		entry := map[string]interface{}{
			"file":    m.File,
			"line":    m.Line,
			"kind":    string(m.Kind),
			"content": m.Content,
		}
		if m.Column > 0 {
			entry["column"] = m.Column
		}
		if m.Name != "" {
			entry["name"] = m.Name
		}
		if m.Score > 0 {
			entry["score"] = m.Score
		}
		if len(m.ContextBefore) > 0 {
			entry["context_before"] = m.ContextBefore
		}
		if len(m.ContextAfter) > 0 {
			entry["context_after"] = m.ContextAfter
		}
		if len(m.Metadata) > 0 {
			entry["metadata"] = m.Metadata
		}
		matches = append(matches, entry)
	}

	payload := map[string]interface{}{
		"matches":     matches,
		"count":       len(matches),
		"truncated":   result.Truncated,
		"duration_ms": result.ExecutionTime.Milliseconds(),
	}
	if len(result.Errors) > 0 {
		payload["errors"] = result.Errors
	}
	return payload
}

// formatRecords renders dependency records (unused/outdated reports)
func formatRecords(label string, records []types.DependencyRecord, errs []string) string {
	entries := make([]map[string]interface{}, 0, len(records))
	for _, rec := range records {
		entry := map[string]interface{}{
			"name":    rec.Name,
			"source":  string(rec.Source),
			"section": rec.Section,
		}
		if rec.Version != "" {
			entry["version"] = rec.Version
		}
		entry["usage_count"] = len(rec.UsageSites)
		entries = append(entries, entry)
	}
	payload := map[string]interface{}{
		label:   entries,
		"count": len(entries),
	}
	if len(errs) > 0 {
		payload["errors"] = errs
	}
	return formatJSON(payload)
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validatePath checks that a root is an absolute, readable directory
func validatePath(path string) error {
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}
	if !info.IsDir() {
		return ErrNotDirectory
	}
	return nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getFloatDefault extracts a float parameter with a default value
func getFloatDefault(args map[string]interface{}, key string, defaultValue float64) float64 {
	if val, ok := args[key].(float64); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts a string array parameter
func getStringSlice(args map[string]interface{}, key string) []string {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	values := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			values = append(values, s)
		}
	}
	return values
}

// Validation errors
var (
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)
