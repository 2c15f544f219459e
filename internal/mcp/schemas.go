package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// commonProperties are the parameters shared by every search tool
func commonProperties() map[string]interface{} {
	return map[string]interface{}{
		"path": map[string]interface{}{
			"type":        "string",
			"description": "Absolute path to the project root",
		},
		"pattern": map[string]interface{}{
			"type":        "string",
			"description": "Search pattern (regex unless noted otherwise)",
		},
		"max_results": map[string]interface{}{
			"type":        "integer",
			"description": "Maximum number of results per index (1-1000)",
			"default":     100,
			"minimum":     1,
			"maximum":     1000,
		},
		"case_sensitive": map[string]interface{}{
			"type":        "boolean",
			"description": "Match case exactly",
			"default":     false,
		},
		"parallel": map[string]interface{}{
			"type":        "boolean",
			"description": "Scan files with a parallel worker pool",
			"default":     true,
		},
		"no_cache": map[string]interface{}{
			"type":        "boolean",
			"description": "Bypass the fingerprint cache for this query",
			"default":     false,
		},
		"include": map[string]interface{}{
			"type":        "array",
			"description": "Glob patterns files must match (e.g. 'src/**/*.py')",
			"items":       map[string]interface{}{"type": "string"},
		},
		"exclude": map[string]interface{}{
			"type":        "array",
			"description": "Glob patterns to skip",
			"items":       map[string]interface{}{"type": "string"},
		},
	}
}

func withCommon(extra map[string]interface{}) map[string]interface{} {
	props := commonProperties()
	for key, value := range extra {
		props[key] = value
	}
	return props
}

// searchCodeTool returns the tool definition for search_code
func searchCodeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_code",
		Description: "Structural search for functions, classes, and imports across Python, Go, JavaScript, TypeScript, and Ruby sources",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: withCommon(map[string]interface{}{
				"search_type": map[string]interface{}{
					"type":        "string",
					"description": "Declaration kind to match",
					"enum":        []string{"function", "class", "import", "all"},
					"default":     "all",
				},
				"complexity_min": map[string]interface{}{
					"type":        "integer",
					"description": "Minimum cyclomatic complexity (0 = unbounded)",
				},
				"complexity_max": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum cyclomatic complexity (0 = unbounded)",
				},
				"lines_min": map[string]interface{}{
					"type":        "integer",
					"description": "Minimum declaration length in lines",
				},
				"lines_max": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum declaration length in lines",
				},
			}),
			Required: []string{"path", "pattern"},
		},
	}
}

// searchFilesTool returns the tool definition for search_files
func searchFilesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_files",
		Description: "Line-oriented content search with glob, size, and time filters",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: withCommon(map[string]interface{}{
				"whole_word": map[string]interface{}{
					"type":        "boolean",
					"description": "Match whole words only",
					"default":     false,
				},
				"context_lines": map[string]interface{}{
					"type":        "integer",
					"description": "Lines of context around each match",
					"default":     2,
				},
				"max_file_size": map[string]interface{}{
					"type":        "integer",
					"description": "Skip files larger than this many bytes (0 = no ceiling)",
				},
				"include_hidden": map[string]interface{}{
					"type":        "boolean",
					"description": "Descend into hidden files and directories",
					"default":     false,
				},
			}),
			Required: []string{"path", "pattern"},
		},
	}
}

// searchDepsTool returns the tool definition for search_deps
func searchDepsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_deps",
		Description: "Search declared, installed, and imported dependencies; detect unused and outdated ones",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: withCommon(map[string]interface{}{
				"search_type": map[string]interface{}{
					"type":        "string",
					"description": "Dependency source to query",
					"enum":        []string{"installed", "requirements", "pyproject", "imports", "all"},
					"default":     "all",
				},
				"unused": map[string]interface{}{
					"type":        "boolean",
					"description": "Report declared dependencies with zero usage sites instead of searching",
					"default":     false,
				},
				"outdated": map[string]interface{}{
					"type":        "boolean",
					"description": "Report declarations whose resolved version no longer satisfies them",
					"default":     false,
				},
			}),
			Required: []string{"path", "pattern"},
		},
	}
}

// searchLogsTool returns the tool definition for search_logs
func searchLogsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_logs",
		Description: "Filter structured log files by level, time window, source, and correlation id",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: withCommon(map[string]interface{}{
				"level": map[string]interface{}{
					"type":        "string",
					"description": "Minimum severity; 'error' includes error and critical",
					"enum":        []string{"debug", "info", "warning", "error", "critical"},
				},
				"since": map[string]interface{}{
					"type":        "string",
					"description": "RFC 3339 timestamp; records before this are skipped",
				},
				"until": map[string]interface{}{
					"type":        "string",
					"description": "RFC 3339 timestamp; records after this are skipped",
				},
				"correlation_id": map[string]interface{}{
					"type":        "string",
					"description": "Substring that must appear in the record message (trace or span id)",
				},
				"sources": map[string]interface{}{
					"type":        "array",
					"description": "Explicit log file paths; defaults to *.log under the root",
					"items":       map[string]interface{}{"type": "string"},
				},
			}),
			Required: []string{"path", "pattern"},
		},
	}
}

// searchSemanticTool returns the tool definition for search_semantic
func searchSemanticTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_semantic",
		Description: "Natural-language search over code and docs, ranked by embedding similarity",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: withCommon(map[string]interface{}{
				"pattern": map[string]interface{}{
					"type":        "string",
					"description": "Free-text query; never interpreted as a regex",
				},
				"similarity_threshold": map[string]interface{}{
					"type":        "number",
					"description": "Minimum cosine similarity (0.0-1.0)",
					"default":     0.3,
					"minimum":     0.0,
					"maximum":     1.0,
				},
				"explain": map[string]interface{}{
					"type":        "boolean",
					"description": "Attach a short rationale per match",
					"default":     false,
				},
			}),
			Required: []string{"path", "pattern"},
		},
	}
}

// searchAllTool returns the tool definition for search_all
func searchAllTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_all",
		Description: "Fan one query out to every index concurrently; partial results survive individual index failures",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: withCommon(map[string]interface{}{
				"indexes": map[string]interface{}{
					"type":        "array",
					"description": "Subset of indexes to run; defaults to all",
					"items": map[string]interface{}{
						"type": "string",
						"enum": []string{"code", "file", "dependency", "log", "semantic"},
					},
				},
			}),
			Required: []string{"path", "pattern"},
		},
	}
}

// cacheStatsTool returns the tool definition for cache_stats
func cacheStatsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "cache_stats",
		Description: "Report fingerprint cache statistics, optionally pruning entries older than max_age_days",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"max_age_days": map[string]interface{}{
					"type":        "integer",
					"description": "Remove entries not accessed in this many days before reporting (0 = no cleanup)",
					"default":     0,
				},
			},
		},
	}
}
