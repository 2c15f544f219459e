package codeindex

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/codequery/internal/cache"
	"github.com/dshills/codequery/internal/scan"
	"github.com/dshills/codequery/pkg/types"
)

// Index searches source trees by structural pattern: function, class, and
// import declarations, with cyclomatic-complexity scoring. Files that
// cannot be parsed degrade to line-oriented text matching.
type Index struct {
	cache  *cache.Cache
	logger *log.Logger
}

// New creates a code index sharing the given fingerprint cache. A nil
// cache disables caching entirely.
func New(c *cache.Cache) *Index {
	return &Index{
		cache:  c,
		logger: log.New(io.Discard, "", 0),
	}
}

// SetLogger installs a logger for cache-degradation diagnostics
func (idx *Index) SetLogger(logger *log.Logger) {
	if logger != nil {
		idx.logger = logger
	}
}

// Search runs a structural search described by config. Per-file read and
// parse problems are collected into the result's Errors; only
// configuration errors fail the call.
func (idx *Index) Search(ctx context.Context, config types.SearchConfig) (*types.SearchResult, error) {
	start := time.Now()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	re, err := config.CompilePattern()
	if err != nil {
		return nil, err
	}

	files, walkErrs := scan.Files(scan.Options{
		Root:           config.Root,
		Include:        config.Include,
		Exclude:        config.Exclude,
		IncludeHidden:  config.IncludeHidden,
		MaxFileSize:    config.MaxFileSize,
		ModifiedAfter:  config.ModifiedAfter,
		ModifiedBefore: config.ModifiedBefore,
	})

	result := &types.SearchResult{Errors: walkErrs}

	var (
		mu    sync.Mutex
		found atomic.Int64
	)
	scheduledAll := true

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.EffectiveWorkers())

	for _, file := range files {
		// Structural search only covers source files; docs and config
		// belong to the file index.
		if scan.Classify(file) != scan.ClassSource {
			continue
		}
		// Stop scheduling once the cap is reached; already-running
		// workers finish and the merged set is re-sorted and capped.
		if config.MaxResults > 0 && found.Load() >= int64(config.MaxResults) {
			scheduledAll = false
			break
		}
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			matches, ferr := idx.searchFile(gctx, file, config, re)
			mu.Lock()
			if ferr != nil {
				result.AddError(fmt.Sprintf("%s: %v", file, ferr))
			}
			result.Matches = append(result.Matches, matches...)
			mu.Unlock()
			found.Add(int64(len(matches)))
			return nil
		})
	}

	if err := g.Wait(); err != nil && err != context.Canceled {
		result.AddError(err.Error())
	}

	SortMatches(result.Matches)
	result.Cap(config.MaxResults)
	if !scheduledAll && len(result.Matches) >= config.MaxResults {
		// Unscanned files remained when the cap stopped scheduling
		result.Truncated = true
	}
	result.ExecutionTime = time.Since(start)
	return result, nil
}

// searchFile searches one file, consulting the cache first. Cache failures
// degrade silently to a fresh scan.
func (idx *Index) searchFile(ctx context.Context, path string, config types.SearchConfig, re *regexp.Regexp) ([]types.Match, error) {
	key := idx.cacheKey(path, config)
	if idx.cache != nil && !config.NoCache {
		if raw, ok := idx.cache.Get(ctx, key); ok {
			var matches []types.Match
			if err := json.Unmarshal(raw, &matches); err == nil {
				return matches, nil
			}
			idx.logger.Printf("codeindex: stale cache payload for %s", path)
		}
	}

	matches, err := idx.scanFile(path, config, re)
	if err != nil {
		return nil, err
	}

	if idx.cache != nil && !config.NoCache {
		if raw, err := json.Marshal(matches); err == nil {
			if err := idx.cache.Set(ctx, key, raw, []string{path}); err != nil {
				idx.logger.Printf("codeindex: cache set %s: %v", path, err)
			}
		}
	}
	return matches, nil
}

// scanFile extracts declarations (or falls back to text matching) and
// shapes the matches.
func (idx *Index) scanFile(path string, config types.SearchConfig, re *regexp.Regexp) ([]types.Match, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if scan.IsBinaryContent(content) {
		return nil, nil
	}

	lines := strings.Split(strings.TrimSuffix(string(content), "\n"), "\n")

	lang := scan.DetectLanguage(path)
	var decls []Declaration
	switch lang {
	case scan.LangGo:
		decls, err = extractGo(path, content)
		if err != nil {
			// Parse failure falls back to text search, never aborts the file
			return textMatches(path, lines, config, re), nil
		}
	case scan.LangUnknown:
		return textMatches(path, lines, config, re), nil
	default:
		decls = extractPattern(lang, lines)
	}

	matches := make([]types.Match, 0)
	for _, decl := range decls {
		if !wantKind(config.SearchType, decl.Kind) {
			continue
		}
		if !re.MatchString(decl.Name) {
			continue
		}
		if decl.Kind != DeclImport {
			if !inRange(decl.Complexity, config.ComplexityMin, config.ComplexityMax) {
				continue
			}
			if !inRange(decl.Lines(), config.LinesMin, config.LinesMax) {
				continue
			}
		}

		lineIdx := decl.Line - 1
		if lineIdx < 0 || lineIdx >= len(lines) {
			continue
		}
		before, after := scan.Context(lines, lineIdx, config.ContextLines)

		match := types.Match{
			File:          path,
			Line:          decl.Line,
			Column:        decl.Column,
			Name:          decl.Name,
			Kind:          decl.Kind.MatchKind(),
			Content:       lines[lineIdx],
			ContextBefore: before,
			ContextAfter:  after,
		}
		match.SetMeta("language", string(lang))
		if decl.Signature != "" {
			match.SetMeta("signature", decl.Signature)
		}
		if decl.Kind != DeclImport {
			match.SetMeta("complexity", strconv.Itoa(decl.Complexity))
			match.SetMeta("end_line", strconv.Itoa(decl.EndLine))
		}
		matches = append(matches, match)
	}
	return matches, nil
}

// Extract parses a source file into its declarations. Unsupported
// languages yield no declarations; Go parse failures return the error so
// callers can choose their own fallback.
func Extract(path string, content []byte) ([]Declaration, error) {
	switch lang := scan.DetectLanguage(path); lang {
	case scan.LangGo:
		return extractGo(path, content)
	case scan.LangUnknown:
		return nil, nil
	default:
		lines := strings.Split(strings.TrimSuffix(string(content), "\n"), "\n")
		return extractPattern(lang, lines), nil
	}
}

// textMatches is the fallback for unparseable or unsupported files
func textMatches(path string, lines []string, config types.SearchConfig, re *regexp.Regexp) []types.Match {
	matches := make([]types.Match, 0)
	for i, line := range lines {
		if !re.MatchString(line) {
			continue
		}
		before, after := scan.Context(lines, i, config.ContextLines)
		matches = append(matches, types.Match{
			File:          path,
			Line:          i + 1,
			Kind:          types.KindText,
			Content:       line,
			ContextBefore: before,
			ContextAfter:  after,
		})
	}
	return matches
}

// cacheKey derives a stable per-file key from the matching-relevant config
// fields.
func (idx *Index) cacheKey(path string, config types.SearchConfig) string {
	var data strings.Builder
	data.WriteString(config.Pattern)
	data.WriteString("|")
	data.WriteString(string(config.SearchType))
	data.WriteString("|")
	fmt.Fprintf(&data, "%v|%v|%v|%d|%d|%d|%d|%d",
		config.CaseSensitive, config.ExactMatch, config.WholeWord,
		config.ContextLines, config.ComplexityMin, config.ComplexityMax,
		config.LinesMin, config.LinesMax)
	digest := sha256.Sum256([]byte(data.String()))
	return "code:" + hex.EncodeToString(digest[:8]) + ":" + path
}

// inRange checks a value against optional bounds; 0 means unbounded
func inRange(value, min, max int) bool {
	if min > 0 && value < min {
		return false
	}
	if max > 0 && value > max {
		return false
	}
	return true
}

// SortMatches orders matches deterministically by file path, then line,
// then name, so parallel and sequential runs produce the same sequence.
func SortMatches(matches []types.Match) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].File != matches[j].File {
			return matches[i].File < matches[j].File
		}
		if matches[i].Line != matches[j].Line {
			return matches[i].Line < matches[j].Line
		}
		return matches[i].Name < matches[j].Name
	})
}
