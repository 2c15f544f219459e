package fileindex

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
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/codequery/internal/cache"
	"github.com/dshills/codequery/internal/codeindex"
	"github.com/dshills/codequery/internal/scan"
	"github.com/dshills/codequery/pkg/types"
)

// Index performs line-oriented content search over a file tree. Filters
// are applied in order: glob, file-type class, size ceiling, modified
// window, hidden policy; binary files are skipped, not errored.
type Index struct {
	cache  *cache.Cache
	logger *log.Logger

	// Classes restricts results to these file classes; empty means all
	// non-binary files.
	Classes []scan.FileClass
}

// New creates a file index sharing the given fingerprint cache
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

// Search runs a content search described by config
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
		if !idx.classAllowed(file) {
			continue
		}
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

	codeindex.SortMatches(result.Matches)
	result.Cap(config.MaxResults)
	if !scheduledAll && len(result.Matches) >= config.MaxResults {
		// Unscanned files remained when the cap stopped scheduling
		result.Truncated = true
	}
	result.ExecutionTime = time.Since(start)
	return result, nil
}

func (idx *Index) classAllowed(path string) bool {
	if len(idx.Classes) == 0 {
		return true
	}
	class := scan.Classify(path)
	for _, allowed := range idx.Classes {
		if class == allowed {
			return true
		}
	}
	return false
}

// searchFile scans one file, consulting the cache first
func (idx *Index) searchFile(ctx context.Context, path string, config types.SearchConfig, re *regexp.Regexp) ([]types.Match, error) {
	key := idx.cacheKey(path, config)
	if idx.cache != nil && !config.NoCache {
		if raw, ok := idx.cache.Get(ctx, key); ok {
			var matches []types.Match
			if err := json.Unmarshal(raw, &matches); err == nil {
				return matches, nil
			}
		}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if scan.IsBinaryContent(content) {
		return nil, nil
	}

	lines := strings.Split(strings.TrimSuffix(string(content), "\n"), "\n")
	matches := make([]types.Match, 0)
	for i, line := range lines {
		if !re.MatchString(line) {
			continue
		}
		before, after := scan.Context(lines, i, config.ContextLines)
		match := types.Match{
			File:          path,
			Line:          i + 1,
			Kind:          types.KindText,
			Content:       line,
			ContextBefore: before,
			ContextAfter:  after,
		}
		if loc := re.FindStringIndex(line); loc != nil {
			match.Column = loc[0] + 1
		}
		match.SetMeta("class", string(scan.Classify(path)))
		matches = append(matches, match)
	}

	if idx.cache != nil && !config.NoCache {
		if raw, err := json.Marshal(matches); err == nil {
			if err := idx.cache.Set(ctx, key, raw, []string{path}); err != nil {
				idx.logger.Printf("fileindex: cache set %s: %v", path, err)
			}
		}
	}
	return matches, nil
}

func (idx *Index) cacheKey(path string, config types.SearchConfig) string {
	var data strings.Builder
	data.WriteString(config.Pattern)
	fmt.Fprintf(&data, "|%v|%v|%v|%d",
		config.CaseSensitive, config.ExactMatch, config.WholeWord, config.ContextLines)
	digest := sha256.Sum256([]byte(data.String()))
	return "file:" + hex.EncodeToString(digest[:8]) + ":" + path
}
