// Package semindex implements natural-language search over code and
// documentation. The query is free text, not a pattern: candidate files are
// chunked, embedded, and ranked by cosine similarity against the embedded
// query.
package semindex

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dshills/codequery/internal/embedder"
	"github.com/dshills/codequery/internal/scan"
	"github.com/dshills/codequery/pkg/types"
)

// DefaultThreshold is the similarity floor applied when the config does
// not set one
const DefaultThreshold = 0.3

// Index ranks chunks by embedding similarity. The backend capability is
// resolved once at construction; an unavailable backend is reported as a
// structured error on every search, never as a crash or a silent fallback
// to keyword matching.
type Index struct {
	backend embedder.Embedder
	reason  string
	logger  *log.Logger
}

// New creates a semantic index over an already-constructed backend
func New(backend embedder.Embedder) *Index {
	idx := &Index{
		backend: backend,
		logger:  log.New(io.Discard, "", 0),
	}
	if backend == nil {
		idx.reason = "no embedding provider configured"
	}
	return idx
}

// NewFromEnv resolves the embedding backend from the environment. A
// missing backend is recorded, not fatal; searches will carry the reason.
func NewFromEnv() *Index {
	backend, err := embedder.NewFromEnv()
	idx := New(backend)
	if err != nil {
		idx.backend = nil
		idx.reason = err.Error()
	}
	return idx
}

// SetLogger installs a logger for per-file diagnostics
func (idx *Index) SetLogger(logger *log.Logger) {
	if logger != nil {
		idx.logger = logger
	}
}

// Available reports whether an embedding backend is configured
func (idx *Index) Available() bool {
	return idx.backend != nil
}

// Close releases the backend
func (idx *Index) Close() error {
	if idx.backend != nil {
		return idx.backend.Close()
	}
	return nil
}

// Search embeds the query and every candidate chunk, keeps chunks at or
// above the similarity threshold, and returns them sorted by similarity
// descending. The query in config.Pattern is free text, never compiled as
// a regular expression.
func (idx *Index) Search(ctx context.Context, config types.SearchConfig) (*types.SearchResult, error) {
	start := time.Now()
	if config.Pattern == "" {
		return nil, types.ErrEmptyPattern
	}
	if config.Root != "" {
		if info, err := os.Stat(config.Root); err != nil || !info.IsDir() {
			return nil, fmt.Errorf("%w: %s", types.ErrRootNotFound, config.Root)
		}
	}

	result := &types.SearchResult{}
	if idx.backend == nil {
		result.AddError("embedding backend unavailable: " + idx.reason)
		result.ExecutionTime = time.Since(start)
		return result, nil
	}

	if config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.Timeout)
		defer cancel()
	}

	files, errs := scan.Files(scan.Options{
		Root:           config.Root,
		Include:        config.Include,
		Exclude:        config.Exclude,
		IncludeHidden:  config.IncludeHidden,
		MaxFileSize:    config.MaxFileSize,
		ModifiedAfter:  config.ModifiedAfter,
		ModifiedBefore: config.ModifiedBefore,
	})
	result.Errors = append(result.Errors, errs...)

	var chunks []Chunk
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			result.AddError(fmt.Sprintf("%s: %v", file, err))
			continue
		}
		chunks = append(chunks, chunkFile(file, content)...)
	}
	if len(chunks) == 0 {
		result.ExecutionTime = time.Since(start)
		return result, nil
	}

	query, err := idx.backend.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: config.Pattern})
	if err != nil {
		result.AddError(fmt.Sprintf("embedding backend unavailable: %v", err))
		result.ExecutionTime = time.Since(start)
		return result, nil
	}

	threshold := config.SimilarityThreshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	for batchStart := 0; batchStart < len(chunks); batchStart += embedder.DefaultBatchSize {
		batchEnd := batchStart + embedder.DefaultBatchSize
		if batchEnd > len(chunks) {
			batchEnd = len(chunks)
		}
		batch := chunks[batchStart:batchEnd]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		resp, err := idx.backend.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: texts})
		if err != nil {
			result.AddError(fmt.Sprintf("embedding batch: %v", err))
			continue
		}
		for i, emb := range resp.Embeddings {
			similarity := embedder.CosineSimilarity(query.Vector, emb.Vector)
			if similarity < threshold {
				continue
			}
			result.Matches = append(result.Matches, idx.chunkMatch(batch[i], similarity, config))
		}
	}

	sortBySimilarity(result.Matches)
	result.Cap(config.MaxResults)
	result.ExecutionTime = time.Since(start)
	return result, nil
}

func (idx *Index) chunkMatch(chunk Chunk, similarity float64, config types.SearchConfig) types.Match {
	content := chunk.Text
	if nl := strings.IndexByte(content, '\n'); nl >= 0 {
		content = content[:nl]
	}
	match := types.Match{
		File:    chunk.File,
		Line:    chunk.StartLine,
		Name:    chunk.Name,
		Kind:    types.KindSemantic,
		Content: content,
		Score:   similarity,
	}
	match.SetMeta("similarity", strconv.FormatFloat(similarity, 'f', 4, 64))
	match.SetMeta("end_line", strconv.Itoa(chunk.EndLine))
	if config.ExplainResults {
		match.SetMeta("explanation", explain(config.Pattern, chunk.Text))
	}
	return match
}

// sortBySimilarity orders matches by score descending, breaking ties by
// file then line so repeated runs are stable.
func sortBySimilarity(matches []types.Match) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].File != matches[j].File {
			return matches[i].File < matches[j].File
		}
		return matches[i].Line < matches[j].Line
	})
}

var termRe = regexp.MustCompile(`[a-z0-9_]+`)

// explain names the query terms that also occur in the chunk, the part of
// similarity a reader can verify at a glance.
func explain(query, text string) string {
	chunkTerms := make(map[string]bool)
	for _, term := range termRe.FindAllString(strings.ToLower(text), -1) {
		chunkTerms[term] = true
	}

	var shared []string
	seen := make(map[string]bool)
	for _, term := range termRe.FindAllString(strings.ToLower(query), -1) {
		if len(term) < 3 || seen[term] || !chunkTerms[term] {
			continue
		}
		seen[term] = true
		shared = append(shared, term)
		if len(shared) == 5 {
			break
		}
	}
	if len(shared) == 0 {
		return "no query terms appear verbatim; similarity is embedding-based"
	}
	return "shares terms: " + strings.Join(shared, ", ")
}
