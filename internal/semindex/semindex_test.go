package semindex

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codequery/internal/embedder"
	"github.com/dshills/codequery/pkg/types"
)

// termEmbedder embeds text as a bag-of-words vector over a fixed
// vocabulary, making similarity scores predictable in tests.
type termEmbedder struct {
	vocab []string
	fail  bool
}

func (e *termEmbedder) GenerateEmbedding(_ context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	if e.fail {
		return nil, errors.New("backend down")
	}
	vector := make([]float32, len(e.vocab))
	text := strings.ToLower(req.Text)
	for i, term := range e.vocab {
		vector[i] = float32(strings.Count(text, term))
	}
	return &embedder.Embedding{Vector: vector, Dimension: len(vector), Provider: "term"}, nil
}

func (e *termEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	if e.fail {
		return nil, errors.New("backend down")
	}
	embeddings := make([]*embedder.Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := e.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: text})
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return &embedder.BatchEmbeddingResponse{Embeddings: embeddings, Provider: "term"}, nil
}

func (e *termEmbedder) Dimension() int   { return len(e.vocab) }
func (e *termEmbedder) Provider() string { return "term" }
func (e *termEmbedder) Model() string    { return "term-test" }
func (e *termEmbedder) Close() error     { return nil }

func writeFile(t *testing.T, root, rel, content string) string {
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const authPy = `def login(user, pw):
    if check_password(user, pw):
        return session_for(user)
    return None

def render_chart(data):
    return chart_svg(data)
`

func TestUnavailableBackend(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "auth.py", authPy)

	idx := New(nil)
	assert.False(t, idx.Available())

	config := types.NewSearchConfig("user login", root)
	result, err := idx.Search(context.Background(), config)
	require.NoError(t, err, "a missing backend is a structured error, not a failure")
	assert.Empty(t, result.Matches)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "embedding backend unavailable")
}

func TestSearchRanksBySimilarity(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "auth.py", authPy)

	idx := New(&termEmbedder{vocab: []string{"login", "user", "chart", "data"}})
	config := types.NewSearchConfig("login user session", root)
	config.SimilarityThreshold = 0.1

	result, err := idx.Search(context.Background(), config)
	require.NoError(t, err)
	require.NotEmpty(t, result.Matches)

	top := result.Matches[0]
	assert.Equal(t, "login", top.Name)
	assert.Equal(t, types.KindSemantic, top.Kind)
	assert.Equal(t, 1, top.Line)
	assert.Greater(t, top.Score, 0.5)

	for i := 1; i < len(result.Matches); i++ {
		assert.GreaterOrEqual(t, result.Matches[i-1].Score, result.Matches[i].Score)
	}
}

func TestThresholdFilters(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "auth.py", authPy)

	idx := New(&termEmbedder{vocab: []string{"login", "user", "chart", "data"}})
	config := types.NewSearchConfig("login user", root)
	config.SimilarityThreshold = 0.9

	result, err := idx.Search(context.Background(), config)
	require.NoError(t, err)
	for _, m := range result.Matches {
		assert.GreaterOrEqual(t, m.Score, 0.9)
		assert.NotEqual(t, "render_chart", m.Name)
	}
}

func TestExplainResults(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "auth.py", authPy)

	idx := New(&termEmbedder{vocab: []string{"login", "user"}})
	config := types.NewSearchConfig("login user", root)
	config.SimilarityThreshold = 0.1
	config.ExplainResults = true

	result, err := idx.Search(context.Background(), config)
	require.NoError(t, err)
	require.NotEmpty(t, result.Matches)
	assert.Contains(t, result.Matches[0].Meta("explanation"), "login")
}

func TestBackendFailureDuringSearch(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "auth.py", authPy)

	idx := New(&termEmbedder{fail: true})
	config := types.NewSearchConfig("login", root)

	result, err := idx.Search(context.Background(), config)
	require.NoError(t, err)
	assert.Empty(t, result.Matches)
	assert.NotEmpty(t, result.Errors)
}

func TestEmptyQueryFailsFast(t *testing.T) {
	idx := New(nil)
	_, err := idx.Search(context.Background(), types.NewSearchConfig("", t.TempDir()))
	assert.ErrorIs(t, err, types.ErrEmptyPattern)
}

func TestMissingRootFailsFast(t *testing.T) {
	idx := New(nil)
	_, err := idx.Search(context.Background(), types.NewSearchConfig("query", "/does/not/exist"))
	assert.ErrorIs(t, err, types.ErrRootNotFound)
}

func TestMaxResultsCap(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "auth.py", authPy)
	writeFile(t, root, "other.py", authPy)

	idx := New(&termEmbedder{vocab: []string{"login", "user", "chart", "data"}})
	config := types.NewSearchConfig("login user chart data", root)
	config.SimilarityThreshold = 0.01
	config.MaxResults = 2

	result, err := idx.Search(context.Background(), config)
	require.NoError(t, err)
	assert.Len(t, result.Matches, 2)
	assert.True(t, result.Truncated)
}

func TestChunkDeclarations(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "auth.py", authPy)
	content, err := os.ReadFile(path)
	require.NoError(t, err)

	chunks := chunkFile(path, content)
	require.Len(t, chunks, 2)
	assert.Equal(t, "login", chunks[0].Name)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Contains(t, chunks[0].Text, "check_password")
	assert.Equal(t, "render_chart", chunks[1].Name)
}

func TestChunkParagraphs(t *testing.T) {
	root := t.TempDir()
	doc := "# Title\nIntro paragraph here.\n\nSecond paragraph\nspanning two lines.\n\n\nThird.\n"
	path := writeFile(t, root, "README.md", doc)

	chunks := chunkFile(path, []byte(doc))
	require.Len(t, chunks, 3)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 2, chunks[0].EndLine)
	assert.Equal(t, 4, chunks[1].StartLine)
	assert.Contains(t, chunks[1].Text, "spanning two lines")
	assert.Equal(t, "Third.", chunks[2].Text)
}

func TestChunkSkipsBinary(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "blob.md", string([]byte{0x00, 0x01, 0x02}))
	chunks := chunkFile(path, []byte{0x00, 0x01, 0x02})
	assert.Empty(t, chunks)
}
