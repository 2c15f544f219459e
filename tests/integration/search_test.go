package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/dshills/codequery/internal/cache"
	"github.com/dshills/codequery/internal/dispatch"
	"github.com/dshills/codequery/internal/embedder"
	"github.com/dshills/codequery/internal/semindex"
	"github.com/dshills/codequery/pkg/types"
)

// SearchTestSuite exercises every index through the dispatcher against a
// shared fixture project, the way an MCP client would drive them.
type SearchTestSuite struct {
	suite.Suite
	root       string
	store      *cache.Cache
	dispatcher *dispatch.Dispatcher
	ctx        context.Context
}

const fixtureLog = `2024-05-01T10:00:00Z INFO app - startup complete
2024-05-01T10:00:05Z ERROR auth - login failed for user alice
2024-05-01T10:00:06Z DEBUG auth - retrying token refresh
2024-05-01T10:01:00Z WARN app - session cache nearly full
`

func (s *SearchTestSuite) SetupSuite() {
	s.ctx = context.Background()

	root := s.T().TempDir()
	s.root = root

	files := map[string]string{
		"src/auth.py": `import requests

def login(user, password):
    if not user:
        return None
    if not password:
        return None
    return requests.post("/login", json={"user": user})

def logout(session):
    session.close()
`,
		"src/util.py": `import os

def data_dir():
    return os.environ.get("DATA_DIR", "/tmp")
`,
		"docs/notes.md": `# Notes

The login flow exchanges credentials for a session token.

Logout simply drops the token.
`,
		"requirements.txt": "requests==2.31.0\nleft-pad==1.0.0\n",
		"app.log":          fixtureLog,
	}
	for name, content := range files {
		path := filepath.Join(root, name)
		s.Require().NoError(os.MkdirAll(filepath.Dir(path), 0o755))
		s.Require().NoError(os.WriteFile(path, []byte(content), 0o644))
	}

	store, err := cache.Open(cache.DefaultPath(root))
	s.Require().NoError(err)
	s.store = store

	backend, err := embedder.NewLocalProvider(nil)
	s.Require().NoError(err)
	s.dispatcher = dispatch.New(store, semindex.New(backend))
}

func (s *SearchTestSuite) TearDownSuite() {
	s.Require().NoError(s.store.Close())
}

func (s *SearchTestSuite) TestCodeSearchFindsDeclarations() {
	config := types.NewSearchConfig("login", s.root)
	config.SearchType = types.SearchFunctions

	result, err := s.dispatcher.Code().Search(s.ctx, config)
	s.Require().NoError(err)
	s.Require().Len(result.Matches, 1)
	s.Equal("login", result.Matches[0].Name)
	s.Equal(types.KindFunction, result.Matches[0].Kind)
}

func (s *SearchTestSuite) TestFileSearchWithContext() {
	config := types.NewSearchConfig("session token", s.root)
	config.ContextLines = 1

	result, err := s.dispatcher.Files().Search(s.ctx, config)
	s.Require().NoError(err)
	s.Require().NotEmpty(result.Matches)
	s.Contains(result.Matches[0].File, "notes.md")
	s.NotEmpty(result.Matches[0].ContextBefore)
	s.NotEmpty(result.Matches[0].ContextAfter)
}

func (s *SearchTestSuite) TestDependencySearchAndUnused() {
	config := types.NewSearchConfig(".", s.root)
	config.SearchType = types.SearchRequirements

	result, err := s.dispatcher.Deps().Search(s.ctx, config)
	s.Require().NoError(err)
	s.Len(result.Matches, 2)

	unused, _, err := s.dispatcher.Deps().Unused(s.ctx, config)
	s.Require().NoError(err)
	s.Require().Len(unused, 1)
	s.Equal("left-pad", unused[0].Name)
}

func (s *SearchTestSuite) TestLogSearchByLevel() {
	config := types.NewSearchConfig(".", s.root)
	config.Level = types.LevelError

	result, err := s.dispatcher.Logs().Search(s.ctx, config)
	s.Require().NoError(err)
	s.Require().Len(result.Matches, 1)
	s.Contains(result.Matches[0].Content, "login failed")
}

func (s *SearchTestSuite) TestSemanticSearchAvailable() {
	s.True(s.dispatcher.Semantic().Available())

	config := types.NewSearchConfig("how are users authenticated", s.root)
	result, err := s.dispatcher.Semantic().Search(s.ctx, config)
	s.Require().NoError(err)
	s.Empty(result.Errors)
}

func (s *SearchTestSuite) TestSearchAllAggregates() {
	config := types.NewSearchConfig("login", s.root)

	agg, err := s.dispatcher.SearchAll(s.ctx, config, nil)
	s.Require().NoError(err)
	s.Len(agg.Results, len(types.AllIndexKinds))
	s.NotZero(agg.ExecutionTime)

	s.NotEmpty(agg.Results[types.IndexCode].Matches)
	s.NotEmpty(agg.Results[types.IndexFile].Matches)
	s.NotEmpty(agg.Results[types.IndexLog].Matches)
}

func (s *SearchTestSuite) TestSearchAllDeterministic() {
	config := types.NewSearchConfig("login", s.root)

	first, err := s.dispatcher.SearchAll(s.ctx, config, []types.IndexKind{types.IndexCode, types.IndexFile})
	s.Require().NoError(err)
	second, err := s.dispatcher.SearchAll(s.ctx, config, []types.IndexKind{types.IndexCode, types.IndexFile})
	s.Require().NoError(err)

	for _, kind := range []types.IndexKind{types.IndexCode, types.IndexFile} {
		s.Require().Equal(len(first.Results[kind].Matches), len(second.Results[kind].Matches))
		for i := range first.Results[kind].Matches {
			s.Equal(first.Results[kind].Matches[i].File, second.Results[kind].Matches[i].File)
			s.Equal(first.Results[kind].Matches[i].Line, second.Results[kind].Matches[i].Line)
		}
	}
}

func (s *SearchTestSuite) TestCachePopulatedAndInvalidated() {
	config := types.NewSearchConfig("logout", s.root)
	config.SearchType = types.SearchFunctions

	result, err := s.dispatcher.Code().Search(s.ctx, config)
	s.Require().NoError(err)
	s.Require().Len(result.Matches, 1)

	stats, err := s.store.Stats(s.ctx)
	s.Require().NoError(err)
	s.Positive(stats.Entries)

	// Edit the file; the fingerprint check must see the new content
	path := filepath.Join(s.root, "src", "auth.py")
	data, err := os.ReadFile(path)
	s.Require().NoError(err)
	updated := append(data, []byte("\ndef logout_all(sessions):\n    pass\n")...)
	s.Require().NoError(os.WriteFile(path, updated, 0o644))
	future := time.Now().Add(2 * time.Second)
	s.Require().NoError(os.Chtimes(path, future, future))

	result, err = s.dispatcher.Code().Search(s.ctx, config)
	s.Require().NoError(err)
	s.Len(result.Matches, 2)
}

func TestSearchSuite(t *testing.T) {
	suite.Run(t, new(SearchTestSuite))
}
