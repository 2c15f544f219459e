package depindex

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codequery/internal/cache"
	"github.com/dshills/codequery/pkg/types"
)

func writeFile(t *testing.T, root, rel, content string) string {
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestIndex(t *testing.T) *Index {
	c, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return New(c)
}

func TestSearchRequirements(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "requirements.txt", "# pinned\nrequests==2.31.0\nflask>=2.0\n\n-r base.txt\n")
	writeFile(t, root, "requirements-dev.txt", "pytest~=7.4\n")
	idx := newTestIndex(t)

	config := types.NewSearchConfig(".*", root)
	config.SearchType = types.SearchRequirements

	result, err := idx.Search(context.Background(), config)
	require.NoError(t, err)
	require.Len(t, result.Matches, 3)

	byName := map[string]*types.Match{}
	for i := range result.Matches {
		byName[result.Matches[i].Name] = &result.Matches[i]
	}
	assert.Equal(t, "==2.31.0", byName["requests"].Meta("version"))
	assert.Equal(t, "default", byName["requests"].Meta("section"))
	assert.Equal(t, "dev", byName["pytest"].Meta("section"))
	assert.Equal(t, 2, byName["requests"].Line)
}

func TestSearchPyproject(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "pyproject.toml", `
[project]
dependencies = ["httpx >=0.25", "pydantic[email]==2.5.0"]

[project.optional-dependencies]
docs = ["sphinx"]

[tool.poetry.dependencies]
python = "^3.11"
rich = "^13.0"

[tool.poetry.group.dev.dependencies]
mypy = {version = "^1.7", optional = true}
`)
	idx := newTestIndex(t)

	config := types.NewSearchConfig(".*", root)
	config.SearchType = types.SearchPyproject

	result, err := idx.Search(context.Background(), config)
	require.NoError(t, err)
	require.Len(t, result.Matches, 5, "python itself is never a dependency match")

	byName := map[string]*types.Match{}
	for i := range result.Matches {
		byName[result.Matches[i].Name] = &result.Matches[i]
	}
	assert.Equal(t, ">=0.25", byName["httpx"].Meta("version"))
	assert.Equal(t, "==2.5.0", byName["pydantic"].Meta("version"))
	assert.Equal(t, "docs", byName["sphinx"].Meta("section"))
	assert.Equal(t, "^13.0", byName["rich"].Meta("version"))
	assert.Equal(t, "dev", byName["mypy"].Meta("section"))
	assert.Equal(t, "^1.7", byName["mypy"].Meta("version"))
}

func TestSearchPackageJSONAndGoMod(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "package.json", `{
  "name": "demo",
  "dependencies": {"lodash": "^4.17.21"},
  "devDependencies": {"@types/node": "^20.0.0"}
}`)
	writeFile(t, root, "go.mod", "module example.com/demo\n\ngo 1.22\n\nrequire (\n\tgithub.com/stretchr/testify v1.9.0\n\tgopkg.in/yaml.v3 v3.0.1 // indirect\n)\n")
	idx := newTestIndex(t)

	config := types.NewSearchConfig(".*", root)
	config.SearchType = types.SearchRequirements

	result, err := idx.Search(context.Background(), config)
	require.NoError(t, err)
	require.Len(t, result.Matches, 4)

	byName := map[string]*types.Match{}
	for i := range result.Matches {
		byName[result.Matches[i].Name] = &result.Matches[i]
	}
	assert.Equal(t, "dev", byName["@types/node"].Meta("section"))
	assert.Equal(t, "direct", byName["github.com/stretchr/testify"].Meta("section"))
	assert.Equal(t, "indirect", byName["gopkg.in/yaml.v3"].Meta("section"))
}

func TestSearchInstalled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "site-packages/requests-2.31.0.dist-info/METADATA",
		"Metadata-Version: 2.1\nName: requests\nVersion: 2.31.0\n\nlong description\n")
	writeFile(t, root, "site-packages/flask-3.0.0.dist-info/METADATA",
		"Name: Flask\nVersion: 3.0.0\n")
	idx := newTestIndex(t)

	config := types.NewSearchConfig("requests", root)
	config.SearchType = types.SearchInstalled

	result, err := idx.Search(context.Background(), config)
	require.NoError(t, err)
	require.Len(t, result.Matches, 1)
	assert.Equal(t, "2.31.0", result.Matches[0].Meta("version"))
	assert.Equal(t, "installed", result.Matches[0].Meta("source"))
}

func TestSearchLockfiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "poetry.lock", `
[[package]]
name = "requests"
version = "2.31.0"
category = "main"

[[package]]
name = "pytest"
version = "7.4.3"
category = "dev"
`)
	writeFile(t, root, "package-lock.json", `{
  "packages": {
    "": {"name": "demo"},
    "node_modules/lodash": {"version": "4.17.21"},
    "node_modules/jest": {"version": "29.0.0", "dev": true}
  }
}`)
	idx := newTestIndex(t)

	config := types.NewSearchConfig(".*", root)

	result, err := idx.Search(context.Background(), config)
	require.NoError(t, err)

	byName := map[string]*types.Match{}
	for i := range result.Matches {
		byName[result.Matches[i].Name] = &result.Matches[i]
	}
	assert.Equal(t, "2.31.0", byName["requests"].Meta("version"))
	assert.Equal(t, "dev", byName["pytest"].Meta("section"))
	assert.Equal(t, "4.17.21", byName["lodash"].Meta("version"))
	assert.Equal(t, "dev", byName["jest"].Meta("section"))
}

func TestSearchImportsGroupsByModule(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "import requests\nimport requests.sessions\n")
	writeFile(t, root, "b.py", "from requests import get\nimport yaml\n")
	idx := newTestIndex(t)

	config := types.NewSearchConfig(".*", root)
	config.SearchType = types.SearchDepImports

	result, err := idx.Search(context.Background(), config)
	require.NoError(t, err)
	require.Len(t, result.Matches, 2)

	byName := map[string]*types.Match{}
	for i := range result.Matches {
		byName[result.Matches[i].Name] = &result.Matches[i]
	}
	assert.Equal(t, "3", byName["requests"].Meta("usage_count"))
	assert.Equal(t, "1", byName["yaml"].Meta("usage_count"))
}

func TestUnused(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "requirements.txt", "requests==2.31.0\nleft-pad==1.0.0\n")
	writeFile(t, root, "app.py", "import requests\n\nprint(requests.get)\n")
	idx := newTestIndex(t)

	config := types.NewSearchConfig(".*", root)

	unused, _, err := idx.Unused(context.Background(), config)
	require.NoError(t, err)
	require.Len(t, unused, 1)
	assert.Equal(t, "left-pad", unused[0].Name)
	assert.Empty(t, unused[0].UsageSites)
}

func TestUsageSiteLineNumbers(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "app.py", "\"\"\"doc\"\"\"\nimport yaml\n")
	idx := newTestIndex(t)

	config := types.NewSearchConfig(".*", root)

	usage, _, err := idx.Usage(context.Background(), config)
	require.NoError(t, err)
	require.Len(t, usage["yaml"], 1)
	assert.Equal(t, 2, usage["yaml"][0].Line)
}

func TestUnusedNameNormalization(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "requirements.txt", "PyYAML==6.0\n")
	writeFile(t, root, "app.py", "import yaml\n")
	idx := newTestIndex(t)

	config := types.NewSearchConfig(".*", root)

	unused, _, err := idx.Unused(context.Background(), config)
	require.NoError(t, err)
	// PyYAML imports as yaml; name normalization cannot see that mapping,
	// but pyyaml vs py-yaml style variants must not split.
	require.Len(t, unused, 1)
	assert.Equal(t, "PyYAML", unused[0].Name)
}

func TestOutdated(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "requirements.txt", "requests==2.30.0\nflask>=2.0\n")
	writeFile(t, root, "poetry.lock", `
[[package]]
name = "requests"
version = "2.31.0"

[[package]]
name = "flask"
version = "3.0.0"
`)
	idx := newTestIndex(t)

	config := types.NewSearchConfig(".*", root)

	outdated, _, err := idx.Outdated(context.Background(), config)
	require.NoError(t, err)
	require.Len(t, outdated, 1, "flask>=2.0 is satisfied by 3.0.0")
	assert.Equal(t, "requests", outdated[0].Name)
}

func TestPatternFiltersName(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "requirements.txt", "requests==2.31.0\nflask>=2.0\n")
	idx := newTestIndex(t)

	config := types.NewSearchConfig("^req", root)
	config.SearchType = types.SearchRequirements

	result, err := idx.Search(context.Background(), config)
	require.NoError(t, err)
	require.Len(t, result.Matches, 1)
	assert.Equal(t, "requests", result.Matches[0].Name)
}

func TestManifestParseCached(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "requirements.txt", "requests==2.31.0\n")
	idx := newTestIndex(t)

	config := types.NewSearchConfig(".*", root)
	config.SearchType = types.SearchRequirements

	result, err := idx.Search(context.Background(), config)
	require.NoError(t, err)
	require.Len(t, result.Matches, 1)

	// An edit must invalidate the cached parse.
	require.NoError(t, os.WriteFile(path, []byte("requests==2.31.0\nflask>=2.0\n"), 0o644))
	result, err = idx.Search(context.Background(), config)
	require.NoError(t, err)
	assert.Len(t, result.Matches, 2)
}

func TestSatisfies(t *testing.T) {
	assert.True(t, satisfies("==2.31.0", "2.31.0"))
	assert.False(t, satisfies("==2.30.0", "2.31.0"))
	assert.True(t, satisfies(">=2.0", "3.0.0"))
	assert.False(t, satisfies(">=2.0, <3", "3.0.0"))
	assert.True(t, satisfies("^1.2", "1.9.0"))
	assert.False(t, satisfies("^1.2", "2.0.0"))
	assert.True(t, satisfies("", "1.0.0"), "no constraint is always satisfied")
	assert.True(t, satisfies("===weird", "1.0.0"), "unparseable constraints never flag")
}

func TestModuleKey(t *testing.T) {
	assert.Equal(t, "requests", moduleKey("requests.sessions"))
	assert.Equal(t, "lodash", moduleKey("lodash/fp"))
	assert.Equal(t, "@types/node", moduleKey("@types/node/fs"))
	assert.Equal(t, "github.com/foo/bar", moduleKey("github.com/foo/bar"))
}
