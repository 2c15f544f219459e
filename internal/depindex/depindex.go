// Package depindex answers dependency questions: what a project declares,
// what is installed, what the source actually imports, and where the three
// disagree (unused and outdated dependencies).
package depindex

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dshills/codequery/internal/cache"
	"github.com/dshills/codequery/internal/codeindex"
	"github.com/dshills/codequery/internal/scan"
	"github.com/dshills/codequery/pkg/types"
)

// manifestGlobs are the manifest and lock file names the index understands
var manifestGlobs = []string{
	"requirements*.txt",
	"pyproject.toml",
	"package.json",
	"go.mod",
	"poetry.lock",
	"package-lock.json",
}

// Index searches dependency declarations and usage. Manifest parses are
// cached against the manifest file's fingerprint.
type Index struct {
	cache  *cache.Cache
	code   *codeindex.Index
	logger *log.Logger
}

// New creates a dependency index sharing the given fingerprint cache
func New(c *cache.Cache) *Index {
	return &Index{
		cache:  c,
		code:   codeindex.New(c),
		logger: log.New(io.Discard, "", 0),
	}
}

// SetLogger installs a logger for cache-degradation diagnostics
func (idx *Index) SetLogger(logger *log.Logger) {
	if logger != nil {
		idx.logger = logger
	}
}

// Search returns dependencies whose name matches the configured pattern.
// The search type selects the source: installed metadata, declared
// manifests, pyproject only, or import usage across the tree.
func (idx *Index) Search(ctx context.Context, config types.SearchConfig) (*types.SearchResult, error) {
	start := time.Now()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	re, err := config.CompilePattern()
	if err != nil {
		return nil, err
	}

	result := &types.SearchResult{}

	var decls []declared
	switch config.SearchType {
	case types.SearchInstalled:
		var errs []string
		decls, errs = parseInstalled(config.Root)
		result.Errors = append(result.Errors, errs...)
	case types.SearchDepImports:
		return idx.searchImports(ctx, config, re, start)
	case types.SearchPyproject:
		decls = idx.declaredFrom(ctx, config, result, func(base string) bool {
			return base == "pyproject.toml"
		})
	case types.SearchRequirements:
		decls = idx.declaredFrom(ctx, config, result, func(base string) bool {
			return !isLockfile(base) && base != "pyproject.toml"
		})
	default:
		decls = idx.declaredFrom(ctx, config, result, func(string) bool { return true })
	}

	for _, d := range decls {
		if !re.MatchString(d.Record.Name) {
			continue
		}
		result.Matches = append(result.Matches, declarationMatch(d))
	}
	codeindex.SortMatches(result.Matches)
	if config.MaxResults > 0 && len(result.Matches) > config.MaxResults {
		result.Cap(config.MaxResults)
	}

	result.ExecutionTime = time.Since(start)
	return result, nil
}

// Usage runs an import search over the tree and groups the hits by module
// name. The pattern restricts which import names are considered.
func (idx *Index) Usage(ctx context.Context, config types.SearchConfig) (map[string][]types.Match, []string, error) {
	importConfig := config
	importConfig.SearchType = types.SearchImports
	importConfig.MaxResults = 0
	importConfig.ComplexityMin, importConfig.ComplexityMax = 0, 0
	importConfig.LinesMin, importConfig.LinesMax = 0, 0

	res, err := idx.code.Search(ctx, importConfig)
	if err != nil {
		return nil, nil, err
	}

	usage := make(map[string][]types.Match)
	for _, m := range res.Matches {
		key := moduleKey(m.Name)
		usage[key] = append(usage[key], m)
	}
	return usage, res.Errors, nil
}

// Unused returns dependencies declared in manifests with no usage site
// anywhere in the scanned tree. Lock files are resolution output, not
// declarations, so they do not count.
func (idx *Index) Unused(ctx context.Context, config types.SearchConfig) ([]types.DependencyRecord, []string, error) {
	result := &types.SearchResult{}
	decls := idx.declaredFrom(ctx, config, result, func(base string) bool {
		return !isLockfile(base)
	})

	usageConfig := config
	usageConfig.Pattern = ".*"
	usage, errs, err := idx.Usage(ctx, usageConfig)
	if err != nil {
		return nil, nil, err
	}
	errs = append(result.Errors, errs...)

	var unused []types.DependencyRecord
	seen := make(map[string]bool)
	for _, d := range decls {
		rec := d.Record
		rec.UsageSites = usageFor(rec, usage)
		norm := NormalizeName(rec.Name)
		if rec.Used() || seen[norm] {
			continue
		}
		seen[norm] = true
		unused = append(unused, rec)
	}
	sort.Slice(unused, func(i, j int) bool { return unused[i].Name < unused[j].Name })
	return unused, errs, nil
}

// Outdated compares declared constraints against resolved versions from
// lock files and installed metadata. A dependency is outdated when the
// resolved version no longer satisfies the declaration, or when a pinned
// declaration lags the resolved version.
func (idx *Index) Outdated(ctx context.Context, config types.SearchConfig) ([]types.DependencyRecord, []string, error) {
	result := &types.SearchResult{}
	declaredSet := idx.declaredFrom(ctx, config, result, func(base string) bool {
		return !isLockfile(base)
	})
	resolvedSet := idx.declaredFrom(ctx, config, result, isLockfile)
	installed, instErrs := parseInstalled(config.Root)
	resolvedSet = append(resolvedSet, installed...)
	errs := append(result.Errors, instErrs...)

	resolved := make(map[string]string)
	for _, d := range resolvedSet {
		resolved[NormalizeName(d.Record.Name)] = d.Record.Version
	}

	var outdated []types.DependencyRecord
	seen := make(map[string]bool)
	for _, d := range declaredSet {
		norm := NormalizeName(d.Record.Name)
		current, ok := resolved[norm]
		if !ok || seen[norm] {
			continue
		}
		if satisfies(d.Record.Version, current) && !behindPin(d.Record.Version, current) {
			continue
		}
		seen[norm] = true
		rec := d.Record
		rec.Section = rec.Section + " -> " + current
		outdated = append(outdated, rec)
	}
	sort.Slice(outdated, func(i, j int) bool { return outdated[i].Name < outdated[j].Name })
	return outdated, errs, nil
}

func (idx *Index) searchImports(ctx context.Context, config types.SearchConfig, re *regexp.Regexp, start time.Time) (*types.SearchResult, error) {
	usage, errs, err := idx.Usage(ctx, config)
	if err != nil {
		return nil, err
	}
	result := &types.SearchResult{Errors: errs}

	modules := make([]string, 0, len(usage))
	for module := range usage {
		if re.MatchString(module) {
			modules = append(modules, module)
		}
	}
	sort.Strings(modules)

	for _, module := range modules {
		sites := usage[module]
		first := sites[0]
		match := types.Match{
			File:    first.File,
			Line:    first.Line,
			Name:    module,
			Kind:    types.KindImport,
			Content: first.Content,
		}
		match.SetMeta("usage_count", strconv.Itoa(len(sites)))
		result.Matches = append(result.Matches, match)
	}
	if config.MaxResults > 0 && len(result.Matches) > config.MaxResults {
		result.Cap(config.MaxResults)
	}

	result.ExecutionTime = time.Since(start)
	return result, nil
}

// declaredFrom parses every manifest under root whose base name passes the
// filter, using the fingerprint cache per manifest.
func (idx *Index) declaredFrom(ctx context.Context, config types.SearchConfig, result *types.SearchResult, keep func(base string) bool) []declared {
	files, errs := scan.Files(scan.Options{
		Root:          config.Root,
		Include:       manifestGlobs,
		IncludeHidden: config.IncludeHidden,
	})
	result.Errors = append(result.Errors, errs...)

	var decls []declared
	for _, file := range files {
		if ctx.Err() != nil {
			return decls
		}
		if !keep(filepath.Base(file)) {
			continue
		}
		parsed, err := idx.parseManifest(ctx, file, config.NoCache)
		if err != nil {
			result.AddError(err.Error())
			continue
		}
		decls = append(decls, parsed...)
	}
	return decls
}

func (idx *Index) parseManifest(ctx context.Context, path string, noCache bool) ([]declared, error) {
	key := manifestKey(path)
	if idx.cache != nil && !noCache {
		if raw, ok := idx.cache.Get(ctx, key); ok {
			var decls []declared
			if err := json.Unmarshal(raw, &decls); err == nil {
				return decls, nil
			}
			idx.logger.Printf("depindex: stale cache payload for %s", path)
		}
	}

	decls, err := parseManifestFile(path)
	if err != nil {
		return nil, err
	}

	if idx.cache != nil && !noCache {
		if raw, err := json.Marshal(decls); err == nil {
			if err := idx.cache.Set(ctx, key, raw, []string{path}); err != nil {
				idx.logger.Printf("depindex: cache set %s: %v", path, err)
			}
		}
	}
	return decls, nil
}

func parseManifestFile(path string) ([]declared, error) {
	base := filepath.Base(path)
	switch {
	case strings.HasPrefix(base, "requirements") && strings.HasSuffix(base, ".txt"):
		return parseRequirements(path)
	case base == "pyproject.toml":
		return parsePyproject(path)
	case base == "package.json":
		return parsePackageJSON(path)
	case base == "go.mod":
		return parseGoMod(path)
	case base == "poetry.lock":
		return parsePoetryLock(path)
	case base == "package-lock.json":
		return parsePackageLock(path)
	}
	return nil, fmt.Errorf("unrecognized manifest %s", path)
}

func isLockfile(base string) bool {
	return base == "poetry.lock" || base == "package-lock.json"
}

func declarationMatch(d declared) types.Match {
	match := types.Match{
		File:    d.File,
		Line:    d.Line,
		Name:    d.Record.Name,
		Kind:    types.KindImport,
		Content: strings.TrimSpace(d.Record.Name + " " + d.Record.Version),
	}
	match.SetMeta("version", d.Record.Version)
	match.SetMeta("section", d.Record.Section)
	match.SetMeta("source", string(d.Record.Source))
	return match
}

func manifestKey(path string) string {
	sum := sha256.Sum256([]byte(path))
	return "dep:" + hex.EncodeToString(sum[:8]) + ":" + filepath.Base(path)
}

// moduleKey reduces an import name to the unit dependencies are declared
// in: the top-level module for Python, the package for npm (keeping the
// scope), the full path for Go-style import paths.
func moduleKey(name string) string {
	if strings.HasPrefix(name, "@") {
		parts := strings.SplitN(name, "/", 3)
		if len(parts) >= 2 {
			return parts[0] + "/" + parts[1]
		}
		return name
	}
	if i := strings.Index(name, "/"); i >= 0 {
		if strings.Contains(name[:i], ".") {
			return name
		}
		return name[:i]
	}
	if i := strings.Index(name, "."); i >= 0 {
		return name[:i]
	}
	return name
}

// usageFor collects the usage sites that belong to a declared dependency.
// Path-style names match by prefix so subpackage imports count.
func usageFor(rec types.DependencyRecord, usage map[string][]types.Match) []types.Match {
	if strings.Contains(rec.Name, "/") {
		var sites []types.Match
		for key, matches := range usage {
			if key == rec.Name || strings.HasPrefix(key, rec.Name+"/") {
				sites = append(sites, matches...)
			}
		}
		return sites
	}
	norm := NormalizeName(rec.Name)
	for key, matches := range usage {
		if NormalizeName(key) == norm {
			return matches
		}
	}
	return nil
}
