package scan

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/dshills/codequery/internal/cache"
)

// Options controls file discovery under a root
type Options struct {
	Root           string
	Include        []string // doublestar globs over root-relative paths, empty means all
	Exclude        []string
	Extensions     []string // allowed extensions with dot, empty means all
	IncludeHidden  bool
	MaxFileSize    int64 // bytes, 0 means no ceiling
	ModifiedAfter  time.Time
	ModifiedBefore time.Time
}

// skipDirs are never descended into regardless of hidden policy
var skipDirs = map[string]bool{
	"node_modules":     true,
	"vendor":           true,
	"__pycache__":      true,
	".git":             true,
	cache.CacheDirName: true,
}

// Files walks the tree under opts.Root and returns the absolute paths that
// pass every filter, sorted for deterministic downstream ordering, plus
// per-path walk errors. Unreadable subtrees are reported, not fatal.
func Files(opts Options) ([]string, []string) {
	var files []string
	var errs []string

	root := opts.Root
	if root == "" {
		root = "."
	}

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", path, err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if path == root {
				return nil
			}
			if skipDirs[name] {
				return filepath.SkipDir
			}
			if !opts.IncludeHidden && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if !opts.IncludeHidden && strings.HasPrefix(name, ".") {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)

		if !matchAny(opts.Include, rel, true) {
			return nil
		}
		if matchAny(opts.Exclude, rel, false) {
			return nil
		}

		if len(opts.Extensions) > 0 {
			ext := strings.ToLower(filepath.Ext(name))
			found := false
			for _, allowed := range opts.Extensions {
				if ext == allowed {
					found = true
					break
				}
			}
			if !found {
				return nil
			}
		}

		if opts.MaxFileSize > 0 || !opts.ModifiedAfter.IsZero() || !opts.ModifiedBefore.IsZero() {
			info, err := d.Info()
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", path, err))
				return nil
			}
			if opts.MaxFileSize > 0 && info.Size() > opts.MaxFileSize {
				return nil
			}
			if !opts.ModifiedAfter.IsZero() && info.ModTime().Before(opts.ModifiedAfter) {
				return nil
			}
			if !opts.ModifiedBefore.IsZero() && info.ModTime().After(opts.ModifiedBefore) {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})
	if walkErr != nil {
		errs = append(errs, walkErr.Error())
	}

	sort.Strings(files)
	return files, errs
}

// matchAny reports whether rel matches any of the globs. emptyResult is
// returned for an empty glob list (include defaults to everything, exclude
// to nothing).
func matchAny(globs []string, rel string, emptyResult bool) bool {
	if len(globs) == 0 {
		return emptyResult
	}
	for _, glob := range globs {
		if ok, err := doublestar.Match(glob, rel); err == nil && ok {
			return true
		}
		// Also match against the basename so "*.py" works at any depth
		if ok, err := doublestar.Match(glob, filepath.Base(rel)); err == nil && ok {
			return true
		}
	}
	return false
}

// ReadLines reads a file and splits it into lines. A trailing newline does
// not produce a phantom empty final line.
func ReadLines(path string) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSuffix(string(content), "\n")
	if text == "" {
		return nil, nil
	}
	return strings.Split(text, "\n"), nil
}

// Context extracts up to n lines before and after index i, clamped at the
// slice boundaries. Short files never error; they just yield shorter
// context.
func Context(lines []string, i, n int) (before, after []string) {
	if n <= 0 {
		return nil, nil
	}
	start := i - n
	if start < 0 {
		start = 0
	}
	end := i + n + 1
	if end > len(lines) {
		end = len(lines)
	}
	if i > start {
		before = append(before, lines[start:i]...)
	}
	if end > i+1 {
		after = append(after, lines[i+1:end]...)
	}
	return before, after
}
