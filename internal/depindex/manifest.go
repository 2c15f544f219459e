package depindex

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/dshills/codequery/internal/scan"
	"github.com/dshills/codequery/pkg/types"
)

// declared is one dependency declaration located in a manifest
type declared struct {
	Record types.DependencyRecord
	File   string
	Line   int // 1-based, best effort for structured formats
}

// pep508Re splits "name[extras] >=1.0 ; marker" into name and version spec
var pep508Re = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9._-]*)\s*(?:\[[^\]]*\])?\s*([^;#]*)`)

// NormalizeName canonicalizes a package name for set comparison. Python
// treats "Foo_Bar", "foo-bar" and "foo.bar" as the same distribution.
func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "_", "-")
	name = strings.ReplaceAll(name, ".", "-")
	return name
}

// parseRequirements reads a pip requirements file. The section is derived
// from the filename: requirements-dev.txt declares section "dev".
func parseRequirements(path string) ([]declared, error) {
	lines, err := scan.ReadLines(path)
	if err != nil {
		return nil, err
	}
	section := requirementsSection(path)
	var decls []declared
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		m := pep508Re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		decls = append(decls, declared{
			Record: types.DependencyRecord{
				Name:    m[1],
				Version: strings.TrimSpace(m[2]),
				Source:  types.SourceRequirements,
				Section: section,
			},
			File: path,
			Line: i + 1,
		})
	}
	return decls, nil
}

func requirementsSection(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	rest := strings.TrimPrefix(base, "requirements")
	rest = strings.TrimLeft(rest, "-_.")
	if rest == "" {
		return "default"
	}
	return rest
}

// pyprojectFile covers both PEP 621 and poetry dependency tables
type pyprojectFile struct {
	Project struct {
		Dependencies         []string            `toml:"dependencies"`
		OptionalDependencies map[string][]string `toml:"optional-dependencies"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Dependencies map[string]any `toml:"dependencies"`
			Group        map[string]struct {
				Dependencies map[string]any `toml:"dependencies"`
			} `toml:"group"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

func parsePyproject(path string) ([]declared, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file pyprojectFile
	if err := toml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	lines := strings.Split(string(content), "\n")
	var decls []declared

	add := func(name, version, section string) {
		decls = append(decls, declared{
			Record: types.DependencyRecord{
				Name:    name,
				Version: version,
				Source:  types.SourcePyproject,
				Section: section,
			},
			File: path,
			Line: findLine(lines, name),
		})
	}

	for _, spec := range file.Project.Dependencies {
		if m := pep508Re.FindStringSubmatch(spec); m != nil {
			add(m[1], strings.TrimSpace(m[2]), "default")
		}
	}
	for group, specs := range file.Project.OptionalDependencies {
		for _, spec := range specs {
			if m := pep508Re.FindStringSubmatch(spec); m != nil {
				add(m[1], strings.TrimSpace(m[2]), group)
			}
		}
	}
	for name, value := range file.Tool.Poetry.Dependencies {
		if strings.EqualFold(name, "python") {
			continue
		}
		add(name, poetryVersion(value), "default")
	}
	for group, table := range file.Tool.Poetry.Group {
		for name, value := range table.Dependencies {
			add(name, poetryVersion(value), group)
		}
	}

	sortDeclared(decls)
	return decls, nil
}

// poetryVersion handles both "^1.2" and {version = "^1.2", extras = [...]}
func poetryVersion(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case map[string]any:
		if version, ok := v["version"].(string); ok {
			return version
		}
	}
	return ""
}

// packageJSON holds the dependency sections of a package.json
type packageJSON struct {
	Dependencies         map[string]string `json:"dependencies"`
	DevDependencies      map[string]string `json:"devDependencies"`
	PeerDependencies     map[string]string `json:"peerDependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
}

func parsePackageJSON(path string) ([]declared, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file packageJSON
	if err := json.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	lines := strings.Split(string(content), "\n")
	var decls []declared
	sections := []struct {
		name string
		deps map[string]string
	}{
		{"default", file.Dependencies},
		{"dev", file.DevDependencies},
		{"peer", file.PeerDependencies},
		{"optional", file.OptionalDependencies},
	}
	for _, s := range sections {
		for name, version := range s.deps {
			decls = append(decls, declared{
				Record: types.DependencyRecord{
					Name:    name,
					Version: version,
					Source:  types.SourceRequirements,
					Section: s.name,
				},
				File: path,
				Line: findLine(lines, name),
			})
		}
	}
	sortDeclared(decls)
	return decls, nil
}

var goModRequireRe = regexp.MustCompile(`^\s*(?:require\s+)?([\w./-]+)\s+(v[\w.+-]+)(\s*//\s*indirect)?`)

func parseGoMod(path string) ([]declared, error) {
	lines, err := scan.ReadLines(path)
	if err != nil {
		return nil, err
	}
	var decls []declared
	inRequire := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "require ("):
			inRequire = true
			continue
		case inRequire && trimmed == ")":
			inRequire = false
			continue
		}
		if !inRequire && !strings.HasPrefix(trimmed, "require ") {
			continue
		}
		m := goModRequireRe.FindStringSubmatch(line)
		if m == nil || !strings.Contains(m[1], "/") {
			continue
		}
		section := "direct"
		if m[3] != "" {
			section = "indirect"
		}
		decls = append(decls, declared{
			Record: types.DependencyRecord{
				Name:    m[1],
				Version: m[2],
				Source:  types.SourceRequirements,
				Section: section,
			},
			File: path,
			Line: i + 1,
		})
	}
	return decls, nil
}

// poetryLock covers the [[package]] array of a poetry.lock
type poetryLock struct {
	Package []struct {
		Name     string `toml:"name"`
		Version  string `toml:"version"`
		Category string `toml:"category"`
	} `toml:"package"`
}

func parsePoetryLock(path string) ([]declared, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file poetryLock
	if err := toml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	lines := strings.Split(string(content), "\n")
	var decls []declared
	for _, pkg := range file.Package {
		section := pkg.Category
		if section == "" {
			section = "main"
		}
		decls = append(decls, declared{
			Record: types.DependencyRecord{
				Name:    pkg.Name,
				Version: pkg.Version,
				Source:  types.SourceLockfile,
				Section: section,
			},
			File: path,
			Line: findLine(lines, pkg.Name),
		})
	}
	sortDeclared(decls)
	return decls, nil
}

// packageLock covers both the v2+ "packages" map and the legacy
// "dependencies" map of an npm package-lock.json
type packageLock struct {
	Packages map[string]struct {
		Version string `json:"version"`
		Dev     bool   `json:"dev"`
	} `json:"packages"`
	Dependencies map[string]struct {
		Version string `json:"version"`
		Dev     bool   `json:"dev"`
	} `json:"dependencies"`
}

func parsePackageLock(path string) ([]declared, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file packageLock
	if err := json.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	lines := strings.Split(string(content), "\n")
	var decls []declared
	add := func(name, version string, dev bool) {
		section := "default"
		if dev {
			section = "dev"
		}
		decls = append(decls, declared{
			Record: types.DependencyRecord{
				Name:    name,
				Version: version,
				Source:  types.SourceLockfile,
				Section: section,
			},
			File: path,
			Line: findLine(lines, name),
		})
	}
	if len(file.Packages) > 0 {
		for key, pkg := range file.Packages {
			idx := strings.LastIndex(key, "node_modules/")
			if idx < 0 {
				continue // the root project entry
			}
			add(key[idx+len("node_modules/"):], pkg.Version, pkg.Dev)
		}
	} else {
		for name, pkg := range file.Dependencies {
			add(name, pkg.Version, pkg.Dev)
		}
	}
	sortDeclared(decls)
	return decls, nil
}

// parseInstalled walks root for *.dist-info/METADATA files and reads the
// Name and Version headers, the stable part of installed package metadata.
func parseInstalled(root string) ([]declared, []string) {
	var decls []declared
	var errs []string

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", path, err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if name := d.Name(); name == ".git" || name == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() != "METADATA" || !strings.HasSuffix(filepath.Dir(path), ".dist-info") {
			return nil
		}
		name, version, err := readMetadata(path)
		if err != nil {
			errs = append(errs, err.Error())
			return nil
		}
		if name == "" {
			return nil
		}
		decls = append(decls, declared{
			Record: types.DependencyRecord{
				Name:    name,
				Version: version,
				Source:  types.SourceInstalled,
				Section: "installed",
			},
			File: path,
			Line: 1,
		})
		return nil
	})
	if walkErr != nil {
		errs = append(errs, walkErr.Error())
	}

	sortDeclared(decls)
	return decls, errs
}

func readMetadata(path string) (name, version string, err error) {
	lines, err := scan.ReadLines(path)
	if err != nil {
		return "", "", err
	}
	for _, line := range lines {
		if line == "" {
			break // headers end at the first blank line
		}
		if v, ok := strings.CutPrefix(line, "Name: "); ok {
			name = strings.TrimSpace(v)
		}
		if v, ok := strings.CutPrefix(line, "Version: "); ok {
			version = strings.TrimSpace(v)
		}
	}
	return name, version, nil
}

// findLine locates the first line mentioning a quoted or bare name token.
// Structured formats do not carry positions, so this is best effort.
func findLine(lines []string, name string) int {
	for i, line := range lines {
		if strings.Contains(line, `"`+name+`"`) || strings.Contains(line, name+" ") || strings.Contains(line, name+"=") {
			return i + 1
		}
	}
	return 1
}

func sortDeclared(decls []declared) {
	sort.Slice(decls, func(i, j int) bool {
		if decls[i].Record.Section != decls[j].Record.Section {
			return decls[i].Record.Section < decls[j].Record.Section
		}
		return decls[i].Record.Name < decls[j].Record.Name
	})
}
