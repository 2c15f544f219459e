package codeindex

import (
	"regexp"
	"strings"

	"github.com/dshills/codequery/internal/scan"
)

// Regex-based structural extraction for languages without a native parser.
// It is line oriented: declaration headers are recognized by pattern, the
// declaration span is recovered from indentation or brace balance, and
// complexity is counted from branching keywords inside the span.

var (
	pyFuncRe   = regexp.MustCompile(`^(\s*)(?:async\s+)?def\s+([A-Za-z_]\w*)\s*\(`)
	pyClassRe  = regexp.MustCompile(`^(\s*)class\s+([A-Za-z_]\w*)`)
	pyImportRe = regexp.MustCompile(`^\s*import\s+([\w.,\s]+?)(?:\s+as\s+\w+)?\s*(?:#.*)?$`)
	pyFromRe   = regexp.MustCompile(`^\s*from\s+([\w.]+)\s+import\b`)
	pyBranchRe = regexp.MustCompile(`\b(if|elif|for|while|except|case|and|or)\b`)

	jsFuncRe    = regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s*([A-Za-z_$][\w$]*)`)
	jsArrowRe   = regexp.MustCompile(`^\s*(?:export\s+)?(?:const|let|var)\s+([A-Za-z_$][\w$]*)\s*=\s*(?:async\s+)?(?:\([^)]*\)|[A-Za-z_$][\w$]*)\s*=>`)
	jsClassRe   = regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?(?:abstract\s+)?class\s+([A-Za-z_$][\w$]*)`)
	jsImportRe  = regexp.MustCompile(`^\s*import\s+(?:.*?\s+from\s+)?['"]([^'"]+)['"]`)
	jsRequireRe = regexp.MustCompile(`\brequire\(\s*['"]([^'"]+)['"]\s*\)`)
	jsBranchRe  = regexp.MustCompile(`\b(if|for|while|case|catch)\b|&&|\|\|`)

	rbFuncRe   = regexp.MustCompile(`^(\s*)def\s+(?:self\.)?([A-Za-z_]\w*[?!]?)`)
	rbClassRe  = regexp.MustCompile(`^(\s*)(?:class|module)\s+([A-Z]\w*)`)
	rbImportRe = regexp.MustCompile(`^\s*require(?:_relative)?\s+['"]([^'"]+)['"]`)
	rbBranchRe = regexp.MustCompile(`\b(if|elsif|unless|while|until|when|rescue|and|or)\b|&&|\|\|`)
)

// extractPattern dispatches to the per-language extractor
func extractPattern(lang scan.Language, lines []string) []Declaration {
	switch lang {
	case scan.LangPython:
		return extractPython(lines)
	case scan.LangJavaScript, scan.LangTypeScript:
		return extractJS(lines)
	case scan.LangRuby:
		return extractRuby(lines)
	default:
		return nil
	}
}

func extractPython(lines []string) []Declaration {
	decls := make([]Declaration, 0)
	for i, line := range lines {
		if m := pyFuncRe.FindStringSubmatch(line); m != nil {
			end := indentSpanEnd(lines, i, len(m[1]))
			decls = append(decls, Declaration{
				Name:       m[2],
				Kind:       DeclFunction,
				Line:       i + 1,
				EndLine:    end + 1,
				Column:     len(m[1]) + 1,
				Signature:  strings.TrimSpace(line),
				Complexity: 1 + countBranches(pyBranchRe, lines[i+1:end+1]),
			})
			continue
		}
		if m := pyClassRe.FindStringSubmatch(line); m != nil {
			end := indentSpanEnd(lines, i, len(m[1]))
			decls = append(decls, Declaration{
				Name:       m[2],
				Kind:       DeclClass,
				Line:       i + 1,
				EndLine:    end + 1,
				Column:     len(m[1]) + 1,
				Signature:  strings.TrimSpace(line),
				Complexity: 1 + countBranches(pyBranchRe, lines[i+1:end+1]),
			})
			continue
		}
		if m := pyFromRe.FindStringSubmatch(line); m != nil {
			decls = append(decls, importDecl(m[1], i, line))
			continue
		}
		if m := pyImportRe.FindStringSubmatch(line); m != nil {
			// "import a, b" declares multiple modules
			for _, mod := range strings.Split(m[1], ",") {
				mod = strings.TrimSpace(mod)
				if idx := strings.Index(mod, " as "); idx >= 0 {
					mod = mod[:idx]
				}
				if mod != "" {
					decls = append(decls, importDecl(mod, i, line))
				}
			}
		}
	}
	return decls
}

func extractJS(lines []string) []Declaration {
	decls := make([]Declaration, 0)
	for i, line := range lines {
		if m := jsImportRe.FindStringSubmatch(line); m != nil {
			decls = append(decls, importDecl(m[1], i, line))
			continue
		}
		if m := jsRequireRe.FindStringSubmatch(line); m != nil {
			decls = append(decls, importDecl(m[1], i, line))
			continue
		}
		if m := jsClassRe.FindStringSubmatch(line); m != nil {
			end := braceSpanEnd(lines, i)
			decls = append(decls, Declaration{
				Name:       m[1],
				Kind:       DeclClass,
				Line:       i + 1,
				EndLine:    end + 1,
				Signature:  strings.TrimSpace(line),
				Complexity: 1 + countBranches(jsBranchRe, lines[i+1:end+1]),
			})
			continue
		}
		if m := jsFuncRe.FindStringSubmatch(line); m != nil {
			end := braceSpanEnd(lines, i)
			decls = append(decls, Declaration{
				Name:       m[1],
				Kind:       DeclFunction,
				Line:       i + 1,
				EndLine:    end + 1,
				Signature:  strings.TrimSpace(line),
				Complexity: 1 + countBranches(jsBranchRe, lines[i+1:end+1]),
			})
			continue
		}
		if m := jsArrowRe.FindStringSubmatch(line); m != nil {
			end := braceSpanEnd(lines, i)
			decls = append(decls, Declaration{
				Name:       m[1],
				Kind:       DeclFunction,
				Line:       i + 1,
				EndLine:    end + 1,
				Signature:  strings.TrimSpace(line),
				Complexity: 1 + countBranches(jsBranchRe, lines[i+1:end+1]),
			})
		}
	}
	return decls
}

func extractRuby(lines []string) []Declaration {
	decls := make([]Declaration, 0)
	for i, line := range lines {
		if m := rbImportRe.FindStringSubmatch(line); m != nil {
			decls = append(decls, importDecl(m[1], i, line))
			continue
		}
		if m := rbFuncRe.FindStringSubmatch(line); m != nil {
			end := rubySpanEnd(lines, i, len(m[1]))
			decls = append(decls, Declaration{
				Name:       m[2],
				Kind:       DeclFunction,
				Line:       i + 1,
				EndLine:    end + 1,
				Column:     len(m[1]) + 1,
				Signature:  strings.TrimSpace(line),
				Complexity: 1 + countBranches(rbBranchRe, lines[i+1:end+1]),
			})
			continue
		}
		if m := rbClassRe.FindStringSubmatch(line); m != nil {
			end := rubySpanEnd(lines, i, len(m[1]))
			decls = append(decls, Declaration{
				Name:       m[2],
				Kind:       DeclClass,
				Line:       i + 1,
				EndLine:    end + 1,
				Column:     len(m[1]) + 1,
				Signature:  strings.TrimSpace(line),
				Complexity: 1 + countBranches(rbBranchRe, lines[i+1:end+1]),
			})
		}
	}
	return decls
}

func importDecl(name string, lineIdx int, line string) Declaration {
	return Declaration{
		Name:      name,
		Kind:      DeclImport,
		Line:      lineIdx + 1,
		EndLine:   lineIdx + 1,
		Signature: strings.TrimSpace(line),
	}
}

// indentSpanEnd finds the last line (0-based) belonging to an
// indentation-scoped declaration starting at start with the given indent.
func indentSpanEnd(lines []string, start, indent int) int {
	end := start
	for i := start + 1; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if leadingWhitespace(lines[i]) <= indent {
			break
		}
		end = i
	}
	return end
}

// braceSpanEnd finds the line (0-based) closing the brace block opened on
// or after start. Falls back to the start line when no brace opens.
func braceSpanEnd(lines []string, start int) int {
	depth := 0
	opened := false
	for i := start; i < len(lines); i++ {
		for _, ch := range lines[i] {
			switch ch {
			case '{':
				depth++
				opened = true
			case '}':
				depth--
			}
		}
		if opened && depth <= 0 {
			return i
		}
		// Single-expression arrow function with no block
		if !opened && i > start {
			return start
		}
	}
	return len(lines) - 1
}

// rubySpanEnd finds the "end" keyword at the declaration's indentation
func rubySpanEnd(lines []string, start, indent int) int {
	for i := start + 1; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "end" && leadingWhitespace(lines[i]) == indent {
			return i
		}
	}
	return len(lines) - 1
}

func leadingWhitespace(line string) int {
	count := 0
	for _, ch := range line {
		if ch == ' ' {
			count++
		} else if ch == '\t' {
			count += 4
		} else {
			break
		}
	}
	return count
}

// countBranches counts branching-construct occurrences across body lines,
// ignoring comment-only lines.
func countBranches(branchRe *regexp.Regexp, body []string) int {
	count := 0
	for _, line := range body {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "//") {
			continue
		}
		count += len(branchRe.FindAllString(line, -1))
	}
	return count
}
