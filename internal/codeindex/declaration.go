package codeindex

import "github.com/dshills/codequery/pkg/types"

// DeclKind is the structural kind of an extracted declaration
type DeclKind string

const (
	DeclFunction DeclKind = "function"
	DeclClass    DeclKind = "class"
	DeclImport   DeclKind = "import"
)

// MatchKind maps a declaration kind to its result kind
func (k DeclKind) MatchKind() types.MatchKind {
	switch k {
	case DeclFunction:
		return types.KindFunction
	case DeclClass:
		return types.KindClass
	default:
		return types.KindImport
	}
}

// Declaration is one structural element extracted from a source file
type Declaration struct {
	Name       string
	Kind       DeclKind
	Line       int // 1-based start line
	EndLine    int // 1-based inclusive end line
	Column     int
	Signature  string
	Complexity int // cyclomatic complexity; 0 for imports
}

// Lines returns the span of the declaration in lines
func (d *Declaration) Lines() int {
	if d.EndLine < d.Line {
		return 1
	}
	return d.EndLine - d.Line + 1
}

// wantKind reports whether a declaration kind satisfies a search type
func wantKind(searchType types.SearchType, kind DeclKind) bool {
	switch searchType {
	case types.SearchFunctions:
		return kind == DeclFunction
	case types.SearchClasses:
		return kind == DeclClass
	case types.SearchImports:
		return kind == DeclImport
	default:
		return true
	}
}
