package codeindex

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
)

// extractGo parses Go source with go/ast and walks the tree for function,
// type, and import declarations. Types count as "class" declarations for
// cross-language symmetry.
func extractGo(path string, content []byte) ([]Declaration, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, content, 0)
	if err != nil {
		return nil, fmt.Errorf("syntax error: %w", err)
	}

	decls := make([]Declaration, 0)

	for _, imp := range file.Imports {
		pos := fset.Position(imp.Pos())
		importPath := strings.Trim(imp.Path.Value, `"`)
		decls = append(decls, Declaration{
			Name:      importPath,
			Kind:      DeclImport,
			Line:      pos.Line,
			EndLine:   pos.Line,
			Column:    pos.Column,
			Signature: "import " + imp.Path.Value,
		})
	}

	ast.Inspect(file, func(node ast.Node) bool {
		switch n := node.(type) {
		case *ast.FuncDecl:
			start := fset.Position(n.Pos())
			end := fset.Position(n.End())
			decls = append(decls, Declaration{
				Name:       n.Name.Name,
				Kind:       DeclFunction,
				Line:       start.Line,
				EndLine:    end.Line,
				Column:     start.Column,
				Signature:  goFuncSignature(n),
				Complexity: goComplexity(n.Body),
			})
			return false
		case *ast.TypeSpec:
			start := fset.Position(n.Pos())
			end := fset.Position(n.End())
			decls = append(decls, Declaration{
				Name:       n.Name.Name,
				Kind:       DeclClass,
				Line:       start.Line,
				EndLine:    end.Line,
				Column:     start.Column,
				Signature:  "type " + n.Name.Name,
				Complexity: 1,
			})
			return false
		}
		return true
	})

	return decls, nil
}

// goComplexity computes cyclomatic complexity: 1 plus one per branching
// construct. Default case clauses do not add a branch.
func goComplexity(body *ast.BlockStmt) int {
	complexity := 1
	if body == nil {
		return complexity
	}
	ast.Inspect(body, func(node ast.Node) bool {
		switch n := node.(type) {
		case *ast.IfStmt, *ast.ForStmt, *ast.RangeStmt:
			complexity++
		case *ast.CaseClause:
			if n.List != nil { // nil list is the default clause
				complexity++
			}
		case *ast.CommClause:
			if n.Comm != nil {
				complexity++
			}
		case *ast.BinaryExpr:
			if n.Op == token.LAND || n.Op == token.LOR {
				complexity++
			}
		}
		return true
	})
	return complexity
}

func goFuncSignature(fn *ast.FuncDecl) string {
	var sig strings.Builder
	sig.WriteString("func ")
	if fn.Recv != nil && len(fn.Recv.List) > 0 {
		sig.WriteString("(")
		sig.WriteString(goExprString(fn.Recv.List[0].Type))
		sig.WriteString(") ")
	}
	sig.WriteString(fn.Name.Name)
	sig.WriteString("(")
	if fn.Type.Params != nil {
		parts := make([]string, 0, len(fn.Type.Params.List))
		for _, field := range fn.Type.Params.List {
			parts = append(parts, goExprString(field.Type))
		}
		sig.WriteString(strings.Join(parts, ", "))
	}
	sig.WriteString(")")
	return sig.String()
}

func goExprString(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return "*" + goExprString(t.X)
	case *ast.ArrayType:
		return "[]" + goExprString(t.Elt)
	case *ast.MapType:
		return fmt.Sprintf("map[%s]%s", goExprString(t.Key), goExprString(t.Value))
	case *ast.SelectorExpr:
		return goExprString(t.X) + "." + t.Sel.Name
	case *ast.Ellipsis:
		return "..." + goExprString(t.Elt)
	case *ast.FuncType:
		return "func(...)"
	case *ast.InterfaceType:
		return "interface{}"
	case *ast.ChanType:
		return "chan " + goExprString(t.Value)
	default:
		return "..."
	}
}
