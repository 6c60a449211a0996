package loader

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
)

// Export names a unit recognizes.
const (
	ToolsVar     = "Tools"
	ToolSpecsVar = "ToolSpecs"
	RegisterName = "Register"
)

// declInfo is what the source says about one top-level function.
type declInfo struct {
	ident      string
	doc        string
	paramNames []string
	directive  string // raw directive line, empty if none
}

// scan is the static view of a unit.
type scan struct {
	pkg         string
	funcs       map[string]declInfo
	order       []string // exported function idents in declaration order
	toolsVar    bool
	toolsHints  []string // per-element identifiers, "" for non-identifiers
	specsVar    bool
	specsHints  []string // per-element Func identifiers
	hasRegister bool
}

func scanSource(filename string, src []byte) (*scan, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filename, src, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if file.Name.Name == "main" {
		return nil, fmt.Errorf("package main cannot be a tool unit")
	}

	s := &scan{
		pkg:   file.Name.Name,
		funcs: make(map[string]declInfo),
	}
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if d.Recv != nil || !d.Name.IsExported() {
				continue
			}
			info := declInfo{
				ident:      d.Name.Name,
				paramNames: fieldNames(d.Type.Params),
			}
			if d.Doc != nil {
				info.doc = strings.TrimSpace(d.Doc.Text())
				for _, c := range d.Doc.List {
					if c.Text == Directive || strings.HasPrefix(c.Text, Directive+" ") {
						info.directive = c.Text
					}
				}
			}
			s.funcs[info.ident] = info
			s.order = append(s.order, info.ident)
			if info.ident == RegisterName {
				s.hasRegister = true
			}
		case *ast.GenDecl:
			if d.Tok != token.VAR {
				continue
			}
			for _, spec := range d.Specs {
				vs, ok := spec.(*ast.ValueSpec)
				if !ok {
					continue
				}
				for i, name := range vs.Names {
					var value ast.Expr
					if i < len(vs.Values) {
						value = vs.Values[i]
					}
					switch name.Name {
					case ToolsVar:
						s.toolsVar = true
						s.toolsHints = listHints(value, elementIdent)
					case ToolSpecsVar:
						s.specsVar = true
						s.specsHints = listHints(value, specFuncIdent)
					}
				}
			}
		}
	}
	return s, nil
}

// fieldNames flattens a parameter list into one name per parameter.
func fieldNames(fl *ast.FieldList) []string {
	if fl == nil {
		return nil
	}
	var names []string
	for _, f := range fl.List {
		if len(f.Names) == 0 {
			names = append(names, "")
			continue
		}
		for _, n := range f.Names {
			names = append(names, n.Name)
		}
	}
	return names
}

func listHints(value ast.Expr, hint func(ast.Expr) string) []string {
	lit, ok := value.(*ast.CompositeLit)
	if !ok {
		return nil
	}
	hints := make([]string, len(lit.Elts))
	for i, elt := range lit.Elts {
		hints[i] = hint(elt)
	}
	return hints
}

func elementIdent(e ast.Expr) string {
	switch x := e.(type) {
	case *ast.Ident:
		return x.Name
	case *ast.SelectorExpr:
		return x.Sel.Name
	}
	return ""
}

func specFuncIdent(e ast.Expr) string {
	lit, ok := e.(*ast.CompositeLit)
	if !ok {
		return ""
	}
	for _, elt := range lit.Elts {
		kv, ok := elt.(*ast.KeyValueExpr)
		if !ok {
			continue
		}
		if key, ok := kv.Key.(*ast.Ident); ok && key.Name == "Func" {
			return elementIdent(kv.Value)
		}
	}
	return ""
}

// hint returns the source view of a function identifier.
func (s *scan) hint(ident string) Func {
	if ident == "" {
		return Func{}
	}
	info, ok := s.funcs[ident]
	if !ok {
		return Func{Ident: ident}
	}
	return Func{Ident: ident, Doc: info.doc, ParamNames: info.paramNames}
}
