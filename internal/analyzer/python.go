package analyzer

import (
	"strings"

	sitter "github.com/alexaandru/go-tree-sitter-bare"
)

func extractPython(root sitter.Node, content []byte, analysis *FileAnalysis) {
	for i := range root.NamedChildCount() {
		child := root.NamedChild(i)
		pythonTopLevel(child, content, analysis)
	}
}

func pythonTopLevel(n sitter.Node, content []byte, analysis *FileAnalysis) {
	switch n.Type() {
	case "decorated_definition":
		if def := n.ChildByFieldName("definition"); !def.IsNull() {
			pythonTopLevel(def, content, analysis)
		}
	case "function_definition":
		analysis.Functions = append(analysis.Functions, pythonFunction(n, content))
	case "class_definition":
		analysis.Classes = append(analysis.Classes, pythonClass(n, content))
	case "import_statement":
		analysis.Imports = append(analysis.Imports, pythonImports(n, content)...)
	case "import_from_statement":
		analysis.Imports = append(analysis.Imports, pythonFromImport(n, content))
	}
}

func pythonFunction(def sitter.Node, content []byte) FunctionInfo {
	body := def.ChildByFieldName("body")
	fn := FunctionInfo{
		Signature: signatureOf(def, body, content),
		Code:      def.Content(content),
		StartLine: lineOf(def),
		EndLine:   endLineOf(def),
	}
	if name := def.ChildByFieldName("name"); !name.IsNull() {
		fn.Name = name.Content(content)
	}
	if !body.IsNull() {
		fn.Docstring = pythonDocstring(body, content)
		collectCalls(body, content, "call", "function", &fn.Calls)
	}
	return fn
}

func pythonClass(def sitter.Node, content []byte) ClassInfo {
	cls := ClassInfo{
		StartLine: lineOf(def),
		EndLine:   endLineOf(def),
	}
	if name := def.ChildByFieldName("name"); !name.IsNull() {
		cls.Name = name.Content(content)
	}
	if supers := def.ChildByFieldName("superclasses"); !supers.IsNull() {
		for i := range supers.NamedChildCount() {
			cls.Bases = append(cls.Bases, supers.NamedChild(i).Content(content))
		}
	}

	body := def.ChildByFieldName("body")
	if body.IsNull() {
		return cls
	}
	cls.Docstring = pythonDocstring(body, content)

	for i := range body.NamedChildCount() {
		stmt := body.NamedChild(i)
		if stmt.Type() == "decorated_definition" {
			if inner := stmt.ChildByFieldName("definition"); !inner.IsNull() {
				stmt = inner
			}
		}
		if stmt.Type() == "function_definition" {
			cls.Methods = append(cls.Methods, pythonFunction(stmt, content))
		}
	}
	return cls
}

// pythonDocstring returns the docstring when the first statement of a
// body is a bare string literal.
func pythonDocstring(body sitter.Node, content []byte) string {
	if body.NamedChildCount() == 0 {
		return ""
	}
	first := body.NamedChild(0)
	if first.Type() != "expression_statement" || first.NamedChildCount() == 0 {
		return ""
	}
	str := first.NamedChild(0)
	if str.Type() != "string" {
		return ""
	}
	return trimPythonString(str.Content(content))
}

func trimPythonString(s string) string {
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(s, q) && strings.HasSuffix(s, q) && len(s) >= 2*len(q) {
			return strings.TrimSpace(s[len(q) : len(s)-len(q)])
		}
	}
	return strings.TrimSpace(s)
}

func pythonImports(stmt sitter.Node, content []byte) []ImportInfo {
	var imports []ImportInfo
	for i := range stmt.NamedChildCount() {
		child := stmt.NamedChild(i)
		imp := ImportInfo{Line: lineOf(stmt)}
		switch child.Type() {
		case "dotted_name":
			imp.Module = child.Content(content)
		case "aliased_import":
			if name := child.ChildByFieldName("name"); !name.IsNull() {
				imp.Module = name.Content(content)
			}
			if alias := child.ChildByFieldName("alias"); !alias.IsNull() {
				imp.Alias = alias.Content(content)
			}
		default:
			continue
		}
		imports = append(imports, imp)
	}
	return imports
}

func pythonFromImport(stmt sitter.Node, content []byte) ImportInfo {
	imp := ImportInfo{Line: lineOf(stmt)}
	if mod := stmt.ChildByFieldName("module_name"); !mod.IsNull() {
		imp.Module = mod.Content(content)
	}
	for i := range stmt.NamedChildCount() {
		child := stmt.NamedChild(i)
		switch child.Type() {
		case "dotted_name":
			name := child.Content(content)
			if name != imp.Module {
				imp.Names = append(imp.Names, name)
			}
		case "aliased_import":
			if name := child.ChildByFieldName("name"); !name.IsNull() {
				imp.Names = append(imp.Names, name.Content(content))
			}
		case "wildcard_import":
			imp.Names = append(imp.Names, "*")
		}
	}
	return imp
}
