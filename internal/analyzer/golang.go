package analyzer

import (
	"strings"

	sitter "github.com/alexaandru/go-tree-sitter-bare"
)

// extractGo walks a Go source tree. Struct and interface types become
// classes, with methods attached by receiver type in a second pass.
func extractGo(root sitter.Node, content []byte, analysis *FileAnalysis) {
	classes := map[string]*ClassInfo{}
	var classOrder []string
	var methods []goMethod
	var lastDoc string
	var lastDocEnd int

	for i := range root.NamedChildCount() {
		child := root.NamedChild(i)
		switch child.Type() {
		case "comment":
			// Consecutive comments accumulate into one doc block.
			text := trimGoComment(child.Content(content))
			if lastDocEnd == lineOf(child)-1 && lastDoc != "" {
				lastDoc += "\n" + text
			} else {
				lastDoc = text
			}
			lastDocEnd = endLineOf(child)
			continue

		case "function_declaration":
			fn := goFunction(child, content)
			fn.Docstring = docFor(lastDoc, lastDocEnd, fn.StartLine)
			analysis.Functions = append(analysis.Functions, fn)

		case "method_declaration":
			fn := goFunction(child, content)
			fn.Docstring = docFor(lastDoc, lastDocEnd, fn.StartLine)
			methods = append(methods, goMethod{
				recv: goReceiverType(child, content),
				fn:   fn,
			})

		case "type_declaration":
			doc, docEnd := lastDoc, lastDocEnd
			for j := range child.NamedChildCount() {
				spec := child.NamedChild(j)
				if spec.Type() != "type_spec" {
					continue
				}
				name := spec.ChildByFieldName("name")
				typ := spec.ChildByFieldName("type")
				if name.IsNull() || typ.IsNull() {
					continue
				}
				if typ.Type() != "struct_type" && typ.Type() != "interface_type" {
					continue
				}
				cls := &ClassInfo{
					Name:      name.Content(content),
					Docstring: docFor(doc, docEnd, lineOf(child)),
					StartLine: lineOf(child),
					EndLine:   endLineOf(child),
				}
				classes[cls.Name] = cls
				classOrder = append(classOrder, cls.Name)
			}

		case "import_declaration":
			analysis.Imports = append(analysis.Imports, goImports(child, content)...)
		}

		lastDoc, lastDocEnd = "", 0
	}

	// Attach methods to their receiver types. Methods on types declared
	// elsewhere become classless top-level functions.
	for _, m := range methods {
		if cls, ok := classes[m.recv]; ok {
			cls.Methods = append(cls.Methods, m.fn)
		} else {
			analysis.Functions = append(analysis.Functions, m.fn)
		}
	}
	for _, name := range classOrder {
		analysis.Classes = append(analysis.Classes, *classes[name])
	}
}

type goMethod struct {
	recv string
	fn   FunctionInfo
}

func goFunction(decl sitter.Node, content []byte) FunctionInfo {
	body := decl.ChildByFieldName("body")
	fn := FunctionInfo{
		Signature: signatureOf(decl, body, content),
		Code:      decl.Content(content),
		StartLine: lineOf(decl),
		EndLine:   endLineOf(decl),
	}
	if name := decl.ChildByFieldName("name"); !name.IsNull() {
		fn.Name = name.Content(content)
	}
	if !body.IsNull() {
		collectCalls(body, content, "call_expression", "function", &fn.Calls)
	}
	return fn
}

// goReceiverType extracts the receiver's base type name, stripping
// pointers and type parameters.
func goReceiverType(decl sitter.Node, content []byte) string {
	recv := decl.ChildByFieldName("receiver")
	if recv.IsNull() {
		return ""
	}
	for i := range recv.NamedChildCount() {
		param := recv.NamedChild(i)
		if param.Type() != "parameter_declaration" {
			continue
		}
		typ := param.ChildByFieldName("type")
		if typ.IsNull() {
			continue
		}
		name := strings.TrimPrefix(typ.Content(content), "*")
		if idx := strings.IndexByte(name, '['); idx > 0 {
			name = name[:idx]
		}
		return name
	}
	return ""
}

func goImports(decl sitter.Node, content []byte) []ImportInfo {
	var imports []ImportInfo
	var walk func(n sitter.Node)
	walk = func(n sitter.Node) {
		if n.Type() == "import_spec" {
			imp := ImportInfo{Line: lineOf(n)}
			if path := n.ChildByFieldName("path"); !path.IsNull() {
				imp.Module = strings.Trim(path.Content(content), `"`)
			}
			if name := n.ChildByFieldName("name"); !name.IsNull() {
				imp.Alias = name.Content(content)
			}
			imports = append(imports, imp)
			return
		}
		for i := range n.NamedChildCount() {
			walk(n.NamedChild(i))
		}
	}
	walk(decl)
	return imports
}

func trimGoComment(s string) string {
	s = strings.TrimPrefix(s, "//")
	s = strings.TrimPrefix(s, "/*")
	s = strings.TrimSuffix(s, "*/")
	return strings.TrimSpace(s)
}

// docFor returns doc only when the comment block ends on the line
// directly above the declaration.
func docFor(doc string, docEnd, declLine int) string {
	if doc == "" || docEnd != declLine-1 {
		return ""
	}
	return doc
}
