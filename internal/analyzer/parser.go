package analyzer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	golang "github.com/alexaandru/go-sitter-forest/go"
	"github.com/alexaandru/go-sitter-forest/python"
	sitter "github.com/alexaandru/go-tree-sitter-bare"
)

// Parser turns source files into FileAnalysis values. It is safe for
// concurrent use; each parse gets its own tree-sitter parser since
// those are not thread safe.
type Parser struct {
	languages map[Language]*sitter.Language
}

// NewParser builds a parser with the Go and Python grammars loaded.
func NewParser() *Parser {
	return &Parser{
		languages: map[Language]*sitter.Language{
			LangGo:     sitter.NewLanguage(golang.GetLanguage()),
			LangPython: sitter.NewLanguage(python.GetLanguage()),
		},
	}
}

// DetectLanguage maps a file path to a supported language by extension.
func DetectLanguage(path string) (Language, bool) {
	switch filepath.Ext(path) {
	case ".go":
		return LangGo, true
	case ".py":
		return LangPython, true
	}
	return "", false
}

// ParseFile parses content and extracts functions, classes, imports,
// and call sites. relPath is recorded verbatim in the result.
func (p *Parser) ParseFile(ctx context.Context, relPath string, content []byte) (*FileAnalysis, error) {
	lang, ok := DetectLanguage(relPath)
	if !ok {
		return nil, fmt.Errorf("unsupported file type: %s", relPath)
	}

	tsParser := sitter.NewParser()
	tsParser.SetLanguage(p.languages[lang])

	tree, err := tsParser.ParseString(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", relPath, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.IsNull() {
		return nil, fmt.Errorf("parsing %s: no root node", relPath)
	}

	analysis := &FileAnalysis{
		Path:       relPath,
		Language:   lang,
		Hash:       HashContent(content),
		AnalyzedAt: time.Now().UTC(),
	}

	switch lang {
	case LangGo:
		extractGo(root, content, analysis)
	case LangPython:
		extractPython(root, content, analysis)
	}

	return analysis, nil
}

// HashContent returns the hex SHA-256 of content.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func lineOf(n sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}

func endLineOf(n sitter.Node) int {
	return int(n.EndPoint().Row) + 1
}

// collectCalls walks n recursively and records every call expression.
// callType and fnField differ between grammars.
func collectCalls(n sitter.Node, content []byte, callType, fnField string, calls *[]CallSite) {
	if n.Type() == callType {
		fn := n.ChildByFieldName(fnField)
		if !fn.IsNull() {
			*calls = append(*calls, CallSite{
				Callee: fn.Content(content),
				Line:   lineOf(n),
			})
		}
	}
	for i := range n.NamedChildCount() {
		collectCalls(n.NamedChild(i), content, callType, fnField, calls)
	}
}

// signatureOf returns source text from the start of decl up to its
// body, collapsed to a single line.
func signatureOf(decl, body sitter.Node, content []byte) string {
	start := decl.StartByte()
	end := decl.EndByte()
	if !body.IsNull() {
		end = body.StartByte()
	}
	sig := strings.TrimSpace(string(content[start:end]))
	sig = strings.TrimSuffix(sig, ":")
	return strings.Join(strings.Fields(sig), " ")
}
