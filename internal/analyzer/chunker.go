package analyzer

import (
	"fmt"
	"strings"
)

// ChunkKind classifies what a chunk was cut from.
type ChunkKind string

const (
	ChunkFunction ChunkKind = "function"
	ChunkMethod   ChunkKind = "method"
	ChunkClass    ChunkKind = "class"
	ChunkFile     ChunkKind = "file"
)

// Chunk is a unit of code prepared for embedding. The ID is stable
// across runs: "path::Name" for functions, "path::Class.Method" for
// methods, "path::whole" for whole-file chunks.
type Chunk struct {
	ID        string    `json:"id"`
	Kind      ChunkKind `json:"kind"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Language  Language  `json:"language"`
	StartLine int       `json:"start_line"`
	EndLine   int       `json:"end_line"`
	Content   string    `json:"content"`
}

const maxWholeFileChunkBytes = 8192

// ChunkAnalysis cuts a file analysis into embeddable chunks. Files with no
// extractable structure fall back to a single whole-file chunk built
// from raw content.
func ChunkAnalysis(analysis *FileAnalysis, raw []byte) []Chunk {
	var chunks []Chunk

	for _, fn := range analysis.Functions {
		chunks = append(chunks, Chunk{
			ID:        analysis.Path + "::" + fn.Name,
			Kind:      ChunkFunction,
			Name:      fn.Name,
			Path:      analysis.Path,
			Language:  analysis.Language,
			StartLine: fn.StartLine,
			EndLine:   fn.EndLine,
			Content:   formatChunk(analysis.Path, ChunkFunction, fn.Name, fn.Signature, fn.Docstring, fn.Code),
		})
	}

	for _, cls := range analysis.Classes {
		clsSig := "class " + cls.Name
		if len(cls.Bases) > 0 {
			clsSig += "(" + strings.Join(cls.Bases, ", ") + ")"
		}
		chunks = append(chunks, Chunk{
			ID:        analysis.Path + "::" + cls.Name,
			Kind:      ChunkClass,
			Name:      cls.Name,
			Path:      analysis.Path,
			Language:  analysis.Language,
			StartLine: cls.StartLine,
			EndLine:   cls.EndLine,
			Content:   formatChunk(analysis.Path, ChunkClass, cls.Name, clsSig, cls.Docstring, ""),
		})
		for _, m := range cls.Methods {
			qualified := cls.Name + "." + m.Name
			chunks = append(chunks, Chunk{
				ID:        analysis.Path + "::" + qualified,
				Kind:      ChunkMethod,
				Name:      qualified,
				Path:      analysis.Path,
				Language:  analysis.Language,
				StartLine: m.StartLine,
				EndLine:   m.EndLine,
				Content:   formatChunk(analysis.Path, ChunkMethod, qualified, m.Signature, m.Docstring, m.Code),
			})
		}
	}

	if len(chunks) == 0 && len(raw) > 0 {
		content := string(raw)
		if len(content) > maxWholeFileChunkBytes {
			content = content[:maxWholeFileChunkBytes]
		}
		chunks = append(chunks, Chunk{
			ID:       analysis.Path + "::whole",
			Kind:     ChunkFile,
			Name:     analysis.Path,
			Path:     analysis.Path,
			Language: analysis.Language,
			Content:  formatChunk(analysis.Path, ChunkFile, analysis.Path, "", "", content),
		})
	}

	return chunks
}

// formatChunk renders the embedding text. Labeled sections help the
// embedding model separate identity from implementation.
func formatChunk(path string, kind ChunkKind, name, signature, docstring, code string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "File: %s\n", path)
	fmt.Fprintf(&b, "Type: %s\n", kind)
	fmt.Fprintf(&b, "Name: %s\n", name)
	if signature != "" {
		fmt.Fprintf(&b, "Signature: %s\n", signature)
	}
	if docstring != "" {
		fmt.Fprintf(&b, "Docstring: %s\n", docstring)
	}
	if code != "" {
		fmt.Fprintf(&b, "Code:\n%s", code)
	}
	return b.String()
}
