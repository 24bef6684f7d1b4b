// Package analyzer parses source files with tree-sitter and extracts
// the structural facts the rest of devmind builds on: functions,
// classes, imports, and call sites.
package analyzer

import "time"

// Language identifies a supported source language.
type Language string

const (
	LangGo     Language = "go"
	LangPython Language = "python"
)

// FileAnalysis is the structural summary of one source file.
type FileAnalysis struct {
	Path       string         `json:"path"` // relative to the repository root
	Language   Language       `json:"language"`
	Hash       string         `json:"hash"` // SHA-256 of file content, hex
	Functions  []FunctionInfo `json:"functions"`
	Classes    []ClassInfo    `json:"classes"`
	Imports    []ImportInfo   `json:"imports"`
	AnalyzedAt time.Time      `json:"analyzed_at"`
}

// FunctionInfo describes a top-level function or a method.
type FunctionInfo struct {
	Name      string     `json:"name"`
	Signature string     `json:"signature"`
	Docstring string     `json:"docstring,omitempty"`
	Code      string     `json:"code"`
	StartLine int        `json:"start_line"` // 1-based
	EndLine   int        `json:"end_line"`
	Calls     []CallSite `json:"calls,omitempty"`
}

// ClassInfo describes a class (Python) or a type with methods (Go).
type ClassInfo struct {
	Name      string         `json:"name"`
	Bases     []string       `json:"bases,omitempty"`
	Docstring string         `json:"docstring,omitempty"`
	StartLine int            `json:"start_line"`
	EndLine   int            `json:"end_line"`
	Methods   []FunctionInfo `json:"methods,omitempty"`
}

// ImportInfo describes a single import.
type ImportInfo struct {
	Module string   `json:"module"`
	Alias  string   `json:"alias,omitempty"`
	Names  []string `json:"names,omitempty"` // from-imports in Python
	Line   int      `json:"line"`
}

// CallSite records a call made from inside a function body. Callee is
// the source-level name, possibly dotted (receiver.Method, pkg.Func).
type CallSite struct {
	Callee string `json:"callee"`
	Line   int    `json:"line"`
}

// RepositoryAnalysis aggregates per-file analyses for one walk.
type RepositoryAnalysis struct {
	Root       string         `json:"root"`
	Files      []FileAnalysis `json:"files"`
	Skipped    int            `json:"skipped"`
	CacheHits  int            `json:"cache_hits"`
	AnalyzedAt time.Time      `json:"analyzed_at"`
}

// FunctionCount returns the total number of functions and methods.
func (r *RepositoryAnalysis) FunctionCount() int {
	n := 0
	for _, f := range r.Files {
		n += len(f.Functions)
		for _, c := range f.Classes {
			n += len(c.Methods)
		}
	}
	return n
}
