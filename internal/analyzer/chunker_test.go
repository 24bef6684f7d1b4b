package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkAnalysis(t *testing.T) {
	analysis := &FileAnalysis{
		Path:     "app/service.py",
		Language: LangPython,
		Functions: []FunctionInfo{
			{Name: "run", Signature: "def run()", Code: "def run():\n    pass", StartLine: 10, EndLine: 11},
		},
		Classes: []ClassInfo{
			{
				Name:      "Worker",
				Bases:     []string{"Base"},
				Docstring: "Does work.",
				StartLine: 1,
				EndLine:   8,
				Methods: []FunctionInfo{
					{Name: "start", Signature: "def start(self)", Code: "def start(self):\n    pass", StartLine: 4, EndLine: 5},
				},
			},
		},
	}

	chunks := ChunkAnalysis(analysis, nil)
	require.Len(t, chunks, 3)

	byID := map[string]Chunk{}
	for _, c := range chunks {
		byID[c.ID] = c
	}

	fn, ok := byID["app/service.py::run"]
	require.True(t, ok)
	assert.Equal(t, ChunkFunction, fn.Kind)
	assert.Contains(t, fn.Content, "File: app/service.py")
	assert.Contains(t, fn.Content, "Signature: def run()")

	cls, ok := byID["app/service.py::Worker"]
	require.True(t, ok)
	assert.Equal(t, ChunkClass, cls.Kind)
	assert.Contains(t, cls.Content, "Docstring: Does work.")
	assert.Contains(t, cls.Content, "class Worker(Base)")

	m, ok := byID["app/service.py::Worker.start"]
	require.True(t, ok)
	assert.Equal(t, ChunkMethod, m.Kind)
	assert.Equal(t, "Worker.start", m.Name)
}

func TestChunkAnalysisWholeFileFallback(t *testing.T) {
	analysis := &FileAnalysis{Path: "conf/settings.py", Language: LangPython}
	raw := []byte("DEBUG = True\n")

	chunks := ChunkAnalysis(analysis, raw)
	require.Len(t, chunks, 1)
	assert.Equal(t, "conf/settings.py::whole", chunks[0].ID)
	assert.Equal(t, ChunkFile, chunks[0].Kind)
	assert.Contains(t, chunks[0].Content, "DEBUG = True")
}

func TestChunkAnalysisEmpty(t *testing.T) {
	analysis := &FileAnalysis{Path: "empty.py", Language: LangPython}
	assert.Empty(t, ChunkAnalysis(analysis, nil))
}
