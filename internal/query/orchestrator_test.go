package query

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yaverlabs/devmind/internal/analyzer"
	"github.com/yaverlabs/devmind/internal/config"
	"github.com/yaverlabs/devmind/internal/graph"
	"github.com/yaverlabs/devmind/internal/history"
	"github.com/yaverlabs/devmind/internal/vectorstore"
)

const project = "myproject"

// fakeVector serves canned search results.
type fakeVector struct {
	results []vectorstore.SearchResult
	err     error
}

func (f *fakeVector) IndexChunks(context.Context, string, []analyzer.Chunk) ([]string, error) {
	return nil, nil
}

func (f *fakeVector) Search(context.Context, string, string, int, map[string]string) ([]vectorstore.SearchResult, error) {
	return f.results, f.err
}

func (f *fakeVector) DeleteChunks(context.Context, string, []string) error { return nil }
func (f *fakeVector) DropProject(context.Context, string) error            { return nil }
func (f *fakeVector) ListProjects(context.Context) ([]string, error)       { return nil, nil }
func (f *fakeVector) Info(context.Context, string) (*vectorstore.CollectionInfo, error) {
	return nil, nil
}
func (f *fakeVector) Healthy(context.Context) error { return nil }
func (f *fakeVector) Close() error                  { return nil }

func testGraph(t *testing.T) graph.Store {
	t.Helper()
	store := graph.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.UpsertFileAnalysis(ctx, project, &analyzer.FileAnalysis{
		Path:     "core/service.py",
		Language: analyzer.LangPython,
		Functions: []analyzer.FunctionInfo{
			{Name: "process", StartLine: 1, EndLine: 4, Calls: []analyzer.CallSite{
				{Callee: "save", Line: 2},
			}},
			{Name: "save", StartLine: 6, EndLine: 9},
		},
	}))
	_, err := store.LinkCalls(ctx, project)
	require.NoError(t, err)
	return store
}

func testHistory(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.Open(config.HistoryConfig{
		DatabasePath: filepath.Join(t.TempDir(), "history.db"),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestClassify(t *testing.T) {
	tests := []struct {
		query string
		want  Type
	}{
		{"where is the authentication code", TypeSemantic},
		{"what calls this function?", TypeStructural},
		{"did we see this bug before", TypeTemporal},
		{"code quality report", TypeAnalytical},
		{"find what calls process_payment", TypeCombined},
		{"payment gateway timeout", TypeSemantic},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.query))
		})
	}
}

func TestExecuteSemantic(t *testing.T) {
	vector := &fakeVector{results: []vectorstore.SearchResult{
		{ID: "billing/charge.go::ProcessPayment", Name: "ProcessPayment", Kind: "function", Path: "billing/charge.go", Score: 0.91, Content: "func ProcessPayment..."},
		{ID: "billing/refund.go::Refund", Name: "Refund", Kind: "function", Path: "billing/refund.go", Score: 0.72, Content: "func Refund..."},
	}}
	o := NewOrchestrator(vector, nil, nil, nil)

	fused, err := o.Execute(context.Background(), project, "where is payment processing", 5)
	require.NoError(t, err)

	assert.Equal(t, TypeSemantic, fused.Type)
	require.Len(t, fused.Sources, 1)
	assert.Equal(t, "vector", fused.Sources[0].Source)
	require.Len(t, fused.Results, 2)
	assert.Equal(t, "ProcessPayment", fused.Results[0].Name)
	assert.InDelta(t, 0.91, fused.Confidence, 0.001)
	assert.Contains(t, fused.Recommendations[0], "structural")
	assert.Greater(t, fused.ExecutionTime, time.Duration(0))
}

func TestExecuteStructural(t *testing.T) {
	o := NewOrchestrator(nil, testGraph(t), nil, nil)

	fused, err := o.Execute(context.Background(), project, "what calls save?", 5)
	require.NoError(t, err)

	assert.Equal(t, TypeStructural, fused.Type)
	require.Len(t, fused.Sources, 1)
	assert.Equal(t, "graph", fused.Sources[0].Source)
	assert.InDelta(t, 0.85, fused.Confidence, 0.001)

	var callerSeen bool
	for _, item := range fused.Results {
		if item.ID == "core/service.py::process" {
			callerSeen = true
			assert.Equal(t, "calls save", item.Relation)
		}
	}
	assert.True(t, callerSeen)
}

func TestExecuteTemporal(t *testing.T) {
	hist := testHistory(t)
	require.NoError(t, hist.Record(context.Background(), history.Analysis{
		Project:       project,
		RepoPath:      "/repos/myproject",
		CommitHash:    "abc123",
		FilesAnalyzed: 12,
	}))
	o := NewOrchestrator(nil, nil, hist, nil)

	fused, err := o.Execute(context.Background(), project, "did we analyze this before", 5)
	require.NoError(t, err)

	assert.Equal(t, TypeTemporal, fused.Type)
	require.Len(t, fused.Sources, 1)
	assert.Equal(t, "history", fused.Sources[0].Source)
	require.Len(t, fused.Results, 1)
	assert.Equal(t, "abc123", fused.Results[0].Name)
}

func TestExecuteCombined(t *testing.T) {
	vector := &fakeVector{results: []vectorstore.SearchResult{
		{ID: "core/service.py::save", Name: "save", Kind: "function", Path: "core/service.py", Score: 0.8},
	}}
	o := NewOrchestrator(vector, testGraph(t), testHistory(t), nil)

	fused, err := o.Execute(context.Background(), project, "find what calls save", 5)
	require.NoError(t, err)

	assert.Equal(t, TypeCombined, fused.Type)
	// vector and graph respond; empty history contributes nothing
	require.Len(t, fused.Sources, 2)
	assert.NotEmpty(t, fused.Results)
}

func TestExecuteNoResults(t *testing.T) {
	o := NewOrchestrator(&fakeVector{}, nil, nil, nil)

	fused, err := o.Execute(context.Background(), project, "where is the frobnicator", 5)
	require.NoError(t, err)

	assert.Empty(t, fused.Results)
	require.NotEmpty(t, fused.Recommendations)
	assert.Contains(t, fused.Recommendations[0], "No results found")
}
