package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yaverlabs/devmind/internal/analyzer"
	"github.com/yaverlabs/devmind/internal/config"
	"github.com/yaverlabs/devmind/internal/graph"
	"github.com/yaverlabs/devmind/internal/impact"
	"github.com/yaverlabs/devmind/internal/logging"
	"github.com/yaverlabs/devmind/internal/query"
	"github.com/yaverlabs/devmind/internal/services"
)

const testProject = "myproject"

func fixtureGraph(t *testing.T) graph.Store {
	t.Helper()
	store := graph.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.UpsertFileAnalysis(ctx, testProject, &analyzer.FileAnalysis{
		Path:     "core/service.py",
		Language: analyzer.LangPython,
		Functions: []analyzer.FunctionInfo{
			{Name: "run", StartLine: 1, EndLine: 4, Calls: []analyzer.CallSite{
				{Callee: "save", Line: 2},
			}},
			{Name: "save", StartLine: 6, EndLine: 9, Calls: []analyzer.CallSite{
				{Callee: "run", Line: 7},
			}},
		},
	}))
	_, err := store.LinkCalls(ctx, testProject)
	require.NoError(t, err)
	return store
}

func newTestServer(t *testing.T, opts services.Options) *Server {
	t.Helper()
	s, err := New(services.NewRegistry(opts), logging.NewNop(), config.ServerConfig{Port: 0})
	require.NoError(t, err)
	return s
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, services.Options{Graph: fixtureGraph(t)})

	rec := doJSON(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ok", resp.Components["graph"])
}

func TestAnalyzeEndpoint(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "core"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "core", "service.py"),
		[]byte("def run(task):\n    return task\n"), 0o644))

	svc, err := analyzer.NewService(config.AnalyzerConfig{MaxFileSizeKB: 1024}, logging.NewNop())
	require.NoError(t, err)
	store := graph.NewMemoryStore()
	pipeline, err := services.NewPipeline(svc, store, nil, nil, nil, nil)
	require.NoError(t, err)

	s := newTestServer(t, services.Options{Graph: store, Pipeline: pipeline})

	rec := doJSON(t, s, http.MethodPost, "/api/v1/analyze",
		`{"project":"myproject","path":"`+root+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report services.AnalyzeReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 1, report.FilesAnalyzed)
	assert.Equal(t, 1, report.Functions)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/analyze", `{"project":"myproject"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryEndpoint(t *testing.T) {
	store := fixtureGraph(t)
	s := newTestServer(t, services.Options{
		Graph: store,
		Query: query.NewOrchestrator(nil, store, nil, nil),
	})

	rec := doJSON(t, s, http.MethodPost, "/api/v1/query",
		`{"project":"myproject","query":"what calls save"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var fused query.Fused
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fused))
	assert.Equal(t, query.TypeStructural, fused.Type)
	assert.NotEmpty(t, fused.Results)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/query", `{"query":"anything"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImpactEndpoint(t *testing.T) {
	store := fixtureGraph(t)
	s := newTestServer(t, services.Options{
		Graph:  store,
		Impact: impact.NewAnalyzer(store, nil),
	})

	rec := doJSON(t, s, http.MethodPost, "/api/v1/impact",
		`{"project":"myproject","function":"save","change_type":"logic"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result impact.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Found)
	assert.Greater(t, result.RiskScore, 0.0)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/impact",
		`{"project":"myproject","function":"save","change_type":"sweeping"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCallersEndpoint(t *testing.T) {
	s := newTestServer(t, services.Options{Graph: fixtureGraph(t)})

	rec := doJSON(t, s, http.MethodGet, "/api/v1/graph/callers?project=myproject&function=save", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp CallersResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "core/service.py::save", resp.Function)
	require.Len(t, resp.Callers, 1)
	assert.Equal(t, "core/service.py::run", resp.Callers[0].Node.ID)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/graph/callers?project=myproject&function=missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/graph/callers?project=myproject", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCyclesEndpoint(t *testing.T) {
	s := newTestServer(t, services.Options{Graph: fixtureGraph(t)})

	rec := doJSON(t, s, http.MethodGet, "/api/v1/graph/cycles?project=myproject", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp CyclesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Cycles, 1)
	assert.Contains(t, resp.Cycles[0].Members, "core/service.py::save")

	rec = doJSON(t, s, http.MethodGet, "/api/v1/graph/cycles", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
