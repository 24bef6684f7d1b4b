package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yaverlabs/devmind/internal/analyzer"
)

const project = "myproject"

// buildGraph wires up a small two-file project:
//
//	api/handlers.py: handle -> Service.run, render
//	core/service.py: Service.run -> save, validate (undefined)
//	                 save -> Service.run  (cycle with run)
func buildGraph(t *testing.T) Store {
	t.Helper()
	store := NewMemoryStore()
	ctx := context.Background()

	handlers := &analyzer.FileAnalysis{
		Path:     "api/handlers.py",
		Language: analyzer.LangPython,
		Functions: []analyzer.FunctionInfo{
			{Name: "handle", StartLine: 1, EndLine: 5, Calls: []analyzer.CallSite{
				{Callee: "svc.run", Line: 2},
				{Callee: "render", Line: 3},
			}},
			{Name: "render", StartLine: 7, EndLine: 9},
		},
		Imports: []analyzer.ImportInfo{{Module: "core.service", Line: 1}},
	}

	service := &analyzer.FileAnalysis{
		Path:     "core/service.py",
		Language: analyzer.LangPython,
		Classes: []analyzer.ClassInfo{
			{Name: "Service", StartLine: 1, EndLine: 10, Methods: []analyzer.FunctionInfo{
				{Name: "run", StartLine: 2, EndLine: 6, Calls: []analyzer.CallSite{
					{Callee: "save", Line: 3},
					{Callee: "validate", Line: 4},
				}},
			}},
		},
		Functions: []analyzer.FunctionInfo{
			{Name: "save", StartLine: 12, EndLine: 15, Calls: []analyzer.CallSite{
				{Callee: "self.run", Line: 13},
			}},
		},
	}

	require.NoError(t, store.UpsertFileAnalysis(ctx, project, handlers))
	require.NoError(t, store.UpsertFileAnalysis(ctx, project, service))

	ghosts, err := store.LinkCalls(ctx, project)
	require.NoError(t, err)
	assert.Equal(t, 1, ghosts) // validate

	return store
}

func TestDirectCallers(t *testing.T) {
	store := buildGraph(t)
	ctx := context.Background()

	callers, err := store.DirectCallers(ctx, project, "core/service.py::save")
	require.NoError(t, err)
	require.Len(t, callers, 1)
	assert.Equal(t, "core/service.py::Service.run", callers[0].Node.ID)
	assert.Equal(t, 1, callers[0].Depth)
}

func TestTransitiveCallers(t *testing.T) {
	store := buildGraph(t)
	ctx := context.Background()

	callers, err := store.TransitiveCallers(ctx, project, "core/service.py::save", 3)
	require.NoError(t, err)

	byID := map[string]int{}
	for _, c := range callers {
		byID[c.Node.ID] = c.Depth
	}
	assert.Equal(t, 1, byID["core/service.py::Service.run"])
	assert.Equal(t, 2, byID["api/handlers.py::handle"])
}

func TestTransitiveCallersUnknownFunction(t *testing.T) {
	store := buildGraph(t)

	_, err := store.TransitiveCallers(context.Background(), project, "nope::missing", 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestCallees(t *testing.T) {
	store := buildGraph(t)

	callees, err := store.Callees(context.Background(), project, "core/service.py::Service.run")
	require.NoError(t, err)

	ids := make([]string, 0, len(callees))
	for _, n := range callees {
		ids = append(ids, n.ID)
	}
	assert.Contains(t, ids, "core/service.py::save")
	assert.Contains(t, ids, "ghost::validate")
}

func TestCallGraph(t *testing.T) {
	store := buildGraph(t)
	ctx := context.Background()

	trace, err := store.CallGraph(ctx, project, "api/handlers.py::handle", 2)
	require.NoError(t, err)
	assert.Equal(t, "api/handlers.py::handle", trace.Root)
	assert.Len(t, trace.Nodes, 5)
	assert.Contains(t, trace.Edges, CallEdge{From: "api/handlers.py::handle", To: "core/service.py::Service.run"})
	assert.Contains(t, trace.Edges, CallEdge{From: "core/service.py::Service.run", To: "core/service.py::save"})

	shallow, err := store.CallGraph(ctx, project, "api/handlers.py::handle", 1)
	require.NoError(t, err)
	assert.Len(t, shallow.Nodes, 3)
	assert.Len(t, shallow.Edges, 2)

	_, err = store.CallGraph(ctx, project, "nope::missing", 2)
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestGhostNodes(t *testing.T) {
	store := buildGraph(t)

	node, err := store.FindFunction(context.Background(), project, "ghost::validate")
	require.NoError(t, err)
	assert.True(t, node.Ghost)
	assert.Equal(t, "validate", node.Name)
}

func TestCircularDependencies(t *testing.T) {
	store := buildGraph(t)

	cycles, err := store.CircularDependencies(context.Background(), project, 5)
	require.NoError(t, err)
	require.Len(t, cycles, 1)

	members := cycles[0].Members
	require.Len(t, members, 3)
	assert.Equal(t, members[0], members[len(members)-1])
	assert.Contains(t, members, "core/service.py::save")
	assert.Contains(t, members, "core/service.py::Service.run")
}

func TestCoupledFiles(t *testing.T) {
	store := buildGraph(t)

	pairs, err := store.CoupledFiles(context.Background(), project, 1)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, "api/handlers.py", pairs[0].FileA)
	assert.Equal(t, "core/service.py", pairs[0].FileB)
	assert.Equal(t, 1, pairs[0].Calls)
}

func TestTagLayers(t *testing.T) {
	store := buildGraph(t)
	ctx := context.Background()
	require.NoError(t, store.TagLayers(ctx, project))

	assert.Equal(t, LayerAPI, layerFor("api/handlers.py"))
	assert.Equal(t, LayerCore, layerFor("core/service.py"))
	assert.Equal(t, LayerData, layerFor("internal/models/user.go"))
}

func TestFindFunctionBySimpleName(t *testing.T) {
	store := buildGraph(t)
	ctx := context.Background()

	node, err := store.FindFunction(ctx, project, "run")
	require.NoError(t, err)
	assert.Equal(t, "core/service.py::Service.run", node.ID)

	node, err = store.FindFunction(ctx, project, "Service.run")
	require.NoError(t, err)
	assert.Equal(t, "core/service.py::Service.run", node.ID)

	_, err = store.FindFunction(ctx, project, "nonexistent")
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestStats(t *testing.T) {
	store := buildGraph(t)

	stats, err := store.Stats(context.Background(), project)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Files)
	assert.Equal(t, 1, stats.Classes)
	assert.Equal(t, 4, stats.Functions)
	assert.Equal(t, 1, stats.Ghosts)
	assert.Equal(t, 5, stats.Calls)
}

func TestReanalysisReplacesFileSubgraph(t *testing.T) {
	store := buildGraph(t)
	ctx := context.Background()

	// handle no longer calls render.
	updated := &analyzer.FileAnalysis{
		Path:     "api/handlers.py",
		Language: analyzer.LangPython,
		Functions: []analyzer.FunctionInfo{
			{Name: "handle", StartLine: 1, EndLine: 3, Calls: []analyzer.CallSite{
				{Callee: "svc.run", Line: 2},
			}},
		},
	}
	require.NoError(t, store.UpsertFileAnalysis(ctx, project, updated))
	_, err := store.LinkCalls(ctx, project)
	require.NoError(t, err)

	_, err = store.FindFunction(ctx, project, "api/handlers.py::render")
	assert.ErrorIs(t, err, ErrNodeNotFound)

	callers, err := store.DirectCallers(ctx, project, "core/service.py::Service.run")
	require.NoError(t, err)
	ids := make([]string, 0, len(callers))
	for _, c := range callers {
		ids = append(ids, c.Node.ID)
	}
	assert.Contains(t, ids, "api/handlers.py::handle")
}

func TestDropProject(t *testing.T) {
	store := buildGraph(t)
	ctx := context.Background()

	require.NoError(t, store.DropProject(ctx, project))
	stats, err := store.Stats(ctx, project)
	require.NoError(t, err)
	assert.Zero(t, stats.Files)
	assert.Zero(t, stats.Functions)
}

func TestFunctionsInFile(t *testing.T) {
	store := buildGraph(t)
	ctx := context.Background()

	nodes, err := store.FunctionsInFile(ctx, project, "core/service.py")
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "core/service.py::Service.run", nodes[0].ID)
	assert.Equal(t, "core/service.py::save", nodes[1].ID)

	nodes, err = store.FunctionsInFile(ctx, project, "missing.py")
	require.NoError(t, err)
	assert.Empty(t, nodes)
}
