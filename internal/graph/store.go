package graph

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/yaverlabs/devmind/internal/analyzer"
)

// ErrNodeNotFound indicates a lookup for an ID with no graph node.
var ErrNodeNotFound = errors.New("graph node not found")

// Store is the code graph backend.
//
// UpsertFileAnalysis records nodes and defers call resolution; callers
// run LinkCalls once after a batch of upserts so calls can resolve
// across files.
type Store interface {
	// UpsertFileAnalysis replaces the nodes and edges derived from one
	// file, keeping the rest of the project graph intact.
	UpsertFileAnalysis(ctx context.Context, project string, analysis *analyzer.FileAnalysis) error

	// LinkCalls resolves recorded call sites to function nodes. Calls
	// to functions never seen get ghost nodes. Returns the number of
	// ghost nodes in the project after linking.
	LinkCalls(ctx context.Context, project string) (int, error)

	// TagLayers assigns API, DATA, or CORE layers to file nodes based
	// on their path.
	TagLayers(ctx context.Context, project string) error

	// DirectCallers returns functions that call the given function.
	DirectCallers(ctx context.Context, project, functionID string) ([]Caller, error)

	// TransitiveCallers walks the call graph upward to maxDepth,
	// deduplicating nodes at their shallowest depth.
	TransitiveCallers(ctx context.Context, project, functionID string, maxDepth int) ([]Caller, error)

	// Callees returns functions the given function calls directly.
	Callees(ctx context.Context, project, functionID string) ([]Node, error)

	// CallGraph expands the call graph downstream from a root function
	// up to maxDepth edges, returning the reached nodes and edges.
	CallGraph(ctx context.Context, project, functionID string, maxDepth int) (*Trace, error)

	// CircularDependencies finds call cycles up to maxLen edges.
	CircularDependencies(ctx context.Context, project string, maxLen int) ([]Cycle, error)

	// CoupledFiles reports file pairs with at least minCalls calls
	// between them, strongest first.
	CoupledFiles(ctx context.Context, project string, minCalls int) ([]CoupledPair, error)

	// FindFunction resolves a function node by exact ID, or by simple
	// name when the ID form has no "::".
	FindFunction(ctx context.Context, project, idOrName string) (*Node, error)

	// FunctionsInFile lists function nodes defined in the given file.
	FunctionsInFile(ctx context.Context, project, filePath string) ([]Node, error)

	// Stats summarizes the project graph.
	Stats(ctx context.Context, project string) (*Stats, error)

	// DropProject deletes all nodes and edges for a project.
	DropProject(ctx context.Context, project string) error

	// Close releases backend resources.
	Close(ctx context.Context) error
}

// layerFor tags a file path by its directory names. Matches the first
// segment that looks like an API or data layer; everything else is CORE.
func layerFor(filePath string) Layer {
	apiDirs := map[string]bool{
		"api": true, "handlers": true, "routes": true, "views": true,
		"server": true, "http": true, "rpc": true, "controllers": true,
	}
	dataDirs := map[string]bool{
		"db": true, "models": true, "storage": true, "repository": true,
		"dao": true, "store": true, "migrations": true, "schema": true,
	}

	dir := path.Dir(strings.ReplaceAll(filePath, "\\", "/"))
	for _, seg := range strings.Split(dir, "/") {
		seg = strings.ToLower(seg)
		if apiDirs[seg] {
			return LayerAPI
		}
		if dataDirs[seg] {
			return LayerData
		}
	}
	return LayerCore
}
