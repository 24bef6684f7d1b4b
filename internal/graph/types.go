// Package graph maintains the code graph: files, classes, and
// functions connected by containment, import, and call edges. Two
// stores implement it, an embedded in-memory graph and a Neo4j
// backend for persistent multi-project setups.
package graph

// NodeKind classifies graph nodes.
type NodeKind string

const (
	KindFile     NodeKind = "File"
	KindClass    NodeKind = "Class"
	KindFunction NodeKind = "Function"
)

// Layer is the architectural layer tag assigned by TagLayers.
type Layer string

const (
	LayerAPI  Layer = "API"
	LayerData Layer = "DATA"
	LayerCore Layer = "CORE"
)

// EdgeKind classifies relationships between nodes.
type EdgeKind string

const (
	EdgeContains      EdgeKind = "CONTAINS"
	EdgeDefinesFunc   EdgeKind = "DEFINES_FUNCTION"
	EdgeDefinesMethod EdgeKind = "DEFINES_METHOD"
	EdgeImports       EdgeKind = "IMPORTS"
	EdgeCalls         EdgeKind = "CALLS"
)

// Node is one vertex in the code graph. Function IDs follow the chunk
// convention: "path::Name" or "path::Class.Method". Ghost nodes stand
// in for called functions whose definition was never seen.
type Node struct {
	ID        string   `json:"id"`
	Kind      NodeKind `json:"kind"`
	Name      string   `json:"name"`
	Path      string   `json:"path,omitempty"`
	Layer     Layer    `json:"layer,omitempty"`
	Ghost     bool     `json:"ghost,omitempty"`
	StartLine int      `json:"start_line,omitempty"`
	EndLine   int      `json:"end_line,omitempty"`
}

// Caller describes one inbound call relationship.
type Caller struct {
	Node  Node `json:"node"`
	Depth int  `json:"depth"` // 1 for direct callers
}

// Cycle is a circular call chain; the first and last IDs match.
type Cycle struct {
	Members []string `json:"members"`
}

// CoupledPair reports two files with a high number of cross-calls.
type CoupledPair struct {
	FileA string `json:"file_a"`
	FileB string `json:"file_b"`
	Calls int    `json:"calls"`
}

// CallEdge is one resolved call inside a traced subgraph.
type CallEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Trace is the bounded downstream call expansion from one root.
type Trace struct {
	Root  string     `json:"root"`
	Depth int        `json:"depth"`
	Nodes []Node     `json:"nodes"`
	Edges []CallEdge `json:"edges"`
}

// Stats summarizes one project's graph.
type Stats struct {
	Files     int `json:"files"`
	Classes   int `json:"classes"`
	Functions int `json:"functions"`
	Ghosts    int `json:"ghosts"`
	Calls     int `json:"calls"`
}
