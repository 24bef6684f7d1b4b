package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/yaverlabs/devmind/internal/analyzer"
)

// memoryStore is the embedded Store used when no Neo4j URI is
// configured. Everything lives in process memory; DropProject or a
// restart discards it.
type memoryStore struct {
	mu       sync.RWMutex
	projects map[string]*projectGraph
}

type projectGraph struct {
	nodes map[string]*Node

	// calls holds resolved CALLS edges with multiplicity. Other edge
	// kinds are plain adjacency.
	calls        map[string]map[string]int
	reverseCalls map[string]map[string]int
	edges        map[EdgeKind]map[string]map[string]bool

	// byName indexes function nodes by simple name for call linking.
	byName map[string]map[string]bool

	// owned tracks the node IDs created by each file so re-analysis
	// replaces exactly that file's subgraph.
	owned   map[string][]string
	imports map[string][]string
	pending []pendingCall
}

type pendingCall struct {
	fromID string
	callee string
}

// NewMemoryStore creates an empty in-memory graph store.
func NewMemoryStore() Store {
	return &memoryStore{projects: map[string]*projectGraph{}}
}

func (s *memoryStore) project(name string) *projectGraph {
	g, ok := s.projects[name]
	if !ok {
		g = &projectGraph{
			nodes:        map[string]*Node{},
			calls:        map[string]map[string]int{},
			reverseCalls: map[string]map[string]int{},
			edges:        map[EdgeKind]map[string]map[string]bool{},
			byName:       map[string]map[string]bool{},
			owned:        map[string][]string{},
			imports:      map[string][]string{},
		}
		s.projects[name] = g
	}
	return g
}

// lookup is the read-path variant of project: it never inserts, so it
// is safe under the read lock.
func (s *memoryStore) lookup(name string) *projectGraph {
	return s.projects[name]
}

func (s *memoryStore) UpsertFileAnalysis(ctx context.Context, project string, analysis *analyzer.FileAnalysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g := s.project(project)
	g.removeFile(analysis.Path)

	fileNode := &Node{ID: analysis.Path, Kind: KindFile, Name: analysis.Path, Path: analysis.Path}
	g.addNode(analysis.Path, fileNode)

	for _, fn := range analysis.Functions {
		id := analysis.Path + "::" + fn.Name
		g.addNode(analysis.Path, &Node{
			ID: id, Kind: KindFunction, Name: fn.Name, Path: analysis.Path,
			StartLine: fn.StartLine, EndLine: fn.EndLine,
		})
		g.addEdge(EdgeDefinesFunc, analysis.Path, id)
		for _, call := range fn.Calls {
			g.pending = append(g.pending, pendingCall{fromID: id, callee: call.Callee})
		}
	}

	for _, cls := range analysis.Classes {
		clsID := analysis.Path + "::" + cls.Name
		g.addNode(analysis.Path, &Node{
			ID: clsID, Kind: KindClass, Name: cls.Name, Path: analysis.Path,
			StartLine: cls.StartLine, EndLine: cls.EndLine,
		})
		g.addEdge(EdgeContains, analysis.Path, clsID)
		for _, m := range cls.Methods {
			id := analysis.Path + "::" + cls.Name + "." + m.Name
			g.addNode(analysis.Path, &Node{
				ID: id, Kind: KindFunction, Name: cls.Name + "." + m.Name, Path: analysis.Path,
				StartLine: m.StartLine, EndLine: m.EndLine,
			})
			g.addEdge(EdgeDefinesMethod, clsID, id)
			for _, call := range m.Calls {
				g.pending = append(g.pending, pendingCall{fromID: id, callee: call.Callee})
			}
		}
	}

	for _, imp := range analysis.Imports {
		g.imports[analysis.Path] = append(g.imports[analysis.Path], imp.Module)
	}

	return nil
}

// LinkCalls resolves pending call sites in two passes: exact and
// simple-name matches against known functions first, ghosts for the
// rest. Import edges between project files are resolved here too,
// once all file nodes exist.
func (s *memoryStore) LinkCalls(ctx context.Context, project string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g := s.project(project)

	for _, pc := range g.pending {
		target := g.resolveCallee(pc.fromID, pc.callee)
		if target == "" {
			simple := simpleName(pc.callee)
			target = "ghost::" + simple
			if _, ok := g.nodes[target]; !ok {
				g.nodes[target] = &Node{ID: target, Kind: KindFunction, Name: simple, Ghost: true}
			}
		}
		if target == pc.fromID {
			continue // self-recursion is not an edge worth tracking
		}
		addCount(g.calls, pc.fromID, target)
		addCount(g.reverseCalls, target, pc.fromID)
	}
	g.pending = nil

	for filePath, modules := range g.imports {
		for _, module := range modules {
			if targetFile := g.resolveImport(module); targetFile != "" && targetFile != filePath {
				g.addEdge(EdgeImports, filePath, targetFile)
			}
		}
	}

	ghosts := 0
	for _, n := range g.nodes {
		if n.Ghost {
			ghosts++
		}
	}
	return ghosts, nil
}

func (s *memoryStore) TagLayers(ctx context.Context, project string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range s.project(project).nodes {
		if n.Kind == KindFile {
			n.Layer = layerFor(n.Path)
		}
	}
	return nil
}

func (s *memoryStore) DirectCallers(ctx context.Context, project, functionID string) ([]Caller, error) {
	return s.TransitiveCallers(ctx, project, functionID, 1)
}

func (s *memoryStore) TransitiveCallers(ctx context.Context, project, functionID string, maxDepth int) ([]Caller, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g := s.lookup(project)
	if g == nil {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, functionID)
	}
	if _, ok := g.nodes[functionID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, functionID)
	}

	seen := map[string]int{functionID: 0}
	frontier := []string{functionID}
	var callers []Caller

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			for from := range g.reverseCalls[id] {
				if _, ok := seen[from]; ok {
					continue
				}
				seen[from] = depth
				next = append(next, from)
				if n, ok := g.nodes[from]; ok {
					callers = append(callers, Caller{Node: *n, Depth: depth})
				}
			}
		}
		frontier = next
	}

	sort.Slice(callers, func(i, j int) bool {
		if callers[i].Depth != callers[j].Depth {
			return callers[i].Depth < callers[j].Depth
		}
		return callers[i].Node.ID < callers[j].Node.ID
	})
	return callers, nil
}

func (s *memoryStore) Callees(ctx context.Context, project, functionID string) ([]Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g := s.lookup(project)
	if g == nil {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, functionID)
	}
	if _, ok := g.nodes[functionID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, functionID)
	}

	var out []Node
	for to := range g.calls[functionID] {
		if n, ok := g.nodes[to]; ok {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryStore) CallGraph(ctx context.Context, project, functionID string, maxDepth int) (*Trace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g := s.lookup(project)
	if g == nil {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, functionID)
	}
	root, ok := g.nodes[functionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, functionID)
	}
	if maxDepth < 1 {
		maxDepth = 1
	}

	trace := &Trace{Root: functionID, Depth: maxDepth, Nodes: []Node{*root}}
	seen := map[string]bool{functionID: true}
	frontier := []string{functionID}

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, from := range frontier {
			targets := make([]string, 0, len(g.calls[from]))
			for to := range g.calls[from] {
				targets = append(targets, to)
			}
			sort.Strings(targets)
			for _, to := range targets {
				trace.Edges = append(trace.Edges, CallEdge{From: from, To: to})
				if seen[to] {
					continue
				}
				seen[to] = true
				next = append(next, to)
				if n, ok := g.nodes[to]; ok {
					trace.Nodes = append(trace.Nodes, *n)
				}
			}
		}
		frontier = next
	}
	return trace, nil
}

func (s *memoryStore) CircularDependencies(ctx context.Context, project string, maxLen int) ([]Cycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g := s.lookup(project)
	if g == nil {
		return nil, nil
	}
	seen := map[string]bool{}
	var cycles []Cycle

	starts := make([]string, 0, len(g.calls))
	for id := range g.calls {
		starts = append(starts, id)
	}
	sort.Strings(starts)

	var walk func(start, current string, path []string)
	walk = func(start, current string, path []string) {
		if len(path) > maxLen {
			return
		}
		for next := range g.calls[current] {
			if next == start && len(path) >= 2 {
				cycle := canonicalCycle(path)
				key := strings.Join(cycle, "->")
				if !seen[key] {
					seen[key] = true
					cycles = append(cycles, Cycle{Members: append(cycle, cycle[0])})
				}
				continue
			}
			if containsID(path, next) {
				continue
			}
			walk(start, next, append(path, next))
		}
	}

	for _, start := range starts {
		walk(start, start, []string{start})
	}

	sort.Slice(cycles, func(i, j int) bool {
		return strings.Join(cycles[i].Members, "|") < strings.Join(cycles[j].Members, "|")
	})
	return cycles, nil
}

func (s *memoryStore) CoupledFiles(ctx context.Context, project string, minCalls int) ([]CoupledPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g := s.lookup(project)
	if g == nil {
		return nil, nil
	}
	counts := map[[2]string]int{}

	for from, targets := range g.calls {
		fromFile := fileOf(from)
		for to, n := range targets {
			toFile := fileOf(to)
			if fromFile == "" || toFile == "" || fromFile == toFile {
				continue
			}
			key := [2]string{fromFile, toFile}
			if key[0] > key[1] {
				key[0], key[1] = key[1], key[0]
			}
			counts[key] += n
		}
	}

	var pairs []CoupledPair
	for key, n := range counts {
		if n >= minCalls {
			pairs = append(pairs, CoupledPair{FileA: key[0], FileB: key[1], Calls: n})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Calls != pairs[j].Calls {
			return pairs[i].Calls > pairs[j].Calls
		}
		return pairs[i].FileA < pairs[j].FileA
	})
	return pairs, nil
}

func (s *memoryStore) FindFunction(ctx context.Context, project, idOrName string) (*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g := s.lookup(project)
	if g == nil {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, idOrName)
	}
	if n, ok := g.nodes[idOrName]; ok && n.Kind == KindFunction {
		out := *n
		return &out, nil
	}
	if !strings.Contains(idOrName, "::") {
		ids := make([]string, 0, len(g.byName[idOrName]))
		for id := range g.byName[idOrName] {
			ids = append(ids, id)
		}
		if len(ids) > 0 {
			sort.Strings(ids)
			out := *g.nodes[ids[0]]
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, idOrName)
}

func (s *memoryStore) FunctionsInFile(ctx context.Context, project, filePath string) ([]Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g := s.lookup(project)
	if g == nil {
		return nil, nil
	}

	var out []Node
	for _, id := range g.owned[filePath] {
		if n, ok := g.nodes[id]; ok && n.Kind == KindFunction {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryStore) Stats(ctx context.Context, project string) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g := s.lookup(project)
	stats := &Stats{}
	if g == nil {
		return stats, nil
	}
	for _, n := range g.nodes {
		switch {
		case n.Ghost:
			stats.Ghosts++
		case n.Kind == KindFile:
			stats.Files++
		case n.Kind == KindClass:
			stats.Classes++
		case n.Kind == KindFunction:
			stats.Functions++
		}
	}
	for _, targets := range g.calls {
		for _, n := range targets {
			stats.Calls += n
		}
	}
	return stats, nil
}

func (s *memoryStore) DropProject(ctx context.Context, project string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.projects, project)
	return nil
}

func (s *memoryStore) Close(ctx context.Context) error { return nil }

// graph mutation helpers

func (g *projectGraph) addNode(owner string, n *Node) {
	g.nodes[n.ID] = n
	g.owned[owner] = append(g.owned[owner], n.ID)
	if n.Kind == KindFunction {
		// Methods index under both "Class.method" and "method".
		for _, key := range nameKeys(n.Name) {
			if g.byName[key] == nil {
				g.byName[key] = map[string]bool{}
			}
			g.byName[key][n.ID] = true
		}
	}
}

func nameKeys(name string) []string {
	simple := simpleName(name)
	if simple == name {
		return []string{name}
	}
	return []string{name, simple}
}

func (g *projectGraph) addEdge(kind EdgeKind, from, to string) {
	if g.edges[kind] == nil {
		g.edges[kind] = map[string]map[string]bool{}
	}
	if g.edges[kind][from] == nil {
		g.edges[kind][from] = map[string]bool{}
	}
	g.edges[kind][from][to] = true
}

func (g *projectGraph) removeFile(filePath string) {
	ids := g.owned[filePath]
	if len(ids) == 0 {
		return
	}
	dead := map[string]bool{}
	for _, id := range ids {
		dead[id] = true
	}

	for _, id := range ids {
		if n, ok := g.nodes[id]; ok && n.Kind == KindFunction {
			for _, key := range nameKeys(n.Name) {
				delete(g.byName[key], id)
			}
		}
		delete(g.nodes, id)
		delete(g.calls, id)
		delete(g.reverseCalls, id)
	}
	for from, targets := range g.calls {
		for to := range targets {
			if dead[to] {
				delete(targets, to)
			}
		}
		if len(targets) == 0 {
			delete(g.calls, from)
		}
	}
	for to, sources := range g.reverseCalls {
		for from := range sources {
			if dead[from] {
				delete(sources, from)
			}
		}
		if len(sources) == 0 {
			delete(g.reverseCalls, to)
		}
	}
	for _, adjacency := range g.edges {
		for from, targets := range adjacency {
			if dead[from] {
				delete(adjacency, from)
				continue
			}
			for to := range targets {
				if dead[to] {
					delete(targets, to)
				}
			}
		}
	}

	kept := g.pending[:0]
	for _, pc := range g.pending {
		if !dead[pc.fromID] {
			kept = append(kept, pc)
		}
	}
	g.pending = kept

	delete(g.owned, filePath)
	delete(g.imports, filePath)
}

// resolveCallee maps a source-level callee to a function node ID.
// Same-file definitions win over other files; ambiguity settles on
// the lexicographically first ID for determinism.
func (g *projectGraph) resolveCallee(fromID, callee string) string {
	callerFile := fileOf(fromID)

	// Dotted calls may be Class.method within the project.
	if strings.Contains(callee, ".") {
		if ids := g.byName[callee]; len(ids) > 0 {
			return pickCallTarget(ids, callerFile)
		}
	}

	simple := simpleName(callee)
	if ids := g.byName[simple]; len(ids) > 0 {
		return pickCallTarget(ids, callerFile)
	}
	return ""
}

func pickCallTarget(ids map[string]bool, callerFile string) string {
	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)
	for _, id := range sorted {
		if fileOf(id) == callerFile {
			return id
		}
	}
	return sorted[0]
}

// resolveImport maps an import module to a project file path. Python
// dotted modules and Go package paths both resolve by suffix.
func (g *projectGraph) resolveImport(module string) string {
	slashed := strings.ReplaceAll(module, ".", "/")
	candidates := []string{
		module,
		slashed + ".py",
		slashed + "/__init__.py",
	}

	var paths []string
	for p, n := range g.nodes {
		if n.Kind == KindFile {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)

	for _, p := range paths {
		normalized := strings.ReplaceAll(p, "\\", "/")
		for _, cand := range candidates {
			if normalized == cand || strings.HasSuffix(normalized, "/"+cand) {
				return p
			}
		}
		// Go imports name a package directory.
		if strings.HasSuffix(normalized, ".go") {
			dir := normalized[:strings.LastIndex(normalized, "/")+1]
			if dir != "" && (strings.HasSuffix(strings.TrimSuffix(dir, "/"), "/"+module) || strings.TrimSuffix(dir, "/") == module) {
				return p
			}
		}
	}
	return ""
}

func addCount(m map[string]map[string]int, from, to string) {
	if m[from] == nil {
		m[from] = map[string]int{}
	}
	m[from][to]++
}

func simpleName(name string) string {
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		return name[idx+1:]
	}
	return name
}

func fileOf(id string) string {
	if strings.HasPrefix(id, "ghost::") {
		return ""
	}
	if idx := strings.Index(id, "::"); idx >= 0 {
		return id[:idx]
	}
	return id
}

// canonicalCycle rotates a cycle so the smallest member leads.
func canonicalCycle(path []string) []string {
	min := 0
	for i := range path {
		if path[i] < path[min] {
			min = i
		}
	}
	out := make([]string, 0, len(path))
	out = append(out, path[min:]...)
	out = append(out, path[:min]...)
	return out
}

func containsID(path []string, id string) bool {
	for _, p := range path {
		if p == id {
			return true
		}
	}
	return false
}
