package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yaverlabs/devmind/internal/analyzer"
	"github.com/yaverlabs/devmind/internal/config"
)

// neo4jStore persists the code graph in Neo4j. Every node carries a
// project property so multiple projects share one database. Call
// sites are stored on function nodes and turned into CALLS edges by
// LinkCalls, Cypher-side.
type neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewNeo4jStore connects to Neo4j and verifies connectivity.
func NewNeo4jStore(ctx context.Context, cfg config.GraphConfig) (Store, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password.Value(), ""))
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connectivity check failed: %w", err)
	}
	return &neo4jStore{driver: driver, database: cfg.Database}, nil
}

func (s *neo4jStore) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: s.database,
	})
}

func (s *neo4jStore) UpsertFileAnalysis(ctx context.Context, project string, analysis *analyzer.FileAnalysis) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	// Re-analysis replaces the file's entire subgraph.
	_, err := session.Run(ctx, `
		MATCH (n {project: $project, file: $file})
		DETACH DELETE n
	`, map[string]any{"project": project, "file": analysis.Path})
	if err != nil {
		return fmt.Errorf("clearing file subgraph: %w", err)
	}

	_, err = session.Run(ctx, `
		MERGE (f:File {id: $file, project: $project})
		SET f.name = $file, f.file = $file, f.imports = $imports
	`, map[string]any{
		"project": project,
		"file":    analysis.Path,
		"imports": importModules(analysis.Imports),
	})
	if err != nil {
		return fmt.Errorf("upserting file node: %w", err)
	}

	functions := make([]map[string]any, 0, len(analysis.Functions))
	for _, fn := range analysis.Functions {
		functions = append(functions, functionRow(analysis.Path, "", fn))
	}
	if len(functions) > 0 {
		_, err = session.Run(ctx, `
			MATCH (f:File {id: $file, project: $project})
			UNWIND $functions AS row
			MERGE (fn:Function {id: row.id, project: $project})
			SET fn.name = row.name, fn.simple = row.simple, fn.file = $file,
			    fn.start_line = row.start_line, fn.end_line = row.end_line,
			    fn.calls = row.calls, fn.ghost = false
			MERGE (f)-[:DEFINES_FUNCTION]->(fn)
		`, map[string]any{"project": project, "file": analysis.Path, "functions": functions})
		if err != nil {
			return fmt.Errorf("upserting functions: %w", err)
		}
	}

	for _, cls := range analysis.Classes {
		methods := make([]map[string]any, 0, len(cls.Methods))
		for _, m := range cls.Methods {
			methods = append(methods, functionRow(analysis.Path, cls.Name, m))
		}
		_, err = session.Run(ctx, `
			MATCH (f:File {id: $file, project: $project})
			MERGE (c:Class {id: $clsID, project: $project})
			SET c.name = $clsName, c.file = $file,
			    c.start_line = $startLine, c.end_line = $endLine
			MERGE (f)-[:CONTAINS]->(c)
			WITH c
			UNWIND $methods AS row
			MERGE (m:Function {id: row.id, project: $project})
			SET m.name = row.name, m.simple = row.simple, m.file = $file,
			    m.start_line = row.start_line, m.end_line = row.end_line,
			    m.calls = row.calls, m.ghost = false
			MERGE (c)-[:DEFINES_METHOD]->(m)
		`, map[string]any{
			"project":   project,
			"file":      analysis.Path,
			"clsID":     analysis.Path + "::" + cls.Name,
			"clsName":   cls.Name,
			"startLine": cls.StartLine,
			"endLine":   cls.EndLine,
			"methods":   methods,
		})
		if err != nil {
			return fmt.Errorf("upserting class %s: %w", cls.Name, err)
		}
	}

	return nil
}

func functionRow(file, class string, fn analyzer.FunctionInfo) map[string]any {
	name := fn.Name
	if class != "" {
		name = class + "." + fn.Name
	}
	calls := make([]string, 0, len(fn.Calls))
	for _, c := range fn.Calls {
		calls = append(calls, c.Callee)
	}
	return map[string]any{
		"id":         file + "::" + name,
		"name":       name,
		"simple":     fn.Name,
		"start_line": fn.StartLine,
		"end_line":   fn.EndLine,
		"calls":      calls,
	}
}

func importModules(imports []analyzer.ImportInfo) []string {
	modules := make([]string, 0, len(imports))
	for _, imp := range imports {
		modules = append(modules, imp.Module)
	}
	return modules
}

func (s *neo4jStore) LinkCalls(ctx context.Context, project string) (int, error) {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	// Pass one: resolve against known functions, preferring a match in
	// the caller's own file.
	_, err := session.Run(ctx, `
		MATCH (caller:Function {project: $project})
		WHERE caller.calls IS NOT NULL AND size(caller.calls) > 0
		UNWIND caller.calls AS callee
		WITH caller, callee, last(split(callee, '.')) AS simple
		MATCH (target:Function {project: $project})
		WHERE (target.name = callee OR target.simple = simple) AND target.ghost = false
		WITH caller, callee, target
		ORDER BY CASE WHEN target.file = caller.file THEN 0 ELSE 1 END, target.id
		WITH caller, callee, head(collect(target)) AS target
		WHERE target <> caller
		MERGE (caller)-[r:CALLS]->(target)
		ON CREATE SET r.count = 1
		ON MATCH SET r.count = r.count + 1
	`, map[string]any{"project": project})
	if err != nil {
		return 0, fmt.Errorf("linking calls: %w", err)
	}

	// Pass two: everything unresolved becomes a ghost.
	_, err = session.Run(ctx, `
		MATCH (caller:Function {project: $project})
		WHERE caller.calls IS NOT NULL AND size(caller.calls) > 0
		UNWIND caller.calls AS callee
		WITH caller, callee, last(split(callee, '.')) AS simple
		WHERE NOT EXISTS {
			MATCH (t:Function {project: $project})
			WHERE (t.name = callee OR t.simple = simple) AND t.ghost = false
		}
		MERGE (g:Function {id: 'ghost::' + simple, project: $project})
		ON CREATE SET g.name = simple, g.simple = simple, g.ghost = true
		MERGE (caller)-[r:CALLS]->(g)
		ON CREATE SET r.count = 1
	`, map[string]any{"project": project})
	if err != nil {
		return 0, fmt.Errorf("creating ghost nodes: %w", err)
	}

	// Consume pending call lists so re-linking never double counts.
	_, err = session.Run(ctx, `
		MATCH (fn:Function {project: $project})
		SET fn.calls = null
	`, map[string]any{"project": project})
	if err != nil {
		return 0, fmt.Errorf("clearing call lists: %w", err)
	}

	// Import edges between files resolve once all file nodes exist.
	_, err = session.Run(ctx, `
		MATCH (f:File {project: $project})
		WHERE f.imports IS NOT NULL
		UNWIND f.imports AS module
		WITH f, module, replace(module, '.', '/') AS slashed
		MATCH (t:File {project: $project})
		WHERE t <> f AND (
			t.id = module OR
			t.id = slashed + '.py' OR t.id ENDS WITH '/' + slashed + '.py' OR
			t.id = slashed + '/__init__.py' OR t.id ENDS WITH '/' + slashed + '/__init__.py'
		)
		MERGE (f)-[:IMPORTS]->(t)
	`, map[string]any{"project": project})
	if err != nil {
		return 0, fmt.Errorf("linking imports: %w", err)
	}

	result, err := session.Run(ctx, `
		MATCH (g:Function {project: $project, ghost: true})
		RETURN count(g) AS ghosts
	`, map[string]any{"project": project})
	if err != nil {
		return 0, fmt.Errorf("counting ghosts: %w", err)
	}
	if result.Next(ctx) {
		return int(intFromRecord(result.Record(), "ghosts")), nil
	}
	return 0, nil
}

func (s *neo4jStore) TagLayers(ctx context.Context, project string) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (f:File {project: $project})
		RETURN f.id AS id
	`, map[string]any{"project": project})
	if err != nil {
		return fmt.Errorf("listing files: %w", err)
	}

	var rows []map[string]any
	for result.Next(ctx) {
		id := stringFromRecord(result.Record(), "id")
		rows = append(rows, map[string]any{"id": id, "layer": string(layerFor(id))})
	}
	if err := result.Err(); err != nil {
		return fmt.Errorf("reading files: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	_, err = session.Run(ctx, `
		UNWIND $rows AS row
		MATCH (f:File {id: row.id, project: $project})
		SET f.layer = row.layer
	`, map[string]any{"project": project, "rows": rows})
	if err != nil {
		return fmt.Errorf("tagging layers: %w", err)
	}
	return nil
}

func (s *neo4jStore) DirectCallers(ctx context.Context, project, functionID string) ([]Caller, error) {
	return s.TransitiveCallers(ctx, project, functionID, 1)
}

func (s *neo4jStore) TransitiveCallers(ctx context.Context, project, functionID string, maxDepth int) ([]Caller, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	if _, err := s.findByID(ctx, session, project, functionID); err != nil {
		return nil, err
	}

	// Variable-length bounds cannot be parameterized in Cypher.
	query := fmt.Sprintf(`
		MATCH p = (caller:Function {project: $project})-[:CALLS*1..%d]->(target:Function {id: $id, project: $project})
		WHERE caller <> target
		WITH caller, min(length(p)) AS depth
		RETURN caller.id AS id, caller.name AS name, caller.file AS file,
		       caller.ghost AS ghost, caller.start_line AS start_line,
		       caller.end_line AS end_line, depth
		ORDER BY depth, id
	`, maxDepth)

	result, err := session.Run(ctx, query, map[string]any{"project": project, "id": functionID})
	if err != nil {
		return nil, fmt.Errorf("querying callers: %w", err)
	}

	var callers []Caller
	for result.Next(ctx) {
		record := result.Record()
		callers = append(callers, Caller{
			Node:  functionNodeFromRecord(record),
			Depth: int(intFromRecord(record, "depth")),
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("reading callers: %w", err)
	}
	return callers, nil
}

func (s *neo4jStore) Callees(ctx context.Context, project, functionID string) ([]Node, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	if _, err := s.findByID(ctx, session, project, functionID); err != nil {
		return nil, err
	}

	result, err := session.Run(ctx, `
		MATCH (:Function {id: $id, project: $project})-[:CALLS]->(callee:Function)
		RETURN callee.id AS id, callee.name AS name, callee.file AS file,
		       callee.ghost AS ghost, callee.start_line AS start_line,
		       callee.end_line AS end_line
		ORDER BY id
	`, map[string]any{"project": project, "id": functionID})
	if err != nil {
		return nil, fmt.Errorf("querying callees: %w", err)
	}

	var nodes []Node
	for result.Next(ctx) {
		nodes = append(nodes, functionNodeFromRecord(result.Record()))
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("reading callees: %w", err)
	}
	return nodes, nil
}

func (s *neo4jStore) CallGraph(ctx context.Context, project, functionID string, maxDepth int) (*Trace, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	root, err := s.findByID(ctx, session, project, functionID)
	if err != nil {
		return nil, err
	}
	if maxDepth < 1 {
		maxDepth = 1
	}

	query := fmt.Sprintf(`
		MATCH (root:Function {id: $id, project: $project})-[:CALLS*1..%d]->(fn:Function)
		WITH collect(DISTINCT fn) AS reached, root
		UNWIND reached + root AS member
		MATCH (member)-[:CALLS]->(callee:Function)
		WHERE callee IN reached OR callee = root
		RETURN member.id AS from_id, callee.id AS to_id,
		       callee.name AS name, callee.file AS file,
		       callee.ghost AS ghost, callee.start_line AS start_line,
		       callee.end_line AS end_line
		ORDER BY from_id, to_id
	`, maxDepth)

	result, err := session.Run(ctx, query, map[string]any{"project": project, "id": functionID})
	if err != nil {
		return nil, fmt.Errorf("querying call graph: %w", err)
	}

	trace := &Trace{Root: functionID, Depth: maxDepth, Nodes: []Node{*root}}
	seen := map[string]bool{functionID: true}
	for result.Next(ctx) {
		record := result.Record()
		fromID := stringFromRecord(record, "from_id")
		toID := stringFromRecord(record, "to_id")
		trace.Edges = append(trace.Edges, CallEdge{From: fromID, To: toID})
		node := functionNodeFromRecord(record)
		node.ID = toID
		if !seen[node.ID] {
			seen[node.ID] = true
			trace.Nodes = append(trace.Nodes, node)
		}
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("reading call graph: %w", err)
	}
	return trace, nil
}

func (s *neo4jStore) CircularDependencies(ctx context.Context, project string, maxLen int) ([]Cycle, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		MATCH p = (f:Function {project: $project})-[:CALLS*2..%d]->(f)
		RETURN [n IN nodes(p) | n.id] AS members
	`, maxLen)

	result, err := session.Run(ctx, query, map[string]any{"project": project})
	if err != nil {
		return nil, fmt.Errorf("querying cycles: %w", err)
	}

	seen := map[string]bool{}
	var cycles []Cycle
	for result.Next(ctx) {
		raw, _ := result.Record().Get("members")
		members := stringSlice(raw)
		if len(members) < 3 {
			continue
		}
		// The path repeats the start node; canonicalize without it.
		canon := canonicalCycle(members[:len(members)-1])
		key := strings.Join(canon, "->")
		if seen[key] {
			continue
		}
		seen[key] = true
		cycles = append(cycles, Cycle{Members: append(canon, canon[0])})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("reading cycles: %w", err)
	}

	sort.Slice(cycles, func(i, j int) bool {
		return strings.Join(cycles[i].Members, "|") < strings.Join(cycles[j].Members, "|")
	})
	return cycles, nil
}

func (s *neo4jStore) CoupledFiles(ctx context.Context, project string, minCalls int) ([]CoupledPair, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (a:Function {project: $project})-[r:CALLS]->(b:Function {project: $project})
		WHERE a.file IS NOT NULL AND b.file IS NOT NULL AND a.file <> b.file
		WITH CASE WHEN a.file < b.file THEN a.file ELSE b.file END AS fa,
		     CASE WHEN a.file < b.file THEN b.file ELSE a.file END AS fb,
		     sum(coalesce(r.count, 1)) AS calls
		WHERE calls >= $min
		RETURN fa, fb, calls
		ORDER BY calls DESC, fa
	`, map[string]any{"project": project, "min": minCalls})
	if err != nil {
		return nil, fmt.Errorf("querying coupled files: %w", err)
	}

	var pairs []CoupledPair
	for result.Next(ctx) {
		record := result.Record()
		pairs = append(pairs, CoupledPair{
			FileA: stringFromRecord(record, "fa"),
			FileB: stringFromRecord(record, "fb"),
			Calls: int(intFromRecord(record, "calls")),
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("reading coupled files: %w", err)
	}
	return pairs, nil
}

func (s *neo4jStore) FindFunction(ctx context.Context, project, idOrName string) (*Node, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	if node, err := s.findByID(ctx, session, project, idOrName); err == nil {
		return node, nil
	}
	if strings.Contains(idOrName, "::") {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, idOrName)
	}

	result, err := session.Run(ctx, `
		MATCH (fn:Function {project: $project})
		WHERE fn.name = $name OR fn.simple = $name
		RETURN fn.id AS id, fn.name AS name, fn.file AS file,
		       fn.ghost AS ghost, fn.start_line AS start_line, fn.end_line AS end_line
		ORDER BY id
		LIMIT 1
	`, map[string]any{"project": project, "name": idOrName})
	if err != nil {
		return nil, fmt.Errorf("querying function by name: %w", err)
	}
	if result.Next(ctx) {
		node := functionNodeFromRecord(result.Record())
		return &node, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, idOrName)
}

func (s *neo4jStore) findByID(ctx context.Context, session neo4j.SessionWithContext, project, id string) (*Node, error) {
	result, err := session.Run(ctx, `
		MATCH (fn:Function {id: $id, project: $project})
		RETURN fn.id AS id, fn.name AS name, fn.file AS file,
		       fn.ghost AS ghost, fn.start_line AS start_line, fn.end_line AS end_line
	`, map[string]any{"project": project, "id": id})
	if err != nil {
		return nil, fmt.Errorf("querying function: %w", err)
	}
	if result.Next(ctx) {
		node := functionNodeFromRecord(result.Record())
		return &node, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
}

func (s *neo4jStore) FunctionsInFile(ctx context.Context, project, filePath string) ([]Node, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (fn:Function {project: $project, file: $file})
		RETURN fn.id AS id, fn.name AS name, fn.file AS file,
		       fn.ghost AS ghost, fn.start_line AS start_line, fn.end_line AS end_line
		ORDER BY id
	`, map[string]any{"project": project, "file": filePath})
	if err != nil {
		return nil, fmt.Errorf("querying file functions: %w", err)
	}

	var out []Node
	for result.Next(ctx) {
		out = append(out, functionNodeFromRecord(result.Record()))
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("reading file functions: %w", err)
	}
	return out, nil
}

func (s *neo4jStore) Stats(ctx context.Context, project string) (*Stats, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (n {project: $project})
		RETURN
			sum(CASE WHEN n:File THEN 1 ELSE 0 END) AS files,
			sum(CASE WHEN n:Class THEN 1 ELSE 0 END) AS classes,
			sum(CASE WHEN n:Function AND n.ghost = false THEN 1 ELSE 0 END) AS functions,
			sum(CASE WHEN n:Function AND n.ghost = true THEN 1 ELSE 0 END) AS ghosts
	`, map[string]any{"project": project})
	if err != nil {
		return nil, fmt.Errorf("querying stats: %w", err)
	}
	stats := &Stats{}
	if result.Next(ctx) {
		record := result.Record()
		stats.Files = int(intFromRecord(record, "files"))
		stats.Classes = int(intFromRecord(record, "classes"))
		stats.Functions = int(intFromRecord(record, "functions"))
		stats.Ghosts = int(intFromRecord(record, "ghosts"))
	}

	callResult, err := session.Run(ctx, `
		MATCH (:Function {project: $project})-[r:CALLS]->(:Function {project: $project})
		RETURN sum(coalesce(r.count, 1)) AS calls
	`, map[string]any{"project": project})
	if err != nil {
		return nil, fmt.Errorf("querying call count: %w", err)
	}
	if callResult.Next(ctx) {
		stats.Calls = int(intFromRecord(callResult.Record(), "calls"))
	}
	return stats, nil
}

func (s *neo4jStore) DropProject(ctx context.Context, project string) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.Run(ctx, `
		MATCH (n {project: $project})
		DETACH DELETE n
	`, map[string]any{"project": project})
	if err != nil {
		return fmt.Errorf("dropping project: %w", err)
	}
	return nil
}

func (s *neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// record helpers

func functionNodeFromRecord(record *neo4j.Record) Node {
	node := Node{
		ID:        stringFromRecord(record, "id"),
		Kind:      KindFunction,
		Name:      stringFromRecord(record, "name"),
		Path:      stringFromRecord(record, "file"),
		StartLine: int(intFromRecord(record, "start_line")),
		EndLine:   int(intFromRecord(record, "end_line")),
	}
	if ghost, ok := record.Get("ghost"); ok {
		if b, ok := ghost.(bool); ok {
			node.Ghost = b
		}
	}
	return node
}

func stringFromRecord(record *neo4j.Record, key string) string {
	if v, ok := record.Get(key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func intFromRecord(record *neo4j.Record, key string) int64 {
	if v, ok := record.Get(key); ok {
		if n, ok := v.(int64); ok {
			return n
		}
	}
	return 0
}

func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
