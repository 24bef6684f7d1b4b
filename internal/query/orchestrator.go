// Package query routes natural-language questions about a codebase
// to the right backends and fuses their answers: the vector store for
// semantic lookups, the code graph for structural ones, and the
// analysis history for temporal ones.
package query

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/yaverlabs/devmind/internal/graph"
	"github.com/yaverlabs/devmind/internal/history"
	"github.com/yaverlabs/devmind/internal/logging"
	"github.com/yaverlabs/devmind/internal/vectorstore"
)

var tracer = otel.Tracer("devmind/query")

const defaultTopK = 5

// Item is one fused result row.
type Item struct {
	ID         string  `json:"id,omitempty"`
	Name       string  `json:"name,omitempty"`
	Kind       string  `json:"kind,omitempty"`
	Path       string  `json:"path,omitempty"`
	Snippet    string  `json:"snippet,omitempty"`
	Relation   string  `json:"relation,omitempty"`
	Score      float64 `json:"score,omitempty"`
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence"`
}

// SourceResult is one backend's contribution.
type SourceResult struct {
	Source      string  `json:"source"`
	Type        Type    `json:"type"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
	Items       []Item  `json:"items"`
}

// Fused is the merged answer across backends.
type Fused struct {
	Query           string         `json:"query"`
	Type            Type           `json:"type"`
	Sources         []SourceResult `json:"sources"`
	Results         []Item         `json:"results"`
	Confidence      float64        `json:"confidence"`
	Recommendations []string       `json:"recommendations"`
	ExecutionTime   time.Duration  `json:"execution_time"`
}

// Orchestrator fans a query out to backends by classified type.
// Backend failures degrade to missing sources, not errors.
type Orchestrator struct {
	vector  vectorstore.Store
	graph   graph.Store
	history *history.Store
	logger  *logging.Logger
}

// NewOrchestrator wires the orchestrator. Any backend may be nil; its
// query types then simply return no source.
func NewOrchestrator(vector vectorstore.Store, g graph.Store, hist *history.Store, logger *logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{vector: vector, graph: g, history: hist, logger: logger}
}

// Execute classifies the query, consults the matching backends, and
// fuses their results sorted by confidence.
func (o *Orchestrator) Execute(ctx context.Context, project, queryText string, topK int) (*Fused, error) {
	ctx, span := tracer.Start(ctx, "query.Execute")
	defer span.End()

	start := time.Now()
	if topK <= 0 {
		topK = defaultTopK
	}

	qtype := Classify(queryText)
	span.SetAttributes(
		attribute.String("query.type", string(qtype)),
		attribute.String("query.project", project),
	)

	var sources []SourceResult
	if qtype == TypeSemantic || qtype == TypeCombined {
		if sr := o.querySemantic(ctx, project, queryText, topK); sr != nil {
			sources = append(sources, *sr)
		}
	}
	if qtype == TypeStructural || qtype == TypeAnalytical || qtype == TypeCombined {
		if sr := o.queryGraph(ctx, project, queryText); sr != nil {
			sources = append(sources, *sr)
		}
	}
	if qtype == TypeTemporal || qtype == TypeCombined {
		if sr := o.queryHistory(ctx, project); sr != nil {
			sources = append(sources, *sr)
		}
	}

	fused := fuse(queryText, qtype, sources, time.Since(start))

	o.logger.Debug(ctx, "query executed",
		zap.String("project", project),
		zap.String("type", string(qtype)),
		zap.Int("sources", len(sources)),
		zap.Int("results", len(fused.Results)),
	)
	span.SetAttributes(attribute.Int("query.results", len(fused.Results)))
	span.SetStatus(codes.Ok, "")
	return fused, nil
}

const snippetLimit = 200

func (o *Orchestrator) querySemantic(ctx context.Context, project, queryText string, topK int) *SourceResult {
	if o.vector == nil {
		return nil
	}

	results, err := o.vector.Search(ctx, project, queryText, topK, nil)
	if err != nil {
		o.logger.Warn(ctx, "semantic search failed", zap.Error(err))
		return nil
	}

	items := make([]Item, 0, len(results))
	for _, r := range results {
		snippet := r.Content
		if len(snippet) > snippetLimit {
			snippet = snippet[:snippetLimit]
		}
		items = append(items, Item{
			ID:      r.ID,
			Name:    r.Name,
			Kind:    r.Kind,
			Path:    r.Path,
			Snippet: snippet,
			Score:   float64(r.Score),
			Source:  "vector",
		})
	}

	confidence := 0.0
	if len(items) > 0 {
		confidence = items[0].Score
	}
	return &SourceResult{
		Source:      "vector",
		Type:        TypeSemantic,
		Confidence:  confidence,
		Explanation: fmt.Sprintf("Found %d relevant code chunks via semantic search.", len(items)),
		Items:       items,
	}
}

// queryGraph scans query words for function names and reports the
// matches with their direct callers.
func (o *Orchestrator) queryGraph(ctx context.Context, project, queryText string) *SourceResult {
	if o.graph == nil {
		return nil
	}

	var items []Item
	var relationships int
	seen := map[string]bool{}

	for _, word := range candidateNames(queryText) {
		node, err := o.graph.FindFunction(ctx, project, word)
		if err != nil {
			continue
		}
		if seen[node.ID] {
			continue
		}
		seen[node.ID] = true
		items = append(items, Item{
			ID:     node.ID,
			Name:   node.Name,
			Kind:   string(node.Kind),
			Path:   node.Path,
			Source: "graph",
		})

		callers, err := o.graph.DirectCallers(ctx, project, node.ID)
		if err != nil {
			continue
		}
		for _, c := range callers {
			relationships++
			items = append(items, Item{
				ID:       c.Node.ID,
				Name:     c.Node.Name,
				Kind:     string(c.Node.Kind),
				Path:     c.Node.Path,
				Relation: "calls " + node.Name,
				Source:   "graph",
			})
		}
	}

	if len(items) == 0 {
		return nil
	}

	confidence := 0.5
	if relationships > 0 {
		confidence = 0.85
	}
	return &SourceResult{
		Source:      "graph",
		Type:        TypeStructural,
		Confidence:  confidence,
		Explanation: fmt.Sprintf("Found %d nodes and %d call relationships in the code graph.", len(seen), relationships),
		Items:       items,
	}
}

func (o *Orchestrator) queryHistory(ctx context.Context, project string) *SourceResult {
	if o.history == nil {
		return nil
	}

	analyses, err := o.history.History(ctx, project, defaultTopK)
	if err != nil {
		o.logger.Warn(ctx, "history lookup failed", zap.Error(err))
		return nil
	}
	if len(analyses) == 0 {
		return nil
	}

	items := make([]Item, 0, len(analyses))
	for _, a := range analyses {
		items = append(items, Item{
			ID:      fmt.Sprintf("%s@%s", a.Project, a.CommitHash),
			Name:    a.CommitHash,
			Kind:    string(a.Type),
			Path:    a.RepoPath,
			Snippet: fmt.Sprintf("%d files analyzed at %s", a.FilesAnalyzed, a.Timestamp.Format(time.RFC3339)),
			Source:  "history",
		})
	}

	return &SourceResult{
		Source:      "history",
		Type:        TypeTemporal,
		Confidence:  0.7,
		Explanation: fmt.Sprintf("Found %d prior analyses for the project.", len(items)),
		Items:       items,
	}
}

// candidateNames picks words long enough to plausibly be identifiers.
func candidateNames(queryText string) []string {
	var out []string
	for _, w := range strings.Fields(queryText) {
		w = strings.Trim(w, ".,;:!?'\"()")
		if len(w) > 3 {
			out = append(out, w)
		}
	}
	return out
}

func fuse(queryText string, qtype Type, sources []SourceResult, elapsed time.Duration) *Fused {
	var overall float64
	var results []Item
	for _, src := range sources {
		overall += src.Confidence
		for _, item := range src.Items {
			item.Confidence = src.Confidence
			results = append(results, item)
		}
	}
	if len(sources) > 0 {
		overall /= float64(len(sources))
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Confidence != results[j].Confidence {
			return results[i].Confidence > results[j].Confidence
		}
		return results[i].Score > results[j].Score
	})

	return &Fused{
		Query:           queryText,
		Type:            qtype,
		Sources:         sources,
		Results:         results,
		Confidence:      overall,
		Recommendations: recommendations(sources, results, overall),
		ExecutionTime:   elapsed,
	}
}

func recommendations(sources []SourceResult, results []Item, confidence float64) []string {
	if len(results) == 0 {
		return []string{"No results found. Try a more specific query or different keywords."}
	}

	var recs []string
	if len(sources) == 1 {
		switch sources[0].Source {
		case "vector":
			recs = append(recs, "Consider a structural query to understand call chains.")
		case "graph":
			recs = append(recs, "Consider a semantic query for related code patterns.")
		case "history":
			recs = append(recs, "Consider a structural query to see the current code graph.")
		}
	}
	if confidence < 0.6 {
		recs = append(recs, "Low confidence results. Try refining your query.")
	}
	if confidence > 0.8 {
		recs = append(recs, "High confidence results.")
	}
	return recs
}
