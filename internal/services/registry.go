// Package services wires the devmind subsystems together and exposes
// them behind a single registry, so the CLI and the HTTP server share
// one construction path.
package services

import (
	"github.com/yaverlabs/devmind/internal/analyzer"
	"github.com/yaverlabs/devmind/internal/embeddings"
	"github.com/yaverlabs/devmind/internal/graph"
	"github.com/yaverlabs/devmind/internal/history"
	"github.com/yaverlabs/devmind/internal/impact"
	"github.com/yaverlabs/devmind/internal/incremental"
	"github.com/yaverlabs/devmind/internal/query"
	"github.com/yaverlabs/devmind/internal/session"
	"github.com/yaverlabs/devmind/internal/vectorstore"
)

// Registry provides access to all devmind services.
// Use accessor methods to retrieve individual services.
type Registry interface {
	Analyzer() analyzer.Service
	Graph() graph.Store
	VectorStore() vectorstore.Store
	Embeddings() embeddings.Provider
	Impact() *impact.Analyzer
	Query() *query.Orchestrator
	History() *history.Store
	Incremental() *incremental.Manager
	Sessions() *session.Manager
	Pipeline() *Pipeline
}

// Options configures the registry with service instances.
type Options struct {
	Analyzer    analyzer.Service
	Graph       graph.Store
	VectorStore vectorstore.Store
	Embeddings  embeddings.Provider
	Impact      *impact.Analyzer
	Query       *query.Orchestrator
	History     *history.Store
	Incremental *incremental.Manager
	Sessions    *session.Manager
	Pipeline    *Pipeline
}

// registry is the concrete implementation of Registry.
type registry struct {
	analyzer    analyzer.Service
	graph       graph.Store
	vectorStore vectorstore.Store
	embeddings  embeddings.Provider
	impact      *impact.Analyzer
	query       *query.Orchestrator
	history     *history.Store
	incremental *incremental.Manager
	sessions    *session.Manager
	pipeline    *Pipeline
}

// NewRegistry creates a new service registry.
func NewRegistry(opts Options) Registry {
	return &registry{
		analyzer:    opts.Analyzer,
		graph:       opts.Graph,
		vectorStore: opts.VectorStore,
		embeddings:  opts.Embeddings,
		impact:      opts.Impact,
		query:       opts.Query,
		history:     opts.History,
		incremental: opts.Incremental,
		sessions:    opts.Sessions,
		pipeline:    opts.Pipeline,
	}
}

func (r *registry) Analyzer() analyzer.Service        { return r.analyzer }
func (r *registry) Graph() graph.Store                { return r.graph }
func (r *registry) VectorStore() vectorstore.Store    { return r.vectorStore }
func (r *registry) Embeddings() embeddings.Provider   { return r.embeddings }
func (r *registry) Impact() *impact.Analyzer          { return r.impact }
func (r *registry) Query() *query.Orchestrator        { return r.query }
func (r *registry) History() *history.Store           { return r.history }
func (r *registry) Incremental() *incremental.Manager { return r.incremental }
func (r *registry) Sessions() *session.Manager        { return r.sessions }
func (r *registry) Pipeline() *Pipeline               { return r.pipeline }
