package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/yaverlabs/devmind/internal/analyzer"
	"github.com/yaverlabs/devmind/internal/config"
	"github.com/yaverlabs/devmind/internal/embeddings"
	"github.com/yaverlabs/devmind/internal/graph"
	"github.com/yaverlabs/devmind/internal/history"
	"github.com/yaverlabs/devmind/internal/impact"
	"github.com/yaverlabs/devmind/internal/incremental"
	"github.com/yaverlabs/devmind/internal/logging"
	"github.com/yaverlabs/devmind/internal/query"
	"github.com/yaverlabs/devmind/internal/session"
	"github.com/yaverlabs/devmind/internal/vectorstore"
)

// Bootstrap constructs every service from configuration and returns
// the registry plus a shutdown function that releases the stores.
func Bootstrap(ctx context.Context, cfg *config.Config, logger *logging.Logger) (Registry, func(context.Context) error, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	analyzerSvc, err := analyzer.NewService(cfg.Analyzer, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("building analyzer: %w", err)
	}

	var graphStore graph.Store
	if cfg.Graph.URI != "" {
		graphStore, err = graph.NewNeo4jStore(ctx, cfg.Graph)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting code graph: %w", err)
		}
		logger.Info(ctx, "using neo4j code graph", zap.String("uri", cfg.Graph.URI))
	} else {
		graphStore = graph.NewMemoryStore()
		logger.Info(ctx, "using in-memory code graph")
	}

	embedder, err := embeddings.NewProvider(cfg.Embeddings)
	if err != nil {
		closeQuiet(ctx, graphStore, nil, nil, nil)
		return nil, nil, fmt.Errorf("building embeddings provider: %w", err)
	}

	var vector vectorstore.Store
	switch cfg.VectorStore.Provider {
	case "qdrant":
		vector, err = vectorstore.NewQdrantStore(ctx, cfg.VectorStore.Qdrant, embedder)
	default:
		vector, err = vectorstore.NewChromemStore(cfg.VectorStore.Chromem, embedder)
	}
	if err != nil {
		closeQuiet(ctx, graphStore, nil, nil, embedder)
		return nil, nil, fmt.Errorf("connecting vector store: %w", err)
	}

	hist, err := history.Open(cfg.History, logger)
	if err != nil {
		closeQuiet(ctx, graphStore, vector, nil, embedder)
		return nil, nil, fmt.Errorf("opening analysis history: %w", err)
	}

	sessions, err := session.NewManager(cfg.Session, logger)
	if err != nil {
		closeQuiet(ctx, graphStore, vector, hist, embedder)
		return nil, nil, fmt.Errorf("building session manager: %w", err)
	}

	incr := incremental.NewManager(hist, graphStore, logger)
	pipeline, err := NewPipeline(analyzerSvc, graphStore, vector, hist, incr, logger)
	if err != nil {
		closeQuiet(ctx, graphStore, vector, hist, embedder)
		return nil, nil, err
	}

	reg := NewRegistry(Options{
		Analyzer:    analyzerSvc,
		Graph:       graphStore,
		VectorStore: vector,
		Embeddings:  embedder,
		Impact:      impact.NewAnalyzer(graphStore, logger),
		Query:       query.NewOrchestrator(vector, graphStore, hist, logger),
		History:     hist,
		Incremental: incr,
		Sessions:    sessions,
		Pipeline:    pipeline,
	})

	shutdown := func(ctx context.Context) error {
		var firstErr error
		if err := vector.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := hist.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := embedder.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := graphStore.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		return firstErr
	}
	return reg, shutdown, nil
}

func closeQuiet(ctx context.Context, g graph.Store, v vectorstore.Store, h *history.Store, e embeddings.Provider) {
	if v != nil {
		_ = v.Close()
	}
	if h != nil {
		_ = h.Close()
	}
	if e != nil {
		_ = e.Close()
	}
	if g != nil {
		_ = g.Close(ctx)
	}
}
