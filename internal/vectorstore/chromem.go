package vectorstore

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yaverlabs/devmind/internal/analyzer"
	"github.com/yaverlabs/devmind/internal/config"
)

var tracer = otel.Tracer("devmind/vectorstore")

// ChromemStore is the embedded vector store. Data persists under a
// local directory; no external service is required.
type ChromemStore struct {
	db       *chromem.DB
	embedder Embedder

	mu          sync.Mutex
	collections map[string]*chromem.Collection
}

// NewChromemStore opens or creates the persistent database.
func NewChromemStore(cfg config.ChromemConfig, embedder Embedder) (*ChromemStore, error) {
	db, err := chromem.NewPersistentDB(cfg.Path, cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("%w: opening chromem at %s: %v", ErrConnectionFailed, cfg.Path, err)
	}
	return &ChromemStore{
		db:          db,
		embedder:    embedder,
		collections: map[string]*chromem.Collection{},
	}, nil
}

func (s *ChromemStore) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

func (s *ChromemStore) collection(project string, create bool) (*chromem.Collection, error) {
	name, err := CollectionName(project)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if col, ok := s.collections[name]; ok {
		return col, nil
	}

	var col *chromem.Collection
	if create {
		col, err = s.db.GetOrCreateCollection(name, nil, s.embeddingFunc())
		if err != nil {
			return nil, fmt.Errorf("creating collection %s: %w", name, err)
		}
	} else {
		col = s.db.GetCollection(name, s.embeddingFunc())
		if col == nil {
			return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
		}
	}
	s.collections[name] = col
	return col, nil
}

func (s *ChromemStore) IndexChunks(ctx context.Context, project string, chunks []analyzer.Chunk) ([]string, error) {
	ctx, span := tracer.Start(ctx, "vectorstore.IndexChunks")
	defer span.End()

	if len(chunks) == 0 {
		return nil, ErrEmptyChunks
	}

	col, err := s.collection(project, true)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	embeddings, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	docs := make([]chromem.Document, len(chunks))
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		docs[i] = chromem.Document{
			ID:        c.ID,
			Content:   c.Content,
			Embedding: embeddings[i],
			Metadata:  chunkMetadata(c),
		}
		ids[i] = c.ID
	}
	if err := col.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("adding documents: %w", err)
	}

	span.SetAttributes(attribute.Int("chunks.indexed", len(chunks)))
	span.SetStatus(codes.Ok, "")
	return ids, nil
}

func (s *ChromemStore) Search(ctx context.Context, project, query string, k int, filters map[string]string) ([]SearchResult, error) {
	ctx, span := tracer.Start(ctx, "vectorstore.Search")
	defer span.End()

	col, err := s.collection(project, false)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// chromem rejects k larger than the collection.
	if count := col.Count(); count < k {
		k = count
	}
	if k == 0 {
		return nil, nil
	}

	results, err := col.Query(ctx, query, k, filters, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection: %w", err)
	}

	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		sr := SearchResult{
			ID:      r.ID,
			Score:   r.Similarity,
			Content: r.Content,
		}
		applyMetadata(&sr, r.Metadata)
		out = append(out, sr)
	}

	span.SetAttributes(attribute.Int("results", len(out)))
	span.SetStatus(codes.Ok, "")
	return out, nil
}

func (s *ChromemStore) DeleteChunks(ctx context.Context, project string, ids []string) error {
	col, err := s.collection(project, false)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	return nil
}

func (s *ChromemStore) DropProject(ctx context.Context, project string) error {
	name, err := CollectionName(project)
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.collections, name)
	s.mu.Unlock()

	if err := s.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("deleting collection %s: %w", name, err)
	}
	return nil
}

func (s *ChromemStore) ListProjects(ctx context.Context) ([]string, error) {
	var projects []string
	for name := range s.db.ListCollections() {
		if project, ok := ProjectFromCollection(name); ok {
			projects = append(projects, project)
		}
	}
	return projects, nil
}

func (s *ChromemStore) Info(ctx context.Context, project string) (*CollectionInfo, error) {
	col, err := s.collection(project, false)
	if err != nil {
		return nil, err
	}
	name, _ := CollectionName(project)
	return &CollectionInfo{
		Name:       name,
		PointCount: col.Count(),
		VectorSize: s.embedder.Dimensions(),
	}, nil
}

func (s *ChromemStore) Healthy(ctx context.Context) error {
	// Embedded store; reachable by construction.
	return nil
}

func (s *ChromemStore) Close() error { return nil }

func chunkMetadata(c analyzer.Chunk) map[string]string {
	return map[string]string{
		"name":       c.Name,
		"kind":       string(c.Kind),
		"path":       c.Path,
		"language":   string(c.Language),
		"start_line": strconv.Itoa(c.StartLine),
		"end_line":   strconv.Itoa(c.EndLine),
	}
}

func applyMetadata(sr *SearchResult, meta map[string]string) {
	sr.Name = meta["name"]
	sr.Kind = meta["kind"]
	sr.Path = meta["path"]
	sr.Language = meta["language"]
	sr.StartLine, _ = strconv.Atoi(meta["start_line"])
	sr.EndLine, _ = strconv.Atoi(meta["end_line"])
}
