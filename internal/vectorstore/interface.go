// Package vectorstore stores code chunk embeddings and serves
// semantic search over them. Two backends implement the Store
// interface: embedded chromem-go (default, no external services) and
// Qdrant over gRPC for larger deployments.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/yaverlabs/devmind/internal/analyzer"
)

// Sentinel errors for vector store operations.
var (
	// ErrCollectionNotFound is returned when a project has never been indexed.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidProjectName indicates the project name cannot form a
	// valid collection name.
	ErrInvalidProjectName = errors.New("invalid project name")

	// ErrEmptyChunks indicates an indexing call with nothing to index.
	ErrEmptyChunks = errors.New("no chunks to index")

	// ErrConnectionFailed indicates the backend is unreachable.
	ErrConnectionFailed = errors.New("vector store connection failed")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")
)

// Embedder generates vector embeddings from text.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts, one per input.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query. Some models
	// preprocess queries differently from documents.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// SearchResult is one semantic search hit.
type SearchResult struct {
	ID        string  `json:"id"`
	Score     float32 `json:"score"` // cosine similarity, higher is closer
	Name      string  `json:"name"`
	Kind      string  `json:"kind"`
	Path      string  `json:"path"`
	Language  string  `json:"language"`
	StartLine int     `json:"start_line,omitempty"`
	EndLine   int     `json:"end_line,omitempty"`
	Content   string  `json:"content"`
}

// CollectionInfo summarizes one project's collection.
type CollectionInfo struct {
	Name       string `json:"name"`
	PointCount int    `json:"point_count"`
	VectorSize int    `json:"vector_size"`
}

// Store is the vector storage backend. All operations are scoped to a
// project; each project maps to one collection named devmind_{project}.
type Store interface {
	// IndexChunks embeds and upserts chunks, creating the project
	// collection on first use. Chunk IDs are stable so re-indexing a
	// file overwrites its previous chunks.
	IndexChunks(ctx context.Context, project string, chunks []analyzer.Chunk) ([]string, error)

	// Search returns up to k chunks similar to query, best first.
	// Filters match chunk metadata exactly (e.g. {"path": "main.go"}).
	Search(ctx context.Context, project, query string, k int, filters map[string]string) ([]SearchResult, error)

	// DeleteChunks removes chunks by ID.
	DeleteChunks(ctx context.Context, project string, ids []string) error

	// DropProject deletes the project collection entirely.
	DropProject(ctx context.Context, project string) error

	// ListProjects returns the projects with an existing collection.
	ListProjects(ctx context.Context) ([]string, error)

	// Info returns collection statistics, or ErrCollectionNotFound.
	Info(ctx context.Context, project string) (*CollectionInfo, error)

	// Healthy verifies the backend is reachable.
	Healthy(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

const collectionPrefix = "devmind_"

var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// CollectionName maps a project name to its collection, lowercasing
// and replacing separators. Returns ErrInvalidProjectName when the
// result is not a legal collection name.
func CollectionName(project string) (string, error) {
	normalized := strings.ToLower(project)
	for _, r := range []string{"-", ".", " ", "/"} {
		normalized = strings.ReplaceAll(normalized, r, "_")
	}
	name := collectionPrefix + normalized
	if !collectionNamePattern.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidProjectName, project)
	}
	return name, nil
}

// ProjectFromCollection inverts CollectionName's prefixing. Returns
// false for collections devmind does not own.
func ProjectFromCollection(collection string) (string, bool) {
	project := strings.TrimPrefix(collection, collectionPrefix)
	if project == collection || project == "" {
		return "", false
	}
	return project, true
}
