package vectorstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yaverlabs/devmind/internal/analyzer"
	"github.com/yaverlabs/devmind/internal/config"
)

// QdrantStore talks to a Qdrant server over gRPC. Chunk IDs are
// mapped to deterministic UUIDv5 point IDs so re-indexing the same
// chunk overwrites its point, and the original chunk ID rides along
// in the payload.
type QdrantStore struct {
	client   *qdrant.Client
	embedder Embedder
}

// NewQdrantStore connects to Qdrant and verifies it responds.
func NewQdrantStore(ctx context.Context, cfg config.QdrantConfig, embedder Embedder) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
		APIKey: cfg.APIKey.Value(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	s := &QdrantStore{client: client, embedder: embedder}
	if err := s.Healthy(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

// pointID derives the deterministic UUIDv5 point ID for a chunk.
func pointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(chunkID)).String()
}

func (s *QdrantStore) ensureCollection(ctx context.Context, name string) error {
	_, err := s.client.GetCollectionInfo(ctx, name)
	if err == nil {
		return nil
	}
	if status.Code(err) != grpccodes.NotFound {
		return fmt.Errorf("checking collection %s: %w", name, err)
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.embedder.Dimensions()),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", name, err)
	}
	return nil
}

func (s *QdrantStore) IndexChunks(ctx context.Context, project string, chunks []analyzer.Chunk) ([]string, error) {
	ctx, span := tracer.Start(ctx, "vectorstore.IndexChunks")
	defer span.End()

	if len(chunks) == 0 {
		return nil, ErrEmptyChunks
	}
	name, err := CollectionName(project)
	if err != nil {
		return nil, err
	}
	if err := s.ensureCollection(ctx, name); err != nil {
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

	points := make([]*qdrant.PointStruct, len(chunks))
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID(c.ID)),
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: chunkPayload(c),
		}
		ids[i] = c.ID
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: name,
		Points:         points,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("upserting points: %w", err)
	}

	span.SetAttributes(attribute.Int("chunks.indexed", len(chunks)))
	span.SetStatus(codes.Ok, "")
	return ids, nil
}

func (s *QdrantStore) Search(ctx context.Context, project, query string, k int, filters map[string]string) ([]SearchResult, error) {
	ctx, span := tracer.Start(ctx, "vectorstore.Search")
	defer span.End()

	name, err := CollectionName(project)
	if err != nil {
		return nil, err
	}
	if _, err := s.client.GetCollectionInfo(ctx, name); err != nil {
		if status.Code(err) == grpccodes.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
		}
		return nil, fmt.Errorf("checking collection %s: %w", name, err)
	}

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	req := &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(filters) > 0 {
		req.Filter = payloadFilter(filters)
	}

	scored, err := s.client.Query(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying points: %w", err)
	}

	out := make([]SearchResult, 0, len(scored))
	for _, point := range scored {
		out = append(out, resultFromPayload(point))
	}

	span.SetAttributes(attribute.Int("results", len(out)))
	span.SetStatus(codes.Ok, "")
	return out, nil
}

func (s *QdrantStore) DeleteChunks(ctx context.Context, project string, ids []string) error {
	name, err := CollectionName(project)
	if err != nil {
		return err
	}

	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: name,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{
					Must: []*qdrant.Condition{{
						ConditionOneOf: &qdrant.Condition_Field{
							Field: &qdrant.FieldCondition{
								Key: "id",
								Match: &qdrant.Match{
									MatchValue: &qdrant.Match_Keywords{
										Keywords: &qdrant.RepeatedStrings{Strings: ids},
									},
								},
							},
						},
					}},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("deleting points: %w", err)
	}
	return nil
}

func (s *QdrantStore) DropProject(ctx context.Context, project string) error {
	name, err := CollectionName(project)
	if err != nil {
		return err
	}
	if err := s.client.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("deleting collection %s: %w", name, err)
	}
	return nil
}

func (s *QdrantStore) ListProjects(ctx context.Context) ([]string, error) {
	names, err := s.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	var projects []string
	for _, name := range names {
		if project, ok := ProjectFromCollection(name); ok {
			projects = append(projects, project)
		}
	}
	return projects, nil
}

func (s *QdrantStore) Info(ctx context.Context, project string) (*CollectionInfo, error) {
	name, err := CollectionName(project)
	if err != nil {
		return nil, err
	}
	info, err := s.client.GetCollectionInfo(ctx, name)
	if err != nil {
		if status.Code(err) == grpccodes.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
		}
		return nil, fmt.Errorf("getting collection info: %w", err)
	}
	return &CollectionInfo{
		Name:       name,
		PointCount: int(info.GetPointsCount()),
		VectorSize: s.embedder.Dimensions(),
	}, nil
}

func (s *QdrantStore) Healthy(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	return nil
}

func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func chunkPayload(c analyzer.Chunk) map[string]*qdrant.Value {
	return map[string]*qdrant.Value{
		"id":         {Kind: &qdrant.Value_StringValue{StringValue: c.ID}},
		"name":       {Kind: &qdrant.Value_StringValue{StringValue: c.Name}},
		"kind":       {Kind: &qdrant.Value_StringValue{StringValue: string(c.Kind)}},
		"path":       {Kind: &qdrant.Value_StringValue{StringValue: c.Path}},
		"language":   {Kind: &qdrant.Value_StringValue{StringValue: string(c.Language)}},
		"start_line": {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(c.StartLine)}},
		"end_line":   {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(c.EndLine)}},
		"content":    {Kind: &qdrant.Value_StringValue{StringValue: c.Content}},
	}
}

func payloadFilter(filters map[string]string) *qdrant.Filter {
	conditions := make([]*qdrant.Condition, 0, len(filters))
	for key, value := range filters {
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: key,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{Keyword: value},
					},
				},
			},
		})
	}
	return &qdrant.Filter{Must: conditions}
}

func resultFromPayload(point *qdrant.ScoredPoint) SearchResult {
	payload := point.GetPayload()
	str := func(key string) string {
		if v, ok := payload[key]; ok {
			return v.GetStringValue()
		}
		return ""
	}
	num := func(key string) int {
		if v, ok := payload[key]; ok {
			return int(v.GetIntegerValue())
		}
		return 0
	}
	return SearchResult{
		ID:        str("id"),
		Score:     point.GetScore(),
		Name:      str("name"),
		Kind:      str("kind"),
		Path:      str("path"),
		Language:  str("language"),
		StartLine: num("start_line"),
		EndLine:   num("end_line"),
		Content:   str("content"),
	}
}
