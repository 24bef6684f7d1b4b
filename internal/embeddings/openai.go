package embeddings

import (
	"context"
	"fmt"
	"strings"
	"time"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/yaverlabs/devmind/internal/config"
)

// maxInputBytes caps a single input text. Code chunks longer than
// this are truncated before embedding; the embedding server would
// truncate at the token level anyway.
const maxInputBytes = 8192

const defaultBatchSize = 32

// OpenAIProvider generates embeddings through any OpenAI-compatible
// endpoint. A local TEI server works the same way, it just ignores
// the API key.
type OpenAIProvider struct {
	embedder  *lcembeddings.EmbedderImpl
	model     string
	dimension int
	batchSize int
	metrics   *Metrics
}

// NewOpenAIProvider builds the langchaingo client for cfg.BaseURL.
func NewOpenAIProvider(cfg config.EmbeddingsConfig) (*OpenAIProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model required", ErrInvalidConfig)
	}

	apiKey := cfg.APIKey.Value()
	if apiKey == "" {
		// langchaingo requires a token, TEI servers ignore it
		apiKey = "placeholder"
	}

	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithModel(cfg.Model),
		openai.WithToken(apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}

	embedder, err := lcembeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	return &OpenAIProvider{
		embedder:  embedder,
		model:     cfg.Model,
		dimension: detectDimension(cfg.Model),
		batchSize: batchSize,
		metrics:   NewMetrics(),
	}, nil
}

// EmbedDocuments embeds texts in configured-size batches.
func (p *OpenAIProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	var genErr error
	defer func() {
		p.metrics.RecordGeneration(ctx, p.model, "embed_documents", time.Since(start), len(texts), genErr)
	}()

	if len(texts) == 0 {
		genErr = fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
		return nil, genErr
	}

	prepared := make([]string, len(texts))
	for i, t := range texts {
		prepared[i] = prepareInput(t)
	}

	out := make([][]float32, 0, len(prepared))
	for begin := 0; begin < len(prepared); begin += p.batchSize {
		end := min(begin+p.batchSize, len(prepared))
		vectors, err := p.embedder.EmbedDocuments(ctx, prepared[begin:end])
		if err != nil {
			genErr = fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
			return nil, genErr
		}
		out = append(out, vectors...)
	}
	return out, nil
}

// EmbedQuery embeds a single query string.
func (p *OpenAIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	var genErr error
	defer func() {
		p.metrics.RecordGeneration(ctx, p.model, "embed_query", time.Since(start), 1, genErr)
	}()

	if text == "" {
		genErr = fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
		return nil, genErr
	}

	vector, err := p.embedder.EmbedQuery(ctx, prepareInput(text))
	if err != nil {
		genErr = fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
		return nil, genErr
	}
	return vector, nil
}

// Dimensions returns the embedding dimension for the configured model.
func (p *OpenAIProvider) Dimensions() int {
	return p.dimension
}

// Close is a no-op, the provider holds only an HTTP client.
func (p *OpenAIProvider) Close() error { return nil }

// prepareInput trims and truncates a text for embedding. Truncation
// backs up to a rune boundary so the payload stays valid UTF-8.
func prepareInput(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= maxInputBytes {
		return text
	}
	cut := maxInputBytes
	for cut > 0 && text[cut]&0xC0 == 0x80 {
		cut--
	}
	return text[:cut]
}
