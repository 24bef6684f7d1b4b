package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yaverlabs/devmind/internal/config"
)

// fakeEmbeddingServer speaks just enough of the OpenAI embeddings
// API for the provider under test.
func fakeEmbeddingServer(t *testing.T, requests *atomic.Int64) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/embeddings", func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type datum struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		resp := struct {
			Object string  `json:"object"`
			Data   []datum `json:"data"`
			Model  string  `json:"model"`
		}{Object: "list", Model: req.Model}
		for i := range req.Input {
			resp.Data = append(resp.Data, datum{
				Object:    "embedding",
				Embedding: []float32{float32(i), 0.5, 1},
				Index:     i,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	})
	return httptest.NewServer(mux)
}

func TestOpenAIProviderEmbedDocumentsBatches(t *testing.T) {
	var requests atomic.Int64
	server := fakeEmbeddingServer(t, &requests)
	defer server.Close()

	provider, err := NewOpenAIProvider(config.EmbeddingsConfig{
		BaseURL:   server.URL,
		Model:     "BAAI/bge-small-en-v1.5",
		BatchSize: 2,
	})
	require.NoError(t, err)
	defer provider.Close()

	texts := []string{"one", "two", "three", "four", "five"}
	vectors, err := provider.EmbedDocuments(context.Background(), texts)
	require.NoError(t, err)

	require.Len(t, vectors, len(texts))
	for _, v := range vectors {
		assert.Len(t, v, 3)
	}
	assert.Equal(t, int64(3), requests.Load())
}

func TestOpenAIProviderEmbedQuery(t *testing.T) {
	var requests atomic.Int64
	server := fakeEmbeddingServer(t, &requests)
	defer server.Close()

	provider, err := NewOpenAIProvider(config.EmbeddingsConfig{
		BaseURL: server.URL,
		Model:   "BAAI/bge-small-en-v1.5",
	})
	require.NoError(t, err)
	defer provider.Close()

	vector, err := provider.EmbedQuery(context.Background(), "where is login handled")
	require.NoError(t, err)
	assert.Len(t, vector, 3)
	assert.Equal(t, int64(1), requests.Load())
}

func TestOpenAIProviderEmptyInput(t *testing.T) {
	provider, err := NewOpenAIProvider(config.EmbeddingsConfig{
		BaseURL: "http://localhost:8080",
		Model:   "BAAI/bge-small-en-v1.5",
	})
	require.NoError(t, err)
	defer provider.Close()

	_, err = provider.EmbedDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = provider.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestNewOpenAIProviderValidation(t *testing.T) {
	_, err := NewOpenAIProvider(config.EmbeddingsConfig{Model: "m"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewOpenAIProvider(config.EmbeddingsConfig{BaseURL: "http://localhost:8080"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestPrepareInput(t *testing.T) {
	assert.Equal(t, "hello", prepareInput("  hello\n"))

	long := strings.Repeat("x", maxInputBytes+100)
	assert.Len(t, prepareInput(long), maxInputBytes)

	// multi-byte runes are not split mid-sequence
	multibyte := strings.Repeat("é", maxInputBytes)
	truncated := prepareInput(multibyte)
	assert.LessOrEqual(t, len(truncated), maxInputBytes)
	assert.True(t, strings.HasSuffix(truncated, "é"))
}
