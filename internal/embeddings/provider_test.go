package embeddings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yaverlabs/devmind/internal/config"
	"github.com/yaverlabs/devmind/internal/vectorstore"
)

var _ vectorstore.Embedder = (Provider)(nil)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.EmbeddingsConfig
		wantErr bool
	}{
		{
			name: "openai provider",
			cfg: config.EmbeddingsConfig{
				Provider: "openai",
				BaseURL:  "http://localhost:8080",
				Model:    "BAAI/bge-small-en-v1.5",
			},
		},
		{
			name: "tei alias",
			cfg: config.EmbeddingsConfig{
				Provider: "tei",
				BaseURL:  "http://localhost:8080",
				Model:    "BAAI/bge-small-en-v1.5",
			},
		},
		{
			name: "empty provider defaults to openai",
			cfg: config.EmbeddingsConfig{
				BaseURL: "http://localhost:8080",
				Model:   "BAAI/bge-small-en-v1.5",
			},
		},
		{
			name: "missing base URL",
			cfg: config.EmbeddingsConfig{
				Provider: "openai",
				Model:    "BAAI/bge-small-en-v1.5",
			},
			wantErr: true,
		},
		{
			name:    "unknown provider",
			cfg:     config.EmbeddingsConfig{Provider: "mystery"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewProvider(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, provider)
			assert.NoError(t, provider.Close())
		})
	}
}

func TestDetectDimension(t *testing.T) {
	tests := []struct {
		model string
		want  int
	}{
		{"BAAI/bge-small-en-v1.5", 384},
		{"BAAI/bge-base-en-v1.5", 768},
		{"text-embedding-3-small", 1536},
		{"text-embedding-3-large", 3072},
		{"gte-large-en-v1.5", 1024},
		{"something-unknown", 384},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, detectDimension(tt.model))
		})
	}
}
