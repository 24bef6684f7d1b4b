package config

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := defaultConfig()

	assert.Equal(t, 7432, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, "devmind", cfg.Observability.ServiceName)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "chromem", cfg.VectorStore.Provider)
	assert.Equal(t, "localhost", cfg.VectorStore.Qdrant.Host)
	assert.Equal(t, 6334, cfg.VectorStore.Qdrant.Port)
	assert.Equal(t, "openai", cfg.Embeddings.Provider)
	assert.Equal(t, "BAAI/bge-small-en-v1.5", cfg.Embeddings.Model)
	assert.Equal(t, 32, cfg.Embeddings.BatchSize)
	assert.Equal(t, 1024, cfg.Analyzer.MaxFileSizeKB)
	assert.Contains(t, cfg.Analyzer.SkipDirs, "node_modules")
	assert.Equal(t, 2*time.Second, cfg.Watch.Debounce.Duration())
	assert.NotEmpty(t, cfg.History.DatabasePath)
	assert.NotEmpty(t, cfg.Session.StateDir)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(cfg *Config) {},
		},
		{
			name:    "port out of range",
			mutate:  func(cfg *Config) { cfg.Server.Port = 70000 },
			wantErr: "out of range",
		},
		{
			name:    "zero shutdown timeout",
			mutate:  func(cfg *Config) { cfg.Server.ShutdownTimeout = 0 },
			wantErr: "shutdown timeout",
		},
		{
			name: "telemetry without service name",
			mutate: func(cfg *Config) {
				cfg.Observability.EnableTelemetry = true
				cfg.Observability.ServiceName = ""
			},
			wantErr: "service name required",
		},
		{
			name:    "unknown log level",
			mutate:  func(cfg *Config) { cfg.Logging.Level = "verbose" },
			wantErr: "unknown log level",
		},
		{
			name:    "unknown vector store provider",
			mutate:  func(cfg *Config) { cfg.VectorStore.Provider = "pinecone" },
			wantErr: "unknown vector store provider",
		},
		{
			name: "qdrant without host",
			mutate: func(cfg *Config) {
				cfg.VectorStore.Provider = "qdrant"
				cfg.VectorStore.Qdrant.Host = ""
			},
			wantErr: "qdrant host required",
		},
		{
			name:    "unknown embeddings provider",
			mutate:  func(cfg *Config) { cfg.Embeddings.Provider = "cohere" },
			wantErr: "unknown embeddings provider",
		},
		{
			name: "openai provider without base url",
			mutate: func(cfg *Config) {
				cfg.Embeddings.Provider = "openai"
				cfg.Embeddings.BaseURL = ""
			},
			wantErr: "base URL required",
		},
		{
			name:    "zero batch size",
			mutate:  func(cfg *Config) { cfg.Embeddings.BatchSize = 0 },
			wantErr: "batch size",
		},
		{
			name: "graph uri without username",
			mutate: func(cfg *Config) {
				cfg.Graph.URI = "bolt://localhost:7687"
				cfg.Graph.Username = ""
			},
			wantErr: "graph username required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidCollectionName(t *testing.T) {
	assert.True(t, ValidCollectionName("devmind_myproject"))
	assert.True(t, ValidCollectionName("a"))
	assert.False(t, ValidCollectionName(""))
	assert.False(t, ValidCollectionName("Has-Caps"))
	assert.False(t, ValidCollectionName("spaces here"))
	assert.False(t, ValidCollectionName(strings.Repeat("a", 65)))
}

func TestSecretRedaction(t *testing.T) {
	s := Secret("hunter2")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "hunter2", s.Value())
	assert.True(t, s.IsSet())

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `"[REDACTED]"`, string(data))

	var empty Secret
	assert.Equal(t, "", empty.String())
	assert.False(t, empty.IsSet())
}

func TestDurationText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	require.Error(t, d.UnmarshalText([]byte("-5s")))
	require.Error(t, d.UnmarshalText([]byte("not-a-duration")))

	out, err := Duration(time.Minute).MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m0s", string(out))
}
