// Package config provides configuration loading for devmind.
//
// Configuration is read from a YAML file and overridden by environment
// variables, with hardcoded defaults for everything else.
package config

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidConfig indicates the configuration failed validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the complete devmind configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Observability ObservabilityConfig `koanf:"observability"`
	Logging       LoggingConfig       `koanf:"logging"`
	Graph         GraphConfig         `koanf:"graph"`
	VectorStore   VectorStoreConfig   `koanf:"vectorstore"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	Analyzer      AnalyzerConfig      `koanf:"analyzer"`
	History       HistoryConfig       `koanf:"history"`
	Session       SessionConfig       `koanf:"session"`
	Watch         WatchConfig         `koanf:"watch"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
	OTLPEndpoint    string `koanf:"otlp_endpoint"`
}

// LoggingConfig holds structured logging configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json or console
}

// GraphConfig holds code graph storage configuration.
//
// When URI is empty the analyzer falls back to the embedded in-memory
// graph, which covers single-project workflows without a Neo4j server.
type GraphConfig struct {
	URI      string `koanf:"uri"`
	Username string `koanf:"username"`
	Password Secret `koanf:"password"`
	Database string `koanf:"database"`
}

// VectorStoreConfig holds vector store provider selection and settings.
type VectorStoreConfig struct {
	Provider string        `koanf:"provider"` // chromem or qdrant
	Chromem  ChromemConfig `koanf:"chromem"`
	Qdrant   QdrantConfig  `koanf:"qdrant"`
}

// ChromemConfig holds embedded chromem-go vector store configuration.
type ChromemConfig struct {
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// QdrantConfig holds Qdrant gRPC client configuration.
type QdrantConfig struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	UseTLS bool   `koanf:"use_tls"`
	APIKey Secret `koanf:"api_key"`
}

// EmbeddingsConfig holds embedding provider configuration.
type EmbeddingsConfig struct {
	Provider  string `koanf:"provider"` // openai or fastembed
	BaseURL   string `koanf:"base_url"`
	Model     string `koanf:"model"`
	APIKey    Secret `koanf:"api_key"`
	CacheDir  string `koanf:"cache_dir"`
	BatchSize int    `koanf:"batch_size"`
}

// AnalyzerConfig holds source analysis configuration.
type AnalyzerConfig struct {
	MaxFileSizeKB   int      `koanf:"max_file_size_kb"`
	SkipDirs        []string `koanf:"skip_dirs"`
	ExcludePatterns []string `koanf:"exclude_patterns"`
	CacheDir        string   `koanf:"cache_dir"`
	CacheEnabled    bool     `koanf:"cache_enabled"`
}

// HistoryConfig holds project analysis history configuration.
type HistoryConfig struct {
	DatabasePath string `koanf:"database_path"`
}

// SessionConfig holds work session tracking configuration.
type SessionConfig struct {
	StateDir string `koanf:"state_dir"`
}

// WatchConfig holds filesystem watcher configuration.
type WatchConfig struct {
	Debounce Duration `koanf:"debounce"`
}

var validProviders = map[string]bool{
	"chromem": true,
	"qdrant":  true,
}

var validEmbeddingProviders = map[string]bool{
	"openai":    true,
	"fastembed": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// Validate checks the configuration for inconsistent or unsafe values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server port %d out of range 1-65535", ErrInvalidConfig, c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return fmt.Errorf("%w: shutdown timeout must be positive", ErrInvalidConfig)
	}
	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return fmt.Errorf("%w: service name required when telemetry is enabled", ErrInvalidConfig)
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("%w: log format must be json or console, got %q", ErrInvalidConfig, c.Logging.Format)
	}
	if !validProviders[c.VectorStore.Provider] {
		return fmt.Errorf("%w: unknown vector store provider %q", ErrInvalidConfig, c.VectorStore.Provider)
	}
	if c.VectorStore.Provider == "qdrant" {
		if c.VectorStore.Qdrant.Host == "" {
			return fmt.Errorf("%w: qdrant host required", ErrInvalidConfig)
		}
		if c.VectorStore.Qdrant.Port < 1 || c.VectorStore.Qdrant.Port > 65535 {
			return fmt.Errorf("%w: qdrant port %d out of range", ErrInvalidConfig, c.VectorStore.Qdrant.Port)
		}
	}
	if !validEmbeddingProviders[c.Embeddings.Provider] {
		return fmt.Errorf("%w: unknown embeddings provider %q", ErrInvalidConfig, c.Embeddings.Provider)
	}
	if c.Embeddings.Provider == "openai" && c.Embeddings.BaseURL == "" {
		return fmt.Errorf("%w: embeddings base URL required for openai provider", ErrInvalidConfig)
	}
	if c.Embeddings.BatchSize < 1 {
		return fmt.Errorf("%w: embeddings batch size must be at least 1", ErrInvalidConfig)
	}
	if c.Analyzer.MaxFileSizeKB < 1 {
		return fmt.Errorf("%w: analyzer max file size must be at least 1KB", ErrInvalidConfig)
	}
	if c.Graph.URI != "" && c.Graph.Username == "" {
		return fmt.Errorf("%w: graph username required when uri is set", ErrInvalidConfig)
	}
	if c.Watch.Debounce.Duration() < 0 {
		return fmt.Errorf("%w: watch debounce cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// ValidCollectionName reports whether name is usable as a vector store
// collection name. Names are lowercase alphanumeric plus underscore,
// at most 64 characters.
func ValidCollectionName(name string) bool {
	return collectionNamePattern.MatchString(name)
}
