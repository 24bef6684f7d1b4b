package analyzer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/yaverlabs/devmind/internal/config"
	"github.com/yaverlabs/devmind/internal/logging"
)

var tracer = otel.Tracer("devmind/analyzer")

// ErrInvalidPath indicates the analysis root is missing or not a directory.
var ErrInvalidPath = errors.New("invalid repository path")

// Service analyzes repositories and single files.
type Service interface {
	// AnalyzeRepository walks root and analyzes every supported source
	// file, consulting the content-hash cache when enabled.
	AnalyzeRepository(ctx context.Context, root string) (*RepositoryAnalysis, error)

	// AnalyzeFile analyzes one file and returns its analysis together
	// with its embedding chunks.
	AnalyzeFile(ctx context.Context, root, relPath string) (*FileAnalysis, []Chunk, error)
}

type service struct {
	cfg      config.AnalyzerConfig
	parser   *Parser
	cache    *Cache
	skipDirs map[string]bool
	logger   *logging.Logger
}

// NewService creates an analyzer service. The cache is optional and
// controlled by cfg.CacheEnabled.
func NewService(cfg config.AnalyzerConfig, logger *logging.Logger) (Service, error) {
	if err := validatePatterns(cfg.ExcludePatterns); err != nil {
		return nil, err
	}

	skipDirs := make(map[string]bool, len(cfg.SkipDirs))
	for _, d := range cfg.SkipDirs {
		skipDirs[d] = true
	}

	s := &service{
		cfg:      cfg,
		parser:   NewParser(),
		skipDirs: skipDirs,
		logger:   logger.Named("analyzer"),
	}

	if cfg.CacheEnabled {
		cache, err := NewCache(cfg.CacheDir)
		if err != nil {
			return nil, err
		}
		s.cache = cache
	}

	return s, nil
}

func (s *service) AnalyzeRepository(ctx context.Context, root string) (*RepositoryAnalysis, error) {
	ctx, span := tracer.Start(ctx, "analyzer.AnalyzeRepository")
	defer span.End()

	cleanRoot, err := validateRoot(root)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result := &RepositoryAnalysis{
		Root:       cleanRoot,
		AnalyzedAt: time.Now().UTC(),
	}
	maxSize := int64(s.cfg.MaxFileSizeKB) * 1024

	err = filepath.Walk(cleanRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if s.skipDirs[filepath.Base(path)] {
				return filepath.SkipDir
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		relPath, err := filepath.Rel(cleanRoot, path)
		if err != nil {
			return fmt.Errorf("computing relative path: %w", err)
		}

		if _, ok := DetectLanguage(relPath); !ok {
			return nil
		}
		if info.Size() > maxSize || s.excluded(relPath) {
			result.Skipped++
			return nil
		}

		analysis, cached, err := s.analyzeOne(ctx, path, relPath)
		if err != nil {
			s.logger.Warn(ctx, "skipping unparseable file",
				zap.String("path", relPath), zap.Error(err))
			result.Skipped++
			return nil
		}
		if cached {
			result.CacheHits++
		}
		result.Files = append(result.Files, *analysis)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("walking repository: %w", err)
	}

	span.SetAttributes(
		attribute.Int("files.analyzed", len(result.Files)),
		attribute.Int("files.skipped", result.Skipped),
		attribute.Int("cache.hits", result.CacheHits),
	)
	span.SetStatus(codes.Ok, "")

	s.logger.Info(ctx, "repository analyzed",
		zap.String("root", cleanRoot),
		zap.Int("files", len(result.Files)),
		zap.Int("skipped", result.Skipped),
		zap.Int("cache_hits", result.CacheHits))

	return result, nil
}

func (s *service) AnalyzeFile(ctx context.Context, root, relPath string) (*FileAnalysis, []Chunk, error) {
	ctx, span := tracer.Start(ctx, "analyzer.AnalyzeFile")
	defer span.End()

	path := filepath.Join(root, relPath)
	content, err := os.ReadFile(path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, fmt.Errorf("reading %s: %w", relPath, err)
	}
	if !utf8.Valid(content) {
		return nil, nil, fmt.Errorf("%s is not valid UTF-8", relPath)
	}

	analysis, err := s.parser.ParseFile(ctx, relPath, content)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}
	if s.cache != nil {
		if err := s.cache.Put(analysis); err != nil {
			s.logger.Warn(ctx, "cache write failed", zap.Error(err))
		}
	}

	span.SetStatus(codes.Ok, "")
	return analysis, ChunkAnalysis(analysis, content), nil
}

// analyzeOne reads, hashes, and parses one file, preferring the cache.
func (s *service) analyzeOne(ctx context.Context, path, relPath string) (*FileAnalysis, bool, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, false, err
	}
	if !utf8.Valid(content) {
		return nil, false, fmt.Errorf("not valid UTF-8")
	}

	hash := HashContent(content)
	if s.cache != nil {
		if cached, ok := s.cache.Get(hash); ok && cached.Path == relPath {
			return cached, true, nil
		}
	}

	analysis, err := s.parser.ParseFile(ctx, relPath, content)
	if err != nil {
		return nil, false, err
	}
	if s.cache != nil {
		if err := s.cache.Put(analysis); err != nil {
			s.logger.Warn(ctx, "cache write failed", zap.Error(err))
		}
	}
	return analysis, false, nil
}

func (s *service) excluded(relPath string) bool {
	basename := filepath.Base(relPath)
	for _, pattern := range s.cfg.ExcludePatterns {
		if matched, _ := filepath.Match(pattern, basename); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, relPath); matched {
			return true
		}
		if strings.Contains(pattern, "**") {
			prefix := strings.TrimSuffix(pattern, "/**")
			if strings.HasPrefix(relPath, prefix+string(filepath.Separator)) {
				return true
			}
		}
	}
	return false
}

func validateRoot(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: path cannot be empty", ErrInvalidPath)
	}
	cleanPath := filepath.Clean(path)
	info, err := os.Stat(cleanPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s does not exist", ErrInvalidPath, cleanPath)
		}
		return "", fmt.Errorf("stat path: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrInvalidPath, cleanPath)
	}
	return cleanPath, nil
}

func validatePatterns(patterns []string) error {
	for _, pattern := range patterns {
		if _, err := filepath.Match(pattern, "probe"); err != nil {
			return fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
	}
	return nil
}
