// Package history tracks completed analyses per project in SQLite,
// backing incremental re-analysis decisions.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/yaverlabs/devmind/internal/config"
	"github.com/yaverlabs/devmind/internal/logging"
)

var tracer = otel.Tracer("devmind/history")

// ErrInvalidInput indicates a missing project or commit argument.
var ErrInvalidInput = errors.New("invalid history input")

// Reason explains a ShouldReanalyze decision.
type Reason string

const (
	// ReasonFirstTime means the project has never been analyzed.
	ReasonFirstTime Reason = "FIRST_TIME"
	// ReasonNoChanges means HEAD matches the last analyzed commit.
	ReasonNoChanges Reason = "NO_CHANGES"
	// ReasonNewCommit means HEAD moved since the last analysis.
	ReasonNewCommit Reason = "NEW_COMMIT"
)

// AnalysisType distinguishes full from incremental runs.
type AnalysisType string

const (
	AnalysisFull        AnalysisType = "full"
	AnalysisIncremental AnalysisType = "incremental"
)

// Analysis is one recorded analysis run.
type Analysis struct {
	ID            int64         `json:"id"`
	Project       string        `json:"project"`
	RepoPath      string        `json:"repo_path"`
	CommitHash    string        `json:"commit_hash"`
	Timestamp     time.Time     `json:"timestamp"`
	Type          AnalysisType  `json:"type"`
	FilesCount    int           `json:"files_count"`
	FilesAnalyzed int           `json:"files_analyzed"`
	Duration      time.Duration `json:"duration"`
}

// ProjectMeta is the per-project rollup.
type ProjectMeta struct {
	Project       string    `json:"project"`
	RepoPath      string    `json:"repo_path"`
	LastCommit    string    `json:"last_commit"`
	LastAnalysis  time.Time `json:"last_analysis"`
	TotalAnalyses int       `json:"total_analyses"`
}

// Store persists analysis history. Safe for concurrent use, SQLite
// serializes writers behind the busy timeout.
type Store struct {
	db     *sql.DB
	logger *logging.Logger
}

// Open creates or opens the history database and applies the schema.
func Open(cfg config.HistoryConfig, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0700); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("history: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS project_analyses (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			project        TEXT NOT NULL,
			repo_path      TEXT NOT NULL,
			commit_hash    TEXT NOT NULL,
			timestamp      TEXT NOT NULL,
			analysis_type  TEXT NOT NULL,
			files_count    INTEGER NOT NULL DEFAULT 0,
			files_analyzed INTEGER NOT NULL DEFAULT 0,
			duration_secs  REAL NOT NULL DEFAULT 0,
			UNIQUE(project, commit_hash)
		);

		CREATE INDEX IF NOT EXISTS idx_analyses_project_ts
			ON project_analyses(project, timestamp DESC);

		CREATE TABLE IF NOT EXISTS project_metadata (
			project        TEXT PRIMARY KEY,
			repo_path      TEXT NOT NULL,
			last_commit    TEXT,
			last_analysis  TEXT,
			total_analyses INTEGER NOT NULL DEFAULT 0
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrating history schema: %w", err)
	}
	return nil
}

// Record stores a completed analysis and bumps the project rollup.
// Re-analyzing the same commit overwrites the earlier row.
func (s *Store) Record(ctx context.Context, a Analysis) error {
	ctx, span := tracer.Start(ctx, "history.Record")
	defer span.End()

	if a.Project == "" || a.CommitHash == "" {
		return fmt.Errorf("%w: project and commit required", ErrInvalidInput)
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	if a.Type == "" {
		a.Type = AnalysisFull
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO project_analyses
			(project, repo_path, commit_hash, timestamp, analysis_type, files_count, files_analyzed, duration_secs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project, commit_hash) DO UPDATE SET
			timestamp = excluded.timestamp,
			analysis_type = excluded.analysis_type,
			files_count = excluded.files_count,
			files_analyzed = excluded.files_analyzed,
			duration_secs = excluded.duration_secs
	`, a.Project, a.RepoPath, a.CommitHash, a.Timestamp.UTC().Format(time.RFC3339Nano),
		string(a.Type), a.FilesCount, a.FilesAnalyzed, a.Duration.Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("recording analysis: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO project_metadata
			(project, repo_path, last_commit, last_analysis, total_analyses)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(project) DO UPDATE SET
			repo_path = excluded.repo_path,
			last_commit = excluded.last_commit,
			last_analysis = excluded.last_analysis,
			total_analyses = total_analyses + 1
	`, a.Project, a.RepoPath, a.CommitHash, a.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("updating project metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing analysis record: %w", err)
	}

	s.logger.Info(ctx, "recorded analysis",
		zap.String("project", a.Project),
		zap.String("commit", a.CommitHash),
		zap.String("type", string(a.Type)),
	)
	span.SetStatus(codes.Ok, "")
	return nil
}

// LastAnalysis returns the project rollup, or nil when the project
// has never been analyzed.
func (s *Store) LastAnalysis(ctx context.Context, project string) (*ProjectMeta, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT project, repo_path, COALESCE(last_commit, ''), COALESCE(last_analysis, ''), total_analyses
		FROM project_metadata WHERE project = ?
	`, project)

	meta, err := scanMeta(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying last analysis: %w", err)
	}
	return meta, nil
}

// History returns recent analyses for a project, newest first.
func (s *Store) History(ctx context.Context, project string, limit int) ([]Analysis, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project, repo_path, commit_hash, timestamp, analysis_type, files_count, files_analyzed, duration_secs
		FROM project_analyses
		WHERE project = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, project, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var out []Analysis
	for rows.Next() {
		var a Analysis
		var ts, typ string
		var secs float64
		if err := rows.Scan(&a.ID, &a.Project, &a.RepoPath, &a.CommitHash, &ts, &typ, &a.FilesCount, &a.FilesAnalyzed, &secs); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		a.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		a.Type = AnalysisType(typ)
		a.Duration = time.Duration(secs * float64(time.Second))
		out = append(out, a)
	}
	return out, rows.Err()
}

// Projects lists all known projects, most recently analyzed first.
func (s *Store) Projects(ctx context.Context) ([]ProjectMeta, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project, repo_path, COALESCE(last_commit, ''), COALESCE(last_analysis, ''), total_analyses
		FROM project_metadata
		ORDER BY last_analysis DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying projects: %w", err)
	}
	defer rows.Close()

	var out []ProjectMeta
	for rows.Next() {
		meta, err := scanMeta(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning project row: %w", err)
		}
		out = append(out, *meta)
	}
	return out, rows.Err()
}

// Cleanup deletes old analyses for a project, keeping the newest
// keepLast rows. Returns the number of deleted rows.
func (s *Store) Cleanup(ctx context.Context, project string, keepLast int) (int64, error) {
	if keepLast <= 0 {
		keepLast = 10
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM project_analyses
		WHERE project = ? AND id NOT IN (
			SELECT id FROM project_analyses
			WHERE project = ?
			ORDER BY timestamp DESC
			LIMIT ?
		)
	`, project, project, keepLast)
	if err != nil {
		return 0, fmt.Errorf("cleaning up analyses: %w", err)
	}
	deleted, _ := res.RowsAffected()
	if deleted > 0 {
		s.logger.Info(ctx, "cleaned up old analyses",
			zap.String("project", project),
			zap.Int64("deleted", deleted),
		)
	}
	return deleted, nil
}

// ShouldReanalyze decides whether the project needs a fresh analysis
// at the given commit.
func (s *Store) ShouldReanalyze(ctx context.Context, project, currentCommit string) (bool, Reason, error) {
	meta, err := s.LastAnalysis(ctx, project)
	if err != nil {
		return false, "", err
	}
	if meta == nil || meta.LastCommit == "" {
		return true, ReasonFirstTime, nil
	}
	if meta.LastCommit == currentCommit {
		return false, ReasonNoChanges, nil
	}
	return true, ReasonNewCommit, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeta(row rowScanner) (*ProjectMeta, error) {
	var meta ProjectMeta
	var last string
	if err := row.Scan(&meta.Project, &meta.RepoPath, &meta.LastCommit, &last, &meta.TotalAnalyses); err != nil {
		return nil, err
	}
	if last != "" {
		meta.LastAnalysis, _ = time.Parse(time.RFC3339Nano, last)
	}
	return &meta, nil
}
