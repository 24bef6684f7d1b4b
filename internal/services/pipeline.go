package services

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/yaverlabs/devmind/internal/analyzer"
	"github.com/yaverlabs/devmind/internal/graph"
	"github.com/yaverlabs/devmind/internal/history"
	"github.com/yaverlabs/devmind/internal/incremental"
	"github.com/yaverlabs/devmind/internal/logging"
	"github.com/yaverlabs/devmind/internal/vectorstore"
)

var tracer = otel.Tracer("devmind/services")

// AnalyzeOptions controls one analysis run.
type AnalyzeOptions struct {
	Project string
	Path    string
	// Force runs a full analysis even when nothing changed.
	Force bool
}

// AnalyzeReport summarizes one analysis run.
type AnalyzeReport struct {
	Project       string               `json:"project"`
	Path          string               `json:"path"`
	Commit        string               `json:"commit,omitempty"`
	Branch        string               `json:"branch,omitempty"`
	Skipped       bool                 `json:"skipped"`
	Reason        incremental.Reason   `json:"reason,omitempty"`
	Type          history.AnalysisType `json:"type"`
	FilesTotal    int                  `json:"files_total"`
	FilesAnalyzed int                  `json:"files_analyzed"`
	Functions     int                  `json:"functions"`
	CallEdges     int                  `json:"call_edges"`
	ChunksIndexed int                  `json:"chunks_indexed"`
	Duration      time.Duration        `json:"duration"`
}

// Pipeline runs the end-to-end analysis flow: incremental skip check,
// parsing, graph upserts, call linking, vector indexing, and the
// history record.
type Pipeline struct {
	analyzer    analyzer.Service
	graph       graph.Store
	vector      vectorstore.Store
	history     *history.Store
	incremental *incremental.Manager
	logger      *logging.Logger
}

// NewPipeline wires the analysis pipeline. The vector store and history
// store may be nil; indexing and recording are then skipped.
func NewPipeline(
	svc analyzer.Service,
	store graph.Store,
	vector vectorstore.Store,
	hist *history.Store,
	incr *incremental.Manager,
	logger *logging.Logger,
) (*Pipeline, error) {
	if svc == nil {
		return nil, fmt.Errorf("analyzer service required")
	}
	if store == nil {
		return nil, fmt.Errorf("graph store required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pipeline{
		analyzer:    svc,
		graph:       store,
		vector:      vector,
		history:     hist,
		incremental: incr,
		logger:      logger,
	}, nil
}

// Analyze analyzes the repository at opts.Path under the given project
// name. Unchanged repositories are skipped unless opts.Force is set;
// repositories with a recorded prior commit get an incremental run over
// the changed files only.
func (p *Pipeline) Analyze(ctx context.Context, opts AnalyzeOptions) (*AnalyzeReport, error) {
	ctx, span := tracer.Start(ctx, "services.Analyze")
	defer span.End()
	span.SetAttributes(
		attribute.String("analyze.project", opts.Project),
		attribute.String("analyze.path", opts.Path),
	)

	start := time.Now()
	state := incremental.InspectRepo(opts.Path)
	report := &AnalyzeReport{
		Project: opts.Project,
		Path:    opts.Path,
		Commit:  state.Commit,
		Branch:  state.Branch,
		Type:    history.AnalysisFull,
	}

	if !opts.Force && p.incremental != nil {
		skip, reason, err := p.incremental.ShouldSkip(ctx, opts.Project, opts.Path)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		report.Reason = reason
		if skip {
			report.Skipped = true
			report.Duration = time.Since(start)
			p.logger.Info(ctx, "analysis skipped",
				zap.String("project", opts.Project),
				zap.String("reason", string(reason)),
			)
			span.SetStatus(codes.Ok, "")
			return report, nil
		}
	}

	var changed []string
	if !opts.Force && p.incremental != nil {
		var err error
		changed, err = p.incremental.ChangedFiles(ctx, opts.Project, opts.Path)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	var chunks []analyzer.Chunk
	if changed == nil {
		repoAnalysis, err := p.analyzer.AnalyzeRepository(ctx, opts.Path)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		report.FilesTotal = len(repoAnalysis.Files) + repoAnalysis.Skipped
		report.FilesAnalyzed = len(repoAnalysis.Files)
		report.Functions = repoAnalysis.FunctionCount()
		for i := range repoAnalysis.Files {
			fa := &repoAnalysis.Files[i]
			if err := p.graph.UpsertFileAnalysis(ctx, opts.Project, fa); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return nil, fmt.Errorf("upserting %s: %w", fa.Path, err)
			}
			chunks = append(chunks, analyzer.ChunkAnalysis(fa, nil)...)
		}
	} else {
		report.Type = history.AnalysisIncremental
		report.FilesTotal = len(changed)
		for _, rel := range changed {
			fa, fileChunks, err := p.analyzer.AnalyzeFile(ctx, opts.Path, rel)
			if err != nil {
				p.logger.Warn(ctx, "skipping changed file",
					zap.String("path", rel), zap.Error(err))
				continue
			}
			if err := p.graph.UpsertFileAnalysis(ctx, opts.Project, fa); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return nil, fmt.Errorf("upserting %s: %w", rel, err)
			}
			report.FilesAnalyzed++
			report.Functions += len(fa.Functions)
			chunks = append(chunks, fileChunks...)
		}
	}

	edges, err := p.graph.LinkCalls(ctx, opts.Project)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("linking calls: %w", err)
	}
	report.CallEdges = edges
	if err := p.graph.TagLayers(ctx, opts.Project); err != nil {
		p.logger.Warn(ctx, "tagging layers failed", zap.Error(err))
	}

	if p.vector != nil && len(chunks) > 0 {
		ids, err := p.vector.IndexChunks(ctx, opts.Project, chunks)
		if err != nil {
			p.logger.Warn(ctx, "vector indexing failed", zap.Error(err))
		} else {
			report.ChunksIndexed = len(ids)
		}
	}

	report.Duration = time.Since(start)

	if p.history != nil && state.Commit != "" {
		err := p.history.Record(ctx, history.Analysis{
			Project:       opts.Project,
			RepoPath:      opts.Path,
			CommitHash:    state.Commit,
			Type:          report.Type,
			FilesCount:    report.FilesTotal,
			FilesAnalyzed: report.FilesAnalyzed,
			Duration:      report.Duration,
		})
		if err != nil {
			p.logger.Warn(ctx, "recording analysis failed", zap.Error(err))
		}
	}

	p.logger.Info(ctx, "analysis complete",
		zap.String("project", opts.Project),
		zap.String("type", string(report.Type)),
		zap.Int("files", report.FilesAnalyzed),
		zap.Int("functions", report.Functions),
		zap.Int("call_edges", report.CallEdges),
		zap.Int("chunks", report.ChunksIndexed),
		zap.Duration("duration", report.Duration),
	)
	span.SetAttributes(
		attribute.Int("analyze.files", report.FilesAnalyzed),
		attribute.Int("analyze.call_edges", report.CallEdges),
	)
	span.SetStatus(codes.Ok, "")
	return report, nil
}

// ReanalyzeFiles re-analyzes a batch of changed files for a project,
// used by the filesystem watcher. Failures on individual files are
// logged and skipped.
func (p *Pipeline) ReanalyzeFiles(ctx context.Context, project, root string, paths []string) error {
	ctx, span := tracer.Start(ctx, "services.ReanalyzeFiles")
	defer span.End()

	var chunks []analyzer.Chunk
	analyzed := 0
	for _, rel := range paths {
		fa, fileChunks, err := p.analyzer.AnalyzeFile(ctx, root, rel)
		if err != nil {
			p.logger.Warn(ctx, "re-analysis failed",
				zap.String("path", rel), zap.Error(err))
			continue
		}
		if err := p.graph.UpsertFileAnalysis(ctx, project, fa); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("upserting %s: %w", rel, err)
		}
		analyzed++
		chunks = append(chunks, fileChunks...)
	}

	if analyzed == 0 {
		span.SetStatus(codes.Ok, "")
		return nil
	}

	if _, err := p.graph.LinkCalls(ctx, project); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("linking calls: %w", err)
	}
	if p.vector != nil && len(chunks) > 0 {
		if _, err := p.vector.IndexChunks(ctx, project, chunks); err != nil {
			p.logger.Warn(ctx, "vector indexing failed", zap.Error(err))
		}
	}

	p.logger.Info(ctx, "files re-analyzed",
		zap.String("project", project),
		zap.Int("files", analyzed),
	)
	span.SetStatus(codes.Ok, "")
	return nil
}
