// Package incremental decides how much of a repository needs
// re-analysis by combining git state with recorded analysis history.
package incremental

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/yaverlabs/devmind/internal/analyzer"
	"github.com/yaverlabs/devmind/internal/graph"
	"github.com/yaverlabs/devmind/internal/history"
	"github.com/yaverlabs/devmind/internal/logging"
)

var tracer = otel.Tracer("devmind/incremental")

// Reason explains a skip decision.
type Reason string

const (
	// ReasonNotGitRepo means the root is not under git, analyze fully.
	ReasonNotGitRepo Reason = "NOT_GIT_REPO"
	// ReasonNoCommit means the repo has no HEAD commit yet.
	ReasonNoCommit Reason = "NO_COMMIT"
	// ReasonNoChanges means HEAD matches the last analyzed commit.
	ReasonNoChanges Reason = "NO_CHANGES"
	// ReasonFirstTime means the project has no analysis history.
	ReasonFirstTime Reason = "FIRST_TIME"
	// ReasonNewCommit means HEAD moved since the last analysis.
	ReasonNewCommit Reason = "NEW_COMMIT"
)

// RepoState is a snapshot of the repository's git position.
type RepoState struct {
	IsRepo bool   `json:"is_repo"`
	Branch string `json:"branch,omitempty"`
	Commit string `json:"commit,omitempty"`
}

// InspectRepo reads the current branch and commit. A non-repo or a
// repo without commits reports through the struct, not an error.
func InspectRepo(root string) RepoState {
	repo, err := git.PlainOpen(root)
	if err != nil {
		return RepoState{}
	}
	state := RepoState{IsRepo: true}

	head, err := repo.Head()
	if err != nil {
		return state
	}
	state.Commit = head.Hash().String()
	if head.Name().IsBranch() {
		state.Branch = head.Name().Short()
	}
	return state
}

// Manager combines git inspection, analysis history, and the code
// graph into re-analysis decisions.
type Manager struct {
	history *history.Store
	graph   graph.Store
	logger  *logging.Logger
}

// NewManager creates an incremental analysis manager.
func NewManager(hist *history.Store, store graph.Store, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{history: hist, graph: store, logger: logger}
}

// ShouldSkip reports whether analysis at root can be skipped for the
// project. Only ReasonNoChanges skips; every other reason means the
// analysis should run.
func (m *Manager) ShouldSkip(ctx context.Context, project, root string) (bool, Reason, error) {
	ctx, span := tracer.Start(ctx, "incremental.ShouldSkip")
	defer span.End()

	state := InspectRepo(root)
	if !state.IsRepo {
		return false, ReasonNotGitRepo, nil
	}
	if state.Commit == "" {
		return false, ReasonNoCommit, nil
	}

	need, histReason, err := m.history.ShouldReanalyze(ctx, project, state.Commit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, "", err
	}

	reason := Reason(histReason)
	span.SetAttributes(attribute.String("incremental.reason", string(reason)))
	if !need {
		return true, ReasonNoChanges, nil
	}
	return false, reason, nil
}

// ChangedFiles lists supported source files changed between the last
// analyzed commit and HEAD. Returns nil when the delta cannot be
// determined (no history, unknown commit), meaning a full analysis.
func (m *Manager) ChangedFiles(ctx context.Context, project, root string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "incremental.ChangedFiles")
	defer span.End()

	meta, err := m.history.LastAnalysis(ctx, project)
	if err != nil {
		return nil, err
	}
	if meta == nil || meta.LastCommit == "" {
		return nil, nil
	}

	files, err := diffSince(root, meta.LastCommit)
	if err != nil {
		m.logger.Warn(ctx, "changed-file detection failed, falling back to full analysis",
			zap.String("project", project),
			zap.Error(err),
		)
		return nil, nil
	}

	span.SetAttributes(attribute.Int("incremental.changed_files", len(files)))
	return files, nil
}

// diffSince diffs the tree at sinceCommit against HEAD and keeps
// paths with a supported source language.
func diffSince(root, sinceCommit string) ([]string, error) {
	repo, err := git.PlainOpen(root)
	if err != nil {
		return nil, fmt.Errorf("opening repository: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("reading HEAD: %w", err)
	}
	newCommit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("reading HEAD commit: %w", err)
	}
	oldCommit, err := repo.CommitObject(plumbing.NewHash(sinceCommit))
	if err != nil {
		return nil, fmt.Errorf("reading commit %s: %w", sinceCommit, err)
	}

	patch, err := oldCommit.Patch(newCommit)
	if err != nil {
		return nil, fmt.Errorf("diffing commits: %w", err)
	}

	seen := map[string]bool{}
	keep := func(path string) {
		if _, ok := analyzer.DetectLanguage(path); ok {
			seen[path] = true
		}
	}
	for _, fp := range patch.FilePatches() {
		from, to := fp.Files()
		if from != nil {
			keep(from.Path())
		}
		if to != nil {
			keep(to.Path())
		}
	}

	files := make([]string, 0, len(seen))
	for f := range seen {
		files = append(files, f)
	}
	sort.Strings(files)
	return files, nil
}

// AffectedFunctions expands changed files to the functions defined in
// them plus their direct callers, as graph node IDs.
func (m *Manager) AffectedFunctions(ctx context.Context, project string, changedFiles []string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "incremental.AffectedFunctions")
	defer span.End()

	seen := map[string]bool{}
	for _, file := range changedFiles {
		nodes, err := m.graph.FunctionsInFile(ctx, project, file)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("listing functions in %s: %w", file, err)
		}
		for _, n := range nodes {
			seen[n.ID] = true
			callers, err := m.graph.DirectCallers(ctx, project, n.ID)
			if err != nil {
				if errors.Is(err, graph.ErrNodeNotFound) {
					continue
				}
				return nil, fmt.Errorf("finding callers of %s: %w", n.ID, err)
			}
			for _, c := range callers {
				seen[c.Node.ID] = true
			}
		}
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	span.SetAttributes(attribute.Int("incremental.affected_functions", len(out)))
	return out, nil
}
