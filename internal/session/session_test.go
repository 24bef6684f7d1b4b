package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yaverlabs/devmind/internal/config"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(config.SessionConfig{StateDir: t.TempDir()}, nil)
	require.NoError(t, err)
	return m
}

func TestCreateAndGet(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	sess, err := m.Create(ctx, "refactor-auth", []string{"auth"})
	require.NoError(t, err)
	assert.Len(t, sess.ID, 8)
	assert.Equal(t, "refactor-auth", sess.Name)
	assert.Equal(t, []string{"auth"}, sess.Tags)

	got, err := m.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)

	_, err = m.Get(ctx, "deadbeef")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateDefaultName(t *testing.T) {
	m := newTestManager(t)

	sess, err := m.Create(context.Background(), "", nil)
	require.NoError(t, err)
	assert.Regexp(t, `^session-\d{8}-\d{6}$`, sess.Name)
	assert.Empty(t, sess.Tags)
}

func TestCreateSetsActive(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	first, err := m.Create(ctx, "first", nil)
	require.NoError(t, err)
	second, err := m.Create(ctx, "second", nil)
	require.NoError(t, err)

	active, err := m.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)

	require.NoError(t, m.Use(ctx, first.ID))
	active, err = m.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, active.ID)
}

func TestUseUnknownSession(t *testing.T) {
	m := newTestManager(t)
	assert.ErrorIs(t, m.Use(context.Background(), "deadbeef"), ErrNotFound)
}

func TestActiveWithoutSessions(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Active(context.Background())
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestTags(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	sess, err := m.Create(ctx, "tagged", nil)
	require.NoError(t, err)

	require.NoError(t, m.AddTag(ctx, sess.ID, "bugfix"))
	require.NoError(t, m.AddTag(ctx, sess.ID, "bugfix")) // duplicate is a no-op
	require.NoError(t, m.AddTag(ctx, sess.ID, "billing"))

	got, err := m.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"bugfix", "billing"}, got.Tags)

	matched, err := m.SearchByTag(ctx, "billing")
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, sess.ID, matched[0].ID)

	require.NoError(t, m.RemoveTag(ctx, sess.ID, "bugfix"))
	got, err = m.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"billing"}, got.Tags)

	matched, err = m.SearchByTag(ctx, "bugfix")
	require.NoError(t, err)
	assert.Empty(t, matched)
}

func TestSetMetadata(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	sess, err := m.Create(ctx, "meta", nil)
	require.NoError(t, err)

	require.NoError(t, m.SetMetadata(ctx, sess.ID, "project", "myproject"))
	got, err := m.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "myproject", got.Metadata["project"])
}

func TestDeleteRepointsActive(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	first, err := m.Create(ctx, "first", nil)
	require.NoError(t, err)
	second, err := m.Create(ctx, "second", nil)
	require.NoError(t, err)

	// second is active after its creation
	require.NoError(t, m.Delete(ctx, second.ID))

	active, err := m.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, active.ID)

	require.NoError(t, m.Delete(ctx, first.ID))
	_, err = m.Active(ctx)
	assert.ErrorIs(t, err, ErrNoActiveSession)

	sessions, err := m.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestDeleteUnknownSession(t *testing.T) {
	m := newTestManager(t)
	assert.ErrorIs(t, m.Delete(context.Background(), "deadbeef"), ErrNotFound)
}

func TestNewManagerRequiresStateDir(t *testing.T) {
	_, err := NewManager(config.SessionConfig{}, nil)
	assert.ErrorIs(t, err, ErrInvalidStateDir)
}

func TestJournalLifecycle(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	sess, err := m.Create(ctx, "journaled", nil)
	require.NoError(t, err)

	j, err := m.Journal(ctx, sess.ID)
	require.NoError(t, err)

	plan, err := j.Plan()
	require.NoError(t, err)
	assert.Contains(t, plan, "# Task Plan")

	require.NoError(t, j.UpdatePlan("# Task Plan\n\n- [x] Map the call graph\n"))
	plan, err = j.Plan()
	require.NoError(t, err)
	assert.Contains(t, plan, "Map the call graph")
	assert.NotContains(t, plan, "Initialize analysis")

	require.NoError(t, j.LogFinding("Circular import", "auth depends on billing and back", SeverityRisk))
	findings, err := os.ReadFile(filepath.Join(m.dir, sess.ID, "findings.md"))
	require.NoError(t, err)
	assert.Contains(t, string(findings), "## [RISK] Circular import")
	assert.Contains(t, string(findings), "auth depends on billing and back")

	require.NoError(t, j.LogProgress("analyzed 12 files", StepExec))
	require.NoError(t, j.LogError("parse failed for legacy.py"))
	require.NoError(t, j.FinalizeReport(ReportStats{
		FilesProcessed: 12,
		TotalFiles:     14,
		ErrorCount:     1,
	}))

	progress, err := os.ReadFile(filepath.Join(m.dir, sess.ID, "progress.md"))
	require.NoError(t, err)
	text := string(progress)
	assert.Contains(t, text, "[`EXEC`] analyzed 12 files")
	assert.Contains(t, text, "[`ERROR`] ERROR: parse failed for legacy.py")
	assert.Contains(t, text, "| Files Analyzed | 12 |")
	assert.Contains(t, text, "Status: Completed with errors")
}

func TestJournalUnknownSession(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Journal(context.Background(), "deadbeef")
	assert.ErrorIs(t, err, ErrNotFound)
}
