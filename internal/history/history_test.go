package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yaverlabs/devmind/internal/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(config.HistoryConfig{
		DatabasePath: filepath.Join(t.TempDir(), "history.db"),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func record(t *testing.T, store *Store, project, commit string, ts time.Time) {
	t.Helper()
	require.NoError(t, store.Record(context.Background(), Analysis{
		Project:       project,
		RepoPath:      "/repos/" + project,
		CommitHash:    commit,
		Timestamp:     ts,
		Type:          AnalysisFull,
		FilesCount:    10,
		FilesAnalyzed: 10,
		Duration:      3 * time.Second,
	}))
}

func TestRecordAndLastAnalysis(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	meta, err := store.LastAnalysis(ctx, "myproject")
	require.NoError(t, err)
	assert.Nil(t, meta)

	record(t, store, "myproject", "abc123", time.Now().UTC())

	meta, err = store.LastAnalysis(ctx, "myproject")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, "abc123", meta.LastCommit)
	assert.Equal(t, "/repos/myproject", meta.RepoPath)
	assert.Equal(t, 1, meta.TotalAnalyses)
}

func TestRecordSameCommitOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	record(t, store, "myproject", "abc123", now)
	record(t, store, "myproject", "abc123", now.Add(time.Hour))

	analyses, err := store.History(ctx, "myproject", 0)
	require.NoError(t, err)
	require.Len(t, analyses, 1)
	assert.Equal(t, "abc123", analyses[0].CommitHash)
}

func TestHistoryOrderAndLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	record(t, store, "myproject", "c1", base)
	record(t, store, "myproject", "c2", base.Add(time.Hour))
	record(t, store, "myproject", "c3", base.Add(2*time.Hour))

	analyses, err := store.History(ctx, "myproject", 2)
	require.NoError(t, err)
	require.Len(t, analyses, 2)
	assert.Equal(t, "c3", analyses[0].CommitHash)
	assert.Equal(t, "c2", analyses[1].CommitHash)
	assert.Equal(t, 3*time.Second, analyses[0].Duration)
}

func TestProjects(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	record(t, store, "alpha", "a1", base)
	record(t, store, "beta", "b1", base.Add(time.Hour))

	projects, err := store.Projects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, "beta", projects[0].Project)
	assert.Equal(t, "alpha", projects[1].Project)
}

func TestCleanup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := range 5 {
		record(t, store, "myproject", string(rune('a'+i)), base.Add(time.Duration(i)*time.Hour))
	}

	deleted, err := store.Cleanup(ctx, "myproject", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	analyses, err := store.History(ctx, "myproject", 0)
	require.NoError(t, err)
	require.Len(t, analyses, 2)
	assert.Equal(t, "e", analyses[0].CommitHash)
	assert.Equal(t, "d", analyses[1].CommitHash)
}

func TestShouldReanalyze(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	need, reason, err := store.ShouldReanalyze(ctx, "myproject", "abc123")
	require.NoError(t, err)
	assert.True(t, need)
	assert.Equal(t, ReasonFirstTime, reason)

	record(t, store, "myproject", "abc123", time.Now().UTC())

	need, reason, err = store.ShouldReanalyze(ctx, "myproject", "abc123")
	require.NoError(t, err)
	assert.False(t, need)
	assert.Equal(t, ReasonNoChanges, reason)

	need, reason, err = store.ShouldReanalyze(ctx, "myproject", "def456")
	require.NoError(t, err)
	assert.True(t, need)
	assert.Equal(t, ReasonNewCommit, reason)
}

func TestRecordValidation(t *testing.T) {
	store := newTestStore(t)

	err := store.Record(context.Background(), Analysis{Project: "p"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
