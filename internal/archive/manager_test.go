package archive

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/surveybatch/internal/metadata"
	"github.com/example/surveybatch/internal/models"
	"github.com/example/surveybatch/internal/storage"
)

func newTestManager(t *testing.T) (*Manager, *metadata.Store, storage.Backend) {
	t.Helper()
	backend, err := storage.NewLocalBackend(storage.LocalConfig{BasePath: t.TempDir()})
	require.NoError(t, err)
	store := metadata.NewStore(backend, nil)
	return NewManager(backend, store, DefaultPolicy(), nil), store, backend
}

func seedProject(t *testing.T, store *metadata.Store, backend storage.Backend, id string, age time.Duration) map[string][]byte {
	t.Helper()
	ctx := context.Background()
	files := map[string][]byte{
		"original/site.esx":              []byte("survey archive bytes"),
		"reports/site_report.json":       []byte(`{"accessPoints":[]}`),
		"reports/visualizations/f1.png":  []byte{0x89, 0x50, 0x4e, 0x47},
		"reports/site_access_points.csv": []byte("model\nC9120\n"),
	}
	ns := metadata.ProjectNamespace(id)
	for p, data := range files {
		_, err := backend.Save(ctx, ns, p, data)
		require.NoError(t, err)
	}
	accessed := time.Now().UTC().Add(-age)
	require.NoError(t, store.SaveProject(ctx, &models.ProjectRecord{
		ID:             id,
		Filename:       "site.esx",
		Status:         models.ProjectCompleted,
		OriginalPath:   "original/site.esx",
		UploadedAt:     accessed,
		LastAccessedAt: &accessed,
	}))
	return files
}

func TestArchiveRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	m, store, backend := newTestManager(t)
	files := seedProject(t, store, backend, "p1", 0)
	ns := metadata.ProjectNamespace("p1")

	require.NoError(t, m.ArchiveProject(ctx, "p1"))

	// Only the metadata record survives in the live namespace
	live, err := backend.List(ctx, ns, "", true)
	require.NoError(t, err)
	require.Equal(t, []string{"metadata.json"}, live)

	exists, err := backend.Exists(ctx, archiveRoot, projectArtifact("p1"))
	require.NoError(t, err)
	require.True(t, exists)

	rec, err := store.LoadProject(ctx, "p1")
	require.NoError(t, err)
	require.True(t, rec.Archived)
	require.NotNil(t, rec.ArchivedAt)
	require.Greater(t, rec.ArchivedSizeBytes, int64(0))
	require.Greater(t, rec.OriginalSizeBytes, int64(0))

	require.ErrorIs(t, m.ArchiveProject(ctx, "p1"), ErrAlreadyArchived)

	require.NoError(t, m.RestoreProject(ctx, "p1"))

	// Every live entry comes back byte for byte
	for p, want := range files {
		got, err := backend.Get(ctx, ns, p)
		require.NoError(t, err)
		require.Equal(t, want, got, p)
	}

	// No staging residue, no artifact left behind
	staged, err := backend.List(ctx, ns, restoreStaging, true)
	require.NoError(t, err)
	require.Empty(t, staged)
	exists, err = backend.Exists(ctx, archiveRoot, projectArtifact("p1"))
	require.NoError(t, err)
	require.False(t, exists)

	rec, err = store.LoadProject(ctx, "p1")
	require.NoError(t, err)
	require.False(t, rec.Archived)
	require.Nil(t, rec.ArchivedAt)

	require.ErrorIs(t, m.RestoreProject(ctx, "p1"), ErrNotArchived)
}

func TestBatchArchiveRoundTrip(t *testing.T) {
	ctx := context.Background()
	m, store, backend := newTestManager(t)

	ns := metadata.BatchNamespace("b1")
	_, err := backend.Save(ctx, ns, "exports/summary.xlsx", []byte("workbook"))
	require.NoError(t, err)
	require.NoError(t, store.SaveBatch(ctx, &models.BatchRecord{
		ID: "b1", Name: "done", Status: models.BatchCompleted,
		CreatedAt: time.Now().UTC(),
	}))

	require.NoError(t, m.ArchiveBatch(ctx, "b1"))
	live, err := backend.List(ctx, ns, "", true)
	require.NoError(t, err)
	require.Equal(t, []string{"metadata.json"}, live)

	require.NoError(t, m.RestoreBatch(ctx, "b1"))
	data, err := backend.Get(ctx, ns, "exports/summary.xlsx")
	require.NoError(t, err)
	require.Equal(t, []byte("workbook"), data)
}

func TestEligibility(t *testing.T) {
	m, _, _ := newTestManager(t)
	now := time.Now().UTC()

	project := func(status models.ProjectStatus, age time.Duration, archived bool) *models.ProjectRecord {
		accessed := now.Add(-age)
		return &models.ProjectRecord{Status: status, LastAccessedAt: &accessed, Archived: archived}
	}

	require.True(t, m.ProjectEligible(project(models.ProjectCompleted, 61*24*time.Hour, false), now))
	require.False(t, m.ProjectEligible(project(models.ProjectCompleted, 59*24*time.Hour, false), now))
	require.False(t, m.ProjectEligible(project(models.ProjectFailed, 61*24*time.Hour, false), now))
	require.False(t, m.ProjectEligible(project(models.ProjectCompleted, 61*24*time.Hour, true), now))

	batch := func(status models.BatchStatus, age time.Duration) *models.BatchRecord {
		accessed := now.Add(-age)
		return &models.BatchRecord{Status: status, LastAccessedAt: &accessed}
	}
	require.True(t, m.BatchEligible(batch(models.BatchCompleted, 91*24*time.Hour), now))
	require.False(t, m.BatchEligible(batch(models.BatchCompleted, 89*24*time.Hour), now))
	require.False(t, m.BatchEligible(batch(models.BatchPartial, 91*24*time.Hour), now))
}

func TestEligibilityFallsBackToUploadTime(t *testing.T) {
	m, _, _ := newTestManager(t)
	now := time.Now().UTC()

	rec := &models.ProjectRecord{
		Status:     models.ProjectCompleted,
		UploadedAt: now.Add(-70 * 24 * time.Hour),
	}
	require.True(t, m.ProjectEligible(rec, now))
}

func TestSweepDryRun(t *testing.T) {
	ctx := context.Background()
	m, store, backend := newTestManager(t)
	seedProject(t, store, backend, "old", 61*24*time.Hour)
	seedProject(t, store, backend, "fresh", time.Hour)

	report, err := m.Sweep(ctx, true)
	require.NoError(t, err)
	require.True(t, report.DryRun)
	require.Equal(t, []string{"old"}, report.ProjectCandidates)
	require.Zero(t, report.Archived)

	// Dry run mutates nothing
	rec, err := store.LoadProject(ctx, "old")
	require.NoError(t, err)
	require.False(t, rec.Archived)
	entries, err := backend.List(ctx, metadata.ProjectNamespace("old"), "", true)
	require.NoError(t, err)
	require.Greater(t, len(entries), 1)
}

func TestSweepArchivesEligible(t *testing.T) {
	ctx := context.Background()
	m, store, backend := newTestManager(t)
	seedProject(t, store, backend, "old", 61*24*time.Hour)
	seedProject(t, store, backend, "fresh", time.Hour)

	report, err := m.Sweep(ctx, false)
	require.NoError(t, err)
	require.Equal(t, 1, report.Archived)
	require.Zero(t, report.Failed)

	rec, err := store.LoadProject(ctx, "old")
	require.NoError(t, err)
	require.True(t, rec.Archived)

	rec, err = store.LoadProject(ctx, "fresh")
	require.NoError(t, err)
	require.False(t, rec.Archived)
}

func TestComputeStats(t *testing.T) {
	ctx := context.Background()
	m, store, backend := newTestManager(t)
	seedProject(t, store, backend, "p1", 61*24*time.Hour)
	require.NoError(t, m.ArchiveProject(ctx, "p1"))

	s, err := m.ComputeStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, s.ArchivedProjects)
	require.Zero(t, s.ArchivedBatches)
	require.Greater(t, s.CompressionRatio, 0.0)

	rec, err := store.LoadProject(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, rec.OriginalSizeBytes-rec.ArchivedSizeBytes, s.SpaceSavedBytes)
}

// failingBackend rejects writes into the archive namespace
type failingBackend struct {
	storage.Backend
}

func (f *failingBackend) Save(ctx context.Context, namespace, relPath string, content []byte) (string, error) {
	if namespace == archiveRoot {
		return "", errors.New("disk full")
	}
	return f.Backend.Save(ctx, namespace, relPath, content)
}

func TestArchiveFailureLeavesLiveData(t *testing.T) {
	ctx := context.Background()
	backend, err := storage.NewLocalBackend(storage.LocalConfig{BasePath: t.TempDir()})
	require.NoError(t, err)
	wrapped := &failingBackend{Backend: backend}
	store := metadata.NewStore(wrapped, nil)
	m := NewManager(wrapped, store, DefaultPolicy(), nil)

	files := seedProject(t, store, wrapped, "p1", 0)

	err = m.ArchiveProject(ctx, "p1")
	require.Error(t, err)

	// The live namespace is untouched and the record unchanged
	ns := metadata.ProjectNamespace("p1")
	for p, want := range files {
		got, err := wrapped.Get(ctx, ns, p)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	rec, err := store.LoadProject(ctx, "p1")
	require.NoError(t, err)
	require.False(t, rec.Archived)
}
