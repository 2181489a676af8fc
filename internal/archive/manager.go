// Package archive compresses inactive projects and batches into single
// artifacts, enforces the retention policy, and restores archives on
// demand. Every operation is all-or-nothing per item: a failure leaves the
// live namespace untouched and removes partial archive output.
package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/example/surveybatch/internal/metadata"
	"github.com/example/surveybatch/internal/models"
	"github.com/example/surveybatch/internal/storage"
)

const (
	archiveRoot = "archives"

	// Defaults for time-since-last-access before an item becomes eligible
	DefaultProjectMaxAge = 60 * 24 * time.Hour
	DefaultBatchMaxAge   = 90 * 24 * time.Hour
)

var (
	// ErrAlreadyArchived rejects archiving an item twice
	ErrAlreadyArchived = errors.New("item is already archived")
	// ErrNotArchived rejects restoring an item that has no archive
	ErrNotArchived = errors.New("item is not archived")
)

// Policy holds the retention thresholds
type Policy struct {
	ProjectMaxAge time.Duration
	BatchMaxAge   time.Duration
}

// DefaultPolicy returns the reference retention thresholds
func DefaultPolicy() Policy {
	return Policy{ProjectMaxAge: DefaultProjectMaxAge, BatchMaxAge: DefaultBatchMaxAge}
}

// Manager archives and restores projects and batches through the storage
// backend.
type Manager struct {
	backend storage.Backend
	store   *metadata.Store
	policy  Policy
	log     *logrus.Entry
}

// NewManager creates an archive manager
func NewManager(backend storage.Backend, store *metadata.Store, policy Policy, log *logrus.Entry) *Manager {
	if policy.ProjectMaxAge <= 0 {
		policy.ProjectMaxAge = DefaultProjectMaxAge
	}
	if policy.BatchMaxAge <= 0 {
		policy.BatchMaxAge = DefaultBatchMaxAge
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Manager{backend: backend, store: store, policy: policy, log: log}
}

func projectArtifact(id string) string { return "projects/" + id + ".zip" }
func batchArtifact(id string) string   { return "batches/" + id + ".zip" }

// ProjectEligible reports whether a project qualifies for auto-archiving:
// terminal-successful, not yet archived, and inactive beyond the threshold.
func (m *Manager) ProjectEligible(rec *models.ProjectRecord, now time.Time) bool {
	return rec.Status == models.ProjectCompleted &&
		!rec.Archived &&
		now.Sub(rec.LastActivity()) > m.policy.ProjectMaxAge
}

// BatchEligible reports whether a batch qualifies for auto-archiving
func (m *Manager) BatchEligible(rec *models.BatchRecord, now time.Time) bool {
	return rec.Status == models.BatchCompleted &&
		!rec.Archived &&
		now.Sub(rec.LastActivity()) > m.policy.BatchMaxAge
}

// ArchiveProject compresses a project's live namespace into a single
// artifact and removes the live data, keeping only the metadata record.
func (m *Manager) ArchiveProject(ctx context.Context, projectID string) error {
	rec, err := m.store.LoadProject(ctx, projectID)
	if err != nil {
		return err
	}
	if rec.Archived {
		return ErrAlreadyArchived
	}

	originalSize, archivedSize, err := m.archiveNamespace(ctx,
		metadata.ProjectNamespace(projectID), projectArtifact(projectID))
	if err != nil {
		return fmt.Errorf("archive project %s: %w", projectID, err)
	}

	now := time.Now().UTC()
	rec.Archived = true
	rec.ArchivedAt = &now
	rec.ArchivedSizeBytes = archivedSize
	rec.OriginalSizeBytes = originalSize
	return m.store.SaveProject(ctx, rec)
}

// RestoreProject extracts a project archive back into the live namespace
// and deletes the artifact.
func (m *Manager) RestoreProject(ctx context.Context, projectID string) error {
	rec, err := m.store.LoadProject(ctx, projectID)
	if err != nil {
		return err
	}
	if !rec.Archived {
		return ErrNotArchived
	}

	if err := m.restoreNamespace(ctx,
		metadata.ProjectNamespace(projectID), projectArtifact(projectID)); err != nil {
		return fmt.Errorf("restore project %s: %w", projectID, err)
	}

	now := time.Now().UTC()
	rec.Archived = false
	rec.ArchivedAt = nil
	rec.ArchivedSizeBytes = 0
	rec.LastAccessedAt = &now
	return m.store.SaveProject(ctx, rec)
}

// ArchiveBatch compresses a batch's live namespace into a single artifact
func (m *Manager) ArchiveBatch(ctx context.Context, batchID string) error {
	rec, err := m.store.LoadBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if rec.Archived {
		return ErrAlreadyArchived
	}

	originalSize, archivedSize, err := m.archiveNamespace(ctx,
		metadata.BatchNamespace(batchID), batchArtifact(batchID))
	if err != nil {
		return fmt.Errorf("archive batch %s: %w", batchID, err)
	}

	now := time.Now().UTC()
	rec.Archived = true
	rec.ArchivedAt = &now
	rec.ArchivedSizeBytes = archivedSize
	rec.OriginalSizeBytes = originalSize
	return m.store.SaveBatch(ctx, rec)
}

// RestoreBatch extracts a batch archive back into the live namespace
func (m *Manager) RestoreBatch(ctx context.Context, batchID string) error {
	rec, err := m.store.LoadBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if !rec.Archived {
		return ErrNotArchived
	}

	if err := m.restoreNamespace(ctx,
		metadata.BatchNamespace(batchID), batchArtifact(batchID)); err != nil {
		return fmt.Errorf("restore batch %s: %w", batchID, err)
	}

	now := time.Now().UTC()
	rec.Archived = false
	rec.ArchivedAt = nil
	rec.ArchivedSizeBytes = 0
	rec.LastAccessedAt = &now
	return m.store.SaveBatch(ctx, rec)
}

// SweepReport summarizes one auto-archive pass
type SweepReport struct {
	ProjectCandidates []string `json:"projectCandidates"`
	BatchCandidates   []string `json:"batchCandidates"`
	Archived          int      `json:"archived"`
	Failed            int      `json:"failed"`
	DryRun            bool     `json:"dryRun"`
}

// Sweep archives every eligible project and batch. In dry-run mode it only
// reports candidates without mutating anything. One candidate's failure
// never stops the sweep.
func (m *Manager) Sweep(ctx context.Context, dryRun bool) (*SweepReport, error) {
	report := &SweepReport{DryRun: dryRun}
	now := time.Now().UTC()

	projects, err := m.store.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	for _, rec := range projects {
		if m.ProjectEligible(rec, now) {
			report.ProjectCandidates = append(report.ProjectCandidates, rec.ID)
		}
	}

	batches, err := m.store.ListBatches(ctx)
	if err != nil {
		return nil, err
	}
	for _, rec := range batches {
		if m.BatchEligible(rec, now) {
			report.BatchCandidates = append(report.BatchCandidates, rec.ID)
		}
	}

	if dryRun {
		return report, nil
	}

	for _, id := range report.ProjectCandidates {
		if err := m.ArchiveProject(ctx, id); err != nil {
			m.log.WithError(err).WithField("project", id).Warn("auto-archive failed")
			report.Failed++
			continue
		}
		report.Archived++
	}
	for _, id := range report.BatchCandidates {
		if err := m.ArchiveBatch(ctx, id); err != nil {
			m.log.WithError(err).WithField("batch", id).Warn("auto-archive failed")
			report.Failed++
			continue
		}
		report.Archived++
	}
	return report, nil
}

// Stats summarizes archived items. Values are computed on demand from the
// persisted records, never cached.
type Stats struct {
	ArchivedProjects int     `json:"archivedProjects"`
	ArchivedBatches  int     `json:"archivedBatches"`
	SpaceSavedBytes  int64   `json:"spaceSavedBytes"`
	CompressionRatio float64 `json:"compressionRatio"`
}

// ComputeStats scans the metadata records and derives archive statistics
func (m *Manager) ComputeStats(ctx context.Context) (*Stats, error) {
	s := &Stats{}
	var totalOriginal, totalArchived int64

	projects, err := m.store.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	for _, rec := range projects {
		if rec.Archived {
			s.ArchivedProjects++
			totalOriginal += rec.OriginalSizeBytes
			totalArchived += rec.ArchivedSizeBytes
		}
	}

	batches, err := m.store.ListBatches(ctx)
	if err != nil {
		return nil, err
	}
	for _, rec := range batches {
		if rec.Archived {
			s.ArchivedBatches++
			totalOriginal += rec.OriginalSizeBytes
			totalArchived += rec.ArchivedSizeBytes
		}
	}

	s.SpaceSavedBytes = totalOriginal - totalArchived
	if totalOriginal > 0 {
		s.CompressionRatio = float64(totalArchived) / float64(totalOriginal)
	}
	return s, nil
}
