// Package batch owns the batch lifecycle state machine and the per-project
// processing loop.
package batch

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/example/surveybatch/internal/events"
	"github.com/example/surveybatch/internal/metadata"
	"github.com/example/surveybatch/internal/models"
	"github.com/example/surveybatch/internal/runner"
	"github.com/example/surveybatch/internal/stats"
	"github.com/example/surveybatch/internal/storage"
)

// Orchestrator drives batch runs. It reads and writes metadata and files
// exclusively through the storage backend and invokes the processing
// command through the runner. All dependencies are injected; the
// orchestrator holds no global state beyond its own running set.
type Orchestrator struct {
	store      *metadata.Store
	backend    storage.Backend
	runner     runner.CommandRunner
	aggregator *stats.Aggregator
	notifier   events.Notifier
	log        *logrus.Entry

	// running enforces single-flight execution per batch within this
	// process. Cross-process runs of the same batch remain the caller's
	// responsibility (single-writer-per-batch model).
	mu      sync.Mutex
	running map[string]struct{}
}

// NewOrchestrator wires an orchestrator from its collaborators
func NewOrchestrator(store *metadata.Store, backend storage.Backend, cmdRunner runner.CommandRunner,
	aggregator *stats.Aggregator, notifier events.Notifier, log *logrus.Entry) *Orchestrator {
	if notifier == nil {
		notifier = events.NopNotifier{}
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Orchestrator{
		store:      store,
		backend:    backend,
		runner:     cmdRunner,
		aggregator: aggregator,
		notifier:   notifier,
		log:        log,
		running:    make(map[string]struct{}),
	}
}

// Create makes a new batch over the given projects. Duplicate project IDs
// are collapsed; every referenced project must exist.
func (o *Orchestrator) Create(ctx context.Context, name string, projectIDs []string,
	opts models.ProcessingOptions, workerCount int) (*models.BatchRecord, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationErrf("batch name must not be empty")
	}

	seen := make(map[string]bool, len(projectIDs))
	var ids []string
	var entries []models.ProjectStatusEntry
	for _, id := range projectIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		rec, err := o.store.LoadProject(ctx, id)
		if err != nil {
			if storage.IsNotFound(err) {
				return nil, validationErrf("project %s does not exist", id)
			}
			return nil, err
		}
		ids = append(ids, id)
		entries = append(entries, models.ProjectStatusEntry{
			ProjectID: id,
			Filename:  rec.Filename,
			Status:    models.ProjectPending,
		})
	}

	b := &models.BatchRecord{
		ID:              uuid.NewString(),
		Name:            name,
		ProjectIDs:      ids,
		ProjectStatuses: entries,
		Options:         opts,
		WorkerCount:     workerCount,
		Status:          models.BatchPending,
		CreatedAt:       time.Now().UTC(),
	}
	if err := o.store.SaveBatch(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Get loads a batch record
func (o *Orchestrator) Get(ctx context.Context, batchID string) (*models.BatchRecord, error) {
	return o.store.LoadBatch(ctx, batchID)
}

// AddProject appends a project to a batch. Adding a project that is already
// a member is a no-op; the status-entry list stays in lockstep with the ID
// list.
func (o *Orchestrator) AddProject(ctx context.Context, batchID, projectID string) (*models.BatchRecord, error) {
	b, err := o.store.LoadBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if b.Status == models.BatchProcessing {
		return nil, ErrBatchBusy
	}
	if b.HasProject(projectID) {
		return b, nil
	}

	rec, err := o.store.LoadProject(ctx, projectID)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, validationErrf("project %s does not exist", projectID)
		}
		return nil, err
	}

	b.ProjectIDs = append(b.ProjectIDs, projectID)
	b.ProjectStatuses = append(b.ProjectStatuses, models.ProjectStatusEntry{
		ProjectID: projectID,
		Filename:  rec.Filename,
		Status:    models.ProjectPending,
	})
	if err := o.store.SaveBatch(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// UpdateTags applies tag additions and removals to a batch
func (o *Orchestrator) UpdateTags(ctx context.Context, batchID string, add, remove []string) (*models.BatchRecord, error) {
	b, err := o.store.LoadBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	b.Tags = NormalizeTags(b.Tags, add, remove)
	if err := o.store.SaveBatch(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// MarkProjectFailed fails a project ahead of (or between) run iterations.
// This is the only supported form of cancellation; the run loop skips
// entries already failed when it starts.
func (o *Orchestrator) MarkProjectFailed(ctx context.Context, batchID, projectID, reason string) error {
	o.mu.Lock()
	_, busy := o.running[batchID]
	o.mu.Unlock()
	if busy {
		return ErrBatchBusy
	}

	b, err := o.store.LoadBatch(ctx, batchID)
	if err != nil {
		return err
	}
	entry := b.StatusEntry(projectID)
	if entry == nil {
		return validationErrf("project %s is not part of batch %s", projectID, batchID)
	}
	entry.Status = models.ProjectFailed
	entry.Error = reason
	return o.store.SaveBatch(ctx, b)
}

// Run executes the batch's processing loop. One project failing never
// aborts the batch; the loop always continues to the next project. The
// terminal status is a pure function of the per-project outcome counts.
func (o *Orchestrator) Run(ctx context.Context, batchID string) (*models.BatchRecord, error) {
	o.mu.Lock()
	if _, busy := o.running[batchID]; busy {
		o.mu.Unlock()
		return nil, ErrBatchBusy
	}
	o.running[batchID] = struct{}{}
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.running, batchID)
		o.mu.Unlock()
	}()

	b, err := o.store.LoadBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if b.Status == models.BatchProcessing {
		return nil, ErrBatchBusy
	}

	// Entries failed before the run are a caller-requested skip; everything
	// else starts the run as pending.
	for i := range b.ProjectStatuses {
		if b.ProjectStatuses[i].Status != models.ProjectFailed {
			b.ProjectStatuses[i].Status = models.ProjectPending
			b.ProjectStatuses[i].DurationSeconds = nil
			b.ProjectStatuses[i].Error = ""
			b.ProjectStatuses[i].AccessPoints = 0
			b.ProjectStatuses[i].Antennas = 0
		}
	}
	b.Status = models.BatchProcessing
	b.Statistics = nil
	b.ProcessedAt = nil

	total := len(b.ProjectStatuses)
	attempted := 0
	for _, e := range b.ProjectStatuses {
		if e.Status == models.ProjectFailed {
			attempted++
		}
	}
	b.Progress = progressPercent(attempted, total)
	if err := o.store.SaveBatch(ctx, b); err != nil {
		return nil, err
	}

	workers := b.WorkerCount
	if workers < 1 {
		workers = 1
	}

	var (
		wg      sync.WaitGroup
		sem     = make(chan struct{}, workers)
		stateMu sync.Mutex
	)

	for i := range b.ProjectStatuses {
		entry := &b.ProjectStatuses[i]
		if entry.Status == models.ProjectFailed {
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(entry *models.ProjectStatusEntry) {
			defer wg.Done()
			defer func() { <-sem }()

			o.notifier.Publish(events.Event{
				Type:      events.TypeProjectStarted,
				BatchID:   b.ID,
				ProjectID: entry.ProjectID,
				Filename:  entry.Filename,
			})

			outcome := o.processProject(ctx, b, entry.ProjectID)

			// Progress is persisted after every attempt; events are
			// emitted in completion order, not submission order.
			stateMu.Lock()
			entry.DurationSeconds = &outcome.durationSeconds
			if outcome.err != nil {
				entry.Status = models.ProjectFailed
				entry.Error = outcome.err.Error()
			} else {
				entry.Status = models.ProjectCompleted
				entry.AccessPoints = outcome.accessPoints
				entry.Antennas = outcome.antennas
			}
			attempted++
			b.Progress = progressPercent(attempted, total)
			if err := o.store.SaveBatch(ctx, b); err != nil {
				o.log.WithError(err).WithField("batch", b.ID).Error("failed to persist batch progress")
			}
			percent := b.Progress
			stateMu.Unlock()

			eventType := events.TypeProjectCompleted
			if outcome.err != nil {
				eventType = events.TypeProjectFailed
			}
			o.notifier.Publish(events.Event{
				Type:      eventType,
				BatchID:   b.ID,
				ProjectID: entry.ProjectID,
				Filename:  entry.Filename,
				Status:    string(entry.Status),
				Message:   entry.Error,
			})
			o.notifier.Publish(events.Event{
				Type:    events.TypeBatchProgress,
				BatchID: b.ID,
				Percent: percent,
			})
		}(entry)
	}
	wg.Wait()

	// Statistics are rebuilt from scratch so the result is reproducible
	// from persisted state alone.
	b.Statistics = o.aggregator.Recalculate(ctx, b)

	successful, failed := countOutcomes(b.ProjectStatuses)
	b.Status = TerminalStatus(successful, failed)
	now := time.Now().UTC()
	b.ProcessedAt = &now
	if err := o.store.SaveBatch(ctx, b); err != nil {
		return nil, err
	}

	o.notifier.Publish(events.Event{
		Type:    events.TypeBatchFinished,
		BatchID: b.ID,
		Percent: b.Progress,
		Status:  string(b.Status),
	})
	o.log.WithFields(logrus.Fields{
		"batch":      b.ID,
		"status":     b.Status,
		"successful": successful,
		"failed":     failed,
	}).Info("batch run finished")

	return b, nil
}

// projectOutcome is the result of one processing attempt
type projectOutcome struct {
	err             error
	durationSeconds float64
	accessPoints    int
	antennas        int
}

// processProject runs the processing command for one project and stages its
// artifacts into the project namespace.
func (o *Orchestrator) processProject(ctx context.Context, b *models.BatchRecord, projectID string) projectOutcome {
	start := time.Now()
	outcome := func(err error) projectOutcome {
		return projectOutcome{err: err, durationSeconds: time.Since(start).Seconds()}
	}

	rec, err := o.store.LoadProject(ctx, projectID)
	if err != nil {
		return outcome(fmt.Errorf("load project record: %w", err))
	}

	rec.Status = models.ProjectProcessing
	rec.Error = ""
	if err := o.store.SaveProject(ctx, rec); err != nil {
		return outcome(fmt.Errorf("persist project status: %w", err))
	}

	namespace := metadata.ProjectNamespace(projectID)

	fail := func(err error) projectOutcome {
		rec.Status = models.ProjectFailed
		rec.Error = err.Error()
		if saveErr := o.store.SaveProject(ctx, rec); saveErr != nil {
			o.log.WithError(saveErr).WithField("project", projectID).Error("failed to persist failure status")
		}
		return outcome(err)
	}

	original, err := o.backend.Get(ctx, namespace, rec.OriginalPath)
	if err != nil {
		return fail(fmt.Errorf("fetch original archive: %w", err))
	}

	workDir, err := os.MkdirTemp("", "surveybatch-")
	if err != nil {
		return fail(fmt.Errorf("create work directory: %w", err))
	}
	defer os.RemoveAll(workDir)

	inputPath := filepath.Join(workDir, rec.Filename)
	if err := os.WriteFile(inputPath, original, 0644); err != nil {
		return fail(fmt.Errorf("stage original archive: %w", err))
	}
	outputDir := filepath.Join(workDir, "out")
	if err := os.Mkdir(outputDir, 0755); err != nil {
		return fail(fmt.Errorf("create output directory: %w", err))
	}

	if _, err := o.runner.Run(ctx, runner.Request{
		InputPath: inputPath,
		OutputDir: outputDir,
		Options:   b.Options,
	}); err != nil {
		return fail(err)
	}

	reportPaths, vizPaths, err := o.stageArtifacts(ctx, namespace, outputDir)
	if err != nil {
		return fail(fmt.Errorf("stage report artifacts: %w", err))
	}

	result := outcome(nil)
	equipment, err := stats.ReadProjectEquipment(ctx, o.backend, namespace)
	if err != nil && !storage.IsNotFound(err) {
		o.log.WithError(err).WithField("project", projectID).Warn("could not extract equipment counts")
	}
	if equipment != nil {
		apCount := stats.TotalQuantity(equipment.AccessPoints)
		antennaCount := stats.TotalQuantity(equipment.Antennas)
		rec.AccessPointCount = &apCount
		rec.AntennaCount = &antennaCount
		if equipment.Floors > 0 {
			rec.FloorCount = &equipment.Floors
		}
		if equipment.Buildings > 0 {
			rec.BuildingCount = &equipment.Buildings
		}
		result.accessPoints = apCount
		result.antennas = antennaCount
	}

	now := time.Now().UTC()
	rec.Status = models.ProjectCompleted
	rec.ReportPaths = reportPaths
	rec.VisualizationPaths = vizPaths
	rec.LastAccessedAt = &now
	if err := o.store.SaveProject(ctx, rec); err != nil {
		return fail(fmt.Errorf("persist completed project: %w", err))
	}

	return result
}

// stageArtifacts copies the command's output tree into the project
// namespace under reports/, mirroring its structure.
func (o *Orchestrator) stageArtifacts(ctx context.Context, namespace, outputDir string) (reports, visualizations []string, err error) {
	err = filepath.Walk(outputDir, func(p string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(outputDir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		dest := "reports/" + rel
		if _, err := o.backend.Save(ctx, namespace, dest, data); err != nil {
			return err
		}
		if strings.HasPrefix(rel, "visualizations/") {
			visualizations = append(visualizations, dest)
		} else {
			reports = append(reports, dest)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return reports, visualizations, nil
}

// progressPercent computes round(100 * attempted / total)
func progressPercent(attempted, total int) int {
	if total == 0 {
		return 100
	}
	return int(math.Round(100 * float64(attempted) / float64(total)))
}
