package stats

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/example/surveybatch/internal/metadata"
	"github.com/example/surveybatch/internal/models"
	"github.com/example/surveybatch/internal/storage"
)

// Aggregator reduces per-project report artifacts into batch statistics
type Aggregator struct {
	backend storage.Backend
	log     *logrus.Entry
}

// NewAggregator creates a statistics aggregator over the given backend
func NewAggregator(backend storage.Backend, log *logrus.Entry) *Aggregator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Aggregator{backend: backend, log: log}
}

// Recalculate rebuilds the batch statistics from scratch from the current
// per-project status entries and the completed projects' report artifacts.
// The mappings are never patched incrementally, so recomputation from
// persisted state alone is idempotent. A failure to read one project's
// report is logged and does not abort aggregation for the rest.
func (a *Aggregator) Recalculate(ctx context.Context, batch *models.BatchRecord) *models.BatchStatistics {
	s := models.NewBatchStatistics()
	s.TotalProjects = len(batch.ProjectIDs)

	for _, entry := range batch.ProjectStatuses {
		switch entry.Status {
		case models.ProjectCompleted:
			s.SuccessfulProjects++
		case models.ProjectFailed:
			s.FailedProjects++
		}
		if entry.DurationSeconds != nil {
			s.TotalProcessingSeconds += *entry.DurationSeconds
		}
	}

	for _, entry := range batch.ProjectStatuses {
		if entry.Status != models.ProjectCompleted {
			continue
		}
		equipment, err := ReadProjectEquipment(ctx, a.backend, metadata.ProjectNamespace(entry.ProjectID))
		if err != nil {
			if storage.IsNotFound(err) {
				// Projects with no report artifact contribute zero equipment
				// but still count toward the totals above.
				continue
			}
			a.log.WithError(err).WithField("project", entry.ProjectID).
				Warn("failed to read project report, skipping")
			continue
		}

		for _, e := range equipment.AccessPoints {
			s.AccessPointModels[APKey(e.Vendor, e.Model)] += e.Quantity
			s.TotalAccessPoints += e.Quantity
		}
		for _, e := range equipment.Antennas {
			s.AntennaModels[e.Model] += e.Quantity
			s.TotalAntennas += e.Quantity
		}
	}

	return s
}
