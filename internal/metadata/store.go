// Package metadata persists project and batch records as JSON documents
// through the storage backend.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/example/surveybatch/internal/models"
	"github.com/example/surveybatch/internal/storage"
)

const (
	projectRoot  = "projects"
	batchRoot    = "batches"
	metadataFile = "metadata.json"
)

// ProjectNamespace returns the storage namespace for a project
func ProjectNamespace(id string) string {
	return projectRoot + "/" + id
}

// BatchNamespace returns the storage namespace for a batch
func BatchNamespace(id string) string {
	return batchRoot + "/" + id
}

// Store loads and saves records through a storage backend. Records are one
// JSON document per entity; at most one writer per entity is assumed.
type Store struct {
	backend storage.Backend
	log     *logrus.Entry
}

// NewStore creates a metadata store over the given backend
func NewStore(backend storage.Backend, log *logrus.Entry) *Store {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Store{backend: backend, log: log}
}

// SaveProject persists a project record
func (s *Store) SaveProject(ctx context.Context, rec *models.ProjectRecord) error {
	return s.save(ctx, ProjectNamespace(rec.ID), rec)
}

// LoadProject reads a project record; storage.ErrNotFound passes through
func (s *Store) LoadProject(ctx context.Context, id string) (*models.ProjectRecord, error) {
	var rec models.ProjectRecord
	if err := s.load(ctx, ProjectNamespace(id), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListProjects scans the project root for metadata records. Unreadable
// records are logged and skipped so one corrupt document cannot hide the
// rest.
func (s *Store) ListProjects(ctx context.Context) ([]*models.ProjectRecord, error) {
	ids, err := s.scan(ctx, projectRoot)
	if err != nil {
		return nil, err
	}
	records := make([]*models.ProjectRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.LoadProject(ctx, id)
		if err != nil {
			s.log.WithError(err).WithField("project", id).Warn("skipping unreadable project record")
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// DeleteProject removes the project's entire namespace
func (s *Store) DeleteProject(ctx context.Context, id string) (bool, error) {
	return s.backend.DeleteAll(ctx, ProjectNamespace(id))
}

// TouchProject updates the project's last-accessed timestamp
func (s *Store) TouchProject(ctx context.Context, id string) error {
	rec, err := s.LoadProject(ctx, id)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	rec.LastAccessedAt = &now
	return s.SaveProject(ctx, rec)
}

// SaveBatch persists a batch record
func (s *Store) SaveBatch(ctx context.Context, rec *models.BatchRecord) error {
	return s.save(ctx, BatchNamespace(rec.ID), rec)
}

// LoadBatch reads a batch record; storage.ErrNotFound passes through
func (s *Store) LoadBatch(ctx context.Context, id string) (*models.BatchRecord, error) {
	var rec models.BatchRecord
	if err := s.load(ctx, BatchNamespace(id), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListBatches scans the batch root for metadata records
func (s *Store) ListBatches(ctx context.Context) ([]*models.BatchRecord, error) {
	ids, err := s.scan(ctx, batchRoot)
	if err != nil {
		return nil, err
	}
	records := make([]*models.BatchRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.LoadBatch(ctx, id)
		if err != nil {
			s.log.WithError(err).WithField("batch", id).Warn("skipping unreadable batch record")
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// DeleteBatch removes the batch's entire namespace
func (s *Store) DeleteBatch(ctx context.Context, id string) (bool, error) {
	return s.backend.DeleteAll(ctx, BatchNamespace(id))
}

func (s *Store) save(ctx context.Context, namespace string, rec interface{}) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata for %s: %w", namespace, err)
	}
	if _, err := s.backend.Save(ctx, namespace, metadataFile, data); err != nil {
		return err
	}
	return nil
}

func (s *Store) load(ctx context.Context, namespace string, rec interface{}) error {
	data, err := s.backend.Get(ctx, namespace, metadataFile)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, rec); err != nil {
		return fmt.Errorf("unmarshal metadata for %s: %w", namespace, err)
	}
	return nil
}

// scan lists entity IDs by finding <id>/metadata.json entries under root
func (s *Store) scan(ctx context.Context, root string) ([]string, error) {
	paths, err := s.backend.List(ctx, root, "", true)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, p := range paths {
		parts := strings.Split(p, "/")
		if len(parts) == 2 && parts[1] == metadataFile {
			ids = append(ids, parts[0])
		}
	}
	return ids, nil
}
