package batch

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/example/surveybatch/internal/models"
)

// Filter narrows a batch listing. Nil/empty fields match everything.
type Filter struct {
	// Status keeps only batches in this lifecycle state
	Status *models.BatchStatus
	// Tags keeps only batches carrying every listed tag
	Tags []string
	// CreatedFrom/CreatedTo bound the creation timestamp (inclusive)
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	// MinProjects/MaxProjects bound the project count (inclusive)
	MinProjects *int
	MaxProjects *int
	// Search matches a case-insensitive substring of the batch name or of
	// any constituent project filename
	Search string
}

// SortKey selects the ordering of a batch listing
type SortKey string

const (
	SortByCreated      SortKey = "created"
	SortByName         SortKey = "name"
	SortByProjectCount SortKey = "projects"
	SortBySuccessRate  SortKey = "success_rate"
)

// Sort describes the requested ordering
type Sort struct {
	Key        SortKey
	Descending bool
}

// List returns the batches matching the filter in the requested order.
// Malformed ranges and unknown sort keys are rejected with a
// ValidationError before anything is loaded.
func (o *Orchestrator) List(ctx context.Context, filter Filter, sortSpec Sort) ([]*models.BatchRecord, error) {
	if filter.CreatedFrom != nil && filter.CreatedTo != nil && filter.CreatedFrom.After(*filter.CreatedTo) {
		return nil, validationErrf("creation date range is inverted")
	}
	if filter.MinProjects != nil && filter.MaxProjects != nil && *filter.MinProjects > *filter.MaxProjects {
		return nil, validationErrf("project count range is inverted")
	}
	switch sortSpec.Key {
	case "", SortByCreated, SortByName, SortByProjectCount, SortBySuccessRate:
	default:
		return nil, validationErrf("unknown sort key %q", sortSpec.Key)
	}

	all, err := o.store.ListBatches(ctx)
	if err != nil {
		return nil, err
	}

	matched := make([]*models.BatchRecord, 0, len(all))
	for _, b := range all {
		if matches(b, filter) {
			matched = append(matched, b)
		}
	}

	sortBatches(matched, sortSpec)
	return matched, nil
}

func matches(b *models.BatchRecord, f Filter) bool {
	if f.Status != nil && b.Status != *f.Status {
		return false
	}
	for _, want := range f.Tags {
		found := false
		for _, have := range b.Tags {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.CreatedFrom != nil && b.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && b.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	if f.MinProjects != nil && len(b.ProjectIDs) < *f.MinProjects {
		return false
	}
	if f.MaxProjects != nil && len(b.ProjectIDs) > *f.MaxProjects {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(b.Name), needle) {
			found := false
			for _, e := range b.ProjectStatuses {
				if strings.Contains(strings.ToLower(e.Filename), needle) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}

func sortBatches(batches []*models.BatchRecord, s Sort) {
	less := func(a, b *models.BatchRecord) bool {
		switch s.Key {
		case SortByName:
			return a.Name < b.Name
		case SortByProjectCount:
			return len(a.ProjectIDs) < len(b.ProjectIDs)
		case SortBySuccessRate:
			return a.SuccessRate() < b.SuccessRate()
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	}
	sort.SliceStable(batches, func(i, j int) bool {
		if s.Descending {
			return less(batches[j], batches[i])
		}
		return less(batches[i], batches[j])
	})
}
