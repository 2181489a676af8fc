package models

import (
	"time"
)

// BatchStatus represents the lifecycle state of a batch
type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
	BatchPartial    BatchStatus = "partial"
)

// Terminal reports whether no further automatic transition occurs from this status.
func (s BatchStatus) Terminal() bool {
	return s == BatchCompleted || s == BatchFailed || s == BatchPartial
}

// ProcessingOptions are the options passed through to the processing command
type ProcessingOptions struct {
	GroupingKey            string   `json:"groupingKey"`
	OutputFormats          []string `json:"outputFormats"`
	GenerateVisualizations bool     `json:"generateVisualizations"`
	MarkerOpacity          float64  `json:"markerOpacity"`
}

// ProjectStatusEntry tracks one project's outcome within a batch
type ProjectStatusEntry struct {
	ProjectID       string        `json:"projectId"`
	Filename        string        `json:"filename"`
	Status          ProjectStatus `json:"status"`
	DurationSeconds *float64      `json:"durationSeconds,omitempty"`
	Error           string        `json:"error,omitempty"`
	AccessPoints    int           `json:"accessPoints,omitempty"`
	Antennas        int           `json:"antennas,omitempty"`
}

// BatchStatistics aggregates equipment counts across a batch's completed projects.
// The two model maps are rebuilt from scratch on every recalculation so that
// recomputation from persisted state alone is idempotent.
type BatchStatistics struct {
	TotalProjects          int     `json:"totalProjects"`
	SuccessfulProjects     int     `json:"successfulProjects"`
	FailedProjects         int     `json:"failedProjects"`
	TotalProcessingSeconds float64 `json:"totalProcessingSeconds"`
	TotalAccessPoints      int     `json:"totalAccessPoints"`
	TotalAntennas          int     `json:"totalAntennas"`

	// AccessPointModels is keyed "vendor|model", AntennaModels is keyed "model"
	AccessPointModels map[string]int `json:"accessPointModels"`
	AntennaModels     map[string]int `json:"antennaModels"`
}

// NewBatchStatistics returns an empty statistics record with initialized maps
func NewBatchStatistics() *BatchStatistics {
	return &BatchStatistics{
		AccessPointModels: make(map[string]int),
		AntennaModels:     make(map[string]int),
	}
}

// BatchRecord represents a named collection of projects processed together
type BatchRecord struct {
	ID              string               `json:"id"`
	Name            string               `json:"name"`
	ProjectIDs      []string             `json:"projectIds"`
	ProjectStatuses []ProjectStatusEntry `json:"projectStatuses"`
	Options         ProcessingOptions    `json:"options"`

	// WorkerCount bounds project-level parallelism during a run
	WorkerCount int `json:"workerCount"`

	Status     BatchStatus      `json:"status"`
	Progress   int              `json:"progress"`
	Statistics *BatchStatistics `json:"statistics,omitempty"`
	Tags       []string         `json:"tags,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	ProcessedAt *time.Time `json:"processedAt,omitempty"`

	Archived          bool       `json:"archived"`
	ArchivedAt        *time.Time `json:"archivedAt,omitempty"`
	ArchivedSizeBytes int64      `json:"archivedSizeBytes,omitempty"`
	OriginalSizeBytes int64      `json:"originalSizeBytes,omitempty"`

	LastAccessedAt *time.Time `json:"lastAccessedAt,omitempty"`
}

// StatusEntry returns the status entry for the given project, or nil
func (b *BatchRecord) StatusEntry(projectID string) *ProjectStatusEntry {
	for i := range b.ProjectStatuses {
		if b.ProjectStatuses[i].ProjectID == projectID {
			return &b.ProjectStatuses[i]
		}
	}
	return nil
}

// HasProject reports whether the batch already contains the given project
func (b *BatchRecord) HasProject(projectID string) bool {
	for _, id := range b.ProjectIDs {
		if id == projectID {
			return true
		}
	}
	return false
}

// SuccessRate returns successful/total, zero-guarded
func (b *BatchRecord) SuccessRate() float64 {
	if len(b.ProjectIDs) == 0 {
		return 0
	}
	successful := 0
	for _, e := range b.ProjectStatuses {
		if e.Status == ProjectCompleted {
			successful++
		}
	}
	return float64(successful) / float64(len(b.ProjectIDs))
}

// LastActivity returns the last-accessed time, falling back to creation time
func (b *BatchRecord) LastActivity() time.Time {
	if b.LastAccessedAt != nil {
		return *b.LastAccessedAt
	}
	return b.CreatedAt
}
