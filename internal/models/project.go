// Package models provides the persisted record types for the survey batch system
package models

import (
	"time"
)

// ProjectStatus represents the processing state of a single project
type ProjectStatus string

const (
	ProjectPending    ProjectStatus = "pending"
	ProjectProcessing ProjectStatus = "processing"
	ProjectCompleted  ProjectStatus = "completed"
	ProjectFailed     ProjectStatus = "failed"
)

// Terminal reports whether no further automatic transition occurs from this status.
func (s ProjectStatus) Terminal() bool {
	return s == ProjectCompleted || s == ProjectFailed
}

// ProjectRecord represents one uploaded survey archive and its derived artifacts
type ProjectRecord struct {
	ID             string        `json:"id"`
	Filename       string        `json:"filename"`
	SizeBytes      int64         `json:"sizeBytes"`
	UploadedAt     time.Time     `json:"uploadedAt"`
	Status         ProjectStatus `json:"status"`
	Error          string        `json:"error,omitempty"`

	// Survey counts extracted from the generated report; nil until processing succeeds
	AccessPointCount *int `json:"accessPointCount,omitempty"`
	AntennaCount     *int `json:"antennaCount,omitempty"`
	FloorCount       *int `json:"floorCount,omitempty"`
	BuildingCount    *int `json:"buildingCount,omitempty"`

	// Paths are relative to the project namespace
	OriginalPath       string   `json:"originalPath"`
	ReportPaths        []string `json:"reportPaths,omitempty"`
	VisualizationPaths []string `json:"visualizationPaths,omitempty"`

	Archived          bool       `json:"archived"`
	ArchivedAt        *time.Time `json:"archivedAt,omitempty"`
	ArchivedSizeBytes int64      `json:"archivedSizeBytes,omitempty"`
	OriginalSizeBytes int64      `json:"originalSizeBytes,omitempty"`

	LastAccessedAt *time.Time `json:"lastAccessedAt,omitempty"`
}

// LastActivity returns the last-accessed time, falling back to the upload time
// when the project has never been accessed.
func (p *ProjectRecord) LastActivity() time.Time {
	if p.LastAccessedAt != nil {
		return *p.LastAccessedAt
	}
	return p.UploadedAt
}
