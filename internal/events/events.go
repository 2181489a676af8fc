// Package events defines the progress events emitted during batch
// processing and the notifier contract consumed by delivery layers.
package events

import "time"

// Event types emitted by the orchestrator
const (
	TypeProjectStarted   = "project_started"
	TypeProjectCompleted = "project_completed"
	TypeProjectFailed    = "project_failed"
	TypeBatchProgress    = "batch_progress"
	TypeBatchFinished    = "batch_finished"
)

// Event is one progress update for a batch run
type Event struct {
	Type      string    `json:"type"`
	BatchID   string    `json:"batchId"`
	ProjectID string    `json:"projectId,omitempty"`
	Filename  string    `json:"filename,omitempty"`
	Percent   int       `json:"percent,omitempty"`
	Status    string    `json:"status,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier delivers progress events. Delivery (email, webhook, UI push) is
// an external concern; implementations must not block the processing loop.
type Notifier interface {
	Publish(event Event)
}

// NopNotifier discards every event
type NopNotifier struct{}

// Publish implements Notifier
func (NopNotifier) Publish(Event) {}
