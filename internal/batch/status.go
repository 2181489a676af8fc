package batch

import (
	"github.com/example/surveybatch/internal/models"
)

// TerminalStatus resolves the batch outcome once every project has been
// attempted: Completed when nothing failed (vacuously for an empty batch),
// Failed when nothing succeeded, Partial otherwise.
func TerminalStatus(successful, failed int) models.BatchStatus {
	if failed == 0 {
		return models.BatchCompleted
	}
	if successful == 0 {
		return models.BatchFailed
	}
	return models.BatchPartial
}

// countOutcomes tallies the per-project status entries
func countOutcomes(entries []models.ProjectStatusEntry) (successful, failed int) {
	for _, e := range entries {
		switch e.Status {
		case models.ProjectCompleted:
			successful++
		case models.ProjectFailed:
			failed++
		}
	}
	return successful, failed
}
