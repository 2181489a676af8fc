package batch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/surveybatch/internal/models"
)

func TestTerminalStatus(t *testing.T) {
	tests := []struct {
		name       string
		successful int
		failed     int
		want       models.BatchStatus
	}{
		{"all succeed", 5, 0, models.BatchCompleted},
		{"all fail", 0, 5, models.BatchFailed},
		{"mixed", 3, 2, models.BatchPartial},
		{"single success", 1, 0, models.BatchCompleted},
		{"single failure", 0, 1, models.BatchFailed},
		// Nothing failed in an empty batch, so it completes vacuously
		{"empty batch", 0, 0, models.BatchCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, TerminalStatus(tt.successful, tt.failed))
		})
	}
}

func TestCountOutcomes(t *testing.T) {
	entries := []models.ProjectStatusEntry{
		{Status: models.ProjectCompleted},
		{Status: models.ProjectFailed},
		{Status: models.ProjectCompleted},
		{Status: models.ProjectPending},
	}
	successful, failed := countOutcomes(entries)
	require.Equal(t, 2, successful)
	require.Equal(t, 1, failed)
}
