package batch

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeTags(t *testing.T) {
	tests := []struct {
		name     string
		existing []string
		add      []string
		remove   []string
		want     []string
	}{
		{
			name: "add then remove in one call",
			add:  []string{"A", " a ", "B"}, remove: []string{"B"},
			want: []string{"A", "a"},
		},
		{
			name:     "tags are case sensitive",
			existing: []string{"Wifi"},
			remove:   []string{"wifi"},
			want:     []string{"Wifi"},
		},
		{
			name:     "duplicates collapse",
			existing: []string{"x"},
			add:      []string{"x", "x", "y"},
			want:     []string{"x", "y"},
		},
		{
			name:     "empty and whitespace tags dropped",
			existing: []string{"keep"},
			add:      []string{"", "   "},
			want:     []string{"keep"},
		},
		{
			name:     "removing absent tag is a no-op",
			existing: []string{"a"},
			remove:   []string{"missing"},
			want:     []string{"a"},
		},
		{
			name: "result is sorted",
			add:  []string{"c", "a", "b"},
			want: []string{"a", "b", "c"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, NormalizeTags(tt.existing, tt.add, tt.remove))
		})
	}
}
