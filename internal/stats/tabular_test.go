package stats

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTabular(t *testing.T) {
	data := []byte("# comment line\n\n# another\nVendor,Model,Quantity\nCisco,C9120,3\nAruba,AP-515,\n,ANT-only,2\n")

	entries, err := parseTabular(data)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	require.Equal(t, "Cisco", entries[0].Vendor)
	require.Equal(t, "C9120", entries[0].Model)
	require.Equal(t, 3, entries[0].Quantity)

	// Unparseable quantity defaults to 1
	require.Equal(t, 1, entries[1].Quantity)
	require.Empty(t, entries[2].Vendor)
	require.Equal(t, 2, entries[2].Quantity)
}

func TestParseTabularSkipsBlankModelRows(t *testing.T) {
	entries, err := parseTabular([]byte("model,quantity\n,5\nANT-20,2\n"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "ANT-20", entries[0].Model)
}

func TestParseTabularRequiresModelColumn(t *testing.T) {
	_, err := parseTabular([]byte("vendor,quantity\nCisco,5\n"))
	require.Error(t, err)
}

func TestParseTabularAllComments(t *testing.T) {
	entries, err := parseTabular([]byte("# nothing here\n# at all\n"))
	require.NoError(t, err)
	require.Empty(t, entries)
}
