package stats

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/surveybatch/internal/storage"
)

func newTestBackend(t *testing.T) storage.Backend {
	t.Helper()
	b, err := storage.NewLocalBackend(storage.LocalConfig{BasePath: t.TempDir()})
	require.NoError(t, err)
	return b
}

func TestReadProjectEquipmentPrefersStructured(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	ns := "projects/p1"

	structured := `{
		"accessPoints": [
			{"vendor": "Cisco", "model": "C9120", "quantity": 4},
			{"vendor": "Aruba", "model": "AP-515"}
		],
		"antennas": [{"model": "ANT-20", "quantity": 2}],
		"floors": 3,
		"buildings": 1
	}`
	_, err := b.Save(ctx, ns, "reports/site_report.json", []byte(structured))
	require.NoError(t, err)
	// A tabular file alongside must be ignored when the structured report exists
	_, err = b.Save(ctx, ns, "reports/site_access_points.csv", []byte("model\nshould-not-appear\n"))
	require.NoError(t, err)

	equipment, err := ReadProjectEquipment(ctx, b, ns)
	require.NoError(t, err)

	require.Len(t, equipment.AccessPoints, 2)
	require.Equal(t, 4, equipment.AccessPoints[0].Quantity)
	// Absent quantity defaults to 1
	require.Equal(t, 1, equipment.AccessPoints[1].Quantity)
	require.Equal(t, 3, equipment.Floors)
	require.Equal(t, 1, equipment.Buildings)
	require.Equal(t, 5, TotalQuantity(equipment.AccessPoints))
	require.Equal(t, 2, TotalQuantity(equipment.Antennas))
}

func TestReadProjectEquipmentTabularFallback(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	ns := "projects/p2"

	aps := "# generated 2026-03-01\n# survey tool v4\nvendor,model,quantity\nCisco,C9120,3\nAruba,AP-515,2\n"
	antennas := "model,qty\nANT-20,6\n"
	_, err := b.Save(ctx, ns, "reports/site_access_points.csv", []byte(aps))
	require.NoError(t, err)
	_, err = b.Save(ctx, ns, "reports/site_antennas.csv", []byte(antennas))
	require.NoError(t, err)

	equipment, err := ReadProjectEquipment(ctx, b, ns)
	require.NoError(t, err)
	require.Equal(t, 5, TotalQuantity(equipment.AccessPoints))
	require.Equal(t, 6, TotalQuantity(equipment.Antennas))
	require.Equal(t, "Cisco", equipment.AccessPoints[0].Vendor)
}

func TestReadProjectEquipmentMissing(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	_, err := ReadProjectEquipment(ctx, b, "projects/empty")
	require.Error(t, err)
	require.True(t, storage.IsNotFound(err))
}

func TestReadProjectEquipmentIgnoresNestedReports(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	ns := "projects/p3"

	// Only direct children of reports/ are report artifacts
	_, err := b.Save(ctx, ns, "reports/archive/old_report.json", []byte("{}"))
	require.NoError(t, err)

	_, err = ReadProjectEquipment(ctx, b, ns)
	require.Error(t, err)
	require.True(t, storage.IsNotFound(err))
}

func TestAPKey(t *testing.T) {
	require.Equal(t, "Cisco|C9120", APKey("Cisco", "C9120"))
	require.Equal(t, "|AP-515", APKey("", "AP-515"))
}
