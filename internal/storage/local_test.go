package storage

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T) *LocalBackend {
	t.Helper()
	b, err := NewLocalBackend(LocalConfig{BasePath: t.TempDir()})
	require.NoError(t, err)
	return b
}

func TestLocalSaveGetOverwrite(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	locator, err := b.Save(ctx, "projects/p1", "reports/site_report.json", []byte("v1"))
	require.NoError(t, err)
	require.NotEmpty(t, locator)

	data, err := b.Get(ctx, "projects/p1", "reports/site_report.json")
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), data)

	// Overwrites are idempotent
	_, err = b.Save(ctx, "projects/p1", "reports/site_report.json", []byte("v2"))
	require.NoError(t, err)
	data, err = b.Get(ctx, "projects/p1", "reports/site_report.json")
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), data)
}

func TestLocalGetMissing(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	_, err := b.Get(ctx, "projects/p1", "nope.txt")
	require.Error(t, err)
	require.True(t, IsNotFound(err))
}

func TestLocalDeleteMissingReturnsFalse(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	removed, err := b.Delete(ctx, "projects/p1", "nope.txt")
	require.NoError(t, err)
	require.False(t, removed)

	_, err = b.Save(ctx, "projects/p1", "a.txt", []byte("x"))
	require.NoError(t, err)
	removed, err = b.Delete(ctx, "projects/p1", "a.txt")
	require.NoError(t, err)
	require.True(t, removed)
}

func TestLocalDeleteAll(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	removed, err := b.DeleteAll(ctx, "projects/p1")
	require.NoError(t, err)
	require.False(t, removed)

	// Many objects, well past the object-store per-request delete limit,
	// must disappear in a single call.
	for i := 0; i < 1005; i++ {
		_, err := b.Save(ctx, "projects/p1", fmt.Sprintf("blob-%04d.bin", i), []byte("x"))
		require.NoError(t, err)
	}

	removed, err = b.DeleteAll(ctx, "projects/p1")
	require.NoError(t, err)
	require.True(t, removed)

	exists, err := b.Exists(ctx, "projects/p1", "")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestLocalExistsNamespace(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	exists, err := b.Exists(ctx, "projects/p1", "")
	require.NoError(t, err)
	require.False(t, exists)

	_, err = b.Save(ctx, "projects/p1", "a.txt", []byte("x"))
	require.NoError(t, err)

	exists, err = b.Exists(ctx, "projects/p1", "")
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = b.Exists(ctx, "projects/p1", "a.txt")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestLocalListSortedAndNonRecursive(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	for _, p := range []string{
		"reports/z.csv",
		"reports/a.csv",
		"reports/visualizations/floor1.png",
		"original.esx",
	} {
		_, err := b.Save(ctx, "projects/p1", p, []byte("x"))
		require.NoError(t, err)
	}

	all, err := b.List(ctx, "projects/p1", "", true)
	require.NoError(t, err)
	require.Equal(t, []string{
		"original.esx",
		"reports/a.csv",
		"reports/visualizations/floor1.png",
		"reports/z.csv",
	}, all)

	// Non-recursive listing excludes entries nested past the prefix
	shallow, err := b.List(ctx, "projects/p1", "reports/", false)
	require.NoError(t, err)
	require.Equal(t, []string{"reports/a.csv", "reports/z.csv"}, shallow)

	none, err := b.List(ctx, "projects/does-not-exist", "", true)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestLocalSize(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	_, err := b.Save(ctx, "projects/p1", "a.bin", make([]byte, 100))
	require.NoError(t, err)
	_, err = b.Save(ctx, "projects/p1", "sub/b.bin", make([]byte, 50))
	require.NoError(t, err)

	size, err := b.Size(ctx, "projects/p1")
	require.NoError(t, err)
	require.Equal(t, int64(150), size)
}

func TestFilterPaths(t *testing.T) {
	paths := func() []string {
		return []string{"a.txt", "reports/a.csv", "reports/deep/x.png", "reports/z.csv"}
	}

	tests := []struct {
		name      string
		prefix    string
		recursive bool
		want      []string
	}{
		{"all recursive", "", true, []string{"a.txt", "reports/a.csv", "reports/deep/x.png", "reports/z.csv"}},
		{"root non-recursive", "", false, []string{"a.txt"}},
		{"prefix recursive", "reports/", true, []string{"reports/a.csv", "reports/deep/x.png", "reports/z.csv"}},
		{"prefix non-recursive", "reports/", false, []string{"reports/a.csv", "reports/z.csv"}},
		{"no match", "other/", true, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, filterPaths(paths(), tt.prefix, tt.recursive))
		})
	}
}
