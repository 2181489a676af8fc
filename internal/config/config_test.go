package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "local", s.Storage.Provider)
	require.Equal(t, "survey-convert", s.Processing.Command)
	require.Equal(t, 600, s.Processing.TimeoutSeconds)
	require.Equal(t, 60, s.Archive.ProjectMaxAgeDays)
	require.Equal(t, 90, s.Archive.BatchMaxAgeDays)
	require.Equal(t, "info", s.Logging.Level)
	require.Equal(t, ":8090", s.Events.Addr)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "surveybatch.yaml")
	content := `
storage:
  provider: s3
  s3:
    region: eu-west-1
    bucket: surveys
processing:
  command: /opt/bin/convert
  timeoutSeconds: 120
logging:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	s, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "s3", s.Storage.Provider)
	require.Equal(t, "surveys", s.Storage.S3.Bucket)
	require.Equal(t, "/opt/bin/convert", s.Processing.Command)
	require.Equal(t, 120, s.Processing.TimeoutSeconds)
	require.Equal(t, "debug", s.Logging.Level)
	// Untouched keys keep their defaults
	require.Equal(t, 60, s.Archive.ProjectMaxAgeDays)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SB_STORAGE_PROVIDER", "gcs")
	t.Setenv("SB_LOGGING_LEVEL", "warn")

	s, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "gcs", s.Storage.Provider)
	require.Equal(t, "warn", s.Logging.Level)
}

func TestLoadValidation(t *testing.T) {
	t.Run("bad provider", func(t *testing.T) {
		t.Setenv("SB_STORAGE_PROVIDER", "ftp")
		_, err := Load("")
		require.Error(t, err)
	})
	t.Run("bad format", func(t *testing.T) {
		t.Setenv("SB_LOGGING_FORMAT", "xml")
		_, err := Load("")
		require.Error(t, err)
	})
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
	})
}
