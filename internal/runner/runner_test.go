package runner

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/surveybatch/internal/models"
)

func TestBuildArgs(t *testing.T) {
	r := NewExecRunner("survey-convert", []string{"--quiet"}, 0, nil)

	req := Request{
		InputPath: "/tmp/in/site.esx",
		OutputDir: "/tmp/out",
		Options: models.ProcessingOptions{
			GroupingKey:            "building",
			OutputFormats:          []string{"json", "csv"},
			GenerateVisualizations: true,
			MarkerOpacity:          0.5,
		},
	}

	want := []string{
		"--quiet",
		"--input", "/tmp/in/site.esx",
		"--output", "/tmp/out",
		"--group-by", "building",
		"--format", "json",
		"--format", "csv",
		"--visualize",
		"--marker-opacity", "0.5",
	}
	require.Equal(t, want, r.BuildArgs(req))

	// Same request, same argument list
	require.Equal(t, r.BuildArgs(req), r.BuildArgs(req))
}

func TestBuildArgsMinimal(t *testing.T) {
	r := NewExecRunner("survey-convert", nil, 0, nil)
	args := r.BuildArgs(Request{InputPath: "a.esx", OutputDir: "out"})
	require.Equal(t, []string{"--input", "a.esx", "--output", "out"}, args)
}

func TestRunCapturesFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	// The flag arguments become positional parameters of the script and are
	// ignored by it.
	r := NewExecRunner("/bin/sh", []string{"-c", "echo boom >&2; exit 3", "sh"}, 0, nil)

	_, err := r.Run(context.Background(), Request{InputPath: "in", OutputDir: "out"})
	require.Error(t, err)

	var procErr *ProcessingError
	require.True(t, errors.As(err, &procErr))
	require.Equal(t, 3, procErr.ExitCode)
	require.Contains(t, procErr.Stderr, "boom")
	require.Contains(t, procErr.Error(), "exited with code 3")
}

func TestRunSuccess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	r := NewExecRunner("/bin/sh", []string{"-c", "echo done", "sh"}, time.Minute, nil)

	result, err := r.Run(context.Background(), Request{InputPath: "in", OutputDir: "out"})
	require.NoError(t, err)
	require.Contains(t, result.Stdout, "done")
	require.Greater(t, result.Duration, time.Duration(0))
}

func TestRunMissingCommand(t *testing.T) {
	r := NewExecRunner("/definitely/not/a/command", nil, 0, nil)

	_, err := r.Run(context.Background(), Request{InputPath: "in", OutputDir: "out"})
	require.Error(t, err)

	var procErr *ProcessingError
	require.False(t, errors.As(err, &procErr))
}
