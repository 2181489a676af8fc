// Package runner invokes the external processing command that turns a
// survey archive into report artifacts. The command is opaque: this
// subsystem only looks at its exit code and the files it wrote.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/example/surveybatch/internal/models"
)

// Request describes one invocation of the processing command
type Request struct {
	// InputPath is the survey archive on the local filesystem
	InputPath string
	// OutputDir is where the command must write its report artifacts
	OutputDir string
	// Options are forwarded as command flags
	Options models.ProcessingOptions
}

// Result captures a successful invocation
type Result struct {
	Duration time.Duration
	Stdout   string
}

// ProcessingError represents a non-zero exit from the processing command.
// It is recorded on the specific project and never aborts the batch.
type ProcessingError struct {
	ExitCode int
	Stderr   string
}

func (e *ProcessingError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("processing command exited with code %d: %s", e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("processing command exited with code %d", e.ExitCode)
}

// CommandRunner runs the processing command for one project
type CommandRunner interface {
	Run(ctx context.Context, req Request) (*Result, error)
}

// ExecRunner executes a configured binary via the OS
type ExecRunner struct {
	// Command is the processing binary
	Command string
	// ExtraArgs are prepended before the request-derived flags
	ExtraArgs []string
	// Timeout bounds a single invocation; zero means no limit
	Timeout time.Duration

	log *logrus.Entry
}

// NewExecRunner creates a runner for the given command
func NewExecRunner(command string, extraArgs []string, timeout time.Duration, log *logrus.Entry) *ExecRunner {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &ExecRunner{Command: command, ExtraArgs: extraArgs, Timeout: timeout, log: log}
}

// BuildArgs derives the deterministic argument list for a request
func (r *ExecRunner) BuildArgs(req Request) []string {
	args := append([]string{}, r.ExtraArgs...)
	args = append(args, "--input", req.InputPath, "--output", req.OutputDir)
	if req.Options.GroupingKey != "" {
		args = append(args, "--group-by", req.Options.GroupingKey)
	}
	for _, format := range req.Options.OutputFormats {
		args = append(args, "--format", format)
	}
	if req.Options.GenerateVisualizations {
		args = append(args, "--visualize")
		args = append(args, "--marker-opacity",
			strconv.FormatFloat(req.Options.MarkerOpacity, 'f', -1, 64))
	}
	return args
}

// Run executes the command synchronously. The caller is expected to invoke
// it off any cooperative loop; the command is CPU/IO bound and blocking.
func (r *ExecRunner) Run(ctx context.Context, req Request) (*Result, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.Command, r.BuildArgs(req)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	r.log.WithFields(logrus.Fields{
		"command": r.Command,
		"input":   req.InputPath,
	}).Debug("invoking processing command")

	err := cmd.Run()
	duration := time.Since(start)

	if err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else if ctx.Err() == nil {
			// Command could not be started at all
			return nil, fmt.Errorf("start processing command %s: %w", r.Command, err)
		}
		return nil, &ProcessingError{
			ExitCode: exitCode,
			Stderr:   stderr.String(),
		}
	}

	return &Result{Duration: duration, Stdout: stdout.String()}, nil
}
