package utils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const maxStderrLen = 2000

// Kinds of external tool failure. Match with errors.Is.
var (
	ErrDownloadFailed  = errors.New("download failed")
	ErrProbeFailed     = errors.New("probe failed")
	ErrFrameExtraction = errors.New("frame extraction failed")
	ErrAudioMissing    = errors.New("audio missing")
	ErrTranscribe      = errors.New("transcription failed")
	ErrOcrFailed       = errors.New("ocr failed")
)

// CommandResult holds the captured output of a finished process
type CommandResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// CommandRunner runs an external process and captures its output.
// A non-nil error means the process could not start, timed out or exited non-zero;
// the result is still returned when the process ran.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (*CommandResult, error)
}

// ExecRunner runs commands with os/exec
type ExecRunner struct {
	timeout time.Duration
	logger  zerolog.Logger
}

// NewExecRunner creates a runner. A zero timeout means no per-invocation limit.
func NewExecRunner(timeout time.Duration, logger zerolog.Logger) *ExecRunner {
	return &ExecRunner{
		timeout: timeout,
		logger:  logger.With().Str("component", "exec").Logger(),
	}
}

// Run executes name with args
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (*CommandResult, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug().Str("tool", name).Strs("args", args).Msg("running external tool")
	start := time.Now()
	err := cmd.Run()

	result := &CommandResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: -1,
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	r.logger.Debug().
		Str("tool", name).
		Int("exit_code", result.ExitCode).
		Dur("elapsed", time.Since(start)).
		Msg("external tool finished")

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, fmt.Errorf("%s: %w", name, ctxErr)
		}
		return result, err
	}
	return result, nil
}

// ExternalToolError describes a failed external tool invocation
type ExternalToolError struct {
	Kind     error
	Tool     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExternalToolError) Error() string {
	var b strings.Builder
	if e.ExitCode >= 0 {
		fmt.Fprintf(&b, "%s exited with code %d", e.Tool, e.ExitCode)
	} else if e.Err != nil {
		fmt.Fprintf(&b, "%s: %v", e.Tool, e.Err)
	} else {
		fmt.Fprintf(&b, "%s failed", e.Tool)
	}
	if e.Stderr != "" {
		b.WriteString(": ")
		b.WriteString(e.Stderr)
	}
	return b.String()
}

func (e *ExternalToolError) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// newToolError builds an ExternalToolError from a runner result
func newToolError(kind error, tool string, result *CommandResult, err error) *ExternalToolError {
	toolErr := &ExternalToolError{
		Kind:     kind,
		Tool:     tool,
		ExitCode: -1,
		Err:      err,
	}
	if result != nil {
		toolErr.ExitCode = result.ExitCode
		toolErr.Stderr = truncate(strings.TrimSpace(string(result.Stderr)), maxStderrLen)
	}
	return toolErr
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
