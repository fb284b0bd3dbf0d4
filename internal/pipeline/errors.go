package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedDistribution is returned when the host family has no
	// install sequence. No command is run.
	ErrUnsupportedDistribution = errors.New("unsupported distribution")

	// ErrCommandFailed is wrapped by CommandError for commands that failed
	// without timing out.
	ErrCommandFailed = errors.New("command failed")

	// ErrPreflightFailed is matched by every PreflightError.
	ErrPreflightFailed = errors.New("preflight check failed")
)

// CommandError reports the command that halted the pipeline.
type CommandError struct {
	Stage    string
	Command  string
	ExitCode int
	TimedOut bool
	// Output is the tail of the command's captured output.
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Command, e.Err)
}

// Unwrap exposes the cause. Failures that were not timeouts also match
// ErrCommandFailed.
func (e *CommandError) Unwrap() []error {
	if e.TimedOut {
		return []error{e.Err}
	}
	return []error{ErrCommandFailed, e.Err}
}

// PreflightError indicates a pre-flight check failed before any stage ran.
type PreflightError struct {
	Check   string
	Message string
}

func (e *PreflightError) Error() string {
	return fmt.Sprintf("preflight check %q failed: %s", e.Check, e.Message)
}

func (e *PreflightError) Is(target error) bool {
	return target == ErrPreflightFailed
}
