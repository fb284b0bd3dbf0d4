package executor

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"mvdan.cc/sh/v3/syntax"

	"github.com/seapear/AffinityOnLinux/internal/logging"
)

var log = logging.L("executor")

const (
	// DefaultTimeout is the per-command timeout when none is given.
	DefaultTimeout = 300 * time.Second

	// MaxTimeout caps any requested timeout.
	MaxTimeout = time.Hour

	// MaxOutputSize is the maximum amount of combined output to capture.
	MaxOutputSize = 1024 * 1024

	// DefaultGracePeriod is how long a timed-out process group gets between
	// SIGTERM and SIGKILL.
	DefaultGracePeriod = 5 * time.Second

	// drainDelay bounds how long output is still read after the process
	// exits, in case a daemonised grandchild keeps the pipe open.
	drainDelay = 2 * time.Second
)

var (
	// ErrTimeout is wrapped by results of commands killed on timeout.
	ErrTimeout = errors.New("command timed out")

	// ErrExitStatus is wrapped by results of commands that exited non-zero.
	ErrExitStatus = errors.New("command exited with non-zero status")

	// ErrStart is wrapped by results of commands that could not be started.
	ErrStart = errors.New("command could not be started")

	// ErrCanceled is wrapped by results of commands interrupted by the caller.
	ErrCanceled = errors.New("command canceled")
)

// Command is one subprocess invocation.
type Command struct {
	Argv []string
	// Env holds extra KEY=VALUE entries appended to the inherited environment.
	Env []string
	Dir string
	// Feed, when set, receives the child's stdin right after start. Stdin is
	// closed when Feed returns.
	Feed func(w io.Writer) error
}

// String renders the command as a shell-quoted line for logs and errors.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Env)+len(c.Argv))
	for _, kv := range c.Env {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		parts = append(parts, k+"="+quote(v))
	}
	for _, a := range c.Argv {
		parts = append(parts, quote(a))
	}
	return strings.Join(parts, " ")
}

func quote(s string) string {
	q, err := syntax.Quote(s, syntax.LangBash)
	if err != nil {
		return fmt.Sprintf("%q", s)
	}
	return q
}

// LineSink receives each output line as it is produced.
type LineSink func(line string)

// Result captures the outcome of a command. It never carries a Go panic or a
// nil Err when OK is false.
type Result struct {
	OK       bool
	ExitCode int
	Output   string
	Command  string
	TimedOut bool
	Err      error
	Duration time.Duration
}

// Tail returns the last n non-empty lines of the captured output.
func (r Result) Tail(n int) string {
	lines := strings.Split(strings.TrimRight(r.Output, "\n"), "\n")
	kept := make([]string, 0, n)
	for i := len(lines) - 1; i >= 0 && len(kept) < n; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			kept = append(kept, lines[i])
		}
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return strings.Join(kept, "\n")
}

// Runner executes commands with streamed output.
type Runner interface {
	Run(ctx context.Context, cmd Command, timeout time.Duration, sink LineSink) Result
}

// Options tune an Executor.
type Options struct {
	// Filter returns true for lines that must be dropped before they reach
	// the sink or the captured output.
	Filter      func(line string) bool
	GracePeriod time.Duration
	MaxOutput   int
	// MaxTimeout overrides the MaxTimeout cap.
	MaxTimeout time.Duration
}

// Executor runs subprocesses in their own process group, streaming combined
// stdout and stderr line by line.
type Executor struct {
	filter     func(string) bool
	grace      time.Duration
	maxOutput  int
	maxTimeout time.Duration
	logger     *zap.Logger
}

// New creates an Executor.
func New(opts Options) *Executor {
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.MaxOutput <= 0 {
		opts.MaxOutput = MaxOutputSize
	}
	if opts.MaxTimeout <= 0 {
		opts.MaxTimeout = MaxTimeout
	}
	return &Executor{
		filter:     opts.Filter,
		grace:      opts.GracePeriod,
		maxOutput:  opts.MaxOutput,
		maxTimeout: opts.MaxTimeout,
		logger:     log,
	}
}

// Run executes cmd, blocking until it exits, times out or ctx is done.
func (e *Executor) Run(ctx context.Context, c Command, timeout time.Duration, sink LineSink) Result {
	startTime := time.Now()
	result := Result{ExitCode: -1, Command: c.String()}

	if len(c.Argv) == 0 || c.Argv[0] == "" {
		result.Err = fmt.Errorf("%w: empty command", ErrStart)
		return result
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if timeout > e.maxTimeout {
		timeout = e.maxTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.Argv[0], c.Argv[1:]...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)
	setProcessGroup(cmd)
	// The child leads its own group, so its PID is the group ID.
	cmd.Cancel = func() error {
		return signalGroup(cmd.Process.Pid, terminateSignal)
	}
	cmd.WaitDelay = e.grace

	pr, pw, err := os.Pipe()
	if err != nil {
		result.Err = fmt.Errorf("%w: %v", ErrStart, err)
		return result
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	var stdin io.WriteCloser
	if c.Feed != nil {
		stdin, err = cmd.StdinPipe()
		if err != nil {
			pr.Close()
			pw.Close()
			result.Err = fmt.Errorf("%w: %v", ErrStart, err)
			return result
		}
	}

	e.logger.Debug("starting command", zap.String(logging.KeyCommand, result.Command), zap.Duration("timeout", timeout))

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		result.Err = fmt.Errorf("%w: %v", ErrStart, err)
		result.Duration = time.Since(startTime)
		e.logger.Warn("command failed to start", zap.String(logging.KeyCommand, result.Command), zap.Error(err))
		return result
	}
	// The child holds its own copy of the write end.
	pw.Close()

	var captured bytes.Buffer
	out := &limitedWriter{buf: &captured, limit: e.maxOutput}
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		e.readLines(pr, out, sink)
	}()

	if stdin != nil {
		if err := c.Feed(stdin); err != nil {
			e.logger.Warn("failed to feed command stdin", zap.String(logging.KeyCommand, result.Command), zap.Error(err))
		}
		stdin.Close()
	}

	waitErr := cmd.Wait()

	// Wait only reaps the leader. Children that ignored SIGTERM still hold
	// the group open.
	if runCtx.Err() != nil {
		if killErr := signalGroup(cmd.Process.Pid, killSignal); killErr != nil {
			e.logger.Debug("process group already gone", zap.Error(killErr))
		}
	}

	select {
	case <-readDone:
	case <-time.After(drainDelay):
		// A lingering grandchild still holds the pipe open.
		pr.Close()
		<-readDone
	}
	pr.Close()

	result.Output = captured.String()
	result.Duration = time.Since(startTime)

	switch {
	case runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil:
		result.TimedOut = true
		result.Err = fmt.Errorf("%w after %s", ErrTimeout, timeout)
		e.logger.Warn("command timed out", zap.String(logging.KeyCommand, result.Command), zap.Duration("timeout", timeout))
	case ctx.Err() != nil:
		result.Err = fmt.Errorf("%w: %v", ErrCanceled, ctx.Err())
		e.logger.Warn("command canceled", zap.String(logging.KeyCommand, result.Command))
	case waitErr != nil:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			result.Err = fmt.Errorf("%w: exit status %d", ErrExitStatus, result.ExitCode)
		} else {
			result.Err = fmt.Errorf("%w: %v", ErrExitStatus, waitErr)
		}
		e.logger.Info("command failed", zap.String(logging.KeyCommand, result.Command), zap.Int("exitCode", result.ExitCode))
	default:
		result.OK = true
		result.ExitCode = 0
		e.logger.Debug("command completed", zap.String(logging.KeyCommand, result.Command), zap.Int64(logging.KeyDurationMs, result.Duration.Milliseconds()))
	}

	return result
}

func (e *Executor) readLines(r io.Reader, out io.Writer, sink LineSink) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if e.filter != nil && e.filter(line) {
			continue
		}
		io.WriteString(out, line+"\n")
		if sink != nil {
			sink(line)
		}
	}
}

// Available reports whether name resolves to an executable on PATH.
func Available(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// limitedWriter wraps a buffer with a size limit
type limitedWriter struct {
	mu      sync.Mutex
	buf     *bytes.Buffer
	limit   int
	written int
}

func (w *limitedWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.written >= w.limit {
		// Discard additional data but don't error
		return len(p), nil
	}

	remaining := w.limit - w.written
	if len(p) > remaining {
		p = p[:remaining]
	}

	n, err = w.buf.Write(p)
	w.written += n
	return len(p), err // Return original length to avoid short write errors
}
