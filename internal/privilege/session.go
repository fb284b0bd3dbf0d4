package privilege

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/seapear/AffinityOnLinux/internal/executor"
	"github.com/seapear/AffinityOnLinux/internal/logging"
	"github.com/seapear/AffinityOnLinux/internal/secmem"
)

var log = logging.L("privilege")

// ValidateTimeout bounds the credential probe.
const ValidateTimeout = 10 * time.Second

var (
	// ErrNotValidated is returned when Run is called before a successful
	// Validate. No process is started.
	ErrNotValidated = errors.New("privileged session not validated")

	// ErrCommandTimeout is wrapped by results of privileged commands killed
	// on timeout.
	ErrCommandTimeout = executor.ErrTimeout
)

// sudoArgs reads the credential from stdin, ignores cached timestamps and
// uses an empty prompt so nothing but command output reaches the pipe.
var sudoArgs = []string{"sudo", "-S", "-k", "-p", ""}

// IsPromptArtifact reports whether line is noise from the elevation tool
// rather than output of the elevated command.
func IsPromptArtifact(line string) bool {
	trimmed := strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(trimmed, "[sudo]"):
		return true
	case strings.HasPrefix(trimmed, "Password:"):
		return true
	case trimmed == "Sorry, try again.":
		return true
	}
	return false
}

// Session runs commands with elevated privileges using one credential that
// is validated once and reused. The credential is only ever written to the
// elevation tool's stdin.
type Session struct {
	mu        sync.Mutex
	runner    executor.Runner
	secret    *secmem.Secret
	direct    bool
	attempted bool
	validated bool
	logger    *zap.Logger
}

// NewSession creates a sudo-backed session. A nil runner uses an executor
// that filters prompt artifacts.
func NewSession(runner executor.Runner) *Session {
	if runner == nil {
		runner = executor.New(executor.Options{Filter: IsPromptArtifact})
	}
	return &Session{runner: runner, logger: log}
}

// NewRootSession creates a session for a process that is already root.
// Commands run directly and validation needs no credential.
func NewRootSession(runner executor.Runner) *Session {
	s := NewSession(runner)
	s.direct = true
	return s
}

// Validate probes the credential once. It returns true iff elevation
// succeeded. The session takes ownership of secret. A second call returns
// false without running anything.
func (s *Session) Validate(ctx context.Context, secret *secmem.Secret) bool {
	s.mu.Lock()
	if s.attempted {
		s.mu.Unlock()
		s.logger.Warn("credential validation already attempted")
		return false
	}
	s.attempted = true
	if s.secret != nil && s.secret != secret {
		s.secret.Zero()
	}
	s.secret = secret
	s.mu.Unlock()

	if s.direct {
		s.setValidated(true)
		s.logger.Info("running as root, elevation not required")
		return true
	}

	result := s.runner.Run(ctx, s.wrap([]string{"true"}, nil), ValidateTimeout, nil)
	if !result.OK {
		s.logger.Warn("credential rejected", zap.Int("exitCode", result.ExitCode), zap.Bool("timedOut", result.TimedOut))
		s.setValidated(false)
		return false
	}

	s.logger.Info("credential validated")
	s.setValidated(true)
	return true
}

// RequiresCredential reports whether Validate needs a secret.
func (s *Session) RequiresCredential() bool {
	return !s.direct
}

// Validated reports whether Validate succeeded.
func (s *Session) Validated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validated
}

// Run executes argv with elevated privileges, streaming filtered output
// lines to sink. It never panics; every failure is reported in the result.
func (s *Session) Run(ctx context.Context, argv, env []string, timeout time.Duration, sink executor.LineSink) executor.Result {
	if !s.Validated() {
		return executor.Result{
			ExitCode: -1,
			Command:  executor.Command{Argv: argv, Env: env}.String(),
			Err:      fmt.Errorf("%w: %s", ErrNotValidated, strings.Join(argv, " ")),
		}
	}

	result := s.runner.Run(ctx, s.wrap(argv, env), timeout, sink)
	if result.TimedOut {
		s.logger.Warn("privileged command timed out", zap.String(logging.KeyCommand, result.Command), zap.Duration("timeout", timeout))
	}
	return result
}

// Close zeroes the credential. The session cannot run commands afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.secret != nil {
		s.secret.Zero()
	}
	s.validated = false
}

func (s *Session) setValidated(v bool) {
	s.mu.Lock()
	s.validated = v
	s.mu.Unlock()
}

// wrap builds the elevated command. Environment is passed through env(1)
// because sudo resets the caller's environment.
func (s *Session) wrap(argv, env []string) executor.Command {
	inner := argv
	if len(env) > 0 {
		inner = append(append([]string{"env"}, env...), argv...)
	}
	if s.direct {
		return executor.Command{Argv: argv, Env: env}
	}

	full := make([]string, 0, len(sudoArgs)+1+len(inner))
	full = append(full, sudoArgs...)
	full = append(full, "--")
	full = append(full, inner...)

	secret := s.secret
	return executor.Command{
		Argv: full,
		Feed: func(w io.Writer) error {
			return secret.WriteLine(w)
		},
	}
}
