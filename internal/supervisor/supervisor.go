// Package supervisor runs the installation worker as a child process and
// tracks its progress from the protocol lines it prints.
package supervisor

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/seapear/AffinityOnLinux/internal/executor"
	"github.com/seapear/AffinityOnLinux/internal/logging"
	"github.com/seapear/AffinityOnLinux/internal/monitor"
	"github.com/seapear/AffinityOnLinux/internal/protocol"
	"github.com/seapear/AffinityOnLinux/internal/secmem"
)

var log = logging.L("supervisor")

const (
	// WorkerTimeout bounds a whole worker run.
	WorkerTimeout = 24 * time.Hour

	// DefaultLogLines is how many decoded lines the snapshot keeps.
	DefaultLogLines = 200

	exitCancelled = 130
)

// Broadcaster receives every state change. *websocket.Hub satisfies it.
type Broadcaster interface {
	Broadcast(v any)
}

// Options configure a Supervisor.
type Options struct {
	// Executable is the worker binary; empty means the running executable.
	Executable string
	// Args are the worker arguments. They must never carry the credential.
	Args []string
	// LogPath is the worker's action log, watched for growth.
	LogPath string
	// Secret, when set, is written to the worker's stdin and zeroed after
	// the worker exits.
	Secret *secmem.Secret

	Sink        protocol.Sink
	Broadcaster Broadcaster

	Interval      time.Duration
	IdleThreshold time.Duration
	MaxLogLines   int

	Runner executor.Runner
}

// Snapshot is the observable state of a supervised run.
type Snapshot struct {
	Percent  int      `json:"percent"`
	Message  string   `json:"message"`
	Finished bool     `json:"finished"`
	Success  bool     `json:"success"`
	Error    string   `json:"error,omitempty"`
	Activity string   `json:"activity,omitempty"`
	Elapsed  int      `json:"elapsedSeconds"`
	ExitCode int      `json:"exitCode"`
	Log      []string `json:"log,omitempty"`
}

// FeedMessage is what feed clients receive.
type FeedMessage struct {
	Type     string    `json:"type"`
	Kind     string    `json:"kind,omitempty"`
	Level    string    `json:"level,omitempty"`
	Percent  int       `json:"percent,omitempty"`
	Message  string    `json:"message,omitempty"`
	Activity string    `json:"activity,omitempty"`
	State    *Snapshot `json:"state,omitempty"`
}

// Supervisor owns one worker process.
type Supervisor struct {
	opts   Options
	runner executor.Runner
	mon    *monitor.Monitor

	mu       sync.Mutex
	state    Snapshot
	lastIdle string
	logLines []string
}

// New creates a Supervisor.
func New(opts Options) *Supervisor {
	if opts.Interval <= 0 {
		opts.Interval = monitor.DefaultInterval
	}
	if opts.IdleThreshold <= 0 {
		opts.IdleThreshold = monitor.DefaultIdleThreshold
	}
	if opts.MaxLogLines <= 0 {
		opts.MaxLogLines = DefaultLogLines
	}
	if opts.Sink == nil {
		opts.Sink = protocol.NewHumanWriter(os.Stderr, false)
	}
	runner := opts.Runner
	if runner == nil {
		runner = executor.New(executor.Options{MaxTimeout: WorkerTimeout})
	}
	return &Supervisor{
		opts:   opts,
		runner: runner,
		mon:    monitor.New(opts.Interval),
	}
}

// Run starts the worker and blocks until it exits. Cancelling ctx
// terminates the worker's process group. The returned code is the worker's
// exit status, or 130 when cancelled.
func (s *Supervisor) Run(ctx context.Context) (int, error) {
	if s.opts.Secret != nil {
		defer s.opts.Secret.Zero()
	}

	exe := s.opts.Executable
	if exe == "" {
		var err error
		exe, err = os.Executable()
		if err != nil {
			return 1, err
		}
	}

	cmd := executor.Command{Argv: append([]string{exe}, s.opts.Args...)}
	if s.opts.Secret != nil {
		cmd.Feed = s.opts.Secret.WriteLine
	}

	monCtx, stopMonitor := context.WithCancel(ctx)
	var wg sync.WaitGroup
	if s.opts.LogPath != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.mon.Run(monCtx, func() (int64, error) { return logging.FileSize(s.opts.LogPath) }, s.observe)
		}()
	}

	log.Info("starting worker", zap.Strings("args", s.opts.Args), zap.String("logFile", s.opts.LogPath))
	result := s.runner.Run(ctx, cmd, WorkerTimeout, s.HandleLine)

	stopMonitor()
	wg.Wait()

	code := result.ExitCode
	var err error
	switch {
	case errors.Is(result.Err, executor.ErrCanceled) || ctx.Err() != nil:
		code = exitCancelled
		err = context.Canceled
		s.mu.Lock()
		reported := s.state.Error != ""
		if !reported {
			s.state.Error = "Installation cancelled"
		}
		s.mu.Unlock()
		if !reported {
			s.opts.Sink.Emit(protocol.Error("Installation cancelled"))
		}
	case errors.Is(result.Err, executor.ErrStart), errors.Is(result.Err, executor.ErrTimeout):
		code = 1
		err = result.Err
	case code < 0:
		code = 1
	}
	s.finish(code)

	log.Info("worker exited", zap.Int("exitCode", code), zap.Duration("duration", result.Duration))
	return code, err
}

// HandleLine decodes one worker line, updates the state and forwards it.
func (s *Supervisor) HandleLine(line string) {
	e := protocol.Decode(line)

	s.mu.Lock()
	s.appendLog(e.Message)
	switch e.Kind {
	case protocol.KindProgress:
		if e.Percent >= s.state.Percent {
			s.state.Percent = e.Percent
		}
		s.state.Message = e.Message
	case protocol.KindSuccess:
		s.state.Percent = 100
		s.state.Message = e.Message
		s.state.Success = true
	case protocol.KindError:
		s.state.Message = e.Message
		s.state.Error = e.Message
	}
	s.mu.Unlock()

	if e.Raw {
		s.opts.Sink.Output(e.Message)
	} else {
		s.opts.Sink.Emit(e)
	}
	s.broadcast(FeedMessage{
		Type:    "event",
		Kind:    e.Kind.String(),
		Level:   e.Level.String(),
		Percent: e.Percent,
		Message: e.Message,
	})
}

func (s *Supervisor) appendLog(line string) {
	s.logLines = append(s.logLines, line)
	if over := len(s.logLines) - s.opts.MaxLogLines; over > 0 {
		s.logLines = append(s.logLines[:0], s.logLines[over:]...)
	}
}

func (s *Supervisor) observe(a monitor.ActivityState) {
	desc := a.Describe(s.opts.IdleThreshold)

	s.mu.Lock()
	s.state.Activity = desc
	s.state.Elapsed = a.ElapsedSeconds
	announce := !a.Active && desc != "" && desc != s.lastIdle
	if a.Active {
		s.lastIdle = ""
	} else if announce {
		s.lastIdle = desc
	}
	s.mu.Unlock()

	if announce {
		s.opts.Sink.Emit(protocol.Warning("Still working: " + desc))
	}
	s.broadcast(FeedMessage{Type: "activity", Activity: desc})
}

func (s *Supervisor) finish(code int) {
	s.mu.Lock()
	s.state.Finished = true
	s.state.ExitCode = code
	s.mu.Unlock()

	snap := s.Snapshot()
	s.broadcast(FeedMessage{Type: "finished", State: &snap})
}

func (s *Supervisor) broadcast(m FeedMessage) {
	if s.opts.Broadcaster != nil {
		s.opts.Broadcaster.Broadcast(m)
	}
}

// Snapshot returns a copy of the current state.
func (s *Supervisor) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.state
	snap.Log = append([]string(nil), s.logLines...)
	return snap
}

// FeedSnapshot is the greeting sent to new feed clients.
func (s *Supervisor) FeedSnapshot() any {
	snap := s.Snapshot()
	return FeedMessage{Type: "state", State: &snap}
}
