// Package pipeline runs the staged runtime installation for a detected
// distribution family.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/seapear/AffinityOnLinux/internal/distro"
	"github.com/seapear/AffinityOnLinux/internal/executor"
	"github.com/seapear/AffinityOnLinux/internal/logging"
	"github.com/seapear/AffinityOnLinux/internal/protocol"
	"github.com/seapear/AffinityOnLinux/internal/runtimecheck"
	"github.com/seapear/AffinityOnLinux/internal/stages"
)

var log = logging.L("pipeline")

const (
	// DefaultMinFreeGB is the free space required on the prefix filesystem.
	DefaultMinFreeGB = 5.0

	errorTailLines  = 5
	codenameTimeout = 10 * time.Second
)

// Session runs privileged commands. *privilege.Session satisfies it.
type Session interface {
	Run(ctx context.Context, argv, env []string, timeout time.Duration, sink executor.LineSink) executor.Result
}

// Probe answers precondition queries. Nil fields use the host.
type Probe struct {
	PathExists       func(path string) bool
	CommandAvailable func(name string) bool
	RuntimeAtLeast   func(ctx context.Context, major int) bool
}

func (p Probe) withDefaults() Probe {
	if p.PathExists == nil {
		p.PathExists = func(path string) bool {
			_, err := os.Stat(path)
			return err == nil
		}
	}
	if p.CommandAvailable == nil {
		p.CommandAvailable = executor.Available
	}
	if p.RuntimeAtLeast == nil {
		p.RuntimeAtLeast = runtimecheck.NewChecker().AtLeast
	}
	return p
}

// Options configure one Execute call.
type Options struct {
	Features stages.Options
	// Prefix is the Wine prefix directory.
	Prefix string
	// MinFreeGB is the free space required for Prefix. Zero disables the
	// check.
	MinFreeGB float64
}

// Result is the outcome of a pipeline run.
type Result struct {
	OK        bool
	Err       error
	Completed []string
	Skipped   []string
}

// Pipeline executes stage tables.
type Pipeline struct {
	Table  *stages.Table
	Runner executor.Runner
	Probe  Probe
	// FreeSpace reports free bytes for a path. Defaults to disk usage.
	FreeSpace FreeSpaceFunc
	// Codename resolves the release codename when os-release has none.
	Codename func(ctx context.Context) string

	logger *zap.Logger
}

// New returns a Pipeline over table with host defaults.
func New(table *stages.Table) *Pipeline {
	runner := executor.New(executor.Options{})
	return &Pipeline{
		Table:     table,
		Runner:    runner,
		FreeSpace: diskFree,
		Codename:  lsbCodename(runner),
		logger:    log,
	}
}

// run holds the per-execution state.
type run struct {
	p       *Pipeline
	session Session
	sink    protocol.Sink
	params  stages.Params
	opts    Options
	probe   Probe
	result  Result
	logger  *zap.Logger

	runtimeChecked map[int]bool
}

// Execute runs every stage for dist in order, stopping at the first
// failure. Exactly one Error event is emitted on failure; on success the
// final event is Progress(100).
func (p *Pipeline) Execute(ctx context.Context, dist distro.Distribution, session Session, opts Options, sink protocol.Sink) Result {
	logger := p.logger
	if logger == nil {
		logger = log
	}
	logger = logger.With(zap.String("distro", dist.ID), zap.String("family", string(dist.Family)))

	seq, ok := p.Table.Sequence(dist.Family)
	if !ok {
		err := fmt.Errorf("%w: %q (%s)", ErrUnsupportedDistribution, dist.ID, dist.Family)
		logger.Error("no install sequence for distribution")
		sink.Emit(protocol.Error(fmt.Sprintf("Unsupported distribution %q. Install Wine 10 or newer and winetricks manually, then re-run.", displayID(dist))))
		return Result{Err: err}
	}

	if opts.MinFreeGB > 0 {
		free := p.FreeSpace
		if free == nil {
			free = diskFree
		}
		check := checkDiskSpace(free, opts.Prefix, opts.MinFreeGB)
		logger.Info("preflight check", zap.String("check", check.Name), zap.Bool("passed", check.Passed), zap.String("message", check.Message))
		if !check.Passed {
			sink.Emit(protocol.Error(check.Message))
			return Result{Err: &PreflightError{Check: check.Name, Message: check.Message}}
		}
	}

	r := &run{
		p:              p,
		session:        session,
		sink:           sink,
		opts:           opts,
		probe:          p.Probe.withDefaults(),
		logger:         logger,
		runtimeChecked: make(map[int]bool),
	}
	r.params = p.params(ctx, dist, opts.Prefix)
	logger.Info("starting install pipeline",
		zap.Int("stages", len(seq)),
		zap.String("codename", r.params.Codename),
		zap.Bool("vulkan", opts.Features.Vulkan),
		zap.Bool("tahoma", opts.Features.Tahoma),
		zap.Bool("dxvk", opts.Features.DXVK))

	for _, stage := range seq {
		if err := ctx.Err(); err != nil {
			return r.fail(fmt.Errorf("installation cancelled: %w", err), "Installation cancelled")
		}
		if err := r.runStage(ctx, stage); err != nil {
			r.result.Err = err
			return r.result
		}
	}

	sink.Emit(protocol.Progress(100, "Wine environment ready"))
	logger.Info("install pipeline complete", zap.Int("completed", len(r.result.Completed)), zap.Int("skipped", len(r.result.Skipped)))
	r.result.OK = true
	return r.result
}

func (r *run) runStage(ctx context.Context, stage stages.Stage) error {
	logger := r.logger.With(zap.String(logging.KeyStage, stage.Name))
	if stage.Gated(r.opts.Features) {
		logger.Debug("stage option disabled", zap.String("option", string(stage.When)))
		return nil
	}
	r.sink.Emit(protocol.Progress(stage.Start, stage.Name))

	if r.satisfied(ctx, stage.SkipIf) {
		logger.Info("stage already satisfied, skipping")
		r.sink.Emit(protocol.Info(stage.Name + ": already done, skipping"))
		r.result.Skipped = append(r.result.Skipped, stage.Name)
		return nil
	}

	for _, cmd := range stage.Commands {
		argv, env := cmd.Render(r.params, r.opts.Features)
		rendered := executor.Command{Argv: argv, Env: env}.String()

		if r.satisfied(ctx, cmd.SkipIf) {
			logger.Info("command precondition satisfied, skipping", zap.String(logging.KeyCommand, rendered))
			r.sink.Emit(protocol.Info("Already present, skipping: " + rendered))
			r.result.Skipped = append(r.result.Skipped, rendered)
			continue
		}

		if err := ctx.Err(); err != nil {
			r.fail(fmt.Errorf("installation cancelled: %w", err), "Installation cancelled")
			return r.result.Err
		}

		logger.Info("running command", zap.String(logging.KeyCommand, rendered), zap.Bool("privileged", cmd.Privileged))
		res := r.exec(ctx, cmd, argv, env)
		if res.OK {
			logger.Debug("command finished", zap.String(logging.KeyCommand, rendered), zap.Int64(logging.KeyDurationMs, res.Duration.Milliseconds()))
			continue
		}

		cerr := &CommandError{
			Stage:    stage.Name,
			Command:  res.Command,
			ExitCode: res.ExitCode,
			TimedOut: res.TimedOut,
			Output:   res.Tail(errorTailLines),
			Err:      res.Err,
		}
		logger.Error("command failed",
			zap.String(logging.KeyCommand, res.Command),
			zap.Int("exitCode", res.ExitCode),
			zap.Bool("timedOut", res.TimedOut),
			zap.Error(res.Err))
		r.fail(cerr, failureMessage(cerr))
		return cerr
	}

	r.result.Completed = append(r.result.Completed, stage.Name)
	return nil
}

func (r *run) exec(ctx context.Context, cmd stages.Command, argv, env []string) executor.Result {
	sink := func(line string) { r.sink.Output(line) }
	if cmd.Privileged {
		return r.session.Run(ctx, argv, env, cmd.Timeout, sink)
	}
	return r.p.Runner.Run(ctx, executor.Command{Argv: argv, Env: env}, cmd.Timeout, sink)
}

func (r *run) fail(err error, msg string) Result {
	r.sink.Emit(protocol.Error(msg))
	r.result.Err = err
	return r.result
}

// satisfied reports whether every field set in pre holds.
func (r *run) satisfied(ctx context.Context, pre *stages.Precondition) bool {
	if pre.IsZero() {
		return false
	}
	if pre.PathExists != "" && !r.probe.PathExists(r.params.Expand(pre.PathExists)) {
		return false
	}
	if pre.CommandAvailable != "" && !r.probe.CommandAvailable(r.params.Expand(pre.CommandAvailable)) {
		return false
	}
	if pre.RuntimeVersion > 0 {
		ok, cached := r.runtimeChecked[pre.RuntimeVersion]
		if !cached {
			ok = r.probe.RuntimeAtLeast(ctx, pre.RuntimeVersion)
			r.runtimeChecked[pre.RuntimeVersion] = ok
		}
		if !ok {
			return false
		}
	}
	return true
}

func (p *Pipeline) params(ctx context.Context, dist distro.Distribution, prefix string) stages.Params {
	params := stages.Params{
		Prefix:   prefix,
		Codename: dist.Codename,
		Distro:   dist.ID,
		Upstream: dist.Upstream,
	}
	if dist.Family != distro.FamilyDebian {
		return params
	}
	if params.Upstream == "" {
		params.Upstream = "ubuntu"
	}
	if params.Codename == "" && p.Codename != nil {
		params.Codename = p.Codename(ctx)
	}
	if params.Codename == "" {
		params.Codename = defaultCodename(params.Upstream)
		log.Warn("release codename unknown, using fallback", zap.String("codename", params.Codename))
	}
	return params
}

func defaultCodename(upstream string) string {
	if upstream == "debian" {
		return "bookworm"
	}
	return "jammy"
}

func lsbCodename(runner executor.Runner) func(ctx context.Context) string {
	return func(ctx context.Context) string {
		if !executor.Available("lsb_release") {
			return ""
		}
		res := runner.Run(ctx, executor.Command{Argv: []string{"lsb_release", "-cs"}}, codenameTimeout, nil)
		if !res.OK {
			return ""
		}
		return strings.TrimSpace(res.Output)
	}
}

func failureMessage(e *CommandError) string {
	var b strings.Builder
	if e.TimedOut {
		fmt.Fprintf(&b, "%s timed out: %s", e.Stage, e.Command)
	} else if errors.Is(e.Err, executor.ErrStart) {
		fmt.Fprintf(&b, "%s failed: could not start %s", e.Stage, e.Command)
	} else {
		fmt.Fprintf(&b, "%s failed: %s (exit code %d)", e.Stage, e.Command, e.ExitCode)
	}
	if e.Output != "" {
		b.WriteString(" | ")
		b.WriteString(strings.ReplaceAll(e.Output, "\n", " | "))
	}
	return b.String()
}

func displayID(d distro.Distribution) string {
	if d.ID == "" {
		return "unknown"
	}
	return d.ID
}
