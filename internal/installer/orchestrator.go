// Package installer drives one end-to-end installation run: detection,
// credential validation, the runtime pipeline, the application payload and
// the desktop launcher.
package installer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seapear/AffinityOnLinux/internal/distro"
	"github.com/seapear/AffinityOnLinux/internal/executor"
	"github.com/seapear/AffinityOnLinux/internal/logging"
	"github.com/seapear/AffinityOnLinux/internal/pipeline"
	"github.com/seapear/AffinityOnLinux/internal/protocol"
	"github.com/seapear/AffinityOnLinux/internal/secmem"
	"github.com/seapear/AffinityOnLinux/internal/shims"
	"github.com/seapear/AffinityOnLinux/internal/stages"
)

var log = logging.L("installer")

// Exit codes of the worker process.
const (
	ExitSuccess   = 0
	ExitFailure   = 1
	ExitPartial   = 2
	ExitCancelled = 130
)

// Progress checkpoints used when an application payload follows the
// runtime pipeline.
const (
	pipelineCeiling  = 70
	payloadPercent   = 80
	shortcutsPercent = 90
)

// ManualFallback is shown when the distribution is not supported.
const ManualFallback = "Install Wine 10 or newer and winetricks with your package manager " +
	"(for example: sudo apt update && sudo apt install -y wine winetricks), then re-run with the same prefix."

// Detector resolves the host distribution.
type Detector interface {
	Detect() distro.Distribution
}

// CredentialSource obtains the elevation credential. It is only called when
// the session needs one.
type CredentialSource interface {
	Credential(ctx context.Context) (*secmem.Secret, error)
}

// CredentialFunc adapts a function to CredentialSource.
type CredentialFunc func(ctx context.Context) (*secmem.Secret, error)

func (f CredentialFunc) Credential(ctx context.Context) (*secmem.Secret, error) {
	return f(ctx)
}

// Session is the privileged session used for the run.
type Session interface {
	pipeline.Session
	RequiresCredential() bool
	Validate(ctx context.Context, secret *secmem.Secret) bool
	Close()
}

// Pipeline runs the runtime installation stages.
type Pipeline interface {
	Execute(ctx context.Context, dist distro.Distribution, session pipeline.Session, opts pipeline.Options, sink protocol.Sink) pipeline.Result
}

// PayloadInstaller installs the application package and returns its
// directory, or "" when unknown.
type PayloadInstaller interface {
	Install(ctx context.Context, prefix, path string, sink executor.LineSink) (string, error)
}

// ArtifactFetcher downloads auxiliary artifacts.
type ArtifactFetcher interface {
	Fetch(ctx context.Context, artifacts []shims.Artifact) (shims.Fetched, error)
}

// ShortcutCreator registers a desktop launcher for exe.
type ShortcutCreator interface {
	Create(ctx context.Context, prefix, exe string) (string, error)
}

// Config is the immutable run configuration.
type Config struct {
	Prefix    string
	Installer string
	Features  stages.Options
	MinFreeGB float64
	// Artifacts are fetched and placed when a payload is installed.
	Artifacts []shims.Artifact
	// ExecutableName is the launcher target searched for after the payload
	// is installed.
	ExecutableName string
}

// Deps are the collaborators of a run. Payload, Fetcher, Shortcuts and
// Locate may be nil.
type Deps struct {
	Detector    Detector
	Credentials CredentialSource
	Session     Session
	Pipeline    Pipeline
	Payload     PayloadInstaller
	Fetcher     ArtifactFetcher
	Shortcuts   ShortcutCreator
	// Locate finds the application executable inside the prefix.
	Locate func(prefix, name string) (string, error)
	// PlaceArtifacts copies fetched artifacts into the prefix.
	PlaceArtifacts func(prefix, appDir string, fetched shims.Fetched) ([]string, error)
}

// Result summarises a finished run.
type Result struct {
	RunID          string
	State          State
	Distribution   distro.Distribution
	PartialSuccess bool
	Err            error
	Pipeline       pipeline.Result
	AppDir         string
	Shortcut       string
	Warnings       []error
	Duration       time.Duration
}

// ExitCode maps the result to the worker exit status.
func (r Result) ExitCode() int {
	switch {
	case r.State == StateCompleted && r.PartialSuccess:
		return ExitPartial
	case r.State == StateCompleted:
		return ExitSuccess
	case errors.Is(r.Err, context.Canceled):
		return ExitCancelled
	}
	return ExitFailure
}

// Orchestrator runs one installation. It is not reusable.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	sink   protocol.Sink
	runID  string
	logger *zap.Logger

	mu      sync.Mutex
	state   State
	history []State
	started bool
}

// New creates an Orchestrator emitting events to sink.
func New(cfg Config, deps Deps, sink protocol.Sink) *Orchestrator {
	runID := uuid.NewString()
	return &Orchestrator{
		cfg:     cfg,
		deps:    deps,
		sink:    sink,
		runID:   runID,
		logger:  logging.WithRun(log, runID),
		state:   StateIdle,
		history: []State{StateIdle},
	}
}

// RunID identifies this run in logs.
func (o *Orchestrator) RunID() string {
	return o.runID
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// History returns every state entered, in order.
func (o *Orchestrator) History() []State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]State(nil), o.history...)
}

func (o *Orchestrator) transition(to State) {
	o.mu.Lock()
	from := o.state
	if !canTransition(from, to) {
		o.mu.Unlock()
		o.logger.Error("invalid state transition", zap.Stringer("from", from), zap.Stringer("to", to))
		panic(fmt.Sprintf("installer: invalid transition %s -> %s", from, to))
	}
	o.state = to
	o.history = append(o.history, to)
	o.mu.Unlock()
	o.logger.Debug("state transition", zap.Stringer("from", from), zap.Stringer("to", to))
}

// Run executes the installation. The session is closed on every exit path.
func (o *Orchestrator) Run(ctx context.Context) Result {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return Result{RunID: o.runID, State: o.State(), Err: errors.New("orchestrator already ran")}
	}
	o.started = true
	o.mu.Unlock()

	start := time.Now()
	defer o.deps.Session.Close()

	res := o.run(ctx)
	res.RunID = o.runID
	res.State = o.State()
	res.Duration = time.Since(start)

	fields := []zap.Field{
		zap.Stringer("state", res.State),
		zap.Bool("partial", res.PartialSuccess),
		zap.Int("exitCode", res.ExitCode()),
		zap.Duration("duration", res.Duration),
	}
	if res.Err != nil {
		o.logger.Error("installation finished", append(fields, zap.Error(res.Err))...)
	} else {
		o.logger.Info("installation finished", fields...)
	}
	return res
}

func (o *Orchestrator) run(ctx context.Context) Result {
	var res Result

	o.transition(StateDetecting)
	dist := o.deps.Detector.Detect()
	res.Distribution = dist
	o.logger.Info("distribution detected", zap.String("id", dist.ID), zap.String("family", string(dist.Family)), zap.String("codename", dist.Codename))

	o.transition(StateAwaitingCredential)
	if !dist.Family.Known() {
		return o.refuseUnknown(ctx, dist, res)
	}
	o.sink.Emit(protocol.Info(fmt.Sprintf("Detected %s (%s)", displayName(dist), dist.Family)))

	var secret *secmem.Secret
	if o.deps.Session.RequiresCredential() {
		var err error
		secret, err = o.deps.Credentials.Credential(ctx)
		if err != nil {
			o.transition(StateFailed)
			o.sink.Emit(protocol.Error("No administrator password provided"))
			res.Err = fmt.Errorf("%w: %w", ErrCredentialUnavailable, err)
			return res
		}
	}

	o.transition(StateValidating)
	if !o.deps.Session.Validate(ctx, secret) {
		o.transition(StateFailed)
		o.sink.Emit(protocol.Error("Authentication failed: the administrator password was rejected"))
		res.Err = ErrCredentialRejected
		return res
	}
	o.sink.Emit(protocol.Info("Administrator access granted"))

	o.transition(StatePiping)
	withPayload := o.cfg.Installer != "" && o.deps.Payload != nil
	pipeSink := o.sink
	if withPayload {
		pipeSink = protocol.Scale(o.sink, 0, pipelineCeiling)
	}
	res.Pipeline = o.deps.Pipeline.Execute(ctx, dist, o.deps.Session, pipeline.Options{
		Features:  o.cfg.Features,
		Prefix:    o.cfg.Prefix,
		MinFreeGB: o.cfg.MinFreeGB,
	}, pipeSink)
	if !res.Pipeline.OK {
		o.transition(StateFailed)
		res.Err = res.Pipeline.Err
		return res
	}

	if !withPayload {
		o.transition(StateCompleted)
		o.sink.Emit(protocol.Success("Wine environment installed at " + o.cfg.Prefix))
		return res
	}

	return o.installPayload(ctx, res)
}

// refuseUnknown reports the manual fallback and lets the pipeline refuse
// the family. No credential is requested and no command runs.
func (o *Orchestrator) refuseUnknown(ctx context.Context, dist distro.Distribution, res Result) Result {
	unreadable := dist.ID == "" || dist.ID == "unknown"
	if unreadable {
		o.sink.Emit(protocol.Warning("Could not identify this Linux distribution. " + ManualFallback))
	} else {
		o.sink.Emit(protocol.Warning(fmt.Sprintf("%s is not supported for automatic installation. %s", displayName(dist), ManualFallback)))
	}

	o.transition(StatePiping)
	res.Pipeline = o.deps.Pipeline.Execute(ctx, dist, nil, pipeline.Options{Prefix: o.cfg.Prefix}, o.sink)
	o.transition(StateFailed)
	res.Err = res.Pipeline.Err
	if res.Err == nil {
		res.Err = ErrUnsupportedDistribution
	}
	if unreadable {
		res.Err = errors.Join(ErrDetectionFailure, res.Err)
	}
	return res
}

func (o *Orchestrator) installPayload(ctx context.Context, res Result) Result {
	var fetched shims.Fetched
	if o.deps.Fetcher != nil && len(o.cfg.Artifacts) > 0 {
		o.sink.Emit(protocol.Progress(pipelineCeiling, "Downloading helper files"))
		var err error
		fetched, err = o.deps.Fetcher.Fetch(ctx, o.cfg.Artifacts)
		if err != nil {
			o.sink.Emit(protocol.Warning("Some helper files could not be downloaded; continuing without them"))
			res.Warnings = append(res.Warnings, err)
		}
	}

	if err := ctx.Err(); err != nil {
		o.transition(StateFailed)
		o.sink.Emit(protocol.Error("Installation cancelled"))
		res.Err = err
		return res
	}

	o.transition(StateInstallingPayload)
	o.sink.Emit(protocol.Progress(payloadPercent, "Installing Affinity application"))
	appDir, err := o.deps.Payload.Install(ctx, o.cfg.Prefix, o.cfg.Installer, func(line string) { o.sink.Output(line) })
	if err != nil && ctx.Err() != nil {
		o.logger.Warn("payload install cancelled", zap.Error(err))
		o.transition(StateFailed)
		o.sink.Emit(protocol.Error("Installation cancelled"))
		res.Err = fmt.Errorf("%w: %w", ctx.Err(), err)
		return res
	}
	if err != nil {
		// The runtime is in place; the run still completes.
		o.logger.Warn("payload install failed", zap.String("installer", o.cfg.Installer), zap.Error(err))
		o.transition(StateCompleted)
		res.PartialSuccess = true
		res.Err = err
		o.sink.Emit(protocol.Warning("Affinity could not be installed: " + err.Error()))
		o.sink.Emit(protocol.Progress(100, "Wine environment ready"))
		o.sink.Emit(protocol.Success("Partial success: Wine environment installed, Affinity installation failed"))
		return res
	}
	res.AppDir = appDir

	if len(fetched) > 0 && o.deps.PlaceArtifacts != nil {
		if _, err := o.deps.PlaceArtifacts(o.cfg.Prefix, appDir, fetched); err != nil {
			o.sink.Emit(protocol.Warning("Some helper files could not be installed"))
			res.Warnings = append(res.Warnings, err)
		}
	}

	o.transition(StateFinalizingShortcuts)
	o.sink.Emit(protocol.Progress(shortcutsPercent, "Creating desktop shortcuts"))
	res.Shortcut = o.createShortcut(ctx, &res)

	o.transition(StateCompleted)
	o.sink.Emit(protocol.Progress(100, "Installation complete"))
	o.sink.Emit(protocol.Success("Affinity installed at " + o.cfg.Prefix))
	return res
}

func (o *Orchestrator) createShortcut(ctx context.Context, res *Result) string {
	if o.deps.Shortcuts == nil || o.deps.Locate == nil {
		return ""
	}
	name := o.cfg.ExecutableName
	if name == "" {
		name = "Affinity.exe"
	}
	exe, err := o.deps.Locate(o.cfg.Prefix, name)
	if err != nil {
		o.sink.Emit(protocol.Warning(name + " not found; no desktop shortcut created"))
		res.Warnings = append(res.Warnings, err)
		return ""
	}
	path, err := o.deps.Shortcuts.Create(ctx, o.cfg.Prefix, exe)
	if err != nil {
		o.sink.Emit(protocol.Warning("Desktop shortcut could not be created"))
		res.Warnings = append(res.Warnings, err)
		return ""
	}
	o.sink.Emit(protocol.Info("Desktop shortcut created: " + path))
	return path
}

func displayName(d distro.Distribution) string {
	switch {
	case d.Name != "":
		return d.Name
	case d.ID != "":
		return d.ID
	}
	return "unknown distribution"
}
