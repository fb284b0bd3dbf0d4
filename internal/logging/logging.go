package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Key constants for structured log fields.
const (
	KeyRunID      = "runId"
	KeyStage      = "stage"
	KeyCommand    = "command"
	KeyComponent  = "component"
	KeyDurationMs = "durationMs"
	KeyError      = "error"
)

// TimeLayout is the timestamp layout shared by the console encoder and the
// action log records.
const TimeLayout = "2006-01-02 15:04:05"

type contextKey struct{}

// switchableCore lets package-level loggers created before Init()
// pick up the configured core once Init runs.
type switchableCore struct {
	state  *switchableState
	fields []zapcore.Field
}

type switchableState struct {
	current atomic.Value // stores coreBox
}

// coreBox keeps the dynamic type stored in atomic.Value constant.
type coreBox struct {
	core zapcore.Core
}

func newSwitchableCore(c zapcore.Core) *switchableCore {
	state := &switchableState{}
	state.current.Store(coreBox{core: c})
	return &switchableCore{state: state}
}

func (c *switchableCore) set(core zapcore.Core) {
	c.state.current.Store(coreBox{core: core})
}

func (c *switchableCore) materialize() zapcore.Core {
	base := c.state.current.Load().(coreBox).core
	if len(c.fields) > 0 {
		return base.With(c.fields)
	}
	return base
}

func (c *switchableCore) Enabled(level zapcore.Level) bool {
	return c.materialize().Enabled(level)
}

func (c *switchableCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &switchableCore{state: c.state, fields: merged}
}

func (c *switchableCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	return c.materialize().Check(ent, ce)
}

func (c *switchableCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	return c.materialize().Write(ent, fields)
}

func (c *switchableCore) Sync() error {
	return c.materialize().Sync()
}

var (
	rootCore      = newSwitchableCore(newCore("text", zapcore.InfoLevel, os.Stderr))
	defaultLogger = zap.New(rootCore)
)

// Init initializes the global logger. Call once after config is loaded.
// format: "json" or "text" (default "text")
// level: "debug", "info", "warn", "error" (default "info")
// output: writer to log to (nil = os.Stderr)
func Init(format, level string, output io.Writer) {
	if output == nil {
		output = os.Stderr
	}
	rootCore.set(newCore(format, parseLevel(level), output))
}

func newCore(format string, level zapcore.Level, output io.Writer) zapcore.Core {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.MessageKey = "msg"

	var enc zapcore.Encoder
	if strings.EqualFold(format, "json") {
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeTime = zapcore.TimeEncoderOfLayout(TimeLayout)
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encCfg.ConsoleSeparator = " "
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	return zapcore.NewCore(enc, zapcore.AddSync(output), level)
}

// L returns a logger tagged with the given component name.
func L(component string) *zap.Logger {
	return defaultLogger.With(zap.String(KeyComponent, component))
}

// WithRun returns a child logger carrying the run correlation id.
func WithRun(logger *zap.Logger, runID string) *zap.Logger {
	return logger.With(zap.String(KeyRunID, runID))
}

// NewContext returns a new context carrying the given logger.
func NewContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext extracts the logger from context, falling back to the default.
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(contextKey{}).(*zap.Logger); ok {
		return l
	}
	return defaultLogger
}

// Sync flushes the global logger.
func Sync() {
	_ = defaultLogger.Sync()
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
