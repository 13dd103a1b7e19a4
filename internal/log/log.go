// Package log provides the module-scoped leveled logger used across
// bpd, mirroring the teacher's log.NewModuleLogger convention (every
// component gets a logger carrying its module name as a static field)
// but backed directly by zap rather than a hand-rolled backend.
package log

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	base  = newBase()
)

func newBase() *zap.Logger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.Lock(os.Stderr), level)
	return zap.New(core)
}

// ChangeGlobalLogLevel adjusts the verbosity of every Logger returned
// by NewModuleLogger. Valid values: "trace", "debug", "info", "warn",
// "error", "crit".
func ChangeGlobalLogLevel(verbosity string) {
	switch verbosity {
	case "trace", "debug":
		level.SetLevel(zapcore.DebugLevel)
	case "info":
		level.SetLevel(zapcore.InfoLevel)
	case "warn":
		level.SetLevel(zapcore.WarnLevel)
	case "error":
		level.SetLevel(zapcore.ErrorLevel)
	case "crit":
		level.SetLevel(zapcore.FatalLevel)
	}
}

// Module names for the core components of spec.md §2 plus the CLI,
// the event sink and the metrics exporter.
const (
	ModuleIndexDb   = "indexdb"
	ModuleBlockProc = "blockproc"
	ModuleImporter  = "importer"
	ModuleRpc       = "rpc"
	ModuleBroker    = "broker"
	ModuleCLI       = "cli"
	ModuleEventSink = "eventsink"
	ModuleMetrics   = "metrics"
)

// Logger is a leveled, structured logger bound to one module.
type Logger struct {
	z *zap.SugaredLogger
}

// NewModuleLogger returns a Logger tagged with the given module name.
func NewModuleLogger(module string) *Logger {
	return &Logger{z: base.Sugar().With("module", module)}
}

func (l *Logger) With(keyvals ...interface{}) *Logger {
	return &Logger{z: l.z.With(keyvals...)}
}

func (l *Logger) Trace(msg string, keyvals ...interface{}) { l.z.Debugw(msg, keyvals...) }
func (l *Logger) Debug(msg string, keyvals ...interface{}) { l.z.Debugw(msg, keyvals...) }
func (l *Logger) Info(msg string, keyvals ...interface{})  { l.z.Infow(msg, keyvals...) }
func (l *Logger) Warn(msg string, keyvals ...interface{})  { l.z.Warnw(msg, keyvals...) }
func (l *Logger) Error(msg string, keyvals ...interface{}) { l.z.Errorw(msg, keyvals...) }

// Crit logs at fatal level and terminates the process. Reserved for
// startup failures per spec.md §7 — never called from the hot path.
func (l *Logger) Crit(msg string, keyvals ...interface{}) { l.z.Fatalw(msg, keyvals...) }
