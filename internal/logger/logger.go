// Package logger owns the process-wide zap logger. Components receive it through the
// Logger interface and log one structured object per call.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nationradar/nation-radar/internal/config"
)

// S is the process logger, set by Init.
var S *zap.SugaredLogger

// Logger is the object-logging surface injected into pipeline components.
type Logger interface {
	InfoObj(msg, key string, obj interface{})
	DebugObj(msg, key string, obj interface{})
	WarnObj(msg, key string, obj interface{})
	ErrorObj(msg, key string, obj interface{})
}

var levels = map[string]zapcore.Level{
	"debug":   zapcore.DebugLevel,
	"info":    zapcore.InfoLevel,
	"warn":    zapcore.WarnLevel,
	"warning": zapcore.WarnLevel,
	"error":   zapcore.ErrorLevel,
}

func parseLevel(lvl string) zapcore.Level {
	if l, ok := levels[lvl]; ok {
		return l
	}
	return zapcore.InfoLevel
}

// Init installs the process logger: JSON to stdout in production, a console encoder
// everywhere else.
func Init(cfg *config.Config) (*zap.SugaredLogger, error) {
	S = build(cfg, zapcore.Lock(os.Stdout))
	return S, nil
}

func build(cfg *config.Config, out zapcore.WriteSyncer) *zap.SugaredLogger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	enc := zapcore.NewJSONEncoder(encCfg)
	if cfg.Env != "" && cfg.Env != "production" {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, out, parseLevel(cfg.LogLevel))
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2), zap.AddStacktrace(zapcore.ErrorLevel)).
		With(zap.String("app", cfg.AppName), zap.String("env", cfg.Env)).
		Sugar()
}

// Close flushes buffered entries.
func Close() error {
	if S == nil {
		return nil
	}
	return S.Sync()
}

func logObj(level zapcore.Level, msg, key string, obj interface{}) {
	if S == nil {
		return
	}
	if ce := S.Desugar().Check(level, msg); ce != nil {
		ce.Write(zap.Any(key, obj))
	}
}

func InfoObj(msg, key string, obj interface{})  { logObj(zapcore.InfoLevel, msg, key, obj) }
func DebugObj(msg, key string, obj interface{}) { logObj(zapcore.DebugLevel, msg, key, obj) }
func WarnObj(msg, key string, obj interface{})  { logObj(zapcore.WarnLevel, msg, key, obj) }
func ErrorObj(msg, key string, obj interface{}) { logObj(zapcore.ErrorLevel, msg, key, obj) }

type zapLogger struct{}

// New returns a Logger backed by S.
func New() Logger { return zapLogger{} }

// The methods call logObj directly so both paths sit the same two frames above Check.
func (zapLogger) InfoObj(msg, key string, obj interface{}) { logObj(zapcore.InfoLevel, msg, key, obj) }
func (zapLogger) DebugObj(msg, key string, obj interface{}) {
	logObj(zapcore.DebugLevel, msg, key, obj)
}
func (zapLogger) WarnObj(msg, key string, obj interface{}) { logObj(zapcore.WarnLevel, msg, key, obj) }
func (zapLogger) ErrorObj(msg, key string, obj interface{}) {
	logObj(zapcore.ErrorLevel, msg, key, obj)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) InfoObj(string, string, interface{})  {}
func (NopLogger) DebugObj(string, string, interface{}) {}
func (NopLogger) WarnObj(string, string, interface{})  {}
func (NopLogger) ErrorObj(string, string, interface{}) {}

// Ensure returns log, or a NopLogger when log is nil.
func Ensure(log Logger) Logger {
	if log == nil {
		return NopLogger{}
	}
	return log
}
