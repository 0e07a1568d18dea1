package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	level zap.AtomicLevel
	base  *zap.SugaredLogger
}

func New(level string) *Logger {
	atom := zap.NewAtomicLevelAt(parseLevel(level))
	cfg := zap.Config{
		Level:            atom,
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
		DisableCaller:    true,
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	z, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return &Logger{level: atom, base: z.Sugar()}
}

// NewWithCore wraps an existing zap core, mainly for tests.
func NewWithCore(core zapcore.Core) *Logger {
	return &Logger{level: zap.NewAtomicLevelAt(zapcore.DebugLevel), base: zap.New(core).Sugar()}
}

func Nop() *Logger {
	return &Logger{level: zap.NewAtomicLevel(), base: zap.NewNop().Sugar()}
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// With returns a child logger that adds the key/value pairs to every entry.
func (l *Logger) With(keysAndValues ...any) *Logger {
	return &Logger{level: l.level, base: l.base.With(keysAndValues...)}
}

func (l *Logger) SetLevel(level string) {
	l.level.SetLevel(parseLevel(level))
}

func (l *Logger) Debugf(format string, args ...any) {
	l.base.Debugf(format, args...)
}

func (l *Logger) Infof(format string, args ...any) {
	l.base.Infof(format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.base.Warnf(format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.base.Errorf(format, args...)
}

// Infow logs a message with structured key/value context.
func (l *Logger) Infow(msg string, keysAndValues ...any) {
	l.base.Infow(msg, keysAndValues...)
}

func (l *Logger) Sync() error {
	return l.base.Sync()
}
