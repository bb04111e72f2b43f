// Package zaplogger adapts *zap.SugaredLogger to the taskrunner.Logger
// interface, the structured-logging library the rest of the domain stack
// (cmd/msu-taskd) uses throughout.
package zaplogger

import "go.uber.org/zap"

// Logger wraps a *zap.SugaredLogger.
type Logger struct {
	z *zap.SugaredLogger
}

// New wraps z. A nil z falls back to zap's global no-op logger.
func New(z *zap.SugaredLogger) *Logger {
	if z == nil {
		z = zap.NewNop().Sugar()
	}
	return &Logger{z: z}
}

// Debug logs at debug level with alternating key/value pairs, matching
// zap's SugaredLogger.Debugw convention.
func (l *Logger) Debug(msg string, kv ...any) {
	l.z.Debugw(msg, kv...)
}

// Error logs at error level with alternating key/value pairs.
func (l *Logger) Error(msg string, kv ...any) {
	l.z.Errorw(msg, kv...)
}
