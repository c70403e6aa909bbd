package logger

import "sync/atomic"

// holder lets the default logger be swapped while other goroutines log.
type holder struct{ l Logger }

var defLogger atomic.Pointer[holder]

func init() {
	defLogger.Store(&holder{l: NewSlog(InfoLevel, false)})
}

// GetLogger returns the process default logger.
func GetLogger() Logger {
	return defLogger.Load().l
}

// SetLogger replaces the process default logger. A nil logger is ignored.
//
// Configs created afterwards pick up the new logger; existing connections and
// listeners keep the one they were built with.
func SetLogger(l Logger) {
	if l != nil {
		defLogger.Store(&holder{l: l})
	}
}

func Debug(msg string, keysAndValues ...any) { GetLogger().Debug(msg, keysAndValues...) }
func Info(msg string, keysAndValues ...any)  { GetLogger().Info(msg, keysAndValues...) }
func Warn(msg string, keysAndValues ...any)  { GetLogger().Warn(msg, keysAndValues...) }
func Error(msg string, keysAndValues ...any) { GetLogger().Error(msg, keysAndValues...) }
func Fatal(msg string, keysAndValues ...any) { GetLogger().Fatal(msg, keysAndValues...) }

func SetLevel(level Level) { GetLogger().SetLevel(level) }

func With(keyValues ...any) Logger {
	return GetLogger().With(keyValues...)
}
