// Package log provides the process-wide structured logger, a logrus adapter
// behind the Logger interface.
package log

import (
	"sync"
)

type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsDebugEnabled() bool
}

var (
	mu        sync.RWMutex
	logger    Logger = newDefault()
	installed *output
)

// GetLogger returns the process logger. Before Init it writes text at info
// level to stdout.
func GetLogger() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// SetLogger replaces the process logger.
func SetLogger(l Logger) {
	mu.Lock()
	logger = l
	mu.Unlock()
}
