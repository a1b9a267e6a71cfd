package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"firestige.xyz/ethresponder/internal/config"
)

type logrusAdapter struct {
	entry *logrus.Entry
}

// Init builds a logger from cfg and installs it as the process logger. It
// may be called again to apply a reloaded configuration; the log file of the
// logger it replaces is closed.
func Init(cfg config.LogConfig) error {
	l, out, err := build(cfg, os.Stdout)
	if err != nil {
		return err
	}
	mu.Lock()
	prev := installed
	logger, installed = l, out
	mu.Unlock()
	if prev != nil {
		if err := prev.Close(); err != nil {
			l.WithError(err).Warn("failed to close previous log file")
		}
	}
	return nil
}

// New builds a logger writing to out and, when enabled, to a rotating file.
func New(cfg config.LogConfig, out io.Writer) (Logger, error) {
	l, _, err := build(cfg, out)
	return l, err
}

func build(cfg config.LogConfig, console io.Writer) (Logger, *output, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level: %w", err)
	}

	l := logrus.New()
	l.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	case "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
	case "pattern":
		l.SetFormatter(&formatter{pattern: cfg.Pattern, time: cfg.Time})
	default:
		return nil, nil, fmt.Errorf("unsupported log format: %s (must be json, text or pattern)", cfg.Format)
	}

	out, err := newOutput(console, cfg.Outputs.File)
	if err != nil {
		return nil, nil, err
	}
	l.SetOutput(out)

	return &logrusAdapter{entry: logrus.NewEntry(l)}, out, nil
}

func newDefault() Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
	return &logrusAdapter{entry: logrus.NewEntry(l)}
}

func (l *logrusAdapter) Debug(args ...interface{})                 { l.entry.Debug(args...) }
func (l *logrusAdapter) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }

func (l *logrusAdapter) Info(args ...interface{})                 { l.entry.Info(args...) }
func (l *logrusAdapter) Infof(format string, args ...interface{}) { l.entry.Infof(format, args...) }

func (l *logrusAdapter) Warn(args ...interface{})                 { l.entry.Warn(args...) }
func (l *logrusAdapter) Warnf(format string, args ...interface{}) { l.entry.Warnf(format, args...) }

func (l *logrusAdapter) Error(args ...interface{})                 { l.entry.Error(args...) }
func (l *logrusAdapter) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

func (l *logrusAdapter) WithField(field string, value interface{}) Logger {
	return &logrusAdapter{entry: l.entry.WithField(field, value)}
}
func (l *logrusAdapter) WithFields(fields map[string]interface{}) Logger {
	return &logrusAdapter{entry: l.entry.WithFields(fields)}
}
func (l *logrusAdapter) WithError(err error) Logger {
	return &logrusAdapter{entry: l.entry.WithError(err)}
}

func (l *logrusAdapter) IsDebugEnabled() bool {
	return l.entry.Logger.IsLevelEnabled(logrus.DebugLevel)
}
