package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger defines a standard interface for logging.
type Logger interface {
	Debugf(format string, v ...interface{})
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
}

// Options configures NewLogger.
type Options struct {
	Level string
	JSON  bool
	// Output defaults to stderr, since stdout may carry the FLV stream.
	Output io.Writer
}

// LogrusLogger is a wrapper around a logrus logger.
type LogrusLogger struct {
	*logrus.Logger
}

// NewLogger creates a new logger instance based on the specified options.
// Unknown levels fall back to info.
func NewLogger(opts Options) Logger {
	l := logrus.New()
	l.SetOutput(opts.Output)
	if opts.Output == nil {
		l.SetOutput(os.Stderr)
	}

	if opts.JSON {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	lvl, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	return &LogrusLogger{l}
}

// Discard returns a logger that drops everything.
func Discard() Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return &LogrusLogger{l}
}
