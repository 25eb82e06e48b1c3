// Package dblog adapts logrus to the small structured-logging surface used
// by the server (listening, accepted connections, request failures), the
// client and the two binaries. storage.Open takes a Logger and keeps it but
// writes nothing to it; the mvcc, engine, exec and session packages do not
// log.
package dblog

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is the structured logger passed down into every subsystem.
type Logger struct {
	entry *logrus.Entry
}

// New returns a Logger writing to w at the given level and format.
func New(w io.Writer, level, format string) (*Logger, error) {
	lvl, err := GetLevel(level)
	if err != nil {
		return nil, err
	}
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(lvl)
	l.SetFormatter(GetFormatter(format))
	return &Logger{entry: logrus.NewEntry(l)}, nil
}

// GetLevel parses a log level string, defaulting to Info on empty input.
func GetLevel(level string) (logrus.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel, nil
	case "", "info":
		return logrus.InfoLevel, nil
	case "warn":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.InfoLevel, fmt.Errorf("invalid log level: %v", level)
	}
}

// GetFormatter returns the logrus.Formatter for the named format.
func GetFormatter(format string) logrus.Formatter {
	switch format {
	case "text":
		return &logrus.TextFormatter{FullTimestamp: true}
	case "json-pretty":
		return &logrus.JSONFormatter{PrettyPrint: true}
	default:
		return &logrus.JSONFormatter{}
	}
}

// With returns a derived Logger carrying the given structured fields.
func (l *Logger) With(fields logrus.Fields) *Logger {
	return &Logger{entry: l.entry.WithFields(fields)}
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

// Nop returns a Logger that discards everything, for tests.
func Nop() *Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &Logger{entry: logrus.NewEntry(l)}
}
