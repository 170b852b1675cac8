// Package logger provides the leveled, printf-style logging used across
// fsbridge. Output is produced by logrus so the same call sites can emit
// either human-readable text or JSON lines.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Fields is a set of structured key/value pairs attached to a log entry.
type Fields = logrus.Fields

var (
	mu   sync.Mutex
	base = newBase()

	// outputFile is the file opened by SetOutput for path outputs, closed
	// when the output changes again.
	outputFile *os.File
)

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	return l
}

// SetLevel sets the minimum level. Accepts DEBUG, INFO, WARN and ERROR in
// any case; unknown values leave the level unchanged.
func SetLevel(level string) {
	var lvl logrus.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = logrus.DebugLevel
	case "INFO":
		lvl = logrus.InfoLevel
	case "WARN":
		lvl = logrus.WarnLevel
	case "ERROR":
		lvl = logrus.ErrorLevel
	default:
		return
	}
	base.SetLevel(lvl)
}

// SetFormat selects "text" or "json" output.
func SetFormat(format string) error {
	switch strings.ToLower(format) {
	case "text":
		base.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	return nil
}

// SetOutput selects where logs are written: "stdout", "stderr" or a file
// path, which is opened in append mode.
func SetOutput(output string) error {
	mu.Lock()
	defer mu.Unlock()

	var w io.Writer
	var f *os.File
	switch output {
	case "", "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		var err error
		f, err = os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open log output %s: %w", output, err)
		}
		w = f
	}

	base.SetOutput(w)
	if outputFile != nil {
		_ = outputFile.Close()
	}
	outputFile = f
	return nil
}

// SetWriter redirects output to w. Intended for tests.
func SetWriter(w io.Writer) {
	base.SetOutput(w)
}

// IsDebug reports whether debug output is enabled, for call sites that
// build expensive log arguments.
func IsDebug() bool {
	return base.IsLevelEnabled(logrus.DebugLevel)
}

func Debug(format string, v ...any) {
	base.Debugf(format, v...)
}

func Info(format string, v ...any) {
	base.Infof(format, v...)
}

func Warn(format string, v ...any) {
	base.Warnf(format, v...)
}

func Error(format string, v ...any) {
	base.Errorf(format, v...)
}

// Entry is a logger carrying structured fields.
type Entry struct {
	e *logrus.Entry
}

// With returns an Entry that attaches fields to every message.
func With(fields Fields) Entry {
	return Entry{e: base.WithFields(fields)}
}

// With adds more fields to the entry.
func (l Entry) With(fields Fields) Entry {
	return Entry{e: l.e.WithFields(fields)}
}

func (l Entry) Debug(format string, v ...any) { l.e.Debugf(format, v...) }
func (l Entry) Info(format string, v ...any)  { l.e.Infof(format, v...) }
func (l Entry) Warn(format string, v ...any)  { l.e.Warnf(format, v...) }
func (l Entry) Error(format string, v ...any) { l.e.Errorf(format, v...) }
