// Package log provides the leveled logging facade used throughout the
// server. It mirrors the small Infof/Warnf/Errorf/Fatalf surface that every
// module in this tree imports, so call sites never depend on a concrete
// logging library.
package log

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

// Level identifies a log severity.
type Level int

const (
	// DebugLevel is the most verbose level.
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERRO"
	case FatalLevel:
		return "FATL"
	default:
		return "????"
	}
}

// Logger is a minimal leveled logger writing timestamped lines to an
// io.Writer. The zero value is ready to use and writes to os.Stderr at
// DebugLevel, so every level is emitted until SetLevel is called.
type Logger struct {
	mu     sync.Mutex
	out    io.Writer
	level  Level
	std    *log.Logger
	initOk bool
}

func (l *Logger) ensure() {
	if l.initOk {
		return
	}
	if l.out == nil {
		l.out = os.Stderr
	}
	l.std = log.New(l.out, "", 0)
	l.initOk = true
}

// SetOutput redirects where log lines are written.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = w
	l.initOk = false
	l.ensure()
}

// SetLevel sets the minimum level that will be emitted.
func (l *Logger) SetLevel(lvl Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = lvl
}

func (l *Logger) logf(lvl Level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ensure()
	if lvl < l.level {
		return
	}
	ts := time.Now().Format("2006-01-02T15:04:05.000Z07:00")
	msg := fmt.Sprintf(format, args...)
	l.std.Printf("%s %s %s", ts, lvl, msg)
	if lvl == FatalLevel {
		os.Exit(1)
	}
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.logf(DebugLevel, format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.logf(InfoLevel, format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.logf(WarnLevel, format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.logf(ErrorLevel, format, args...) }
func (l *Logger) Fatalf(format string, args ...interface{}) { l.logf(FatalLevel, format, args...) }

func (l *Logger) Error(err error) {
	if err == nil {
		return
	}
	l.logf(ErrorLevel, "%v", err)
}

// std is the package-level logger used by the Infof/Errorf/... package
// functions, matching the teacher's singleton-style logging package.
var std = &Logger{}

// SetOutput redirects the default logger's output.
func SetOutput(w io.Writer) { std.SetOutput(w) }

// SetLevel sets the default logger's minimum level.
func SetLevel(lvl Level) { std.SetLevel(lvl) }

func Debugf(format string, args ...interface{}) { std.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { std.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { std.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { std.Errorf(format, args...) }
func Fatalf(format string, args ...interface{}) { std.Fatalf(format, args...) }
func Error(err error)                           { std.Error(err) }
