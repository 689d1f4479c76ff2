// Package definition holds the small cross-cutting contracts every other
// mesh package depends on: the logger interface and its default
// implementation.
package definition

import (
	"fmt"
	"log"
	"os"
)

const (
	calldepth = 2
	lvlInfo   = "INFO"
	lvlWarn   = "WARN"
	lvlError  = "ERROR"
	lvlDebug  = "DEBUG"
	lvlFatal  = "FATAL"
)

// Logger is implemented by anything that can receive leveled log lines from
// the mesh runtime. A Session never reaches for a global logger; every
// component that can log takes one of these explicitly.
type Logger interface {
	Info(v ...interface{})
	Infof(format string, v ...interface{})
	Warn(v ...interface{})
	Warnf(format string, v ...interface{})
	Error(v ...interface{})
	Errorf(format string, v ...interface{})
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})
	Fatal(v ...interface{})
	Fatalf(format string, v ...interface{})
	Panic(v ...interface{})
	Panicf(format string, v ...interface{})
	ToggleDebug(value bool) bool
}

// NewDefaultLogger builds the Logger used when a Session is not given one
// explicitly. It writes to stderr with standard flags and keeps debug lines
// suppressed until ToggleDebug(true) is called.
func NewDefaultLogger() *DefaultLogger {
	return &DefaultLogger{
		Logger: log.New(os.Stderr, "gomesh ", log.LstdFlags),
		debug:  false,
	}
}

func level(prefix, message string) string {
	return fmt.Sprintf("[%s]: %s", prefix, message)
}

// DefaultLogger is a *log.Logger dressed up with the leveled Logger
// interface. It is the only logging mechanism the runtime carries; there is
// no global singleton anywhere in this module.
type DefaultLogger struct {
	*log.Logger
	debug bool
}

func (l *DefaultLogger) Info(v ...interface{}) {
	l.Output(calldepth, level(lvlInfo, fmt.Sprint(v...)))
}

func (l *DefaultLogger) Infof(format string, v ...interface{}) {
	l.Output(calldepth, level(lvlInfo, fmt.Sprintf(format, v...)))
}

func (l *DefaultLogger) Warn(v ...interface{}) {
	l.Output(calldepth, level(lvlWarn, fmt.Sprint(v...)))
}

func (l *DefaultLogger) Warnf(format string, v ...interface{}) {
	l.Output(calldepth, level(lvlWarn, fmt.Sprintf(format, v...)))
}

func (l *DefaultLogger) Error(v ...interface{}) {
	l.Output(calldepth, level(lvlError, fmt.Sprint(v...)))
}

func (l *DefaultLogger) Errorf(format string, v ...interface{}) {
	l.Output(calldepth, level(lvlError, fmt.Sprintf(format, v...)))
}

func (l *DefaultLogger) Debug(v ...interface{}) {
	if l.debug {
		l.Output(calldepth, level(lvlDebug, fmt.Sprint(v...)))
	}
}

func (l *DefaultLogger) Debugf(format string, v ...interface{}) {
	if l.debug {
		l.Output(calldepth, level(lvlDebug, fmt.Sprintf(format, v...)))
	}
}

func (l *DefaultLogger) ToggleDebug(value bool) bool {
	l.debug = value
	return l.debug
}

func (l *DefaultLogger) Fatal(v ...interface{}) {
	l.Output(calldepth, level(lvlFatal, fmt.Sprint(v...)))
	os.Exit(1)
}

func (l *DefaultLogger) Fatalf(format string, v ...interface{}) {
	l.Output(calldepth, level(lvlFatal, fmt.Sprintf(format, v...)))
	os.Exit(1)
}

func (l *DefaultLogger) Panic(v ...interface{}) {
	l.Logger.Panic(v...)
}

func (l *DefaultLogger) Panicf(format string, v ...interface{}) {
	l.Logger.Panicf(format, v...)
}

// NoopLogger discards everything. Useful for tests that don't want log
// noise but still need to satisfy the Logger contract.
type NoopLogger struct {
	debug bool
}

func NewNoopLogger() *NoopLogger { return &NoopLogger{} }

func (n *NoopLogger) Info(v ...interface{})                    {}
func (n *NoopLogger) Infof(format string, v ...interface{})    {}
func (n *NoopLogger) Warn(v ...interface{})                    {}
func (n *NoopLogger) Warnf(format string, v ...interface{})    {}
func (n *NoopLogger) Error(v ...interface{})                   {}
func (n *NoopLogger) Errorf(format string, v ...interface{})   {}
func (n *NoopLogger) Debug(v ...interface{})                   {}
func (n *NoopLogger) Debugf(format string, v ...interface{})   {}
func (n *NoopLogger) Fatal(v ...interface{})                   {}
func (n *NoopLogger) Fatalf(format string, v ...interface{})   {}
func (n *NoopLogger) Panic(v ...interface{})                   {}
func (n *NoopLogger) Panicf(format string, v ...interface{})   {}
func (n *NoopLogger) ToggleDebug(value bool) bool {
	n.debug = value
	return n.debug
}
