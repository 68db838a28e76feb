// Package log wraps github.com/op/go-logging behind a small named-logger
// seam whose backend and verbosity are controlled in one place; cmd/sabdpt
// logs through it (the render driver and the rectifier do not log).
package log

import (
	"io"
	"os"

	"github.com/op/go-logging"
)

// Level is the logger's verbosity, set via SetLevel.
type Level logging.Level

const (
	Debug Level = iota
	Info
	Notice
	Warning
	Error
)

var format = logging.MustStringFormatter(
	`%{color}[%{time:15:04:05.000}] [%{module}] [%{level}]%{color:reset} %{message}`,
)

var leveledBackend logging.LeveledBackend

// Logger is the interface every package in this module logs through.
type Logger interface {
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})

	Notice(v ...interface{})
	Noticef(format string, v ...interface{})

	Info(v ...interface{})
	Infof(format string, v ...interface{})

	Warning(v ...interface{})
	Warningf(format string, v ...interface{})

	Error(v ...interface{})
	Errorf(format string, v ...interface{})
}

// New returns a logger named module, visible in the log line's [module]
// field.
func New(module string) Logger {
	return logging.MustGetLogger(module)
}

// SetSink redirects every logger's output to sink, used by tests to
// capture log lines instead of writing to stdout.
func SetSink(sink io.Writer) {
	backend := logging.NewLogBackend(sink, "", 0)
	withFormatter := logging.NewBackendFormatter(backend, format)
	leveledBackend = logging.AddModuleLevel(withFormatter)
	leveledBackend.SetLevel(logging.NOTICE, "")
	logging.SetBackend(leveledBackend)
}

// SetLevel sets the minimum level that reaches the sink. cmd/sabdpt wires
// this to its -v/-vv flags.
func SetLevel(level Level) {
	var l logging.Level
	switch level {
	case Debug:
		l = logging.DEBUG
	case Info:
		l = logging.INFO
	case Notice:
		l = logging.NOTICE
	case Warning:
		l = logging.WARNING
	case Error:
		l = logging.ERROR
	}
	leveledBackend.SetLevel(l, "")
}

func init() {
	SetSink(os.Stdout)
	SetLevel(Notice)
}
