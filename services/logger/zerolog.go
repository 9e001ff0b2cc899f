package logsvc

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/danileyton/epicereport-sub000/core"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// ConsoleLogger writes structured logs with zerolog. Used outside QA/PROD.
type ConsoleLogger struct {
	zl zerolog.Logger
}

var _ core.Logger = (*ConsoleLogger)(nil)

// NewConsoleLogger logs to w (stderr when nil) in zerolog's human readable format.
func NewConsoleLogger(w io.Writer, conf *core.Config) *ConsoleLogger {
	if w == nil {
		w = os.Stderr
	}
	level := zerolog.InfoLevel
	if conf.Debug {
		level = zerolog.DebugLevel
	}
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat, NoColor: conf.TestMode}
	zl := zerolog.New(cw).Level(level).With().
		Timestamp().
		Str("app", conf.AppName).
		Str("env", conf.Env).
		Logger()
	return &ConsoleLogger{zl: zl}
}

// apply adds args to e: errors under "error", maps as fields, anything else under "arg<i>".
func apply(e *zerolog.Event, args []interface{}) *zerolog.Event {
	for i, arg := range args {
		switch v := arg.(type) {
		case error:
			e = e.Err(v)
		case map[string]interface{}:
			e = e.Fields(v)
		case time.Duration:
			e = e.Dur(fmt.Sprintf("arg%d", i), v)
		default:
			e = e.Interface(fmt.Sprintf("arg%d", i), v)
		}
	}
	return e
}

func (l ConsoleLogger) Debug(msg string, args ...interface{}) {
	apply(l.zl.Debug(), args).Msg(msg)
}

func (l ConsoleLogger) Info(msg string, args ...interface{}) {
	apply(l.zl.Info(), args).Msg(msg)
}

func (l ConsoleLogger) Warn(msg string, args ...interface{}) {
	apply(l.zl.Warn(), args).Msg(msg)
}

func (l ConsoleLogger) Error(msg string, args ...interface{}) {
	apply(l.zl.Error(), args).Msg(msg)
}

func (l ConsoleLogger) Fatal(msg string, args ...interface{}) {
	apply(l.zl.Fatal(), args).Msg(msg)
}

// NopLogger discards everything.
type NopLogger struct{}

var _ core.Logger = NopLogger{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}
func (NopLogger) Fatal(string, ...interface{}) {}
