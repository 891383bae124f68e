// Package log provides the structured logging API used throughout the
// engine, backed by either stderr or an AsyncFileWriter, in the style of
// go-ethereum's log package: leveled calls taking a message plus
// alternating key/value context pairs.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Lvl is a logging severity level, ordered most to least severe.
type Lvl int

const (
	LvlCrit Lvl = iota
	LvlError
	LvlWarn
	LvlInfo
	LvlDebug
)

func (l Lvl) String() string {
	switch l {
	case LvlCrit:
		return "CRIT"
	case LvlError:
		return "ERROR"
	case LvlWarn:
		return "WARN"
	case LvlInfo:
		return "INFO"
	case LvlDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// Logger writes leveled, key/value-structured lines to an io.Writer.
type Logger struct {
	mu     sync.Mutex
	out    io.Writer
	level  Lvl
	static []interface{}
}

// New returns a Logger writing to out at level, with ctx as key/value
// pairs attached to every line it emits.
func New(out io.Writer, level Lvl, ctx ...interface{}) *Logger {
	return &Logger{out: out, level: level, static: ctx}
}

// SetLevel adjusts the minimum level this logger emits.
func (l *Logger) SetLevel(level Lvl) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// With returns a child logger that prepends ctx to every line's context.
func (l *Logger) With(ctx ...interface{}) *Logger {
	combined := append(append([]interface{}(nil), l.static...), ctx...)
	return &Logger{out: l.out, level: l.level, static: combined}
}

func (l *Logger) log(level Lvl, msg string, ctx []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level > l.level {
		return
	}
	var b strings.Builder
	b.WriteString(time.Now().UTC().Format(time.RFC3339Nano))
	b.WriteByte(' ')
	b.WriteString(level.String())
	b.WriteByte(' ')
	b.WriteString(msg)
	all := append(append([]interface{}(nil), l.static...), ctx...)
	for i := 0; i+1 < len(all); i += 2 {
		fmt.Fprintf(&b, " %v=%v", all[i], all[i+1])
	}
	b.WriteByte('\n')
	io.WriteString(l.out, b.String())
}

func (l *Logger) Crit(msg string, ctx ...interface{})  { l.log(LvlCrit, msg, ctx) }
func (l *Logger) Error(msg string, ctx ...interface{}) { l.log(LvlError, msg, ctx) }
func (l *Logger) Warn(msg string, ctx ...interface{})  { l.log(LvlWarn, msg, ctx) }
func (l *Logger) Info(msg string, ctx ...interface{})  { l.log(LvlInfo, msg, ctx) }
func (l *Logger) Debug(msg string, ctx ...interface{}) { l.log(LvlDebug, msg, ctx) }

var root = New(os.Stderr, LvlInfo)

// Root returns the package-level default logger.
func Root() *Logger { return root }

// SetOutput redirects the root logger's output, e.g. to an
// AsyncFileWriter once one has been Start()-ed.
func SetOutput(w io.Writer) { root.mu.Lock(); root.out = w; root.mu.Unlock() }

func Crit(msg string, ctx ...interface{})  { root.Crit(msg, ctx...) }
func Error(msg string, ctx ...interface{}) { root.Error(msg, ctx...) }
func Warn(msg string, ctx ...interface{})  { root.Warn(msg, ctx...) }
func Info(msg string, ctx ...interface{})  { root.Info(msg, ctx...) }
func Debug(msg string, ctx ...interface{}) { root.Debug(msg, ctx...) }
