package observability

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	}
	return "UNKNOWN"
}

// textLogger writes "time LEVEL msg key=value ..." lines. Bound fields from
// With are emitted before call-site fields.
type textLogger struct {
	mu    *sync.Mutex
	w     io.Writer
	min   Level
	bound []Field
	clock func() time.Time
}

// NewStderrLogger returns a leveled text logger writing to stderr.
func NewStderrLogger(min Level) Logger {
	return NewTextLogger(os.Stderr, min)
}

// NewTextLogger returns a leveled text logger writing to w.
func NewTextLogger(w io.Writer, min Level) Logger {
	return &textLogger{mu: &sync.Mutex{}, w: w, min: min, clock: time.Now}
}

func (l *textLogger) Debug(msg string, fields ...Field) { l.log(LevelDebug, msg, fields) }
func (l *textLogger) Info(msg string, fields ...Field)  { l.log(LevelInfo, msg, fields) }
func (l *textLogger) Warn(msg string, fields ...Field)  { l.log(LevelWarn, msg, fields) }
func (l *textLogger) Error(msg string, fields ...Field) { l.log(LevelError, msg, fields) }

func (l *textLogger) With(fields ...Field) Logger {
	bound := make([]Field, 0, len(l.bound)+len(fields))
	bound = append(bound, l.bound...)
	bound = append(bound, fields...)
	return &textLogger{mu: l.mu, w: l.w, min: l.min, bound: bound, clock: l.clock}
}

func (l *textLogger) log(lv Level, msg string, fields []Field) {
	if lv < l.min {
		return
	}
	var b strings.Builder
	b.WriteString(l.clock().Format("2006-01-02T15:04:05.000"))
	b.WriteByte(' ')
	b.WriteString(lv.String())
	b.WriteByte(' ')
	b.WriteString(msg)
	for _, f := range l.bound {
		writeField(&b, f)
	}
	for _, f := range fields {
		writeField(&b, f)
	}
	b.WriteByte('\n')
	l.mu.Lock()
	defer l.mu.Unlock()
	io.WriteString(l.w, b.String())
}

func writeField(b *strings.Builder, f Field) {
	b.WriteByte(' ')
	b.WriteString(f.Key())
	b.WriteByte('=')
	switch v := f.Value().(type) {
	case string:
		if strings.ContainsAny(v, " \t\"") {
			fmt.Fprintf(b, "%q", v)
		} else {
			b.WriteString(v)
		}
	case error:
		fmt.Fprintf(b, "%q", v.Error())
	default:
		fmt.Fprintf(b, "%v", v)
	}
}
