// Package log provides the leveled key-value logger used by the engine and
// the CLI, and a terminal spinner for long analyses.
package log

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// Level represents log severity levels
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

// ANSI colours per level: cyan, green, yellow, red.
var levelColors = [...]string{"\033[36m", "\033[32m", "\033[33m", "\033[31m"}

const colorReset = "\033[0m"

func (l Level) String() string {
	if l < DebugLevel || int(l) >= len(levelNames) {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel maps a level name to a Level. The empty string is InfoLevel.
func ParseLevel(s string) (Level, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch s {
	case "":
		return InfoLevel, nil
	case "WARNING":
		return WarnLevel, nil
	}
	for i, name := range levelNames {
		if name == s {
			return Level(i), nil
		}
	}
	return InfoLevel, fmt.Errorf("unknown log level: %s", s)
}

// Logger is the structured logger accepted by every package. Arguments
// after the message alternate between string keys and values.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	// With returns a logger that prefixes every entry with args.
	With(args ...interface{}) Logger
	SetLevel(level Level)
	SetJSONOutput(enabled bool)
}

// LoggerConfig holds configuration for the logger
type LoggerConfig struct {
	Level      Level
	JSONOutput bool
	Stderr     io.Writer
}

// sink is the output state shared by a logger and its children.
type sink struct {
	mu     sync.Mutex
	level  Level
	json   bool
	colors bool
	out    io.Writer
}

// DefaultLogger writes entries to stderr as text or JSON lines.
type DefaultLogger struct {
	sink   *sink
	fields []interface{}
}

var (
	defaultOnce   sync.Once
	defaultLogger *DefaultLogger
)

// New creates a logger writing to cfg.Stderr, or os.Stderr when unset.
func New(cfg LoggerConfig) *DefaultLogger {
	out := cfg.Stderr
	if out == nil {
		out = os.Stderr
	}
	return &DefaultLogger{sink: &sink{
		level:  cfg.Level,
		json:   cfg.JSONOutput,
		colors: IsTerminal(out),
		out:    out,
	}}
}

// Default returns the process-wide logger at InfoLevel.
func Default() *DefaultLogger {
	defaultOnce.Do(func() {
		defaultLogger = New(LoggerConfig{Level: InfoLevel})
	})
	return defaultLogger
}

// Discard returns a logger that drops everything.
func Discard() *DefaultLogger {
	return New(LoggerConfig{Level: ErrorLevel + 1, Stderr: io.Discard})
}

// IsTerminal reports whether w is a terminal that accepts ANSI colours.
// NO_COLOR disables colours regardless.
func IsTerminal(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// With returns a child logger sharing l's output.
func (l *DefaultLogger) With(args ...interface{}) Logger {
	fields := make([]interface{}, 0, len(l.fields)+len(args))
	fields = append(fields, l.fields...)
	fields = append(fields, args...)
	return &DefaultLogger{sink: l.sink, fields: fields}
}

func (l *DefaultLogger) Debug(msg string, args ...interface{}) { l.log(DebugLevel, msg, args) }
func (l *DefaultLogger) Info(msg string, args ...interface{})  { l.log(InfoLevel, msg, args) }
func (l *DefaultLogger) Warn(msg string, args ...interface{})  { l.log(WarnLevel, msg, args) }
func (l *DefaultLogger) Error(msg string, args ...interface{}) { l.log(ErrorLevel, msg, args) }

// SetLevel sets the minimum level for l and every logger derived from it.
func (l *DefaultLogger) SetLevel(level Level) {
	l.sink.mu.Lock()
	l.sink.level = level
	l.sink.mu.Unlock()
}

// SetJSONOutput switches between text and JSON lines.
func (l *DefaultLogger) SetJSONOutput(enabled bool) {
	l.sink.mu.Lock()
	l.sink.json = enabled
	l.sink.mu.Unlock()
}

// pairs splits key-value args. A trailing key without a value is kept
// under "value".
func pairs(args []interface{}) (keys []string, values []interface{}) {
	for i := 0; i < len(args); i += 2 {
		if i+1 == len(args) {
			keys = append(keys, "value")
			values = append(values, args[i])
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		keys = append(keys, key)
		values = append(values, args[i+1])
	}
	return keys, values
}

// formatMessage renders msg followed by key=value pairs.
func formatMessage(msg string, args ...interface{}) string {
	keys, values := pairs(args)
	if len(keys) == 0 {
		return msg
	}
	var sb strings.Builder
	sb.WriteString(msg)
	for i, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, values[i])
	}
	return sb.String()
}

func (l *DefaultLogger) log(level Level, msg string, args []interface{}) {
	s := l.sink
	s.mu.Lock()
	defer s.mu.Unlock()
	if level < s.level {
		return
	}
	all := append(append([]interface{}{}, l.fields...), args...)
	now := time.Now().Format("2006-01-02 15:04:05")

	if s.json {
		entry := map[string]interface{}{
			"timestamp": now,
			"level":     level.String(),
			"message":   msg,
		}
		keys, values := pairs(all)
		for i, k := range keys {
			entry[k] = fmt.Sprint(values[i])
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return
		}
		fmt.Fprintln(s.out, string(data))
		return
	}

	text := formatMessage(msg, all...)
	if s.colors {
		text = levelColors[level] + text + colorReset
	}
	fmt.Fprintf(s.out, "[%s] %s: %s\n", now, level, text)
}

// ProgressSpinner animates a status line on stderr while the CLI parses
// and solves. It is silent when stderr is not a terminal.
type ProgressSpinner struct {
	mu      sync.Mutex
	status  string
	frame   int
	out     io.Writer
	enabled bool

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// NewProgressSpinner returns a stopped spinner showing status.
func NewProgressSpinner(status string) *ProgressSpinner {
	return &ProgressSpinner{
		status:  status,
		out:     os.Stderr,
		enabled: IsTerminal(os.Stderr),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start begins the animation.
func (p *ProgressSpinner) Start() {
	if !p.enabled {
		close(p.done)
		return
	}
	go p.run()
}

// Stop ends the animation and clears the line. It is safe to call twice.
func (p *ProgressSpinner) Stop() {
	p.stopOnce.Do(func() {
		close(p.stop)
		<-p.done
		if p.enabled {
			fmt.Fprint(p.out, "\r\033[K")
		}
	})
}

// Message replaces the status text.
func (p *ProgressSpinner) Message(status string) {
	p.mu.Lock()
	p.status = status
	p.mu.Unlock()
}

func (p *ProgressSpinner) run() {
	defer close(p.done)
	tick := time.NewTicker(80 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-tick.C:
			p.mu.Lock()
			fmt.Fprintf(p.out, "\r%s%s%s %s", levelColors[DebugLevel], spinnerFrames[p.frame%len(spinnerFrames)], colorReset, p.status)
			p.frame++
			p.mu.Unlock()
		}
	}
}
