// Package logger is the categorized logger used across the service. Each
// entry is printed in color to the console writer and, when a log
// directory is configured, appended as a JSON line to a daily file.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Entry is the JSON shape written to the log file.
type Entry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Category  string `json:"category"`
	Message   string `json:"message"`
	File      string `json:"file,omitempty"`
	Line      int    `json:"line,omitempty"`
}

type Logger struct {
	mu      sync.Mutex
	console io.Writer
	file    *os.File
	min     Level
	now     func() time.Time
}

// New returns a logger writing colored lines to console. If dir is not
// empty, JSON entries are also appended to dir/reservation-YYYY-MM-DD.log.
func New(console io.Writer, dir string) (*Logger, error) {
	l := &Logger{console: console, min: INFO, now: time.Now}
	if dir == "" {
		return l, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	name := filepath.Join(dir, fmt.Sprintf("reservation-%s.log", time.Now().Format("2006-01-02")))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	l.file = f
	return l, nil
}

// Discard returns a logger that drops everything. Used in tests.
func Discard() *Logger {
	return &Logger{console: io.Discard, min: ERROR + 1, now: time.Now}
}

// SetLevel drops entries below lvl.
func (l *Logger) SetLevel(lvl Level) { l.min = lvl }

// Close flushes and closes the log file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *Logger) log(level Level, category, message string) {
	if l == nil || level < l.min {
		return
	}
	_, file, line, ok := runtime.Caller(2)
	if ok {
		file = filepath.Base(file)
	}
	e := Entry{
		Timestamp: l.now().UTC().Format("2006-01-02T15:04:05.000Z"),
		Level:     level.String(),
		Category:  strings.ToUpper(category),
		Message:   message,
		File:      file,
		Line:      line,
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprint(l.console, terminalLine(e))
	if l.file != nil {
		if b, err := json.Marshal(e); err == nil {
			_, _ = l.file.Write(append(b, '\n'))
		}
	}
}

func terminalLine(e Entry) string {
	var lc *color.Color
	switch e.Level {
	case "DEBUG":
		lc = color.New(color.FgCyan)
	case "WARN":
		lc = color.New(color.FgYellow)
	case "ERROR":
		lc = color.New(color.FgRed)
	default:
		lc = color.New(color.FgGreen)
	}
	ts := color.New(color.FgBlue).Sprint(e.Timestamp[11:19])
	lvl := lc.Sprintf("%-5s", e.Level)
	cat := lc.Add(color.Bold).Sprintf("[%-11s]", e.Category)
	if e.File != "" && e.Line > 0 {
		src := color.New(color.FgMagenta).Sprintf(" (%s:%d)", e.File, e.Line)
		return fmt.Sprintf("%s %s %s %s%s\n", ts, lvl, cat, e.Message, src)
	}
	return fmt.Sprintf("%s %s %s %s\n", ts, lvl, cat, e.Message)
}

func (l *Logger) Debug(category, message string) { l.log(DEBUG, category, message) }
func (l *Logger) Info(category, message string)  { l.log(INFO, category, message) }
func (l *Logger) Warn(category, message string)  { l.log(WARN, category, message) }
func (l *Logger) Error(category, message string) { l.log(ERROR, category, message) }

// Component helpers keep message shapes consistent per category.

func (l *Logger) LogHold(action string, holdID uint64, message string) {
	l.log(INFO, "HOLD", fmt.Sprintf("[%s] hold=%d %s", action, holdID, message))
}

func (l *Logger) LogTicket(action string, ticketID uint64, message string) {
	l.log(INFO, "TICKET", fmt.Sprintf("[%s] ticket=%d %s", action, ticketID, message))
}

func (l *Logger) LogTrip(action string, tripID uint64, message string) {
	l.log(INFO, "TRIP", fmt.Sprintf("[%s] trip=%d %s", action, tripID, message))
}

func (l *Logger) LogAPI(method, path string, status int, d time.Duration) {
	l.log(INFO, "API", fmt.Sprintf("%s %s - %d (%s)", method, path, status, d.Round(time.Microsecond)))
}
