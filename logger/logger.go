package logger

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level is the logging severity.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the level name used in log lines.
func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a level name, defaulting to info for unknown input.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// DefaultMaxLines caps the log file size in lines. On overflow the file is
// rewritten keeping the newest half, so rotation cost is paid rarely.
const DefaultMaxLines = 5000

// FileLogger is a leveled logger writing to a single file with a line cap.
// The file doubles as the stdlib log sink via io.Writer, so third-party code
// using the standard logger lands in the same capped file.
type FileLogger struct {
	mu       sync.Mutex
	file     *os.File
	level    Level
	lines    int
	maxLines int
}

var _ io.Writer = (*FileLogger)(nil)

// global is the process logger; stderr at info level until Init runs.
var global = &FileLogger{file: os.Stderr, level: LevelInfo, maxLines: DefaultMaxLines}

// Init opens path for appending and installs the result as the process
// logger. The caller owns Close.
func Init(path string, level Level) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	fl := &FileLogger{file: f, level: level, maxLines: DefaultMaxLines}
	fl.lines = fl.countLines()
	global = fl
	return fl, nil
}

// SetLevel changes the minimum level.
func (fl *FileLogger) SetLevel(level Level) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	fl.level = level
}

// SetGlobalLevel changes the minimum level of the process logger.
func SetGlobalLevel(level Level) {
	global.SetLevel(level)
}

// Close closes the underlying file.
func (fl *FileLogger) Close() error {
	return fl.file.Close()
}

func (fl *FileLogger) enabled(level Level) bool {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	return level >= fl.level
}

func (fl *FileLogger) log(level Level, format string, v ...any) {
	if !fl.enabled(level) {
		return
	}
	line := fmt.Sprintf("%s [%s] %s\n",
		time.Now().Format("2006/01/02 15:04:05"), level, fmt.Sprintf(format, v...))
	fl.Write([]byte(line))
}

// Write implements io.Writer so the stdlib logger can be redirected here.
// Lines are counted as they pass through; crossing the cap triggers a trim.
func (fl *FileLogger) Write(p []byte) (int, error) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	n, err := fl.file.Write(p)
	if err != nil {
		return n, err
	}
	fl.lines += strings.Count(string(p[:n]), "\n")
	if fl.lines > fl.maxLines {
		fl.trim()
	}
	return n, nil
}

// countLines scans the existing file so the cap survives restarts.
func (fl *FileLogger) countLines() int {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if _, err := fl.file.Seek(0, io.SeekStart); err != nil {
		return 0
	}
	n := 0
	sc := bufio.NewScanner(fl.file)
	for sc.Scan() {
		n++
	}
	fl.file.Seek(0, io.SeekEnd)
	return n
}

// trim rewrites the file in place keeping the newest maxLines/2 lines.
// Caller holds the mutex.
func (fl *FileLogger) trim() {
	if _, err := fl.file.Seek(0, io.SeekStart); err != nil {
		return
	}
	var lines []string
	sc := bufio.NewScanner(fl.file)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}

	keep := fl.maxLines / 2
	if len(lines) > keep {
		lines = lines[len(lines)-keep:]
	}

	fl.file.Truncate(0)
	fl.file.Seek(0, io.SeekStart)
	w := bufio.NewWriter(fl.file)
	for _, line := range lines {
		w.WriteString(line)
		w.WriteByte('\n')
	}
	w.Flush()
	fl.lines = len(lines)
}

// Debug logs at debug level.
func (fl *FileLogger) Debug(format string, v ...any) { fl.log(LevelDebug, format, v...) }

// Info logs at info level.
func (fl *FileLogger) Info(format string, v ...any) { fl.log(LevelInfo, format, v...) }

// Warn logs at warn level.
func (fl *FileLogger) Warn(format string, v ...any) { fl.log(LevelWarn, format, v...) }

// Error logs at error level.
func (fl *FileLogger) Error(format string, v ...any) { fl.log(LevelError, format, v...) }

// Fatal logs at error level and exits.
func (fl *FileLogger) Fatal(format string, v ...any) {
	fl.log(LevelError, format, v...)
	os.Exit(1)
}

// Package-level functions log through the process logger.

func Debug(format string, v ...any) { global.log(LevelDebug, format, v...) }
func Info(format string, v ...any)  { global.log(LevelInfo, format, v...) }
func Warn(format string, v ...any)  { global.log(LevelWarn, format, v...) }
func Error(format string, v ...any) { global.log(LevelError, format, v...) }
func Fatal(format string, v ...any) { global.Fatal(format, v...) }

var noop = func() {}

// Trace logs the duration of an operation at trace level.
// Usage: defer logger.Trace("diff")()
func Trace(name string) func() {
	if !global.enabled(LevelTrace) {
		return noop
	}
	start := time.Now()
	return func() {
		global.log(LevelTrace, "%s took %v", name, time.Since(start))
	}
}
