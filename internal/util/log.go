package util

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	logMu           sync.Mutex
	currentLogLevel = LevelInfo
	useColors       = IsTerminal(os.Stderr.Fd())
	logOutput       io.Writer = os.Stderr
	logMirror       io.WriteCloser
)

// SetLogLevel sets the minimum log level to display
func SetLogLevel(level LogLevel) {
	logMu.Lock()
	defer logMu.Unlock()
	currentLogLevel = level
}

// SetVerbose enables verbose (debug) logging
func SetVerbose(verbose bool) {
	if verbose {
		SetLogLevel(LevelDebug)
	}
}

// SetQuiet enables quiet mode (errors only)
func SetQuiet(quiet bool) {
	if quiet {
		SetLogLevel(LevelError)
	}
}

// IsQuiet reports whether only errors are being shown
func IsQuiet() bool {
	logMu.Lock()
	defer logMu.Unlock()
	return currentLogLevel >= LevelError
}

// SetColors enables or disables colored output
func SetColors(enabled bool) {
	logMu.Lock()
	defer logMu.Unlock()
	useColors = enabled
}

// SetOutput redirects terminal log output. Used by tests.
func SetOutput(w io.Writer) {
	logMu.Lock()
	defer logMu.Unlock()
	logOutput = w
}

// MirrorToFile appends every log line (uncolored) to the file at path.
// The server's log endpoint reads this file back.
func MirrorToFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	logMu.Lock()
	defer logMu.Unlock()
	if logMirror != nil {
		logMirror.Close()
	}
	logMirror = f
	return nil
}

// CloseLogFile stops mirroring to the log file
func CloseLogFile() error {
	logMu.Lock()
	defer logMu.Unlock()
	if logMirror == nil {
		return nil
	}
	err := logMirror.Close()
	logMirror = nil
	return err
}

func colorize(color string, text string) string {
	if !useColors {
		return text
	}
	reset := "\033[0m"
	return color + text + reset
}

func emit(level LogLevel, color, tag, format string, args ...interface{}) {
	logMu.Lock()
	defer logMu.Unlock()

	if currentLogLevel > level {
		return
	}

	msg := fmt.Sprintf(format, args...)
	ts := timestamp()
	fmt.Fprintf(logOutput, "%s %s %s\n", colorize(color, ts), tag, msg)

	if logMirror != nil {
		fmt.Fprintf(logMirror, "%s %s %s\n", time.Now().Format("2006-01-02 ")+ts, tag, msg)
	}
}

// DebugLog logs debug messages
func DebugLog(format string, args ...interface{}) {
	emit(LevelDebug, "\033[90m", "[DEBUG]", format, args...)
}

// InfoLog logs informational messages
func InfoLog(format string, args ...interface{}) {
	emit(LevelInfo, "\033[36m", "[INFO] ", format, args...)
}

// WarnLog logs warning messages
func WarnLog(format string, args ...interface{}) {
	emit(LevelWarn, "\033[33m", "[WARN] ", format, args...)
}

// ErrorLog logs error messages
func ErrorLog(format string, args ...interface{}) {
	emit(LevelError, "\033[31m", "[ERROR]", format, args...)
}

// SuccessLog logs success messages (always shown unless quiet)
func SuccessLog(format string, args ...interface{}) {
	emit(LevelInfo, "\033[32m", "[OK]   ", format, args...)
}

func timestamp() string {
	return time.Now().Format("15:04:05")
}
