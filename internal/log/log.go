//nolint:revive // Package name kept as "log" for stable internal imports.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// TimeLayout is the timestamp prefix used when timestamps are enabled.
const TimeLayout = "2006-01-02 15:04:05"

var (
	mu         sync.Mutex
	debugMode  = false
	timestamps = false
	stdout     io.Writer
	stderr     io.Writer
)

// SetDebugMode enables or disables debug logging
func SetDebugMode(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	debugMode = enabled
}

// SetTimestamps prefixes every line with the local wall-clock time.
// The background monitor enables this so its log file reads as a timeline.
func SetTimestamps(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	timestamps = enabled
}

// SetOutput redirects both info and error output to w. Passing nil restores
// the process stdout/stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	stdout = w
	stderr = w
}

func outWriter() io.Writer {
	if stdout != nil {
		return stdout
	}
	return os.Stdout
}

func errWriter() io.Writer {
	if stderr != nil {
		return stderr
	}
	return os.Stderr
}

func emit(toErr bool, prefix, message string) {
	mu.Lock()
	defer mu.Unlock()

	w := outWriter()
	if toErr {
		w = errWriter()
	}
	line := prefix + message
	if timestamps {
		line = "[" + time.Now().Format(TimeLayout) + "] " + line
	}
	fmt.Fprintln(w, line)
}

// Debug logs debug messages when debug mode is enabled
func Debug(format string, elem ...any) {
	if isDebug() {
		emit(false, color.CyanString("[DEBUG] "), fmt.Sprintf(format, elem...))
	}
}

// DebugH2 logs indented debug messages when debug mode is enabled
func DebugH2(format string, elem ...any) {
	if isDebug() {
		emit(false, color.CyanString("  [DEBUG] "), fmt.Sprintf(format, elem...))
	}
}

func isDebug() bool {
	mu.Lock()
	defer mu.Unlock()
	return debugMode
}

// Fatal logs an error message and exits the program
func Fatal(args ...interface{}) {
	FatalCode(1, args...)
}

// FatalCode is Fatal with an explicit process exit status.
func FatalCode(code int, args ...interface{}) {
	var message string

	switch len(args) {
	case 0:
		message = "fatal error occurred"
	case 1:
		switch v := args[0].(type) {
		case error:
			message = v.Error()
		case string:
			message = v
		default:
			message = fmt.Sprintf("%v", v)
		}
	default:
		if format, ok := args[0].(string); ok && strings.Contains(format, "%") {
			message = fmt.Sprintf(format, args[1:]...)
		} else {
			message = fmt.Sprint(args...)
		}
	}

	for _, line := range strings.Split(strings.TrimSpace(message), "\n") {
		emit(true, color.RedString("[x] "), line)
	}
	os.Exit(code)
}

// Error logs an error message to stderr
func Error(str string, elem ...any) {
	emit(true, color.RedString("[x] "), fmt.Sprintf(str, elem...))
}

// ErrorH2 logs an indented error message to stderr
func ErrorH2(format string, elem ...any) {
	emit(true, color.RedString("  [x] "), fmt.Sprintf(format, elem...))
}

// Warn logs a warning. Warnings go to stdout so they stay in order with the
// info lines around them in the monitor log.
func Warn(format string, elem ...any) {
	emit(false, color.MagentaString("[!] "), fmt.Sprintf(format, elem...))
}

// Info logs an informational message
func Info(format string, elem ...any) {
	emit(false, color.BlueString("[x] "), fmt.Sprintf(format, elem...))
}

// InfoH2 logs an indented informational message
func InfoH2(format string, elem ...any) {
	emit(false, color.GreenString("  [x] "), fmt.Sprintf(format, elem...))
}

// InfoH3 logs a double-indented informational message
func InfoH3(format string, elem ...any) {
	emit(false, color.YellowString("    [x] "), fmt.Sprintf(format, elem...))
}
