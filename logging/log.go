package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jrick/logrotate/rotator"
)

// ANSI Color Codes
const (
	Reset   = "\033[0m"
	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Cyan    = "\033[36m"
	Magenta = "\033[35m"
	White   = "\033[97m"
)

type LogLevel int

const (
	LogLevelError   LogLevel = 0
	LogLevelWarning LogLevel = 1
	LogLevelInfo    LogLevel = 2
	LogLevelDebug   LogLevel = 3
)

var (
	levelMtx sync.RWMutex
	logLevel = LogLevelInfo

	logRotator *rotator.Rotator
)

func SetLogLevel(newLevel LogLevel) {
	levelMtx.Lock()
	logLevel = newLevel
	levelMtx.Unlock()
}

func Level() LogLevel {
	levelMtx.RLock()
	defer levelMtx.RUnlock()
	return logLevel
}

// ParseLevel maps a config string onto a level.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(s) {
	case "error":
		return LogLevelError, nil
	case "warn", "warning":
		return LogLevelWarning, nil
	case "", "info":
		return LogLevelInfo, nil
	case "debug", "trace":
		return LogLevelDebug, nil
	}
	return LogLevelInfo, fmt.Errorf("unknown log level %q", s)
}

// SetLogFile mirrors all output into a size-rotated file at path.
func SetLogFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	r, err := rotator.New(path, 10*1024, false, 3)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %w", err)
	}
	logRotator = r
	SetOutput(r)
	return nil
}

// SetOutput sends log lines to stdout and w.
func SetOutput(w io.Writer) {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.SetOutput(io.MultiWriter(os.Stdout, w))
}

// Close flushes and closes the rotating log file, if any.
func Close() {
	if logRotator != nil {
		logRotator.Close()
		logRotator = nil
	}
	log.SetOutput(os.Stdout)
}

func getPrefix(level string) string {
	return fmt.Sprintf("[%s]", level)
}

func printf(min LogLevel, color, level, format string, args ...interface{}) {
	if Level() >= min {
		log.Printf(color+fmt.Sprintf("%s %s", getPrefix(level), format)+Reset, args...)
	}
}

func Fatalf(format string, args ...interface{}) {
	log.Fatalf(Red+fmt.Sprintf("%s %s", getPrefix("FATAL"), format)+Reset, args...)
}

func Debugf(format string, args ...interface{}) {
	printf(LogLevelDebug, Cyan, "DEBUG", format, args...)
}

func Infof(format string, args ...interface{}) {
	printf(LogLevelInfo, White, "INFO", format, args...)
}

// Successf prints in green, for successful events like finding a block.
func Successf(format string, args ...interface{}) {
	printf(LogLevelInfo, Green, "SUCCESS", format, args...)
}

// Noticef prints in magenta, for noteworthy events like a new chain tip.
func Noticef(format string, args ...interface{}) {
	printf(LogLevelInfo, Magenta, "NOTICE", format, args...)
}

func Warnf(format string, args ...interface{}) {
	printf(LogLevelWarning, Yellow, "WARN", format, args...)
}

func Errorf(format string, args ...interface{}) {
	printf(LogLevelError, Red, "ERROR", format, args...)
}

// Logger tags every line with a subsystem name.
type Logger struct {
	tag string
}

// New returns a logger for the subsystem tag, e.g. "MNR".
func New(tag string) *Logger {
	return &Logger{tag: tag + ": "}
}

func (l *Logger) Debugf(format string, args ...interface{}) { Debugf(l.tag+format, args...) }

func (l *Logger) Infof(format string, args ...interface{}) { Infof(l.tag+format, args...) }

func (l *Logger) Successf(format string, args ...interface{}) { Successf(l.tag+format, args...) }

func (l *Logger) Noticef(format string, args ...interface{}) { Noticef(l.tag+format, args...) }

func (l *Logger) Warnf(format string, args ...interface{}) { Warnf(l.tag+format, args...) }

func (l *Logger) Errorf(format string, args ...interface{}) { Errorf(l.tag+format, args...) }

func (l *Logger) Fatalf(format string, args ...interface{}) { Fatalf(l.tag+format, args...) }
