package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	log  *logrus.Logger
	once sync.Once
)

// LogLevel represents the logging level
type LogLevel string

const (
	DEBUG LogLevel = "DEBUG"
	INFO  LogLevel = "INFO"
	WARN  LogLevel = "WARN"
	ERROR LogLevel = "ERROR"
)

// Output formats accepted by InitWithFormat
const (
	FormatJSON = "json"
	FormatText = "text"
)

const timestampFormat = "2006-01-02T15:04:05.000Z07:00"

// Init initializes the global JSON logger with the specified log level.
// logLevel should be one of: DEBUG, INFO, WARN, ERROR. If invalid, defaults to INFO.
func Init(logLevel string) {
	InitWithFormat(logLevel, FormatJSON)
}

// InitWithFormat initializes the global logger. Unknown formats fall back to JSON.
func InitWithFormat(logLevel, format string) {
	l := logrus.New()
	l.SetOutput(os.Stdout)

	switch strings.ToLower(format) {
	case FormatText:
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timestampFormat,
		})
	default:
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: timestampFormat})
	}

	level, err := logrus.ParseLevel(strings.ToLower(logLevel))
	if err != nil {
		level = logrus.InfoLevel
		l.Warnf("Invalid log level '%s', defaulting to INFO", logLevel)
	}
	l.SetLevel(level)

	log = l
	log.WithField("format", format).Infof("Logger initialized with level: %s", logLevel)
}

// GetLogger returns the global logger instance
func GetLogger() *logrus.Logger {
	once.Do(func() {
		if log == nil {
			Init(string(INFO))
		}
	})
	return log
}

// SetOutput redirects log output, mainly for tests
func SetOutput(w io.Writer) {
	GetLogger().SetOutput(w)
}

// Info logs an info message
func Info(args ...interface{}) {
	GetLogger().Info(args...)
}

// Debugf logs a formatted debug message
func Debugf(format string, args ...interface{}) {
	GetLogger().Debugf(format, args...)
}

// Warnf logs a formatted warning message
func Warnf(format string, args ...interface{}) {
	GetLogger().Warnf(format, args...)
}

// Fatalf logs a formatted fatal message and exits
func Fatalf(format string, args ...interface{}) {
	GetLogger().Fatalf(format, args...)
}

// WithField returns a logger entry with a single field
func WithField(key string, value interface{}) *logrus.Entry {
	return GetLogger().WithField(key, value)
}

// WithFields returns a logger entry with multiple fields
func WithFields(fields logrus.Fields) *logrus.Entry {
	return GetLogger().WithFields(fields)
}

// WithComponent tags entries with the subsystem that produced them.
// Resolve it per call; Init replaces the underlying logger.
func WithComponent(component string) *logrus.Entry {
	return GetLogger().WithField("component", component)
}
