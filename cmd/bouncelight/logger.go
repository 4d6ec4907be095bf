package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/log"
)

// LogLevel represents the available logging levels
type LogLevel string

const (
	LogLevelError LogLevel = "error"
	LogLevelWarn  LogLevel = "warn"
	LogLevelInfo  LogLevel = "info"
	LogLevelDebug LogLevel = "debug"
)

// parseLogLevel converts a string to a LogLevel
func parseLogLevel(level string) (LogLevel, error) {
	switch strings.ToLower(level) {
	case "error":
		return LogLevelError, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "info":
		return LogLevelInfo, nil
	case "debug":
		return LogLevelDebug, nil
	default:
		return "", fmt.Errorf("invalid log level: %s (must be error, warn, info, or debug)", level)
	}
}

// parseLogFormat maps a config format name to a charmbracelet/log formatter.
func parseLogFormat(format string) (log.Formatter, error) {
	switch strings.ToLower(format) {
	case "", "text":
		return log.TextFormatter, nil
	case "json":
		return log.JSONFormatter, nil
	case "logfmt":
		return log.LogfmtFormatter, nil
	default:
		return log.TextFormatter, fmt.Errorf("invalid log format: %s (must be text, json, or logfmt)", format)
	}
}

// setupLogger builds the process logger: slog front end, charmbracelet/log handler.
func setupLogger(w io.Writer, level LogLevel, formatter log.Formatter) *slog.Logger {
	var charmLevel log.Level

	switch level {
	case LogLevelError:
		charmLevel = log.ErrorLevel
	case LogLevelWarn:
		charmLevel = log.WarnLevel
	case LogLevelDebug:
		charmLevel = log.DebugLevel
	default:
		charmLevel = log.InfoLevel
	}

	handler := log.NewWithOptions(w, log.Options{
		Level:           charmLevel,
		ReportTimestamp: true,
		Prefix:          "bouncelight",
		Formatter:       formatter,
	})
	return slog.New(handler)
}
