// Package logging configures the process-wide structured logger used by
// every core component (the "structured logger with levels {debug, info,
// warning, error}" named in spec §6).
package logging

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where and how log output is written.
type Config struct {
	Level    string // debug, info, warning/warn, error
	Format   string // "json" or "text"
	Output   string // "console" or "file"
	FilePath string
	MaxSizeMB int
	MaxAgeDays int
	Compress   bool
}

// DefaultConfig returns sane console/text defaults.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "text", Output: "console"}
}

// New builds a *logrus.Logger from cfg. An unparseable level falls back to
// info rather than failing startup, since a misconfigured log level should
// never prevent the agent from running.
func New(cfg Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(normalizeLevel(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	}

	switch strings.ToLower(cfg.Output) {
	case "file":
		logger.SetOutput(&lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    maxInt(1, cfg.MaxSizeMB),
			MaxAge:     maxInt(1, cfg.MaxAgeDays),
			Compress:   cfg.Compress,
			MaxBackups: 3,
			LocalTime:  true,
		})
	default:
		logger.SetOutput(os.Stdout)
	}

	return logger
}

// normalizeLevel maps the wire-level vocabulary in spec §6
// ({debug, info, warning, error}) onto logrus's level names, rewriting
// "warning" as "warn" (logrus.ParseLevel accepts either spelling).
func normalizeLevel(level string) string {
	if strings.EqualFold(level, "warning") {
		return "warn"
	}
	return level
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
