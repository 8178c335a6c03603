// Package logging builds the per-component logrus loggers used across
// causes. Settings come from the "logging" section of causes.yml and
// CAUSES_LOG_* environment variables.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/grovetools/causes/config"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// componentField is the entry field naming the logging component.
const componentField = "component"

// configSection is the causes.yml extension key read by NewLogger.
const configSection = "logging"

var (
	loggers   = make(map[string]*logrus.Entry)
	loggersMu sync.Mutex
)

// NewLogger returns the shared logger for component, building it from the
// default config on first use.
func NewLogger(component string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if logger, exists := loggers[component]; exists {
		return logger
	}

	var logCfg Config
	if cfg, err := config.LoadDefault(); err == nil {
		if err := cfg.UnmarshalExtension(configSection, &logCfg); err != nil {
			logrus.Warnf("Failed to parse 'logging' config: %v", err)
		}
	}

	entry := Build(component, logCfg)
	loggers[component] = entry
	return entry
}

// Build configures a logger for component from cfg and the environment,
// without caching it.
func Build(component string, cfg Config) *logrus.Entry {
	cfg = cfg.withEnv()

	logger := logrus.New()
	logger.SetLevel(cfg.level())
	logger.SetReportCaller(cfg.ReportCaller)
	logger.SetFormatter(cfg.Format.formatter())

	var sinks []io.Writer
	if cfg.File.Enabled {
		if f, err := openLogFile(cfg.File.path(component, time.Now())); err != nil {
			logger.Warn(err)
		} else {
			sinks = append(sinks, f)
		}
	}
	if shouldLogToStderr(cfg.Format.StructuredToStderr, logger.GetLevel()) {
		sinks = append(sinks, GetGlobalOutput())
	}

	switch len(sinks) {
	case 0:
		// Interactive terminals without debug stay quiet.
		logger.SetOutput(io.Discard)
	case 1:
		logger.SetOutput(sinks[0])
	default:
		logger.SetOutput(io.MultiWriter(sinks...))
	}
	return logger.WithField(componentField, component)
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return f, nil
}

func shouldLogToStderr(mode string, level logrus.Level) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	// auto: debug output, or whenever stderr is not an interactive terminal
	// (piped, CI, the daemon under a supervisor).
	isDebug := os.Getenv(envDebug) == "1" || level >= logrus.DebugLevel
	isInteractive := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	return isDebug || !isInteractive
}

// SetLevel changes the level of every logger created so far. The CLI uses it
// for --verbose.
func SetLevel(level logrus.Level) {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	for _, entry := range loggers {
		entry.Logger.SetLevel(level)
		if entry.Logger.Out == io.Discard && level >= logrus.DebugLevel {
			entry.Logger.SetOutput(GetGlobalOutput())
		}
	}
}
