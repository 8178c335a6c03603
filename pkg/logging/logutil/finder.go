// Package logutil locates the log files written by causes components.
package logutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/grovetools/causes/config"
	"github.com/grovetools/causes/logging"
	"github.com/grovetools/causes/pkg/paths"
	"github.com/grovetools/causes/util/pathutil"
)

// LogsDir is where components write dated log files when no explicit path
// is configured.
func LogsDir() string {
	return filepath.Join(paths.StateDir(), "logs")
}

// FindLogFile returns the log file of component and the directory holding
// it. An explicit logging.file.path wins; otherwise the newest
// "<component>-*.log" in LogsDir is used.
func FindLogFile(cfg *config.Config, component string) (logFile string, logsDir string, err error) {
	var logCfg logging.Config
	if cfg != nil {
		// Fall back to the default location when the section does not parse.
		_ = cfg.UnmarshalExtension("logging", &logCfg)
	}

	if logCfg.File.Enabled && logCfg.File.Path != "" {
		path, err := pathutil.Expand(logCfg.File.Path)
		if err != nil {
			return "", "", err
		}
		return path, filepath.Dir(path), nil
	}

	logsDir = LogsDir()
	logFile, err = FindLatestLogFile(logsDir, component+"-")
	return logFile, logsDir, err
}

// FindLatestLogFile finds the most recently modified file in dir whose name
// starts with prefix. Files with content are preferred over empty ones.
func FindLatestLogFile(dir, prefix string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("could not read log directory %s: %w", dir, err)
	}

	var latest, latestNonEmpty os.FileInfo
	var latestPath, latestNonEmptyPath string

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if latest == nil || info.ModTime().After(latest.ModTime()) {
			latest = info
			latestPath = filepath.Join(dir, entry.Name())
		}
		if info.Size() > 0 && (latestNonEmpty == nil || info.ModTime().After(latestNonEmpty.ModTime())) {
			latestNonEmpty = info
			latestNonEmptyPath = filepath.Join(dir, entry.Name())
		}
	}

	switch {
	case latestNonEmpty != nil:
		return latestNonEmptyPath, nil
	case latest != nil:
		return latestPath, nil
	}
	return "", fmt.Errorf("no %s*.log files in %s", prefix, dir)
}
