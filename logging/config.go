package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/grovetools/causes/pkg/paths"
	"github.com/grovetools/causes/util/pathutil"
	"github.com/sirupsen/logrus"
)

// Environment overrides, applied on top of the "logging" section.
const (
	envLevel  = "CAUSES_LOG_LEVEL"
	envCaller = "CAUSES_LOG_CALLER"
	envDebug  = "CAUSES_DEBUG"
)

// Config is the "logging" section of causes.yml.
type Config struct {
	// Level is one of trace, debug, info, warn, error. Unknown values mean
	// info.
	Level        string         `yaml:"level"`
	ReportCaller bool           `yaml:"report_caller"`
	File         FileSinkConfig `yaml:"file"`
	Format       FormatConfig   `yaml:"format"`
}

// FileSinkConfig enables writing logs to a file as well.
type FileSinkConfig struct {
	Enabled bool `yaml:"enabled"`
	// Path defaults to <state dir>/logs/<component>-<date>.log.
	Path string `yaml:"path"`
}

type FormatConfig struct {
	// Preset is "default", "simple" (no timestamp or component) or "json".
	Preset           string `yaml:"preset"`
	DisableTimestamp bool   `yaml:"disable_timestamp"`
	DisableComponent bool   `yaml:"disable_component"`
	// StructuredToStderr is "auto" (default), "always" or "never".
	StructuredToStderr string `yaml:"structured_to_stderr"`
}

// withEnv returns c with the environment overrides applied.
func (c Config) withEnv() Config {
	if v := os.Getenv(envLevel); v != "" {
		c.Level = v
	}
	if os.Getenv(envCaller) == "true" {
		c.ReportCaller = true
	}
	return c
}

func (c Config) level() logrus.Level {
	if c.Level == "" {
		return logrus.InfoLevel
	}
	lvl, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

func (f FormatConfig) formatter() logrus.Formatter {
	switch f.Preset {
	case "json":
		return &logrus.JSONFormatter{}
	case "simple":
		return &TextFormatter{Config: FormatConfig{DisableTimestamp: true, DisableComponent: true}}
	}
	return &TextFormatter{Config: f}
}

// path resolves where component logs go on day now.
func (s FileSinkConfig) path(component string, now time.Time) string {
	if p := pathutil.MustExpand(s.Path); p != "" {
		return p
	}
	return filepath.Join(paths.StateDir(), "logs",
		fmt.Sprintf("%s-%s.log", component, now.Format("2006-01-02")))
}
