// Package config loads causes.yml: a global layer from the XDG config
// directory with the nearest project file merged over it.
package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/grovetools/causes/errors"
	"github.com/grovetools/causes/pkg/paths"
	"github.com/grovetools/causes/util/pathutil"
	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// configNames are searched in order in every directory.
var configNames = []string{
	"causes.yml",
	"causes.yaml",
	".causes.yml",
	".causes.yaml",
	"causes.toml",
}

// Load reads, validates and defaults a single configuration file.
func Load(path string) (*Config, error) {
	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return finish(cfg)
}

// LoadDefault loads configuration starting from the working directory.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, errors.Internal("failed to get working directory", err)
	}
	return LoadFrom(cwd)
}

// LoadFrom merges the global configuration with the nearest project file
// above startDir. Either layer may be missing; with neither present the
// defaults are returned.
func LoadFrom(startDir string) (*Config, error) {
	return LoadFromWithLogger(startDir, logrus.New())
}

// LoadFromWithLogger is LoadFrom with an explicit logger for layer tracing.
func LoadFromWithLogger(startDir string, logger *logrus.Logger) (*Config, error) {
	finalConfig := &Config{}

	if globalPath := GlobalConfigPath(); globalPath != "" {
		if _, err := os.Stat(globalPath); err == nil {
			logger.WithField("path", globalPath).Debug("Loading global config")
			global, err := readFile(globalPath)
			if err != nil {
				return nil, err
			}
			finalConfig = global
		}
	}

	projectPath, err := FindConfigFile(startDir)
	switch {
	case err == nil:
		if !pathutil.SamePath(projectPath, GlobalConfigPath()) {
			logger.WithField("path", projectPath).Debug("Loading project config")
			project, err := readFile(projectPath)
			if err != nil {
				return nil, err
			}
			finalConfig = mergeConfigs(finalConfig, project)
		}
	case errors.Is(err, errors.ErrCodeConfigNotFound):
		logger.WithField("start", startDir).Debug("No project config found")
	default:
		return nil, err
	}

	cfg, err := finish(finalConfig)
	if err != nil {
		return nil, err
	}

	if logger.IsLevelEnabled(logrus.DebugLevel) {
		if data, err := yaml.Marshal(cfg); err == nil {
			logger.Debugf("Merged configuration:\n%s", string(data))
		}
	}
	return cfg, nil
}

// LoadFromBytes parses configuration in the given format ("yaml" or "toml").
func LoadFromBytes(data []byte, format string) (*Config, error) {
	cfg, err := parse(data, format)
	if err != nil {
		return nil, err
	}
	return finish(cfg)
}

// FindConfigFile searches from startDir up to the filesystem root for a
// project config file.
func FindConfigFile(startDir string) (string, error) {
	dir := startDir
	for {
		for _, name := range configNames {
			path := filepath.Join(dir, name)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", errors.ConfigNotFound(startDir).WithDetail("searchPath", startDir)
}

// GlobalConfigPath returns the path of the global causes.yml.
func GlobalConfigPath() string {
	dir := paths.ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "causes.yml")
}

func finish(cfg *Config) (*Config, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigNotFound(path)
		}
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read config").WithDetail("path", path)
	}
	cfg, err := parse(data, formatOf(path))
	if err != nil {
		if e, ok := err.(*errors.Error); ok {
			return nil, e.WithDetail("path", path)
		}
		return nil, err
	}
	return cfg, nil
}

func formatOf(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return "toml"
	}
	return "yaml"
}

// parse decodes one layer without defaults. TOML is normalised through
// YAML so extension keys are captured the same way for both formats.
func parse(data []byte, format string) (*Config, error) {
	expanded := []byte(expandEnvVars(string(data)))

	if format == "toml" {
		var raw map[string]interface{}
		if err := toml.Unmarshal(expanded, &raw); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse TOML configuration")
		}
		converted, err := yaml.Marshal(raw)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to convert TOML configuration")
		}
		expanded = converted
	}

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse YAML configuration")
	}
	return &cfg, nil
}

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		varName := envVarRegex.FindStringSubmatch(match)[1]

		// Handle default values: ${VAR:-default}
		parts := strings.SplitN(varName, ":-", 2)
		varName = parts[0]
		defaultValue := ""
		if len(parts) > 1 {
			defaultValue = parts[1]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}
