package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Transport names accepted in source.transport.
const (
	TransportAuto      = "auto"
	TransportSSE       = "sse"
	TransportWebSocket = "websocket"
	TransportFile      = "file"
)

// SourceConfig selects where browsing clients read collections from.
type SourceConfig struct {
	Transport         string  `yaml:"transport,omitempty" toml:"transport,omitempty" json:"transport,omitempty" jsonschema:"enum=auto,enum=sse,enum=websocket,enum=file,description=How collections are streamed: auto picks the daemon when running and the seed directory otherwise"`
	URL               string  `yaml:"url,omitempty" toml:"url,omitempty" json:"url,omitempty" jsonschema:"description=Daemon address (unix:///path or http(s)://host:port); defaults to daemon.addr"`
	Token             string  `yaml:"token,omitempty" toml:"token,omitempty" json:"token,omitempty" jsonschema:"description=Bearer token sent to the daemon"`
	Dir               string  `yaml:"dir,omitempty" toml:"dir,omitempty" json:"dir,omitempty" jsonschema:"description=Directory of collection files for the file transport"`
	ReconnectInterval string  `yaml:"reconnect_interval,omitempty" toml:"reconnect_interval,omitempty" json:"reconnect_interval,omitempty" jsonschema:"description=Delay before reopening a dropped stream (e.g. 5s); 0 disables reconnection"`
	ReconnectJitter   float64 `yaml:"reconnect_jitter,omitempty" toml:"reconnect_jitter,omitempty" json:"reconnect_jitter,omitempty" jsonschema:"minimum=0,maximum=1,description=Jitter ratio applied to reconnect_interval"`
}

// Reconnect parses ReconnectInterval. Empty means disabled.
func (s SourceConfig) Reconnect() (time.Duration, error) {
	if s.ReconnectInterval == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.ReconnectInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid reconnect_interval %q: %w", s.ReconnectInterval, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("reconnect_interval must not be negative")
	}
	return d, nil
}

// CollectionConfig declares a collection the CLI knows about.
type CollectionConfig struct {
	Name string `yaml:"name" toml:"name" json:"name" jsonschema:"required,description=Collection name"`
	Kind string `yaml:"kind,omitempty" toml:"kind,omitempty" json:"kind,omitempty" jsonschema:"enum=organization,enum=event,description=Entity kind used to decode documents (default: organization)"`
}

// DaemonConfig configures causes serve.
type DaemonConfig struct {
	Addr    string `yaml:"addr,omitempty" toml:"addr,omitempty" json:"addr,omitempty" jsonschema:"description=Listen address (unix:///path or host:port)"`
	DBPath  string `yaml:"db_path,omitempty" toml:"db_path,omitempty" json:"db_path,omitempty" jsonschema:"description=SQLite database path; ':memory:' keeps documents in memory only"`
	Token   string `yaml:"token,omitempty" toml:"token,omitempty" json:"token,omitempty" jsonschema:"description=Bearer token required by the daemon API"`
	SeedDir string `yaml:"seed_dir,omitempty" toml:"seed_dir,omitempty" json:"seed_dir,omitempty" jsonschema:"description=Directory of collection files imported and watched by the daemon"`
}

// Config is the merged causes.yml.
type Config struct {
	Version     string             `yaml:"version" toml:"version" json:"version"`
	Source      SourceConfig       `yaml:"source,omitempty" toml:"source,omitempty" json:"source"`
	Collections []CollectionConfig `yaml:"collections,omitempty" toml:"collections,omitempty" json:"collections,omitempty"`
	Daemon      DaemonConfig       `yaml:"daemon,omitempty" toml:"daemon,omitempty" json:"daemon"`

	// Extensions captures all other top-level keys for extensibility.
	Extensions map[string]interface{} `yaml:",inline" toml:"-" json:"-" jsonschema:"-"`
}

// Collection returns the declared collection with the given name.
func (c *Config) Collection(name string) (CollectionConfig, bool) {
	for _, coll := range c.Collections {
		if coll.Name == name {
			return coll, true
		}
	}
	return CollectionConfig{}, false
}

// UnmarshalExtension decodes a specific extension's configuration from the
// loaded causes.yml into the provided target struct. The target must be a
// pointer.
//
// Example:
//
//	var logCfg logging.Config
//	err := cfg.UnmarshalExtension("logging", &logCfg)
func (c *Config) UnmarshalExtension(key string, target interface{}) error {
	extensionConfig, ok := c.Extensions[key]
	if !ok {
		// The target struct simply remains zero-valued.
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(extensionConfig); err != nil {
		return fmt.Errorf("failed to decode extension config for '%s': %w", key, err)
	}

	return nil
}
