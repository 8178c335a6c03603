package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/grovetools/causes/errors"
	"github.com/grovetools/causes/pkg/models"
	"github.com/grovetools/causes/pkg/paths"
	"github.com/grovetools/causes/util/pathutil"
)

// DefaultVersion is the configuration version written when none is set.
const DefaultVersion = "1.0"

// MemoryDB as daemon.db_path keeps daemon documents in memory only.
const MemoryDB = ":memory:"

var collectionNameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// SetDefaults sets default values for configuration.
func (c *Config) SetDefaults() {
	if c.Version == "" {
		c.Version = DefaultVersion
	}
	if c.Daemon.Addr == "" {
		c.Daemon.Addr = "unix://" + paths.SocketPath()
	}
	if c.Daemon.DBPath == "" {
		c.Daemon.DBPath = paths.DatabasePath()
	}
	if c.Source.Transport == "" {
		c.Source.Transport = TransportAuto
	}
	if c.Source.URL == "" {
		c.Source.URL = DaemonURL(c.Daemon.Addr)
	}
	if c.Source.Token == "" {
		c.Source.Token = c.Daemon.Token
	}
	c.Daemon.SeedDir = pathutil.MustExpand(c.Daemon.SeedDir)
	if c.Daemon.DBPath != MemoryDB {
		c.Daemon.DBPath = pathutil.MustExpand(c.Daemon.DBPath)
	}
	if c.Source.Dir == "" {
		c.Source.Dir = c.Daemon.SeedDir
	}
	c.Source.Dir = pathutil.MustExpand(c.Source.Dir)
	for i := range c.Collections {
		if c.Collections[i].Kind == "" {
			c.Collections[i].Kind = string(models.KindOrganization)
		}
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validateSource(&c.Source); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Collections))
	for i, coll := range c.Collections {
		if !collectionNameRegex.MatchString(coll.Name) {
			return errors.ConfigInvalid(fmt.Sprintf("collections[%d]: name %q must start with a letter or digit and contain only letters, digits, '.', '_' and '-'", i, coll.Name)).
				WithDetail("collection", coll.Name)
		}
		if seen[coll.Name] {
			return errors.ConfigInvalid(fmt.Sprintf("collection %q is declared twice", coll.Name)).
				WithDetail("collection", coll.Name)
		}
		seen[coll.Name] = true
		if coll.Kind != "" && !models.Kind(coll.Kind).Valid() {
			return errors.ConfigInvalid(fmt.Sprintf("collection %q has unknown kind %q", coll.Name, coll.Kind)).
				WithDetail("collection", coll.Name).
				WithDetail("kind", coll.Kind)
		}
	}

	if c.Daemon.Addr != "" && !strings.HasPrefix(c.Daemon.Addr, "unix://") && !strings.Contains(c.Daemon.Addr, ":") {
		return errors.ConfigInvalid(fmt.Sprintf("daemon.addr %q must be unix:///path or host:port", c.Daemon.Addr))
	}
	return nil
}

func validateSource(s *SourceConfig) error {
	switch s.Transport {
	case "", TransportAuto, TransportSSE, TransportWebSocket:
	case TransportFile:
		if s.Dir == "" {
			return errors.ConfigInvalid("source.dir is required for the file transport")
		}
	default:
		return errors.ConfigInvalid(fmt.Sprintf("unknown source.transport %q (want auto, sse, websocket or file)", s.Transport)).
			WithDetail("transport", s.Transport)
	}

	if s.URL != "" && s.Transport != TransportFile {
		if !strings.HasPrefix(s.URL, "unix://") && !strings.HasPrefix(s.URL, "http://") && !strings.HasPrefix(s.URL, "https://") {
			return errors.ConfigInvalid(fmt.Sprintf("source.url %q must start with unix://, http:// or https://", s.URL))
		}
	}
	if _, err := s.Reconnect(); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigInvalid, "invalid source configuration")
	}
	if s.ReconnectJitter < 0 || s.ReconnectJitter > 1 {
		return errors.ConfigInvalid(fmt.Sprintf("source.reconnect_jitter %v must be between 0 and 1", s.ReconnectJitter))
	}
	return nil
}

// KindOf returns the entity kind declared for a collection, defaulting to
// organizations for undeclared ones.
func (c *Config) KindOf(name string) models.Kind {
	if coll, ok := c.Collection(name); ok && coll.Kind != "" {
		return models.Kind(coll.Kind)
	}
	return models.KindOrganization
}

// DaemonURL turns a listen address into a client address: unix sockets are
// kept, host:port becomes http://host:port.
func DaemonURL(addr string) string {
	switch {
	case strings.HasPrefix(addr, "unix://"), strings.HasPrefix(addr, "http://"), strings.HasPrefix(addr, "https://"):
		return addr
	case strings.HasPrefix(addr, ":"):
		return "http://localhost" + addr
	default:
		return "http://" + addr
	}
}
