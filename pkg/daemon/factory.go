package daemon

import (
	"github.com/grovetools/causes/config"
	"github.com/grovetools/causes/errors"
	"github.com/grovetools/causes/pkg/collection"
	"github.com/grovetools/causes/pkg/filesource"
	"github.com/grovetools/causes/pkg/models"
	"github.com/sirupsen/logrus"
)

// NewRemoteFromConfig creates a RemoteClient for cfg.URL with the token and
// reconnect policy of cfg.
func NewRemoteFromConfig(cfg config.SourceConfig, logger *logrus.Entry) (*RemoteClient, error) {
	interval, err := cfg.Reconnect()
	if err != nil {
		return nil, errors.ConfigInvalid(err.Error())
	}
	opts := []ClientOption{WithReconnect(interval, cfg.ReconnectJitter)}
	if cfg.Token != "" {
		opts = append(opts, WithToken(cfg.Token))
	}
	if logger != nil {
		opts = append(opts, WithClientLogger(logger))
	}
	return NewRemoteClient(cfg.URL, opts...)
}

// NewClient returns a Client for cfg.
//
// This implements the "transparent daemon" pattern: with the auto
// transport, callers get a RemoteClient when the daemon answers and a
// LocalClient on cfg.Dir otherwise. The same API works in both modes.
func NewClient(cfg config.SourceConfig, logger *logrus.Entry) (Client, error) {
	if cfg.Transport == config.TransportFile {
		return NewLocalClient(cfg.Dir), nil
	}

	remote, err := NewRemoteFromConfig(cfg, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Transport != config.TransportAuto && cfg.Transport != "" {
		return remote, nil
	}
	if remote.IsRunning() || cfg.Dir == "" {
		return remote, nil
	}
	remote.Close()
	return NewLocalClient(cfg.Dir), nil
}

// NewSource returns the collection source selected by cfg.Transport. The
// auto transport streams over SSE from a running daemon and watches cfg.Dir
// otherwise; with no directory configured it still picks SSE so the
// controller reports the connectivity failure.
func NewSource[T models.Record](cfg config.SourceConfig, decode models.Decoder[T], logger *logrus.Entry) (collection.Source[T], error) {
	switch cfg.Transport {
	case config.TransportFile:
		return newFileSource(cfg, decode, logger), nil
	case config.TransportSSE, config.TransportWebSocket, config.TransportAuto, "":
	default:
		return nil, errors.ConfigInvalid("unknown source transport " + cfg.Transport)
	}

	remote, err := NewRemoteFromConfig(cfg, logger)
	if err != nil {
		return nil, err
	}
	switch cfg.Transport {
	case config.TransportWebSocket:
		return NewWebSocketSource(remote, decode), nil
	case config.TransportSSE:
		return NewSSESource(remote, decode), nil
	}

	if !remote.IsRunning() && cfg.Dir != "" {
		remote.Close()
		return newFileSource(cfg, decode, logger), nil
	}
	return NewSSESource(remote, decode), nil
}

func newFileSource[T models.Record](cfg config.SourceConfig, decode models.Decoder[T], logger *logrus.Entry) *filesource.Source[T] {
	var opts []filesource.Option
	if logger != nil {
		opts = append(opts, filesource.WithLogger(logger))
	}
	return filesource.New(cfg.Dir, decode, opts...)
}
