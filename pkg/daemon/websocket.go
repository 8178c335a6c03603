package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/grovetools/causes/errors"
	"github.com/grovetools/causes/pkg/collection"
	"github.com/grovetools/causes/pkg/models"
)

const (
	wsHandshakeTimeout = 10 * time.Second
	wsWriteTimeout     = 10 * time.Second
	wsReadTimeout      = 60 * time.Second
)

// WebSocketSource is a collection.Source reading the daemon's WebSocket
// stream. It carries the same frames as the SSE stream, tagged with a type.
type WebSocketSource[T models.Record] struct {
	client *RemoteClient
	decode models.Decoder[T]
}

// NewWebSocketSource creates a WebSocket source on client.
func NewWebSocketSource[T models.Record](client *RemoteClient, decode models.Decoder[T]) *WebSocketSource[T] {
	return &WebSocketSource[T]{client: client, decode: decode}
}

// Subscribe implements collection.Source.
func (s *WebSocketSource[T]) Subscribe(name string, h collection.Handler[T]) collection.Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	d := collection.NewDispatcher(h, cancel)
	go superviseStream(ctx, s.client, name, d, s.decode, func(ctx context.Context, onFrame func(Frame)) error {
		return s.client.streamWebSocket(ctx, name, onFrame)
	})
	return d
}

func (c *RemoteClient) webSocketURL(name string) string {
	base := c.baseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + WebSocketPath(name)
}

func (c *RemoteClient) streamWebSocket(ctx context.Context, name string, onFrame func(Frame)) error {
	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	if c.socketPath != "" {
		dialer.NetDialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", c.socketPath)
		}
	}
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	ws, resp, err := dialer.DialContext(ctx, c.webSocketURL(name), header)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if resp != nil {
			defer resp.Body.Close()
			return responseError(resp, name)
		}
		return errors.Connectivity(name, fmt.Errorf("failed to connect to websocket: %w", err))
	}
	defer ws.Close()

	// Unblock the read loop on cancellation.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			ws.Close()
		case <-done:
		}
	}()

	ws.SetReadDeadline(time.Now().Add(wsReadTimeout))
	ws.SetPingHandler(func(appData string) error {
		ws.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(wsWriteTimeout))
	})

	for {
		messageType, message, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Connectivity(name, err)
		}
		ws.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if messageType != websocket.TextMessage {
			continue
		}

		var frame Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			c.logger.WithError(err).Debug("Skipping malformed frame")
			continue
		}
		switch frame.Type {
		case FrameError:
			if frame.Error == nil {
				continue
			}
			onFrame(Frame{Collection: name, Error: frame.Error})
		case FrameSnapshot, "":
			onFrame(frame)
		}
	}
}
