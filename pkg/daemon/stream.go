package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/grovetools/causes/errors"
	"github.com/grovetools/causes/pkg/collection"
	"github.com/grovetools/causes/pkg/models"
	"github.com/sirupsen/logrus"
)

// openStream connects to a collection stream and calls onFrame for every
// frame until the stream fails or ctx is cancelled.
type openStream func(ctx context.Context, onFrame func(Frame)) error

// SSESource is a collection.Source reading the daemon's Server-Sent Events
// stream. Each Subscribe opens its own stream.
type SSESource[T models.Record] struct {
	client *RemoteClient
	decode models.Decoder[T]
}

// NewSSESource creates an SSE source on client.
func NewSSESource[T models.Record](client *RemoteClient, decode models.Decoder[T]) *SSESource[T] {
	return &SSESource[T]{client: client, decode: decode}
}

// Subscribe implements collection.Source.
func (s *SSESource[T]) Subscribe(name string, h collection.Handler[T]) collection.Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	d := collection.NewDispatcher(h, cancel)
	go superviseStream(ctx, s.client, name, d, s.decode, func(ctx context.Context, onFrame func(Frame)) error {
		return s.client.streamSSE(ctx, name, onFrame)
	})
	return d
}

// superviseStream runs one subscription: it keeps the stream open, turns
// frames into snapshots and reports failures. With reconnection disabled it
// stops after the first failure.
func superviseStream[T models.Record](ctx context.Context, c *RemoteClient, name string, d *collection.Dispatcher[T], decode models.Decoder[T], open openStream) {
	log := c.logger.WithField("collection", name)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for {
		err := open(ctx, func(f Frame) { deliverFrame(name, f, d, decode, log) })
		if ctx.Err() != nil {
			return
		}
		log.WithError(err).Debug("Stream ended")
		d.Error(err)

		if c.reconnect <= 0 {
			return
		}
		delay := jitteredIntervalWithSample(c.reconnect, c.jitter, rng.Float64())
		log.WithField("delay", delay).Debug("Reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func deliverFrame[T models.Record](name string, f Frame, d *collection.Dispatcher[T], decode models.Decoder[T], log *logrus.Entry) {
	if f.Error != nil {
		d.Error(f.Error.Err(name))
		return
	}
	snap, dropped := collection.Decode(name, f.Seq, f.Documents, decode)
	for _, err := range dropped {
		log.WithError(err).Debug("Dropped document")
	}
	d.Snapshot(snap)
}

func (c *RemoteClient) streamSSE(ctx context.Context, name string, onFrame func(Frame)) error {
	req, err := c.newRequest(ctx, http.MethodGet, StreamPath(name), nil)
	if err != nil {
		return errors.Connectivity(name, err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Connectivity(name, fmt.Errorf("failed to connect to stream: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return responseError(resp, name)
	}

	err = ReadEvents(resp.Body, func(event, data string) {
		switch event {
		case FrameError:
			var ef ErrorFrame
			if err := json.Unmarshal([]byte(data), &ef); err != nil {
				return
			}
			onFrame(Frame{Collection: name, Error: &ef})
		case "", "message", FrameSnapshot:
			var frame Frame
			if err := json.Unmarshal([]byte(data), &frame); err != nil {
				c.logger.WithError(err).Debug("Skipping malformed frame")
				return
			}
			onFrame(frame)
		}
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return errors.Connectivity(name, err)
	}
	return errors.Connectivity(name, fmt.Errorf("stream closed by daemon"))
}

// ReadEvents parses a Server-Sent Events stream and calls fn once per
// event with its name ("" when unnamed) and data. Comments are skipped;
// multi-line data is joined with newlines. It returns when r is exhausted.
func ReadEvents(r io.Reader, fn func(event, data string)) error {
	scanner := bufio.NewScanner(r)
	// Increase buffer size to handle large collections (default is 64KB)
	buf := make([]byte, 0, 1024*1024)
	scanner.Buffer(buf, 16*1024*1024)

	var event string
	var data strings.Builder
	hasData := false
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if hasData {
				fn(event, data.String())
			}
			event = ""
			data.Reset()
			hasData = false
		case strings.HasPrefix(line, ":"):
			// Skip comments
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			hasData = true
		}
	}
	return scanner.Err()
}

func clampJitterRatio(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}

func jitteredIntervalWithSample(base time.Duration, jitterRatio, sample float64) time.Duration {
	if base <= 0 {
		return 0
	}
	jitterRatio = clampJitterRatio(jitterRatio)
	if jitterRatio == 0 {
		return base
	}
	if sample < 0 {
		sample = 0
	} else if sample > 1 {
		sample = 1
	}
	factor := 1 + ((sample*2)-1)*jitterRatio
	if factor < 0 {
		factor = 0
	}
	delay := time.Duration(float64(base) * factor)
	if delay < time.Millisecond {
		return time.Millisecond
	}
	return delay
}
