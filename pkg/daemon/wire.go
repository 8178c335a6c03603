package daemon

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/grovetools/causes/errors"
)

// Frame types carried on the WebSocket stream. SSE uses the event name
// instead: unnamed events are snapshots, "error" events carry an ErrorFrame.
const (
	FrameSnapshot = "snapshot"
	FrameError    = "error"
)

// Frame is one message on a collection stream.
type Frame struct {
	Type       string            `json:"type,omitempty"`
	Collection string            `json:"collection"`
	Seq        uint64            `json:"seq"`
	Documents  []json.RawMessage `json:"documents"`
	Error      *ErrorFrame       `json:"error,omitempty"`
}

// ErrorFrame is the JSON body of API errors and stream error events.
type ErrorFrame struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewErrorFrame converts err for the wire.
func NewErrorFrame(err error) *ErrorFrame {
	code := errors.GetCode(err)
	if code == "" {
		code = errors.ErrCodeInternal
	}
	return &ErrorFrame{Code: string(code), Message: errors.Message(err)}
}

// Err turns the frame back into an *errors.Error for collection.
func (f *ErrorFrame) Err(collection string) error {
	switch errors.ErrorCode(f.Code) {
	case errors.ErrCodePermissionDenied:
		return errors.PermissionDenied(collection, fmt.Errorf("%s", f.Message))
	case errors.ErrCodeConnectivity, "":
		return errors.Connectivity(collection, fmt.Errorf("%s", f.Message))
	default:
		return errors.New(errors.ErrorCode(f.Code), f.Message).WithDetail("collection", collection)
	}
}

// CollectionInfo describes a collection held by the daemon.
type CollectionInfo struct {
	Name  string `json:"name"`
	Seq   uint64 `json:"seq"`
	Count int    `json:"count"`
}

// Paths of the daemon HTTP API.
const (
	PathHealth      = "/health"
	PathCollections = "/api/collections"
)

// CollectionPath returns the path of a collection resource.
func CollectionPath(name string) string {
	return PathCollections + "/" + url.PathEscape(name)
}

// StreamPath returns the SSE endpoint of a collection.
func StreamPath(name string) string {
	return CollectionPath(name) + "/stream"
}

// WebSocketPath returns the WebSocket endpoint of a collection.
func WebSocketPath(name string) string {
	return CollectionPath(name) + "/ws"
}

// DocumentPath returns the path of one document.
func DocumentPath(collection, id string) string {
	return CollectionPath(collection) + "/documents/" + url.PathEscape(id)
}
