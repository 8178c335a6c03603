// Package daemon provides clients and collection sources for the causes
// daemon (causes serve). It implements a transparent fallback pattern: if
// the daemon is running, talk to it over HTTP; if not, fall back to the
// local seed directory.
package daemon

import (
	"context"
	"encoding/json"
)

// Client defines the document API of the daemon. Both RemoteClient (HTTP)
// and LocalClient (direct file access) implement this interface.
type Client interface {
	// ListCollections returns every collection with its sequence number and
	// size.
	ListCollections(ctx context.Context) ([]CollectionInfo, error)

	// GetCollection returns the current snapshot of a collection.
	GetCollection(ctx context.Context, name string) (Frame, error)

	// PutDocument inserts or replaces a document and returns the resulting
	// snapshot.
	PutDocument(ctx context.Context, collection, id string, doc json.RawMessage) (Frame, error)

	// DeleteDocument removes a document and returns the resulting snapshot.
	DeleteDocument(ctx context.Context, collection, id string) (Frame, error)

	// IsRunning returns true if the backing store is available.
	IsRunning() bool

	// Close cleans up any resources used by the client.
	Close() error
}
