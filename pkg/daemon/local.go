package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/grovetools/causes/errors"
	"github.com/grovetools/causes/logging"
	"github.com/grovetools/causes/pkg/filesource"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// LocalClient implements Client over a directory of collection files. It is
// used when the daemon is not running, providing the same API with every
// operation executed in-process. Snapshots it returns are unsequenced.
type LocalClient struct {
	dir    string
	mu     sync.Mutex
	logger *logrus.Entry
}

// NewLocalClient creates a LocalClient on dir.
func NewLocalClient(dir string) *LocalClient {
	return &LocalClient{dir: dir, logger: logging.NewLogger("daemon-local")}
}

// Dir returns the collection directory.
func (c *LocalClient) Dir() string {
	return c.dir
}

// ListCollections returns every collection file in the directory.
func (c *LocalClient) ListCollections(ctx context.Context) ([]CollectionInfo, error) {
	names, err := filesource.Collections(c.dir)
	if err != nil {
		return nil, errors.Connectivity("", err).WithDetail("dir", c.dir)
	}
	sort.Strings(names)

	infos := make([]CollectionInfo, 0, len(names))
	for _, name := range names {
		raws, _, err := filesource.Load(c.dir, name)
		if err != nil {
			c.logger.WithError(err).WithField("collection", name).Warn("Skipping unreadable collection")
			continue
		}
		infos = append(infos, CollectionInfo{Name: name, Count: len(raws)})
	}
	return infos, nil
}

// GetCollection returns the documents of a collection file.
func (c *LocalClient) GetCollection(ctx context.Context, name string) (Frame, error) {
	raws, _, err := filesource.Load(c.dir, name)
	if err != nil {
		return Frame{}, err
	}
	return c.frame(name, raws), nil
}

// PutDocument inserts or replaces a document and rewrites the file. A new
// collection is created as <name>.json.
func (c *LocalClient) PutDocument(ctx context.Context, collection, id string, doc json.RawMessage) (Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	raws, path, err := filesource.Load(c.dir, collection)
	if errors.Is(err, errors.ErrCodeNotFound) {
		raws, path, err = nil, filepath.Join(c.dir, collection+".json"), nil
	}
	if err != nil {
		return Frame{}, err
	}

	stamped, err := withID(id, doc)
	if err != nil {
		return Frame{}, err
	}

	replaced := false
	for i, raw := range raws {
		if rawID(raw) == id {
			raws[i] = stamped
			replaced = true
			break
		}
	}
	if !replaced {
		raws = append(raws, stamped)
	}

	if err := writeCollection(path, raws); err != nil {
		return Frame{}, errors.Internal("write collection", err).WithDetail("collection", collection)
	}
	c.logger.WithFields(logrus.Fields{"collection": collection, "id": id, "replaced": replaced}).Debug("Put document")
	return c.frame(collection, raws), nil
}

// DeleteDocument removes a document and rewrites the file.
func (c *LocalClient) DeleteDocument(ctx context.Context, collection, id string) (Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	raws, path, err := filesource.Load(c.dir, collection)
	if err != nil {
		return Frame{}, err
	}

	kept := raws[:0]
	found := false
	for _, raw := range raws {
		if !found && rawID(raw) == id {
			found = true
			continue
		}
		kept = append(kept, raw)
	}
	if !found {
		return Frame{}, errors.NotFound("document", id).WithDetail("collection", collection)
	}

	if err := writeCollection(path, kept); err != nil {
		return Frame{}, errors.Internal("write collection", err).WithDetail("collection", collection)
	}
	return c.frame(collection, kept), nil
}

// IsRunning returns true if the directory exists.
func (c *LocalClient) IsRunning() bool {
	info, err := os.Stat(c.dir)
	return err == nil && info.IsDir()
}

// Close is a no-op for LocalClient.
func (c *LocalClient) Close() error {
	return nil
}

func (c *LocalClient) frame(name string, raws []json.RawMessage) Frame {
	if raws == nil {
		raws = []json.RawMessage{}
	}
	return Frame{Type: FrameSnapshot, Collection: name, Documents: raws}
}

func rawID(raw json.RawMessage) string {
	var head struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(raw, &head)
	return head.ID
}

func withID(id string, doc json.RawMessage) (json.RawMessage, error) {
	if id == "" {
		return nil, errors.MalformedRecord("", fmt.Errorf("document id is required"))
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(doc, &fields); err != nil || fields == nil {
		if err == nil {
			err = fmt.Errorf("document must be a JSON object")
		}
		return nil, errors.MalformedRecord(id, err)
	}
	fields["id"] = id
	out, err := json.Marshal(fields)
	if err != nil {
		return nil, errors.MalformedRecord(id, err)
	}
	return out, nil
}

// writeCollection replaces the file atomically, keeping its format.
func writeCollection(path string, raws []json.RawMessage) error {
	docs := make([]interface{}, 0, len(raws))
	for _, raw := range raws {
		var v interface{}
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		docs = append(docs, v)
	}

	var data []byte
	var err error
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(docs, "", "  ")
		data = append(data, '\n')
	} else {
		data, err = yaml.Marshal(docs)
	}
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Ensure LocalClient implements Client interface.
var _ Client = (*LocalClient)(nil)
