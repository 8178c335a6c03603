// Package filesource serves collections from a directory of YAML or JSON
// files, one file per collection, and pushes a fresh snapshot whenever a
// file changes.
package filesource

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/grovetools/causes/errors"
	"github.com/grovetools/causes/logging"
	"github.com/grovetools/causes/pkg/collection"
	"github.com/grovetools/causes/pkg/models"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Extensions are tried in order when resolving a collection file.
var Extensions = []string{".yaml", ".yml", ".json"}

// DefaultDebounce coalesces the burst of events editors produce on save.
const DefaultDebounce = 100 * time.Millisecond

// Source watches a directory. Each subscription owns its own watcher.
type Source[T models.Record] struct {
	dir      string
	decode   models.Decoder[T]
	debounce time.Duration
	logger   *logrus.Entry
}

// Option configures a Source.
type Option func(*config)

type config struct {
	debounce time.Duration
	logger   *logrus.Entry
}

// WithDebounce sets the quiet period after a change before reloading.
func WithDebounce(d time.Duration) Option {
	return func(c *config) { c.debounce = d }
}

// WithLogger sets the logger.
func WithLogger(logger *logrus.Entry) Option {
	return func(c *config) { c.logger = logger }
}

// New creates a source reading collections from dir.
func New[T models.Record](dir string, decode models.Decoder[T], opts ...Option) *Source[T] {
	cfg := config{debounce: DefaultDebounce}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logging.NewLogger("filesource")
	}
	return &Source[T]{
		dir:      dir,
		decode:   decode,
		debounce: cfg.debounce,
		logger:   cfg.logger.WithField("dir", dir),
	}
}

// Dir returns the watched directory.
func (s *Source[T]) Dir() string {
	return s.dir
}

// Subscribe implements collection.Source. The collection file is loaded
// once on a background goroutine and then reloaded after every change. A
// missing or unparsable file is reported through OnError; the subscription
// stays open and recovers when the file is fixed.
func (s *Source[T]) Subscribe(name string, h collection.Handler[T]) collection.Subscription {
	w := &fileWatch[T]{
		src:    s,
		name:   name,
		logger: s.logger.WithField("collection", name),
		stop:   make(chan struct{}),
	}
	w.dispatcher = collection.NewDispatcher(h, w.close)
	go w.run()
	return w.dispatcher
}

type fileWatch[T models.Record] struct {
	src        *Source[T]
	name       string
	logger     *logrus.Entry
	dispatcher *collection.Dispatcher[T]
	seq        uint64

	stopOnce sync.Once
	stop     chan struct{}
}

func (w *fileWatch[T]) close() {
	w.stopOnce.Do(func() { close(w.stop) })
}

func (w *fileWatch[T]) run() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.dispatcher.Error(errors.Connectivity(w.name, err))
		return
	}
	defer watcher.Close()

	if err := watcher.Add(w.src.dir); err != nil {
		w.dispatcher.Error(errors.Connectivity(w.name, fmt.Errorf("watch %s: %w", w.src.dir, err)))
		return
	}

	w.reload()

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-w.stop:
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !w.matches(event.Name) {
				continue
			}
			w.logger.Debugf("fsnotify event: %s op=%v", filepath.Base(event.Name), event.Op)
			if timer == nil {
				timer = time.NewTimer(w.src.debounce)
			} else {
				timer.Reset(w.src.debounce)
			}
			fire = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("Watcher error")
		case <-fire:
			fire = nil
			w.reload()
		}
	}
}

func (w *fileWatch[T]) matches(path string) bool {
	base := filepath.Base(path)
	for _, ext := range Extensions {
		if base == w.name+ext {
			return true
		}
	}
	return false
}

func (w *fileWatch[T]) reload() {
	raws, path, err := Load(w.src.dir, w.name)
	if err != nil {
		w.logger.WithError(err).Debug("Collection file unavailable")
		w.dispatcher.Error(err)
		return
	}

	w.seq++
	snap, dropped := collection.Decode(w.name, w.seq, raws, w.src.decode)
	for _, derr := range dropped {
		w.logger.WithError(derr).Debug("Dropped document")
	}
	w.logger.WithFields(logrus.Fields{"file": filepath.Base(path), "entities": snap.Len(), "seq": snap.Seq}).Debug("Loaded collection")
	w.dispatcher.Snapshot(snap)
}

// Path resolves the collection file for name, trying Extensions in order.
func Path(dir, name string) (string, error) {
	for _, ext := range Extensions {
		path := filepath.Join(dir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", errors.NotFound("collection file", name).WithDetail("dir", dir)
}

// Load reads the raw documents of a collection file. The file holds either
// a list of documents or a mapping with a "documents" list.
func Load(dir, name string) ([]json.RawMessage, string, error) {
	path, err := Path(dir, name)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsPermission(err) {
			return nil, path, errors.PermissionDenied(name, err)
		}
		return nil, path, errors.Connectivity(name, err)
	}
	raws, err := Parse(data)
	if err != nil {
		return nil, path, errors.Wrap(err, errors.ErrCodeMalformedRecord,
			fmt.Sprintf("cannot parse %s", filepath.Base(path))).WithDetail("collection", name)
	}
	return raws, path, nil
}

// Parse decodes a YAML or JSON collection document into raw JSON documents.
// Entries that cannot be re-encoded as JSON are passed through as null so
// the decoder drops them individually.
func Parse(data []byte) ([]json.RawMessage, error) {
	var root interface{}
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}

	var list []interface{}
	switch v := root.(type) {
	case nil:
		return nil, nil
	case []interface{}:
		list = v
	case map[string]interface{}:
		docs, ok := v["documents"]
		if !ok {
			return nil, fmt.Errorf("expected a list of documents or a 'documents' key")
		}
		if docs == nil {
			return nil, nil
		}
		if list, ok = docs.([]interface{}); !ok {
			return nil, fmt.Errorf("'documents' must be a list")
		}
	default:
		return nil, fmt.Errorf("expected a list of documents, got %T", root)
	}

	raws := make([]json.RawMessage, 0, len(list))
	for _, item := range list {
		encoded, err := json.Marshal(item)
		if err != nil {
			encoded = []byte("null")
		}
		raws = append(raws, encoded)
	}
	return raws, nil
}

// Collections lists the collection names present in dir.
func Collections(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		for _, known := range Extensions {
			if ext == known {
				name := strings.TrimSuffix(entry.Name(), ext)
				if !seen[name] {
					seen[name] = true
					names = append(names, name)
				}
				break
			}
		}
	}
	return names, nil
}
