package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/grovetools/causes/errors"
	_ "modernc.org/sqlite" // pure go sqlite driver
)

var schemaSQL = []string{
	`CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		seq  INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id         TEXT NOT NULL,
		position   INTEGER NOT NULL,
		payload    BLOB NOT NULL,
		PRIMARY KEY (collection, id)
	)`,
}

// Store is the daemon's document store. Reads are served from memory; every
// write goes to SQLite first and is mirrored once committed. It is
// thread-safe and supports pub/sub for real-time updates.
type Store struct {
	mu          sync.RWMutex
	db          *sql.DB
	path        string
	collections map[string]*collectionState
	subscribers map[chan Update]string
}

type collectionState struct {
	seq  uint64
	next int64
	ids  []string
	docs map[string]json.RawMessage
	pos  map[string]int64
}

func newCollectionState() *collectionState {
	return &collectionState{
		docs: make(map[string]json.RawMessage),
		pos:  make(map[string]int64),
	}
}

// New creates a memory-only Store.
func New() *Store {
	return &Store{
		collections: make(map[string]*collectionState),
		subscribers: make(map[chan Update]string),
	}
}

// Open creates a Store persisted to the SQLite database at path and loads
// its contents.
func Open(path string) (*Store, error) {
	if path == "" {
		path = "causes.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer; the in-memory mirror serves reads.
	db.SetMaxOpenConns(1)
	for _, stmt := range schemaSQL {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create tables: %w", err)
		}
	}

	s := New()
	s.db = db
	s.path = path
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT name, seq FROM collections`)
	if err != nil {
		return fmt.Errorf("select collections: %w", err)
	}
	for rows.Next() {
		var name string
		var seq int64
		if err := rows.Scan(&name, &seq); err != nil {
			_ = rows.Close()
			return fmt.Errorf("scan collection: %w", err)
		}
		cs := newCollectionState()
		cs.seq = uint64(seq)
		s.collections[name] = cs
	}
	_ = rows.Close()

	docs, err := s.db.Query(`SELECT collection, id, position, payload FROM documents ORDER BY collection, position`)
	if err != nil {
		return fmt.Errorf("select documents: %w", err)
	}
	defer func() { _ = docs.Close() }()
	for docs.Next() {
		var name, id string
		var pos int64
		var payload []byte
		if err := docs.Scan(&name, &id, &pos, &payload); err != nil {
			return fmt.Errorf("scan document: %w", err)
		}
		cs, ok := s.collections[name]
		if !ok {
			cs = newCollectionState()
			s.collections[name] = cs
		}
		cs.ids = append(cs.ids, id)
		cs.docs[id] = json.RawMessage(payload)
		cs.pos[id] = pos
		if pos >= cs.next {
			cs.next = pos + 1
		}
	}
	return docs.Err()
}

// Close releases the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database path, or "" for a memory-only store.
func (s *Store) Path() string { return s.path }

// Snapshot returns the current state of a collection. Unknown collections
// are empty at seq 0.
func (s *Store) Snapshot(collection string) Update {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(collection, "")
}

// Get returns a single document.
func (s *Store) Get(collection, id string) (json.RawMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.collections[collection]
	if !ok {
		return nil, false
	}
	doc, ok := cs.docs[id]
	return doc, ok
}

// Collections lists every known collection by name.
func (s *Store) Collections() []CollectionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]CollectionInfo, 0, len(s.collections))
	for name, cs := range s.collections {
		result = append(result, CollectionInfo{Name: name, Seq: cs.seq, Count: len(cs.ids)})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Put inserts or replaces a document. The id is written into the payload so
// stored documents are self-describing. New documents go to the end of the
// collection; replaced ones keep their position.
func (s *Store) Put(collection, id string, doc json.RawMessage) (Update, error) {
	return s.ApplyChange(Change{Type: ChangePut, Collection: collection, ID: id, Document: doc, Source: "api"})
}

// Delete removes a document.
func (s *Store) Delete(collection, id string) (Update, error) {
	return s.ApplyChange(Change{Type: ChangeDelete, Collection: collection, ID: id, Source: "api"})
}

// Replace swaps the whole collection for docs. Each document must carry a
// string id; ids must be unique.
func (s *Store) Replace(collection string, docs []json.RawMessage) (Update, error) {
	return s.ApplyChange(Change{Type: ChangeReplace, Collection: collection, Documents: docs, Source: "api"})
}

// ApplyChange persists a change, mirrors it and notifies subscribers of the
// collection.
func (s *Store) ApplyChange(c Change) (Update, error) {
	if c.Collection == "" {
		return Update{}, errors.InvalidQuery("collection name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cs, ok := s.collections[c.Collection]
	if !ok {
		cs = newCollectionState()
	}

	var next *collectionState
	var err error
	switch c.Type {
	case ChangePut:
		next, err = cs.withPut(c.ID, c.Document)
	case ChangeDelete:
		next, err = cs.withDelete(c.Collection, c.ID)
	case ChangeReplace:
		next, err = cs.withReplace(c.Documents)
	default:
		err = errors.Internal(fmt.Sprintf("unknown change type %q", c.Type), nil)
	}
	if err != nil {
		return Update{}, err
	}
	next.seq = cs.seq + 1

	if err := s.persist(c, next); err != nil {
		return Update{}, errors.Internal("persist change", err).WithDetail("collection", c.Collection)
	}
	s.collections[c.Collection] = next

	u := s.snapshotLocked(c.Collection, c.Source)
	s.broadcast(u)
	return u, nil
}

func (cs *collectionState) clone() *collectionState {
	out := newCollectionState()
	out.seq = cs.seq
	out.next = cs.next
	out.ids = append([]string(nil), cs.ids...)
	for k, v := range cs.docs {
		out.docs[k] = v
	}
	for k, v := range cs.pos {
		out.pos[k] = v
	}
	return out
}

func (cs *collectionState) withPut(id string, doc json.RawMessage) (*collectionState, error) {
	if id == "" {
		return nil, errors.MalformedRecord("", fmt.Errorf("document id is required"))
	}
	stamped, err := stampID(id, doc)
	if err != nil {
		return nil, err
	}
	out := cs.clone()
	if _, exists := out.docs[id]; !exists {
		out.ids = append(out.ids, id)
		out.pos[id] = out.next
		out.next++
	}
	out.docs[id] = stamped
	return out, nil
}

func (cs *collectionState) withDelete(collection, id string) (*collectionState, error) {
	if _, exists := cs.docs[id]; !exists {
		return nil, errors.NotFound("document", id).WithDetail("collection", collection)
	}
	out := cs.clone()
	delete(out.docs, id)
	delete(out.pos, id)
	for i, existing := range out.ids {
		if existing == id {
			out.ids = append(out.ids[:i], out.ids[i+1:]...)
			break
		}
	}
	return out, nil
}

func (cs *collectionState) withReplace(docs []json.RawMessage) (*collectionState, error) {
	out := newCollectionState()
	out.seq = cs.seq
	for _, doc := range docs {
		id, err := documentID(doc)
		if err != nil {
			return nil, err
		}
		if _, dup := out.docs[id]; dup {
			return nil, errors.DuplicateID(id)
		}
		out.ids = append(out.ids, id)
		out.docs[id] = doc
		out.pos[id] = out.next
		out.next++
	}
	return out, nil
}

func (s *Store) persist(c Change, next *collectionState) (retErr error) {
	if s.db == nil {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	switch c.Type {
	case ChangePut:
		if _, err := tx.Exec(`INSERT INTO documents(collection,id,position,payload) VALUES(?,?,?,?)
			ON CONFLICT(collection,id) DO UPDATE SET payload=excluded.payload`,
			c.Collection, c.ID, next.pos[c.ID], []byte(next.docs[c.ID])); err != nil {
			return fmt.Errorf("upsert document: %w", err)
		}
	case ChangeDelete:
		if _, err := tx.Exec(`DELETE FROM documents WHERE collection=? AND id=?`, c.Collection, c.ID); err != nil {
			return fmt.Errorf("delete document: %w", err)
		}
	case ChangeReplace:
		if _, err := tx.Exec(`DELETE FROM documents WHERE collection=?`, c.Collection); err != nil {
			return fmt.Errorf("clear collection: %w", err)
		}
		for _, id := range next.ids {
			if _, err := tx.Exec(`INSERT INTO documents(collection,id,position,payload) VALUES(?,?,?,?)`,
				c.Collection, id, next.pos[id], []byte(next.docs[id])); err != nil {
				return fmt.Errorf("insert document: %w", err)
			}
		}
	}

	if _, err := tx.Exec(`INSERT INTO collections(name,seq) VALUES(?,?)
		ON CONFLICT(name) DO UPDATE SET seq=excluded.seq`, c.Collection, int64(next.seq)); err != nil {
		return fmt.Errorf("upsert collection: %w", err)
	}
	return tx.Commit()
}

// snapshotLocked must be called with mu held.
func (s *Store) snapshotLocked(collection, source string) Update {
	u := Update{Collection: collection, Documents: []json.RawMessage{}, Source: source}
	cs, ok := s.collections[collection]
	if !ok {
		return u
	}
	u.Seq = cs.seq
	u.Documents = make([]json.RawMessage, 0, len(cs.ids))
	for _, id := range cs.ids {
		u.Documents = append(u.Documents, cs.docs[id])
	}
	return u
}

// broadcast must be called with mu held. A subscriber that has fallen behind
// loses its oldest pending update; every update is a full snapshot, so the
// newest one is always enough.
func (s *Store) broadcast(u Update) {
	for ch, collection := range s.subscribers {
		if collection != "" && collection != u.Collection {
			continue
		}
		select {
		case ch <- u:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- u:
			default:
			}
		}
	}
}

// Subscribe creates a subscription channel for updates to collection, or to
// every collection when collection is "".
func (s *Store) Subscribe(collection string) chan Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan Update, 16)
	s.subscribers[ch] = collection
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (s *Store) Unsubscribe(ch chan Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscribers[ch]; !ok {
		return
	}
	delete(s.subscribers, ch)
	close(ch)
}

// Subscribers returns the number of open subscriptions.
func (s *Store) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}

func documentID(doc json.RawMessage) (string, error) {
	var head struct {
		ID *string `json:"id"`
	}
	if err := json.Unmarshal(doc, &head); err != nil {
		return "", errors.MalformedRecord("", err)
	}
	if head.ID == nil || *head.ID == "" {
		return "", errors.MalformedRecord("", fmt.Errorf("document has no string id"))
	}
	return *head.ID, nil
}

func stampID(id string, doc json.RawMessage) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil || fields == nil {
		if err == nil {
			err = fmt.Errorf("document must be a JSON object")
		}
		return nil, errors.MalformedRecord(id, err)
	}
	encodedID, err := json.Marshal(id)
	if err != nil {
		return nil, errors.MalformedRecord(id, err)
	}
	fields["id"] = encodedID
	stamped, err := json.Marshal(fields)
	if err != nil {
		return nil, errors.MalformedRecord(id, err)
	}
	return stamped, nil
}
