package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// Key layout. All keys are prefixed so one database can hold many
// collections:
//
//	d/<collection>/<id>            document JSON (with internal _key)
//	c/<collection>                 collection marker
//	x/<collection>/<index>         index declaration JSON
//	u/<collection>/<index>/<vals>  unique index entry -> document id
const (
	docPrefix  = "d/"
	colPrefix  = "c/"
	idxPrefix  = "x/"
	uniqPrefix = "u/"
)

// internalKeyField is the adapter-private identity field stored inside the
// document JSON. It is stripped and renamed to "id" before any document
// leaves this package.
const internalKeyField = "_key"

// BadgerConfig holds configuration for a Badger-backed store.
type BadgerConfig struct {
	// Path is the directory for database files. Ignored when InMemory
	// is true.
	Path string

	// InMemory enables in-memory mode. Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives Badger's internal log output. Nil disables it.
	Logger *slog.Logger
}

// badgerSlog adapts slog to Badger's Logger interface.
type badgerSlog struct{ l *slog.Logger }

func (b *badgerSlog) Errorf(format string, args ...interface{}) {
	b.l.Error(fmt.Sprintf(format, args...))
}
func (b *badgerSlog) Warningf(format string, args ...interface{}) {
	b.l.Warn(fmt.Sprintf(format, args...))
}
func (b *badgerSlog) Infof(format string, args ...interface{}) {
	b.l.Debug(fmt.Sprintf(format, args...))
}
func (b *badgerSlog) Debugf(format string, args ...interface{}) {
	b.l.Debug(fmt.Sprintf(format, args...))
}

// BadgerStore implements Store on an embedded BadgerDB.
//
// Thread Safety: safe for concurrent use. Writes to a single document go
// through Badger transactions; unique index checks happen inside the same
// transaction as the write they guard.
type BadgerStore struct {
	db *badger.DB

	mu      sync.RWMutex
	indexes map[string][]Index // collection -> declared indexes
}

// OpenBadger opens (and if needed creates) a Badger-backed store.
func OpenBadger(cfg BadgerConfig) (*BadgerStore, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("%w: path is required for persistent store", ErrConnection)
		}
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("%w: create database directory %s: %v", ErrConnection, cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerSlog{l: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open badger database: %v", ErrConnection, err)
	}

	s := &BadgerStore{db: db, indexes: make(map[string][]Index)}
	if err := s.loadIndexes(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// loadIndexes restores index declarations written by earlier runs.
func (s *BadgerStore) loadIndexes() error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(idxPrefix), PrefetchValues: true})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			col, _, ok := strings.Cut(strings.TrimPrefix(key, idxPrefix), "/")
			if !ok {
				continue
			}
			var idx Index
			err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &idx) })
			if err != nil {
				return fmt.Errorf("%w: decode index %s: %v", ErrQuery, key, err)
			}
			s.indexes[col] = append(s.indexes[col], idx)
		}
		return nil
	})
}

// Close releases the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func docKey(collection, id string) []byte {
	return []byte(docPrefix + collection + "/" + id)
}

func colKey(collection string) []byte {
	return []byte(colPrefix + collection)
}

func idxKey(collection, name string) []byte {
	return []byte(idxPrefix + collection + "/" + name)
}

// uniqKey builds a unique-index entry key from the indexed field values of
// a document. Values are JSON-encoded and joined with a separator that
// cannot appear in JSON output.
func uniqKey(collection string, idx Index, doc Document) ([]byte, bool) {
	parts := make([]string, 0, len(idx.Fields))
	for _, f := range idx.Fields {
		v, ok := doc[f]
		if !ok || v == nil {
			if idx.Sparse {
				return nil, false
			}
			v = nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, false
		}
		parts = append(parts, string(b))
	}
	key := uniqPrefix + collection + "/" + idx.Name + "/" + strings.Join(parts, "\x1f")
	return []byte(key), true
}

// Create inserts a document and returns it with its assigned id.
//
// A caller-supplied "id" is honored; otherwise a UUID is generated.
// Unique index violations and id collisions fail with ErrDuplicateKey.
func (s *BadgerStore) Create(ctx context.Context, collection string, doc Document) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id, _ := doc["id"].(string)
	if id == "" {
		id = uuid.NewString()
	}

	stored := make(Document, len(doc)+1)
	for k, v := range doc {
		if k == "id" || k == internalKeyField {
			continue
		}
		stored[k] = v
	}
	stored[internalKeyField] = id
	stored = normalize(stored)

	raw, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("%w: encode document: %v", ErrQuery, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(docKey(collection, id)); err == nil {
			return fmt.Errorf("%w: id %q in %s", ErrDuplicateKey, id, collection)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %v", ErrQuery, err)
		}

		for _, idx := range s.uniqueIndexes(collection) {
			ukey, ok := uniqKey(collection, idx, stored)
			if !ok {
				continue
			}
			if _, err := txn.Get(ukey); err == nil {
				return fmt.Errorf("%w: index %s in %s", ErrDuplicateKey, idx.Name, collection)
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %v", ErrQuery, err)
			}
			if err := txn.Set(ukey, []byte(id)); err != nil {
				return fmt.Errorf("%w: %v", ErrQuery, err)
			}
		}

		// Auto-create the collection marker, matching document-database
		// behavior where the first insert brings a collection into being.
		if err := txn.Set(colKey(collection), nil); err != nil {
			return fmt.Errorf("%w: %v", ErrQuery, err)
		}
		return txn.Set(docKey(collection, id), raw)
	})
	if err != nil {
		return nil, err
	}
	return project(stored), nil
}

// GetByID fetches one document. Absence is not an error: (nil, nil).
func (s *BadgerStore) GetByID(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out Document
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(docKey(collection, id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrQuery, err)
		}
		return item.Value(func(v []byte) error {
			var doc Document
			if err := json.Unmarshal(v, &doc); err != nil {
				return fmt.Errorf("%w: decode document: %v", ErrQuery, err)
			}
			out = project(doc)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Query returns documents matching every filter predicate, ordered by
// sort, then windowed by skip and limit. limit <= 0 means no limit.
func (s *BadgerStore) Query(ctx context.Context, collection string, filter Filter, skip, limit int, sortBy []SortField) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var results []Document
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(docPrefix + collection + "/")
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(v []byte) error {
				var doc Document
				if err := json.Unmarshal(v, &doc); err != nil {
					return fmt.Errorf("%w: decode document: %v", ErrQuery, err)
				}
				if matches(doc, filter) {
					results = append(results, project(doc))
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(sortBy) > 0 {
		sort.SliceStable(results, func(i, j int) bool {
			for _, sf := range sortBy {
				c := compareValues(results[i][sf.Field], results[j][sf.Field])
				if c == 0 {
					continue
				}
				if sf.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}

	if skip > 0 {
		if skip >= len(results) {
			return []Document{}, nil
		}
		results = results[skip:]
	}
	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	if results == nil {
		results = []Document{}
	}
	return results, nil
}

// FindOne returns the first match, or (nil, nil) when nothing matches.
func (s *BadgerStore) FindOne(ctx context.Context, collection string, filter Filter) (Document, error) {
	docs, err := s.Query(ctx, collection, filter, 0, 1, nil)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

// Update applies a shallow merge patch to one document and returns the
// merged result. Identity fields in the patch are ignored. Fails with
// ErrNotFound when the id does not exist.
func (s *BadgerStore) Update(ctx context.Context, collection, id string, patch Document) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var merged Document
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(docKey(collection, id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: id %q in %s", ErrNotFound, id, collection)
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrQuery, err)
		}

		var current Document
		if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &current) }); err != nil {
			return fmt.Errorf("%w: decode document: %v", ErrQuery, err)
		}

		merged = make(Document, len(current)+len(patch))
		for k, v := range current {
			merged[k] = v
		}
		for k, v := range patch {
			if k == "id" || k == internalKeyField {
				continue
			}
			merged[k] = v
		}
		merged = normalize(merged)

		// Re-point unique index entries whose values changed.
		for _, idx := range s.uniqueIndexes(collection) {
			oldKey, oldOK := uniqKey(collection, idx, current)
			newKey, newOK := uniqKey(collection, idx, merged)
			if oldOK && newOK && bytes.Equal(oldKey, newKey) {
				continue
			}
			if newOK {
				if existing, err := txn.Get(newKey); err == nil {
					var owner []byte
					if owner, err = existing.ValueCopy(nil); err != nil {
						return fmt.Errorf("%w: %v", ErrQuery, err)
					}
					if string(owner) != id {
						return fmt.Errorf("%w: index %s in %s", ErrDuplicateKey, idx.Name, collection)
					}
				} else if !errors.Is(err, badger.ErrKeyNotFound) {
					return fmt.Errorf("%w: %v", ErrQuery, err)
				}
			}
			if oldOK {
				if err := txn.Delete(oldKey); err != nil {
					return fmt.Errorf("%w: %v", ErrQuery, err)
				}
			}
			if newOK {
				if err := txn.Set(newKey, []byte(id)); err != nil {
					return fmt.Errorf("%w: %v", ErrQuery, err)
				}
			}
		}

		raw, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("%w: encode document: %v", ErrQuery, err)
		}
		return txn.Set(docKey(collection, id), raw)
	})
	if err != nil {
		return nil, err
	}
	return project(merged), nil
}

// Delete removes one document. Idempotent: reports whether anything was
// actually removed.
func (s *BadgerStore) Delete(ctx context.Context, collection, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	deleted := false
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(docKey(collection, id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrQuery, err)
		}

		var current Document
		if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &current) }); err != nil {
			return fmt.Errorf("%w: decode document: %v", ErrQuery, err)
		}
		for _, idx := range s.uniqueIndexes(collection) {
			if ukey, ok := uniqKey(collection, idx, current); ok {
				if err := txn.Delete(ukey); err != nil {
					return fmt.Errorf("%w: %v", ErrQuery, err)
				}
			}
		}
		if err := txn.Delete(docKey(collection, id)); err != nil {
			return fmt.Errorf("%w: %v", ErrQuery, err)
		}
		deleted = true
		return nil
	})
	return deleted, err
}

// Count returns how many documents match the filter.
func (s *BadgerStore) Count(ctx context.Context, collection string, filter Filter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(docPrefix + collection + "/")
		// Key-only iteration when no filter needs document bodies.
		opts := badger.IteratorOptions{Prefix: prefix, PrefetchValues: len(filter) > 0}
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if len(filter) == 0 {
				count++
				continue
			}
			err := it.Item().Value(func(v []byte) error {
				var doc Document
				if err := json.Unmarshal(v, &doc); err != nil {
					return fmt.Errorf("%w: decode document: %v", ErrQuery, err)
				}
				if matches(doc, filter) {
					count++
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return count, err
}

// Exists reports whether a document id is present.
func (s *BadgerStore) Exists(ctx context.Context, collection, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	exists := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(docKey(collection, id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrQuery, err)
		}
		exists = true
		return nil
	})
	return exists, err
}

// CreateCollection registers a collection. Idempotent.
func (s *BadgerStore) CreateCollection(ctx context.Context, collection string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(colKey(collection), nil)
	})
}

// DropCollection removes a collection, its documents, and its indexes.
func (s *BadgerStore) DropCollection(ctx context.Context, collection string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	known, err := s.collectionExists(collection)
	if err != nil {
		return err
	}
	if !known {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	keys, err := s.collectKeys(
		docPrefix+collection+"/",
		uniqPrefix+collection+"/",
		idxPrefix+collection+"/",
	)
	if err != nil {
		return err
	}
	keys = append(keys, colKey(collection))
	if err := s.deleteKeys(keys); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.indexes, collection)
	s.mu.Unlock()
	return nil
}

// TruncateCollection removes all documents but keeps the collection and
// its index declarations.
func (s *BadgerStore) TruncateCollection(ctx context.Context, collection string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	known, err := s.collectionExists(collection)
	if err != nil {
		return err
	}
	if !known {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	keys, err := s.collectKeys(docPrefix+collection+"/", uniqPrefix+collection+"/")
	if err != nil {
		return err
	}
	return s.deleteKeys(keys)
}

// EnsureIndex declares an index. For unique indexes the existing documents
// are verified first; a pre-existing duplicate fails the declaration with
// ErrDuplicateKey and leaves the store unchanged.
func (s *BadgerStore) EnsureIndex(ctx context.Context, collection string, idx Index) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if idx.Name == "" || len(idx.Fields) == 0 {
		return fmt.Errorf("%w: index needs a name and at least one field", ErrQuery)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.indexes[collection] {
		if existing.Name == idx.Name && reflect.DeepEqual(existing, idx) {
			return nil
		}
	}

	raw, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("%w: encode index: %v", ErrQuery, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if idx.Unique {
			if err := s.backfillUnique(txn, collection, idx); err != nil {
				return err
			}
		}
		if err := txn.Set(colKey(collection), nil); err != nil {
			return fmt.Errorf("%w: %v", ErrQuery, err)
		}
		return txn.Set(idxKey(collection, idx.Name), raw)
	})
	if err != nil {
		return err
	}

	found := false
	for i, existing := range s.indexes[collection] {
		if existing.Name == idx.Name {
			s.indexes[collection][i] = idx
			found = true
		}
	}
	if !found {
		s.indexes[collection] = append(s.indexes[collection], idx)
	}
	return nil
}

// backfillUnique writes unique entries for existing documents, failing on
// the first collision.
func (s *BadgerStore) backfillUnique(txn *badger.Txn, collection string, idx Index) error {
	prefix := []byte(docPrefix + collection + "/")
	it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true})

	seen := make(map[string]string)
	for it.Rewind(); it.Valid(); it.Next() {
		var doc Document
		err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &doc) })
		if err != nil {
			it.Close()
			return fmt.Errorf("%w: decode document: %v", ErrQuery, err)
		}
		ukey, ok := uniqKey(collection, idx, doc)
		if !ok {
			continue
		}
		id, _ := doc[internalKeyField].(string)
		if prev, dup := seen[string(ukey)]; dup && prev != id {
			it.Close()
			return fmt.Errorf("%w: index %s in %s", ErrDuplicateKey, idx.Name, collection)
		}
		seen[string(ukey)] = id
	}
	it.Close()

	// Writes happen after the iterator is closed; Badger forbids mutating
	// a transaction while one of its iterators is open.
	for k, id := range seen {
		if err := txn.Set([]byte(k), []byte(id)); err != nil {
			return fmt.Errorf("%w: %v", ErrQuery, err)
		}
	}
	return nil
}

// DropIndex removes an index declaration and its entries.
func (s *BadgerStore) DropIndex(ctx context.Context, collection, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.indexes[collection][:0]
	found := false
	for _, idx := range s.indexes[collection] {
		if idx.Name == name {
			found = true
			continue
		}
		kept = append(kept, idx)
	}
	if !found {
		return fmt.Errorf("%w: index %s in %s", ErrNotFound, name, collection)
	}

	keys, err := s.collectKeys(uniqPrefix + collection + "/" + name + "/")
	if err != nil {
		return err
	}
	keys = append(keys, idxKey(collection, name))
	if err := s.deleteKeys(keys); err != nil {
		return err
	}
	s.indexes[collection] = kept
	return nil
}

func (s *BadgerStore) uniqueIndexes(collection string) []Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Index
	for _, idx := range s.indexes[collection] {
		if idx.Unique {
			out = append(out, idx)
		}
	}
	return out
}

func (s *BadgerStore) collectionExists(collection string) (bool, error) {
	exists := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(colKey(collection))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrQuery, err)
		}
		exists = true
		return nil
	})
	return exists, err
}

// collectKeys gathers every key under the given prefixes.
func (s *BadgerStore) collectKeys(prefixes ...string) ([][]byte, error) {
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		for _, p := range prefixes {
			it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(p)})
			for it.Rewind(); it.Valid(); it.Next() {
				keys = append(keys, it.Item().KeyCopy(nil))
			}
			it.Close()
		}
		return nil
	})
	return keys, err
}

// deleteKeys removes keys in a write batch. Batches are not transactional
// with concurrent readers, which is acceptable for drop and truncate.
func (s *BadgerStore) deleteKeys(keys [][]byte) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return fmt.Errorf("%w: %v", ErrQuery, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("%w: %v", ErrQuery, err)
	}
	return nil
}

// project renames the internal key field to "id" on the way out.
func project(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		if k == internalKeyField {
			out["id"] = v
			continue
		}
		out[k] = v
	}
	return out
}

// normalize round-trips values through JSON typing so that documents built
// from Go structs and documents read back from storage compare equal.
func normalize(doc Document) Document {
	raw, err := json.Marshal(doc)
	if err != nil {
		return doc
	}
	var out Document
	if err := json.Unmarshal(raw, &out); err != nil {
		return doc
	}
	return out
}

// matches evaluates a conjunctive equality filter. A scalar filter value
// matches an array field when the array contains it.
func matches(doc Document, filter Filter) bool {
	for field, want := range filter {
		got, ok := lookupField(doc, field)
		if field == "id" {
			got, ok = doc[internalKeyField]
		}
		if !ok {
			if want == nil {
				continue
			}
			return false
		}
		if !valueMatches(got, want) {
			return false
		}
	}
	return true
}

// lookupField resolves a possibly dotted path ("checksums.sha256") into
// nested maps.
func lookupField(doc Document, field string) (any, bool) {
	if v, ok := doc[field]; ok {
		return v, true
	}
	if !strings.Contains(field, ".") {
		return nil, false
	}
	var cur any = doc
	for _, part := range strings.Split(field, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func valueMatches(got, want any) bool {
	wantNorm := normalizeValue(want)
	gotNorm := normalizeValue(got)

	if arr, ok := gotNorm.([]any); ok {
		if _, wantArr := wantNorm.([]any); !wantArr {
			for _, elem := range arr {
				if reflect.DeepEqual(elem, wantNorm) {
					return true
				}
			}
			return false
		}
	}
	return reflect.DeepEqual(gotNorm, wantNorm)
}

func normalizeValue(v any) any {
	switch v.(type) {
	case nil, bool, string, float64, []any, map[string]any:
		return v
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

// compareValues orders mixed JSON values: nil < bool < number < string.
// Other types compare equal to each other.
func compareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}
	switch av := a.(type) {
	case bool:
		bv := b.(bool)
		if av == bv {
			return 0
		}
		if !av {
			return -1
		}
		return 1
	case float64:
		bv := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case string:
		return strings.Compare(av, b.(string))
	}
	return 0
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}
