// Package docstore is a per-user document namespace on top of bbolt.
// Documents live at accounts/{uid}/{collection}/{id} and hold JSON.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var bucketAccounts = []byte("accounts")

var (
	ErrNotFound         = errors.New("document not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidPath      = errors.New("invalid document path")
)

// Store provides document operations scoped by user id
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the bbolt file at path
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	s, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already opened bbolt database
func New(db *bolt.DB) (*Store, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketAccounts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create accounts bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying bbolt handle
func (s *Store) DB() *bolt.DB {
	return s.db
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.db.Path()
}

// Users returns the ids of every user namespace
func (s *Store) Users(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var uids []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAccounts).ForEachBucket(func(k []byte) error {
			uids = append(uids, string(k))
			return nil
		})
	})
	return uids, err
}

// Document is a stored JSON document with its key
type Document struct {
	ID   string
	Data json.RawMessage
}

// Decode unmarshals the document body into v
func (d Document) Decode(v any) error {
	return json.Unmarshal(d.Data, v)
}

// Fields returns the document body as a generic map
func (d Document) Fields() (map[string]any, error) {
	fields := map[string]any{}
	if err := json.Unmarshal(d.Data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// Query controls List ordering and size
type Query struct {
	OrderBy string // top-level or dotted field path
	Desc    bool
	Limit   int
}

// Collection is a handle on accounts/{uid}/{name}
type Collection struct {
	store *Store
	uid   string
	name  string
}

// Collection returns a handle for a user's collection
func (s *Store) Collection(uid, name string) *Collection {
	return &Collection{store: s, uid: uid, name: name}
}

func (c *Collection) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return checkPath(c.uid, c.name)
}

func checkPath(uid, collection string) error {
	if uid == "" || strings.Contains(uid, "/") {
		return ErrPermissionDenied
	}
	if collection == "" || strings.Contains(collection, "/") {
		return fmt.Errorf("%w: collection %q", ErrInvalidPath, collection)
	}
	return nil
}

// Get returns a single document or ErrNotFound
func (c *Collection) Get(ctx context.Context, id string) (*Document, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}

	var doc *Document
	err := c.store.db.View(func(tx *bolt.Tx) error {
		b := readBucket(tx, c.uid, c.name)
		if b == nil {
			return ErrNotFound
		}
		data := b.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		doc = &Document{ID: id, Data: append(json.RawMessage(nil), data...)}
		return nil
	})
	return doc, err
}

// Set writes v as the full body of document id, replacing any existing body
func (c *Collection) Set(ctx context.Context, id string, v any) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	return c.store.db.Update(func(tx *bolt.Tx) error {
		return setDoc(tx, c.uid, c.name, id, v)
	})
}

// Add stores v under a newly generated id
func (c *Collection) Add(ctx context.Context, v any) (string, error) {
	if err := c.check(ctx); err != nil {
		return "", err
	}
	id := uuid.New().String()
	err := c.store.db.Update(func(tx *bolt.Tx) error {
		return setDoc(tx, c.uid, c.name, id, v)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Update merges top-level fields into an existing document
func (c *Collection) Update(ctx context.Context, id string, fields map[string]any) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	return c.store.db.Update(func(tx *bolt.Tx) error {
		return updateDoc(tx, c.uid, c.name, id, fields)
	})
}

// Delete removes a document; deleting a missing document is not an error
func (c *Collection) Delete(ctx context.Context, id string) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	return c.store.db.Update(func(tx *bolt.Tx) error {
		b := readBucket(tx, c.uid, c.name)
		if b == nil {
			return nil
		}
		return b.Delete([]byte(id))
	})
}

// List returns documents ordered by q.OrderBy (key order when empty).
// Documents missing the order field sort last in both directions.
func (c *Collection) List(ctx context.Context, q Query) ([]Document, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}

	docs := []Document{}
	err := c.store.db.View(func(tx *bolt.Tx) error {
		b := readBucket(tx, c.uid, c.name)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			docs = append(docs, Document{
				ID:   string(k),
				Data: append(json.RawMessage(nil), v...),
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if q.OrderBy != "" {
		sortDocuments(docs, q.OrderBy, q.Desc)
	}
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return docs, nil
}

// Batch runs fn inside a single write transaction for one user.
// Either every write in fn is applied or none is.
func (s *Store) Batch(ctx context.Context, uid string, fn func(b *Batch) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkPath(uid, "batch"); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return fn(&Batch{tx: tx, uid: uid})
	})
}

// Batch stages writes inside a Store.Batch transaction
type Batch struct {
	tx  *bolt.Tx
	uid string
}

func (b *Batch) Set(collection, id string, v any) error {
	if err := checkPath(b.uid, collection); err != nil {
		return err
	}
	return setDoc(b.tx, b.uid, collection, id, v)
}

func (b *Batch) Update(collection, id string, fields map[string]any) error {
	if err := checkPath(b.uid, collection); err != nil {
		return err
	}
	return updateDoc(b.tx, b.uid, collection, id, fields)
}

func (b *Batch) Delete(collection, id string) error {
	if err := checkPath(b.uid, collection); err != nil {
		return err
	}
	bucket := readBucket(b.tx, b.uid, collection)
	if bucket == nil {
		return nil
	}
	return bucket.Delete([]byte(id))
}

func readBucket(tx *bolt.Tx, uid, collection string) *bolt.Bucket {
	user := tx.Bucket(bucketAccounts).Bucket([]byte(uid))
	if user == nil {
		return nil
	}
	return user.Bucket([]byte(collection))
}

func writeBucket(tx *bolt.Tx, uid, collection string) (*bolt.Bucket, error) {
	user, err := tx.Bucket(bucketAccounts).CreateBucketIfNotExists([]byte(uid))
	if err != nil {
		return nil, err
	}
	return user.CreateBucketIfNotExists([]byte(collection))
}

func setDoc(tx *bolt.Tx, uid, collection, id string, v any) error {
	if id == "" {
		return fmt.Errorf("%w: empty document id", ErrInvalidPath)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	b, err := writeBucket(tx, uid, collection)
	if err != nil {
		return err
	}
	return b.Put([]byte(id), data)
}

func updateDoc(tx *bolt.Tx, uid, collection, id string, fields map[string]any) error {
	b := readBucket(tx, uid, collection)
	if b == nil {
		return ErrNotFound
	}
	existing := b.Get([]byte(id))
	if existing == nil {
		return ErrNotFound
	}

	merged := map[string]any{}
	if err := json.Unmarshal(existing, &merged); err != nil {
		return fmt.Errorf("failed to decode document %s: %w", id, err)
	}
	for k, v := range fields {
		merged[k] = v
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	return b.Put([]byte(id), data)
}

func sortDocuments(docs []Document, field string, desc bool) {
	keys := make([]any, len(docs))
	for i, d := range docs {
		fields, err := d.Fields()
		if err != nil {
			continue
		}
		keys[i] = lookup(fields, field)
	}

	idx := make([]int, len(docs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ka, kb := keys[idx[a]], keys[idx[b]]
		if ka == nil || kb == nil {
			return ka != nil
		}
		c := compare(ka, kb)
		if desc {
			return c > 0
		}
		return c < 0
	})

	sorted := make([]Document, len(docs))
	for i, j := range idx {
		sorted[i] = docs[j]
	}
	copy(docs, sorted)
}

func lookup(fields map[string]any, path string) any {
	var cur any = fields
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[part]
	}
	return cur
}

// compare orders numbers before strings before everything else
func compare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}
	switch av := a.(type) {
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
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		}
		return 1
	}
	return 0
}

func rank(v any) int {
	switch v.(type) {
	case float64:
		return 0
	case string:
		return 1
	case bool:
		return 2
	}
	return 3
}
